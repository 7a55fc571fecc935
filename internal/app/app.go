// Package app is the composition root: it binds repositories to the domain
// services for either storage backend.
package app

import (
	"time"

	"almacen/internal/core/numerator"
	"almacen/internal/core/security"
	"almacen/internal/core/tx"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
	"almacen/internal/domain/reversal"
	"almacen/internal/domain/trace"
	"almacen/internal/infrastructure/storage/memory"
)

// Stores groups every persistence dependency of the domain.
type Stores struct {
	TxManager    tx.Manager
	Articles     article.Repository
	Suppliers    supplier.Repository
	Equipos      equipo.Repository
	Movements    stock.Repository
	Requests     request.Repository
	Requisitions requisition.Repository
	Orders       purchase_order.Repository
	Journal      audit.Journal
	Numerator    numerator.Generator
}

// Options tunes service construction.
type Options struct {
	// Policy defaults to the built-in matrix.
	Policy *security.Policy

	// Sink receives notifications after commit. Defaults to notify.LogSink.
	Sink notify.Sink

	// Now is the clock shared by every service. Defaults to time.Now.
	Now func() time.Time
}

// App holds the wired domain services.
type App struct {
	Stores     Stores
	Policy     *security.Policy
	Now        func() time.Time
	Dispatcher *notify.Dispatcher
	Journal    *audit.Recorder

	Stock        *stock.Service
	Consolidator *requisition.Consolidator
	Requisitions *requisition.Service
	Requests     *request.Service
	Orders       *purchase_order.Service
	Reversal     *reversal.Coordinator
	Trace        *trace.Service
}

// New wires the services on top of stores.
func New(stores Stores, opts Options) *App {
	if opts.Policy == nil {
		opts.Policy = security.MustPolicy()
	}
	if opts.Sink == nil {
		opts.Sink = notify.LogSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	journal := audit.NewRecorder(stores.Journal, opts.Now)
	dispatcher := notify.NewDispatcher(opts.Sink)
	ledger := stock.NewService(stores.Articles, stores.Movements, stores.TxManager, opts.Now)
	consolidator := requisition.NewConsolidator(
		stores.Requisitions,
		article.NewSupplierResolver(stores.Articles),
		stores.Numerator,
		journal,
		opts.Now,
	)

	return &App{
		Stores:       stores,
		Policy:       opts.Policy,
		Now:          opts.Now,
		Dispatcher:   dispatcher,
		Journal:      journal,
		Stock:        ledger,
		Consolidator: consolidator,
		Requisitions: requisition.NewService(stores.Requisitions, journal),
		Requests: request.NewService(
			stores.Requests, stores.Equipos, ledger, consolidator, stores.Numerator,
			opts.Policy, journal, dispatcher, stores.TxManager, opts.Now,
		),
		Orders: purchase_order.NewService(
			stores.Orders, stores.Requisitions, stores.Articles, stores.Suppliers, ledger, stores.Numerator,
			opts.Policy, journal, dispatcher, stores.TxManager, opts.Now,
		),
		Reversal: reversal.NewCoordinator(
			stores.Requests, stores.Requisitions, stores.Orders, ledger,
			opts.Policy, journal, dispatcher, stores.TxManager, opts.Now,
		),
		Trace: trace.NewService(stores.Requests, stores.Requisitions, stores.Orders, opts.Policy),
	}
}

// MemoryStores exposes an in-memory store through the Stores contract.
func MemoryStores(s *memory.Store) Stores {
	return Stores{
		TxManager:    s,
		Articles:     s.Articles(),
		Suppliers:    s.Suppliers(),
		Equipos:      s.Equipos(),
		Movements:    s.Movements(),
		Requests:     s.Requests(),
		Requisitions: s.Requisitions(),
		Orders:       s.Orders(),
		Journal:      s.Journal(),
		Numerator:    s.Numerator(),
	}
}

// NewMemory wires the services on a fresh in-memory store.
func NewMemory(opts Options) (*App, *memory.Store) {
	s := memory.NewStore()
	return New(MemoryStores(s), opts), s
}
