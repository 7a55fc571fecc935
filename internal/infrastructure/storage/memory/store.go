// Package memory provides an in-process implementation of every repository,
// the ticket numerator and the transaction manager. Transactions are
// serialized and roll back to a snapshot on error.
package memory

import (
	"context"
	"sort"
	"sync"

	"almacen/internal/core/id"
	"almacen/internal/core/numerator"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/registers/stock"
)

type state struct {
	articles      map[id.ID]article.Article
	supplierLinks map[id.ID][]article.SupplierLink
	suppliers     map[id.ID]supplier.Supplier
	equipos       map[id.ID]equipo.Equipo
	movements     []stock.Movement

	requests     map[id.ID]request.Request
	requestLines map[id.ID][]request.Line

	requisitions map[id.ID]requisition.Requisition
	requestLinks []requisition.RequestLink

	orders       map[id.ID]purchase_order.PurchaseOrder
	orderLines   map[id.ID][]purchase_order.Line
	orderSources []purchase_order.Source

	journal  []audit.Entry
	counters map[string]int64
}

func newState() *state {
	return &state{
		articles:      make(map[id.ID]article.Article),
		supplierLinks: make(map[id.ID][]article.SupplierLink),
		suppliers:     make(map[id.ID]supplier.Supplier),
		equipos:       make(map[id.ID]equipo.Equipo),
		requests:      make(map[id.ID]request.Request),
		requestLines:  make(map[id.ID][]request.Line),
		requisitions:  make(map[id.ID]requisition.Requisition),
		orders:        make(map[id.ID]purchase_order.PurchaseOrder),
		orderLines:    make(map[id.ID][]purchase_order.Line),
		counters:      make(map[string]int64),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSliceMap[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

// clone copies every container. Stored values are never mutated in place,
// so copying them by value is enough.
func (st *state) clone() *state {
	return &state{
		articles:      cloneMap(st.articles),
		supplierLinks: cloneSliceMap(st.supplierLinks),
		suppliers:     cloneMap(st.suppliers),
		equipos:       cloneMap(st.equipos),
		movements:     append([]stock.Movement(nil), st.movements...),
		requests:      cloneMap(st.requests),
		requestLines:  cloneSliceMap(st.requestLines),
		requisitions:  cloneMap(st.requisitions),
		requestLinks:  append([]requisition.RequestLink(nil), st.requestLinks...),
		orders:        cloneMap(st.orders),
		orderLines:    cloneSliceMap(st.orderLines),
		orderSources:  append([]purchase_order.Source(nil), st.orderSources...),
		journal:       append([]audit.Entry(nil), st.journal...),
		counters:      cloneMap(st.counters),
	}
}

// Store holds the whole dataset.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

type txKey struct{ store *Store }

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{store: s}).(bool)
	return v
}

// RunInTransaction implements tx.Manager. Nested calls join the outer
// transaction; an error from the outermost fn restores the snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{store: s}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// view runs fn against the state, taking the lock unless ctx is already in a
// transaction of this store.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// sortByNumberDesc orders documents newest ticket first. Tickets embed
// ddmmyy, so plain string order is wrong across days.
func sortByNumberDesc[T any](items []T, number func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := numerator.Parse(number(items[i]))
		b, errB := numerator.Parse(number(items[j]))
		if errA != nil || errB != nil {
			return number(items[i]) > number(items[j])
		}
		return numerator.Less(b, a)
	})
}
