package app

import (
	"fmt"

	"almacen/internal/infrastructure/numerator"
	"almacen/internal/infrastructure/storage/postgres"
	"almacen/internal/infrastructure/storage/postgres/catalog_repo"
	"almacen/internal/infrastructure/storage/postgres/document_repo"
	"almacen/internal/infrastructure/storage/postgres/register_repo"
)

// PostgresStores binds every repository to the transaction manager.
func PostgresStores(txm *postgres.TxManager) (Stores, error) {
	journal, err := postgres.NewJournal(txm)
	if err != nil {
		return Stores{}, fmt.Errorf("create journal: %w", err)
	}
	return Stores{
		TxManager:    txm,
		Articles:     catalog_repo.NewArticleRepo(txm),
		Suppliers:    catalog_repo.NewSupplierRepo(txm),
		Equipos:      catalog_repo.NewEquipoRepo(txm),
		Movements:    register_repo.NewMovementRepo(txm),
		Requests:     document_repo.NewRequestRepo(txm),
		Requisitions: document_repo.NewRequisitionRepo(txm),
		Orders:       document_repo.NewOrderRepo(txm),
		Journal:      journal,
		Numerator:    numerator.NewFromTxManager(txm),
	}, nil
}

// NewPostgres wires the services on PostgreSQL. When opts.Sink is nil,
// notifications are queued in the outbox for the worker.
func NewPostgres(txm *postgres.TxManager, opts Options) (*App, error) {
	stores, err := PostgresStores(txm)
	if err != nil {
		return nil, err
	}
	if opts.Sink == nil {
		opts.Sink = postgres.NewOutboxSink(txm)
	}
	return New(stores, opts), nil
}
