package catalog_repo

import (
	"context"
	"fmt"

	"almacen/internal/core/id"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/infrastructure/storage/postgres"
)

const supplierTable = "suppliers"

// SupplierRepo implements supplier.Repository.
type SupplierRepo struct {
	table *postgres.Table[supplier.Supplier]
}

var _ supplier.Repository = (*SupplierRepo)(nil)

// NewSupplierRepo creates a new supplier repository.
func NewSupplierRepo(txm *postgres.TxManager) *SupplierRepo {
	return &SupplierRepo{table: postgres.NewTable[supplier.Supplier](txm, supplierTable, "supplier")}
}

// Create inserts a supplier.
func (r *SupplierRepo) Create(ctx context.Context, s *supplier.Supplier) error {
	if err := r.table.Insert(ctx, s); err != nil {
		return fmt.Errorf("create supplier: %w", err)
	}
	return nil
}

// GetByID retrieves a supplier.
func (r *SupplierRepo) GetByID(ctx context.Context, supplierID id.ID) (*supplier.Supplier, error) {
	return r.table.GetByID(ctx, supplierID, false)
}
