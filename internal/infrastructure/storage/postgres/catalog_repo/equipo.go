package catalog_repo

import (
	"context"
	"fmt"

	"almacen/internal/core/id"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/infrastructure/storage/postgres"
)

const equipoTable = "equipos"

// EquipoRepo implements equipo.Repository.
type EquipoRepo struct {
	table *postgres.Table[equipo.Equipo]
}

var _ equipo.Repository = (*EquipoRepo)(nil)

// NewEquipoRepo creates a new equipo repository.
func NewEquipoRepo(txm *postgres.TxManager) *EquipoRepo {
	return &EquipoRepo{table: postgres.NewTable[equipo.Equipo](txm, equipoTable, "equipo")}
}

// Create inserts an equipo.
func (r *EquipoRepo) Create(ctx context.Context, e *equipo.Equipo) error {
	if err := r.table.Insert(ctx, e); err != nil {
		return fmt.Errorf("create equipo %s: %w", e.Code, err)
	}
	return nil
}

// GetByID retrieves an equipo.
func (r *EquipoRepo) GetByID(ctx context.Context, equipoID id.ID) (*equipo.Equipo, error) {
	return r.table.GetByID(ctx, equipoID, false)
}
