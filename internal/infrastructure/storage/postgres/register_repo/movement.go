// Package register_repo provides the PostgreSQL stock ledger.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"almacen/internal/core/id"
	"almacen/internal/domain/registers/stock"
	"almacen/internal/infrastructure/storage/postgres"
)

const stockMovementsTable = "reg_stock_movements"

// MovementRepo implements stock.Repository on reg_stock_movements.
type MovementRepo struct {
	table *postgres.Table[stock.Movement]
}

var _ stock.Repository = (*MovementRepo)(nil)

// NewMovementRepo creates a new stock movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{table: postgres.NewTable[stock.Movement](txm, stockMovementsTable, "movement")}
}

// CreateMovement appends a movement.
func (r *MovementRepo) CreateMovement(ctx context.Context, m *stock.Movement) error {
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	if err := r.table.Insert(ctx, m); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// ListMovements returns movements ordered by creation.
func (r *MovementRepo) ListMovements(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	q := r.table.SelectQuery().OrderBy("created_at", "id")

	if f.ArticleID != nil {
		q = q.Where(squirrel.Eq{"article_id": *f.ArticleID})
	}
	if f.OriginType != nil {
		q = q.Where(squirrel.Eq{"origin_type": string(*f.OriginType)})
	}
	if f.OriginID != nil {
		q = q.Where(squirrel.Eq{"origin_id": *f.OriginID})
	}
	if f.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.FromDate})
	}
	if f.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.ToDate})
	}

	return r.table.SelectValues(ctx, postgres.Page(q, f.Limit, f.Offset))
}
