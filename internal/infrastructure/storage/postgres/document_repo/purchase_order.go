package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/infrastructure/storage/postgres"
)

const (
	orderTable       = "purchase_orders"
	orderLineTable   = "purchase_order_lines"
	orderSourceTable = "purchase_order_sources"
)

type orderLineRow struct {
	OrderID id.ID `db:"order_id"`
	purchase_order.Line
}

// OrderRepo implements purchase_order.Repository.
type OrderRepo struct {
	table   *postgres.Table[purchase_order.PurchaseOrder]
	lines   *postgres.Table[orderLineRow]
	sources *postgres.Table[purchase_order.Source]
}

var _ purchase_order.Repository = (*OrderRepo)(nil)

// NewOrderRepo creates a new purchase order repository.
func NewOrderRepo(txm *postgres.TxManager) *OrderRepo {
	return &OrderRepo{
		table:   postgres.NewTable[purchase_order.PurchaseOrder](txm, orderTable, "purchase order"),
		lines:   postgres.NewTable[orderLineRow](txm, orderLineTable, "purchase order line"),
		sources: postgres.NewTable[purchase_order.Source](txm, orderSourceTable, "purchase order source"),
	}
}

// Create inserts the order header.
func (r *OrderRepo) Create(ctx context.Context, o *purchase_order.PurchaseOrder) error {
	if err := r.table.Insert(ctx, o); err != nil {
		return fmt.Errorf("create purchase order %s: %w", o.Number, err)
	}
	return nil
}

// Update persists the header.
func (r *OrderRepo) Update(ctx context.Context, o *purchase_order.PurchaseOrder) error {
	return r.table.Update(ctx, o, "id", immutableHeader...)
}

// SaveLines replaces the lines of an order.
func (r *OrderRepo) SaveLines(ctx context.Context, orderID id.ID, lines []purchase_order.Line) error {
	if _, err := r.lines.Exec(ctx, postgres.Builder().
		Delete(orderLineTable).
		Where(squirrel.Eq{"order_id": orderID})); err != nil {
		return err
	}
	rows := make([]orderLineRow, len(lines))
	for i, l := range lines {
		rows[i] = orderLineRow{OrderID: orderID, Line: l}
	}
	return r.lines.InsertMany(ctx, rows)
}

// AddSources appends requisition sources.
func (r *OrderRepo) AddSources(ctx context.Context, sources []purchase_order.Source) error {
	return r.sources.InsertMany(ctx, sources)
}

// DetachSource flags an attached source as severed.
func (r *OrderRepo) DetachSource(ctx context.Context, orderID, requisitionID id.ID, reason string, at time.Time) error {
	n, err := r.sources.Exec(ctx, postgres.Builder().
		Update(orderSourceTable).
		Set("detached", true).
		Set("detached_at", at).
		Set("detach_reason", reason).
		Where(squirrel.Eq{"order_id": orderID, "requisition_id": requisitionID, "detached": false}))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("purchase order source", requisitionID)
	}
	return nil
}

// GetByID returns the header.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*purchase_order.PurchaseOrder, error) {
	return r.table.GetByID(ctx, orderID, false)
}

// GetForUpdate returns the row-locked header.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*purchase_order.PurchaseOrder, error) {
	return r.table.GetByID(ctx, orderID, true)
}

// GetLines returns the lines ordered by line number.
func (r *OrderRepo) GetLines(ctx context.Context, orderID id.ID) ([]purchase_order.Line, error) {
	rows, err := r.lines.SelectValues(ctx, r.lines.SelectQuery().
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("line_no"))
	if err != nil {
		return nil, err
	}
	out := make([]purchase_order.Line, len(rows))
	for i := range rows {
		out[i] = rows[i].Line
	}
	return out, nil
}

// GetSources returns every source of an order, detached ones included.
func (r *OrderRepo) GetSources(ctx context.Context, orderID id.ID) ([]purchase_order.Source, error) {
	return r.sources.SelectValues(ctx, r.sources.SelectQuery().
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("requisition_number"))
}

// SourcesByRequisitions returns every source row of the given requisitions.
func (r *OrderRepo) SourcesByRequisitions(ctx context.Context, requisitionIDs []id.ID) ([]purchase_order.Source, error) {
	if len(requisitionIDs) == 0 {
		return []purchase_order.Source{}, nil
	}
	return r.sources.SelectValues(ctx, r.sources.SelectQuery().
		Where(squirrel.Eq{"requisition_id": requisitionIDs}).
		OrderBy("requisition_number", "order_id"))
}

// List returns headers matching the filter, newest first.
func (r *OrderRepo) List(ctx context.Context, f purchase_order.ListFilter) ([]*purchase_order.PurchaseOrder, error) {
	q := r.table.SelectQuery().OrderBy("created_at DESC", "number DESC")
	if f.State != nil {
		q = q.Where(squirrel.Eq{"state": string(*f.State)})
	}
	if f.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *f.SupplierID})
	}
	if f.ArticleID != nil {
		q = q.Where("EXISTS (SELECT 1 FROM purchase_order_lines l WHERE l.order_id = purchase_orders.id AND l.article_id = ?)", *f.ArticleID)
	}
	return r.table.Select(ctx, postgres.Page(q, f.Limit, f.Offset))
}
