package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"almacen/internal/core/id"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/infrastructure/storage/postgres"
)

const (
	requisitionTable = "requisitions"
	requestLinkTable = "request_requisitions"
)

// RequisitionRepo implements requisition.Repository. The partial unique
// index uq_requisitions_pending_article rejects a second pendiente per
// article; the violation surfaces as a concurrent modification.
type RequisitionRepo struct {
	table *postgres.Table[requisition.Requisition]
	links *postgres.Table[requisition.RequestLink]
}

var _ requisition.Repository = (*RequisitionRepo)(nil)

// NewRequisitionRepo creates a new requisition repository.
func NewRequisitionRepo(txm *postgres.TxManager) *RequisitionRepo {
	return &RequisitionRepo{
		table: postgres.NewTable[requisition.Requisition](txm, requisitionTable, "requisition"),
		links: postgres.NewTable[requisition.RequestLink](txm, requestLinkTable, "request link"),
	}
}

// Create inserts a requisition.
func (r *RequisitionRepo) Create(ctx context.Context, req *requisition.Requisition) error {
	if err := r.table.Insert(ctx, req); err != nil {
		return fmt.Errorf("create requisition %s: %w", req.Number, err)
	}
	return nil
}

// Update persists a modified requisition.
func (r *RequisitionRepo) Update(ctx context.Context, req *requisition.Requisition) error {
	return r.table.Update(ctx, req, "id", immutableHeader...)
}

// GetByID returns a requisition.
func (r *RequisitionRepo) GetByID(ctx context.Context, requisitionID id.ID) (*requisition.Requisition, error) {
	return r.table.GetByID(ctx, requisitionID, false)
}

// GetForUpdate loads and row-locks a requisition.
func (r *RequisitionRepo) GetForUpdate(ctx context.Context, requisitionID id.ID) (*requisition.Requisition, error) {
	return r.table.GetByID(ctx, requisitionID, true)
}

// GetPendingForUpdate locks the pendiente requisition of an article, if any.
func (r *RequisitionRepo) GetPendingForUpdate(ctx context.Context, articleID id.ID) (*requisition.Requisition, error) {
	rows, err := r.table.Select(ctx, r.table.SelectQuery().
		Where(squirrel.Eq{"article_id": articleID, "state": string(requisition.StatePending)}).
		Limit(1).
		Suffix("FOR UPDATE"))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListPendingByIDsForUpdate locks the pendiente requisitions among ids and
// returns them in the order of ids.
func (r *RequisitionRepo) ListPendingByIDsForUpdate(ctx context.Context, ids []id.ID) ([]*requisition.Requisition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.table.Select(ctx, r.table.SelectQuery().
		Where(squirrel.Eq{"id": ids, "state": string(requisition.StatePending)}).
		OrderBy("id").
		Suffix("FOR UPDATE"))
	if err != nil {
		return nil, err
	}
	return inOrder(ids, rows), nil
}

// ListByOrderForUpdate locks every requisition pointing at an order.
func (r *RequisitionRepo) ListByOrderForUpdate(ctx context.Context, orderID id.ID) ([]*requisition.Requisition, error) {
	return r.table.Select(ctx, r.table.SelectQuery().
		Where(squirrel.Eq{"purchase_order_id": orderID}).
		OrderBy("created_at DESC", "number DESC").
		Suffix("FOR UPDATE"))
}

// ListByIDs returns requisitions among ids in the order of ids.
func (r *RequisitionRepo) ListByIDs(ctx context.Context, ids []id.ID) ([]*requisition.Requisition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.table.Select(ctx, r.table.SelectQuery().Where(squirrel.Eq{"id": ids}))
	if err != nil {
		return nil, err
	}
	return inOrder(ids, rows), nil
}

// List returns requisitions matching the filter, newest first.
func (r *RequisitionRepo) List(ctx context.Context, f requisition.ListFilter) ([]*requisition.Requisition, error) {
	q := r.table.SelectQuery().OrderBy("created_at DESC", "number DESC")
	if f.State != nil {
		q = q.Where(squirrel.Eq{"state": string(*f.State)})
	}
	if f.ArticleID != nil {
		q = q.Where(squirrel.Eq{"article_id": *f.ArticleID})
	}
	if f.PurchaseOrderID != nil {
		q = q.Where(squirrel.Eq{"purchase_order_id": *f.PurchaseOrderID})
	}
	if f.RequestID != nil {
		q = q.Where("id IN (SELECT requisition_id FROM request_requisitions WHERE request_id = ?)", *f.RequestID)
	}
	return r.table.Select(ctx, postgres.Page(q, f.Limit, f.Offset))
}

// AddRequestLink appends a request ↔ requisition link.
func (r *RequisitionRepo) AddRequestLink(ctx context.Context, link *requisition.RequestLink) error {
	if id.IsNil(link.ID) {
		link.ID = id.New()
	}
	return r.links.Insert(ctx, link)
}

// LinksByRequest returns links of a request ordered by creation.
func (r *RequisitionRepo) LinksByRequest(ctx context.Context, requestID id.ID) ([]requisition.RequestLink, error) {
	return r.links.SelectValues(ctx, r.links.SelectQuery().
		Where(squirrel.Eq{"request_id": requestID}).
		OrderBy("created_at", "id"))
}

// LinksByRequisition returns links of a requisition ordered by creation.
func (r *RequisitionRepo) LinksByRequisition(ctx context.Context, requisitionID id.ID) ([]requisition.RequestLink, error) {
	return r.links.SelectValues(ctx, r.links.SelectQuery().
		Where(squirrel.Eq{"requisition_id": requisitionID}).
		OrderBy("created_at", "id"))
}

func inOrder(ids []id.ID, rows []*requisition.Requisition) []*requisition.Requisition {
	byID := make(map[id.ID]*requisition.Requisition, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]*requisition.Requisition, 0, len(rows))
	seen := make(map[id.ID]bool, len(ids))
	for _, rid := range ids {
		if row, ok := byID[rid]; ok && !seen[rid] {
			out = append(out, row)
			seen[rid] = true
		}
	}
	return out
}
