package dto

import (
	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/requisition"
)

// CreateOrderRequest is the body of POST /ordenes.
type CreateOrderRequest struct {
	SupplierID id.ID              `json:"supplierId" binding:"required"`
	Notes      string             `json:"notes"`
	Lines      []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// OrderLineRequest is one manually ordered article.
type OrderLineRequest struct {
	ArticleID id.ID            `json:"articleId" binding:"required"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unitCost"`
}

// ToInput maps the body to the service input.
func (r CreateOrderRequest) ToInput() purchase_order.CreateInput {
	lines := make([]purchase_order.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = purchase_order.LineInput{ArticleID: l.ArticleID, Quantity: l.Quantity, UnitCost: l.UnitCost}
	}
	return purchase_order.CreateInput{SupplierID: r.SupplierID, Notes: r.Notes, Lines: lines}
}

// OrderFromRequisitionsRequest is the body of POST /ordenes/desde-solicitudes.
type OrderFromRequisitionsRequest struct {
	RequisitionIDs []id.ID `json:"requisitionIds" binding:"required,min=1"`
	SupplierID     *id.ID  `json:"supplierId"`

	// Overrides maps article id to the quantity to order instead of the grouped one.
	Overrides map[string]decimal.Decimal `json:"overrides"`
	Notes     string                     `json:"notes"`
}

// ToInput maps the body to the service input.
func (r OrderFromRequisitionsRequest) ToInput() (purchase_order.FromRequisitionsInput, error) {
	in := purchase_order.FromRequisitionsInput{
		RequisitionIDs: r.RequisitionIDs,
		SupplierID:     r.SupplierID,
		Notes:          r.Notes,
	}
	if len(r.Overrides) > 0 {
		in.Overrides = make(map[id.ID]decimal.Decimal, len(r.Overrides))
		for raw, qty := range r.Overrides {
			articleID, err := id.Parse(raw)
			if err != nil {
				return in, apperror.NewValidation("invalid override article id").WithDetail("articleId", raw)
			}
			in.Overrides[articleID] = qty
		}
	}
	return in, nil
}

// UpdateOrderStateRequest routes an order to another state.
type UpdateOrderStateRequest struct {
	State string `json:"state" binding:"required"`
}

// ReceiptRequest registers received quantities.
type ReceiptRequest struct {
	Lines []ReceiptLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ReceiptLineRequest is the received quantity of one article.
type ReceiptLineRequest struct {
	ArticleID id.ID           `json:"articleId" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ToLines maps the body to receipt lines.
func (r ReceiptRequest) ToLines() []purchase_order.ReceiptLine {
	out := make([]purchase_order.ReceiptLine, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = purchase_order.ReceiptLine{ArticleID: l.ArticleID, Quantity: l.Quantity}
	}
	return out
}

// OrderListQuery are the filters of GET /ordenes.
type OrderListQuery struct {
	PaginationRequest
	State      string `form:"state"`
	SupplierID string `form:"supplierId"`
	ArticleID  string `form:"articleId"`
}

// ToFilter validates the query and maps it to the repository filter.
func (q OrderListQuery) ToFilter() (purchase_order.ListFilter, error) {
	f := purchase_order.ListFilter{Limit: q.Limit, Offset: q.Offset}
	if q.State != "" {
		s := purchase_order.State(q.State)
		if !s.Valid() {
			return f, apperror.NewValidation("unknown order state").WithDetail("state", q.State)
		}
		f.State = &s
	}
	var err error
	if f.SupplierID, err = ParseOptionalID("supplierId", q.SupplierID); err != nil {
		return f, err
	}
	if f.ArticleID, err = ParseOptionalID("articleId", q.ArticleID); err != nil {
		return f, err
	}
	return f, nil
}

// RequisitionListQuery are the filters of GET /solicitudes.
type RequisitionListQuery struct {
	PaginationRequest
	State           string `form:"state"`
	ArticleID       string `form:"articleId"`
	RequestID       string `form:"requestId"`
	PurchaseOrderID string `form:"orderId"`
}

// ToFilter validates the query and maps it to the repository filter.
func (q RequisitionListQuery) ToFilter() (requisition.ListFilter, error) {
	f := requisition.ListFilter{Limit: q.Limit, Offset: q.Offset}
	if q.State != "" {
		s := requisition.State(q.State)
		if !s.Valid() {
			return f, apperror.NewValidation("unknown requisition state").WithDetail("state", q.State)
		}
		f.State = &s
	}
	var err error
	if f.ArticleID, err = ParseOptionalID("articleId", q.ArticleID); err != nil {
		return f, err
	}
	if f.RequestID, err = ParseOptionalID("requestId", q.RequestID); err != nil {
		return f, err
	}
	if f.PurchaseOrderID, err = ParseOptionalID("orderId", q.PurchaseOrderID); err != nil {
		return f, err
	}
	return f, nil
}
