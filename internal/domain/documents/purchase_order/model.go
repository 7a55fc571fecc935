// Package purchase_order provides supplier purchase orders (órdenes de compra)
// folded from pending requisitions or entered manually.
package purchase_order

import (
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/entity"
	"almacen/internal/core/id"
	"almacen/internal/core/types"
)

// State is the order lifecycle state.
type State string

const (
	StateDraft     State = "borrador"
	StateSent      State = "enviada"
	StatePartial   State = "parcial"
	StateReceived  State = "recibida"
	StateCancelled State = "cancelada"
)

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateSent, StatePartial, StateReceived, StateCancelled:
		return true
	}
	return false
}

// PurchaseOrder is an order addressed to one supplier.
type PurchaseOrder struct {
	entity.Document

	SupplierID id.ID           `db:"supplier_id" json:"supplierId"`
	State      State           `db:"state" json:"state"`
	Total      decimal.Decimal `db:"total" json:"total"`
	Notes      string          `db:"notes" json:"notes,omitempty"`

	SentAt       *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	SentBy       string     `db:"sent_by" json:"sentBy,omitempty"`
	ReceivedAt   *time.Time `db:"received_at" json:"receivedAt,omitempty"`
	ReceivedBy   string     `db:"received_by" json:"receivedBy,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelledBy  string     `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`

	Lines   []Line   `db:"-" json:"lines"`
	Sources []Source `db:"-" json:"sources"`
}

// Line is one ordered article.
type Line struct {
	LineID           id.ID           `db:"line_id" json:"lineId"`
	LineNo           int             `db:"line_no" json:"lineNo"`
	ArticleID        id.ID           `db:"article_id" json:"articleId"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	QuantityReceived decimal.Decimal `db:"quantity_received" json:"quantityReceived"`
	UnitCost         decimal.Decimal `db:"unit_cost" json:"unitCost"`
	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Outstanding returns the quantity not yet received.
func (l *Line) Outstanding() decimal.Decimal {
	return l.Quantity.Sub(l.QuantityReceived)
}

// Source links an order to a requisition folded into it.
// A detached source belonged to a requisition cancelled by a request annulment.
type Source struct {
	OrderID           id.ID           `db:"order_id" json:"orderId"`
	RequisitionID     id.ID           `db:"requisition_id" json:"requisitionId"`
	RequisitionNumber string          `db:"requisition_number" json:"requisitionNumber"`
	ArticleID         id.ID           `db:"article_id" json:"articleId"`
	Quantity          decimal.Decimal `db:"quantity" json:"quantity"`
	Detached          bool            `db:"detached" json:"detached"`
	DetachedAt        *time.Time      `db:"detached_at" json:"detachedAt,omitempty"`
	DetachReason      string          `db:"detach_reason" json:"detachReason,omitempty"`
}

// Recalculate sets every subtotal and the order total.
func (o *PurchaseOrder) Recalculate() {
	total := decimal.Zero
	for i := range o.Lines {
		o.Lines[i].Subtotal = types.LineTotal(o.Lines[i].Quantity, o.Lines[i].UnitCost)
		total = total.Add(o.Lines[i].Subtotal)
	}
	o.Total = total
}

// LineByArticle returns the line ordering articleID.
func (o *PurchaseOrder) LineByArticle(articleID id.ID) (*Line, error) {
	for i := range o.Lines {
		if o.Lines[i].ArticleID == articleID {
			return &o.Lines[i], nil
		}
	}
	return nil, apperror.NewNotFound("purchase order line", articleID.String())
}

// FullyReceived reports whether every line has been received in full.
func (o *PurchaseOrder) FullyReceived() bool {
	for i := range o.Lines {
		if o.Lines[i].Outstanding().IsPositive() {
			return false
		}
	}
	return len(o.Lines) > 0
}

// HasReceipts reports whether any quantity has been received.
func (o *PurchaseOrder) HasReceipts() bool {
	for i := range o.Lines {
		if o.Lines[i].QuantityReceived.IsPositive() {
			return true
		}
	}
	return false
}

func (o *PurchaseOrder) transitionError(to State) *apperror.AppError {
	return apperror.NewInvalidTransition("purchase order", o.State, to).WithDetail("number", o.Number)
}

// Send moves a draft to enviada.
func (o *PurchaseOrder) Send(actor string, at time.Time) error {
	if o.State != StateDraft {
		return o.transitionError(StateSent)
	}
	o.State = StateSent
	o.SentAt = &at
	o.SentBy = actor
	o.Touch(actor, at)
	return nil
}

// SetState applies a manual state change. Cancellation goes through the
// order annulment, and a received or cancelled order no longer moves.
func (o *PurchaseOrder) SetState(to State, actor string, at time.Time) error {
	if !to.Valid() {
		return apperror.NewValidation("unknown purchase order state").WithDetail("state", string(to))
	}
	if to == StateCancelled {
		return apperror.NewPrecondition("use the order annulment to cancel a purchase order").
			WithDetail("number", o.Number)
	}
	if o.State == StateReceived || o.State == StateCancelled {
		return o.transitionError(to)
	}
	o.State = to
	switch to {
	case StateSent:
		if o.SentAt == nil {
			o.SentAt = &at
			o.SentBy = actor
		}
	case StateReceived:
		o.ReceivedAt = &at
		o.ReceivedBy = actor
	}
	o.Touch(actor, at)
	return nil
}

// Cancel moves the order to cancelada.
func (o *PurchaseOrder) Cancel(actor, reason string, at time.Time) error {
	if o.State == StateCancelled {
		return o.transitionError(StateCancelled)
	}
	o.State = StateCancelled
	o.CancelledAt = &at
	o.CancelledBy = actor
	o.CancelReason = reason
	o.Touch(actor, at)
	return nil
}

// ListFilter narrows order listings.
type ListFilter struct {
	State      *State
	SupplierID *id.ID
	ArticleID  *id.ID
	Limit      int
	Offset     int
}
