// Package requisition provides purchase requisitions (solicitudes de compra):
// one pending need to buy an article, merged from every trigger that draws it
// below its thresholds.
package requisition

import (
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/entity"
	"almacen/internal/core/id"
)

// State is the requisition lifecycle state.
type State string

const (
	StatePending   State = "pendiente"
	StateInOrder   State = "en_orden"
	StateCompleted State = "completada"
	StateCancelled State = "cancelada"
)

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateInOrder, StateCompleted, StateCancelled:
		return true
	}
	return false
}

// Priority orders requisitions for purchasing.
type Priority string

const (
	PriorityHigh   Priority = "alta"
	PriorityMedium Priority = "media"
	PriorityLow    Priority = "baja"
)

// Requisition is a purchase need for one article.
type Requisition struct {
	entity.Document

	ArticleID id.ID           `db:"article_id" json:"articleId"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	State     State           `db:"state" json:"state"`
	Priority  Priority        `db:"priority" json:"priority"`

	// RequestID is the request that first spawned this requisition.
	RequestID     *id.ID `db:"request_id" json:"requestId,omitempty"`
	RequestNumber string `db:"request_number" json:"requestNumber,omitempty"`

	PurchaseOrderID *id.ID `db:"purchase_order_id" json:"purchaseOrderId,omitempty"`
	SupplierID      *id.ID `db:"supplier_id" json:"supplierId,omitempty"`

	// Motive describes the trigger; later events go to the journal.
	Motive string `db:"motive" json:"motive"`

	CompletedAt  *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelledBy  string     `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`
}

// Cancel moves a pending or in-order requisition to cancelada.
func (r *Requisition) Cancel(actor, reason string, at time.Time) error {
	if r.State != StatePending && r.State != StateInOrder {
		return apperror.NewInvalidTransition("requisition", r.State, StateCancelled).
			WithDetail("number", r.Number)
	}
	r.State = StateCancelled
	r.CancelledAt = &at
	r.CancelledBy = actor
	r.CancelReason = reason
	r.Touch(actor, at)
	return nil
}

// AssignToOrder moves a pending requisition into an order.
func (r *Requisition) AssignToOrder(orderID id.ID, actor string, at time.Time) error {
	if r.State != StatePending {
		return apperror.NewInvalidTransition("requisition", r.State, StateInOrder).
			WithDetail("number", r.Number)
	}
	r.State = StateInOrder
	r.PurchaseOrderID = id.Ptr(orderID)
	r.Touch(actor, at)
	return nil
}

// Complete marks an in-order requisition as fulfilled.
func (r *Requisition) Complete(actor string, at time.Time) error {
	if r.State != StateInOrder {
		return apperror.NewInvalidTransition("requisition", r.State, StateCompleted).
			WithDetail("number", r.Number)
	}
	r.State = StateCompleted
	r.CompletedAt = &at
	r.Touch(actor, at)
	return nil
}

// ReturnToPending releases an in-order requisition from its order.
func (r *Requisition) ReturnToPending(actor string, at time.Time) error {
	if r.State != StateInOrder {
		return apperror.NewInvalidTransition("requisition", r.State, StatePending).
			WithDetail("number", r.Number)
	}
	r.State = StatePending
	r.PurchaseOrderID = nil
	r.Touch(actor, at)
	return nil
}

// LinkAction records what a trigger did to a requisition.
type LinkAction string

const (
	LinkCreated LinkAction = "created"
	LinkUpdated LinkAction = "updated"
)

// RequestLink ties a request to a requisition it created or fed.
type RequestLink struct {
	ID            id.ID           `db:"id" json:"id"`
	RequestID     id.ID           `db:"request_id" json:"requestId"`
	RequisitionID id.ID           `db:"requisition_id" json:"requisitionId"`
	Action        LinkAction      `db:"action" json:"action"`
	Delta         decimal.Decimal `db:"delta" json:"delta"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}
