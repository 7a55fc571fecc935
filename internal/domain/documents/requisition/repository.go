package requisition

import (
	"context"

	"almacen/internal/core/id"
)

// Repository defines persistence operations for requisitions.
type Repository interface {
	// Create inserts a requisition. Inserting a second pendiente for the same
	// article fails with a concurrent modification error.
	Create(ctx context.Context, r *Requisition) error

	// Update persists a modified requisition.
	Update(ctx context.Context, r *Requisition) error

	// GetByID returns NotFound if absent.
	GetByID(ctx context.Context, requisitionID id.ID) (*Requisition, error)

	// GetForUpdate loads and row-locks a requisition.
	GetForUpdate(ctx context.Context, requisitionID id.ID) (*Requisition, error)

	// GetPendingForUpdate locks the pendiente requisition of an article.
	// Returns nil, nil when the article has none.
	GetPendingForUpdate(ctx context.Context, articleID id.ID) (*Requisition, error)

	// ListPendingByIDsForUpdate locks the pendiente requisitions among ids.
	ListPendingByIDsForUpdate(ctx context.Context, ids []id.ID) ([]*Requisition, error)

	// ListByOrderForUpdate locks every requisition pointing at an order.
	ListByOrderForUpdate(ctx context.Context, orderID id.ID) ([]*Requisition, error)

	// ListByIDs returns requisitions among ids.
	ListByIDs(ctx context.Context, ids []id.ID) ([]*Requisition, error)

	// List returns requisitions matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Requisition, error)

	// AddRequestLink appends a request ↔ requisition link.
	AddRequestLink(ctx context.Context, link *RequestLink) error

	// LinksByRequest returns links of a request ordered by creation.
	LinksByRequest(ctx context.Context, requestID id.ID) ([]RequestLink, error)

	// LinksByRequisition returns links of a requisition ordered by creation.
	LinksByRequisition(ctx context.Context, requisitionID id.ID) ([]RequestLink, error)
}

// ListFilter narrows requisition listings.
type ListFilter struct {
	State           *State
	ArticleID       *id.ID
	RequestID       *id.ID
	PurchaseOrderID *id.ID
	Limit           int
	Offset          int
}
