package purchase_order

import (
	"context"
	"time"

	"almacen/internal/core/id"
)

// Repository defines persistence operations for purchase orders.
type Repository interface {
	Create(ctx context.Context, o *PurchaseOrder) error
	Update(ctx context.Context, o *PurchaseOrder) error

	// SaveLines replaces the lines of an order.
	SaveLines(ctx context.Context, orderID id.ID, lines []Line) error

	// AddSources appends requisition sources.
	AddSources(ctx context.Context, sources []Source) error

	// DetachSource flags the link between an order and a requisition as severed.
	DetachSource(ctx context.Context, orderID, requisitionID id.ID, reason string, at time.Time) error

	// GetByID returns the header. NotFound if absent.
	GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error)

	// GetForUpdate returns the row-locked header.
	GetForUpdate(ctx context.Context, orderID id.ID) (*PurchaseOrder, error)

	GetLines(ctx context.Context, orderID id.ID) ([]Line, error)
	GetSources(ctx context.Context, orderID id.ID) ([]Source, error)

	// SourcesByRequisitions returns every source row of the given requisitions.
	SourcesByRequisitions(ctx context.Context, requisitionIDs []id.ID) ([]Source, error)

	// List returns headers matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*PurchaseOrder, error)
}
