package request

import (
	"context"

	"almacen/internal/core/id"
)

// Repository defines persistence operations for requests.
type Repository interface {
	// Create inserts the request header.
	Create(ctx context.Context, r *Request) error

	// Update persists the header.
	Update(ctx context.Context, r *Request) error

	// SaveLines replaces every line of a request.
	SaveLines(ctx context.Context, requestID id.ID, lines []Line) error

	// GetByID returns the header. NotFound if absent.
	GetByID(ctx context.Context, requestID id.ID) (*Request, error)

	// GetForUpdate returns the row-locked header.
	GetForUpdate(ctx context.Context, requestID id.ID) (*Request, error)

	// GetLines returns the lines ordered by line number.
	GetLines(ctx context.Context, requestID id.ID) ([]Line, error)

	// List returns headers matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Request, error)
}
