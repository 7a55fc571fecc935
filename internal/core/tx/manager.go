// Package tx defines the transaction contract domain services depend on.
// Implementations live in infrastructure/storage (postgres and memory).
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// If fn returns an error every write made through repositories bound to ctx is
// discarded. Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
