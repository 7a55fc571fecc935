// Package supplier provides the supplier catalog referenced by requisitions and
// purchase orders.
package supplier

import (
	"context"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
)

// Supplier is a vendor purchase orders are addressed to.
type Supplier struct {
	ID     id.ID  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	TaxID  string `db:"tax_id" json:"taxId,omitempty"`
	Email  string `db:"email" json:"email,omitempty"`
	Active bool   `db:"active" json:"active"`
}

// Validate checks catalog invariants.
func (s *Supplier) Validate() error {
	if s.Name == "" {
		return apperror.NewValidation("supplier name is required").WithDetail("field", "name")
	}
	return nil
}

// Repository defines persistence operations for suppliers.
type Repository interface {
	Create(ctx context.Context, s *Supplier) error

	// GetByID returns NotFound if the supplier does not exist.
	GetByID(ctx context.Context, supplierID id.ID) (*Supplier, error)
}
