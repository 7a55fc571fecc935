package article

import (
	"context"
	"fmt"
	"sort"

	"almacen/internal/core/id"
)

// DetectSupplier picks the supplier a requisition for a should be routed to:
// preferred linked supplier, then first linked supplier, then the direct
// supplier, then the supplier inherited from the migrated tool record.
// Returns nil when none applies.
func DetectSupplier(a *Article, links []SupplierLink) *id.ID {
	ordered := make([]SupplierLink, len(links))
	copy(ordered, links)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LinkedAt.Before(ordered[j].LinkedAt)
	})

	for _, l := range ordered {
		if l.Preferred {
			return id.Ptr(l.SupplierID)
		}
	}
	if len(ordered) > 0 {
		return id.Ptr(ordered[0].SupplierID)
	}
	if a.SupplierID != nil && !id.IsNil(*a.SupplierID) {
		return id.Ptr(*a.SupplierID)
	}
	if a.LegacySupplierID != nil && !id.IsNil(*a.LegacySupplierID) {
		return id.Ptr(*a.LegacySupplierID)
	}
	return nil
}

// SupplierResolver resolves an article to zero or one supplier.
type SupplierResolver struct {
	repo Repository
}

// NewSupplierResolver creates a resolver backed by the article repository.
func NewSupplierResolver(repo Repository) *SupplierResolver {
	return &SupplierResolver{repo: repo}
}

// Resolve loads the article's links and applies DetectSupplier.
func (r *SupplierResolver) Resolve(ctx context.Context, a *Article) (*id.ID, error) {
	links, err := r.repo.SupplierLinks(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("supplier links: %w", err)
	}
	return DetectSupplier(a, links), nil
}
