package article

import (
	"context"

	"github.com/shopspring/decimal"

	"almacen/internal/core/id"
)

// Repository defines persistence operations for articles.
type Repository interface {
	// Create inserts a new article.
	Create(ctx context.Context, a *Article) error

	// GetByID retrieves an article. Returns NotFound if absent.
	GetByID(ctx context.Context, articleID id.ID) (*Article, error)

	// GetForUpdate retrieves an article with a row lock held until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, articleID id.ID) (*Article, error)

	// GetByIDs retrieves several articles keyed by id; missing ids are omitted.
	GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*Article, error)

	// UpdateStock persists a new stock value.
	UpdateStock(ctx context.Context, articleID id.ID, stock decimal.Decimal) error

	// List returns articles matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Article, error)

	// LinkSupplier adds or replaces a supplier link.
	LinkSupplier(ctx context.Context, link SupplierLink) error

	// SupplierLinks returns the links of an article ordered by LinkedAt.
	SupplierLinks(ctx context.Context, articleID id.ID) ([]SupplierLink, error)
}

// ListFilter narrows article listings.
type ListFilter struct {
	Search       string
	BelowMinimum bool
	Limit        int
	Offset       int
}
