// Package catalog_repo provides PostgreSQL implementations for catalog repositories.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/infrastructure/storage/postgres"
)

const (
	articleTable         = "articles"
	articleSupplierTable = "article_suppliers"
)

// ArticleRepo implements article.Repository.
type ArticleRepo struct {
	txm   *postgres.TxManager
	table *postgres.Table[article.Article]
	links *postgres.Table[article.SupplierLink]
}

var _ article.Repository = (*ArticleRepo)(nil)

// NewArticleRepo creates a new article repository.
func NewArticleRepo(txm *postgres.TxManager) *ArticleRepo {
	return &ArticleRepo{
		txm:   txm,
		table: postgres.NewTable[article.Article](txm, articleTable, "article"),
		links: postgres.NewTable[article.SupplierLink](txm, articleSupplierTable, "supplier link"),
	}
}

// Create inserts a new article.
func (r *ArticleRepo) Create(ctx context.Context, a *article.Article) error {
	if err := r.table.Insert(ctx, a); err != nil {
		return fmt.Errorf("create article %s: %w", a.Code, err)
	}
	return nil
}

// GetByID retrieves an article.
func (r *ArticleRepo) GetByID(ctx context.Context, articleID id.ID) (*article.Article, error) {
	return r.table.GetByID(ctx, articleID, false)
}

// GetForUpdate retrieves an article with SELECT ... FOR UPDATE.
func (r *ArticleRepo) GetForUpdate(ctx context.Context, articleID id.ID) (*article.Article, error) {
	return r.table.GetByID(ctx, articleID, true)
}

// GetByIDs retrieves several articles keyed by id.
func (r *ArticleRepo) GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*article.Article, error) {
	out := make(map[id.ID]*article.Article, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.table.Select(ctx, r.table.SelectQuery().Where(squirrel.Eq{"id": ids}))
	if err != nil {
		return nil, err
	}
	for _, a := range rows {
		out[a.ID] = a
	}
	return out, nil
}

// UpdateStock persists a new stock value.
func (r *ArticleRepo) UpdateStock(ctx context.Context, articleID id.ID, stock decimal.Decimal) error {
	n, err := r.table.Exec(ctx, postgres.Builder().
		Update(articleTable).
		Set("stock_actual", stock).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": articleID}))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("article", articleID)
	}
	return nil
}

// List returns articles ordered by code.
func (r *ArticleRepo) List(ctx context.Context, filter article.ListFilter) ([]*article.Article, error) {
	q := r.table.SelectQuery().OrderBy("code")
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		q = q.Where("lower(code || ' ' || name) LIKE ?", pattern)
	}
	if filter.BelowMinimum {
		q = q.Where("stock_actual < COALESCE(stock_minimo, ?)", article.DefaultStockMinimo)
	}
	return r.table.Select(ctx, postgres.Page(q, filter.Limit, filter.Offset))
}

// LinkSupplier adds or replaces a supplier link. A preferred link demotes
// the other links of the article.
func (r *ArticleRepo) LinkSupplier(ctx context.Context, link article.SupplierLink) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.table.GetByID(ctx, link.ArticleID, true); err != nil {
			return err
		}
		if link.Preferred {
			_, err := r.links.Exec(ctx, postgres.Builder().
				Update(articleSupplierTable).
				Set("preferred", false).
				Where(squirrel.Eq{"article_id": link.ArticleID}))
			if err != nil {
				return err
			}
		}
		_, err := r.links.Exec(ctx, postgres.Builder().
			Insert(articleSupplierTable).
			Columns(r.links.Columns()...).
			Values(postgres.Values(&link, r.links.Columns())...).
			Suffix("ON CONFLICT (article_id, supplier_id) DO UPDATE SET preferred = EXCLUDED.preferred, linked_at = EXCLUDED.linked_at"))
		return err
	})
}

// SupplierLinks returns the links of an article ordered by LinkedAt.
func (r *ArticleRepo) SupplierLinks(ctx context.Context, articleID id.ID) ([]article.SupplierLink, error) {
	q := r.links.SelectQuery().
		Where(squirrel.Eq{"article_id": articleID}).
		OrderBy("linked_at")
	return r.links.SelectValues(ctx, q)
}
