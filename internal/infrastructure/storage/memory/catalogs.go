package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
)

// ArticleRepo implements article.Repository.
type ArticleRepo struct{ s *Store }

// Articles returns the article repository.
func (s *Store) Articles() *ArticleRepo { return &ArticleRepo{s: s} }

func (r *ArticleRepo) Create(ctx context.Context, a *article.Article) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.articles[a.ID]; ok {
			return apperror.NewDuplicate("article", "id", a.ID.String())
		}
		for _, other := range st.articles {
			if other.Code == a.Code {
				return apperror.NewDuplicate("article", "code", a.Code)
			}
		}
		st.articles[a.ID] = *a
		return nil
	})
}

func (r *ArticleRepo) GetByID(ctx context.Context, articleID id.ID) (*article.Article, error) {
	var out *article.Article
	err := r.s.view(ctx, func(st *state) error {
		a, ok := st.articles[articleID]
		if !ok {
			return apperror.NewNotFound("article", articleID)
		}
		out = &a
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: the store serializes transactions.
func (r *ArticleRepo) GetForUpdate(ctx context.Context, articleID id.ID) (*article.Article, error) {
	return r.GetByID(ctx, articleID)
}

func (r *ArticleRepo) GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*article.Article, error) {
	out := make(map[id.ID]*article.Article, len(ids))
	err := r.s.view(ctx, func(st *state) error {
		for _, aid := range ids {
			if a, ok := st.articles[aid]; ok {
				out[aid] = &a
			}
		}
		return nil
	})
	return out, err
}

func (r *ArticleRepo) UpdateStock(ctx context.Context, articleID id.ID, stock decimal.Decimal) error {
	return r.s.view(ctx, func(st *state) error {
		a, ok := st.articles[articleID]
		if !ok {
			return apperror.NewNotFound("article", articleID)
		}
		a.StockActual = stock
		st.articles[articleID] = a
		return nil
	})
}

func (r *ArticleRepo) List(ctx context.Context, filter article.ListFilter) ([]*article.Article, error) {
	var items []*article.Article
	err := r.s.view(ctx, func(st *state) error {
		search := strings.ToLower(filter.Search)
		for _, a := range st.articles {
			if search != "" && !strings.Contains(strings.ToLower(a.Code+" "+a.Name), search) {
				continue
			}
			if filter.BelowMinimum && !a.StockActual.LessThan(a.MinStock()) {
				continue
			}
			items = append(items, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return page(items, filter.Limit, filter.Offset), nil
}

func (r *ArticleRepo) LinkSupplier(ctx context.Context, link article.SupplierLink) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.articles[link.ArticleID]; !ok {
			return apperror.NewNotFound("article", link.ArticleID)
		}
		links := st.supplierLinks[link.ArticleID]
		kept := make([]article.SupplierLink, 0, len(links)+1)
		for _, l := range links {
			if l.SupplierID == link.SupplierID {
				continue
			}
			if link.Preferred {
				l.Preferred = false
			}
			kept = append(kept, l)
		}
		st.supplierLinks[link.ArticleID] = append(kept, link)
		return nil
	})
}

func (r *ArticleRepo) SupplierLinks(ctx context.Context, articleID id.ID) ([]article.SupplierLink, error) {
	var out []article.SupplierLink
	err := r.s.view(ctx, func(st *state) error {
		out = append(out, st.supplierLinks[articleID]...)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].LinkedAt.Before(out[j].LinkedAt) })
	return out, err
}

// SupplierRepo implements supplier.Repository.
type SupplierRepo struct{ s *Store }

// Suppliers returns the supplier repository.
func (s *Store) Suppliers() *SupplierRepo { return &SupplierRepo{s: s} }

func (r *SupplierRepo) Create(ctx context.Context, sp *supplier.Supplier) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.suppliers[sp.ID]; ok {
			return apperror.NewDuplicate("supplier", "id", sp.ID.String())
		}
		st.suppliers[sp.ID] = *sp
		return nil
	})
}

func (r *SupplierRepo) GetByID(ctx context.Context, supplierID id.ID) (*supplier.Supplier, error) {
	var out *supplier.Supplier
	err := r.s.view(ctx, func(st *state) error {
		sp, ok := st.suppliers[supplierID]
		if !ok {
			return apperror.NewNotFound("supplier", supplierID)
		}
		out = &sp
		return nil
	})
	return out, err
}

// EquipoRepo implements equipo.Repository.
type EquipoRepo struct{ s *Store }

// Equipos returns the equipo repository.
func (s *Store) Equipos() *EquipoRepo { return &EquipoRepo{s: s} }

func (r *EquipoRepo) Create(ctx context.Context, e *equipo.Equipo) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.equipos[e.ID]; ok {
			return apperror.NewDuplicate("equipo", "id", e.ID.String())
		}
		st.equipos[e.ID] = *e
		return nil
	})
}

func (r *EquipoRepo) GetByID(ctx context.Context, equipoID id.ID) (*equipo.Equipo, error) {
	var out *equipo.Equipo
	err := r.s.view(ctx, func(st *state) error {
		e, ok := st.equipos[equipoID]
		if !ok {
			return apperror.NewNotFound("equipo", equipoID)
		}
		out = &e
		return nil
	})
	return out, err
}

var (
	_ article.Repository  = (*ArticleRepo)(nil)
	_ supplier.Repository = (*SupplierRepo)(nil)
	_ equipo.Repository   = (*EquipoRepo)(nil)
)
