package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/domain/registers/stock"
)

// CreateArticleRequest is the body of POST /articulos.
type CreateArticleRequest struct {
	Code        string              `json:"code" binding:"required"`
	Name        string              `json:"name" binding:"required"`
	Unit        string              `json:"unit"`
	StockActual decimal.Decimal     `json:"stockActual"`
	StockMinimo decimal.NullDecimal `json:"stockMinimo"`
	StockMaximo decimal.NullDecimal `json:"stockMaximo"`
	UnitCost    decimal.Decimal     `json:"unitCost"`
	SupplierID  *id.ID              `json:"supplierId"`
}

// ToArticle maps the body to a new article.
func (r CreateArticleRequest) ToArticle(now time.Time) *article.Article {
	return &article.Article{
		ID:          id.New(),
		Code:        r.Code,
		Name:        r.Name,
		Unit:        r.Unit,
		StockActual: r.StockActual,
		StockMinimo: r.StockMinimo,
		StockMaximo: r.StockMaximo,
		UnitCost:    r.UnitCost,
		SupplierID:  r.SupplierID,
		UpdatedAt:   now,
	}
}

// ArticleListQuery are the filters of GET /articulos.
type ArticleListQuery struct {
	PaginationRequest
	Search       string `form:"search"`
	BelowMinimum bool   `form:"belowMinimum"`
}

// ToFilter maps the query to the repository filter.
func (q ArticleListQuery) ToFilter() article.ListFilter {
	return article.ListFilter{Search: q.Search, BelowMinimum: q.BelowMinimum, Limit: q.Limit, Offset: q.Offset}
}

// ArticleResponse is an article with its supplier bindings.
type ArticleResponse struct {
	*article.Article
	Suppliers        []article.SupplierLink `json:"suppliers"`
	DetectedSupplier *id.ID                 `json:"detectedSupplierId,omitempty"`
}

// LinkSupplierRequest binds a supplier to an article.
type LinkSupplierRequest struct {
	SupplierID id.ID `json:"supplierId" binding:"required"`
	Preferred  bool  `json:"preferred"`
}

// CreateSupplierRequest is the body of POST /proveedores.
type CreateSupplierRequest struct {
	Name  string `json:"name" binding:"required"`
	TaxID string `json:"taxId"`
	Email string `json:"email" binding:"omitempty,email"`
}

// ToSupplier maps the body to a new supplier.
func (r CreateSupplierRequest) ToSupplier() *supplier.Supplier {
	return &supplier.Supplier{ID: id.New(), Name: r.Name, TaxID: r.TaxID, Email: r.Email, Active: true}
}

// CreateEquipoRequest is the body of POST /equipos.
type CreateEquipoRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	SupervisorID string `json:"supervisorId" binding:"required"`
}

// ToEquipo maps the body to a new equipo.
func (r CreateEquipoRequest) ToEquipo() *equipo.Equipo {
	return &equipo.Equipo{ID: id.New(), Code: r.Code, Name: r.Name, Location: r.Location, SupervisorID: r.SupervisorID}
}

// MovementListQuery are the filters of GET /articulos/:id/movimientos.
type MovementListQuery struct {
	PaginationRequest
	OriginType string     `form:"originType"`
	OriginID   string     `form:"originId"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter maps the query to the movement filter of one article.
func (q MovementListQuery) ToFilter(articleID id.ID) (stock.MovementFilter, error) {
	f := stock.MovementFilter{
		ArticleID: &articleID,
		FromDate:  q.From,
		ToDate:    q.To,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.OriginType != "" {
		o := stock.OriginType(q.OriginType)
		if !o.Valid() {
			return f, apperror.NewValidation("unknown movement origin").WithDetail("originType", q.OriginType)
		}
		f.OriginType = &o
	}
	var err error
	if f.OriginID, err = ParseOptionalID("originId", q.OriginID); err != nil {
		return f, err
	}
	return f, nil
}
