package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/domain/registers/stock"
	"almacen/internal/infrastructure/http/v1/dto"
)

// CatalogHandler serves the article, supplier and equipo catalogs and the
// stock movement history of an article.
type CatalogHandler struct {
	*BaseHandler
	articles  article.Repository
	suppliers supplier.Repository
	equipos   equipo.Repository
	resolver  *article.SupplierResolver
	ledger    *stock.Service
	now       func() time.Time
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(
	base *BaseHandler,
	articles article.Repository,
	suppliers supplier.Repository,
	equipos equipo.Repository,
	ledger *stock.Service,
	now func() time.Time,
) *CatalogHandler {
	if now == nil {
		now = time.Now
	}
	return &CatalogHandler{
		BaseHandler: base,
		articles:    articles,
		suppliers:   suppliers,
		equipos:     equipos,
		resolver:    article.NewSupplierResolver(articles),
		ledger:      ledger,
		now:         now,
	}
}

// ListArticles handles GET /articulos
func (h *CatalogHandler) ListArticles(c *gin.Context) {
	var q dto.ArticleListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()

	items, err := h.articles.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, q.PaginationRequest)
}

// CreateArticle handles POST /articulos
func (h *CatalogHandler) CreateArticle(c *gin.Context) {
	var req dto.CreateArticleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	a := req.ToArticle(h.now())
	if err := a.Validate(); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.articles.Create(c.Request.Context(), a); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, a)
}

// GetArticle handles GET /articulos/:id
func (h *CatalogHandler) GetArticle(c *gin.Context) {
	articleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	a, err := h.articles.GetByID(ctx, articleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	links, err := h.articles.SupplierLinks(ctx, articleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if links == nil {
		links = []article.SupplierLink{}
	}
	h.OK(c, dto.ArticleResponse{
		Article:          a,
		Suppliers:        links,
		DetectedSupplier: article.DetectSupplier(a, links),
	})
}

// LinkSupplier handles POST /articulos/:id/proveedores
func (h *CatalogHandler) LinkSupplier(c *gin.Context) {
	articleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.LinkSupplierRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.suppliers.GetByID(ctx, req.SupplierID); err != nil {
		h.Error(c, err)
		return
	}
	link := article.SupplierLink{
		ArticleID:  articleID,
		SupplierID: req.SupplierID,
		Preferred:  req.Preferred,
		LinkedAt:   h.now(),
	}
	if err := h.articles.LinkSupplier(ctx, link); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, link)
}

// Movements handles GET /articulos/:id/movimientos
func (h *CatalogHandler) Movements(c *gin.Context) {
	articleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var q dto.MovementListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	filter, err := q.ToFilter(articleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := c.Request.Context()

	if _, err := h.articles.GetByID(ctx, articleID); err != nil {
		h.Error(c, err)
		return
	}
	items, err := h.ledger.Movements(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, q.PaginationRequest)
}

// CreateSupplier handles POST /proveedores
func (h *CatalogHandler) CreateSupplier(c *gin.Context) {
	var req dto.CreateSupplierRequest
	if !h.BindJSON(c, &req) {
		return
	}
	s := req.ToSupplier()
	if err := s.Validate(); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.suppliers.Create(c.Request.Context(), s); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, s)
}

// GetSupplier handles GET /proveedores/:id
func (h *CatalogHandler) GetSupplier(c *gin.Context) {
	supplierID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	s, err := h.suppliers.GetByID(c.Request.Context(), supplierID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}

// CreateEquipo handles POST /equipos
func (h *CatalogHandler) CreateEquipo(c *gin.Context) {
	var req dto.CreateEquipoRequest
	if !h.BindJSON(c, &req) {
		return
	}
	e := req.ToEquipo()
	if err := e.Validate(); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.equipos.Create(c.Request.Context(), e); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, e)
}

// GetEquipo handles GET /equipos/:id
func (h *CatalogHandler) GetEquipo(c *gin.Context) {
	equipoID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	e, err := h.equipos.GetByID(c.Request.Context(), equipoID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, e)
}
