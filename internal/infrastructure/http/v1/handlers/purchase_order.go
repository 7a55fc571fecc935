package handlers

import (
	"github.com/gin-gonic/gin"

	"almacen/internal/core/apperror"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/reversal"
	"almacen/internal/domain/trace"
	"almacen/internal/infrastructure/http/v1/dto"
)

// OrderHandler serves /ordenes.
type OrderHandler struct {
	*BaseHandler
	service  *purchase_order.Service
	reversal *reversal.Coordinator
	trace    *trace.Service
}

// NewOrderHandler creates a purchase order handler.
func NewOrderHandler(base *BaseHandler, service *purchase_order.Service, rev *reversal.Coordinator, tr *trace.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service, reversal: rev, trace: tr}
}

// RegisterRoutes mounts the order endpoints on rg.
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/desde-solicitudes", h.CreateFromRequisitions)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/traza", h.Trace)
	rg.POST("/:id/enviar", h.Send)
	rg.PUT("/:id/estado", h.UpdateState)
	rg.POST("/:id/recepciones", h.RegisterReceipt)
	rg.POST("/:id/anular", h.Annul)
}

// List handles GET /ordenes
func (h *OrderHandler) List(c *gin.Context) {
	var q dto.OrderListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, q.PaginationRequest)
}

// Create handles POST /ordenes
func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o, err := h.service.Create(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, o)
}

// CreateFromRequisitions handles POST /ordenes/desde-solicitudes
func (h *OrderHandler) CreateFromRequisitions(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.OrderFromRequisitionsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	o, err := h.service.CreateFromRequisitions(c.Request.Context(), actor, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, o)
}

// Get handles GET /ordenes/:id
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.service.GetByID(c.Request.Context(), orderID))
}

// Trace handles GET /ordenes/:id/traza
func (h *OrderHandler) Trace(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	t, err := h.trace.ForOrder(c.Request.Context(), actor, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// Send handles POST /ordenes/:id/enviar
func (h *OrderHandler) Send(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.service.Send(c.Request.Context(), actor, orderID))
}

// UpdateState handles PUT /ordenes/:id/estado
func (h *OrderHandler) UpdateState(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.UpdateOrderStateRequest
	if !h.BindJSON(c, &body) {
		return
	}
	to := purchase_order.State(body.State)
	if !to.Valid() {
		h.Error(c, apperror.NewValidation("unknown order state").WithDetail("state", body.State))
		return
	}
	h.respond(c)(h.service.UpdateState(c.Request.Context(), actor, orderID, to))
}

// RegisterReceipt handles POST /ordenes/:id/recepciones
func (h *OrderHandler) RegisterReceipt(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.ReceiptRequest
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.service.RegisterReceipt(c.Request.Context(), actor, orderID, body.ToLines()))
}

// Annul handles POST /ordenes/:id/anular
func (h *OrderHandler) Annul(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.ReasonRequest
	if !h.BindJSON(c, &body) {
		return
	}
	result, err := h.reversal.AnnulOrder(c.Request.Context(), actor, orderID, body.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

func (h *OrderHandler) respond(c *gin.Context) func(*purchase_order.PurchaseOrder, error) {
	return func(o *purchase_order.PurchaseOrder, err error) {
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, o)
	}
}
