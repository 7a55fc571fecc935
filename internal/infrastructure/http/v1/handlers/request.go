package handlers

import (
	"github.com/gin-gonic/gin"

	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/reversal"
	"almacen/internal/domain/trace"
	"almacen/internal/infrastructure/http/v1/dto"
)

// RequestHandler serves /pedidos.
type RequestHandler struct {
	*BaseHandler
	service  *request.Service
	reversal *reversal.Coordinator
	trace    *trace.Service
}

// NewRequestHandler creates a request handler.
func NewRequestHandler(base *BaseHandler, service *request.Service, rev *reversal.Coordinator, tr *trace.Service) *RequestHandler {
	return &RequestHandler{BaseHandler: base, service: service, reversal: rev, trace: tr}
}

// RegisterRoutes mounts the request endpoints on rg.
func (h *RequestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/traza", h.Trace)
	rg.POST("/:id/aprobar", h.Approve)
	rg.POST("/:id/rechazar", h.Reject)
	rg.POST("/:id/listo", h.MarkReady)
	rg.POST("/:id/recibir", h.Receive)
	rg.POST("/:id/rechazar-entrega", h.RejectDelivery)
	rg.POST("/:id/anular", h.Annul)
	rg.PUT("/:id/lineas/:lineId", h.UpdateLine)
	rg.DELETE("/:id/lineas/:lineId", h.RemoveLine)
	rg.PUT("/:id/lineas/:lineId/dispersion", h.SetDispersed)
}

// List handles GET /pedidos
func (h *RequestHandler) List(c *gin.Context) {
	var q dto.RequestListQuery
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

// Create handles POST /pedidos
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateRequestRequest
	if !h.BindJSON(c, &req) {
		return
	}

	created, err := h.service.Create(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, created)
}

// Get handles GET /pedidos/:id
func (h *RequestHandler) Get(c *gin.Context) {
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	req, err := h.service.GetByID(c.Request.Context(), requestID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, req)
}

// Trace handles GET /pedidos/:id/traza
func (h *RequestHandler) Trace(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	t, err := h.trace.ForRequest(c.Request.Context(), actor, requestID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// Approve handles POST /pedidos/:id/aprobar
func (h *RequestHandler) Approve(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.service.Approve(c.Request.Context(), actor, requestID))
}

// Reject handles POST /pedidos/:id/rechazar
func (h *RequestHandler) Reject(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.ReasonRequest
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.service.Reject(c.Request.Context(), actor, requestID, body.Reason))
}

// MarkReady handles POST /pedidos/:id/listo
func (h *RequestHandler) MarkReady(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.MarkReadyRequest
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.service.MarkReady(c.Request.Context(), actor, requestID, body.SupervisorID))
}

// Receive handles POST /pedidos/:id/recibir
func (h *RequestHandler) Receive(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.service.Receive(c.Request.Context(), actor, requestID))
}

// RejectDelivery handles POST /pedidos/:id/rechazar-entrega
func (h *RequestHandler) RejectDelivery(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.ReasonRequest
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.service.RejectDelivery(c.Request.Context(), actor, requestID, body.Reason))
}

// Annul handles POST /pedidos/:id/anular
func (h *RequestHandler) Annul(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.ReasonRequest
	if !h.BindJSON(c, &body) {
		return
	}
	result, err := h.reversal.AnnulRequest(c.Request.Context(), actor, requestID, body.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// UpdateLine handles PUT /pedidos/:id/lineas/:lineId
func (h *RequestHandler) UpdateLine(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	var body dto.UpdateLineRequest
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.service.UpdateLineQuantity(c.Request.Context(), actor, requestID, lineID, body.Quantity))
}

// RemoveLine handles DELETE /pedidos/:id/lineas/:lineId
func (h *RequestHandler) RemoveLine(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	h.respond(c)(h.service.RemoveLine(c.Request.Context(), actor, requestID, lineID))
}

// SetDispersed handles PUT /pedidos/:id/lineas/:lineId/dispersion
func (h *RequestHandler) SetDispersed(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	var body dto.DisperseRequest
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.service.SetDispersed(c.Request.Context(), actor, requestID, lineID, body.Dispersed))
}

func (h *RequestHandler) respond(c *gin.Context) func(*request.Request, error) {
	return func(req *request.Request, err error) {
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, req)
	}
}
