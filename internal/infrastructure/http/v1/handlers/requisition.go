package handlers

import (
	"github.com/gin-gonic/gin"

	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/reversal"
	"almacen/internal/domain/trace"
	"almacen/internal/infrastructure/http/v1/dto"
)

// RequisitionHandler serves /solicitudes.
type RequisitionHandler struct {
	*BaseHandler
	service  *requisition.Service
	reversal *reversal.Coordinator
	trace    *trace.Service
}

// NewRequisitionHandler creates a requisition handler.
func NewRequisitionHandler(base *BaseHandler, service *requisition.Service, rev *reversal.Coordinator, tr *trace.Service) *RequisitionHandler {
	return &RequisitionHandler{BaseHandler: base, service: service, reversal: rev, trace: tr}
}

// RegisterRoutes mounts the requisition endpoints on rg.
func (h *RequisitionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/pendientes", h.Pending)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/traza", h.Trace)
	rg.POST("/:id/cancelar", h.Cancel)
}

// List handles GET /solicitudes
func (h *RequisitionHandler) List(c *gin.Context) {
	var q dto.RequisitionListQuery
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

// Pending handles GET /solicitudes/pendientes: the purchasing work queue.
func (h *RequisitionHandler) Pending(c *gin.Context) {
	items, err := h.service.Pending(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, dto.PaginationRequest{Limit: len(items)})
}

// Get handles GET /solicitudes/:id
func (h *RequisitionHandler) Get(c *gin.Context) {
	requisitionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.GetByID(c.Request.Context(), requisitionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// Trace handles GET /solicitudes/:id/traza
func (h *RequisitionHandler) Trace(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requisitionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	t, err := h.trace.ForRequisition(c.Request.Context(), actor, requisitionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// Cancel handles POST /solicitudes/:id/cancelar
func (h *RequisitionHandler) Cancel(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requisitionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body dto.ReasonRequest
	if !h.BindJSON(c, &body) {
		return
	}
	r, err := h.reversal.CancelRequisition(c.Request.Context(), actor, requisitionID, body.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}
