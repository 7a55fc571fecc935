package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"almacen/internal/core/id"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
)

// HistoryHandler serves the journal of any journaled entity.
type HistoryHandler struct {
	*BaseHandler
	readers map[audit.EntityType]func(ctx context.Context, entityID id.ID) ([]audit.Entry, error)
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(
	base *BaseHandler,
	requests *request.Service,
	requisitions *requisition.Service,
	orders *purchase_order.Service,
) *HistoryHandler {
	return &HistoryHandler{
		BaseHandler: base,
		readers: map[audit.EntityType]func(ctx context.Context, entityID id.ID) ([]audit.Entry, error){
			audit.EntityRequest:       requests.History,
			audit.EntityRequisition:   requisitions.History,
			audit.EntityPurchaseOrder: orders.History,
		},
	}
}

// Get handles GET /historial/:entity/:id
func (h *HistoryHandler) Get(c *gin.Context) {
	entityType, err := audit.ParseEntityType(c.Param("entity"))
	if err != nil {
		h.Error(c, err)
		return
	}
	entityID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.readers[entityType](c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	h.OK(c, gin.H{"entity": entityType, "id": entityID, "entries": entries})
}
