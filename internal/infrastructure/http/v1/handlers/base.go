package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/core/security"
	"almacen/internal/infrastructure/http/v1/dto"
	"almacen/internal/infrastructure/http/v1/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the gin context and aborts.
// The JSON body is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseID parses a path parameter as an id.
func (h *BaseHandler) ParseID(c *gin.Context, param string) (id.ID, bool) {
	v, err := id.Parse(c.Param(param))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("field", param))
		return id.ID{}, false
	}
	return v, true
}

// Actor returns the authenticated actor.
func (h *BaseHandler) Actor(c *gin.Context) (security.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return security.Actor{}, false
	}
	return actor, true
}

// Created sends 201 with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// List sends a list response.
func List[T any](c *gin.Context, items []T, p dto.PaginationRequest) {
	c.JSON(http.StatusOK, dto.NewListResponse(items, p))
}
