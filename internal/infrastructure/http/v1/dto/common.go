// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
)

// --- Pagination ---

// PaginationRequest contains pagination parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 50
	}
}

// --- List Response ---

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse never returns a nil Items slice.
func NewListResponse[T any](items []T, p PaginationRequest) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: p.Limit, Offset: p.Offset}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Shared requests ---

// ReasonRequest carries the mandatory reason of a reject, annul or cancel.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ParseOptionalID parses a query value; empty means no filter.
func ParseOptionalID(field, raw string) (*id.ID, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := id.Parse(raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid id format").WithDetail("field", field)
	}
	return &v, nil
}
