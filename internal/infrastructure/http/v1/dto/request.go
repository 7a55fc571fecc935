package dto

import (
	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/documents/request"
)

// CreateRequestRequest is the body of POST /pedidos.
type CreateRequestRequest struct {
	Type        string               `json:"type" binding:"required"`
	ProjectName string               `json:"projectName"`
	EquipoID    *id.ID               `json:"equipoId"`
	Location    string               `json:"location"`
	Notes       string               `json:"notes"`
	Lines       []RequestLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// RequestLineRequest is one requested article.
type RequestLineRequest struct {
	ArticleID id.ID           `json:"articleId" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ToInput maps the body to the service input.
func (r CreateRequestRequest) ToInput() request.CreateInput {
	lines := make([]request.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = request.LineInput{ArticleID: l.ArticleID, Quantity: l.Quantity}
	}
	return request.CreateInput{
		Type:        request.Type(r.Type),
		ProjectName: r.ProjectName,
		EquipoID:    r.EquipoID,
		Location:    r.Location,
		Notes:       r.Notes,
		Lines:       lines,
	}
}

// DisperseRequest toggles the dispersal of one line.
type DisperseRequest struct {
	Dispersed bool `json:"dispersed"`
}

// MarkReadyRequest names the supervisor who will receive the material.
type MarkReadyRequest struct {
	SupervisorID string `json:"supervisorId" binding:"required"`
}

// UpdateLineRequest changes the quantity of one line.
type UpdateLineRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// RequestListQuery are the filters of GET /pedidos.
type RequestListQuery struct {
	PaginationRequest
	State       string `form:"state"`
	Type        string `form:"type"`
	RequesterID string `form:"requesterId"`
	ArticleID   string `form:"articleId"`
}

// ToFilter validates the query and maps it to the repository filter.
func (q RequestListQuery) ToFilter() (request.ListFilter, error) {
	f := request.ListFilter{
		RequesterID: q.RequesterID,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if q.State != "" {
		s := request.State(q.State)
		if !s.Valid() {
			return f, apperror.NewValidation("unknown request state").WithDetail("state", q.State)
		}
		f.State = &s
	}
	if q.Type != "" {
		t := request.Type(q.Type)
		if !t.Valid() {
			return f, apperror.NewValidation("unknown request type").WithDetail("type", q.Type)
		}
		f.Type = &t
	}
	articleID, err := ParseOptionalID("articleId", q.ArticleID)
	if err != nil {
		return f, err
	}
	f.ArticleID = articleID
	return f, nil
}
