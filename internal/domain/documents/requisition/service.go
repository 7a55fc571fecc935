package requisition

import (
	"context"

	"almacen/internal/core/id"
	"almacen/internal/domain/audit"
)

// Service exposes read operations over requisitions.
type Service struct {
	repo    Repository
	journal *audit.Recorder
}

// NewService creates a requisition read service.
func NewService(repo Repository, journal *audit.Recorder) *Service {
	return &Service{repo: repo, journal: journal}
}

// GetByID retrieves a requisition.
func (s *Service) GetByID(ctx context.Context, requisitionID id.ID) (*Requisition, error) {
	return s.repo.GetByID(ctx, requisitionID)
}

// List returns requisitions matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Requisition, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Pending returns every requisition still waiting for an order.
func (s *Service) Pending(ctx context.Context) ([]*Requisition, error) {
	state := StatePending
	return s.repo.List(ctx, ListFilter{State: &state})
}

// History returns the journal narrative of a requisition.
func (s *Service) History(ctx context.Context, requisitionID id.ID) ([]audit.Entry, error) {
	if _, err := s.repo.GetByID(ctx, requisitionID); err != nil {
		return nil, err
	}
	return s.journal.History(ctx, audit.EntityRequisition, requisitionID)
}
