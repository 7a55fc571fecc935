// Package equipo provides the catalog of formal locations and equipment that
// equipo-type requests are addressed to, each bound to a supervisor.
package equipo

import (
	"context"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
)

// Equipo is a formal destination with its responsible supervisor.
type Equipo struct {
	ID           id.ID  `db:"id" json:"id"`
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	Location     string `db:"location" json:"location"`
	SupervisorID string `db:"supervisor_id" json:"supervisorId"`
}

// Validate checks catalog invariants.
func (e *Equipo) Validate() error {
	if e.Code == "" {
		return apperror.NewValidation("equipo code is required").WithDetail("field", "code")
	}
	if e.SupervisorID == "" {
		return apperror.NewValidation("equipo supervisor is required").WithDetail("field", "supervisorId")
	}
	return nil
}

// Repository defines persistence operations for equipos.
type Repository interface {
	Create(ctx context.Context, e *Equipo) error

	// GetByID returns NotFound if the equipo does not exist.
	GetByID(ctx context.Context, equipoID id.ID) (*Equipo, error)
}
