// Package request provides the request document (pedido): an internal demand
// for materials drawn from stock on creation, then dispersed, approved and
// delivered.
package request

import (
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/entity"
	"almacen/internal/core/id"
)

// Type selects the destination kind and the lifecycle path.
type Type string

const (
	TypeProject Type = "proyecto"
	TypeEquipo  Type = "equipo"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypeProject || t == TypeEquipo
}

// State is the request lifecycle state.
type State string

const (
	StatePending          State = "pendiente"
	StatePendingApproval  State = "pendiente_aprobacion"
	StateApproved         State = "aprobado"
	StateCompleted        State = "completado"
	StateReadyForDelivery State = "listo_para_entrega"
	StateDelivered        State = "entregado"
	StateCancelled        State = "cancelado"
)

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StatePendingApproval, StateApproved, StateCompleted,
		StateReadyForDelivery, StateDelivered, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateCancelled
}

// Request is a pedido with its line items.
type Request struct {
	entity.Document

	Type        Type   `db:"type" json:"type"`
	State       State  `db:"state" json:"state"`
	RequesterID string `db:"requester_id" json:"requesterId"`

	// Destination: ProjectName for proyecto, EquipoID for equipo.
	ProjectName string `db:"project_name" json:"projectName,omitempty"`
	EquipoID    *id.ID `db:"equipo_id" json:"equipoId,omitempty"`
	Location    string `db:"location" json:"location,omitempty"`
	Notes       string `db:"notes" json:"notes,omitempty"`

	// SupervisorID is the approver bound to the equipo when the request was created.
	SupervisorID string `db:"supervisor_id" json:"supervisorId,omitempty"`

	// AssignedSupervisorID receives the goods.
	AssignedSupervisorID string `db:"assigned_supervisor_id" json:"assignedSupervisorId,omitempty"`

	ApprovedAt      *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedBy      string     `db:"approved_by" json:"approvedBy,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejectedAt,omitempty"`
	RejectedBy      string     `db:"rejected_by" json:"rejectedBy,omitempty"`
	RejectionReason string     `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	ReadyAt         *time.Time `db:"ready_at" json:"readyAt,omitempty"`
	ReadyBy         string     `db:"ready_by" json:"readyBy,omitempty"`
	DeliveredAt     *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	DeliveredBy     string     `db:"delivered_by" json:"deliveredBy,omitempty"`

	DeliveryRejectedAt     *time.Time `db:"delivery_rejected_at" json:"deliveryRejectedAt,omitempty"`
	DeliveryRejectionNotes string     `db:"delivery_rejection_notes" json:"deliveryRejectionNotes,omitempty"`

	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelledBy  string     `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one requested article.
type Line struct {
	LineID      id.ID           `db:"line_id" json:"lineId"`
	LineNo      int             `db:"line_no" json:"lineNo"`
	ArticleID   id.ID           `db:"article_id" json:"articleId"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Dispersed   bool            `db:"dispersed" json:"dispersed"`
	DispersedBy string          `db:"dispersed_by" json:"dispersedBy,omitempty"`
	DispersedAt *time.Time      `db:"dispersed_at" json:"dispersedAt,omitempty"`
}

// InitialState is the state a new request starts in.
func (r *Request) InitialState() State {
	if r.Type == TypeEquipo {
		return StatePendingApproval
	}
	return StatePending
}

// BaseState is the working state dispersal falls back to.
func (r *Request) BaseState() State {
	if r.Type == TypeEquipo {
		return StateApproved
	}
	return StatePending
}

// DispersalPercent returns the share of dispersed lines, 0-100.
func (r *Request) DispersalPercent() int {
	if len(r.Lines) == 0 {
		return 0
	}
	done := 0
	for _, l := range r.Lines {
		if l.Dispersed {
			done++
		}
	}
	return done * 100 / len(r.Lines)
}

// FullyDispersed reports whether every line is dispersed.
func (r *Request) FullyDispersed() bool {
	return len(r.Lines) > 0 && r.DispersalPercent() == 100
}

// Line returns the line with lineID.
func (r *Request) Line(lineID id.ID) (*Line, error) {
	for i := range r.Lines {
		if r.Lines[i].LineID == lineID {
			return &r.Lines[i], nil
		}
	}
	return nil, apperror.NewNotFound("request line", lineID.String())
}

// Editable reports whether line quantities may still change.
func (r *Request) Editable() bool {
	return r.State == StatePending || r.State == StatePendingApproval
}

func (r *Request) transitionError(to State) *apperror.AppError {
	return apperror.NewInvalidTransition("request", r.State, to).WithDetail("number", r.Number)
}

func (r *Request) clearDispersal() {
	for i := range r.Lines {
		r.Lines[i].Dispersed = false
		r.Lines[i].DispersedBy = ""
		r.Lines[i].DispersedAt = nil
	}
	r.CompletedAt = nil
}

// SetDispersed toggles a line's dispersal flag and moves the request to
// completado at 100 % or back to its base state when a completed request
// loses a line. Returns the previous state.
func (r *Request) SetDispersed(lineID id.ID, dispersed bool, actor string, at time.Time) (State, error) {
	prev := r.State
	switch r.State {
	case StatePending, StateApproved, StateCompleted:
	default:
		return prev, apperror.NewPrecondition("dispersal is not allowed in the current state").
			WithDetail("number", r.Number).
			WithDetail("state", r.State)
	}

	line, err := r.Line(lineID)
	if err != nil {
		return prev, err
	}
	line.Dispersed = dispersed
	if dispersed {
		line.DispersedBy = actor
		line.DispersedAt = &at
	} else {
		line.DispersedBy = ""
		line.DispersedAt = nil
	}

	switch {
	case r.FullyDispersed() && r.State != StateCompleted:
		r.State = StateCompleted
		r.CompletedAt = &at
	case !r.FullyDispersed() && r.State == StateCompleted:
		r.State = r.BaseState()
		r.CompletedAt = nil
	}
	r.Touch(actor, at)
	return prev, nil
}

// Approve moves an equipo request from pendiente_aprobacion to aprobado.
func (r *Request) Approve(actor string, at time.Time) error {
	if r.Type != TypeEquipo {
		return apperror.NewPrecondition("only equipo requests require approval").WithDetail("number", r.Number)
	}
	if r.State != StatePendingApproval {
		return r.transitionError(StateApproved)
	}
	r.State = StateApproved
	r.ApprovedAt = &at
	r.ApprovedBy = actor
	r.Touch(actor, at)
	return nil
}

// Reject sends an equipo request back to pendiente_aprobacion and clears dispersal.
// It never cancels the request.
func (r *Request) Reject(actor, reason string, at time.Time) error {
	if r.Type != TypeEquipo {
		return apperror.NewPrecondition("only equipo requests can be rejected").WithDetail("number", r.Number)
	}
	if r.State != StatePendingApproval && r.State != StateApproved {
		return r.transitionError(StatePendingApproval)
	}
	r.State = StatePendingApproval
	r.RejectedAt = &at
	r.RejectedBy = actor
	r.RejectionReason = reason
	r.ApprovedAt = nil
	r.ApprovedBy = ""
	r.clearDispersal()
	r.Touch(actor, at)
	return nil
}

// MarkReady assigns the receiving supervisor once every line is dispersed.
func (r *Request) MarkReady(supervisorID, actor string, at time.Time) error {
	if r.State != StateCompleted || !r.FullyDispersed() {
		return apperror.NewPrecondition("request must be fully dispersed before delivery").
			WithDetail("number", r.Number).
			WithDetail("state", r.State).
			WithDetail("percent", r.DispersalPercent())
	}
	r.State = StateReadyForDelivery
	r.AssignedSupervisorID = supervisorID
	r.ReadyAt = &at
	r.ReadyBy = actor
	r.Touch(actor, at)
	return nil
}

// Receive confirms delivery.
func (r *Request) Receive(actor string, at time.Time) error {
	if r.State != StateReadyForDelivery {
		return r.transitionError(StateDelivered)
	}
	r.State = StateDelivered
	r.DeliveredAt = &at
	r.DeliveredBy = actor
	r.Touch(actor, at)
	return nil
}

// RejectDelivery returns a ready request to its base state with every
// dispersal flag cleared.
func (r *Request) RejectDelivery(actor, reason string, at time.Time) error {
	if r.State != StateReadyForDelivery {
		return r.transitionError(r.BaseState())
	}
	r.State = r.BaseState()
	r.DeliveryRejectedAt = &at
	r.DeliveryRejectionNotes = reason
	r.AssignedSupervisorID = ""
	r.ReadyAt = nil
	r.ReadyBy = ""
	r.clearDispersal()
	r.Touch(actor, at)
	return nil
}

// Cancel moves a non-terminal request to cancelado.
func (r *Request) Cancel(actor, reason string, at time.Time) error {
	if r.State.Terminal() {
		return r.transitionError(StateCancelled)
	}
	r.State = StateCancelled
	r.CancelledAt = &at
	r.CancelledBy = actor
	r.CancelReason = reason
	r.Touch(actor, at)
	return nil
}

// ListFilter narrows request listings.
type ListFilter struct {
	State       *State
	Type        *Type
	RequesterID string
	ArticleID   *id.ID
	Limit       int
	Offset      int
}
