// Package audit provides the append-only journal that keeps the ordered
// narrative of every request, requisition and purchase order.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
)

// EntityType names a journaled aggregate.
type EntityType string

const (
	EntityRequest       EntityType = "pedido"
	EntityRequisition   EntityType = "solicitud"
	EntityPurchaseOrder EntityType = "orden"
)

// ParseEntityType validates s as a journaled aggregate name.
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityRequest, EntityRequisition, EntityPurchaseOrder:
		return t, nil
	}
	return "", apperror.NewValidation("unknown journal entity").WithDetail("entity", s)
}

// Action is the kind of journaled event.
type Action string

const (
	ActionCreated          Action = "created"
	ActionUpdated          Action = "updated"
	ActionMerged           Action = "merged"
	ActionApproved         Action = "approved"
	ActionRejected         Action = "rejected"
	ActionDispersed        Action = "dispersed"
	ActionReady            Action = "ready"
	ActionDelivered        Action = "delivered"
	ActionDeliveryRejected Action = "delivery_rejected"
	ActionLineUpdated      Action = "line_updated"
	ActionLineRemoved      Action = "line_removed"
	ActionSent             Action = "sent"
	ActionStateChanged     Action = "state_changed"
	ActionReceived         Action = "received"
	ActionReopened         Action = "reopened"
	ActionCompleted        Action = "completed"
	ActionDetached         Action = "detached"
	ActionCancelled        Action = "cancelled"
)

// Entry is one immutable journal row.
type Entry struct {
	ID         id.ID           `db:"id" json:"id"`
	EntityType EntityType      `db:"entity_type" json:"entityType"`
	EntityID   id.ID           `db:"entity_id" json:"entityId"`
	Action     Action          `db:"action" json:"action"`
	Actor      string          `db:"actor" json:"actor"`
	Note       string          `db:"note" json:"note"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Journal appends and reads entries. Append joins the caller's transaction.
type Journal interface {
	Append(ctx context.Context, entry *Entry) error

	// History returns entries of one entity, oldest first.
	History(ctx context.Context, entityType EntityType, entityID id.ID) ([]Entry, error)
}

// Recorder builds entries with a shared clock and appends them.
type Recorder struct {
	journal Journal
	now     func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(journal Journal, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{journal: journal, now: now}
}

// Record appends an entry. payload may be nil.
func (r *Recorder) Record(ctx context.Context, entityType EntityType, entityID id.ID, action Action, actor, note string, payload any) error {
	entry := &Entry{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Note:       note,
		CreatedAt:  r.now(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal journal payload: %w", err)
		}
		entry.Payload = raw
	}
	if err := r.journal.Append(ctx, entry); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// History returns the journal of one entity.
func (r *Recorder) History(ctx context.Context, entityType EntityType, entityID id.ID) ([]Entry, error) {
	return r.journal.History(ctx, entityType, entityID)
}
