// Package entity holds the header shared by every ticketed document
// (pedidos, solicitudes de compra, órdenes de compra).
package entity

import (
	"time"

	"almacen/internal/core/id"
)

// Document is the common header of a ticketed business document.
type Document struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Number is the human-readable ticket (PREFIX-ddmmyy-hhmm-NN), immutable once assigned
	Number string `db:"number" json:"number"`

	// Version is incremented on each update
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy"`
}

// NewDocument creates a header with a generated ID.
func NewDocument(userID string, at time.Time) Document {
	return Document{
		ID:        id.New(),
		Version:   1,
		CreatedAt: at,
		CreatedBy: userID,
		UpdatedAt: at,
		UpdatedBy: userID,
	}
}

// Touch records a modification.
func (d *Document) Touch(userID string, at time.Time) {
	d.Version++
	d.UpdatedAt = at
	d.UpdatedBy = userID
}
