// Package stock provides the stock ledger: the single writer of article stock.
// Every change is recorded as a signed movement tied to the event that caused it.
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
)

// OriginType names the event a movement belongs to.
type OriginType string

const (
	OriginRequest      OriginType = "pedido"
	OriginRequestEdit  OriginType = "pedido_edicion"
	OriginRequestAnnul OriginType = "anulacion_pedido"
	OriginOrderAnnul   OriginType = "anulacion_orden"
	OriginOrderReceipt OriginType = "recepcion_orden"
)

// Valid reports whether t is a known origin type.
func (t OriginType) Valid() bool {
	switch t {
	case OriginRequest, OriginRequestEdit, OriginRequestAnnul, OriginOrderAnnul, OriginOrderReceipt:
		return true
	}
	return false
}

// Origin identifies the document event behind a movement.
type Origin struct {
	Type   OriginType
	ID     id.ID
	Number string
	Actor  string
}

// Validate rejects orphan movements.
func (o Origin) Validate() error {
	if !o.Type.Valid() {
		return apperror.NewValidation("movement origin type is required").
			WithDetail("originType", string(o.Type))
	}
	if id.IsNil(o.ID) {
		return apperror.NewValidation("movement origin id is required")
	}
	return nil
}

// Movement is one signed stock delta.
type Movement struct {
	ID           id.ID           `db:"id" json:"id"`
	ArticleID    id.ID           `db:"article_id" json:"articleId"`
	Delta        decimal.Decimal `db:"delta" json:"delta"`
	StockBefore  decimal.Decimal `db:"stock_before" json:"stockBefore"`
	StockAfter   decimal.Decimal `db:"stock_after" json:"stockAfter"`
	OriginType   OriginType      `db:"origin_type" json:"originType"`
	OriginID     id.ID           `db:"origin_id" json:"originId"`
	OriginNumber string          `db:"origin_number" json:"originNumber"`
	Actor        string          `db:"actor" json:"actor"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ArticleID  *id.ID
	OriginType *OriginType
	OriginID   *id.ID
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}

// Repository persists movements.
type Repository interface {
	// CreateMovement appends a movement inside the current transaction.
	CreateMovement(ctx context.Context, m *Movement) error

	// ListMovements returns movements ordered by creation time.
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}
