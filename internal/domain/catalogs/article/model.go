// Package article provides the article catalog: stock thresholds, unit cost and
// the supplier bindings used to route purchase requisitions.
package article

import (
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
)

// Fallbacks applied when thresholds are unset.
var (
	DefaultStockMinimo = decimal.NewFromInt(10)
	MaxStockFactor     = decimal.NewFromInt(3)
)

// Article is a stocked item. StockActual is written only by the stock register.
type Article struct {
	ID          id.ID               `db:"id" json:"id"`
	Code        string              `db:"code" json:"code"`
	Name        string              `db:"name" json:"name"`
	Unit        string              `db:"unit" json:"unit"`
	StockActual decimal.Decimal     `db:"stock_actual" json:"stockActual"`
	StockMinimo decimal.NullDecimal `db:"stock_minimo" json:"stockMinimo"`
	StockMaximo decimal.NullDecimal `db:"stock_maximo" json:"stockMaximo"`
	UnitCost    decimal.Decimal     `db:"unit_cost" json:"unitCost"`

	// SupplierID is the supplier set directly on the article.
	SupplierID *id.ID `db:"supplier_id" json:"supplierId,omitempty"`

	// LegacySupplierID is inherited from the migrated tool-type record.
	LegacySupplierID *id.ID `db:"legacy_supplier_id" json:"legacySupplierId,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// MinStock returns the minimum threshold, falling back to DefaultStockMinimo.
func (a *Article) MinStock() decimal.Decimal {
	if a.StockMinimo.Valid {
		return a.StockMinimo.Decimal
	}
	return DefaultStockMinimo
}

// MaxStock returns the maximum threshold, falling back to MaxStockFactor × minimum.
func (a *Article) MaxStock() decimal.Decimal {
	if a.StockMaximo.Valid {
		return a.StockMaximo.Decimal
	}
	return a.MinStock().Mul(MaxStockFactor)
}

// Validate checks catalog invariants.
func (a *Article) Validate() error {
	if a.Code == "" {
		return apperror.NewValidation("article code is required").WithDetail("field", "code")
	}
	if a.Name == "" {
		return apperror.NewValidation("article name is required").WithDetail("field", "name")
	}
	if a.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").WithDetail("field", "unitCost")
	}
	if a.StockMinimo.Valid && a.StockMinimo.Decimal.IsNegative() {
		return apperror.NewValidation("minimum stock cannot be negative").WithDetail("field", "stockMinimo")
	}
	if a.StockMaximo.Valid && a.StockMaximo.Decimal.LessThan(a.MinStock()) {
		return apperror.NewValidation("maximum stock is below minimum").WithDetail("field", "stockMaximo")
	}
	return nil
}

// SupplierLink binds an article to one of its suppliers.
type SupplierLink struct {
	ArticleID  id.ID     `db:"article_id" json:"articleId"`
	SupplierID id.ID     `db:"supplier_id" json:"supplierId"`
	Preferred  bool      `db:"preferred" json:"preferred"`
	LinkedAt   time.Time `db:"linked_at" json:"linkedAt"`
}
