package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/core/tx"
	"almacen/internal/domain/catalogs/article"
	"almacen/pkg/logger"
)

// Result reports the effect of one ApplyDelta call.
type Result struct {
	Article  *article.Article
	Movement *Movement
	OldStock decimal.Decimal
	NewStock decimal.Decimal
}

// Service applies signed deltas to article stock.
type Service struct {
	articles  article.Repository
	movements Repository
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a stock ledger service.
func NewService(articles article.Repository, movements Repository, txManager tx.Manager, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		articles:  articles,
		movements: movements,
		txManager: txManager,
		now:       now,
	}
}

// ApplyDelta locks the article, adds delta to its stock and records the movement.
// The result may be negative: over-drawing is the reorder trigger, not an error.
// Joins the caller's transaction when ctx carries one.
func (s *Service) ApplyDelta(ctx context.Context, articleID id.ID, delta decimal.Decimal, origin Origin) (*Result, error) {
	if delta.IsZero() {
		return nil, apperror.NewValidation("stock delta must be non-zero").
			WithDetail("articleId", articleID.String())
	}
	if err := origin.Validate(); err != nil {
		return nil, err
	}

	var res *Result
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		a, err := s.articles.GetForUpdate(ctx, articleID)
		if err != nil {
			return err
		}

		oldStock := a.StockActual
		newStock := oldStock.Add(delta)
		if err := s.articles.UpdateStock(ctx, a.ID, newStock); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		m := &Movement{
			ID:           id.New(),
			ArticleID:    a.ID,
			Delta:        delta,
			StockBefore:  oldStock,
			StockAfter:   newStock,
			OriginType:   origin.Type,
			OriginID:     origin.ID,
			OriginNumber: origin.Number,
			Actor:        origin.Actor,
			CreatedAt:    s.now(),
		}
		if err := s.movements.CreateMovement(ctx, m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		a.StockActual = newStock
		res = &Result{Article: a, Movement: m, OldStock: oldStock, NewStock: newStock}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "stock delta applied",
		"article_id", articleID,
		"delta", delta.String(),
		"stock", res.NewStock.String(),
		"origin", string(origin.Type),
		"origin_number", origin.Number,
	)
	return res, nil
}

// Movements returns the movement history of an article.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.movements.ListMovements(ctx, filter)
}
