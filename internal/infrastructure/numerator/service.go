// Package numerator provides the PostgreSQL ticket generator. It implements
// core/numerator.Generator with one counter row per prefix and day.
package numerator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "almacen/internal/core/numerator"
	"almacen/internal/infrastructure/storage/postgres"
)

// Querier is the part of pgx the numerator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service hands out tickets from sys_sequences.
//
// The upsert runs on the querier bound to ctx, which is the business
// transaction when there is one: a rolled back document gives its number
// back and concurrent callers serialize on the counter row.
type Service struct {
	querier func(ctx context.Context) Querier
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a service over a fixed querier.
func New(q Querier) *Service {
	return &Service{querier: func(context.Context) Querier { return q }}
}

// NewFromTxManager creates a service that joins the transaction carried by ctx.
func NewFromTxManager(txm *postgres.TxManager) *Service {
	return &Service{querier: func(ctx context.Context) Querier { return txm.Querier(ctx) }}
}

// GetNextNumber returns the next ticket for cfg at the given instant.
func (s *Service) GetNextNumber(ctx context.Context, cfg corenumerator.Config, at time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	key := corenumerator.Key(cfg, at)
	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next number for %s: %w", key, err)
	}

	return corenumerator.Format(cfg, at, num), nil
}

// SetNextNumber makes the next ticket of the period start after value.
// Used when importing documents numbered elsewhere.
func (s *Service) SetNextNumber(ctx context.Context, cfg corenumerator.Config, at time.Time, value int64) error {
	key := corenumerator.Key(cfg, at)
	var result int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = GREATEST(sys_sequences.current_val, $2)
		RETURNING current_val
	`, key, value).Scan(&result)
	if err != nil {
		return fmt.Errorf("set number for %s: %w", key, err)
	}
	return nil
}
