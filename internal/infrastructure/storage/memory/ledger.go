package memory

import (
	"context"
	"time"

	"almacen/internal/core/id"
	"almacen/internal/core/numerator"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/registers/stock"
)

// MovementRepo implements stock.Repository.
type MovementRepo struct{ s *Store }

// Movements returns the stock movement repository.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

func (r *MovementRepo) CreateMovement(ctx context.Context, m *stock.Movement) error {
	return r.s.view(ctx, func(st *state) error {
		if id.IsNil(m.ID) {
			m.ID = id.New()
		}
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r *MovementRepo) ListMovements(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	var out []stock.Movement
	err := r.s.view(ctx, func(st *state) error {
		for _, m := range st.movements {
			switch {
			case f.ArticleID != nil && m.ArticleID != *f.ArticleID,
				f.OriginType != nil && m.OriginType != *f.OriginType,
				f.OriginID != nil && m.OriginID != *f.OriginID,
				f.FromDate != nil && m.CreatedAt.Before(*f.FromDate),
				f.ToDate != nil && m.CreatedAt.After(*f.ToDate):
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	return page(out, f.Limit, f.Offset), err
}

// JournalRepo implements audit.Journal.
type JournalRepo struct{ s *Store }

// Journal returns the audit journal.
func (s *Store) Journal() *JournalRepo { return &JournalRepo{s: s} }

func (r *JournalRepo) Append(ctx context.Context, e *audit.Entry) error {
	return r.s.view(ctx, func(st *state) error {
		if id.IsNil(e.ID) {
			e.ID = id.New()
		}
		st.journal = append(st.journal, *e)
		return nil
	})
}

func (r *JournalRepo) History(ctx context.Context, entityType audit.EntityType, entityID id.ID) ([]audit.Entry, error) {
	out := []audit.Entry{}
	err := r.s.view(ctx, func(st *state) error {
		for _, e := range st.journal {
			if e.EntityType == entityType && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// Numerator implements numerator.Generator. Counters live in the store, so a
// rolled back transaction gives its numbers back.
type Numerator struct{ s *Store }

// Numerator returns the ticket generator.
func (s *Store) Numerator() *Numerator { return &Numerator{s: s} }

func (n *Numerator) GetNextNumber(ctx context.Context, cfg numerator.Config, at time.Time) (string, error) {
	var number string
	err := n.s.view(ctx, func(st *state) error {
		key := numerator.Key(cfg, at)
		st.counters[key]++
		number = numerator.Format(cfg, at, st.counters[key])
		return nil
	})
	return number, err
}

var (
	_ stock.Repository    = (*MovementRepo)(nil)
	_ audit.Journal       = (*JournalRepo)(nil)
	_ numerator.Generator = (*Numerator)(nil)
)
