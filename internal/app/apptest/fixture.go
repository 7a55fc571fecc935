// Package apptest builds a fully wired application on the in-memory store for
// integration tests.
package apptest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"almacen/internal/app"
	"almacen/internal/core/id"
	"almacen/internal/core/security"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
	"almacen/internal/infrastructure/storage/memory"
)

// Actors used across tests.
var (
	Designer   = security.Actor{UserID: "dis-1", Role: security.RoleDesigner}
	Warehouse  = security.Actor{UserID: "alm-1", Role: security.RoleWarehouse}
	Supervisor = security.Actor{UserID: "sup-1", Role: security.RoleSupervisor}
	Purchasing = security.Actor{UserID: "com-1", Role: security.RolePurchasing}
	Admin      = security.Actor{UserID: "adm-1", Role: security.RoleAdmin}
)

// Start is the instant every fixture clock begins at.
var Start = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.Local)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fixture time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RecordingSink keeps every delivered notification.
type RecordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

// Send implements notify.Sink.
func (s *RecordingSink) Send(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a copy of the delivered notifications.
func (s *RecordingSink) Sent() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.sent...)
}

// Events returns the event types delivered so far, in order.
func (s *RecordingSink) Events() []notify.EventType {
	var out []notify.EventType
	for _, n := range s.Sent() {
		out = append(out, n.EventType)
	}
	return out
}

// Fixture is a wired application plus handles on its internals.
type Fixture struct {
	App   *app.App
	Store *memory.Store
	Clock *Clock
	Sink  *RecordingSink
}

// New builds a fixture with the default policy.
func New(t *testing.T) *Fixture {
	t.Helper()
	clock := &Clock{now: Start}
	sink := &RecordingSink{}
	a, store := app.NewMemory(app.Options{Sink: sink, Now: clock.Now})
	return &Fixture{App: a, Store: store, Clock: clock, Sink: sink}
}

// ArticleOption customizes a seeded article.
type ArticleOption func(*article.Article)

// WithThresholds sets explicit minimum and maximum stock.
func WithThresholds(minimum, maximum int64) ArticleOption {
	return func(a *article.Article) {
		a.StockMinimo = decimal.NewNullDecimal(decimal.NewFromInt(minimum))
		a.StockMaximo = decimal.NewNullDecimal(decimal.NewFromInt(maximum))
	}
}

// WithSupplier sets the direct supplier of the article.
func WithSupplier(supplierID id.ID) ArticleOption {
	return func(a *article.Article) { a.SupplierID = id.Ptr(supplierID) }
}

// WithUnitCost sets the article unit cost.
func WithUnitCost(cost string) ArticleOption {
	return func(a *article.Article) { a.UnitCost = decimal.RequireFromString(cost) }
}

// Article seeds an article with the given stock. Without options it carries
// the default thresholds (minimum 10, maximum 30).
func (f *Fixture) Article(t *testing.T, stockActual int64, opts ...ArticleOption) *article.Article {
	t.Helper()
	aid := id.New()
	a := &article.Article{
		ID:          aid,
		Code:        "ART-" + aid.String(),
		Name:        "Artículo de prueba",
		Unit:        "pza",
		StockActual: decimal.NewFromInt(stockActual),
		UnitCost:    decimal.NewFromInt(1),
		UpdatedAt:   f.Clock.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	require.NoError(t, f.App.Stores.Articles.Create(context.Background(), a))
	return a
}

// Supplier seeds an active supplier.
func (f *Fixture) Supplier(t *testing.T, name string) *supplier.Supplier {
	t.Helper()
	s := &supplier.Supplier{ID: id.New(), Name: name, Active: true}
	require.NoError(t, f.App.Stores.Suppliers.Create(context.Background(), s))
	return s
}

// Equipo seeds an equipo supervised by supervisorID.
func (f *Fixture) Equipo(t *testing.T, supervisorID string) *equipo.Equipo {
	t.Helper()
	eid := id.New()
	e := &equipo.Equipo{ID: eid, Code: "EQ-" + eid.String(), Name: "Equipo", Location: "Nave 2", SupervisorID: supervisorID}
	require.NoError(t, f.App.Stores.Equipos.Create(context.Background(), e))
	return e
}

// Stock reads the current stock of an article.
func (f *Fixture) Stock(t *testing.T, articleID id.ID) decimal.Decimal {
	t.Helper()
	a, err := f.App.Stores.Articles.GetByID(context.Background(), articleID)
	require.NoError(t, err)
	return a.StockActual
}

// Movements lists every movement of an article.
func (f *Fixture) Movements(t *testing.T, articleID id.ID) []stock.Movement {
	t.Helper()
	out, err := f.App.Stock.Movements(context.Background(), stock.MovementFilter{ArticleID: &articleID})
	require.NoError(t, err)
	return out
}

// Qty is shorthand for an integer decimal.
func Qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
