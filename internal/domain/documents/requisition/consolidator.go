package requisition

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/entity"
	"almacen/internal/core/id"
	"almacen/internal/core/numerator"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/catalogs/article"
)

// Case classifies post-deduction stock against the article thresholds.
type Case int

const (
	CaseNone Case = iota
	CaseDeficit
	CaseBelowMinimum
	CaseReturned
)

// Action reports what Reconcile did.
type Action string

const (
	ActionNone    Action = "none"
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Decision is the outcome of Plan before anything is persisted.
type Decision struct {
	Case     Case
	Action   Action
	Quantity decimal.Decimal // resulting requisition quantity
	Delta    decimal.Decimal // change against the existing quantity
	Priority Priority
	Deficit  decimal.Decimal
}

// Plan decides how a requisition must change after stock dropped to newStock
// because of a draw of drawn units. existing is the pendiente requisition of
// the article, if any.
//
// Negative stock creates deficit+max at alta, or adds only the part of this
// draw that landed below zero to an existing requisition. Stock under the
// minimum creates max-newStock at media, or replaces an existing quantity with
// that value.
func Plan(newStock, minStock, maxStock, drawn decimal.Decimal, existing *Requisition) Decision {
	switch {
	case newStock.IsNegative():
		deficit := newStock.Abs()
		if existing == nil {
			qty := deficit.Add(maxStock)
			return Decision{
				Case: CaseDeficit, Action: ActionCreated,
				Quantity: qty, Delta: qty, Priority: PriorityHigh, Deficit: deficit,
			}
		}
		inc := decimal.Min(drawn, deficit)
		if inc.IsNegative() {
			inc = decimal.Zero
		}
		return Decision{
			Case: CaseDeficit, Action: ActionUpdated,
			Quantity: existing.Quantity.Add(inc), Delta: inc, Priority: PriorityHigh, Deficit: deficit,
		}

	case newStock.LessThan(minStock):
		qty := maxStock.Sub(newStock)
		if existing == nil {
			return Decision{
				Case: CaseBelowMinimum, Action: ActionCreated,
				Quantity: qty, Delta: qty, Priority: PriorityMedium,
			}
		}
		return Decision{
			Case: CaseBelowMinimum, Action: ActionUpdated,
			Quantity: qty, Delta: qty.Sub(existing.Quantity), Priority: PriorityMedium,
		}
	}
	return Decision{Case: CaseNone, Action: ActionNone, Delta: decimal.Zero}
}

// PlanRelease decides how the pendiente requisition shrinks after returned
// units raised stock to newStock. An alta requisition gives back the part of
// the return that lands below zero and drops to media once stock is no longer
// negative. A media requisition is recomputed as max-newStock. The quantity
// only ever decreases and never reaches zero.
func PlanRelease(newStock, maxStock, returned decimal.Decimal, existing *Requisition) Decision {
	none := Decision{Case: CaseNone, Action: ActionNone, Delta: decimal.Zero}
	if existing == nil || !returned.IsPositive() {
		return none
	}

	qty := maxStock.Sub(newStock)
	priority := existing.Priority
	if existing.Priority == PriorityHigh {
		previous := newStock.Sub(returned)
		belowZero := decimal.Min(returned, decimal.Max(previous.Neg(), decimal.Zero))
		qty = existing.Quantity.Sub(belowZero)
		if !newStock.IsNegative() {
			priority = PriorityMedium
		}
	}
	if !qty.IsPositive() || qty.GreaterThanOrEqual(existing.Quantity) {
		return none
	}
	return Decision{
		Case: CaseReturned, Action: ActionUpdated,
		Quantity: qty, Delta: qty.Sub(existing.Quantity), Priority: priority,
	}
}

// SupplierResolver picks the supplier a new requisition is routed to.
type SupplierResolver interface {
	Resolve(ctx context.Context, a *article.Article) (*id.ID, error)
}

// Trigger describes the draw that caused a reconciliation.
type Trigger struct {
	RequestID     id.ID
	RequestNumber string
	Actor         string
	Drawn         decimal.Decimal
}

// Outcome is the persisted result of Reconcile.
type Outcome struct {
	Action      Action
	Requisition *Requisition
	Delta       decimal.Decimal
}

// Changed reports whether a requisition was created or updated.
func (o Outcome) Changed() bool {
	return o.Action != ActionNone
}

// Consolidator keeps at most one pendiente requisition per article.
type Consolidator struct {
	repo      Repository
	suppliers SupplierResolver
	numerator numerator.Generator
	journal   *audit.Recorder
	now       func() time.Time
}

// NewConsolidator creates a Consolidator.
func NewConsolidator(repo Repository, suppliers SupplierResolver, gen numerator.Generator, journal *audit.Recorder, now func() time.Time) *Consolidator {
	if now == nil {
		now = time.Now
	}
	return &Consolidator{
		repo:      repo,
		suppliers: suppliers,
		numerator: gen,
		journal:   journal,
		now:       now,
	}
}

// Reconcile applies Plan for an article whose stock has just been drawn down.
// a must carry the post-deduction stock. Must run inside the transaction that
// applied the deduction; the pending requisition is row-locked.
func (c *Consolidator) Reconcile(ctx context.Context, a *article.Article, trig Trigger) (Outcome, error) {
	if a == nil {
		return Outcome{}, apperror.NewValidation("article is required")
	}

	newStock := a.StockActual
	if newStock.GreaterThanOrEqual(a.MinStock()) {
		return Outcome{Action: ActionNone, Delta: decimal.Zero}, nil
	}

	existing, err := c.repo.GetPendingForUpdate(ctx, a.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get pending requisition: %w", err)
	}

	d := Plan(newStock, a.MinStock(), a.MaxStock(), trig.Drawn, existing)
	switch d.Action {
	case ActionCreated:
		return c.create(ctx, a, trig, d)
	case ActionUpdated:
		return c.update(ctx, a, existing, trig, d)
	}
	return Outcome{Action: ActionNone, Delta: decimal.Zero}, nil
}

// Release shrinks the pending requisition of an article whose stock has just
// been raised by returned units (trig.Drawn). a must carry the post-return
// stock. Runs inside the caller's transaction.
func (c *Consolidator) Release(ctx context.Context, a *article.Article, trig Trigger) (Outcome, error) {
	if a == nil {
		return Outcome{}, apperror.NewValidation("article is required")
	}
	existing, err := c.repo.GetPendingForUpdate(ctx, a.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get pending requisition: %w", err)
	}

	d := PlanRelease(a.StockActual, a.MaxStock(), trig.Drawn, existing)
	if d.Action != ActionUpdated {
		return Outcome{Action: ActionNone, Delta: decimal.Zero}, nil
	}
	return c.update(ctx, a, existing, trig, d)
}

func (c *Consolidator) create(ctx context.Context, a *article.Article, trig Trigger, d Decision) (Outcome, error) {
	now := c.now()
	number, err := c.numerator.GetNextNumber(ctx, numerator.TicketConfig(numerator.PrefixRequisition), now)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate requisition number: %w", err)
	}

	supplierID, err := c.suppliers.Resolve(ctx, a)
	if err != nil {
		return Outcome{}, err
	}

	r := &Requisition{
		Document:   entity.NewDocument(trig.Actor, now),
		ArticleID:  a.ID,
		Quantity:   d.Quantity,
		State:      StatePending,
		Priority:   d.Priority,
		SupplierID: supplierID,
		Motive:     motive(a, trig, d),
	}
	r.Number = number
	if !id.IsNil(trig.RequestID) {
		r.RequestID = id.Ptr(trig.RequestID)
		r.RequestNumber = trig.RequestNumber
	}

	if err := c.repo.Create(ctx, r); err != nil {
		return Outcome{}, fmt.Errorf("create requisition: %w", err)
	}
	if err := c.link(ctx, r, trig, LinkCreated, d.Delta, now); err != nil {
		return Outcome{}, err
	}
	if err := c.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionCreated, trig.Actor, r.Motive, map[string]any{
		"articleId": a.ID.String(),
		"quantity":  r.Quantity.String(),
		"priority":  string(r.Priority),
		"request":   trig.RequestNumber,
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{Action: ActionCreated, Requisition: r, Delta: d.Delta}, nil
}

func (c *Consolidator) update(ctx context.Context, a *article.Article, r *Requisition, trig Trigger, d Decision) (Outcome, error) {
	now := c.now()
	previous := r.Quantity
	r.Quantity = d.Quantity
	r.Priority = d.Priority
	r.Touch(trig.Actor, now)

	if err := c.repo.Update(ctx, r); err != nil {
		return Outcome{}, fmt.Errorf("update requisition: %w", err)
	}
	if err := c.link(ctx, r, trig, LinkUpdated, d.Delta, now); err != nil {
		return Outcome{}, err
	}

	action := audit.ActionMerged
	var note string
	switch d.Case {
	case CaseDeficit:
		note = fmt.Sprintf("Pedido %s agrega %s por déficit (stock %s)", trig.RequestNumber, d.Delta, a.StockActual)
	case CaseReturned:
		action = audit.ActionUpdated
		note = fmt.Sprintf("Pedido %s devuelve %s al stock: ajustada a %s (stock %s)", trig.RequestNumber, trig.Drawn, d.Quantity, a.StockActual)
	default:
		note = fmt.Sprintf("Pedido %s recalcula a %s (stock %s bajo mínimo %s)", trig.RequestNumber, d.Quantity, a.StockActual, a.MinStock())
	}
	if err := c.journal.Record(ctx, audit.EntityRequisition, r.ID, action, trig.Actor, note, map[string]any{
		"previous": previous.String(),
		"quantity": r.Quantity.String(),
		"delta":    d.Delta.String(),
		"priority": string(r.Priority),
		"request":  trig.RequestNumber,
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{Action: ActionUpdated, Requisition: r, Delta: d.Delta}, nil
}

func (c *Consolidator) link(ctx context.Context, r *Requisition, trig Trigger, action LinkAction, delta decimal.Decimal, at time.Time) error {
	if id.IsNil(trig.RequestID) {
		return nil
	}
	err := c.repo.AddRequestLink(ctx, &RequestLink{
		ID:            id.New(),
		RequestID:     trig.RequestID,
		RequisitionID: r.ID,
		Action:        action,
		Delta:         delta,
		CreatedAt:     at,
	})
	if err != nil {
		return fmt.Errorf("link request: %w", err)
	}
	return nil
}

func motive(a *article.Article, trig Trigger, d Decision) string {
	if d.Case == CaseDeficit {
		return fmt.Sprintf("Stock negativo de %s (%s) tras pedido %s: déficit %s + máximo %s",
			a.Code, a.StockActual, trig.RequestNumber, d.Deficit, a.MaxStock())
	}
	return fmt.Sprintf("Stock de %s bajo mínimo (%s < %s) tras pedido %s: reponer hasta máximo %s",
		a.Code, a.StockActual, a.MinStock(), trig.RequestNumber, a.MaxStock())
}
