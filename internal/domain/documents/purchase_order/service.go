package purchase_order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/entity"
	"almacen/internal/core/id"
	"almacen/internal/core/numerator"
	"almacen/internal/core/security"
	"almacen/internal/core/tx"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
	"almacen/pkg/logger"
)

// Ledger applies stock deltas.
type Ledger interface {
	ApplyDelta(ctx context.Context, articleID id.ID, delta decimal.Decimal, origin stock.Origin) (*stock.Result, error)
}

// CreateInput is a manual order.
type CreateInput struct {
	SupplierID id.ID
	Notes      string
	Lines      []LineInput
}

// LineInput is one manually ordered article. A nil UnitCost takes the article cost.
type LineInput struct {
	ArticleID id.ID
	Quantity  decimal.Decimal
	UnitCost  *decimal.Decimal
}

// FromRequisitionsInput folds pending requisitions into one order.
type FromRequisitionsInput struct {
	RequisitionIDs []id.ID

	// SupplierID may be nil when every requisition carries the same detected supplier.
	SupplierID *id.ID

	// Overrides replace the grouped quantity of an article.
	Overrides map[id.ID]decimal.Decimal
	Notes     string
}

// ReceiptLine is a received quantity of one ordered article.
type ReceiptLine struct {
	ArticleID id.ID
	Quantity  decimal.Decimal
}

// Service aggregates requisitions into purchase orders.
type Service struct {
	repo         Repository
	requisitions requisition.Repository
	articles     article.Repository
	suppliers    supplier.Repository
	ledger       Ledger
	numerator    numerator.Generator
	policy       *security.Policy
	journal      *audit.Recorder
	dispatcher   *notify.Dispatcher
	txManager    tx.Manager
	now          func() time.Time
}

// NewService creates a purchase order service.
func NewService(
	repo Repository,
	requisitions requisition.Repository,
	articles article.Repository,
	suppliers supplier.Repository,
	ledger Ledger,
	gen numerator.Generator,
	policy *security.Policy,
	journal *audit.Recorder,
	dispatcher *notify.Dispatcher,
	txManager tx.Manager,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:         repo,
		requisitions: requisitions,
		articles:     articles,
		suppliers:    suppliers,
		ledger:       ledger,
		numerator:    gen,
		policy:       policy,
		journal:      journal,
		dispatcher:   dispatcher,
		txManager:    txManager,
		now:          now,
	}
}

// Resource describes o for policy checks.
func Resource(o *PurchaseOrder) security.Resource {
	return security.Resource{Kind: "orden", State: string(o.State), OwnerID: o.CreatedBy}
}

func (s *Service) authorize(ctx context.Context, actor security.Actor, op security.Operation, res security.Resource) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	return s.policy.Authorize(ctx, actor, op, res)
}

// Create stores a manual draft order.
func (s *Service) Create(ctx context.Context, actor security.Actor, in CreateInput) (*PurchaseOrder, error) {
	if err := s.authorize(ctx, actor, security.OpOrderCreate, security.Resource{Kind: "orden"}); err != nil {
		return nil, err
	}
	if id.IsNil(in.SupplierID) {
		return nil, apperror.NewValidation("supplier is required").WithDetail("field", "supplierId")
	}
	if len(in.Lines) == 0 {
		return nil, apperror.NewValidation("order must have at least one line").WithDetail("field", "lines")
	}
	seen := make(map[id.ID]bool, len(in.Lines))
	for i, l := range in.Lines {
		if !l.Quantity.IsPositive() {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1)).
				WithDetail("field", "lines")
		}
		if l.UnitCost != nil && l.UnitCost.IsNegative() {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: unit cost cannot be negative", i+1)).
				WithDetail("field", "lines")
		}
		if seen[l.ArticleID] {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: article appears twice", i+1)).
				WithDetail("articleId", l.ArticleID.String())
		}
		seen[l.ArticleID] = true
	}

	var order *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.suppliers.GetByID(ctx, in.SupplierID); err != nil {
			return err
		}
		arts, err := s.loadArticles(ctx, articleIDsOf(in.Lines))
		if err != nil {
			return err
		}

		order, err = s.newOrder(ctx, actor, in.SupplierID, in.Notes)
		if err != nil {
			return err
		}
		for i, l := range in.Lines {
			cost := arts[l.ArticleID].UnitCost
			if l.UnitCost != nil {
				cost = *l.UnitCost
			}
			order.Lines = append(order.Lines, Line{
				LineID:           id.New(),
				LineNo:           i + 1,
				ArticleID:        l.ArticleID,
				Quantity:         l.Quantity,
				QuantityReceived: decimal.Zero,
				UnitCost:         cost,
			})
		}
		order.Recalculate()

		if err := s.persistNew(ctx, order); err != nil {
			return err
		}
		return s.journal.Record(ctx, audit.EntityPurchaseOrder, order.ID, audit.ActionCreated, actor.UserID,
			fmt.Sprintf("Orden %s creada manualmente", order.Number),
			map[string]any{"lines": len(order.Lines), "total": order.Total.String()})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order created", "id", order.ID, "number", order.Number, "total", order.Total.String())
	s.dispatcher.Dispatch(ctx, s.createdNotification(order))
	return order, nil
}

// CreateFromRequisitions folds the given pendiente requisitions into a draft
// order, one line per article. Every id must name a pendiente requisition.
func (s *Service) CreateFromRequisitions(ctx context.Context, actor security.Actor, in FromRequisitionsInput) (*PurchaseOrder, error) {
	if err := s.authorize(ctx, actor, security.OpOrderCreate, security.Resource{Kind: "orden"}); err != nil {
		return nil, err
	}
	ids := uniqueIDs(in.RequisitionIDs)
	if len(ids) == 0 {
		return nil, apperror.NewValidation("at least one requisition is required").WithDetail("field", "requisitionIds")
	}
	for articleID, qty := range in.Overrides {
		if !qty.IsPositive() {
			return nil, apperror.NewValidation("override quantity must be positive").
				WithDetail("articleId", articleID.String())
		}
	}

	var order *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		reqs, err := s.requisitions.ListPendingByIDsForUpdate(ctx, ids)
		if err != nil {
			return fmt.Errorf("load requisitions: %w", err)
		}
		if len(reqs) != len(ids) {
			return apperror.NewPrecondition("some requisitions are not pending").
				WithDetail("requested", len(ids)).
				WithDetail("pending", len(reqs)).
				WithDetail("missing", missingIDs(ids, reqs))
		}

		supplierID, err := s.resolveSupplier(ctx, in.SupplierID, reqs)
		if err != nil {
			return err
		}

		groups := groupByArticle(reqs)
		articleIDs := make([]id.ID, 0, len(groups))
		for _, g := range groups {
			articleIDs = append(articleIDs, g.articleID)
		}
		arts, err := s.loadArticles(ctx, articleIDs)
		if err != nil {
			return err
		}

		order, err = s.newOrder(ctx, actor, supplierID, in.Notes)
		if err != nil {
			return err
		}
		for i, g := range groups {
			qty := g.quantity
			if override, ok := in.Overrides[g.articleID]; ok {
				qty = override
			}
			order.Lines = append(order.Lines, Line{
				LineID:           id.New(),
				LineNo:           i + 1,
				ArticleID:        g.articleID,
				Quantity:         qty,
				QuantityReceived: decimal.Zero,
				UnitCost:         arts[g.articleID].UnitCost,
			})
		}
		order.Recalculate()

		now := s.now()
		for _, r := range reqs {
			order.Sources = append(order.Sources, Source{
				OrderID:           order.ID,
				RequisitionID:     r.ID,
				RequisitionNumber: r.Number,
				ArticleID:         r.ArticleID,
				Quantity:          r.Quantity,
			})
		}
		if err := s.persistNew(ctx, order); err != nil {
			return err
		}

		for _, r := range reqs {
			if err := r.AssignToOrder(order.ID, actor.UserID, now); err != nil {
				return err
			}
			if err := s.requisitions.Update(ctx, r); err != nil {
				return fmt.Errorf("update requisition %s: %w", r.Number, err)
			}
			if err := s.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionStateChanged, actor.UserID,
				"Incluida en orden "+order.Number,
				map[string]any{"orderId": order.ID.String(), "state": string(r.State)}); err != nil {
				return err
			}
		}

		return s.journal.Record(ctx, audit.EntityPurchaseOrder, order.ID, audit.ActionCreated, actor.UserID,
			fmt.Sprintf("Orden %s creada desde %d solicitudes", order.Number, len(reqs)),
			map[string]any{"requisitions": sourceNumbers(order.Sources), "total": order.Total.String()})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order created from requisitions",
		"id", order.ID,
		"number", order.Number,
		"requisitions", len(order.Sources),
		"total", order.Total.String(),
	)
	s.dispatcher.Dispatch(ctx, s.createdNotification(order))
	return order, nil
}

// resolveSupplier validates an explicit supplier or falls back to the one
// every requisition detected.
func (s *Service) resolveSupplier(ctx context.Context, explicit *id.ID, reqs []*requisition.Requisition) (id.ID, error) {
	if explicit != nil && !id.IsNil(*explicit) {
		if _, err := s.suppliers.GetByID(ctx, *explicit); err != nil {
			return id.ID{}, err
		}
		return *explicit, nil
	}

	var common *id.ID
	for _, r := range reqs {
		if r.SupplierID == nil || (common != nil && *common != *r.SupplierID) {
			return id.ID{}, apperror.NewValidation("supplier is required: requisitions have no common supplier").
				WithDetail("field", "supplierId")
		}
		common = r.SupplierID
	}
	if _, err := s.suppliers.GetByID(ctx, *common); err != nil {
		return id.ID{}, err
	}
	return *common, nil
}

type articleGroup struct {
	articleID id.ID
	quantity  decimal.Decimal
}

// groupByArticle sums requisition quantities per article in first-seen order.
func groupByArticle(reqs []*requisition.Requisition) []articleGroup {
	index := make(map[id.ID]int, len(reqs))
	var groups []articleGroup
	for _, r := range reqs {
		if i, ok := index[r.ArticleID]; ok {
			groups[i].quantity = groups[i].quantity.Add(r.Quantity)
			continue
		}
		index[r.ArticleID] = len(groups)
		groups = append(groups, articleGroup{articleID: r.ArticleID, quantity: r.Quantity})
	}
	return groups
}

func (s *Service) newOrder(ctx context.Context, actor security.Actor, supplierID id.ID, notes string) (*PurchaseOrder, error) {
	now := s.now()
	number, err := s.numerator.GetNextNumber(ctx, numerator.TicketConfig(numerator.PrefixOrder), now)
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}
	o := &PurchaseOrder{
		Document:   entity.NewDocument(actor.UserID, now),
		SupplierID: supplierID,
		State:      StateDraft,
		Notes:      notes,
	}
	o.Number = number
	return o, nil
}

func (s *Service) persistNew(ctx context.Context, o *PurchaseOrder) error {
	if err := s.repo.Create(ctx, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if err := s.repo.SaveLines(ctx, o.ID, o.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}
	if len(o.Sources) > 0 {
		if err := s.repo.AddSources(ctx, o.Sources); err != nil {
			return fmt.Errorf("save sources: %w", err)
		}
	}
	return nil
}

func (s *Service) loadArticles(ctx context.Context, ids []id.ID) (map[id.ID]*article.Article, error) {
	arts, err := s.articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	for _, articleID := range ids {
		if _, ok := arts[articleID]; !ok {
			return nil, apperror.NewNotFound("article", articleID.String())
		}
	}
	return arts, nil
}

func (s *Service) createdNotification(o *PurchaseOrder) notify.Notification {
	return notify.Notification{
		TargetRoles: []security.Role{security.RolePurchasing},
		EventType:   notify.EventOrderCreated,
		Title:       "Orden " + o.Number + " en borrador",
		Body:        fmt.Sprintf("%d líneas, total estimado %s", len(o.Lines), o.Total.StringFixed(2)),
		Payload:     map[string]any{"orderId": o.ID.String(), "number": o.Number},
	}
}

// GetByID retrieves an order with lines and sources.
func (s *Service) GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) loadChildren(ctx context.Context, o *PurchaseOrder) error {
	lines, err := s.repo.GetLines(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("get lines: %w", err)
	}
	sources, err := s.repo.GetSources(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("get sources: %w", err)
	}
	o.Lines, o.Sources = lines, sources
	return nil
}

// List returns orders matching the filter, without lines.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*PurchaseOrder, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// History returns the journal narrative of an order.
func (s *Service) History(ctx context.Context, orderID id.ID) ([]audit.Entry, error) {
	if _, err := s.repo.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.journal.History(ctx, audit.EntityPurchaseOrder, orderID)
}

// mutate locks the order, authorizes op and persists whatever fn changed.
func (s *Service) mutate(
	ctx context.Context,
	actor security.Actor,
	op security.Operation,
	orderID id.ID,
	fn func(ctx context.Context, o *PurchaseOrder, now time.Time) error,
) (*PurchaseOrder, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var order *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.loadChildren(ctx, order); err != nil {
			return err
		}
		if err := s.policy.Authorize(ctx, actor, op, Resource(order)); err != nil {
			return err
		}
		if err := fn(ctx, order, s.now()); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return s.repo.SaveLines(ctx, order.ID, order.Lines)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "purchase order updated",
		"id", order.ID,
		"number", order.Number,
		"operation", string(op),
		"state", string(order.State),
	)
	return order, nil
}

// Send dispatches a draft order to its supplier.
func (s *Service) Send(ctx context.Context, actor security.Actor, orderID id.ID) (*PurchaseOrder, error) {
	o, err := s.mutate(ctx, actor, security.OpOrderSend, orderID, func(ctx context.Context, o *PurchaseOrder, now time.Time) error {
		if err := o.Send(actor.UserID, now); err != nil {
			return err
		}
		return s.journal.Record(ctx, audit.EntityPurchaseOrder, o.ID, audit.ActionSent, actor.UserID, "Orden enviada al proveedor", nil)
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.Dispatch(ctx, notify.Notification{
		TargetRoles: []security.Role{security.RolePurchasing, security.RoleWarehouse},
		EventType:   notify.EventOrderSent,
		Title:       "Orden " + o.Number + " enviada",
		Payload:     map[string]any{"orderId": o.ID.String()},
	})
	return o, nil
}

// UpdateState sets the order state manually. Moving to recibida stamps the
// receipt time and completes the in-order requisitions.
func (s *Service) UpdateState(ctx context.Context, actor security.Actor, orderID id.ID, to State) (*PurchaseOrder, error) {
	o, err := s.mutate(ctx, actor, security.OpOrderUpdateState, orderID, func(ctx context.Context, o *PurchaseOrder, now time.Time) error {
		from := o.State
		if from == to {
			return nil
		}
		if err := o.SetState(to, actor.UserID, now); err != nil {
			return err
		}
		if to == StateReceived {
			if err := s.completeRequisitions(ctx, o, actor.UserID, now); err != nil {
				return err
			}
		}
		return s.journal.Record(ctx, audit.EntityPurchaseOrder, o.ID, audit.ActionStateChanged, actor.UserID,
			fmt.Sprintf("Estado %s → %s", from, to),
			map[string]any{"from": string(from), "to": string(to)})
	})
	if err != nil {
		return nil, err
	}
	if o.State == StateReceived {
		s.dispatcher.Dispatch(ctx, s.receivedNotification(o))
	}
	return o, nil
}

// RegisterReceipt books received quantities into stock and advances the order
// to parcial or recibida.
func (s *Service) RegisterReceipt(ctx context.Context, actor security.Actor, orderID id.ID, lines []ReceiptLine) (*PurchaseOrder, error) {
	if len(lines) == 0 {
		return nil, apperror.NewValidation("receipt must have at least one line").WithDetail("field", "lines")
	}
	for i, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1)).
				WithDetail("field", "lines")
		}
	}

	o, err := s.mutate(ctx, actor, security.OpOrderReceive, orderID, func(ctx context.Context, o *PurchaseOrder, now time.Time) error {
		if o.State != StateSent && o.State != StatePartial {
			return o.transitionError(StateReceived)
		}

		origin := stock.Origin{Type: stock.OriginOrderReceipt, ID: o.ID, Number: o.Number, Actor: actor.UserID}
		received := make([]string, 0, len(lines))
		for _, rl := range lines {
			line, err := o.LineByArticle(rl.ArticleID)
			if err != nil {
				return err
			}
			if rl.Quantity.GreaterThan(line.Outstanding()) {
				return apperror.NewValidation("received quantity exceeds outstanding quantity").
					WithDetail("articleId", rl.ArticleID.String()).
					WithDetail("outstanding", line.Outstanding().String())
			}
			if _, err := s.ledger.ApplyDelta(ctx, rl.ArticleID, rl.Quantity, origin); err != nil {
				return err
			}
			line.QuantityReceived = line.QuantityReceived.Add(rl.Quantity)
			received = append(received, fmt.Sprintf("línea %d: %s", line.LineNo, rl.Quantity))
		}

		if o.FullyReceived() {
			o.State = StateReceived
			o.ReceivedAt = &now
			o.ReceivedBy = actor.UserID
			if err := s.completeRequisitions(ctx, o, actor.UserID, now); err != nil {
				return err
			}
		} else {
			o.State = StatePartial
		}
		o.Touch(actor.UserID, now)

		return s.journal.Record(ctx, audit.EntityPurchaseOrder, o.ID, audit.ActionReceived, actor.UserID,
			"Recepción registrada: "+strings.Join(received, ", "),
			map[string]any{"state": string(o.State)})
	})
	if err != nil {
		return nil, err
	}
	if o.State == StateReceived {
		s.dispatcher.Dispatch(ctx, s.receivedNotification(o))
	}
	return o, nil
}

func (s *Service) completeRequisitions(ctx context.Context, o *PurchaseOrder, actor string, now time.Time) error {
	reqs, err := s.requisitions.ListByOrderForUpdate(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("load order requisitions: %w", err)
	}
	for _, r := range reqs {
		if r.State != requisition.StateInOrder {
			continue
		}
		if err := r.Complete(actor, now); err != nil {
			return err
		}
		if err := s.requisitions.Update(ctx, r); err != nil {
			return fmt.Errorf("update requisition %s: %w", r.Number, err)
		}
		if err := s.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionCompleted, actor,
			"Completada con la recepción de la orden "+o.Number, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) receivedNotification(o *PurchaseOrder) notify.Notification {
	return notify.Notification{
		TargetRoles: []security.Role{security.RoleWarehouse, security.RolePurchasing},
		EventType:   notify.EventOrderReceived,
		Title:       "Orden " + o.Number + " recibida",
		Payload:     map[string]any{"orderId": o.ID.String()},
	}
}

func articleIDsOf(lines []LineInput) []id.ID {
	out := make([]id.ID, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.ArticleID)
	}
	return out
}

func uniqueIDs(ids []id.ID) []id.ID {
	seen := make(map[id.ID]bool, len(ids))
	out := make([]id.ID, 0, len(ids))
	for _, v := range ids {
		if id.IsNil(v) || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func missingIDs(ids []id.ID, found []*requisition.Requisition) []string {
	have := make(map[id.ID]bool, len(found))
	for _, r := range found {
		have[r.ID] = true
	}
	var out []string
	for _, v := range ids {
		if !have[v] {
			out = append(out, v.String())
		}
	}
	return out
}

func sourceNumbers(sources []Source) []string {
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		out = append(out, src.RequisitionNumber)
	}
	return out
}
