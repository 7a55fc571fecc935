package request

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
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
	"almacen/pkg/logger"
)

// Ledger applies stock deltas.
type Ledger interface {
	ApplyDelta(ctx context.Context, articleID id.ID, delta decimal.Decimal, origin stock.Origin) (*stock.Result, error)
}

// Reconciler keeps requisitions in step with stock.
type Reconciler interface {
	Reconcile(ctx context.Context, a *article.Article, trig requisition.Trigger) (requisition.Outcome, error)
	Release(ctx context.Context, a *article.Article, trig requisition.Trigger) (requisition.Outcome, error)
}

// CreateInput is the payload of Create.
type CreateInput struct {
	Type        Type
	ProjectName string
	EquipoID    *id.ID
	Location    string
	Notes       string
	Lines       []LineInput
}

// LineInput is one requested article.
type LineInput struct {
	ArticleID id.ID
	Quantity  decimal.Decimal
}

// Validate checks the payload shape.
func (in CreateInput) Validate() error {
	if !in.Type.Valid() {
		return apperror.NewValidation("request type must be proyecto or equipo").
			WithDetail("field", "type")
	}
	switch in.Type {
	case TypeProject:
		if strings.TrimSpace(in.ProjectName) == "" {
			return apperror.NewValidation("project name is required").WithDetail("field", "projectName")
		}
	case TypeEquipo:
		if in.EquipoID == nil || id.IsNil(*in.EquipoID) {
			return apperror.NewValidation("equipo is required").WithDetail("field", "equipoId")
		}
	}
	if len(in.Lines) == 0 {
		return apperror.NewValidation("request must have at least one line").WithDetail("field", "lines")
	}
	seen := make(map[id.ID]bool, len(in.Lines))
	for i, l := range in.Lines {
		if id.IsNil(l.ArticleID) {
			return apperror.NewValidation(fmt.Sprintf("line %d: article is required", i+1)).
				WithDetail("field", "lines")
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1)).
				WithDetail("field", "lines")
		}
		if seen[l.ArticleID] {
			return apperror.NewValidation(fmt.Sprintf("line %d: article appears twice", i+1)).
				WithDetail("articleId", l.ArticleID.String())
		}
		seen[l.ArticleID] = true
	}
	return nil
}

// Service drives the request lifecycle.
type Service struct {
	repo         Repository
	equipos      equipo.Repository
	ledger       Ledger
	consolidator Reconciler
	numerator    numerator.Generator
	policy       *security.Policy
	journal      *audit.Recorder
	dispatcher   *notify.Dispatcher
	txManager    tx.Manager
	now          func() time.Time
}

// NewService creates a request service.
func NewService(
	repo Repository,
	equipos equipo.Repository,
	ledger Ledger,
	consolidator Reconciler,
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
		equipos:      equipos,
		ledger:       ledger,
		consolidator: consolidator,
		numerator:    gen,
		policy:       policy,
		journal:      journal,
		dispatcher:   dispatcher,
		txManager:    txManager,
		now:          now,
	}
}

// Resource describes r for policy checks.
func Resource(r *Request) security.Resource {
	return security.Resource{
		Kind:                 "pedido",
		Type:                 string(r.Type),
		State:                string(r.State),
		OwnerID:              r.RequesterID,
		SupervisorID:         r.SupervisorID,
		AssignedSupervisorID: r.AssignedSupervisorID,
	}
}

// Create validates and stores a request, draws every line from stock and
// reconciles requisitions, all in one transaction.
func (s *Service) Create(ctx context.Context, actor security.Actor, in CreateInput) (*Request, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, actor, security.OpRequestCreate, security.Resource{Kind: "pedido", Type: string(in.Type)}); err != nil {
		return nil, err
	}

	var (
		req      *Request
		outcomes []requisition.Outcome
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := s.now()
		req = &Request{
			Document:    entity.NewDocument(actor.UserID, now),
			Type:        in.Type,
			RequesterID: actor.UserID,
			ProjectName: strings.TrimSpace(in.ProjectName),
			Location:    in.Location,
			Notes:       in.Notes,
		}
		req.State = req.InitialState()

		if in.Type == TypeEquipo {
			eq, err := s.equipos.GetByID(ctx, *in.EquipoID)
			if err != nil {
				return err
			}
			req.EquipoID = id.Ptr(eq.ID)
			req.SupervisorID = eq.SupervisorID
			if req.Location == "" {
				req.Location = eq.Location
			}
		}

		number, err := s.numerator.GetNextNumber(ctx, numerator.TicketConfig(numerator.PrefixRequest), now)
		if err != nil {
			return fmt.Errorf("generate request number: %w", err)
		}
		req.Number = number

		for i, l := range in.Lines {
			req.Lines = append(req.Lines, Line{
				LineID:    id.New(),
				LineNo:    i + 1,
				ArticleID: l.ArticleID,
				Quantity:  l.Quantity,
			})
		}

		if err := s.repo.Create(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if err := s.repo.SaveLines(ctx, req.ID, req.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}

		origin := stock.Origin{Type: stock.OriginRequest, ID: req.ID, Number: req.Number, Actor: actor.UserID}
		for _, l := range req.Lines {
			out, err := s.draw(ctx, req, l.ArticleID, l.Quantity, origin, actor.UserID)
			if err != nil {
				return err
			}
			if out.Changed() {
				outcomes = append(outcomes, out)
			}
		}

		return s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionCreated, actor.UserID,
			fmt.Sprintf("Pedido %s creado con %d líneas", req.Number, len(req.Lines)),
			map[string]any{"type": string(req.Type), "lines": len(req.Lines), "requisitions": len(outcomes)})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "request created",
		"id", req.ID,
		"number", req.Number,
		"type", string(req.Type),
		"requisitions", len(outcomes),
	)
	s.dispatcher.Dispatch(ctx, createdNotifications(req, outcomes)...)
	return req, nil
}

// draw deducts qty from stock and reconciles the article's requisition.
func (s *Service) draw(ctx context.Context, req *Request, articleID id.ID, qty decimal.Decimal, origin stock.Origin, actor string) (requisition.Outcome, error) {
	res, err := s.ledger.ApplyDelta(ctx, articleID, qty.Neg(), origin)
	if err != nil {
		return requisition.Outcome{}, err
	}
	out, err := s.consolidator.Reconcile(ctx, res.Article, requisition.Trigger{
		RequestID:     req.ID,
		RequestNumber: req.Number,
		Actor:         actor,
		Drawn:         qty,
	})
	if err != nil {
		return requisition.Outcome{}, fmt.Errorf("reconcile article %s: %w", articleID, err)
	}
	return out, nil
}

// giveBack returns qty units of an article to stock and shrinks its pending
// requisition accordingly.
func (s *Service) giveBack(ctx context.Context, req *Request, articleID id.ID, qty decimal.Decimal, origin stock.Origin, actor string) (requisition.Outcome, error) {
	res, err := s.ledger.ApplyDelta(ctx, articleID, qty, origin)
	if err != nil {
		return requisition.Outcome{}, err
	}
	out, err := s.consolidator.Release(ctx, res.Article, requisition.Trigger{
		RequestID:     req.ID,
		RequestNumber: req.Number,
		Actor:         actor,
		Drawn:         qty,
	})
	if err != nil {
		return requisition.Outcome{}, fmt.Errorf("release article %s: %w", articleID, err)
	}
	return out, nil
}

func createdNotifications(req *Request, outcomes []requisition.Outcome) []notify.Notification {
	payload := map[string]any{"requestId": req.ID.String(), "number": req.Number}
	out := []notify.Notification{{
		TargetRoles: []security.Role{security.RoleWarehouse},
		EventType:   notify.EventRequestCreated,
		Title:       "Nuevo pedido " + req.Number,
		Body:        fmt.Sprintf("Pedido %s con %d líneas pendiente de dispersión", req.Number, len(req.Lines)),
		Payload:     payload,
	}}
	if req.Type == TypeEquipo && req.SupervisorID != "" {
		out = append(out, notify.Notification{
			TargetUserID: req.SupervisorID,
			EventType:    notify.EventRequestCreated,
			Title:        "Pedido por aprobar " + req.Number,
			Body:         fmt.Sprintf("El pedido %s espera su aprobación", req.Number),
			Payload:      payload,
		})
	}
	if len(outcomes) > 0 {
		out = append(out, requisitionsNotification(req, outcomes))
	}
	return out
}

func requisitionsNotification(req *Request, outcomes []requisition.Outcome) notify.Notification {
	numbers := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		numbers = append(numbers, o.Requisition.Number)
	}
	return notify.Notification{
		TargetRoles: []security.Role{security.RolePurchasing},
		EventType:   notify.EventRequisitionChanged,
		Title:       "Solicitudes de compra actualizadas",
		Body:        fmt.Sprintf("Pedido %s generó o actualizó: %s", req.Number, strings.Join(numbers, ", ")),
		Payload:     map[string]any{"requestId": req.ID.String(), "requisitions": numbers},
	}
}

// GetByID retrieves a request with its lines.
func (s *Service) GetByID(ctx context.Context, requestID id.ID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	req.Lines = lines
	return req, nil
}

// List returns requests matching the filter, without lines.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Request, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// History returns the journal narrative of a request.
func (s *Service) History(ctx context.Context, requestID id.ID) ([]audit.Entry, error) {
	if _, err := s.repo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.journal.History(ctx, audit.EntityRequest, requestID)
}

// loadForUpdate locks the request and loads its lines. Call inside a transaction.
func (s *Service) loadForUpdate(ctx context.Context, requestID id.ID) (*Request, error) {
	req, err := s.repo.GetForUpdate(ctx, requestID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	req.Lines = lines
	return req, nil
}

// mutate runs fn on the locked request under op's policy and persists the header
// and lines. Notifications returned by fn are dispatched after commit.
func (s *Service) mutate(
	ctx context.Context,
	actor security.Actor,
	op security.Operation,
	requestID id.ID,
	fn func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error),
) (*Request, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	var (
		req   *Request
		notes []notify.Notification
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.loadForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(ctx, actor, op, Resource(req)); err != nil {
			return err
		}

		notes, err = fn(ctx, req, s.now())
		if err != nil {
			return err
		}

		if err := s.repo.Update(ctx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if err := s.repo.SaveLines(ctx, req.ID, req.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "request updated",
		"id", req.ID,
		"number", req.Number,
		"operation", string(op),
		"state", string(req.State),
	)
	s.dispatcher.Dispatch(ctx, notes...)
	return req, nil
}

// SetDispersed toggles the dispersal checklist flag of one line.
func (s *Service) SetDispersed(ctx context.Context, actor security.Actor, requestID, lineID id.ID, dispersed bool) (*Request, error) {
	return s.mutate(ctx, actor, security.OpRequestDisperse, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		prev, err := req.SetDispersed(lineID, dispersed, actor.UserID, now)
		if err != nil {
			return nil, err
		}
		line, _ := req.Line(lineID)
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionDispersed, actor.UserID,
			fmt.Sprintf("Línea %d %s (%d%%)", line.LineNo, dispersedWord(dispersed), req.DispersalPercent()),
			map[string]any{"lineId": lineID.String(), "dispersed": dispersed, "from": string(prev), "to": string(req.State)},
		); err != nil {
			return nil, err
		}
		if prev != StateCompleted && req.State == StateCompleted {
			return []notify.Notification{{
				TargetRoles:  []security.Role{security.RoleSupervisor},
				TargetUserID: req.RequesterID,
				EventType:    notify.EventRequestCompleted,
				Title:        "Pedido " + req.Number + " dispersado",
				Body:         "Todas las líneas fueron dispersadas",
				Payload:      map[string]any{"requestId": req.ID.String()},
			}}, nil
		}
		return nil, nil
	})
}

func dispersedWord(dispersed bool) string {
	if dispersed {
		return "dispersada"
	}
	return "desmarcada"
}

// Approve approves an equipo request.
func (s *Service) Approve(ctx context.Context, actor security.Actor, requestID id.ID) (*Request, error) {
	return s.mutate(ctx, actor, security.OpRequestApprove, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		if err := req.Approve(actor.UserID, now); err != nil {
			return nil, err
		}
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionApproved, actor.UserID, "Pedido aprobado", nil); err != nil {
			return nil, err
		}
		return []notify.Notification{{
			TargetRoles:  []security.Role{security.RoleWarehouse},
			TargetUserID: req.RequesterID,
			EventType:    notify.EventRequestApproved,
			Title:        "Pedido " + req.Number + " aprobado",
			Body:         "El pedido puede dispersarse",
			Payload:      map[string]any{"requestId": req.ID.String()},
		}}, nil
	})
}

// Reject returns an equipo request to pendiente_aprobacion with the reason recorded.
func (s *Service) Reject(ctx context.Context, actor security.Actor, requestID id.ID, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.NewValidation("rejection reason is required").WithDetail("field", "reason")
	}
	return s.mutate(ctx, actor, security.OpRequestReject, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		if err := req.Reject(actor.UserID, reason, now); err != nil {
			return nil, err
		}
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionRejected, actor.UserID, reason, nil); err != nil {
			return nil, err
		}
		return []notify.Notification{{
			TargetUserID: req.RequesterID,
			EventType:    notify.EventRequestRejected,
			Title:        "Pedido " + req.Number + " rechazado",
			Body:         reason,
			Payload:      map[string]any{"requestId": req.ID.String()},
		}}, nil
	})
}

// MarkReady assigns the receiving supervisor to a fully dispersed request.
func (s *Service) MarkReady(ctx context.Context, actor security.Actor, requestID id.ID, supervisorID string) (*Request, error) {
	if supervisorID == "" {
		return nil, apperror.NewValidation("receiving supervisor is required").WithDetail("field", "supervisorId")
	}
	return s.mutate(ctx, actor, security.OpRequestMarkReady, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		if err := req.MarkReady(supervisorID, actor.UserID, now); err != nil {
			return nil, err
		}
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionReady, actor.UserID,
			"Listo para entrega", map[string]any{"supervisorId": supervisorID}); err != nil {
			return nil, err
		}
		return []notify.Notification{{
			TargetUserID: supervisorID,
			EventType:    notify.EventRequestReady,
			Title:        "Pedido " + req.Number + " listo para entrega",
			Body:         "Confirme la recepción del material",
			Payload:      map[string]any{"requestId": req.ID.String()},
		}}, nil
	})
}

// Receive confirms delivery by the assigned supervisor.
func (s *Service) Receive(ctx context.Context, actor security.Actor, requestID id.ID) (*Request, error) {
	return s.mutate(ctx, actor, security.OpRequestReceive, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		if err := req.Receive(actor.UserID, now); err != nil {
			return nil, err
		}
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionDelivered, actor.UserID, "Pedido entregado", nil); err != nil {
			return nil, err
		}
		return []notify.Notification{{
			TargetRoles:  []security.Role{security.RoleWarehouse},
			TargetUserID: req.RequesterID,
			EventType:    notify.EventRequestDelivered,
			Title:        "Pedido " + req.Number + " entregado",
			Payload:      map[string]any{"requestId": req.ID.String()},
		}}, nil
	})
}

// RejectDelivery sends a ready request back to dispersal.
func (s *Service) RejectDelivery(ctx context.Context, actor security.Actor, requestID id.ID, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.NewValidation("rejection reason is required").WithDetail("field", "reason")
	}
	return s.mutate(ctx, actor, security.OpRequestRejectDelivery, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		if err := req.RejectDelivery(actor.UserID, reason, now); err != nil {
			return nil, err
		}
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionDeliveryRejected, actor.UserID, reason, nil); err != nil {
			return nil, err
		}
		return []notify.Notification{{
			TargetRoles: []security.Role{security.RoleWarehouse},
			EventType:   notify.EventRequestDeliveryRejected,
			Title:       "Entrega de " + req.Number + " rechazada",
			Body:        reason,
			Payload:     map[string]any{"requestId": req.ID.String()},
		}}, nil
	})
}

// UpdateLineQuantity changes the quantity of an undispersed line while the
// request is still pending. The difference goes through the ledger; an
// increase is reconciled like a new draw and a decrease shrinks the pending
// requisition.
func (s *Service) UpdateLineQuantity(ctx context.Context, actor security.Actor, requestID, lineID id.ID, qty decimal.Decimal) (*Request, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity")
	}
	var changed []requisition.Outcome
	return s.mutate(ctx, actor, security.OpRequestEdit, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		line, err := editableLine(req, lineID)
		if err != nil {
			return nil, err
		}
		diff := qty.Sub(line.Quantity)
		if diff.IsZero() {
			return nil, nil
		}

		origin := stock.Origin{Type: stock.OriginRequestEdit, ID: req.ID, Number: req.Number, Actor: actor.UserID}
		var out requisition.Outcome
		if diff.IsPositive() {
			out, err = s.draw(ctx, req, line.ArticleID, diff, origin, actor.UserID)
		} else {
			out, err = s.giveBack(ctx, req, line.ArticleID, diff.Neg(), origin, actor.UserID)
		}
		if err != nil {
			return nil, err
		}
		if out.Changed() {
			changed = append(changed, out)
		}

		previous := line.Quantity
		line.Quantity = qty
		req.Touch(actor.UserID, now)
		if err := s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionLineUpdated, actor.UserID,
			fmt.Sprintf("Línea %d: %s → %s", line.LineNo, previous, qty),
			map[string]any{"lineId": lineID.String(), "previous": previous.String(), "quantity": qty.String()},
		); err != nil {
			return nil, err
		}
		if len(changed) > 0 {
			return []notify.Notification{requisitionsNotification(req, changed)}, nil
		}
		return nil, nil
	})
}

// RemoveLine deletes an undispersed line, returns its quantity to stock and
// shrinks the pending requisition of the article. The last line cannot be
// removed; cancel the request instead.
func (s *Service) RemoveLine(ctx context.Context, actor security.Actor, requestID, lineID id.ID) (*Request, error) {
	return s.mutate(ctx, actor, security.OpRequestEdit, requestID, func(ctx context.Context, req *Request, now time.Time) ([]notify.Notification, error) {
		line, err := editableLine(req, lineID)
		if err != nil {
			return nil, err
		}
		if len(req.Lines) == 1 {
			return nil, apperror.NewPrecondition("cannot remove the last line; annul the request instead").
				WithDetail("number", req.Number)
		}

		origin := stock.Origin{Type: stock.OriginRequestEdit, ID: req.ID, Number: req.Number, Actor: actor.UserID}
		if _, err := s.giveBack(ctx, req, line.ArticleID, line.Quantity, origin, actor.UserID); err != nil {
			return nil, err
		}

		removed := *line
		lines := make([]Line, 0, len(req.Lines)-1)
		for _, l := range req.Lines {
			if l.LineID != lineID {
				l.LineNo = len(lines) + 1
				lines = append(lines, l)
			}
		}
		req.Lines = lines
		req.Touch(actor.UserID, now)

		return nil, s.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionLineRemoved, actor.UserID,
			fmt.Sprintf("Línea %d eliminada (%s)", removed.LineNo, removed.Quantity),
			map[string]any{"articleId": removed.ArticleID.String(), "quantity": removed.Quantity.String()},
		)
	})
}

func editableLine(req *Request, lineID id.ID) (*Line, error) {
	if !req.Editable() {
		return nil, apperror.NewPrecondition("request lines can only change while pending").
			WithDetail("number", req.Number).
			WithDetail("state", req.State)
	}
	line, err := req.Line(lineID)
	if err != nil {
		return nil, err
	}
	if line.Dispersed {
		return nil, apperror.NewPrecondition("line is already dispersed").
			WithDetail("lineNo", line.LineNo)
	}
	return line, nil
}
