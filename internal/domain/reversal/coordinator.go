// Package reversal executes compensating transactions (anulaciones) for
// requests, purchase orders and single requisitions.
package reversal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/core/security"
	"almacen/internal/core/tx"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
	"almacen/pkg/logger"
)

// Ledger applies stock deltas.
type Ledger interface {
	ApplyDelta(ctx context.Context, articleID id.ID, delta decimal.Decimal, origin stock.Origin) (*stock.Result, error)
}

// ArticleDelta is the stock returned or removed for one article.
type ArticleDelta struct {
	ArticleID id.ID           `json:"articleId"`
	Delta     decimal.Decimal `json:"delta"`
}

// RequestAnnulment summarizes AnnulRequest.
type RequestAnnulment struct {
	Request               *request.Request `json:"request"`
	ArticlesReverted      []ArticleDelta   `json:"articlesReverted"`
	RequisitionsCancelled []string         `json:"requisitionsCancelled"`
	RequisitionsReduced   []string         `json:"requisitionsReduced"`
	OrdersAffected        []string         `json:"ordersAffected"`
}

// OrderAnnulment summarizes AnnulOrder.
type OrderAnnulment struct {
	Order                *purchase_order.PurchaseOrder `json:"order"`
	ArticlesReverted     []ArticleDelta                `json:"articlesReverted"`
	RequisitionsReopened []string                      `json:"requisitionsReopened"`
	RequisitionsMerged   []string                      `json:"requisitionsMerged"`
}

// Coordinator runs every reversal in a single transaction.
type Coordinator struct {
	requests     request.Repository
	requisitions requisition.Repository
	orders       purchase_order.Repository
	ledger       Ledger
	policy       *security.Policy
	journal      *audit.Recorder
	dispatcher   *notify.Dispatcher
	txManager    tx.Manager
	now          func() time.Time
}

// NewCoordinator creates a reversal coordinator.
func NewCoordinator(
	requests request.Repository,
	requisitions requisition.Repository,
	orders purchase_order.Repository,
	ledger Ledger,
	policy *security.Policy,
	journal *audit.Recorder,
	dispatcher *notify.Dispatcher,
	txManager tx.Manager,
	now func() time.Time,
) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		requests:     requests,
		requisitions: requisitions,
		orders:       orders,
		ledger:       ledger,
		policy:       policy,
		journal:      journal,
		dispatcher:   dispatcher,
		txManager:    txManager,
		now:          now,
	}
}

func requireReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}
	return nil
}

// AnnulRequest cancels a request and returns every line quantity to stock.
// A linked requisition no other live request fed is cancelled; orders holding
// it stay intact with the link flagged as detached. A requisition shared with
// other requests only loses this request's contribution and passes to the
// oldest remaining contributor when this request spawned it. Fails without any
// mutation when a linked requisition is already completada.
func (c *Coordinator) AnnulRequest(ctx context.Context, actor security.Actor, requestID id.ID, reason string) (*RequestAnnulment, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	var result *RequestAnnulment
	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		req, err := c.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Lines, err = c.requests.GetLines(ctx, requestID); err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		if err := c.policy.Authorize(ctx, actor, security.OpRequestAnnul, request.Resource(req)); err != nil {
			return err
		}
		if req.State.Terminal() {
			return apperror.NewInvalidTransition("request", req.State, request.StateCancelled).
				WithDetail("number", req.Number)
		}

		linked, err := c.linkedRequisitions(ctx, req.ID)
		if err != nil {
			return err
		}
		for _, lk := range linked {
			if lk.requisition.State == requisition.StateCompleted {
				return apperror.NewPrecondition("a linked requisition is already completed; material has arrived").
					WithDetail("number", req.Number).
					WithDetail("requisition", lk.requisition.Number)
			}
		}

		now := c.now()
		result = &RequestAnnulment{Request: req}

		origin := stock.Origin{Type: stock.OriginRequestAnnul, ID: req.ID, Number: req.Number, Actor: actor.UserID}
		for _, l := range req.Lines {
			if _, err := c.ledger.ApplyDelta(ctx, l.ArticleID, l.Quantity, origin); err != nil {
				return err
			}
			result.ArticlesReverted = append(result.ArticlesReverted, ArticleDelta{ArticleID: l.ArticleID, Delta: l.Quantity})
		}

		orders := make(map[id.ID]bool)
		for _, lk := range linked {
			r := lk.requisition
			if r.State != requisition.StatePending && r.State != requisition.StateInOrder {
				continue
			}

			heirs, err := c.liveContributors(ctx, r.ID, req.ID)
			if err != nil {
				return err
			}
			own := decimal.Max(lk.contributed, decimal.Zero)
			if len(heirs) > 0 && r.Quantity.Sub(own).IsPositive() {
				if err := c.reduce(ctx, r, own, heirs[0], req, actor.UserID, reason, now); err != nil {
					return err
				}
				if r.State == requisition.StateInOrder && r.PurchaseOrderID != nil {
					orders[*r.PurchaseOrderID] = true
				}
				result.RequisitionsReduced = append(result.RequisitionsReduced, r.Number)
				continue
			}

			if r.State == requisition.StateInOrder && r.PurchaseOrderID != nil {
				if err := c.detach(ctx, *r.PurchaseOrderID, r, req, actor.UserID, now); err != nil {
					return err
				}
				orders[*r.PurchaseOrderID] = true
			}
			if err := r.Cancel(actor.UserID, reason, now); err != nil {
				return err
			}
			if err := c.requisitions.Update(ctx, r); err != nil {
				return fmt.Errorf("update requisition %s: %w", r.Number, err)
			}
			if err := c.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionCancelled, actor.UserID,
				fmt.Sprintf("Cancelada por anulación del pedido %s: %s", req.Number, reason), nil); err != nil {
				return err
			}
			result.RequisitionsCancelled = append(result.RequisitionsCancelled, r.Number)
		}

		for orderID := range orders {
			o, err := c.orders.GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			result.OrdersAffected = append(result.OrdersAffected, o.Number)
		}
		sort.Strings(result.OrdersAffected)

		if err := req.Cancel(actor.UserID, reason, now); err != nil {
			return err
		}
		if err := c.requests.Update(ctx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		return c.journal.Record(ctx, audit.EntityRequest, req.ID, audit.ActionCancelled, actor.UserID,
			fmt.Sprintf("Pedido anulado por %s (%s): %s", actor.UserID, actor.Role, reason),
			map[string]any{
				"articlesReverted":      result.ArticlesReverted,
				"requisitionsCancelled": result.RequisitionsCancelled,
				"requisitionsReduced":   result.RequisitionsReduced,
				"ordersAffected":        result.OrdersAffected,
			})
	})
	if err != nil {
		return nil, err
	}

	req := result.Request
	logger.Info(ctx, "request annulled",
		"id", req.ID,
		"number", req.Number,
		"articles", len(result.ArticlesReverted),
		"requisitions_cancelled", len(result.RequisitionsCancelled),
		"requisitions_reduced", len(result.RequisitionsReduced),
		"orders_affected", len(result.OrdersAffected),
	)
	c.dispatcher.Dispatch(ctx, notify.Notification{
		TargetUserID: req.RequesterID,
		EventType:    notify.EventRequestCancelled,
		Title:        "Pedido " + req.Number + " anulado",
		Body:         reason,
		Payload: map[string]any{
			"requestId":             req.ID.String(),
			"requisitionsCancelled": result.RequisitionsCancelled,
			"ordersAffected":        result.OrdersAffected,
		},
	})
	return result, nil
}

// linkedRequisition is a requisition a request created or fed, with the
// quantity that request added to it.
type linkedRequisition struct {
	requisition *requisition.Requisition
	contributed decimal.Decimal
}

// linkedRequisitions locks every requisition a request created or fed.
func (c *Coordinator) linkedRequisitions(ctx context.Context, requestID id.ID) ([]linkedRequisition, error) {
	links, err := c.requisitions.LinksByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request links: %w", err)
	}
	index := make(map[id.ID]int, len(links))
	var out []linkedRequisition
	for _, l := range links {
		if i, ok := index[l.RequisitionID]; ok {
			out[i].contributed = out[i].contributed.Add(l.Delta)
			continue
		}
		r, err := c.requisitions.GetForUpdate(ctx, l.RequisitionID)
		if err != nil {
			return nil, fmt.Errorf("lock requisition: %w", err)
		}
		index[l.RequisitionID] = len(out)
		out = append(out, linkedRequisition{requisition: r, contributed: l.Delta})
	}
	return out, nil
}

// liveContributors returns the requests other than exclude that fed a
// requisition and are not cancelled, oldest link first.
func (c *Coordinator) liveContributors(ctx context.Context, requisitionID, exclude id.ID) ([]*request.Request, error) {
	links, err := c.requisitions.LinksByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, fmt.Errorf("load requisition links: %w", err)
	}
	seen := map[id.ID]bool{exclude: true}
	var out []*request.Request
	for _, l := range links {
		if seen[l.RequestID] {
			continue
		}
		seen[l.RequestID] = true
		other, err := c.requests.GetByID(ctx, l.RequestID)
		if err != nil {
			return nil, fmt.Errorf("load contributing request: %w", err)
		}
		if other.State == request.StateCancelled {
			continue
		}
		out = append(out, other)
	}
	return out, nil
}

// reduce takes the annulled request's share out of a shared requisition.
func (c *Coordinator) reduce(ctx context.Context, r *requisition.Requisition, amount decimal.Decimal, heir, req *request.Request, actor, reason string, now time.Time) error {
	previous := r.Quantity
	r.Quantity = r.Quantity.Sub(amount)
	if r.RequestID != nil && *r.RequestID == req.ID {
		r.RequestID = id.Ptr(heir.ID)
		r.RequestNumber = heir.Number
	}
	r.Touch(actor, now)
	if err := c.requisitions.Update(ctx, r); err != nil {
		return fmt.Errorf("update requisition %s: %w", r.Number, err)
	}

	note := fmt.Sprintf("Reducida en %s por anulación del pedido %s: %s", amount, req.Number, reason)
	if err := c.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionUpdated, actor, note, map[string]any{
		"previous": previous.String(),
		"quantity": r.Quantity.String(),
		"request":  req.Number,
		"owner":    r.RequestNumber,
	}); err != nil {
		return err
	}
	if r.State == requisition.StateInOrder && r.PurchaseOrderID != nil {
		return c.journal.Record(ctx, audit.EntityPurchaseOrder, *r.PurchaseOrderID, audit.ActionUpdated, actor,
			fmt.Sprintf("Solicitud %s reducida en %s por anulación del pedido %s", r.Number, amount, req.Number),
			map[string]any{"requisitionId": r.ID.String(), "requestId": req.ID.String()})
	}
	return nil
}

func (c *Coordinator) detach(ctx context.Context, orderID id.ID, r *requisition.Requisition, req *request.Request, actor string, now time.Time) error {
	note := fmt.Sprintf("Solicitud %s desvinculada por anulación del pedido %s", r.Number, req.Number)
	if err := c.orders.DetachSource(ctx, orderID, r.ID, note, now); err != nil {
		return fmt.Errorf("detach order source: %w", err)
	}
	return c.journal.Record(ctx, audit.EntityPurchaseOrder, orderID, audit.ActionDetached, actor, note,
		map[string]any{"requisitionId": r.ID.String(), "requestId": req.ID.String()})
}

// AnnulOrder cancels a purchase order. Received quantities leave stock again
// and in-order requisitions return to pendiente, merging into an existing
// pendiente of the same article when there is one.
func (c *Coordinator) AnnulOrder(ctx context.Context, actor security.Actor, orderID id.ID, reason string) (*OrderAnnulment, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	var result *OrderAnnulment
	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := c.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Lines, err = c.orders.GetLines(ctx, orderID); err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		if o.Sources, err = c.orders.GetSources(ctx, orderID); err != nil {
			return fmt.Errorf("get sources: %w", err)
		}
		if err := c.policy.Authorize(ctx, actor, security.OpOrderAnnul, purchase_order.Resource(o)); err != nil {
			return err
		}
		if o.State == purchase_order.StateCancelled {
			return apperror.NewInvalidTransition("purchase order", o.State, purchase_order.StateCancelled).
				WithDetail("number", o.Number)
		}

		now := c.now()
		result = &OrderAnnulment{Order: o}

		origin := stock.Origin{Type: stock.OriginOrderAnnul, ID: o.ID, Number: o.Number, Actor: actor.UserID}
		for _, l := range o.Lines {
			if !l.QuantityReceived.IsPositive() {
				continue
			}
			if _, err := c.ledger.ApplyDelta(ctx, l.ArticleID, l.QuantityReceived.Neg(), origin); err != nil {
				return err
			}
			result.ArticlesReverted = append(result.ArticlesReverted, ArticleDelta{ArticleID: l.ArticleID, Delta: l.QuantityReceived.Neg()})
		}

		reqs, err := c.requisitions.ListByOrderForUpdate(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("load order requisitions: %w", err)
		}
		for _, r := range reqs {
			if r.State != requisition.StateInOrder {
				continue
			}
			merged, err := c.reopen(ctx, r, o, actor.UserID, now)
			if err != nil {
				return err
			}
			if merged {
				result.RequisitionsMerged = append(result.RequisitionsMerged, r.Number)
			} else {
				result.RequisitionsReopened = append(result.RequisitionsReopened, r.Number)
			}
		}

		if err := o.Cancel(actor.UserID, reason, now); err != nil {
			return err
		}
		if err := c.orders.Update(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		return c.journal.Record(ctx, audit.EntityPurchaseOrder, o.ID, audit.ActionCancelled, actor.UserID,
			fmt.Sprintf("Orden anulada por %s (%s): %s", actor.UserID, actor.Role, reason),
			map[string]any{
				"articlesReverted":     result.ArticlesReverted,
				"requisitionsReopened": result.RequisitionsReopened,
				"requisitionsMerged":   result.RequisitionsMerged,
			})
	})
	if err != nil {
		return nil, err
	}

	o := result.Order
	logger.Info(ctx, "purchase order annulled",
		"id", o.ID,
		"number", o.Number,
		"reopened", len(result.RequisitionsReopened),
		"merged", len(result.RequisitionsMerged),
	)
	c.dispatcher.Dispatch(ctx, notify.Notification{
		TargetRoles: []security.Role{security.RolePurchasing, security.RoleWarehouse},
		EventType:   notify.EventOrderCancelled,
		Title:       "Orden " + o.Number + " anulada",
		Body:        reason,
		Payload:     map[string]any{"orderId": o.ID.String(), "requisitionsReopened": result.RequisitionsReopened},
	})
	return result, nil
}

// reopen returns r to pendiente. When the article already has another
// pendiente, r's quantity is merged into it and r is cancelled. Reports
// whether a merge happened.
func (c *Coordinator) reopen(ctx context.Context, r *requisition.Requisition, o *purchase_order.PurchaseOrder, actor string, now time.Time) (bool, error) {
	other, err := c.requisitions.GetPendingForUpdate(ctx, r.ArticleID)
	if err != nil {
		return false, fmt.Errorf("get pending requisition: %w", err)
	}

	if err := r.ReturnToPending(actor, now); err != nil {
		return false, err
	}

	if other == nil || other.ID == r.ID {
		if err := c.requisitions.Update(ctx, r); err != nil {
			return false, fmt.Errorf("update requisition %s: %w", r.Number, err)
		}
		return false, c.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionReopened, actor,
			"Devuelta a pendiente por anulación de la orden "+o.Number, nil)
	}

	previous := other.Quantity
	other.Quantity = other.Quantity.Add(r.Quantity)
	if r.Priority == requisition.PriorityHigh {
		other.Priority = requisition.PriorityHigh
	}
	other.Touch(actor, now)

	note := fmt.Sprintf("Fusionada en %s por anulación de la orden %s", other.Number, o.Number)
	if err := r.Cancel(actor, note, now); err != nil {
		return false, err
	}
	if err := c.requisitions.Update(ctx, r); err != nil {
		return false, fmt.Errorf("update requisition %s: %w", r.Number, err)
	}
	if err := c.requisitions.Update(ctx, other); err != nil {
		return false, fmt.Errorf("update requisition %s: %w", other.Number, err)
	}
	if err := c.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionCancelled, actor, note, nil); err != nil {
		return false, err
	}
	return true, c.journal.Record(ctx, audit.EntityRequisition, other.ID, audit.ActionMerged, actor,
		fmt.Sprintf("Recibe %s de %s por anulación de la orden %s", r.Quantity, r.Number, o.Number),
		map[string]any{"previous": previous.String(), "quantity": other.Quantity.String(), "from": r.Number})
}

// CancelRequisition cancels a pendiente requisition. Stock is not touched.
func (c *Coordinator) CancelRequisition(ctx context.Context, actor security.Actor, requisitionID id.ID, reason string) (*requisition.Requisition, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	var r *requisition.Requisition
	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = c.requisitions.GetForUpdate(ctx, requisitionID)
		if err != nil {
			return err
		}
		if err := c.policy.Authorize(ctx, actor, security.OpRequisitionCancel, security.Resource{
			Kind: "solicitud", State: string(r.State), OwnerID: r.CreatedBy,
		}); err != nil {
			return err
		}
		if r.State != requisition.StatePending {
			return apperror.NewInvalidTransition("requisition", r.State, requisition.StateCancelled).
				WithDetail("number", r.Number)
		}
		now := c.now()
		if err := r.Cancel(actor.UserID, reason, now); err != nil {
			return err
		}
		if err := c.requisitions.Update(ctx, r); err != nil {
			return fmt.Errorf("update requisition: %w", err)
		}
		return c.journal.Record(ctx, audit.EntityRequisition, r.ID, audit.ActionCancelled, actor.UserID, reason, nil)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "requisition cancelled", "id", r.ID, "number", r.Number)
	c.dispatcher.Dispatch(ctx, notify.Notification{
		TargetRoles: []security.Role{security.RolePurchasing},
		EventType:   notify.EventRequisitionCancelled,
		Title:       "Solicitud " + r.Number + " cancelada",
		Body:        reason,
		Payload:     map[string]any{"requisitionId": r.ID.String()},
	})
	return r, nil
}
