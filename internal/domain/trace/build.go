// Package trace rebuilds the audit timeline and the order → requisition →
// request dependency tree around a request, requisition or purchase order.
package trace

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/core/id"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
)

// EventType names a timeline event.
type EventType string

const (
	EventRequestCreated          EventType = "pedido_creado"
	EventRequestApproved         EventType = "pedido_aprobado"
	EventRequestRejected         EventType = "pedido_rechazado"
	EventRequestCompleted        EventType = "pedido_completado"
	EventRequestReady            EventType = "pedido_listo"
	EventRequestDeliveryRejected EventType = "pedido_entrega_rechazada"
	EventRequestDelivered        EventType = "pedido_entregado"
	EventRequestCancelled        EventType = "pedido_anulado"
	EventRequisitionCreated      EventType = "solicitud_creada"
	EventRequisitionMerged       EventType = "solicitud_actualizada"
	EventRequisitionCompleted    EventType = "solicitud_completada"
	EventRequisitionCancelled    EventType = "solicitud_cancelada"
	EventOrderCreated            EventType = "orden_creada"
	EventOrderSent               EventType = "orden_enviada"
	EventOrderReceived           EventType = "orden_recibida"
	EventOrderCancelled          EventType = "orden_anulada"
)

// Event is one timeline entry.
type Event struct {
	At       time.Time      `json:"at"`
	Type     EventType      `json:"type"`
	Actor    string         `json:"actor"`
	EntityID id.ID          `json:"entityId"`
	Number   string         `json:"number"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Graph is a fully loaded subgraph. Orders carry their lines and sources.
type Graph struct {
	Requests     []*request.Request
	Requisitions []*requisition.Requisition
	Orders       []*purchase_order.PurchaseOrder
	Links        []requisition.RequestLink

	// Truncated is set when the loader stopped before reaching every edge.
	Truncated bool
}

// RequestRef names a request that fed a requisition.
type RequestRef struct {
	ID     id.ID           `json:"id"`
	Number string          `json:"number"`
	State  request.State   `json:"state"`
	Action string          `json:"action"`
	Delta  decimal.Decimal `json:"delta"`
}

// RequisitionNode is a requisition with the requests behind it.
type RequisitionNode struct {
	ID       id.ID             `json:"id"`
	Number   string            `json:"number"`
	State    requisition.State `json:"state"`
	Quantity decimal.Decimal   `json:"quantity"`
	Detached bool              `json:"detached,omitempty"`
	Requests []RequestRef      `json:"requests"`
}

// OrderNode is an order with the requisitions folded into it.
type OrderNode struct {
	ID           id.ID                `json:"id"`
	Number       string               `json:"number"`
	State        purchase_order.State `json:"state"`
	Total        decimal.Decimal      `json:"total"`
	Requisitions []RequisitionNode    `json:"requisitions"`
}

// Trace is the timeline plus the dependency tree.
type Trace struct {
	Events []Event     `json:"events"`
	Orders []OrderNode `json:"orders"`

	// Unordered holds requisitions not yet folded into any order.
	Unordered []RequisitionNode `json:"unordered"`

	Truncated bool `json:"truncated"`
}

// Build projects g into a Trace. It never mutates g.
func Build(g Graph) Trace {
	var events []Event
	for _, r := range g.Requests {
		events = append(events, requestEvents(r)...)
	}
	for _, r := range g.Requisitions {
		events = append(events, requisitionEvents(r)...)
	}
	for _, l := range g.Links {
		if l.Action == requisition.LinkUpdated {
			events = append(events, mergeEvent(g, l))
		}
	}
	for _, o := range g.Orders {
		events = append(events, orderEvents(o)...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		if rank(events[i].Type) != rank(events[j].Type) {
			return rank(events[i].Type) < rank(events[j].Type)
		}
		return events[i].Number < events[j].Number
	})

	return Trace{
		Events:    nonNil(events),
		Orders:    buildOrders(g),
		Unordered: buildUnordered(g),
		Truncated: g.Truncated,
	}
}

func nonNil(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	return events
}

// rank orders same-instant events so causes precede effects.
func rank(t EventType) int {
	switch t {
	case EventRequestCreated:
		return 0
	case EventRequisitionCreated, EventRequisitionMerged:
		return 1
	case EventOrderCreated:
		return 2
	case EventRequisitionCancelled:
		return 4
	case EventRequestCancelled, EventOrderCancelled:
		return 5
	}
	return 3
}

func requestEvents(r *request.Request) []Event {
	ev := func(at *time.Time, t EventType, actor string, payload map[string]any) *Event {
		if at == nil {
			return nil
		}
		return &Event{At: *at, Type: t, Actor: actor, EntityID: r.ID, Number: r.Number, Payload: payload}
	}
	created := r.CreatedAt
	candidates := []*Event{
		ev(&created, EventRequestCreated, r.CreatedBy, map[string]any{"type": string(r.Type), "lines": len(r.Lines)}),
		ev(r.ApprovedAt, EventRequestApproved, r.ApprovedBy, nil),
		ev(r.RejectedAt, EventRequestRejected, r.RejectedBy, map[string]any{"reason": r.RejectionReason}),
		ev(r.CompletedAt, EventRequestCompleted, "", nil),
		ev(r.ReadyAt, EventRequestReady, r.ReadyBy, map[string]any{"supervisorId": r.AssignedSupervisorID}),
		ev(r.DeliveryRejectedAt, EventRequestDeliveryRejected, "", map[string]any{"reason": r.DeliveryRejectionNotes}),
		ev(r.DeliveredAt, EventRequestDelivered, r.DeliveredBy, nil),
		ev(r.CancelledAt, EventRequestCancelled, r.CancelledBy, map[string]any{"reason": r.CancelReason}),
	}
	var out []Event
	for _, e := range candidates {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func requisitionEvents(r *requisition.Requisition) []Event {
	out := []Event{{
		At: r.CreatedAt, Type: EventRequisitionCreated, Actor: r.CreatedBy, EntityID: r.ID, Number: r.Number,
		Payload: map[string]any{"articleId": r.ArticleID.String(), "priority": string(r.Priority), "motive": r.Motive},
	}}
	if r.CompletedAt != nil {
		out = append(out, Event{At: *r.CompletedAt, Type: EventRequisitionCompleted, EntityID: r.ID, Number: r.Number})
	}
	if r.CancelledAt != nil {
		out = append(out, Event{
			At: *r.CancelledAt, Type: EventRequisitionCancelled, Actor: r.CancelledBy, EntityID: r.ID, Number: r.Number,
			Payload: map[string]any{"reason": r.CancelReason},
		})
	}
	return out
}

func mergeEvent(g Graph, l requisition.RequestLink) Event {
	e := Event{
		At: l.CreatedAt, Type: EventRequisitionMerged, EntityID: l.RequisitionID,
		Payload: map[string]any{"requestId": l.RequestID.String(), "delta": l.Delta.String()},
	}
	for _, r := range g.Requisitions {
		if r.ID == l.RequisitionID {
			e.Number = r.Number
		}
	}
	for _, r := range g.Requests {
		if r.ID == l.RequestID {
			e.Actor = r.CreatedBy
			e.Payload["request"] = r.Number
		}
	}
	return e
}

func orderEvents(o *purchase_order.PurchaseOrder) []Event {
	out := []Event{{
		At: o.CreatedAt, Type: EventOrderCreated, Actor: o.CreatedBy, EntityID: o.ID, Number: o.Number,
		Payload: map[string]any{"supplierId": o.SupplierID.String(), "total": o.Total.String(), "lines": len(o.Lines)},
	}}
	if o.SentAt != nil {
		out = append(out, Event{At: *o.SentAt, Type: EventOrderSent, Actor: o.SentBy, EntityID: o.ID, Number: o.Number})
	}
	if o.ReceivedAt != nil {
		out = append(out, Event{At: *o.ReceivedAt, Type: EventOrderReceived, Actor: o.ReceivedBy, EntityID: o.ID, Number: o.Number})
	}
	if o.CancelledAt != nil {
		out = append(out, Event{
			At: *o.CancelledAt, Type: EventOrderCancelled, Actor: o.CancelledBy, EntityID: o.ID, Number: o.Number,
			Payload: map[string]any{"reason": o.CancelReason},
		})
	}
	return out
}

func requisitionNode(g Graph, r *requisition.Requisition) RequisitionNode {
	node := RequisitionNode{ID: r.ID, Number: r.Number, State: r.State, Quantity: r.Quantity, Requests: []RequestRef{}}
	seen := make(map[id.ID]bool)
	for _, l := range g.Links {
		if l.RequisitionID != r.ID || seen[l.RequestID] {
			continue
		}
		for _, req := range g.Requests {
			if req.ID == l.RequestID {
				seen[l.RequestID] = true
				node.Requests = append(node.Requests, RequestRef{
					ID: req.ID, Number: req.Number, State: req.State, Action: string(l.Action), Delta: l.Delta,
				})
			}
		}
	}
	return node
}

func buildOrders(g Graph) []OrderNode {
	byID := make(map[id.ID]*requisition.Requisition, len(g.Requisitions))
	for _, r := range g.Requisitions {
		byID[r.ID] = r
	}

	out := make([]OrderNode, 0, len(g.Orders))
	for _, o := range g.Orders {
		node := OrderNode{ID: o.ID, Number: o.Number, State: o.State, Total: o.Total, Requisitions: []RequisitionNode{}}
		for _, src := range o.Sources {
			r, ok := byID[src.RequisitionID]
			if !ok {
				node.Requisitions = append(node.Requisitions, RequisitionNode{
					ID: src.RequisitionID, Number: src.RequisitionNumber, Quantity: src.Quantity,
					Detached: src.Detached, Requests: []RequestRef{},
				})
				continue
			}
			rn := requisitionNode(g, r)
			rn.Detached = src.Detached
			node.Requisitions = append(node.Requisitions, rn)
		}
		out = append(out, node)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func buildUnordered(g Graph) []RequisitionNode {
	inOrder := make(map[id.ID]bool)
	for _, o := range g.Orders {
		for _, src := range o.Sources {
			inOrder[src.RequisitionID] = true
		}
	}
	out := []RequisitionNode{}
	for _, r := range g.Requisitions {
		if inOrder[r.ID] || r.PurchaseOrderID != nil {
			continue
		}
		out = append(out, requisitionNode(g, r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
