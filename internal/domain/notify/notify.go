// Package notify delivers role- or user-targeted notifications after a
// transaction has committed. Delivery failures never reach the caller.
package notify

import (
	"context"
	"errors"

	"almacen/internal/core/security"
	"almacen/pkg/logger"
)

// EventType names a notification.
type EventType string

const (
	EventRequestCreated          EventType = "pedido.creado"
	EventRequestApproved         EventType = "pedido.aprobado"
	EventRequestRejected         EventType = "pedido.rechazado"
	EventRequestCompleted        EventType = "pedido.completado"
	EventRequestReady            EventType = "pedido.listo"
	EventRequestDelivered        EventType = "pedido.entregado"
	EventRequestDeliveryRejected EventType = "pedido.entrega_rechazada"
	EventRequestCancelled        EventType = "pedido.anulado"
	EventRequisitionChanged      EventType = "solicitud.actualizada"
	EventRequisitionCancelled    EventType = "solicitud.cancelada"
	EventOrderCreated            EventType = "orden.creada"
	EventOrderSent               EventType = "orden.enviada"
	EventOrderReceived           EventType = "orden.recibida"
	EventOrderCancelled          EventType = "orden.anulada"
)

// Notification is addressed to a set of roles, a single user, or both.
type Notification struct {
	TargetRoles  []security.Role `json:"targetRoles,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	EventType    EventType       `json:"eventType"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	Payload      map[string]any  `json:"payload,omitempty"`
}

// Validate checks that the notification has an audience.
func (n Notification) Validate() error {
	if len(n.TargetRoles) == 0 && n.TargetUserID == "" {
		return errors.New("notification has no target")
	}
	return nil
}

// Sink accepts notifications for delivery.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Dispatcher fans notifications out to a sink, logging and swallowing failures.
type Dispatcher struct {
	sink Sink
}

// NewDispatcher creates a Dispatcher. A nil sink drops everything.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Dispatch sends each notification. Call it only after the owning transaction committed.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications ...Notification) {
	if d == nil || d.sink == nil {
		return
	}
	for _, n := range notifications {
		if err := n.Validate(); err != nil {
			logger.Warn(ctx, "notification dropped", "event", string(n.EventType), "error", err)
			continue
		}
		if err := d.send(ctx, n); err != nil {
			logger.Warn(ctx, "notification delivery failed",
				"event", string(n.EventType),
				"target_user", n.TargetUserID,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("notification sink panicked")
		}
	}()
	return d.sink.Send(ctx, n)
}

// LogSink writes notifications to the application log.
type LogSink struct{}

// Send logs n at info level.
func (LogSink) Send(ctx context.Context, n Notification) error {
	logger.Info(ctx, "notification",
		"event", string(n.EventType),
		"roles", n.TargetRoles,
		"user", n.TargetUserID,
		"title", n.Title,
	)
	return nil
}
