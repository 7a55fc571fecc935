package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"almacen/internal/core/security"
)

func TestDispatcher_SwallowsFailures(t *testing.T) {
	var delivered []EventType
	sink := SinkFunc(func(_ context.Context, n Notification) error {
		if n.EventType == EventOrderSent {
			return errors.New("push gateway down")
		}
		if n.EventType == EventOrderReceived {
			panic("broken sink")
		}
		delivered = append(delivered, n.EventType)
		return nil
	})

	d := NewDispatcher(sink)
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(),
			Notification{TargetRoles: []security.Role{security.RolePurchasing}, EventType: EventOrderSent},
			Notification{TargetRoles: []security.Role{security.RoleWarehouse}, EventType: EventOrderReceived},
			Notification{TargetUserID: "u1", EventType: EventRequestCancelled},
			Notification{EventType: EventRequestCreated},
		)
	})

	assert.Equal(t, []EventType{EventRequestCancelled}, delivered)
}

func TestDispatcher_NilSink(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Notification{TargetUserID: "u1"})
		NewDispatcher(nil).Dispatch(context.Background(), Notification{TargetUserID: "u1"})
	})
}
