package trace

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/core/entity"
	"almacen/internal/core/id"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
)

func TestBuild(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	at := func(m int) *time.Time { v := t0.Add(time.Duration(m) * time.Minute); return &v }

	req := &request.Request{Document: entity.NewDocument("dis-1", t0), Type: request.TypeProject, State: request.StateCompleted}
	req.Number = "PED-140326-0930-01"
	req.CompletedAt = at(30)

	second := &request.Request{Document: entity.NewDocument("dis-2", *at(5)), Type: request.TypeProject, State: request.StatePending}
	second.Number = "PED-140326-0935-02"

	ordered := &requisition.Requisition{Document: entity.NewDocument("dis-1", t0), State: requisition.StateInOrder, Quantity: decimal.NewFromInt(50)}
	ordered.Number = "SC-140326-0930-01"
	loose := &requisition.Requisition{Document: entity.NewDocument("dis-1", t0), State: requisition.StatePending, Quantity: decimal.NewFromInt(26)}
	loose.Number = "SC-140326-0930-02"

	order := &purchase_order.PurchaseOrder{Document: entity.NewDocument("com-1", *at(10)), State: purchase_order.StateSent}
	order.Number = "OC-140326-0940-01"
	order.SentAt = at(20)
	order.SentBy = "com-1"
	ordered.PurchaseOrderID = id.Ptr(order.ID)
	order.Sources = []purchase_order.Source{{OrderID: order.ID, RequisitionID: ordered.ID, RequisitionNumber: ordered.Number}}

	g := Graph{
		Requests:     []*request.Request{second, req},
		Requisitions: []*requisition.Requisition{loose, ordered},
		Orders:       []*purchase_order.PurchaseOrder{order},
		Links: []requisition.RequestLink{
			{ID: id.New(), RequestID: req.ID, RequisitionID: ordered.ID, Action: requisition.LinkCreated, Delta: decimal.NewFromInt(45), CreatedAt: t0},
			{ID: id.New(), RequestID: req.ID, RequisitionID: loose.ID, Action: requisition.LinkCreated, Delta: decimal.NewFromInt(26), CreatedAt: t0},
			{ID: id.New(), RequestID: second.ID, RequisitionID: ordered.ID, Action: requisition.LinkUpdated, Delta: decimal.NewFromInt(5), CreatedAt: *at(5)},
		},
	}

	tr := Build(g)

	types := make([]EventType, 0, len(tr.Events))
	for _, e := range tr.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{
		EventRequestCreated,
		EventRequisitionCreated,
		EventRequisitionCreated,
		EventRequestCreated,
		EventRequisitionMerged,
		EventOrderCreated,
		EventOrderSent,
		EventRequestCompleted,
	}, types)
	for i := 1; i < len(tr.Events); i++ {
		assert.False(t, tr.Events[i].At.Before(tr.Events[i-1].At), "events must be chronological")
	}
	assert.Equal(t, "com-1", tr.Events[6].Actor)

	require.Len(t, tr.Orders, 1)
	require.Len(t, tr.Orders[0].Requisitions, 1)
	node := tr.Orders[0].Requisitions[0]
	assert.Equal(t, ordered.Number, node.Number)
	require.Len(t, node.Requests, 2)
	assert.Equal(t, req.Number, node.Requests[0].Number)
	assert.Equal(t, "updated", node.Requests[1].Action)

	require.Len(t, tr.Unordered, 1)
	assert.Equal(t, loose.Number, tr.Unordered[0].Number)
}

func TestBuild_Empty(t *testing.T) {
	tr := Build(Graph{})
	assert.NotNil(t, tr.Events)
	assert.Empty(t, tr.Orders)
	assert.Empty(t, tr.Unordered)
}
