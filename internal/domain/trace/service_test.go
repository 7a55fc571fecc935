package trace_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/app/apptest"
	"almacen/internal/core/id"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/trace"
)

func TestService_ForOrderWalksBackToRequests(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 5, apptest.WithSupplier(sup.ID))

	newRequest := func() *request.Request {
		req, err := f.App.Requests.Create(ctx, apptest.Designer, request.CreateInput{
			Type:        request.TypeProject,
			ProjectName: "Obra",
			Lines:       []request.LineInput{{ArticleID: a.ID, Quantity: apptest.Qty(20)}},
		})
		require.NoError(t, err)
		return req
	}
	first := newRequest()
	f.Clock.Advance(time.Minute)
	second := newRequest()

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	f.Clock.Advance(time.Minute)
	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{RequisitionIDs: []id.ID{sc.ID}})
	require.NoError(t, err)

	tr, err := f.App.Trace.ForOrder(ctx, apptest.Warehouse, order.ID)
	require.NoError(t, err)

	require.Len(t, tr.Orders, 1)
	require.Len(t, tr.Orders[0].Requisitions, 1)
	refs := tr.Orders[0].Requisitions[0].Requests
	require.Len(t, refs, 2)
	assert.Equal(t, first.ID, refs[0].ID)
	assert.Equal(t, second.ID, refs[1].ID)
	assert.Empty(t, tr.Unordered)

	types := make([]trace.EventType, 0, len(tr.Events))
	for _, e := range tr.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []trace.EventType{
		trace.EventRequestCreated,
		trace.EventRequisitionCreated,
		trace.EventRequestCreated,
		trace.EventRequisitionMerged,
		trace.EventOrderCreated,
	}, types)

	fromRequest, err := f.App.Trace.ForRequest(ctx, apptest.Designer, second.ID)
	require.NoError(t, err)
	assert.Len(t, fromRequest.Events, len(tr.Events))

	_, err = f.App.Trace.ForRequisition(ctx, apptest.Designer, id.New())
	assert.Error(t, err)
}

func TestService_HopLimitMarksTruncated(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 5)

	newRequest := func() *request.Request {
		req, err := f.App.Requests.Create(ctx, apptest.Designer, request.CreateInput{
			Type:        request.TypeProject,
			ProjectName: "Obra",
			Lines:       []request.LineInput{{ArticleID: a.ID, Quantity: apptest.Qty(20)}},
		})
		require.NoError(t, err)
		return req
	}
	newRequest()
	f.Clock.Advance(time.Minute)
	second := newRequest()

	full, err := f.App.Trace.ForRequest(ctx, apptest.Admin, second.ID)
	require.NoError(t, err)
	assert.False(t, full.Truncated)

	trace.SetMaxHops(f.App.Trace, 1)
	short, err := f.App.Trace.ForRequest(ctx, apptest.Admin, second.ID)
	require.NoError(t, err)
	assert.True(t, short.Truncated)
	require.NotEmpty(t, short.Events)
	for _, e := range short.Events {
		assert.NotEmpty(t, e.Number, "event %s refers to an unloaded entity", e.Type)
	}
}
