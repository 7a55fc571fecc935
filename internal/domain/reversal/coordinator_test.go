package reversal_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/app/apptest"
	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
)

func create(t *testing.T, f *apptest.Fixture, lines ...request.LineInput) *request.Request {
	t.Helper()
	req, err := f.App.Requests.Create(context.Background(), apptest.Designer, request.CreateInput{
		Type:        request.TypeProject,
		ProjectName: "Obra",
		Lines:       lines,
	})
	require.NoError(t, err)
	return req
}

func line(articleID id.ID, qty int64) request.LineInput {
	return request.LineInput{ArticleID: articleID, Quantity: apptest.Qty(qty)}
}

func sum(movs []stock.Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movs {
		total = total.Add(m.Delta)
	}
	return total
}

func TestAnnulRequest_ZeroSum(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 5)
	b := f.Article(t, 40)

	req := create(t, f, line(a.ID, 20), line(b.ID, 3))
	require.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-15)))

	f.Clock.Advance(time.Hour)
	res, err := f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, req.ID, "proyecto suspendido")
	require.NoError(t, err)

	assert.Equal(t, request.StateCancelled, res.Request.State)
	assert.Len(t, res.ArticlesReverted, 2)
	assert.Len(t, res.RequisitionsCancelled, 1)
	assert.Empty(t, res.OrdersAffected)

	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(5)))
	assert.True(t, f.Stock(t, b.ID).Equal(apptest.Qty(40)))
	assert.True(t, sum(f.Movements(t, a.ID)).IsZero())
	assert.True(t, sum(f.Movements(t, b.ID)).IsZero())

	movs := f.Movements(t, a.ID)
	assert.Equal(t, stock.OriginRequestAnnul, movs[len(movs)-1].OriginType)

	state := requisition.StatePending
	open, err := f.App.Requisitions.List(ctx, requisition.ListFilter{State: &state, ArticleID: &a.ID})
	require.NoError(t, err)
	assert.Empty(t, open)

	history, err := f.App.Requests.History(ctx, req.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, audit.ActionCancelled, last.Action)
	assert.Contains(t, last.Note, "proyecto suspendido")

	assert.Contains(t, f.Sink.Events(), notify.EventRequestCancelled)
}

func TestAnnulRequest_Validation(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 50)
	req := create(t, f, line(a.ID, 1))

	_, err := f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, req.ID, "")
	assert.True(t, apperror.IsValidation(err), "got %v", err)

	_, err = f.App.Reversal.AnnulRequest(ctx, apptest.Designer, req.ID, "no")
	assert.True(t, apperror.IsForbidden(err), "got %v", err)

	_, err = f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, id.New(), "no")
	assert.True(t, apperror.IsNotFound(err), "got %v", err)

	_, err = f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, req.ID, "duplicado")
	require.NoError(t, err)
	_, err = f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, req.ID, "duplicado")
	assert.True(t, apperror.IsPrecondition(err), "already cancelled, got %v", err)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(50)))
}

func TestAnnulRequest_BlockedByCompletedRequisition(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 5, apptest.WithSupplier(sup.ID))
	req := create(t, f, line(a.ID, 20))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{RequisitionIDs: []id.ID{sc.ID}})
	require.NoError(t, err)
	_, err = f.App.Orders.Send(ctx, apptest.Purchasing, order.ID)
	require.NoError(t, err)
	_, err = f.App.Orders.UpdateState(ctx, apptest.Purchasing, order.ID, purchase_order.StateReceived)
	require.NoError(t, err)

	stockBefore := f.Stock(t, a.ID)
	movsBefore := len(f.Movements(t, a.ID))
	historyBefore, err := f.App.Requests.History(ctx, req.ID)
	require.NoError(t, err)

	_, err = f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, req.ID, "ya no se necesita")
	require.Error(t, err)
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)

	assert.True(t, f.Stock(t, a.ID).Equal(stockBefore))
	assert.Len(t, f.Movements(t, a.ID), movsBefore)

	got, err := f.App.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatePending, got.State)

	historyAfter, err := f.App.Requests.History(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, historyAfter, len(historyBefore))

	r, err := f.App.Requisitions.GetByID(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StateCompleted, r.State)
}

func TestAnnulRequest_ThenRecreate(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 5)

	first := create(t, f, line(a.ID, 20))
	firstSC, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.App.Reversal.AnnulRequest(ctx, apptest.Admin, first.ID, "error de captura")
	require.NoError(t, err)
	require.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(5)))

	f.Clock.Advance(time.Minute)
	create(t, f, line(a.ID, 20))
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-15)))

	fresh, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.NotEqual(t, firstSC.ID, fresh.ID)
	assert.True(t, fresh.Quantity.Equal(apptest.Qty(45)))
	assert.Equal(t, requisition.PriorityHigh, fresh.Priority)

	old, err := f.App.Requisitions.GetByID(ctx, firstSC.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StateCancelled, old.State)
}

func TestAnnulRequest_SharedRequisitionKeepsOtherDeficit(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 5)

	first := create(t, f, line(a.ID, 20))
	f.Clock.Advance(time.Minute)
	second := create(t, f, line(a.ID, 5))
	require.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-20)))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, sc.Quantity.Equal(apptest.Qty(50)))

	f.Clock.Advance(time.Minute)
	res, err := f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, second.ID, "pedido duplicado")
	require.NoError(t, err)
	assert.Empty(t, res.RequisitionsCancelled)
	assert.Equal(t, []string{sc.Number}, res.RequisitionsReduced)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-15)))

	kept, err := f.App.Requisitions.GetByID(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StatePending, kept.State)
	assert.True(t, kept.Quantity.Equal(apptest.Qty(45)), "got %s", kept.Quantity)
	require.NotNil(t, kept.RequestID)
	assert.Equal(t, first.ID, *kept.RequestID)

	history, err := f.App.Requisitions.History(ctx, sc.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, audit.ActionUpdated, last.Action)
	assert.Contains(t, last.Note, second.Number)

	res, err = f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, first.ID, "proyecto suspendido")
	require.NoError(t, err)
	assert.Equal(t, []string{sc.Number}, res.RequisitionsCancelled)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(5)))

	state := requisition.StatePending
	open, err := f.App.Requisitions.List(ctx, requisition.ListFilter{State: &state, ArticleID: &a.ID})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAnnulRequest_SpawnerPassesRequisitionOn(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 5)

	first := create(t, f, line(a.ID, 20))
	f.Clock.Advance(time.Minute)
	second := create(t, f, line(a.ID, 5))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)

	res, err := f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, first.ID, "error de captura")
	require.NoError(t, err)
	assert.Equal(t, []string{sc.Number}, res.RequisitionsReduced)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(0)))

	kept, err := f.App.Requisitions.GetByID(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StatePending, kept.State)
	assert.True(t, kept.Quantity.Equal(apptest.Qty(5)), "got %s", kept.Quantity)
	require.NotNil(t, kept.RequestID)
	assert.Equal(t, second.ID, *kept.RequestID)
	assert.Equal(t, second.Number, kept.RequestNumber)
}

func TestAnnulRequest_DetachesFromOrder(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 0, apptest.WithSupplier(sup.ID))
	req := create(t, f, line(a.ID, 4))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{RequisitionIDs: []id.ID{sc.ID}})
	require.NoError(t, err)

	res, err := f.App.Reversal.AnnulRequest(ctx, apptest.Supervisor, req.ID, "cancelado por cliente")
	require.NoError(t, err)
	assert.Equal(t, []string{order.Number}, res.OrdersAffected)

	got, err := f.App.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase_order.StateDraft, got.State, "the order itself is untouched")
	require.Len(t, got.Sources, 1)
	assert.True(t, got.Sources[0].Detached)
	assert.NotEmpty(t, got.Sources[0].DetachReason)

	history, err := f.App.Orders.History(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionDetached, history[len(history)-1].Action)
}

func TestAnnulOrder_ReversesReceiptAndReopens(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 5, apptest.WithSupplier(sup.ID))
	create(t, f, line(a.ID, 20))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{RequisitionIDs: []id.ID{sc.ID}})
	require.NoError(t, err)
	_, err = f.App.Orders.Send(ctx, apptest.Purchasing, order.ID)
	require.NoError(t, err)
	_, err = f.App.Orders.RegisterReceipt(ctx, apptest.Warehouse, order.ID, []purchase_order.ReceiptLine{{ArticleID: a.ID, Quantity: apptest.Qty(10)}})
	require.NoError(t, err)
	require.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-5)))

	res, err := f.App.Reversal.AnnulOrder(ctx, apptest.Purchasing, order.ID, "proveedor incumplió")
	require.NoError(t, err)
	assert.Equal(t, purchase_order.StateCancelled, res.Order.State)
	assert.Equal(t, []string{sc.Number}, res.RequisitionsReopened)
	assert.Empty(t, res.RequisitionsMerged)
	require.Len(t, res.ArticlesReverted, 1)
	assert.True(t, res.ArticlesReverted[0].Delta.Equal(apptest.Qty(-10)))

	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-15)))
	movs := f.Movements(t, a.ID)
	assert.Equal(t, stock.OriginOrderAnnul, movs[len(movs)-1].OriginType)

	r, err := f.App.Requisitions.GetByID(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StatePending, r.State)
	assert.Nil(t, r.PurchaseOrderID)

	_, err = f.App.Reversal.AnnulOrder(ctx, apptest.Purchasing, order.ID, "otra vez")
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)
}

func TestAnnulOrder_MergesIntoNewPending(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 5, apptest.WithSupplier(sup.ID))
	create(t, f, line(a.ID, 20))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{RequisitionIDs: []id.ID{sc.ID}})
	require.NoError(t, err)

	f.Clock.Advance(time.Minute)
	create(t, f, line(a.ID, 5))
	newer, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, newer)
	require.NotEqual(t, sc.ID, newer.ID)
	// stock -20: deficit 20 + max 30
	require.True(t, newer.Quantity.Equal(apptest.Qty(50)))

	res, err := f.App.Reversal.AnnulOrder(ctx, apptest.Purchasing, order.ID, "consolidar")
	require.NoError(t, err)
	assert.Equal(t, []string{sc.Number}, res.RequisitionsMerged)
	assert.Empty(t, res.ArticlesReverted)

	merged, err := f.App.Requisitions.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.True(t, merged.Quantity.Equal(apptest.Qty(95)), "got %s", merged.Quantity)

	old, err := f.App.Requisitions.GetByID(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StateCancelled, old.State)

	state := requisition.StatePending
	open, err := f.App.Requisitions.List(ctx, requisition.ListFilter{State: &state, ArticleID: &a.ID})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestCancelRequisition(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 0)
	create(t, f, line(a.ID, 1))

	sc, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.App.Reversal.CancelRequisition(ctx, apptest.Designer, sc.ID, "no")
	assert.True(t, apperror.IsForbidden(err), "got %v", err)

	r, err := f.App.Reversal.CancelRequisition(ctx, apptest.Purchasing, sc.ID, "compra directa")
	require.NoError(t, err)
	assert.Equal(t, requisition.StateCancelled, r.State)
	assert.Equal(t, "compra directa", r.CancelReason)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-1)), "stock is not touched")

	_, err = f.App.Reversal.CancelRequisition(ctx, apptest.Purchasing, sc.ID, "otra vez")
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)
}
