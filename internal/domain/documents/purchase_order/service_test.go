package purchase_order_test

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
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/registers/stock"
)

// drawDown creates a project request that leaves art below its minimum and
// returns the requisition it produced.
func drawDown(t *testing.T, f *apptest.Fixture, art *article.Article, qty int64) *requisition.Requisition {
	t.Helper()
	ctx := context.Background()
	_, err := f.App.Requests.Create(ctx, apptest.Designer, request.CreateInput{
		Type:        request.TypeProject,
		ProjectName: "Obra",
		Lines:       []request.LineInput{{ArticleID: art.ID, Quantity: apptest.Qty(qty)}},
	})
	require.NoError(t, err)

	r, err := f.App.Stores.Requisitions.GetPendingForUpdate(ctx, art.ID)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func TestCreateFromRequisitions(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Ferretera del Norte")
	a := f.Article(t, 5, apptest.WithSupplier(sup.ID), apptest.WithUnitCost("2.50"))
	b := f.Article(t, 12, apptest.WithSupplier(sup.ID), apptest.WithUnitCost("10"))

	ra := drawDown(t, f, a, 20) // -15 → 45
	rb := drawDown(t, f, b, 4)  // 8 → 22

	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{ra.ID, rb.ID, ra.ID},
		Overrides:      map[id.ID]decimal.Decimal{b.ID: apptest.Qty(25)},
	})
	require.NoError(t, err)

	assert.Equal(t, purchase_order.StateDraft, order.State)
	assert.Equal(t, sup.ID, order.SupplierID)
	assert.Equal(t, "OC-140326-0930-01", order.Number)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, a.ID, order.Lines[0].ArticleID)
	assert.True(t, order.Lines[0].Quantity.Equal(apptest.Qty(45)))
	assert.True(t, order.Lines[1].Quantity.Equal(apptest.Qty(25)), "override wins")
	assert.True(t, order.Total.Equal(decimal.RequireFromString("362.5")), "45×2.50 + 25×10, got %s", order.Total)
	require.Len(t, order.Sources, 2)

	for _, rid := range []id.ID{ra.ID, rb.ID} {
		r, err := f.App.Requisitions.GetByID(ctx, rid)
		require.NoError(t, err)
		assert.Equal(t, requisition.StateInOrder, r.State)
		require.NotNil(t, r.PurchaseOrderID)
		assert.Equal(t, order.ID, *r.PurchaseOrderID)
	}

	_, err = f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{ra.ID},
	})
	assert.True(t, apperror.IsPrecondition(err), "already in order, got %v", err)
}

func TestCreateFromRequisitions_SupplierRules(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	s1 := f.Supplier(t, "Uno")
	s2 := f.Supplier(t, "Dos")
	a := f.Article(t, 0, apptest.WithSupplier(s1.ID))
	b := f.Article(t, 0, apptest.WithSupplier(s2.ID))
	c := f.Article(t, 0)

	ra := drawDown(t, f, a, 1)
	rb := drawDown(t, f, b, 1)
	rc := drawDown(t, f, c, 1)
	assert.Nil(t, rc.SupplierID)

	_, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{ra.ID, rb.ID},
	})
	assert.True(t, apperror.IsValidation(err), "mixed suppliers need an explicit one, got %v", err)

	_, err = f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{rc.ID},
	})
	assert.True(t, apperror.IsValidation(err), "got %v", err)

	_, err = f.App.Orders.CreateFromRequisitions(ctx, apptest.Designer, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{ra.ID},
	})
	assert.True(t, apperror.IsForbidden(err), "got %v", err)

	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{ra.ID, rb.ID, rc.ID},
		SupplierID:     &s2.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, s2.ID, order.SupplierID)
	assert.Len(t, order.Lines, 3)
}

func TestCreate_Manual(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Manual")
	a := f.Article(t, 50, apptest.WithUnitCost("3"))
	cost := decimal.RequireFromString("4.25")

	order, err := f.App.Orders.Create(ctx, apptest.Purchasing, purchase_order.CreateInput{
		SupplierID: sup.ID,
		Lines: []purchase_order.LineInput{
			{ArticleID: a.ID, Quantity: apptest.Qty(4), UnitCost: &cost},
		},
	})
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(apptest.Qty(17)))
	assert.Empty(t, order.Sources)

	_, err = f.App.Orders.Create(ctx, apptest.Purchasing, purchase_order.CreateInput{
		SupplierID: sup.ID,
		Lines:      []purchase_order.LineInput{{ArticleID: id.New(), Quantity: apptest.Qty(1)}},
	})
	assert.True(t, apperror.IsNotFound(err), "got %v", err)
}

func TestRegisterReceipt(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 5, apptest.WithSupplier(sup.ID))
	ra := drawDown(t, f, a, 20)

	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{
		RequisitionIDs: []id.ID{ra.ID},
	})
	require.NoError(t, err)

	_, err = f.App.Orders.RegisterReceipt(ctx, apptest.Warehouse, order.ID, []purchase_order.ReceiptLine{{ArticleID: a.ID, Quantity: apptest.Qty(1)}})
	assert.True(t, apperror.IsPrecondition(err), "draft orders cannot receive, got %v", err)

	f.Clock.Advance(time.Hour)
	order, err = f.App.Orders.Send(ctx, apptest.Purchasing, order.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase_order.StateSent, order.State)
	require.NotNil(t, order.SentAt)

	order, err = f.App.Orders.RegisterReceipt(ctx, apptest.Warehouse, order.ID, []purchase_order.ReceiptLine{{ArticleID: a.ID, Quantity: apptest.Qty(20)}})
	require.NoError(t, err)
	assert.Equal(t, purchase_order.StatePartial, order.State)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(5)))

	_, err = f.App.Orders.RegisterReceipt(ctx, apptest.Warehouse, order.ID, []purchase_order.ReceiptLine{{ArticleID: a.ID, Quantity: apptest.Qty(26)}})
	assert.True(t, apperror.IsValidation(err), "over-receipt, got %v", err)

	order, err = f.App.Orders.RegisterReceipt(ctx, apptest.Warehouse, order.ID, []purchase_order.ReceiptLine{{ArticleID: a.ID, Quantity: apptest.Qty(25)}})
	require.NoError(t, err)
	assert.Equal(t, purchase_order.StateReceived, order.State)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(30)))

	r, err := f.App.Requisitions.GetByID(ctx, ra.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StateCompleted, r.State)

	movs := f.Movements(t, a.ID)
	require.Len(t, movs, 3)
	assert.Equal(t, stock.OriginOrderReceipt, movs[2].OriginType)
	assert.Equal(t, order.ID, movs[2].OriginID)

	history, err := f.App.Orders.History(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4) // created, sent, received ×2
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	sup := f.Supplier(t, "Proveedor")
	a := f.Article(t, 0, apptest.WithSupplier(sup.ID))
	ra := drawDown(t, f, a, 3)

	order, err := f.App.Orders.CreateFromRequisitions(ctx, apptest.Purchasing, purchase_order.FromRequisitionsInput{RequisitionIDs: []id.ID{ra.ID}})
	require.NoError(t, err)

	_, err = f.App.Orders.UpdateState(ctx, apptest.Purchasing, order.ID, purchase_order.StateCancelled)
	assert.True(t, apperror.IsPrecondition(err), "cancellation goes through annulment, got %v", err)

	order, err = f.App.Orders.UpdateState(ctx, apptest.Purchasing, order.ID, purchase_order.StateSent)
	require.NoError(t, err)
	order, err = f.App.Orders.UpdateState(ctx, apptest.Purchasing, order.ID, purchase_order.StateReceived)
	require.NoError(t, err)
	require.NotNil(t, order.ReceivedAt)

	r, err := f.App.Requisitions.GetByID(ctx, ra.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StateCompleted, r.State)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(-3)), "manual state changes never touch stock")

	_, err = f.App.Orders.UpdateState(ctx, apptest.Purchasing, order.ID, purchase_order.StateSent)
	assert.True(t, apperror.IsPrecondition(err), "received is final, got %v", err)
}
