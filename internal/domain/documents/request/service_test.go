package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/app/apptest"
	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/core/numerator"
	"almacen/internal/core/security"
	"almacen/internal/domain/audit"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/notify"
	"almacen/internal/domain/registers/stock"
)

func projectRequest(lines ...request.LineInput) request.CreateInput {
	return request.CreateInput{Type: request.TypeProject, ProjectName: "Torre Norte", Lines: lines}
}

func line(articleID id.ID, qty int64) request.LineInput {
	return request.LineInput{ArticleID: articleID, Quantity: apptest.Qty(qty)}
}

func pending(t *testing.T, f *apptest.Fixture, articleID id.ID) []*requisition.Requisition {
	t.Helper()
	state := requisition.StatePending
	out, err := f.App.Requisitions.List(context.Background(), requisition.ListFilter{State: &state, ArticleID: &articleID})
	require.NoError(t, err)
	return out
}

func TestCreate_DeficitCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	art := f.Article(t, 5)

	first, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(art.ID, 20)))
	require.NoError(t, err)
	assert.Equal(t, request.StatePending, first.State)
	assert.Equal(t, "PED-140326-0930-01", first.Number)
	assert.True(t, f.Stock(t, art.ID).Equal(apptest.Qty(-15)))

	reqs := pending(t, f, art.ID)
	require.Len(t, reqs, 1)
	sc := reqs[0]
	assert.True(t, sc.Quantity.Equal(apptest.Qty(45)), "deficit 15 + max 30, got %s", sc.Quantity)
	assert.Equal(t, requisition.PriorityHigh, sc.Priority)
	require.NotNil(t, sc.RequestID)
	assert.Equal(t, first.ID, *sc.RequestID)

	f.Clock.Advance(time.Minute)
	second, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(art.ID, 5)))
	require.NoError(t, err)
	assert.True(t, f.Stock(t, art.ID).Equal(apptest.Qty(-20)))

	reqs = pending(t, f, art.ID)
	require.Len(t, reqs, 1)
	assert.Equal(t, sc.ID, reqs[0].ID)
	assert.True(t, reqs[0].Quantity.Equal(apptest.Qty(50)), "got %s", reqs[0].Quantity)

	links, err := f.App.Stores.Requisitions.LinksByRequisition(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, requisition.LinkCreated, links[0].Action)
	assert.Equal(t, first.ID, links[0].RequestID)
	assert.Equal(t, requisition.LinkUpdated, links[1].Action)
	assert.Equal(t, second.ID, links[1].RequestID)
	assert.True(t, links[1].Delta.Equal(apptest.Qty(5)))

	history, err := f.App.Requisitions.History(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionCreated, history[0].Action)
	assert.Equal(t, audit.ActionMerged, history[1].Action)

	movs := f.Movements(t, art.ID)
	require.Len(t, movs, 2)
	for _, m := range movs {
		assert.Equal(t, stock.OriginRequest, m.OriginType)
	}
	assert.True(t, movs[0].StockBefore.Equal(apptest.Qty(5)))
	assert.True(t, movs[1].StockAfter.Equal(apptest.Qty(-20)))

	assert.Contains(t, f.Sink.Events(), notify.EventRequisitionChanged)
}

func TestCreate_BelowMinimumRecalculates(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	art := f.Article(t, 15)

	_, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(art.ID, 8)))
	require.NoError(t, err)

	reqs := pending(t, f, art.ID)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Quantity.Equal(apptest.Qty(23)), "max 30 - stock 7, got %s", reqs[0].Quantity)
	assert.Equal(t, requisition.PriorityMedium, reqs[0].Priority)

	_, err = f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(art.ID, 1)))
	require.NoError(t, err)

	reqs = pending(t, f, art.ID)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Quantity.Equal(apptest.Qty(24)), "got %s", reqs[0].Quantity)
}

func TestCreate_AboveMinimumLeavesRequisitionsAlone(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	art := f.Article(t, 40)

	_, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(art.ID, 5)))
	require.NoError(t, err)

	assert.True(t, f.Stock(t, art.ID).Equal(apptest.Qty(35)))
	assert.Empty(t, pending(t, f, art.ID))
	assert.NotContains(t, f.Sink.Events(), notify.EventRequisitionChanged)
}

func TestCreate_OnePendingPerArticle(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 2)
	b := f.Article(t, 12)

	for i := 0; i < 6; i++ {
		_, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 3), line(b.ID, 1)))
		require.NoError(t, err)
		f.Clock.Advance(time.Minute)
	}

	assert.Len(t, pending(t, f, a.ID), 1)
	assert.Len(t, pending(t, f, b.ID), 1)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	art := f.Article(t, 10)

	tests := []struct {
		name  string
		actor security.Actor
		in    request.CreateInput
		check func(error) bool
	}{
		{
			name:  "no lines",
			actor: apptest.Designer,
			in:    projectRequest(),
			check: apperror.IsValidation,
		},
		{
			name:  "zero quantity",
			actor: apptest.Designer,
			in:    projectRequest(line(art.ID, 0)),
			check: apperror.IsValidation,
		},
		{
			name:  "equipo without equipo id",
			actor: apptest.Warehouse,
			in:    request.CreateInput{Type: request.TypeEquipo, Lines: []request.LineInput{line(art.ID, 1)}},
			check: apperror.IsValidation,
		},
		{
			name:  "purchasing cannot create projects",
			actor: apptest.Purchasing,
			in:    projectRequest(line(art.ID, 1)),
			check: apperror.IsForbidden,
		},
		{
			name:  "unknown article",
			actor: apptest.Designer,
			in:    projectRequest(line(id.New(), 1)),
			check: apperror.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.App.Requests.Create(ctx, tt.actor, tt.in)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	assert.True(t, f.Stock(t, art.ID).Equal(apptest.Qty(10)))
	assert.Empty(t, f.Movements(t, art.ID))
}

func TestCreate_LaterLineFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 5)

	_, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 20), line(id.New(), 1)))
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err), "unexpected error: %v", err)

	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(5)))
	assert.Empty(t, f.Movements(t, a.ID))
	assert.Empty(t, pending(t, f, a.ID))

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 1)))
	require.NoError(t, err)
	assert.Equal(t, "PED-140326-0930-01", req.Number, "the failed attempt must not consume a ticket")
}

func TestDispersal_GatesDelivery(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 100)
	b := f.Article(t, 100)

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 2), line(b.ID, 3)))
	require.NoError(t, err)
	l1, l2 := req.Lines[0].LineID, req.Lines[1].LineID

	req, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, l1, true)
	require.NoError(t, err)
	assert.Equal(t, 50, req.DispersalPercent())
	assert.Equal(t, request.StatePending, req.State)

	_, err = f.App.Requests.MarkReady(ctx, apptest.Warehouse, req.ID, apptest.Supervisor.UserID)
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)

	req, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, l2, true)
	require.NoError(t, err)
	assert.Equal(t, request.StateCompleted, req.State)
	assert.NotNil(t, req.CompletedAt)

	req, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, l2, false)
	require.NoError(t, err)
	assert.Equal(t, request.StatePending, req.State)
	assert.Nil(t, req.CompletedAt)

	_, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, l2, true)
	require.NoError(t, err)

	req, err = f.App.Requests.MarkReady(ctx, apptest.Warehouse, req.ID, apptest.Supervisor.UserID)
	require.NoError(t, err)
	assert.Equal(t, request.StateReadyForDelivery, req.State)

	other := security.Actor{UserID: "sup-2", Role: security.RoleSupervisor}
	_, err = f.App.Requests.Receive(ctx, other, req.ID)
	assert.True(t, apperror.IsForbidden(err), "got %v", err)

	req, err = f.App.Requests.Receive(ctx, apptest.Supervisor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateDelivered, req.State)

	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(98)), "dispersal never moves stock")
	assert.Contains(t, f.Sink.Events(), notify.EventRequestDelivered)
}

func TestRejectDelivery_ClearsDispersal(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 100)

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 1)))
	require.NoError(t, err)
	_, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, req.Lines[0].LineID, true)
	require.NoError(t, err)
	_, err = f.App.Requests.MarkReady(ctx, apptest.Warehouse, req.ID, apptest.Supervisor.UserID)
	require.NoError(t, err)

	_, err = f.App.Requests.RejectDelivery(ctx, apptest.Supervisor, req.ID, " ")
	assert.True(t, apperror.IsValidation(err))

	req, err = f.App.Requests.RejectDelivery(ctx, apptest.Supervisor, req.ID, "faltan piezas")
	require.NoError(t, err)
	assert.Equal(t, request.StatePending, req.State)
	assert.Empty(t, req.AssignedSupervisorID)
	assert.Equal(t, 0, req.DispersalPercent())
	assert.Equal(t, "faltan piezas", req.DeliveryRejectionNotes)
}

func TestEquipo_ApprovalFlow(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 100)
	eq := f.Equipo(t, apptest.Supervisor.UserID)

	req, err := f.App.Requests.Create(ctx, apptest.Warehouse, request.CreateInput{
		Type:     request.TypeEquipo,
		EquipoID: &eq.ID,
		Lines:    []request.LineInput{line(a.ID, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, request.StatePendingApproval, req.State)
	assert.Equal(t, apptest.Supervisor.UserID, req.SupervisorID)
	assert.Equal(t, "Nave 2", req.Location)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(96)), "stock is drawn at creation")

	var toSupervisor bool
	for _, n := range f.Sink.Sent() {
		if n.EventType == notify.EventRequestCreated && n.TargetUserID == apptest.Supervisor.UserID {
			toSupervisor = true
		}
	}
	assert.True(t, toSupervisor)

	_, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, req.Lines[0].LineID, true)
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)

	_, err = f.App.Requests.Approve(ctx, security.Actor{UserID: "sup-9", Role: security.RoleSupervisor}, req.ID)
	assert.True(t, apperror.IsForbidden(err), "got %v", err)

	req, err = f.App.Requests.Approve(ctx, apptest.Supervisor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateApproved, req.State)

	req, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, req.Lines[0].LineID, true)
	require.NoError(t, err)
	assert.Equal(t, request.StateCompleted, req.State)

	_, err = f.App.Requests.Reject(ctx, apptest.Supervisor, req.ID, "no autorizado")
	assert.True(t, apperror.IsPrecondition(err), "completed requests cannot be rejected")
}

func TestEquipo_RejectReturnsToApproval(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 100)
	b := f.Article(t, 100)
	eq := f.Equipo(t, apptest.Supervisor.UserID)

	req, err := f.App.Requests.Create(ctx, apptest.Warehouse, request.CreateInput{
		Type: request.TypeEquipo, EquipoID: &eq.ID, Lines: []request.LineInput{line(a.ID, 1), line(b.ID, 2)},
	})
	require.NoError(t, err)
	_, err = f.App.Requests.Approve(ctx, apptest.Supervisor, req.ID)
	require.NoError(t, err)
	_, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, req.Lines[0].LineID, true)
	require.NoError(t, err)

	req, err = f.App.Requests.Reject(ctx, apptest.Supervisor, req.ID, "cantidades incorrectas")
	require.NoError(t, err)
	assert.Equal(t, request.StatePendingApproval, req.State)
	assert.Nil(t, req.ApprovedAt)
	assert.Equal(t, 0, req.DispersalPercent())
	assert.Equal(t, "cantidades incorrectas", req.RejectionReason)
	assert.True(t, f.Stock(t, b.ID).Equal(apptest.Qty(98)), "rejection keeps the stock drawn")
}

func TestUpdateLineQuantity(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 12)

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 1)))
	require.NoError(t, err)
	lineID := req.Lines[0].LineID
	assert.Empty(t, pending(t, f, a.ID))

	req, err = f.App.Requests.UpdateLineQuantity(ctx, apptest.Designer, req.ID, lineID, apptest.Qty(4))
	require.NoError(t, err)
	assert.True(t, req.Lines[0].Quantity.Equal(apptest.Qty(4)))
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(8)))
	require.Len(t, pending(t, f, a.ID), 1, "the increase is reconciled like a draw")

	_, err = f.App.Requests.UpdateLineQuantity(ctx, apptest.Designer, req.ID, lineID, apptest.Qty(2))
	require.NoError(t, err)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(10)))

	movs := f.Movements(t, a.ID)
	require.Len(t, movs, 3)
	assert.Equal(t, stock.OriginRequestEdit, movs[1].OriginType)
	assert.True(t, movs[1].Delta.Equal(apptest.Qty(-3)))
	assert.True(t, movs[2].Delta.Equal(apptest.Qty(2)))

	_, err = f.App.Requests.UpdateLineQuantity(ctx, security.Actor{UserID: "dis-2", Role: security.RoleDesigner}, req.ID, lineID, apptest.Qty(3))
	assert.True(t, apperror.IsForbidden(err), "only the owner edits, got %v", err)

	_, err = f.App.Requests.SetDispersed(ctx, apptest.Warehouse, req.ID, lineID, true)
	require.NoError(t, err)
	_, err = f.App.Requests.UpdateLineQuantity(ctx, apptest.Designer, req.ID, lineID, apptest.Qty(3))
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)
}

func TestRemoveLine(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 50)
	b := f.Article(t, 50)

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 5), line(b.ID, 7)))
	require.NoError(t, err)

	req, err = f.App.Requests.RemoveLine(ctx, apptest.Designer, req.ID, req.Lines[0].LineID)
	require.NoError(t, err)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, 1, req.Lines[0].LineNo)
	assert.Equal(t, b.ID, req.Lines[0].ArticleID)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(50)))

	_, err = f.App.Requests.RemoveLine(ctx, apptest.Designer, req.ID, req.Lines[0].LineID)
	assert.True(t, apperror.IsPrecondition(err), "got %v", err)
	assert.True(t, f.Stock(t, b.ID).Equal(apptest.Qty(43)))

	history, err := f.App.Requests.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionLineRemoved, history[1].Action)
}

func TestUpdateLineQuantity_DecreaseShrinksRequisition(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 15)

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 10)))
	require.NoError(t, err)
	reqs := pending(t, f, a.ID)
	require.Len(t, reqs, 1)
	sc := reqs[0]
	assert.True(t, sc.Quantity.Equal(apptest.Qty(25)), "got %s", sc.Quantity)

	f.Clock.Advance(time.Minute)
	_, err = f.App.Requests.UpdateLineQuantity(ctx, apptest.Designer, req.ID, req.Lines[0].LineID, apptest.Qty(2))
	require.NoError(t, err)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(13)))

	reqs = pending(t, f, a.ID)
	require.Len(t, reqs, 1)
	assert.Equal(t, sc.ID, reqs[0].ID)
	assert.True(t, reqs[0].Quantity.Equal(apptest.Qty(17)), "max 30 - stock 13, got %s", reqs[0].Quantity)

	links, err := f.App.Stores.Requisitions.LinksByRequisition(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.True(t, links[1].Delta.Equal(apptest.Qty(-8)), "got %s", links[1].Delta)

	history, err := f.App.Requisitions.History(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionUpdated, history[1].Action)
	assert.Contains(t, history[1].Note, req.Number)
}

func TestRemoveLine_ShrinksRequisition(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 15)
	b := f.Article(t, 50)

	req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 10), line(b.ID, 1)))
	require.NoError(t, err)
	require.Len(t, pending(t, f, a.ID), 1)

	_, err = f.App.Requests.RemoveLine(ctx, apptest.Designer, req.ID, req.Lines[0].LineID)
	require.NoError(t, err)
	assert.True(t, f.Stock(t, a.ID).Equal(apptest.Qty(15)))

	reqs := pending(t, f, a.ID)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Quantity.Equal(apptest.Qty(15)), "got %s", reqs[0].Quantity)
}

func TestTickets_StrictlyIncreasingAndUnique(t *testing.T) {
	ctx := context.Background()
	f := apptest.New(t)
	a := f.Article(t, 1000)

	seen := make(map[string]bool)
	var prev numerator.Ticket
	for i := 0; i < 100; i++ {
		req, err := f.App.Requests.Create(ctx, apptest.Designer, projectRequest(line(a.ID, 1)))
		require.NoError(t, err)
		require.False(t, seen[req.Number], "duplicate ticket %s", req.Number)
		seen[req.Number] = true

		tk, err := numerator.Parse(req.Number)
		require.NoError(t, err)
		assert.Equal(t, numerator.PrefixRequest, tk.Prefix)
		if i > 0 {
			assert.True(t, numerator.Less(prev, tk), "%s should follow %d", req.Number, prev.Seq)
		}
		prev = tk
		f.Clock.Advance(3 * time.Minute)
	}
	assert.Equal(t, int64(100), prev.Seq)
}
