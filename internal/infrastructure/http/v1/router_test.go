package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/app/apptest"
	appctx "almacen/internal/core/context"
	"almacen/internal/core/id"
	"almacen/internal/core/security"
	"almacen/internal/domain/auth"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
	"almacen/internal/domain/registers/stock"
	"almacen/pkg/logger"
)

type testServer struct {
	f      *apptest.Fixture
	router *gin.Engine
	jwt    *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	f := apptest.New(t)
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	router := NewRouter(RouterConfig{
		App:          f.App,
		Driver:       "memory",
		Version:      "test",
		Logger:       logger.Nop(),
		JWTValidator: jwtSvc,
	})
	return &testServer{f: f, router: router, jwt: jwtSvc}
}

func (s *testServer) token(t *testing.T, actor security.Actor) string {
	t.Helper()
	tok, _, err := s.jwt.GenerateAccessToken(appctx.UserContext{UserID: actor.UserID, Role: string(actor.Role)})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, actor *security.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, *actor))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type listBody[T any] struct {
	Items []T `json:"items"`
}

func actor(a security.Actor) *security.Actor { return &a }

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, nil, http.MethodGet, "/health/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, "memory", info["storage"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, nil, http.MethodGet, "/api/v1/pedidos", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, w).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pedidos", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequests_CreateListAnnul(t *testing.T) {
	s := newTestServer(t)
	art := s.f.Article(t, 5)

	w := s.do(t, actor(apptest.Designer), http.MethodPost, "/api/v1/pedidos", map[string]any{
		"type":        "proyecto",
		"projectName": "Torre Norte",
		"lines":       []map[string]any{{"articleId": art.ID, "quantity": "20"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[request.Request](t, w)
	assert.Equal(t, "PED-140326-0930-01", created.Number)
	assert.Equal(t, request.StatePending, created.State)
	require.Len(t, created.Lines, 1)
	assert.True(t, s.f.Stock(t, art.ID).Equal(apptest.Qty(-15)))

	w = s.do(t, actor(apptest.Warehouse), http.MethodGet, "/api/v1/pedidos?state=pendiente", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[listBody[request.Request]](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)

	w = s.do(t, actor(apptest.Purchasing), http.MethodGet,
		"/api/v1/solicitudes?state=pendiente&articleId="+art.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	reqs := decode[listBody[requisition.Requisition]](t, w)
	require.Len(t, reqs.Items, 1)
	assert.True(t, reqs.Items[0].Quantity.Equal(apptest.Qty(45)))

	w = s.do(t, actor(apptest.Supervisor), http.MethodPost, "/api/v1/pedidos/"+created.ID.String()+"/anular",
		map[string]any{"reason": "proyecto suspendido"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	annul := decode[struct {
		Request               request.Request `json:"request"`
		RequisitionsCancelled []string        `json:"requisitionsCancelled"`
	}](t, w)
	assert.Equal(t, request.StateCancelled, annul.Request.State)
	assert.Len(t, annul.RequisitionsCancelled, 1)
	assert.True(t, s.f.Stock(t, art.ID).Equal(apptest.Qty(5)))

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/historial/pedido/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Entries []map[string]any `json:"entries"`
	}](t, w)
	assert.GreaterOrEqual(t, len(history.Entries), 2)

	w = s.do(t, actor(apptest.Warehouse), http.MethodGet, "/api/v1/articulos/"+art.ID.String()+"/movimientos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	moves := decode[listBody[stock.Movement]](t, w)
	require.Len(t, moves.Items, 2)
	assert.Equal(t, stock.OriginRequest, moves.Items[0].OriginType)
	assert.Equal(t, stock.OriginRequestAnnul, moves.Items[1].OriginType)

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/pedidos/"+created.ID.String()+"/traza", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequests_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	art := s.f.Article(t, 50)

	w := s.do(t, actor(apptest.Warehouse), http.MethodPost, "/api/v1/pedidos", map[string]any{
		"type":        "proyecto",
		"projectName": "Torre Norte",
		"lines":       []map[string]any{{"articleId": art.ID, "quantity": "1"}},
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, w).Code)

	w = s.do(t, actor(apptest.Designer), http.MethodPost, "/api/v1/pedidos", map[string]any{
		"type":  "proyecto",
		"lines": []map[string]any{{"articleId": art.ID, "quantity": "1"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "projectName", body.Details["field"])

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/pedidos/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/pedidos/"+id.New().String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, w).Code)

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/historial/factura/"+id.New().String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/pedidos?state=perdido", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrders_FromRequisitionsThenAnnul(t *testing.T) {
	s := newTestServer(t)
	sup := s.f.Supplier(t, "Ferretera del Norte")
	art := s.f.Article(t, 5, apptest.WithSupplier(sup.ID), apptest.WithUnitCost("2.50"))

	w := s.do(t, actor(apptest.Designer), http.MethodPost, "/api/v1/pedidos", map[string]any{
		"type":        "proyecto",
		"projectName": "Torre Norte",
		"lines":       []map[string]any{{"articleId": art.ID, "quantity": "20"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, actor(apptest.Purchasing), http.MethodGet, "/api/v1/solicitudes/pendientes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[listBody[requisition.Requisition]](t, w)
	require.Len(t, pending.Items, 1)
	sc := pending.Items[0]

	w = s.do(t, actor(apptest.Designer), http.MethodPost, "/api/v1/ordenes/desde-solicitudes", map[string]any{
		"requisitionIds": []id.ID{sc.ID},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, actor(apptest.Purchasing), http.MethodPost, "/api/v1/ordenes/desde-solicitudes", map[string]any{
		"requisitionIds": []id.ID{sc.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[purchase_order.PurchaseOrder](t, w)
	assert.Equal(t, purchase_order.StateDraft, order.State)
	assert.Equal(t, sup.ID, order.SupplierID)
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].Quantity.Equal(apptest.Qty(45)))

	w = s.do(t, actor(apptest.Purchasing), http.MethodGet, "/api/v1/solicitudes/"+sc.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, requisition.StateInOrder, decode[requisition.Requisition](t, w).State)

	w = s.do(t, actor(apptest.Purchasing), http.MethodPut, "/api/v1/ordenes/"+order.ID.String()+"/estado",
		map[string]any{"state": "cancelada"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, actor(apptest.Purchasing), http.MethodPost, "/api/v1/ordenes/"+order.ID.String()+"/anular",
		map[string]any{"reason": "proveedor sin existencias"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	annul := decode[struct {
		Order                purchase_order.PurchaseOrder `json:"order"`
		RequisitionsReopened []string                     `json:"requisitionsReopened"`
	}](t, w)
	assert.Equal(t, purchase_order.StateCancelled, annul.Order.State)
	assert.Len(t, annul.RequisitionsReopened, 1)

	w = s.do(t, actor(apptest.Purchasing), http.MethodGet, "/api/v1/ordenes/"+order.ID.String()+"/traza", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalog_RoleGuardedWrites(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{"code": "TOR-001", "name": "Tornillo 1/4", "unit": "pza", "unitCost": "0.35"}

	w := s.do(t, actor(apptest.Designer), http.MethodPost, "/api/v1/articulos", body)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, w).Code)

	w = s.do(t, actor(apptest.Warehouse), http.MethodPost, "/api/v1/articulos", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	articleID := created["id"].(string)

	w = s.do(t, actor(apptest.Purchasing), http.MethodPost, "/api/v1/proveedores", map[string]any{"name": "Aceros SA"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	supplierID := decode[map[string]any](t, w)["id"].(string)

	w = s.do(t, actor(apptest.Purchasing), http.MethodPost, "/api/v1/articulos/"+articleID+"/proveedores",
		map[string]any{"supplierId": supplierID, "preferred": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/articulos/"+articleID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, supplierID, got["detectedSupplierId"])
	assert.Len(t, got["suppliers"], 1)

	w = s.do(t, actor(apptest.Designer), http.MethodGet, "/api/v1/articulos?search=tor-001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listBody[map[string]any]](t, w).Items, 1)

	w = s.do(t, actor(apptest.Supervisor), http.MethodPost, "/api/v1/equipos",
		map[string]any{"code": "EQ-7", "supervisorId": "sup-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, actor(apptest.Admin), http.MethodPost, "/api/v1/equipos",
		map[string]any{"code": "EQ-7", "supervisorId": "sup-1"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
