package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/hexashop/internal/mocks"
	"github.com/davicafu/hexashop/internal/order/application"
	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
)

type testEnv struct {
	router *gin.Engine
	repo   *mocks.InMemoryOrderRepo
	carts  *mocks.FakeCartGateway
}

func newTestEnv() testEnv {
	gin.SetMode(gin.TestMode)
	repo := mocks.NewInMemoryOrderRepo()
	carts := mocks.NewFakeCartGateway()
	catalog := &mocks.FakeCatalog{Products: map[string]orderDomain.ProductInfo{"p-1": {ID: "p-1", Name: "Taza", Price: 10}}}
	service := application.NewOrderService(repo, carts, catalog, mocks.NewDummyCache(), mocks.NewRecordingPublisher(), zap.NewNop())

	r := gin.New()
	RegisterOrderRoutes(r, NewOrderHandler(service, zap.NewNop()))
	return testEnv{router: r, repo: repo, carts: carts}
}

func (e testEnv) do(method, path string, withIdentity bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if withIdentity {
		req.Header.Set("X-User-ID", "u-1")
		req.Header.Set("X-User-Email", "alice@example.com")
		req.Header.Set("X-User-Name", "Alice")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestOrderRoutes_RequireIdentity(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/orders/my-orders", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrderThenList(t *testing.T) {
	// Arrange
	env := newTestEnv()
	env.carts.Lines["u-1"] = []orderDomain.CartLine{{ProductID: "p-1", Quantity: 3}}

	// Act
	created := env.do(http.MethodPost, "/api/orders/create", true)
	listed := env.do(http.MethodGet, "/api/orders/my-orders", true)

	// Assert
	require.Equal(t, http.StatusCreated, created.Code)
	require.Equal(t, http.StatusOK, listed.Code)

	var body struct {
		Data   []orderDomain.Order `json:"data"`
		Cached bool                `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.InDelta(t, 30.0, body.Data[0].TotalAmount, 1e-9)
	assert.False(t, body.Cached)
}

func TestCreateOrder_EmptyCartIsBadRequest(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/orders/create", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkOrderPaid_Routes(t *testing.T) {
	env := newTestEnv()
	o := &orderDomain.Order{ID: uuid.New(), UserID: "u-1", Status: orderDomain.StatusPending, CreatedAt: time.Now()}
	require.NoError(t, env.repo.Create(context.Background(), o))

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/orders/not-a-uuid/pay", true).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPut, "/api/orders/"+uuid.NewString()+"/pay", true).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPut, "/api/orders/"+o.ID.String()+"/pay", true).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/orders/"+o.ID.String()+"/pay", true).Code, "ya pagado")
}
