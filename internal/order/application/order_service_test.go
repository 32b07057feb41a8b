package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/hexashop/internal/mocks"
	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
	sharedCache "github.com/davicafu/hexashop/internal/shared/infra/platform/cache"
)

var alice = orderDomain.Customer{ID: "u-1", Email: "alice@example.com", Name: "Alice"}

type fixture struct {
	repo      *mocks.InMemoryOrderRepo
	carts     *mocks.FakeCartGateway
	catalog   *mocks.FakeCatalog
	cache     *mocks.DummyCache
	publisher *mocks.RecordingPublisher
	service   *OrderService
}

func newFixture() fixture {
	f := fixture{
		repo:  mocks.NewInMemoryOrderRepo(),
		carts: mocks.NewFakeCartGateway(),
		catalog: &mocks.FakeCatalog{Products: map[string]orderDomain.ProductInfo{
			"p-1": {ID: "p-1", Name: "Taza", Price: 10},
			"p-2": {ID: "p-2", Name: "Plato", Price: 2.5},
		}},
		cache:     mocks.NewDummyCache(),
		publisher: mocks.NewRecordingPublisher(),
	}
	f.service = NewOrderService(f.repo, f.carts, f.catalog, f.cache, f.publisher, zap.NewNop())
	return f
}

func (f fixture) seedOrder(t *testing.T, userID string, status orderDomain.OrderStatus, createdAt time.Time) *orderDomain.Order {
	t.Helper()
	o := &orderDomain.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Items:       []orderDomain.OrderItem{{ProductID: "p-1", Name: "Taza", Price: 10, Quantity: 3}},
		TotalAmount: 30,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	require.NoError(t, f.repo.Create(context.Background(), o))
	return o
}

func TestCreateOrder_Success(t *testing.T) {
	// Arrange
	f := newFixture()
	f.carts.Lines[alice.ID] = []orderDomain.CartLine{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "gone", Quantity: 1},
		{ProductID: "p-2", Quantity: 4},
	}
	f.cache.Set(context.Background(), "orders:u-1", []string{"stale"}, sharedCache.TTLOrders)

	// Act
	o, err := f.service.CreateOrder(context.Background(), alice)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, orderDomain.StatusPending, o.Status)
	assert.Len(t, o.Items, 2, "el producto que no se puede consultar se omite")
	assert.InDelta(t, 30.0, o.TotalAmount, 1e-9)

	_, err = f.repo.GetByID(context.Background(), o.ID)
	assert.NoError(t, err)
	assert.False(t, f.cache.Has("orders:u-1"))
	assert.Equal(t, []string{alice.ID}, f.carts.Cleared)

	created := f.publisher.ByTopic(orderDomain.OrderCreated)
	require.Len(t, created, 1)
	var evt orderDomain.OrderCreatedEvent
	require.NoError(t, created[0].Decode(&evt))
	assert.Equal(t, o.ID.String(), evt.OrderID)
	assert.Equal(t, alice.Email, evt.UserEmail)
	assert.Equal(t, []orderDomain.OrderLine{
		{ProductID: "p-1", ProductName: "Taza", Quantity: 2, Price: 10},
		{ProductID: "p-2", ProductName: "Plato", Quantity: 4, Price: 2.5},
	}, evt.Items)
}

func TestCreateOrder_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.carts.Lines[alice.ID] = []orderDomain.CartLine{{ProductID: "p-1", Quantity: 1}}
	f.publisher.Err = errors.New("broker down")

	o, err := f.service.CreateOrder(context.Background(), alice)

	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, []string{alice.ID}, f.carts.Cleared)
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		customer orderDomain.Customer
		lines    []orderDomain.CartLine
		wantErr  error
	}{
		{"missing contact", orderDomain.Customer{ID: "u-1"}, nil, orderDomain.ErrMissingContact},
		{"empty cart", alice, nil, orderDomain.ErrCartEmpty},
		{"no valid products", alice, []orderDomain.CartLine{{ProductID: "gone", Quantity: 1}}, orderDomain.ErrNoValidItems},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.carts.Lines[alice.ID] = tt.lines

			_, err := f.service.CreateOrder(context.Background(), tt.customer)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.repo.Orders)
			assert.Empty(t, f.publisher.Events())
			assert.Empty(t, f.carts.Cleared)
		})
	}
}

func TestGetUserOrders_CacheAside(t *testing.T) {
	f := newFixture()
	f.seedOrder(t, "u-1", orderDomain.StatusPending, time.Now().UTC())

	first, cached, err := f.service.GetUserOrders(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, first, 1)
	assert.Equal(t, sharedCache.TTLOrders, f.cache.TTL("orders:u-1"))

	second, cached, err := f.service.GetUserOrders(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestGetUserOrders_EmptyIsCachedAsEmptyList(t *testing.T) {
	f := newFixture()

	orders, _, err := f.service.GetUserOrders(context.Background(), "nobody")

	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	assert.True(t, f.cache.Has("orders:nobody"))
}

func TestMarkOrderPaid(t *testing.T) {
	f := newFixture()
	o := f.seedOrder(t, alice.ID, orderDomain.StatusPending, time.Now().UTC())
	f.cache.Set(context.Background(), "orders:u-1", []string{"stale"}, sharedCache.TTLOrders)

	paid, err := f.service.MarkOrderPaid(context.Background(), alice, o.ID)

	require.NoError(t, err)
	assert.Equal(t, orderDomain.StatusPaid, paid.Status)
	assert.False(t, f.cache.Has("orders:u-1"))
	assert.Len(t, f.publisher.ByTopic(orderDomain.OrderPaid), 1)

	_, err = f.service.MarkOrderPaid(context.Background(), alice, o.ID)
	assert.ErrorIs(t, err, orderDomain.ErrOrderAlreadyPaid)
	assert.Len(t, f.publisher.ByTopic(orderDomain.OrderPaid), 1)
}

func TestMarkOrderPaid_OtherUsersOrderIsNotFound(t *testing.T) {
	f := newFixture()
	o := f.seedOrder(t, "u-2", orderDomain.StatusPending, time.Now().UTC())

	_, err := f.service.MarkOrderPaid(context.Background(), alice, o.ID)

	assert.ErrorIs(t, err, orderDomain.ErrOrderNotFound)
}

func TestApplyPaymentSuccess_IsIdempotent(t *testing.T) {
	// Arrange
	f := newFixture()
	o := f.seedOrder(t, "u-1", orderDomain.StatusPending, time.Now().UTC())
	evt := orderDomain.PaymentSuccessEvent{OrderID: o.ID.String(), PaymentID: "pay-1", Amount: 30}

	// Act: el evento llega dos veces
	require.NoError(t, f.service.ApplyPaymentSuccess(context.Background(), evt))
	require.NoError(t, f.service.ApplyPaymentSuccess(context.Background(), evt))

	// Assert
	stored, _ := f.repo.GetByID(context.Background(), o.ID)
	assert.Equal(t, orderDomain.StatusPaid, stored.Status)
	assert.Equal(t, "pay-1", stored.PaymentID)
	assert.Equal(t, 1, f.repo.Transitions)
	assert.Len(t, f.publisher.ByTopic(orderDomain.OrderPaid), 1)
}

func TestApplyPaymentSuccess_UnknownOrderIsSkipped(t *testing.T) {
	f := newFixture()

	assert.NoError(t, f.service.ApplyPaymentSuccess(context.Background(), orderDomain.PaymentSuccessEvent{OrderID: uuid.NewString()}))
	assert.NoError(t, f.service.ApplyPaymentSuccess(context.Background(), orderDomain.PaymentSuccessEvent{OrderID: "not-a-uuid"}))
	assert.Empty(t, f.publisher.Events())
}

func TestApplyPaymentFailed_CancelsPendingOnly(t *testing.T) {
	f := newFixture()
	pending := f.seedOrder(t, "u-1", orderDomain.StatusPending, time.Now().UTC())
	paid := f.seedOrder(t, "u-1", orderDomain.StatusPaid, time.Now().UTC())

	require.NoError(t, f.service.ApplyPaymentFailed(context.Background(), orderDomain.PaymentFailedEvent{OrderID: pending.ID.String()}))
	require.NoError(t, f.service.ApplyPaymentFailed(context.Background(), orderDomain.PaymentFailedEvent{OrderID: paid.ID.String(), Reason: "late"}))

	stored, _ := f.repo.GetByID(context.Background(), pending.ID)
	assert.Equal(t, orderDomain.StatusCancelled, stored.Status)
	assert.Equal(t, "Payment failed", stored.CancellationReason)

	untouched, _ := f.repo.GetByID(context.Background(), paid.ID)
	assert.Equal(t, orderDomain.StatusPaid, untouched.Status)

	cancelled := f.publisher.ByTopic(orderDomain.OrderCancelled)
	require.Len(t, cancelled, 1)
	var evt orderDomain.OrderCancelledEvent
	require.NoError(t, cancelled[0].Decode(&evt))
	assert.Equal(t, pending.ID.String(), evt.OrderID)
	assert.Len(t, evt.Items, 1, "los items permiten al catálogo devolver el stock")
}

func TestCancelOldPendingOrders(t *testing.T) {
	// Arrange
	f := newFixture()
	now := time.Now().UTC()
	old := f.seedOrder(t, "u-1", orderDomain.StatusPending, now.Add(-25*time.Hour))
	f.seedOrder(t, "u-1", orderDomain.StatusPending, now.Add(-time.Hour))
	f.seedOrder(t, "u-2", orderDomain.StatusPaid, now.Add(-48*time.Hour))
	f.cache.Set(context.Background(), "orders:u-1", []string{"stale"}, sharedCache.TTLOrders)

	// Act
	n, err := f.service.CancelOldPendingOrders(context.Background(), orderDomain.StaleOrderAge)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored, _ := f.repo.GetByID(context.Background(), old.ID)
	assert.Equal(t, orderDomain.StatusCancelled, stored.Status)
	assert.False(t, f.cache.Has("orders:u-1"))

	cancelled := f.publisher.ByTopic(orderDomain.OrderCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, old.ID.String(), cancelled[0].String("orderId"))
}
