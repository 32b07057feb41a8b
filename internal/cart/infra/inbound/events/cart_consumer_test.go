package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davicafu/hexashop/internal/cart/application"
	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	"github.com/davicafu/hexashop/internal/mocks"
	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
)

type harness struct {
	repo   *mocks.InMemoryCartRepo
	cache  *mocks.DummyCache
	router *sharedEvents.Router
	logs   *observer.ObservedLogs
}

func newHarness(t *testing.T) harness {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	repo := mocks.NewInMemoryCartRepo()
	cache := mocks.NewDummyCache()
	service := application.NewCartService(repo, &mocks.FakeCartCatalog{}, cache, mocks.NewRecordingPublisher(), zap.NewNop())

	router := sharedEvents.NewRouter(log)
	require.NoError(t, NewCartConsumer(service, log).Register(router))
	return harness{repo: repo, cache: cache, router: router, logs: logs}
}

func (h harness) seed(t *testing.T, userID string, productIDs ...string) {
	t.Helper()
	c := cartDomain.NewCart(userID, time.Now().UTC())
	for _, id := range productIDs {
		require.NoError(t, c.AddItem(id, 1, time.Now().UTC()))
	}
	require.NoError(t, h.repo.Save(context.Background(), c))
	require.NoError(t, h.cache.Set(context.Background(), cartDomain.CartCacheKey(userID), map[string]string{}, 300))
}

func (h harness) dispatch(t *testing.T, topic string, payload interface{}) error {
	t.Helper()
	body, err := domainEvents.PayloadOf(payload)
	require.NoError(t, err)
	evt := domainEvents.New(topic, body, "product-service")
	return h.router.Dispatch(context.Background(), topic, evt, evt.Headers())
}

func TestProductDeleted_RemovesFromCartsAndInvalidates(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.seed(t, "u-1", "p-1")
	h.seed(t, "u-2", "p-1", "p-2")

	// Act
	err := h.dispatch(t, cartDomain.ProductDeleted, cartDomain.ProductDeletedEvent{ProductID: "p-1"})

	// Assert
	require.NoError(t, err)
	assert.NotContains(t, h.repo.Carts, "u-1")
	assert.Equal(t, 1, len(h.repo.Carts["u-2"].Items))
	assert.False(t, h.cache.Has("cart:u-1"))
	assert.False(t, h.cache.Has("cart:u-2"))
}

func TestProductDeleted_Redelivery(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u-1", "p-1", "p-2")

	for i := 0; i < 2; i++ {
		require.NoError(t, h.dispatch(t, cartDomain.ProductDeleted, cartDomain.ProductDeletedEvent{ProductID: "p-1"}))
	}

	assert.Equal(t, 1, len(h.repo.Carts["u-1"].Items))
}

func TestPriceChanged_InvalidatesAndLogsDrop(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u-1", "p-1")

	err := h.dispatch(t, cartDomain.PriceChanged, cartDomain.PriceChangedEvent{ProductID: "p-1", OldPrice: 20, NewPrice: 15})

	require.NoError(t, err)
	assert.False(t, h.cache.Has("cart:u-1"))
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("Price drop").Len())
}

func TestOutOfStock_WarnsWhenInCarts(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u-1", "p-1")

	require.NoError(t, h.dispatch(t, cartDomain.ProductOutOfStock, cartDomain.OutOfStockEvent{ProductID: "p-1", ProductName: "Taza"}))
	require.NoError(t, h.dispatch(t, cartDomain.ProductUpdated, cartDomain.ProductUpdatedEvent{ProductID: "p-9", Stock: 0}))

	assert.Equal(t, 1, h.logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestUnknownTopicIsNotAnError(t *testing.T) {
	h := newHarness(t)

	err := h.dispatch(t, "cart.unknown", map[string]string{"a": "b"})

	assert.NoError(t, err)
	assert.Equal(t, 1, h.logs.FilterLevelExact(zap.WarnLevel).Len())
}
