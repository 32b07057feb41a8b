package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/hexashop/internal/mocks"
	"github.com/davicafu/hexashop/internal/product/application"
	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	"github.com/davicafu/hexashop/internal/shared/infra/broker"
	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
)

func brokerConfig() broker.Config {
	return broker.Config{
		Brokers:        []string{"in-memory"},
		ClientID:       "product-test",
		ConnectTimeout: 100 * time.Millisecond,
		SendTimeout:    100 * time.Millisecond,
		RetryBackoff:   20 * time.Millisecond,
		MaxPending:     100,
	}
}

func orderCreatedMessage(t *testing.T, orderID, productID string, qty int) kafka.Message {
	t.Helper()
	payload, err := domainEvents.PayloadOf(productDomain.OrderCreatedEvent{
		OrderID: orderID,
		UserID:  "u-1",
		Items:   []productDomain.OrderLine{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	evt := domainEvents.New(productDomain.OrderCreated, payload, "order-service")
	body, err := evt.Encode()
	require.NoError(t, err)

	var headers []kafka.Header
	for k, v := range evt.Headers() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{Topic: productDomain.OrderCreated, Key: []byte(orderID), Value: body, Headers: headers}
}

// Stock 5, order.created con 3 unidades entregado dos veces: el stock queda en 2.
func TestScenario_OrderCreatedRedeliveryKeepsStock(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := mocks.NewInMemoryProductRepo()
	require.NoError(t, repo.Create(ctx, &productDomain.Product{ID: "p-1", Name: "Lámpara", Price: 20, Stock: 5}))
	service := application.NewProductService(repo, mocks.NewDummyCache(), mocks.NewRecordingPublisher(), zap.NewNop())

	var handled atomic.Int32
	counting := func(topic string, next sharedEvents.HandlerFunc) sharedEvents.HandlerFunc {
		return func(ctx context.Context, evt domainEvents.Event) error {
			defer handled.Add(1)
			return next(ctx, evt)
		}
	}
	router := sharedEvents.NewRouter(zap.NewNop(), counting)
	require.NoError(t, NewProductConsumer(service, zap.NewNop()).Register(router))

	b := sharedEvents.NewInMemoryBroker()
	consumer := sharedEvents.NewConsumer("product-service", brokerConfig(), b.Readers(), b.Dial, zap.NewNop())
	require.NoError(t, consumer.Subscribe(ctx, router.Topics(), router))
	defer consumer.Disconnect(ctx)

	// Act: el mismo mensaje llega dos veces
	msg := orderCreatedMessage(t, "o-1", "p-1", 3)
	require.NoError(t, b.WriteMessages(ctx, msg, msg))

	// Assert
	require.Eventually(t, func() bool { return handled.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	p, err := repo.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestProductConsumer_InboxSkipsDuplicateCorrelationID(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := mocks.NewInMemoryProductRepo()
	require.NoError(t, repo.Create(ctx, &productDomain.Product{ID: "p-1", Name: "Lámpara", Price: 20, Stock: 5}))
	publisher := mocks.NewRecordingPublisher()
	service := application.NewProductService(repo, mocks.NewDummyCache(), publisher, zap.NewNop())

	router := sharedEvents.NewRouter(zap.NewNop(),
		sharedEvents.Idempotent("product-service", sharedEvents.NewMemoryInbox(time.Hour), zap.NewNop()))
	require.NoError(t, NewProductConsumer(service, zap.NewNop()).Register(router))

	msg := orderCreatedMessage(t, "o-1", "p-1", 5)
	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	evt, err := domainEvents.Decode(msg.Topic, msg.Value, headers)
	require.NoError(t, err)

	// Act
	require.NoError(t, router.Dispatch(ctx, msg.Topic, evt, headers))
	require.NoError(t, router.Dispatch(ctx, msg.Topic, evt, headers))

	// Assert
	p, _ := repo.GetByID(ctx, "p-1")
	assert.Equal(t, 0, p.Stock)
	assert.Len(t, publisher.ByTopic(productDomain.ProductOutOfStock), 1, "out-of-stock se publica una sola vez")
}

func TestProductConsumer_OrderCancelledRestoresStock(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewInMemoryProductRepo()
	require.NoError(t, repo.Create(ctx, &productDomain.Product{ID: "p-1", Name: "Lámpara", Price: 20, Stock: 5}))
	service := application.NewProductService(repo, mocks.NewDummyCache(), nil, zap.NewNop())
	router := sharedEvents.NewRouter(zap.NewNop())
	require.NoError(t, NewProductConsumer(service, zap.NewNop()).Register(router))

	created, err := domainEvents.PayloadOf(productDomain.OrderCreatedEvent{
		OrderID: "o-1", Items: []productDomain.OrderLine{{ProductID: "p-1", Quantity: 4}},
	})
	require.NoError(t, err)
	cancelled, err := domainEvents.PayloadOf(productDomain.OrderCancelledEvent{
		OrderID: "o-1", Reason: "Payment failed", Items: []productDomain.OrderLine{{ProductID: "p-1", Quantity: 4}},
	})
	require.NoError(t, err)

	require.NoError(t, router.Dispatch(ctx, productDomain.OrderCreated, domainEvents.New(productDomain.OrderCreated, created, "order-service"), nil))
	require.NoError(t, router.Dispatch(ctx, productDomain.OrderCancelled, domainEvents.New(productDomain.OrderCancelled, cancelled, "order-service"), nil))

	p, _ := repo.GetByID(ctx, "p-1")
	assert.Equal(t, 5, p.Stock)
}

func TestProductConsumer_MalformedPayload(t *testing.T) {
	router := sharedEvents.NewRouter(zap.NewNop())
	service := application.NewProductService(mocks.NewInMemoryProductRepo(), nil, nil, zap.NewNop())
	require.NoError(t, NewProductConsumer(service, zap.NewNop()).Register(router))

	payload, err := domainEvents.PayloadOf(map[string]interface{}{"orderId": 42, "items": "nope"})
	require.NoError(t, err)

	err = router.Dispatch(context.Background(), productDomain.OrderCreated, domainEvents.New(productDomain.OrderCreated, payload, "order-service"), nil)
	assert.ErrorIs(t, err, domainEvents.ErrMalformedEvent)
}
