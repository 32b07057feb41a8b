package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	"github.com/davicafu/hexashop/internal/shared/infra/broker"
)

func testBrokerConfig() broker.Config {
	return broker.Config{
		Brokers:        []string{"in-memory"},
		ClientID:       "test",
		ConnectTimeout: 100 * time.Millisecond,
		SendTimeout:    100 * time.Millisecond,
		RetryBackoff:   20 * time.Millisecond,
		MaxPending:     100,
	}
}

// recordingWriter permite forzar fallos por topic o durante las primeras N escrituras.
type recordingWriter struct {
	mu        sync.Mutex
	failFirst int
	failTopic string
	written   []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failFirst > 0 {
		w.failFirst--
		return errors.New("leader not available")
	}
	for _, m := range msgs {
		if w.failTopic != "" && m.Topic == w.failTopic {
			return errors.New("message rejected")
		}
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) Written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.written...)
}

type switchDial struct{ up atomic.Bool }

func (d *switchDial) Dial(ctx context.Context) error {
	if d.up.Load() {
		return nil
	}
	return errors.New("connection refused")
}

type cartKeyed struct {
	CartID string `json:"cartId"`
	UserID string `json:"userId"`
}

func (c cartKeyed) PartitionKey() string { return "cart-" + c.CartID }

func decodedField(t *testing.T, msg kafka.Message, field string) string {
	t.Helper()
	evt, err := domainEvents.Decode(msg.Topic, msg.Value, fromKafkaHeaders(msg.Headers))
	require.NoError(t, err)
	return evt.Payload.String(field)
}

func TestProducer_BufferThenDrainFIFO(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBroker()
	b.SetAvailable(false)

	p := NewProducer("order-service", testBrokerConfig(), b, b.Dial, zap.NewNop())
	defer p.Close(ctx)

	for i := 0; i < 5; i++ {
		res, err := p.Publish(ctx, "order.created", map[string]interface{}{"orderId": fmt.Sprintf("o-%d", i)})
		require.NoError(t, err)
		assert.True(t, res.Queued)
	}
	assert.Equal(t, 5, p.Pending())
	assert.Empty(t, b.Messages("order.created"))

	b.SetAvailable(true)
	require.Eventually(t, func() bool { return p.Flush(ctx) == nil }, 2*time.Second, 10*time.Millisecond)

	msgs := b.Messages("order.created")
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("o-%d", i), decodedField(t, m, "orderId"))
	}
	assert.Equal(t, 0, p.Pending())
}

func TestProducer_PublishWhileConnectingIsQueued(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	w := &recordingWriter{}
	p := NewProducer("cart-service", testBrokerConfig(), w, func(ctx context.Context) error {
		<-release
		return nil
	}, zap.NewNop())
	defer p.Close(ctx)

	go func() { _ = p.Connect(ctx) }()
	require.Eventually(t, func() bool { return p.State() == broker.Connecting }, time.Second, time.Millisecond)

	res, err := p.Publish(ctx, "cart.item.added", cartKeyed{CartID: "c-1", UserID: "u-1"})
	require.NoError(t, err)
	assert.True(t, res.Queued)

	close(release)
	require.Eventually(t, func() bool { return len(w.Written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestProducer_ConnectedSendIsSynchronous(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{}
	p := NewProducer("cart-service", testBrokerConfig(), w, func(ctx context.Context) error { return nil }, zap.NewNop(),
		WithKeyFields("userId", "cartId"))
	defer p.Close(ctx)
	require.NoError(t, p.Connect(ctx))

	res, err := p.Publish(ctx, "cart.cleared", map[string]interface{}{"userId": "u-7", "cartId": "c-7"})
	require.NoError(t, err)
	assert.False(t, res.Queued)

	res, err = p.Publish(ctx, "cart.item.added", cartKeyed{CartID: "c-1", UserID: "u-1"})
	require.NoError(t, err)
	assert.False(t, res.Queued)

	_, err = p.Publish(ctx, "cart.abandoned", map[string]interface{}{"itemCount": 2})
	require.NoError(t, err)

	written := w.Written()
	require.Len(t, written, 3)

	assert.Equal(t, "u-7", string(written[0].Key))
	assert.Equal(t, "cart-c-1", string(written[1].Key))
	assert.Equal(t, "default", string(written[2].Key))

	headers := fromKafkaHeaders(written[0].Headers)
	assert.Equal(t, "cart.cleared", headers[domainEvents.HeaderEventType])
	assert.NotEmpty(t, headers[domainEvents.HeaderCorrelationID])
	evt, err := domainEvents.Decode(written[0].Topic, written[0].Value, headers)
	require.NoError(t, err)
	assert.Equal(t, "cart-service", evt.ProducerService)
	assert.Equal(t, "c-7", evt.Payload.String("cartId"))
}

func TestProducer_SendFailureRequeuesAndRetries(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{failFirst: 1}
	p := NewProducer("product-service", testBrokerConfig(), w, func(ctx context.Context) error { return nil }, zap.NewNop())
	defer p.Close(ctx)
	require.NoError(t, p.Connect(ctx))

	res, err := p.Publish(ctx, "product.updated", map[string]interface{}{"productId": "p-1"})
	assert.Error(t, err)
	assert.True(t, res.Queued)

	require.Eventually(t, func() bool { return len(w.Written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "p-1", string(w.Written()[0].Key))
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestProducer_DrainContinuesPastFailingMessage(t *testing.T) {
	ctx := context.Background()
	dial := &switchDial{}
	w := &recordingWriter{failTopic: "product.price.changed"}
	p := NewProducer("product-service", testBrokerConfig(), w, dial.Dial, zap.NewNop())
	defer p.Close(ctx)

	for _, topic := range []string{"product.created", "product.price.changed", "product.updated"} {
		res, err := p.Publish(ctx, topic, map[string]interface{}{"productId": "p-1"})
		require.NoError(t, err)
		assert.True(t, res.Queued)
	}

	dial.up.Store(true)
	require.Eventually(t, func() bool { return len(w.Written()) == 2 }, 2*time.Second, 5*time.Millisecond)

	written := w.Written()
	assert.Equal(t, "product.created", written[0].Topic)
	assert.Equal(t, "product.updated", written[1].Topic)
	assert.Eventually(t, func() bool { return p.Pending() == 1 }, time.Second, 5*time.Millisecond)
}

func TestProducer_QueueBound(t *testing.T) {
	ctx := context.Background()
	cfg := testBrokerConfig()
	cfg.MaxPending = 2
	b := NewInMemoryBroker()
	b.SetAvailable(false)

	p := NewProducer("order-service", cfg, b, b.Dial, zap.NewNop())
	defer p.Close(ctx)

	for i := 0; i < 2; i++ {
		_, err := p.Publish(ctx, "order.created", map[string]interface{}{"orderId": i})
		require.NoError(t, err)
	}
	res, err := p.Publish(ctx, "order.created", map[string]interface{}{"orderId": 3})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, res.Queued)
	assert.Equal(t, 2, p.Pending())
}

func TestProducer_DisconnectKeepsQueue(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBroker()
	p := NewProducer("order-service", testBrokerConfig(), b, b.Dial, zap.NewNop())
	defer p.Close(ctx)
	require.NoError(t, p.Connect(ctx))

	b.SetAvailable(false)
	require.NoError(t, p.Disconnect(ctx))
	assert.Equal(t, broker.Disconnected, p.State())

	res, err := p.Publish(ctx, "order.paid", map[string]interface{}{"orderId": "o-1"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.NoError(t, p.Disconnect(ctx))
	assert.Equal(t, 1, p.Pending())
}

func TestProducer_PendingSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := NewFilePendingStore(t.TempDir(), "order-service")
	b := NewInMemoryBroker()
	b.SetAvailable(false)

	p := NewProducer("order-service", testBrokerConfig(), b, b.Dial, zap.NewNop(), WithPendingStore(store))
	for _, id := range []string{"o-1", "o-2"} {
		_, err := p.Publish(ctx, "order.cancelled", map[string]interface{}{"orderId": id})
		require.NoError(t, err)
	}
	require.NoError(t, p.Close(ctx))

	b.SetAvailable(true)
	restarted := NewProducer("order-service", testBrokerConfig(), b, b.Dial, zap.NewNop(), WithPendingStore(store))
	defer restarted.Close(ctx)
	assert.Equal(t, 2, restarted.Pending())

	require.NoError(t, restarted.Flush(ctx))
	msgs := b.Messages("order.cancelled")
	require.Len(t, msgs, 2)
	assert.Equal(t, "o-1", decodedField(t, msgs[0], "orderId"))
	assert.Equal(t, "o-2", decodedField(t, msgs[1], "orderId"))
}

func TestProducer_ClosedRejectsPublish(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBroker()
	p := NewProducer("order-service", testBrokerConfig(), b, b.Dial, zap.NewNop())
	require.NoError(t, p.Close(ctx))

	_, err := p.Publish(ctx, "order.created", map[string]interface{}{"orderId": "o-1"})
	assert.ErrorIs(t, err, broker.ErrClosed)
}
