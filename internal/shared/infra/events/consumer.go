package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	"github.com/davicafu/hexashop/internal/shared/infra/broker"
)

var (
	ErrAlreadySubscribed = errors.New("consumer already subscribed")
	ErrNoTopics          = errors.New("subscribe needs at least one topic")
)

type subscription struct {
	topics  []string
	handler Dispatcher
	reader  MessageReader
	cancel  context.CancelFunc
	done    chan struct{}
}

// Consumer escucha un conjunto de topics con un grupo de consumo y entrega cada
// mensaje al Dispatcher. Los fallos de un mensaje no detienen el bucle.
type Consumer struct {
	groupID string
	cfg     broker.Config
	link    *broker.Link
	readers ReaderFactory
	log     *zap.Logger

	mu  sync.Mutex
	sub *subscription
}

func NewConsumer(groupID string, cfg broker.Config, readers ReaderFactory, dial broker.DialFunc, log *zap.Logger) *Consumer {
	cfg = cfg.WithDefaults()
	log = log.With(zap.String("component", "consumer"), zap.String("group", groupID))
	return &Consumer{
		groupID: groupID,
		cfg:     cfg,
		link:    broker.NewLink(groupID+"-consumer", cfg, dial, log),
		readers: readers,
		log:     log,
	}
}

// Connect conecta con el broker. Ver broker.Link.Connect.
func (c *Consumer) Connect(ctx context.Context) error {
	return c.link.Connect(ctx)
}

func (c *Consumer) State() broker.State {
	return c.link.State()
}

// Subscribe registra todos los topics de una vez y arranca el bucle de recepción en background.
// Si el broker no está disponible el bucle espera a que lo esté.
func (c *Consumer) Subscribe(ctx context.Context, topics []string, handler Dispatcher) error {
	if len(topics) == 0 {
		return ErrNoTopics
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return ErrAlreadySubscribed
	}

	if err := c.link.Connect(ctx); err != nil {
		c.log.Warn("⚠️ broker not reachable yet, receive loop will wait", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		topics:  append([]string(nil), topics...),
		handler: handler,
		reader:  c.readers(c.groupID, topics),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.sub = sub

	c.log.Info("🎧 consumer subscribed", zap.Strings("topics", topics))
	go c.loop(loopCtx, sub)
	return nil
}

// Disconnect detiene el bucle y libera el lector. Los handlers en curso terminan su trabajo.
func (c *Consumer) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub == nil {
		c.link.Disconnect()
		return nil
	}

	sub.cancel()
	select {
	case <-sub.done:
	case <-ctx.Done():
		c.log.Warn("⏱️ receive loop did not stop before deadline")
	}
	c.link.Disconnect()

	err := sub.reader.Close()
	c.log.Info("🛑 consumer stopped")
	return err
}

func (c *Consumer) loop(ctx context.Context, sub *subscription) {
	defer close(sub.done)

	for {
		if !c.awaitConnection(ctx) {
			return
		}

		msg, err := sub.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("error fetching message", zap.Error(err))
			c.link.Reset(err)
			if !c.sleep(ctx, c.cfg.RetryBackoff) {
				return
			}
			continue
		}

		// Los handlers no se cancelan al desconectar.
		c.handle(context.WithoutCancel(ctx), sub, msg)
	}
}

func (c *Consumer) awaitConnection(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	for c.link.State() != broker.Connected {
		if err := c.link.Connect(ctx); err == nil {
			return true
		}
		if !c.sleep(ctx, c.cfg.RetryBackoff) {
			return false
		}
	}
	return true
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) handle(ctx context.Context, sub *subscription, msg kafka.Message) {
	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	headers := fromKafkaHeaders(msg.Headers)
	evt, err := domainEvents.Decode(msg.Topic, msg.Value, headers)
	if err != nil {
		eventsConsumed.WithLabelValues(msg.Topic, "malformed").Inc()
		c.log.Error("❌ malformed message dropped", append(fields, zap.Error(err))...)
		c.commit(ctx, sub, msg)
		return
	}

	if err := c.dispatch(ctx, sub.handler, msg.Topic, evt, headers); err != nil {
		eventsConsumed.WithLabelValues(msg.Topic, "failed").Inc()
		c.log.Error("❌ error processing message",
			append(fields, zap.String("correlation_id", evt.CorrelationID), zap.Error(err))...)
	} else {
		eventsConsumed.WithLabelValues(msg.Topic, "handled").Inc()
	}
	c.commit(ctx, sub, msg)
}

func (c *Consumer) dispatch(ctx context.Context, d Dispatcher, topic string, evt domainEvents.Event, headers map[string]string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.Dispatch(ctx, topic, evt, headers)
}

func (c *Consumer) commit(ctx context.Context, sub *subscription, msg kafka.Message) {
	if err := sub.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Warn("could not commit offset",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}
