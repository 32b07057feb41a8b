package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	"github.com/davicafu/hexashop/internal/shared/infra/broker"
	sharedBus "github.com/davicafu/hexashop/internal/shared/infra/platform/bus"
)

var ErrQueueFull = errors.New("producer pending queue is full")

const defaultPartitionKey = "default"

// PendingMessage es un evento a la espera de que el broker esté disponible.
type PendingMessage struct {
	Topic string             `json:"topic"`
	Key   string             `json:"key"`
	Event domainEvents.Event `json:"event"`
}

type ProducerOption func(*Producer)

// WithKeyFields fija los campos del payload que se usan como clave de partición, por prioridad.
func WithKeyFields(fields ...string) ProducerOption {
	return func(p *Producer) { p.keyFields = fields }
}

// WithPendingStore restaura la cola al arrancar y la guarda al desconectar.
func WithPendingStore(store PendingStore) ProducerOption {
	return func(p *Producer) { p.store = store }
}

// Producer publica eventos; si el broker no está disponible los encola
// y un worker en background los vacía en orden cuando vuelve la conexión.
type Producer struct {
	service   string
	cfg       broker.Config
	writer    MessageWriter
	link      *broker.Link
	keyFields []string
	store     PendingStore
	log       *zap.Logger

	mu       sync.Mutex
	pending  []PendingMessage
	draining bool
	inflight atomic.Int64
	drained  chan struct{}
	closed   bool

	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

var _ sharedBus.EventPublisher = (*Producer)(nil)

func NewProducer(service string, cfg broker.Config, writer MessageWriter, dial broker.DialFunc, log *zap.Logger, opts ...ProducerOption) *Producer {
	cfg = cfg.WithDefaults()
	log = log.With(zap.String("component", "producer"), zap.String("service", service))

	p := &Producer{
		service:   service,
		cfg:       cfg,
		writer:    writer,
		link:      broker.NewLink(service+"-producer", cfg, dial, log),
		keyFields: []string{"productId", "userId", "cartId", "orderId", "id"},
		log:       log,
		drained:   make(chan struct{}),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.store != nil {
		restored, err := p.store.Load(context.Background())
		if err != nil {
			log.Warn("⚠️ could not restore pending snapshot", zap.Error(err))
		} else if len(restored) > 0 {
			p.pending = restored
			log.Info("📬 pending messages restored", zap.Int("count", len(restored)))
		}
	}
	pendingMessages.WithLabelValues(service).Set(float64(len(p.pending)))

	p.link.OnConnected(p.signal)

	p.wg.Add(1)
	go p.run()
	return p
}

// Connect conecta con el broker. Ver broker.Link.Connect.
func (p *Producer) Connect(ctx context.Context) error {
	return p.link.Connect(ctx)
}

// ConnectAsync lanza la conexión sin esperar; lo publicado mientras tanto se encola.
func (p *Producer) ConnectAsync() {
	p.link.ConnectAsync()
}

func (p *Producer) State() broker.State {
	return p.link.State()
}

func (p *Producer) Name() string {
	return p.service
}

// Pending devuelve el número de mensajes sin entregar, incluidos los del vaciado en curso.
func (p *Producer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) + int(p.inflight.Load())
}

// Publish envía el evento si hay conexión y no hay nada por delante en la cola.
// En cualquier otro caso lo encola y devuelve Queued=true sin esperar.
func (p *Producer) Publish(ctx context.Context, topic string, payload interface{}) (sharedBus.PublishResult, error) {
	body, err := domainEvents.PayloadOf(payload)
	if err != nil {
		return sharedBus.PublishResult{}, err
	}

	msg := PendingMessage{
		Topic: topic,
		Key:   p.partitionKey(payload, body),
		Event: domainEvents.New(topic, body, p.service),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return sharedBus.PublishResult{}, broker.ErrClosed
	}
	state := p.link.State()
	if state != broker.Connected || len(p.pending) > 0 || p.draining {
		err := p.enqueueLocked(msg)
		p.mu.Unlock()
		if err != nil {
			return sharedBus.PublishResult{}, err
		}

		switch state {
		case broker.Disconnected:
			p.link.ConnectAsync()
		case broker.Connected:
			p.signal()
		}
		eventsPublished.WithLabelValues(topic, "queued").Inc()
		p.log.Debug("event queued", zap.String("topic", topic), zap.String("state", state.String()))
		return sharedBus.PublishResult{Queued: true}, nil
	}
	p.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	if err := p.send(sendCtx, msg); err != nil {
		eventsPublished.WithLabelValues(topic, "failed").Inc()
		p.log.Error("❌ error publishing event, queued for retry",
			zap.String("topic", topic),
			zap.String("correlation_id", msg.Event.CorrelationID),
			zap.Error(err),
		)

		p.mu.Lock()
		qErr := p.enqueueLocked(msg)
		p.mu.Unlock()
		p.link.Reset(err)

		if qErr != nil {
			return sharedBus.PublishResult{}, fmt.Errorf("publish %s: %w", topic, qErr)
		}
		return sharedBus.PublishResult{Queued: true}, fmt.Errorf("publish %s: %w", topic, err)
	}

	eventsPublished.WithLabelValues(topic, "sent").Inc()
	return sharedBus.PublishResult{Queued: false}, nil
}

// Flush conecta si hace falta y espera a que la cola quede vacía.
func (p *Producer) Flush(ctx context.Context) error {
	for {
		if err := p.link.Connect(ctx); err != nil {
			return err
		}

		p.mu.Lock()
		if len(p.pending) == 0 && !p.draining {
			p.mu.Unlock()
			return nil
		}
		ch := p.drained
		p.mu.Unlock()

		p.signal()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Disconnect suelta la conexión. La cola se conserva (y se guarda si hay store).
func (p *Producer) Disconnect(ctx context.Context) error {
	p.link.Disconnect()
	if err := p.waitDrain(ctx); err != nil {
		return err
	}
	return p.snapshot(ctx)
}

// Close desconecta, para el worker y cierra el writer. Lo que quede en cola se descarta
// salvo que haya un PendingStore configurado.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.link.Close()
	close(p.stop)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("⏱️ producer drain did not finish before shutdown deadline")
	}

	err := p.snapshot(ctx)

	p.mu.Lock()
	if left := len(p.pending); left > 0 && p.store == nil {
		p.log.Warn("🗑️ discarding undelivered pending messages", zap.Int("count", left))
		p.pending = nil
		pendingMessages.WithLabelValues(p.service).Set(0)
	}
	p.mu.Unlock()

	return errors.Join(err, p.writer.Close())
}

func (p *Producer) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-p.kick:
			p.drain()
		}
	}
}

func (p *Producer) signal() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// drain vacía la cola en orden FIFO. Un mensaje que falla vuelve a la cola
// y se sigue con el siguiente.
func (p *Producer) drain() {
	p.mu.Lock()
	if p.draining || len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	p.draining = true
	batch := p.pending
	p.pending = nil
	p.inflight.Store(int64(len(batch)))
	p.mu.Unlock()

	var (
		failed  []PendingMessage
		lastErr error
		sent    int
	)
	for i, msg := range batch {
		if p.link.State() != broker.Connected {
			failed = append(failed, batch[i:]...)
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
		err := p.send(ctx, msg)
		cancel()
		if err != nil {
			lastErr = err
			failed = append(failed, msg)
			eventsPublished.WithLabelValues(msg.Topic, "failed").Inc()
			p.log.Warn("⚠️ pending message failed, re-queued",
				zap.String("topic", msg.Topic),
				zap.String("correlation_id", msg.Event.CorrelationID),
				zap.Error(err),
			)
			continue
		}
		sent++
		p.inflight.Add(-1)
		eventsPublished.WithLabelValues(msg.Topic, "sent").Inc()
	}

	p.mu.Lock()
	p.pending = append(failed, p.pending...)
	p.inflight.Store(0)
	p.draining = false
	more := len(p.pending) > len(failed)
	pendingMessages.WithLabelValues(p.service).Set(float64(len(p.pending)))
	close(p.drained)
	p.drained = make(chan struct{})
	p.mu.Unlock()

	if sent > 0 {
		p.log.Info("📤 pending messages flushed", zap.Int("sent", sent), zap.Int("requeued", len(failed)))
	}
	if lastErr != nil {
		p.link.Reset(lastErr)
	} else if more && p.link.State() == broker.Connected {
		p.signal()
	}
}

func (p *Producer) waitDrain(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.draining {
			p.mu.Unlock()
			return nil
		}
		ch := p.drained
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Producer) snapshot(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.mu.Lock()
	msgs := make([]PendingMessage, len(p.pending))
	copy(msgs, p.pending)
	p.mu.Unlock()

	if err := p.store.Save(ctx, msgs); err != nil {
		p.log.Error("❌ could not persist pending snapshot", zap.Error(err))
		return err
	}
	return nil
}

// enqueueLocked requiere p.mu.
func (p *Producer) enqueueLocked(msg PendingMessage) error {
	if len(p.pending) >= p.cfg.MaxPending {
		eventsPublished.WithLabelValues(msg.Topic, "rejected").Inc()
		p.log.Error("❌ pending queue full, event rejected",
			zap.String("topic", msg.Topic),
			zap.Int("max_pending", p.cfg.MaxPending),
		)
		return ErrQueueFull
	}
	p.pending = append(p.pending, msg)
	pendingMessages.WithLabelValues(p.service).Set(float64(len(p.pending)))
	return nil
}

func (p *Producer) send(ctx context.Context, msg PendingMessage) error {
	value, err := msg.Event.Encode()
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: toKafkaHeaders(msg.Event.Headers()),
		Time:    time.Now(),
	})
}

func (p *Producer) partitionKey(payload interface{}, body domainEvents.Payload) string {
	if keyer, ok := payload.(sharedBus.Keyer); ok {
		if key := keyer.PartitionKey(); key != "" {
			return key
		}
	}
	for _, field := range p.keyFields {
		if v := body.String(field); v != "" {
			return v
		}
	}
	return defaultPartitionKey
}
