package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
)

// Inbox registra qué eventos ha procesado ya cada consumidor.
type Inbox interface {
	// Claim devuelve true si el evento es nuevo para el consumidor y queda reservado.
	Claim(ctx context.Context, consumer, eventKey string) (bool, error)
	// Release deshace un Claim para que una nueva entrega pueda reprocesarlo.
	Release(ctx context.Context, consumer, eventKey string) error
}

// Idempotent descarta entregas repetidas (mismo topic y correlation id).
// Si el handler falla se libera la reserva. Sin correlation id no se deduplica.
func Idempotent(consumer string, inbox Inbox, log *zap.Logger) Middleware {
	return func(topic string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, evt domainEvents.Event) error {
			if evt.CorrelationID == "" {
				return next(ctx, evt)
			}
			key := topic + "|" + evt.CorrelationID

			claimed, err := inbox.Claim(ctx, consumer, key)
			if err != nil {
				log.Warn("inbox unavailable, processing without dedup", zap.String("topic", topic), zap.Error(err))
				return next(ctx, evt)
			}
			if !claimed {
				eventsConsumed.WithLabelValues(topic, "duplicate").Inc()
				log.Info("duplicate event ignored",
					zap.String("topic", topic),
					zap.String("correlation_id", evt.CorrelationID),
				)
				return nil
			}

			if err := next(ctx, evt); err != nil {
				if relErr := inbox.Release(ctx, consumer, key); relErr != nil {
					log.Warn("could not release inbox claim", zap.String("key", key), zap.Error(relErr))
				}
				return err
			}
			return nil
		}
	}
}

// ---------------- MemoryInbox ----------------

// MemoryInbox guarda las reservas en un mapa. Con ttl > 0 las caducadas se
// purgan durante Claim, como mucho una vez por ttl.
type MemoryInbox struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryInbox(ttl time.Duration) *MemoryInbox {
	return &MemoryInbox{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

var _ Inbox = (*MemoryInbox)(nil)

func (i *MemoryInbox) Claim(ctx context.Context, consumer, eventKey string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if i.ttl > 0 && now.Sub(i.lastSweep) >= i.ttl {
		i.sweepLocked(now)
	}

	key := consumer + ":" + eventKey
	if exp, ok := i.seen[key]; ok && (i.ttl <= 0 || now.Before(exp)) {
		return false, nil
	}
	i.seen[key] = now.Add(i.ttl)
	return true, nil
}

// sweepLocked requiere i.mu.
func (i *MemoryInbox) sweepLocked(now time.Time) {
	for key, exp := range i.seen {
		if !now.Before(exp) {
			delete(i.seen, key)
		}
	}
	i.lastSweep = now
}

func (i *MemoryInbox) Release(ctx context.Context, consumer, eventKey string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, consumer+":"+eventKey)
	return nil
}

// ---------------- RedisInbox ----------------

// RedisInbox usa SETNX con TTL: la clave existe mientras el evento cuente como procesado.
type RedisInbox struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisInbox(client *redis.Client, ttl time.Duration) *RedisInbox {
	return &RedisInbox{client: client, ttl: ttl}
}

var _ Inbox = (*RedisInbox)(nil)

func (i *RedisInbox) key(consumer, eventKey string) string {
	return fmt.Sprintf("inbox:%s:%s", consumer, eventKey)
}

func (i *RedisInbox) Claim(ctx context.Context, consumer, eventKey string) (bool, error) {
	return i.client.SetNX(ctx, i.key(consumer, eventKey), time.Now().UTC().Format(time.RFC3339), i.ttl).Result()
}

func (i *RedisInbox) Release(ctx context.Context, consumer, eventKey string) error {
	return i.client.Del(ctx, i.key(consumer, eventKey)).Err()
}
