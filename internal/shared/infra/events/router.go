package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
)

var ErrDuplicateHandler = errors.New("handler already registered for topic")

// HandlerFunc procesa un evento de un topic concreto.
type HandlerFunc func(ctx context.Context, evt domainEvents.Event) error

// Middleware envuelve los handlers de un topic.
type Middleware func(topic string, next HandlerFunc) HandlerFunc

// Dispatcher es lo que el Consumer necesita para entregar mensajes.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, evt domainEvents.Event, headers map[string]string) error
}

// Router asocia cada topic exacto con un único handler.
type Router struct {
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	middleware []Middleware
	log        *zap.Logger
}

var _ Dispatcher = (*Router)(nil)

func NewRouter(log *zap.Logger, mws ...Middleware) *Router {
	return &Router{
		handlers:   make(map[string]HandlerFunc),
		middleware: mws,
		log:        log,
	}
}

// Use añade middleware. El primero añadido es el más externo.
func (r *Router) Use(mws ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mws...)
}

func (r *Router) Register(topic string, h HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[topic]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, topic)
	}
	r.handlers[topic] = h
	return nil
}

// Topics devuelve los topics registrados, ordenados.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch invoca el handler del topic. Un topic sin handler no es un error: se avisa y se ignora.
func (r *Router) Dispatch(ctx context.Context, topic string, evt domainEvents.Event, headers map[string]string) error {
	r.mu.RLock()
	h, ok := r.handlers[topic]
	mws := r.middleware
	r.mu.RUnlock()

	if !ok {
		eventsConsumed.WithLabelValues(topic, "unrouted").Inc()
		r.log.Warn("no handler registered for topic", zap.String("topic", topic))
		return nil
	}

	if evt.CorrelationID == "" {
		evt.CorrelationID = headers[domainEvents.HeaderCorrelationID]
	}
	if evt.Topic == "" {
		evt.Topic = topic
	}

	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](topic, h)
	}

	start := time.Now()
	err := h(ctx, evt)
	handlerDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	return err
}
