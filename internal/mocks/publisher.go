package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	sharedBus "github.com/davicafu/hexashop/internal/shared/infra/platform/bus"
)

// PublishedEvent es lo que recibió el publicador en una llamada.
type PublishedEvent struct {
	Topic   string
	Payload domainEvents.Payload
}

// RecordingPublisher guarda cada Publish en orden. Con Err configurado
// devuelve Queued=true y el error, igual que el Producer ante un fallo de envío.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

var _ sharedBus.EventPublisher = (*RecordingPublisher)(nil)

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(ctx context.Context, topic string, payload interface{}) (sharedBus.PublishResult, error) {
	body, err := domainEvents.PayloadOf(payload)
	if err != nil {
		return sharedBus.PublishResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Payload: body})
	if p.Err != nil {
		return sharedBus.PublishResult{Queued: true}, p.Err
	}
	return sharedBus.PublishResult{}, nil
}

func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}

// ByTopic devuelve los payloads publicados en un topic.
func (p *RecordingPublisher) ByTopic(topic string) []domainEvents.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domainEvents.Payload
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (p *RecordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.events))
	for _, e := range p.events {
		topics = append(topics, e.Topic)
	}
	return topics
}

// MockPublisher simula un publisher con expectativas de testify.
type MockPublisher struct {
	mock.Mock
}

var _ sharedBus.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload interface{}) (sharedBus.PublishResult, error) {
	args := m.Called(ctx, topic, payload)
	return args.Get(0).(sharedBus.PublishResult), args.Error(1)
}
