package events

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

var ErrBrokerUnavailable = errors.New("in-memory broker unavailable")

// InMemoryBroker es un broker en proceso: un log por topic (una sola partición)
// y offsets confirmados por grupo de consumo.
type InMemoryBroker struct {
	mu      sync.Mutex
	logs    map[string][]kafka.Message
	offsets map[string]map[string]int64 // grupo -> topic -> siguiente offset
	down    bool
	notify  chan struct{}
}

func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		logs:    make(map[string][]kafka.Message),
		offsets: make(map[string]map[string]int64),
		notify:  make(chan struct{}),
	}
}

var _ MessageWriter = (*InMemoryBroker)(nil)

// SetAvailable simula la caída o recuperación del broker.
func (b *InMemoryBroker) SetAvailable(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = !up
	close(b.notify)
	b.notify = make(chan struct{})
}

// Dial sirve como broker.DialFunc.
func (b *InMemoryBroker) Dial(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return ErrBrokerUnavailable
	}
	return ctx.Err()
}

func (b *InMemoryBroker) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return ErrBrokerUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, m := range msgs {
		if m.Topic == "" {
			return errors.New("message without topic")
		}
		m.Partition = 0
		m.Offset = int64(len(b.logs[m.Topic]))
		b.logs[m.Topic] = append(b.logs[m.Topic], m)
	}
	close(b.notify)
	b.notify = make(chan struct{})
	return nil
}

// Close no hace nada: el broker vive lo que viva el proceso.
func (b *InMemoryBroker) Close() error { return nil }

// Messages devuelve una copia del log de un topic.
func (b *InMemoryBroker) Messages(topic string) []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]kafka.Message, len(b.logs[topic]))
	copy(out, b.logs[topic])
	return out
}

// Readers devuelve la factoría de lectores. Un grupo nuevo empieza desde el principio del log.
func (b *InMemoryBroker) Readers() ReaderFactory {
	return func(groupID string, topics []string) MessageReader {
		return &memReader{broker: b, group: groupID, topics: append([]string(nil), topics...)}
	}
}

type memReader struct {
	broker *InMemoryBroker
	group  string
	topics []string
	next   int

	mu     sync.Mutex
	pos    map[string]int64
	closed bool
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		b := r.broker
		b.mu.Lock()
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			b.mu.Unlock()
			return kafka.Message{}, errors.New("reader closed")
		}
		if r.pos == nil {
			r.pos = make(map[string]int64, len(r.topics))
			for _, t := range r.topics {
				r.pos[t] = b.offsets[r.group][t]
			}
		}

		if !b.down {
			for i := 0; i < len(r.topics); i++ {
				t := r.topics[(r.next+i)%len(r.topics)]
				if entries := b.logs[t]; r.pos[t] < int64(len(entries)) {
					msg := entries[r.pos[t]]
					r.pos[t]++
					r.next = (r.next + i + 1) % len(r.topics)
					r.mu.Unlock()
					b.mu.Unlock()
					return msg, nil
				}
			}
		}
		wait := b.notify
		r.mu.Unlock()
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-wait:
		}
	}
}

func (r *memReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	b := r.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offsets[r.group] == nil {
		b.offsets[r.group] = make(map[string]int64)
	}
	for _, m := range msgs {
		if m.Offset+1 > b.offsets[r.group][m.Topic] {
			b.offsets[r.group][m.Topic] = m.Offset + 1
		}
	}
	return nil
}

func (r *memReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
