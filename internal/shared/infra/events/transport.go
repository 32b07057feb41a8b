package events

import (
	"context"

	"github.com/segmentio/kafka-go"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
)

// MessageWriter es la parte del transporte que usa el Producer. *kafka.Writer la cumple.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader es la parte del transporte que usa el Consumer. *kafka.Reader la cumple.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory crea un lector para un grupo de consumo y su conjunto de topics.
type ReaderFactory func(groupID string, topics []string) MessageReader

var (
	_ MessageWriter = (*kafka.Writer)(nil)
	_ MessageReader = (*kafka.Reader)(nil)
)

func toKafkaHeaders(h map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(h))
	for _, k := range []string{domainEvents.HeaderEventType, domainEvents.HeaderCorrelationID} {
		if v, ok := h[k]; ok {
			out = append(out, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return out
}

func fromKafkaHeaders(hs []kafka.Header) map[string]string {
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}
