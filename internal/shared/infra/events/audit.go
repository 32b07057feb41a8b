package events

import (
	"context"
	"time"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
)

// EventRecord es una entrada del registro de eventos consumidos.
type EventRecord struct {
	Consumer        string
	Topic           string
	CorrelationID   string
	ProducerService string
	ProducedAt      time.Time
	ConsumedAt      time.Time
	Duration        time.Duration
	Outcome         string
	Error           string
	Payload         string
}

// EventLog recibe registros sin bloquear al handler.
type EventLog interface {
	Record(rec EventRecord)
}

// Audit registra cada evento procesado y su resultado en el EventLog.
func Audit(consumer string, sink EventLog) Middleware {
	return func(topic string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, evt domainEvents.Event) error {
			start := time.Now()
			err := next(ctx, evt)

			rec := EventRecord{
				Consumer:        consumer,
				Topic:           topic,
				CorrelationID:   evt.CorrelationID,
				ProducerService: evt.ProducerService,
				ProducedAt:      evt.ProducedAt,
				ConsumedAt:      start.UTC(),
				Duration:        time.Since(start),
				Outcome:         "handled",
			}
			if raw, mErr := evt.Payload.MarshalJSON(); mErr == nil {
				rec.Payload = string(raw)
			}
			if err != nil {
				rec.Outcome = "failed"
				rec.Error = err.Error()
			}
			sink.Record(rec)
			return err
		}
	}
}
