package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"

	fieldTimestamp = "timestamp"
	fieldService   = "service"

	// TimestampLayout es ISO-8601 en UTC con milisegundos.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var ErrMalformedEvent = errors.New("malformed event")

// Event es la unidad inmutable que viaja por el broker.
type Event struct {
	Topic           string    `json:"topic"`
	Payload         Payload   `json:"payload"`
	ProducedAt      time.Time `json:"producedAt"`
	CorrelationID   string    `json:"correlationId"`
	ProducerService string    `json:"service"`
}

// New construye un evento con un correlation id nuevo.
func New(topic string, payload Payload, service string) Event {
	return Event{
		Topic:           topic,
		Payload:         payload,
		ProducedAt:      time.Now().UTC(),
		CorrelationID:   uuid.NewString(),
		ProducerService: service,
	}
}

// Encode genera el cuerpo del mensaje: los campos del payload seguidos de timestamp y service.
// Si el payload ya trae esas claves, prevalecen los valores del productor.
func (e Event) Encode() ([]byte, error) {
	body := make(Payload, 0, len(e.Payload)+2)
	for _, f := range e.Payload {
		if f.Key == fieldTimestamp || f.Key == fieldService {
			continue
		}
		body = append(body, f)
	}

	ts, _ := json.Marshal(e.ProducedAt.UTC().Format(TimestampLayout))
	svc, _ := json.Marshal(e.ProducerService)
	body = append(body,
		Field{Key: fieldTimestamp, Value: ts},
		Field{Key: fieldService, Value: svc},
	)
	return body.MarshalJSON()
}

// Headers devuelve las cabeceras de transporte del evento.
func (e Event) Headers() map[string]string {
	return map[string]string{
		HeaderEventType:     e.Topic,
		HeaderCorrelationID: e.CorrelationID,
	}
}

// Decode reconstruye un Event a partir del cuerpo recibido y sus cabeceras.
// Devuelve ErrMalformedEvent si el cuerpo no es un objeto JSON.
func Decode(topic string, body []byte, headers map[string]string) (Event, error) {
	var raw Payload
	if err := raw.UnmarshalJSON(body); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	evt := Event{Topic: topic, CorrelationID: headers[HeaderCorrelationID]}
	if evt.Topic == "" {
		evt.Topic = headers[HeaderEventType]
	}

	payload := make(Payload, 0, len(raw))
	for _, f := range raw {
		switch f.Key {
		case fieldTimestamp:
			var ts string
			if json.Unmarshal(f.Value, &ts) == nil {
				if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
					evt.ProducedAt = t
				}
			}
		case fieldService:
			_ = json.Unmarshal(f.Value, &evt.ProducerService)
		default:
			payload = append(payload, f)
		}
	}
	evt.Payload = payload
	return evt, nil
}
