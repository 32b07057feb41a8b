package bus

import "context"

// Keyer permite a un payload decidir su clave de partición.
type Keyer interface {
	PartitionKey() string
}

// PublishResult indica si el evento quedó encolado en lugar de enviarse.
type PublishResult struct {
	Queued bool
}

// EventPublisher es el puerto de salida que usan los servicios de aplicación.
// El payload se serializa a objeto JSON; el envelope lo construye el adapter.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) (PublishResult, error)
}
