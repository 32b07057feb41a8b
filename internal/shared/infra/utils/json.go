package utils

import (
	"fmt"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
)

// UnmarshalAndHandle decodifica el payload en T y se lo pasa al handler.
// Un payload que no encaja en T se devuelve como ErrMalformedEvent.
func UnmarshalAndHandle[T any](payload domainEvents.Payload, handler func(T) error) error {
	var evt T
	if err := payload.Decode(&evt); err != nil {
		return fmt.Errorf("%w: %v", domainEvents.ErrMalformedEvent, err)
	}
	return handler(evt)
}
