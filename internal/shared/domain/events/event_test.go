package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderCreated struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Items   []orderItem `json:"items"`
	Total   float64     `json:"total"`
}

func TestPayloadOf_KeepsFieldOrder(t *testing.T) {
	p, err := PayloadOf(orderCreated{OrderID: "o-1", UserID: "u-1", Total: 10.5})
	require.NoError(t, err)

	keys := make([]string, 0, len(p))
	for _, f := range p {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"orderId", "userId", "items", "total"}, keys)
	assert.Equal(t, "o-1", p.String("orderId"))
	assert.Equal(t, "10.5", p.String("total"))
	assert.Equal(t, "", p.String("items"))
	assert.Equal(t, "", p.String("missing"))
}

func TestPayloadOf_RejectsNonObject(t *testing.T) {
	_, err := PayloadOf([]int{1, 2})
	assert.Error(t, err)
}

func TestEncode_InjectsTimestampAndService(t *testing.T) {
	p, err := PayloadOf(map[string]interface{}{"productId": "p-1"})
	require.NoError(t, err)
	p, err = p.With("service", "spoofed")
	require.NoError(t, err)

	evt := New("product.updated", p, "product-service")
	evt.ProducedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	body, err := evt.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"productId":"p-1","timestamp":"2024-03-01T10:00:00.000Z","service":"product-service"}`, string(body))

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &generic))
	assert.Len(t, generic, 3)
}

func TestDecode_RoundTripsEnvelope(t *testing.T) {
	p, _ := PayloadOf(orderCreated{OrderID: "o-9", UserID: "u-9", Items: []orderItem{{ProductID: "p-1", Quantity: 3}}})
	evt := New("order.created", p, "order-service")

	body, err := evt.Encode()
	require.NoError(t, err)

	got, err := Decode("order.created", body, evt.Headers())
	require.NoError(t, err)
	assert.Equal(t, evt.CorrelationID, got.CorrelationID)
	assert.Equal(t, "order-service", got.ProducerService)
	assert.WithinDuration(t, evt.ProducedAt, got.ProducedAt, time.Millisecond)

	var decoded orderCreated
	require.NoError(t, got.Payload.Decode(&decoded))
	assert.Equal(t, "o-9", decoded.OrderID)
	assert.Equal(t, 3, decoded.Items[0].Quantity)
}

func TestDecode_MalformedBody(t *testing.T) {
	_, err := Decode("order.created", []byte("not-json"), nil)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode("order.created", []byte(`["array"]`), nil)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDecode_TopicFallsBackToHeader(t *testing.T) {
	got, err := Decode("", []byte(`{"id":"x"}`), map[string]string{HeaderEventType: "product.deleted"})
	require.NoError(t, err)
	assert.Equal(t, "product.deleted", got.Topic)
	assert.Empty(t, got.CorrelationID)
}
