package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
)

type memoryEventLog struct {
	mu      sync.Mutex
	records []EventRecord
}

func (l *memoryEventLog) Record(rec EventRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

func TestAudit_RecordsOutcome(t *testing.T) {
	sink := &memoryEventLog{}
	r := NewRouter(zap.NewNop(), Audit("order-service", sink))
	require.NoError(t, r.Register("payment.failed", func(ctx context.Context, evt domainEvents.Event) error {
		if evt.Payload.String("orderId") == "bad" {
			return errors.New("order not pending")
		}
		return nil
	}))

	ok := newEvent(t, "payment.failed", map[string]string{"orderId": "o-1"})
	bad := newEvent(t, "payment.failed", map[string]string{"orderId": "bad"})
	require.NoError(t, r.Dispatch(context.Background(), "payment.failed", ok, nil))
	require.Error(t, r.Dispatch(context.Background(), "payment.failed", bad, nil))

	require.Len(t, sink.records, 2)
	assert.Equal(t, "handled", sink.records[0].Outcome)
	assert.Equal(t, ok.CorrelationID, sink.records[0].CorrelationID)
	assert.JSONEq(t, `{"orderId":"o-1"}`, sink.records[0].Payload)
	assert.Equal(t, "failed", sink.records[1].Outcome)
	assert.Equal(t, "order not pending", sink.records[1].Error)
	assert.Equal(t, "order-service", sink.records[1].Consumer)
}
