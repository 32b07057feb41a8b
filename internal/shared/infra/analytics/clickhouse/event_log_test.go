package clickhouse

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
)

type batchRecorder struct {
	mu      sync.Mutex
	records []sharedEvents.EventRecord
}

func (b *batchRecorder) write(ctx context.Context, records []sharedEvents.EventRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, records...)
	return nil
}

func (b *batchRecorder) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, r := range b.records {
		out = append(out, r.Topic)
	}
	return out
}

// newTestRepo usa una base SQLite en memoria solo para que Close tenga algo que cerrar.
func newTestRepo(t *testing.T, batchSize int, interval time.Duration) (*EventLogRepo, *batchRecorder) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	repo := NewEventLogRepo(db, batchSize, interval, zap.NewNop())
	rec := &batchRecorder{}
	repo.writeBatch = rec.write
	return repo, rec
}

func TestEventLog_RecordsDuringShutdownAreFlushedOnClose(t *testing.T) {
	// Arrange
	repo, rec := newTestRepo(t, 500, time.Hour)
	repo.Start()
	repo.Record(sharedEvents.EventRecord{Consumer: "cart-service", Topic: "product.updated"})

	// Act: la señal de parada ya llegó y los consumidores aún terminan su último mensaje
	time.Sleep(20 * time.Millisecond)
	repo.Record(sharedEvents.EventRecord{Consumer: "cart-service", Topic: "product.deleted"})
	require.NoError(t, repo.Close())

	// Assert
	assert.Equal(t, []string{"product.updated", "product.deleted"}, rec.topics())
}

func TestEventLog_FlushesWhenBatchIsFull(t *testing.T) {
	repo, rec := newTestRepo(t, 2, time.Hour)
	repo.Start()
	defer repo.Close()

	repo.Record(sharedEvents.EventRecord{Topic: "order.created"})
	repo.Record(sharedEvents.EventRecord{Topic: "order.cancelled"})

	assert.Eventually(t, func() bool { return len(rec.topics()) == 2 }, time.Second, 5*time.Millisecond)
}
