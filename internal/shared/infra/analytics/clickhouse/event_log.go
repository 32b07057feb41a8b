package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
)

// EventLogRepo acumula los eventos consumidos y los inserta en ClickHouse por lotes.
type EventLogRepo struct {
	db        *sql.DB
	log       *zap.Logger
	batchSize int
	interval  time.Duration

	// writeBatch es LogBatch salvo en tests.
	writeBatch func(ctx context.Context, records []sharedEvents.EventRecord) error

	records chan sharedEvents.EventRecord
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ sharedEvents.EventLog = (*EventLogRepo)(nil)

// Open conecta con ClickHouse.
func Open(addr, dbName string) (*sql.DB, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return conn, nil
}

func NewEventLogRepo(db *sql.DB, batchSize int, interval time.Duration, log *zap.Logger) *EventLogRepo {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := &EventLogRepo{
		db:        db,
		log:       log,
		batchSize: batchSize,
		interval:  interval,
		records:   make(chan sharedEvents.EventRecord, batchSize*4),
		stop:      make(chan struct{}),
	}
	r.writeBatch = r.LogBatch
	return r
}

// InitSchema crea la tabla si no existe. Particionada por mes, ordenada por topic y hora.
func (r *EventLogRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS consumed_events (
			consumer         String,
			topic            String,
			correlation_id   String,
			producer_service String,
			produced_at      DateTime64(3),
			consumed_at      DateTime64(3),
			duration_ms      Float64,
			outcome          LowCardinality(String),
			error            String,
			payload          String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(consumed_at)
		ORDER BY (topic, consumer, consumed_at);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Record encola sin bloquear; si el buffer está lleno el registro se pierde.
func (r *EventLogRepo) Record(rec sharedEvents.EventRecord) {
	select {
	case r.records <- rec:
	default:
		r.log.Warn("event log buffer full, record dropped", zap.String("topic", rec.Topic))
	}
}

// Start arranca el volcado periódico en background. El worker vive hasta Close,
// que debe llamarse después de parar los consumidores para no perder registros.
func (r *EventLogRepo) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		batch := make([]sharedEvents.EventRecord, 0, r.batchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.writeBatch(flushCtx, batch); err != nil {
				r.log.Warn("⚠️ could not write event log batch", zap.Int("size", len(batch)), zap.Error(err))
			}
			batch = batch[:0]
		}

		for {
			select {
			case rec := <-r.records:
				batch = append(batch, rec)
				if len(batch) >= r.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			case <-r.stop:
				r.drainInto(&batch)
				flush()
				return
			}
		}
	}()
}

func (r *EventLogRepo) drainInto(batch *[]sharedEvents.EventRecord) {
	for {
		select {
		case rec := <-r.records:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

// Close vuelca lo pendiente y para el worker.
func (r *EventLogRepo) Close() error {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
	return r.db.Close()
}

// LogBatch inserta un lote de registros en una sola transacción.
func (r *EventLogRepo) LogBatch(ctx context.Context, records []sharedEvents.EventRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO consumed_events (consumer, topic, correlation_id, producer_service, produced_at, consumed_at, duration_ms, outcome, error, payload)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Consumer,
			rec.Topic,
			rec.CorrelationID,
			rec.ProducerService,
			rec.ProducedAt,
			rec.ConsumedAt,
			float64(rec.Duration.Microseconds())/1000,
			rec.Outcome,
			rec.Error,
			rec.Payload,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for %s: %w", rec.Topic, err)
		}
	}
	return tx.Commit()
}

// TopicCount es el número de eventos de un topic por resultado.
type TopicCount struct {
	Topic   string `json:"topic"`
	Outcome string `json:"outcome"`
	Count   uint64 `json:"count"`
}

// CountsSince agrega los eventos consumidos desde un instante.
func (r *EventLogRepo) CountsSince(ctx context.Context, since time.Time) ([]TopicCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT topic, outcome, count() AS total
		FROM consumed_events
		WHERE consumed_at >= ?
		GROUP BY topic, outcome
		ORDER BY topic, outcome
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopicCount
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Outcome, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
