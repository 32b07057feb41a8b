package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
)

const orderColumns = `id, user_id, items, total_amount, status, payment_id, cancellation_reason, paid_at, cancelled_at, created_at, updated_at`

// OrderRepoPostgres implementa OrderRepository sobre PostgreSQL.
type OrderRepoPostgres struct {
	db *sql.DB
}

var _ orderDomain.OrderRepository = (*OrderRepoPostgres)(nil)

func NewOrderRepoPostgres(db *sql.DB) *OrderRepoPostgres {
	return &OrderRepoPostgres{db: db}
}

// ------------------ Escritura ------------------

func (r *OrderRepoPostgres) Create(ctx context.Context, o *orderDomain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserID, items, o.TotalAmount, string(o.Status), o.PaymentID, o.CancellationReason,
		nullTime(o.PaidAt), nullTime(o.CancelledAt), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Transition es un compare-and-set sobre status: solo escribe si la fila sigue en from.
func (r *OrderRepoPostgres) Transition(ctx context.Context, o *orderDomain.Order, from orderDomain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status=$1, payment_id=$2, cancellation_reason=$3, paid_at=$4, cancelled_at=$5, updated_at=$6
		 WHERE id=$7 AND status=$8`,
		string(o.Status), o.PaymentID, o.CancellationReason, nullTime(o.PaidAt), nullTime(o.CancelledAt), o.UpdatedAt,
		o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return orderDomain.ErrOrderNotFound
	}
	return orderDomain.ErrStaleStatus
}

// CancelPendingBefore cancela en una sola sentencia y devuelve las filas tocadas.
func (r *OrderRepoPostgres) CancelPendingBefore(ctx context.Context, cutoff, at time.Time, reason string) ([]*orderDomain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE orders
		 SET status=$1, cancelled_at=$2, cancellation_reason=$3, updated_at=$2
		 WHERE status=$4 AND created_at < $5
		 RETURNING `+orderColumns,
		string(orderDomain.StatusCancelled), at, reason, string(orderDomain.StatusPending), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ------------------ Lectura ------------------

func (r *OrderRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*orderDomain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	return o, nil
}

func (r *OrderRepoPostgres) ListByUser(ctx context.Context, userID string) ([]*orderDomain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ------------------ Helpers ------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*orderDomain.Order, error) {
	var (
		o           orderDomain.Order
		status      string
		items       []byte
		paidAt      sql.NullTime
		cancelledAt sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.UserID, &items, &o.TotalAmount, &status, &o.PaymentID, &o.CancellationReason,
		&paidAt, &cancelledAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("invalid items JSON in order %s: %w", o.ID, err)
	}
	o.Status = orderDomain.OrderStatus(status)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		o.PaidAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		o.CancelledAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*orderDomain.Order, error) {
	var orders []*orderDomain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ------------------ Inicialización del Esquema ------------------

// InitPostgresOrderSchema crea la tabla orders y sus índices si no existen.
func InitPostgresOrderSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
    CREATE TABLE IF NOT EXISTS orders (
        id UUID PRIMARY KEY,
        user_id TEXT NOT NULL,
        items JSONB NOT NULL,
        total_amount DOUBLE PRECISION NOT NULL,
        status TEXT NOT NULL,
        payment_id TEXT NOT NULL DEFAULT '',
        cancellation_reason TEXT NOT NULL DEFAULT '',
        paid_at TIMESTAMP WITH TIME ZONE,
        cancelled_at TIMESTAMP WITH TIME ZONE,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL,
        updated_at TIMESTAMP WITH TIME ZONE NOT NULL
    )`)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create orders index: %w", err)
		}
	}
	return nil
}
