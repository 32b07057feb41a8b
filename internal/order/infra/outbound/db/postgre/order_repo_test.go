package postgres

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
)

// fakeRow copia los valores en el orden de orderColumns.
type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *float64:
			*p = r.values[i].(float64)
		case *sql.NullTime:
			*p = r.values[i].(sql.NullTime)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func TestScanOrder(t *testing.T) {
	id := uuid.New()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	paid := created.Add(time.Hour)

	o, err := scanOrder(fakeRow{values: []interface{}{
		id, "u-1", []byte(`[{"productId":"p-1","name":"Taza","price":10,"quantity":2}]`), 20.0, "Paid", "pay-1", "",
		sql.NullTime{Time: paid, Valid: true}, sql.NullTime{}, created, created,
	}})

	require.NoError(t, err)
	assert.Equal(t, id, o.ID)
	assert.Equal(t, orderDomain.StatusPaid, o.Status)
	assert.Equal(t, []orderDomain.OrderItem{{ProductID: "p-1", Name: "Taza", Price: 10, Quantity: 2}}, o.Items)
	require.NotNil(t, o.PaidAt)
	assert.True(t, paid.Equal(*o.PaidAt))
	assert.Equal(t, time.UTC, o.CreatedAt.Location())
	assert.Nil(t, o.CancelledAt)
}

func TestScanOrder_InvalidItems(t *testing.T) {
	_, err := scanOrder(fakeRow{values: []interface{}{
		uuid.New(), "u-1", []byte(`{not json`), 0.0, "Pending", "", "",
		sql.NullTime{}, sql.NullTime{}, time.Now(), time.Now(),
	}})

	assert.Error(t, err)
}

func TestScanOrder_NoRows(t *testing.T) {
	_, err := scanOrder(fakeRow{err: sql.ErrNoRows})

	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestNullTime(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)

	now := time.Now()
	nt := nullTime(&now)
	assert.True(t, nt.Valid)
	assert.Equal(t, now, nt.Time)
}
