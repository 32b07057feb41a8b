package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInbox_ExpiredClaimsAreEvicted(t *testing.T) {
	// Arrange
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	inbox := NewMemoryInbox(time.Minute)
	inbox.now = func() time.Time { return now }

	for n := 0; n < 1000; n++ {
		claimed, err := inbox.Claim(ctx, "cart-service", fmt.Sprintf("product.deleted|corr-%d", n))
		require.NoError(t, err)
		require.True(t, claimed)
	}
	require.Len(t, inbox.seen, 1000)

	// Act
	now = now.Add(2 * time.Minute)
	claimed, err := inbox.Claim(ctx, "cart-service", "product.deleted|corr-new")

	// Assert
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Len(t, inbox.seen, 1, "solo queda la reserva recién hecha")
}

func TestMemoryInbox_DuplicateWithinTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	inbox := NewMemoryInbox(time.Minute)
	inbox.now = func() time.Time { return now }

	first, _ := inbox.Claim(ctx, "order-service", "payment.success|corr-1")
	now = now.Add(30 * time.Second)
	second, _ := inbox.Claim(ctx, "order-service", "payment.success|corr-1")
	now = now.Add(time.Minute)
	third, _ := inbox.Claim(ctx, "order-service", "payment.success|corr-1")

	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, third, "tras el ttl la clave vuelve a estar libre")
}
