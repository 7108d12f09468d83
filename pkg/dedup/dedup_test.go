package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ClaimOnce(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	first, err := store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, second)

	other, err := store.Claim(ctx, "evt-2")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMemoryStore_ReleaseAllowsReprocessing(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, _ = store.Claim(ctx, "evt-1")
	require.NoError(t, store.Release(ctx, "evt-1"))

	again, err := store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := store.Claim(ctx, "evt-1")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = store.Claim(ctx, "evt-1")
	assert.True(t, ok, "an expired claim can be taken again")
}
