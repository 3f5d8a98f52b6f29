package keypool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestNewCredentialsSkipsBlankAndHidesKey(t *testing.T) {
	creds := NewCredentials([]string{"sk-one", " ", "sk-two"})
	require.Len(t, creds, 2)
	require.NotContains(t, creds[0].ID, "sk-one")
	require.NotEqual(t, creds[0].ID, creds[1].ID)
	require.Equal(t, creds[0].ID, NewCredentials([]string{"sk-one"})[0].ID)
}

func TestMemoryPoolRequiresCredentials(t *testing.T) {
	_, err := NewMemoryPool(clock.Fake(epoch), nil)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestMemoryPoolCooldown(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	pool, err := NewMemoryPool(c, NewCredentials([]string{"a", "b"}))
	require.NoError(t, err)

	first, ok, err := pool.Acquire(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, pool.ReportRateLimit(ctx, first, 30*time.Second))
	second, ok, err := pool.Acquire(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, first.ID, second.ID)

	all, err := pool.AllOnCooldown(ctx)
	require.NoError(t, err)
	require.False(t, all)

	require.NoError(t, pool.ReportRateLimit(ctx, second, 10*time.Second))
	all, err = pool.AllOnCooldown(ctx)
	require.NoError(t, err)
	require.True(t, all)
	_, ok, err = pool.Acquire(ctx, "agent-2")
	require.NoError(t, err)
	require.False(t, ok)

	c.Advance(10 * time.Second)
	got, ok, err := pool.Acquire(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second.ID, got.ID)

	c.Advance(20 * time.Second)
	got, ok, err = pool.Acquire(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, got.ID)
}

func TestMemoryPoolKeepsLongerCooldown(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	creds := NewCredentials([]string{"a"})
	pool, err := NewMemoryPool(c, creds)
	require.NoError(t, err)

	require.NoError(t, pool.ReportRateLimit(ctx, creds[0], time.Minute))
	require.NoError(t, pool.ReportRateLimit(ctx, creds[0], time.Second))
	c.Advance(30 * time.Second)
	all, err := pool.AllOnCooldown(ctx)
	require.NoError(t, err)
	require.True(t, all)
}
