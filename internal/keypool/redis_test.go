package keypool

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisPoolCooldown(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	creds := NewCredentials([]string{"redis-test-" + time.Now().Format(time.RFC3339Nano)})
	pool, err := NewRedisPool(client, creds)
	require.NoError(t, err)
	t.Cleanup(func() { client.Del(ctx, cooldownKey(creds[0].ID)) })

	_, ok, err := pool.Acquire(ctx, "agent")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, pool.ReportRateLimit(ctx, creds[0], time.Minute))
	all, err := pool.AllOnCooldown(ctx)
	require.NoError(t, err)
	require.True(t, all)

	_, ok, err = pool.Acquire(ctx, "agent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisPoolKeepsLongerCooldown(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	creds := NewCredentials([]string{"redis-longer-" + time.Now().Format(time.RFC3339Nano)})
	pool, err := NewRedisPool(client, creds)
	require.NoError(t, err)
	key := cooldownKey(creds[0].ID)
	t.Cleanup(func() { client.Del(ctx, key) })

	require.NoError(t, pool.ReportRateLimit(ctx, creds[0], time.Minute))
	require.NoError(t, pool.ReportRateLimit(ctx, creds[0], time.Second))
	ttl, err := client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Second)

	require.NoError(t, pool.ReportRateLimit(ctx, creds[0], 2*time.Minute))
	ttl, err = client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Minute)
}
