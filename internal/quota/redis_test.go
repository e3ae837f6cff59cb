package quota

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLedger(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLedger(client)
	tenant := "redis-quota-test"
	_, _ = l.ResetTenant(ctx, tenant)

	n, err := l.Increment(ctx, tenant, ResourceMessages, "2026-05", 1, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = l.Increment(ctx, tenant, ResourceTokens, "2026-05-10", 40, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(40), n)

	ttl, err := client.TTL(ctx, CounterKey(tenant, ResourceMessages, "2026-05")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	deleted, err := l.ResetTenant(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
	n, err = l.Get(ctx, tenant, ResourceMessages, "2026-05")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRedisLedger_ResetTenantIgnoresLookalikes(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLedger(client)
	tenants := []string{"rq*", "rq-other", "rq*:sub"}
	for _, tenant := range tenants {
		_, err := l.Increment(ctx, tenant, ResourceMessages, "2026-05-10", 1, time.Minute)
		require.NoError(t, err)
	}
	defer func() {
		for _, tenant := range tenants {
			client.Del(ctx, CounterKey(tenant, ResourceMessages, "2026-05-10"))
		}
	}()

	deleted, err := l.ResetTenant(ctx, "rq*")
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	for _, tenant := range tenants[1:] {
		n, err := l.Get(ctx, tenant, ResourceMessages, "2026-05-10")
		require.NoError(t, err)
		require.Equal(t, int64(1), n, tenant)
	}
}
