package analytics

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestPgStore_LogAndUsage(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, EnsureSchema(ctx, pool))

	tenant := "pg-analytics-" + uuid.NewString()
	defer func() { _, _ = pool.Exec(ctx, `DELETE FROM analytics_logs WHERE tenant_id = $1`, tenant) }()

	s := NewPgStore(pool)
	conf := 0.5
	require.NoError(t, s.Log(ctx, &Entry{TenantID: tenant, Endpoint: "/chat/send", TokensIn: 3, TokensOut: 4, LatencyMs: 10, Confidence: &conf, Outcome: OutcomeSuccess}))
	require.NoError(t, s.Log(ctx, &Entry{TenantID: tenant, Endpoint: "/chat/send", TokensIn: 2, Outcome: OutcomeQuotaExceeded}))

	stats, err := s.Usage(ctx, tenant, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalMessages)
	require.Equal(t, int64(5), stats.TotalTokensIn)
	require.InDelta(t, 50.0, stats.SuccessRate, 1e-9)
	require.Len(t, stats.DailyUsage, 1)
	require.Equal(t, int64(9), stats.DailyUsage[0].Tokens)
}
