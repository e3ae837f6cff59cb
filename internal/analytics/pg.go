// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 基于 analytics_logs 表；pool 由 Bootstrap 持有
func NewPgStore(pool *pgxpool.Pool) Sink {
	return &pgStore{pool: pool}
}

// EnsureSchema 创建 analytics_logs 表
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analytics_logs (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id TEXT NOT NULL,
  endpoint TEXT NOT NULL,
  tokens_in INT NOT NULL DEFAULT 0,
  tokens_out INT NOT NULL DEFAULT 0,
  latency_ms BIGINT NOT NULL DEFAULT 0,
  confidence DOUBLE PRECISION,
  outcome TEXT NOT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS analytics_logs_tenant_idx ON analytics_logs (tenant_id, created_at DESC)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("初始化 analytics_logs 表失败: %w", err)
		}
	}
	return nil
}

// Log 实现 Sink
func (s *pgStore) Log(ctx context.Context, e *Entry) error {
	if e == nil || e.TenantID == "" {
		return fmt.Errorf("analytics entry 缺少 tenant_id")
	}
	const q = `INSERT INTO analytics_logs (tenant_id, endpoint, tokens_in, tokens_out, latency_ms, confidence, outcome, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))`
	var createdAt any
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	if _, err := s.pool.Exec(ctx, q, e.TenantID, e.Endpoint, e.TokensIn, e.TokensOut, e.LatencyMs,
		e.Confidence, string(e.Outcome), e.ErrorMessage, createdAt); err != nil {
		return fmt.Errorf("写入 analytics 记录失败: %w", err)
	}
	return nil
}

// Usage 实现 Sink
func (s *pgStore) Usage(ctx context.Context, tenantID string, days int) (*UsageStats, error) {
	days = normalizeDays(days)
	stats := &UsageStats{TenantID: tenantID, Days: days, DailyUsage: []DailyUsage{}}

	const totals = `SELECT
  COUNT(*),
  COALESCE(SUM(tokens_in), 0),
  COALESCE(SUM(tokens_out), 0),
  COALESCE(AVG(latency_ms), 0)::float8,
  COALESCE(AVG(confidence), 0)::float8,
  COALESCE(COUNT(*) FILTER (WHERE outcome = 'success') * 100.0 / NULLIF(COUNT(*), 0), 0)::float8
FROM analytics_logs
WHERE tenant_id = $1 AND created_at >= now() - make_interval(days => $2)`
	if err := s.pool.QueryRow(ctx, totals, tenantID, days).Scan(
		&stats.TotalMessages, &stats.TotalTokensIn, &stats.TotalTokensOut,
		&stats.AvgLatencyMs, &stats.AvgConfidence, &stats.SuccessRate); err != nil {
		return nil, fmt.Errorf("查询用量汇总失败: %w", err)
	}

	const dailyQ = `SELECT to_char((created_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day,
  COUNT(*), COALESCE(SUM(tokens_in + tokens_out), 0)
FROM analytics_logs
WHERE tenant_id = $1 AND created_at >= now() - make_interval(days => $2)
GROUP BY day
ORDER BY day DESC`
	rows, err := s.pool.Query(ctx, dailyQ, tenantID, days)
	if err != nil {
		return nil, fmt.Errorf("查询日用量失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Date, &d.Messages, &d.Tokens); err != nil {
			return nil, err
		}
		stats.DailyUsage = append(stats.DailyUsage, d)
	}
	return stats, rows.Err()
}

func (s *pgStore) Close() error { return nil }
