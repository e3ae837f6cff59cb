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

package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-rag/pkg/auth"
	apperrors "tenant-rag/pkg/errors"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore tenants + api_keys 表；pool 由 Bootstrap 持有
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// EnsureSchema 创建 tenants、api_keys 表
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  plan TEXT NOT NULL DEFAULT 'free',
  payment_status TEXT NOT NULL DEFAULT 'active',
  trial_ends_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
  key_hash TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  is_active BOOLEAN NOT NULL DEFAULT true,
  last_used_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS api_keys_tenant_idx ON api_keys (tenant_id)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("初始化租户表失败: %w", err)
		}
	}
	return nil
}

const tenantColumns = `t.id, t.name, t.plan, t.payment_status, t.trial_ends_at, t.created_at`

func scanTenant(row pgx.Row) (*auth.Tenant, error) {
	var t auth.Tenant
	var plan, status string
	if err := row.Scan(&t.ID, &t.Name, &plan, &status, &t.TrialEndsAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Plan = auth.ParsePlan(plan)
	t.PaymentStatus = auth.PaymentStatus(status)
	return &t, nil
}

// Get 实现 Store
func (s *pgStore) Get(ctx context.Context, id string) (*auth.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants t WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("tenant.Get", "tenant "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询租户失败: %w", err)
	}
	return t, nil
}

// GetByAPIKey 实现 Store，同时更新 last_used_at
func (s *pgStore) GetByAPIKey(ctx context.Context, apiKey string) (*auth.Tenant, error) {
	const q = `WITH k AS (
  UPDATE api_keys SET last_used_at = now()
  WHERE key_hash = $1 AND is_active
  RETURNING tenant_id
)
SELECT ` + tenantColumns + ` FROM tenants t JOIN k ON k.tenant_id = t.id`
	t, err := scanTenant(s.pool.QueryRow(ctx, q, HashAPIKey(apiKey)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("tenant.GetByAPIKey", "invalid api key")
	}
	if err != nil {
		return nil, fmt.Errorf("查询 API Key 失败: %w", err)
	}
	return t, nil
}

// Upsert 实现 Store
func (s *pgStore) Upsert(ctx context.Context, t *auth.Tenant, apiKey string) error {
	if t == nil || t.ID == "" {
		return apperrors.Validation("tenant.Upsert", "tenant id is required")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO tenants (id, name, plan, payment_status, trial_ends_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, plan = EXCLUDED.plan,
  payment_status = EXCLUDED.payment_status, trial_ends_at = EXCLUDED.trial_ends_at`,
			t.ID, t.Name, string(t.Plan), string(t.PaymentStatus), t.TrialEndsAt); err != nil {
			return fmt.Errorf("写入租户失败: %w", err)
		}
		if apiKey == "" {
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO api_keys (key_hash, tenant_id) VALUES ($1, $2)
ON CONFLICT (key_hash) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, is_active = true`,
			HashAPIKey(apiKey), t.ID); err != nil {
			return fmt.Errorf("写入 API Key 失败: %w", err)
		}
		return nil
	})
}

func (s *pgStore) Close() error { return nil }
