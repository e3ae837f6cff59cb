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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
)

// Store 租户与 API Key 存储；API Key 只保存 SHA-256 摘要
type Store interface {
	// Get 按 id 读取租户，不存在返回 NotFound
	Get(ctx context.Context, id string) (*auth.Tenant, error)
	// GetByAPIKey 按明文 key 查找有效 key 所属租户，不存在或已停用返回 NotFound
	GetByAPIKey(ctx context.Context, apiKey string) (*auth.Tenant, error)
	// Upsert 写入租户；apiKey 非空时同时登记为有效 key
	Upsert(ctx context.Context, t *auth.Tenant, apiKey string) error
	Close() error
}

// HashAPIKey 返回 key 的十六进制 SHA-256
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// NewStore 根据配置创建租户存储
func NewStore(ctx context.Context, cfg config.BackendConfig, pool *pgxpool.Pool) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("租户存储类型为 postgres 但未配置 storage.postgres.dsn")
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return NewPgStore(pool), nil
	default:
		return nil, fmt.Errorf("不支持的租户存储类型: %s", cfg.Type)
	}
}

// Seed 写入配置中的租户，已存在时覆盖
func Seed(ctx context.Context, store Store, seeds []config.TenantSeed) error {
	for _, s := range seeds {
		if s.ID == "" {
			return fmt.Errorf("tenant seed 缺少 id")
		}
		t := &auth.Tenant{
			ID:            s.ID,
			Name:          s.Name,
			Plan:          auth.ParsePlan(s.Plan),
			PaymentStatus: auth.PaymentStatus(s.PaymentStatus),
			CreatedAt:     time.Now().UTC(),
		}
		if t.PaymentStatus == "" {
			t.PaymentStatus = auth.PaymentActive
		}
		if s.TrialEndsAt != "" {
			ts, err := time.Parse(time.RFC3339, s.TrialEndsAt)
			if err != nil {
				return fmt.Errorf("tenant %s trial_ends_at: %w", s.ID, err)
			}
			t.TrialEndsAt = &ts
		}
		if err := store.Upsert(ctx, t, s.APIKey); err != nil {
			return fmt.Errorf("seed tenant %s: %w", s.ID, err)
		}
	}
	return nil
}
