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

	"tenant-rag/pkg/config"
)

// NewSink 根据配置创建分析存储
func NewSink(ctx context.Context, cfg config.BackendConfig, pool *pgxpool.Pool) (Sink, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("analytics 存储类型为 postgres 但未配置 storage.postgres.dsn")
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return NewPgStore(pool), nil
	default:
		return nil, fmt.Errorf("不支持的 analytics 存储类型: %s", cfg.Type)
	}
}
