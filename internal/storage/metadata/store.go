package metadata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-rag/pkg/config"
)

// NewStore 根据配置创建元数据存储
func NewStore(ctx context.Context, cfg config.BackendConfig, pool *pgxpool.Pool) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("元数据存储类型为 postgres 但未配置 storage.postgres.dsn")
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return NewPgStore(pool), nil
	default:
		return nil, fmt.Errorf("不支持的元数据存储类型: %s", cfg.Type)
	}
}
