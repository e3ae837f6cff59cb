package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-rag/pkg/config"
)

// NewIndex 根据配置创建向量索引；postgres 需要共享连接池
func NewIndex(ctx context.Context, cfg config.VectorConfig, pool *pgxpool.Pool) (Index, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(cfg.Dimension), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("向量存储类型为 postgres 但未配置 storage.postgres.dsn")
		}
		s := NewPgStore(pool, cfg.Dimension)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("不支持的向量存储类型: %s", cfg.Type)
	}
}
