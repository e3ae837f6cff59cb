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

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tenant-rag/internal/analytics"
	"tenant-rag/internal/ingestqueue"
	"tenant-rag/internal/model/embedding"
	"tenant-rag/internal/quota"
	"tenant-rag/internal/storage/cache"
	"tenant-rag/internal/storage/metadata"
	"tenant-rag/internal/storage/object"
	"tenant-rag/internal/storage/vector"
	"tenant-rag/internal/tenant"
	"tenant-rag/pkg/config"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 worker 复用，避免在 cmd 内写业务与 pipeline
type Bootstrap struct {
	Config    *config.Config
	Logger    *log.Logger
	Pool      *pgxpool.Pool
	Documents metadata.Store
	Index     vector.Index
	Queue     ingestqueue.Queue
	Objects   object.Store
	Cache     cache.Store
	Tenants   tenant.Store
	Resolver  *tenant.Resolver
	Quota     *quota.Controller
	Analytics analytics.Sink
	Embedder  embedding.Embedder

	redisClients map[string]redis.UniversalClient
}

// NewBootstrap 根据配置创建 Bootstrap（secrets -> 连接 -> 存储 -> 租户种子 -> 向量化模型）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	b := &Bootstrap{Config: cfg, Logger: logger, redisClients: map[string]redis.UniversalClient{}}
	if err := b.init(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bootstrap) init(ctx context.Context) error {
	cfg := b.Config
	if err := ResolveSecrets(ctx, cfg); err != nil {
		return err
	}

	if cfg.Storage.Postgres.DSN != "" {
		pool, err := newPool(ctx, cfg.Storage.Postgres)
		if err != nil {
			return fmt.Errorf("连接 postgres 失败: %w", err)
		}
		b.Pool = pool
	}

	var err error
	if b.Documents, err = metadata.NewStore(ctx, cfg.Storage.Metadata, b.Pool); err != nil {
		return fmt.Errorf("初始化元数据存储失败: %w", err)
	}
	if b.Index, err = vector.NewIndex(ctx, cfg.Storage.Vector, b.Pool); err != nil {
		return fmt.Errorf("初始化向量存储失败: %w", err)
	}
	if b.Queue, err = ingestqueue.NewQueue(ctx, cfg.Storage.Queue, b.Pool); err != nil {
		return fmt.Errorf("初始化入库队列失败: %w", err)
	}
	if b.Objects, err = object.NewStore(ctx, cfg.Storage.Object); err != nil {
		return fmt.Errorf("初始化对象存储失败: %w", err)
	}
	if b.Analytics, err = analytics.NewSink(ctx, cfg.Storage.Analytics, b.Pool); err != nil {
		return fmt.Errorf("初始化分析日志失败: %w", err)
	}

	var cacheClient redis.UniversalClient
	if cfg.Storage.Cache.Type == "redis" {
		if cacheClient, err = b.redis(ctx, cfg.Storage.Cache.Addr, cfg.Storage.Cache.DB, cfg.Storage.Cache.Password); err != nil {
			return err
		}
	}
	if b.Cache, err = cache.NewCache(cfg.Storage.Cache, cacheClient); err != nil {
		return fmt.Errorf("初始化缓存失败: %w", err)
	}

	var quotaClient redis.UniversalClient
	if cfg.Quota.Type == "redis" {
		if quotaClient, err = b.redis(ctx, cfg.Quota.Addr, cfg.Quota.DB, cfg.Quota.Password); err != nil {
			return err
		}
	}
	ledger, err := quota.NewLedger(cfg.Quota, quotaClient)
	if err != nil {
		return fmt.Errorf("初始化配额计数失败: %w", err)
	}
	b.Quota = quota.NewController(ledger, cfg.Plans)

	if b.Tenants, err = tenant.NewStore(ctx, cfg.Storage.Tenant, b.Pool); err != nil {
		return fmt.Errorf("初始化租户存储失败: %w", err)
	}
	if err := tenant.Seed(ctx, b.Tenants, cfg.Tenants); err != nil {
		return fmt.Errorf("写入租户种子失败: %w", err)
	}
	b.Resolver = tenant.NewResolver(b.Tenants, b.Cache, config.ParseDuration(cfg.Storage.Cache.TTL, time.Minute), b.Logger)

	if b.Embedder, err = embedding.NewFromConfig(cfg.Model, cfg.Storage.Vector.Dimension); err != nil {
		return fmt.Errorf("初始化向量化模型失败: %w", err)
	}
	if d := b.Embedder.Dimension(); d != cfg.Storage.Vector.Dimension {
		return fmt.Errorf("向量维度不一致: 模型 %d, storage.vector.dimension %d", d, cfg.Storage.Vector.Dimension)
	}
	b.Logger.Info("bootstrap 完成",
		"metadata", cfg.Storage.Metadata.Type,
		"vector", cfg.Storage.Vector.Type,
		"queue", cfg.Storage.Queue.Type,
		"object", cfg.Storage.Object.Type,
		"quota", cfg.Quota.Type,
		"embedding", b.Embedder.Model(),
	)
	return nil
}

func newPool(ctx context.Context, pc config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(pc.DSN)
	if err != nil {
		return nil, err
	}
	if pc.PoolSize > 0 {
		poolCfg.MaxConns = int32(pc.PoolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// redis 同一地址与 DB 共用一个 client
func (b *Bootstrap) redis(ctx context.Context, addr string, db int, password string) (redis.UniversalClient, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	key := fmt.Sprintf("%s/%d", addr, db)
	if c, ok := b.redisClients[key]; ok {
		return c, nil
	}
	c := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		DB:       db,
		Password: password,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	b.redisClients[key] = c
	return c, nil
}

// ResolveSecrets 将 "secret:" 引用替换为 secrets 存储中的值
func ResolveSecrets(ctx context.Context, cfg *config.Config) error {
	store, err := secrets.NewStore(secrets.Config{
		Provider:   cfg.Secrets.Provider,
		Address:    cfg.Secrets.Address,
		Token:      cfg.Secrets.Token,
		PathPrefix: cfg.Secrets.PathPrefix,
	})
	if err != nil {
		return fmt.Errorf("初始化 secrets 失败: %w", err)
	}
	fields := []*string{
		&cfg.Storage.Postgres.DSN,
		&cfg.Storage.Object.AccessKey,
		&cfg.Storage.Object.SecretKey,
		&cfg.Storage.Cache.Password,
		&cfg.Quota.Password,
		&cfg.API.Middleware.JWTKey,
		&cfg.API.Middleware.AdminPassword,
	}
	for _, f := range fields {
		v, err := secrets.Resolve(ctx, store, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	for _, providers := range []map[string]config.ProviderConfig{cfg.Model.LLM.Providers, cfg.Model.Embedding.Providers} {
		for name, pc := range providers {
			v, err := secrets.Resolve(ctx, store, pc.APIKey)
			if err != nil {
				return err
			}
			pc.APIKey = v
			providers[name] = pc
		}
	}
	for i := range cfg.Tenants {
		v, err := secrets.Resolve(ctx, store, cfg.Tenants[i].APIKey)
		if err != nil {
			return err
		}
		cfg.Tenants[i].APIKey = v
	}
	return nil
}

// Close 按依赖逆序释放资源
func (b *Bootstrap) Close() {
	closers := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"analytics", b.Analytics},
		{"tenants", b.Tenants},
		{"cache", b.Cache},
		{"objects", b.Objects},
		{"queue", b.Queue},
		{"index", b.Index},
		{"documents", b.Documents},
	}
	for _, it := range closers {
		if it.c == nil {
			continue
		}
		if err := it.c.Close(); err != nil {
			b.Logger.Warn("关闭资源失败", "resource", it.name, "error", err)
		}
	}
	for key, c := range b.redisClients {
		if err := c.Close(); err != nil {
			b.Logger.Warn("关闭 redis 失败", "addr", key, "error", err)
		}
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
	_ = b.Logger.Close()
}
