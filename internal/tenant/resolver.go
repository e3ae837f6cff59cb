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
	"time"

	"tenant-rag/internal/storage/cache"
	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/log"
)

// DefaultCacheTTL 租户缓存时间
const DefaultCacheTTL = 60 * time.Second

// Resolver 带缓存的租户查询，供 API 鉴权与 Worker 使用
type Resolver struct {
	store  Store
	cache  cache.Store
	ttl    time.Duration
	logger *log.Logger
}

// NewResolver cache 为 nil 时直接查询 store
func NewResolver(store Store, c cache.Store, ttl time.Duration, logger *log.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Resolver{store: store, cache: c, ttl: ttl, logger: logger}
}

// Get 按 id 读取租户
func (r *Resolver) Get(ctx context.Context, id string) (*auth.Tenant, error) {
	return r.cached(ctx, "tenant:id:"+id, func() (*auth.Tenant, error) {
		return r.store.Get(ctx, id)
	})
}

// ResolveAPIKey 按 API Key 读取租户；缓存键使用摘要
func (r *Resolver) ResolveAPIKey(ctx context.Context, apiKey string) (*auth.Tenant, error) {
	return r.cached(ctx, "tenant:key:"+HashAPIKey(apiKey), func() (*auth.Tenant, error) {
		return r.store.GetByAPIKey(ctx, apiKey)
	})
}

// Invalidate 删除租户 id 缓存
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, "tenant:id:"+id)
	}
}

func (r *Resolver) cached(ctx context.Context, key string, load func() (*auth.Tenant, error)) (*auth.Tenant, error) {
	if r.cache != nil {
		var t auth.Tenant
		err := r.cache.Get(ctx, key, &t)
		if err == nil {
			return &t, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("tenant cache read failed", "key", key, "error", err)
		}
	}
	t, err := load()
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, t, r.ttl); err != nil {
			r.logger.Warn("tenant cache write failed", "key", key, "error", err)
		}
	}
	return t, nil
}
