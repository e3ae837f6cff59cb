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

package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger 基于 Redis 的计数器；INCRBY 与 EXPIRE 在同一事务中执行
type RedisLedger struct {
	client redis.UniversalClient
}

// NewRedisLedger 使用共享的 redis client
func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client}
}

// Increment 实现 Ledger
func (l *RedisLedger) Increment(ctx context.Context, tenantID string, res Resource, window string, by int64, ttl time.Duration) (int64, error) {
	key := CounterKey(tenantID, res, window)
	pipe := l.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, by)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("quota incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Get 实现 Ledger
func (l *RedisLedger) Get(ctx context.Context, tenantID string, res Resource, window string) (int64, error) {
	key := CounterKey(tenantID, res, window)
	n, err := l.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota get %s: %w", key, err)
	}
	return n, nil
}

// ResetTenant 实现 Ledger；SCAN 遍历避免 KEYS 阻塞
func (l *RedisLedger) ResetTenant(ctx context.Context, tenantID string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	pattern := scanPattern(tenantID)
	for {
		scanned, next, err := l.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("quota scan: %w", err)
		}
		keys := scanned[:0]
		for _, k := range scanned {
			if ownedBy(k, tenantID) {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			n, err := l.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("quota del: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
