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
	"sync"
	"time"
)

// Ledger 原子计数器；窗口切换即隐式清零
type Ledger interface {
	// Increment 原子加 by（可为负）并刷新 TTL，返回新值
	Increment(ctx context.Context, tenantID string, res Resource, window string, by int64, ttl time.Duration) (int64, error)
	// Get 读取当前值，不存在为 0
	Get(ctx context.Context, tenantID string, res Resource, window string) (int64, error)
	// ResetTenant 删除租户全部计数器，返回删除的 key 数
	ResetTenant(ctx context.Context, tenantID string) (int64, error)
}

type counter struct {
	value     int64
	expiresAt time.Time
}

// MemoryLedger 单进程计数器，供开发与测试使用
type MemoryLedger struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemoryLedger 创建内存计数器
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counters: make(map[string]*counter), now: time.Now}
}

func (l *MemoryLedger) live(key string) *counter {
	c, ok := l.counters[key]
	if !ok {
		return nil
	}
	if !c.expiresAt.IsZero() && !l.now().Before(c.expiresAt) {
		delete(l.counters, key)
		return nil
	}
	return c
}

// Increment 实现 Ledger
func (l *MemoryLedger) Increment(ctx context.Context, tenantID string, res Resource, window string, by int64, ttl time.Duration) (int64, error) {
	key := CounterKey(tenantID, res, window)
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.live(key)
	if c == nil {
		c = &counter{}
		l.counters[key] = c
	}
	c.value += by
	if ttl > 0 {
		c.expiresAt = l.now().Add(ttl)
	}
	return c.value, nil
}

// Get 实现 Ledger
func (l *MemoryLedger) Get(ctx context.Context, tenantID string, res Resource, window string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.live(CounterKey(tenantID, res, window)); c != nil {
		return c.value, nil
	}
	return 0, nil
}

// ResetTenant 实现 Ledger
func (l *MemoryLedger) ResetTenant(ctx context.Context, tenantID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for key := range l.counters {
		if ownedBy(key, tenantID) {
			delete(l.counters, key)
			n++
		}
	}
	return n, nil
}
