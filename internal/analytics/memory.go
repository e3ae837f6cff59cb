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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 进程内实现，用于开发与测试
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Log 实现 Sink
func (s *MemoryStore) Log(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.TenantID == "" {
		return fmt.Errorf("analytics entry 缺少 tenant_id")
	}
	cp := *entry
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.CreatedAt = cp.CreatedAt.UTC()
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

// Usage 实现 Sink
func (s *MemoryStore) Usage(ctx context.Context, tenantID string, days int) (*UsageStats, error) {
	days = normalizeDays(days)
	since := s.now().UTC().AddDate(0, 0, -days)
	stats := &UsageStats{TenantID: tenantID, Days: days, DailyUsage: []DailyUsage{}}

	var latency float64
	var confSum float64
	var confN, success int64
	daily := make(map[string]*DailyUsage)

	s.mu.RLock()
	for _, e := range s.entries {
		if e.TenantID != tenantID || e.CreatedAt.Before(since) {
			continue
		}
		stats.TotalMessages++
		stats.TotalTokensIn += int64(e.TokensIn)
		stats.TotalTokensOut += int64(e.TokensOut)
		latency += float64(e.LatencyMs)
		if e.Confidence != nil {
			confSum += *e.Confidence
			confN++
		}
		if e.Outcome == OutcomeSuccess {
			success++
		}
		day := e.CreatedAt.Format("2006-01-02")
		d, ok := daily[day]
		if !ok {
			d = &DailyUsage{Date: day}
			daily[day] = d
		}
		d.Messages++
		d.Tokens += int64(e.TokensIn + e.TokensOut)
	}
	s.mu.RUnlock()

	if stats.TotalMessages > 0 {
		stats.AvgLatencyMs = latency / float64(stats.TotalMessages)
		stats.SuccessRate = float64(success) * 100 / float64(stats.TotalMessages)
	}
	if confN > 0 {
		stats.AvgConfidence = confSum / float64(confN)
	}
	for _, d := range daily {
		stats.DailyUsage = append(stats.DailyUsage, *d)
	}
	sort.Slice(stats.DailyUsage, func(i, j int) bool {
		return stats.DailyUsage[i].Date > stats.DailyUsage[j].Date
	})
	return stats, nil
}

func (s *MemoryStore) Close() error { return nil }
