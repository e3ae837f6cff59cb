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

package ingest

import (
	"context"
	"time"

	"tenant-rag/internal/storage/vector"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/metrics"
)

// DefaultSweepInterval 过期切片清理间隔
const DefaultSweepInterval = time.Hour

// Sweeper 定期删除已过期的切片
type Sweeper struct {
	index    vector.Index
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewSweeper(index vector.Index, interval time.Duration, logger *log.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Sweeper{index: index, interval: interval, logger: logger, now: time.Now}
}

// RunOnce 执行一次清理，返回删除的切片数
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.index.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ChunksPurgedTotal.WithLabelValues("expired").Add(float64(n))
		s.logger.Info("expired chunks purged", "count", n)
	}
	return n, nil
}

// Run 启动时清理一次，之后按间隔执行，直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("purge expired chunks failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
