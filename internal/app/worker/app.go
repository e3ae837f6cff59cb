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

package worker

import (
	"context"
	"time"

	"tenant-rag/internal/app"
	"tenant-rag/internal/pipeline/ingest"
	"tenant-rag/pkg/config"
)

// App Worker 应用：任务池消费入库队列，Sweeper 定期清理过期切片
type App struct {
	boot    *app.Bootstrap
	pool    *JobPool
	sweeper *ingest.Sweeper
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewApp 创建 Worker 应用
func NewApp(boot *app.Bootstrap) (*App, error) {
	cfg := boot.Config
	processor := ingest.NewProcessor(boot.Documents, boot.Resolver, boot.Objects, boot.Embedder, boot.Index, ingest.ProcessorOptions{
		ChunkTokens:      cfg.Ingest.ChunkTokens,
		EmbedConcurrency: cfg.Ingest.EmbedConcurrency,
		Plans:            cfg.Plans,
	}, boot.Logger)
	runner := ingest.NewRunner(boot.Queue, boot.Documents, processor,
		cfg.Ingest.MaxAttempts,
		config.ParseDuration(cfg.Ingest.BackoffBase, ingest.DefaultBackoffBase),
		boot.Logger)

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = DefaultWorkerID()
	}
	pool := NewJobPool(workerID, boot.Queue, runner.Handle,
		cfg.Worker.Concurrency,
		config.ParseDuration(cfg.Worker.PollInterval, time.Second),
		config.ParseDuration(cfg.Worker.JobTimeout, 5*time.Minute),
		boot.Logger.With("worker_id", workerID)).
		WithLease(config.ParseDuration(cfg.Worker.LeaseTimeout, 10*time.Minute))
	sweeper := ingest.NewSweeper(boot.Index, config.ParseDuration(cfg.Ingest.SweepInterval, ingest.DefaultSweepInterval), boot.Logger)

	return &App{boot: boot, pool: pool, sweeper: sweeper}, nil
}

// Start 启动任务池与过期清理，立即返回
func (a *App) Start() error {
	a.boot.Logger.Info("启动 worker 应用", "concurrency", a.boot.Config.Worker.Concurrency)
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	a.pool.Start(ctx)
	go func() {
		defer close(a.done)
		a.sweeper.Run(ctx)
	}()
	return nil
}

// Shutdown 停止认领并等待执行中的任务，超过 ctx 期限则直接释放资源
func (a *App) Shutdown(ctx context.Context) error {
	a.boot.Logger.Info("关闭 worker 应用")
	stopped := make(chan struct{})
	go func() {
		a.pool.Stop()
		close(stopped)
	}()
	var err error
	select {
	case <-stopped:
	case <-ctx.Done():
		err = ctx.Err()
		a.boot.Logger.Warn("等待入库任务结束超时", "error", err)
	}
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.boot.Close()
	return err
}
