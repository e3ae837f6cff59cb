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
	"os"
	"sync"
	"time"

	"tenant-rag/internal/ingestqueue"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/metrics"
)

// HandleFunc 处理一次已认领的入库任务
type HandleFunc func(ctx context.Context, job *ingestqueue.Job) error

// JobPool 从队列认领入库任务并发执行；先占并发槽位再 Claim，执行后释放槽位
type JobPool struct {
	workerID     string
	queue        ingestqueue.Queue
	handle       HandleFunc
	pollInterval time.Duration
	jobTimeout   time.Duration
	leaseTimeout time.Duration
	lastReclaim  time.Time
	limiter      chan struct{} // 信号量，限制同时执行的任务数
	logger       *log.Logger
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewJobPool 创建任务池；concurrency<=0 时为 1，jobTimeout<=0 时不设单次超时
func NewJobPool(workerID string, queue ingestqueue.Queue, handle HandleFunc, concurrency int, pollInterval, jobTimeout time.Duration, logger *log.Logger) *JobPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &JobPool{
		workerID:     workerID,
		queue:        queue,
		handle:       handle,
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
		limiter:      make(chan struct{}, concurrency),
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// WithLease 认领超过 d 仍未结束的任务在空闲轮询时重新入队；d<=0 关闭回收
func (p *JobPool) WithLease(d time.Duration) *JobPool {
	p.leaseTimeout = d
	return p
}

// Start 启动 Claim 循环，立即返回
func (p *JobPool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case p.limiter <- struct{}{}:
			}
			job, err := p.queue.Claim(ctx, p.workerID)
			if err != nil || job == nil {
				<-p.limiter
				if err != nil && ctx.Err() == nil {
					p.logger.Error("认领入库任务失败", "worker_id", p.workerID, "error", err)
				}
				if err == nil {
					p.reclaim(ctx)
				}
				if !p.sleep(ctx) {
					return
				}
				continue
			}
			p.wg.Add(1)
			go func(j *ingestqueue.Job) {
				defer p.wg.Done()
				defer func() { <-p.limiter }()
				p.execute(ctx, j)
			}(job)
		}
	}()
}

// reclaim 仅由 Claim 循环调用，间隔不小于租约的十分之一
func (p *JobPool) reclaim(ctx context.Context) {
	if p.leaseTimeout <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(p.lastReclaim) < p.leaseTimeout/10 {
		return
	}
	p.lastReclaim = now
	n, err := p.queue.ReclaimStale(ctx, now.Add(-p.leaseTimeout), "claim lease expired")
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("回收过期认领失败", "worker_id", p.workerID, "error", err)
		}
		return
	}
	if n > 0 {
		p.logger.Warn("过期认领已重新入队", "worker_id", p.workerID, "count", n)
	}
}

func (p *JobPool) sleep(ctx context.Context) bool {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *JobPool) execute(ctx context.Context, job *ingestqueue.Job) {
	metrics.WorkerBusy.WithLabelValues(p.workerID).Inc()
	defer metrics.WorkerBusy.WithLabelValues(p.workerID).Dec()

	runCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}
	p.logger.Debug("开始执行入库任务", "job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempt)
	if err := p.handle(runCtx, job); err != nil {
		p.logger.Error("入库任务处理异常", "job_id", job.ID, "document_id", job.DocumentID, "error", err)
	}
}

// Stop 停止 Claim 循环并等待执行中的任务结束
func (p *JobPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// DefaultWorkerID 返回默认 Worker 标识（env 或 hostname）
func DefaultWorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	host, _ := os.Hostname()
	if host != "" {
		return host
	}
	return "worker-unknown"
}
