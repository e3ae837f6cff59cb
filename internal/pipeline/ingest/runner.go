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
	"errors"
	"time"

	"tenant-rag/internal/ingestqueue"
	"tenant-rag/internal/storage/metadata"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/metrics"
)

// DefaultBackoffBase 首次重试等待时间
const DefaultBackoffBase = 2 * time.Second

// Backoff 第 attempt 次尝试失败后的等待时间：base * 2^(attempt-1)
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Runner 执行已认领的任务，并根据结果完成、重试或置为失败
type Runner struct {
	queue       ingestqueue.Queue
	docs        metadata.Store
	processor   *Processor
	maxAttempts int
	backoffBase time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// NewRunner 创建 Runner
func NewRunner(queue ingestqueue.Queue, docs metadata.Store, processor *Processor, maxAttempts int, backoffBase time.Duration, logger *log.Logger) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = ingestqueue.DefaultMaxAttempts
	}
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{
		queue:       queue,
		docs:        docs,
		processor:   processor,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
		now:         time.Now,
	}
}

// bookkeepingTimeout 状态回写使用独立超时，不受单次尝试的超时或取消影响
const bookkeepingTimeout = 30 * time.Second

// Handle 处理一条任务。返回的 error 只表示队列或元数据更新失败
func (r *Runner) Handle(ctx context.Context, job *ingestqueue.Job) error {
	start := r.now()
	logger := r.logger.With("job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempt)

	var err error
	if job.Attempt > r.attemptsFor(job) {
		// 认领租约过期后重新入队的任务可能已用尽次数
		err = apperrors.Transient("ingest.Handle", errors.New("attempts exhausted: "+job.LastError))
	} else {
		err = r.processor.Process(ctx, job)
	}
	elapsed := r.now().Sub(start).Seconds()

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	switch {
	case err == nil:
		metrics.IngestJobDuration.WithLabelValues("completed").Observe(elapsed)
		metrics.IngestJobTotal.WithLabelValues("completed").Inc()
		logger.Info("ingest job completed")
		return r.queue.Complete(bctx, job.ID)

	case errors.Is(err, ErrSkipped):
		metrics.IngestJobDuration.WithLabelValues("skipped").Observe(elapsed)
		return r.queue.Complete(bctx, job.ID)

	case apperrors.IsRetryable(err) && job.Attempt < r.attemptsFor(job):
		metrics.IngestJobDuration.WithLabelValues("retry").Observe(elapsed)
		metrics.IngestRetryTotal.Inc()
		delay := Backoff(r.backoffBase, job.Attempt)
		logger.Warn("ingest attempt failed, retrying", "error", err, "delay", delay.String())
		return r.queue.Retry(bctx, job.ID, job.Attempt+1, r.now().Add(delay), err.Error())

	default:
		metrics.IngestJobDuration.WithLabelValues("failed").Observe(elapsed)
		metrics.IngestJobTotal.WithLabelValues("failed").Inc()
		logger.Error("ingest job failed", "error", err, "kind", apperrors.KindOf(err).String())
		if markErr := r.docs.MarkFailed(bctx, job.DocumentID, err.Error()); markErr != nil && !apperrors.Is(markErr, apperrors.KindNotFound) {
			return markErr
		}
		return r.queue.Fail(bctx, job.ID, err.Error())
	}
}

func (r *Runner) attemptsFor(job *ingestqueue.Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return r.maxAttempts
}
