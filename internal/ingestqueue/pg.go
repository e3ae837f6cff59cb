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

package ingestqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queuePg PostgreSQL 实现 Queue，使用 ingest_jobs 表
type queuePg struct {
	pool *pgxpool.Pool
}

// NewQueuePg 创建基于 PostgreSQL 的入库队列；pool 与元数据存储共用
func NewQueuePg(pool *pgxpool.Pool) Queue {
	return &queuePg{pool: pool}
}

// EnsureSchema 创建 ingest_jobs 表
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, q := range []string{
		`CREATE TABLE IF NOT EXISTS ingest_jobs (
  id UUID PRIMARY KEY,
  document_id TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'queued',
  attempt INT NOT NULL DEFAULT 1,
  max_attempts INT NOT NULL DEFAULT 3,
  available_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_error TEXT NOT NULL DEFAULT '',
  worker_id TEXT NOT NULL DEFAULT '',
  claimed_at TIMESTAMPTZ,
  completed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS ingest_jobs_ready_idx ON ingest_jobs (available_at, created_at) WHERE status = 'queued'`,
	} {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("初始化 ingest_jobs 表失败: %w", err)
		}
	}
	return nil
}

const jobColumns = `id, document_id, tenant_id, status, attempt, max_attempts, available_at, last_error, worker_id, created_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var id uuid.UUID
	var status string
	if err := row.Scan(&id, &j.DocumentID, &j.TenantID, &status, &j.Attempt, &j.MaxAttempts,
		&j.AvailableAt, &j.LastError, &j.WorkerID, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.ID = id.String()
	j.Status = JobStatus(status)
	return &j, nil
}

// Enqueue 实现 Queue
func (q *queuePg) Enqueue(ctx context.Context, job *Job) (string, error) {
	if job == nil || job.DocumentID == "" {
		return "", errors.New("job document_id 不能为空")
	}
	cp := *job
	normalize(&cp, time.Now())
	id := uuid.New().String()
	_, err := q.pool.Exec(ctx,
		`INSERT INTO ingest_jobs (id, document_id, tenant_id, status, attempt, max_attempts, available_at)
VALUES ($1, $2, $3, 'queued', $4, $5, $6)`,
		id, cp.DocumentID, cp.TenantID, cp.Attempt, cp.MaxAttempts, cp.AvailableAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Claim 实现 Queue；SKIP LOCKED 保证多个 worker 不会认领同一任务
func (q *queuePg) Claim(ctx context.Context, workerID string) (*Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx,
		`WITH sel AS (
  SELECT id FROM ingest_jobs
  WHERE status = 'queued' AND available_at <= now()
  ORDER BY available_at, created_at LIMIT 1 FOR UPDATE SKIP LOCKED
)
UPDATE ingest_jobs SET status = 'claimed', worker_id = $1, claimed_at = now()
FROM sel WHERE ingest_jobs.id = sel.id
RETURNING ingest_jobs.id, ingest_jobs.document_id, ingest_jobs.tenant_id, ingest_jobs.status,
  ingest_jobs.attempt, ingest_jobs.max_attempts, ingest_jobs.available_at, ingest_jobs.last_error,
  ingest_jobs.worker_id, ingest_jobs.created_at`,
		workerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// Complete 实现 Queue
func (q *queuePg) Complete(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE ingest_jobs SET status = 'completed', last_error = '', completed_at = now() WHERE id = $1`,
		jobID,
	)
	return err
}

// Retry 实现 Queue
func (q *queuePg) Retry(ctx context.Context, jobID string, attempt int, availableAt time.Time, errMsg string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE ingest_jobs SET status = 'queued', attempt = $2, available_at = $3, last_error = $4, worker_id = '', claimed_at = NULL
WHERE id = $1`,
		jobID, attempt, availableAt, errMsg,
	)
	return err
}

// Fail 实现 Queue
func (q *queuePg) Fail(ctx context.Context, jobID string, errMsg string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE ingest_jobs SET status = 'failed', last_error = $2, completed_at = now() WHERE id = $1`,
		jobID, errMsg,
	)
	return err
}

// ReclaimStale 实现 Queue；worker 崩溃或状态回写失败后遗留的 claimed 任务由此恢复
func (q *queuePg) ReclaimStale(ctx context.Context, claimedBefore time.Time, errMsg string) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`UPDATE ingest_jobs SET status = 'queued', attempt = attempt + 1, available_at = now(), last_error = $2,
  worker_id = '', claimed_at = NULL
WHERE status = 'claimed' AND claimed_at < $1`,
		claimedBefore, errMsg,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Get 实现 Queue
func (q *queuePg) Get(ctx context.Context, jobID string) (*Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, nil
	}
	job, err := scanJob(q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// Close 连接池由 Bootstrap 统一关闭
func (q *queuePg) Close() error {
	return nil
}
