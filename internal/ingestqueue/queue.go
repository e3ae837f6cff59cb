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
	"time"
)

// JobStatus 队列中的任务状态
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobClaimed   JobStatus = "claimed"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// DefaultMaxAttempts 含首次尝试
const DefaultMaxAttempts = 3

// Job 一次上传对应一个入库任务
type Job struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	TenantID    string    `json:"tenant_id"`
	Status      JobStatus `json:"status"`
	Attempt     int       `json:"attempt"` // 从 1 开始
	MaxAttempts int       `json:"max_attempts"`
	AvailableAt time.Time `json:"available_at"`
	LastError   string    `json:"last_error,omitempty"`
	WorkerID    string    `json:"worker_id,omitempty"`
	ClaimedAt   time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Queue 持久化入库队列：API 入队，Worker 认领、重试或结束
type Queue interface {
	// Enqueue 入队，返回 job id；Attempt 为 0 时置为 1
	Enqueue(ctx context.Context, job *Job) (string, error)
	// Claim 原子认领一条 available_at 已到的任务；无任务时返回 nil, nil
	Claim(ctx context.Context, workerID string) (*Job, error)
	// Complete 标记完成
	Complete(ctx context.Context, jobID string) error
	// Retry 以新的尝试序号重新入队，availableAt 之前不会被认领
	Retry(ctx context.Context, jobID string, attempt int, availableAt time.Time, errMsg string) error
	// Fail 标记最终失败
	Fail(ctx context.Context, jobID string, errMsg string) error
	// ReclaimStale 把 claimedBefore 之前认领且未结束的任务按下一次尝试重新入队，返回数量
	ReclaimStale(ctx context.Context, claimedBefore time.Time, errMsg string) (int64, error)
	// Get 查询任务；不存在返回 nil, nil
	Get(ctx context.Context, jobID string) (*Job, error)
	// Close 释放资源
	Close() error
}

func normalize(job *Job, now time.Time) {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	job.Status = JobQueued
	job.CreatedAt = now
}
