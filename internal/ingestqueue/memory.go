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
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue 单进程队列，按入队顺序认领
type MemoryQueue struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
	now   func() time.Time
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]*Job), now: time.Now}
}

// Enqueue 实现 Queue
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) (string, error) {
	if job == nil || job.DocumentID == "" {
		return "", errors.New("job document_id 不能为空")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *job
	cp.ID = uuid.New().String()
	normalize(&cp, q.now())
	q.jobs[cp.ID] = &cp
	q.order = append(q.order, cp.ID)
	return cp.ID, nil
}

// Claim 实现 Queue
func (q *MemoryQueue) Claim(ctx context.Context, workerID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for _, id := range q.order {
		j := q.jobs[id]
		if j.Status != JobQueued || j.AvailableAt.After(now) {
			continue
		}
		j.Status = JobClaimed
		j.WorkerID = workerID
		j.ClaimedAt = now
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (q *MemoryQueue) update(jobID string, fn func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	fn(j)
	return nil
}

// Complete 实现 Queue
func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	return q.update(jobID, func(j *Job) {
		j.Status = JobCompleted
		j.LastError = ""
	})
}

// Retry 实现 Queue
func (q *MemoryQueue) Retry(ctx context.Context, jobID string, attempt int, availableAt time.Time, errMsg string) error {
	return q.update(jobID, func(j *Job) {
		j.Status = JobQueued
		j.Attempt = attempt
		j.AvailableAt = availableAt
		j.LastError = errMsg
		j.WorkerID = ""
		j.ClaimedAt = time.Time{}
	})
}

// ReclaimStale 实现 Queue
func (q *MemoryQueue) ReclaimStale(ctx context.Context, claimedBefore time.Time, errMsg string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var n int64
	for _, j := range q.jobs {
		if j.Status != JobClaimed || !j.ClaimedAt.Before(claimedBefore) {
			continue
		}
		j.Status = JobQueued
		j.Attempt++
		j.AvailableAt = now
		j.LastError = errMsg
		j.WorkerID = ""
		j.ClaimedAt = time.Time{}
		n++
	}
	return n, nil
}

// Fail 实现 Queue
func (q *MemoryQueue) Fail(ctx context.Context, jobID string, errMsg string) error {
	return q.update(jobID, func(j *Job) {
		j.Status = JobFailed
		j.LastError = errMsg
	})
}

// Get 实现 Queue
func (q *MemoryQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

// Close 实现 Queue
func (q *MemoryQueue) Close() error {
	return nil
}
