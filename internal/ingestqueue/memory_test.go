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
	"sync"
	"testing"
	"time"
)

func TestMemoryQueue_ClaimOrderAndOnce(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	id1, err := q.Enqueue(ctx, &Job{DocumentID: "d1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	id2, _ := q.Enqueue(ctx, &Job{DocumentID: "d2", TenantID: "t1"})

	j, err := q.Claim(ctx, "w1")
	if err != nil || j == nil {
		t.Fatalf("Claim: %v %v", j, err)
	}
	if j.ID != id1 || j.Attempt != 1 || j.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("first claim: %+v", j)
	}
	j2, _ := q.Claim(ctx, "w2")
	if j2 == nil || j2.ID != id2 {
		t.Fatalf("second claim should get d2, got %+v", j2)
	}
	if j3, _ := q.Claim(ctx, "w3"); j3 != nil {
		t.Errorf("queue should be empty, got %+v", j3)
	}
}

func TestMemoryQueue_RetryHonorsAvailableAt(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue(ctx, &Job{DocumentID: "d1", TenantID: "t1"})
	j, _ := q.Claim(ctx, "w1")
	if err := q.Retry(ctx, j.ID, 2, now.Add(2*time.Second), "timeout"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if j, _ := q.Claim(ctx, "w1"); j != nil {
		t.Fatal("job must not be claimable before available_at")
	}
	now = now.Add(2 * time.Second)
	j, _ = q.Claim(ctx, "w1")
	if j == nil || j.ID != id || j.Attempt != 2 || j.LastError != "timeout" {
		t.Fatalf("retried job: %+v", j)
	}
	if err := q.Fail(ctx, id, "gave up"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := q.Get(ctx, id)
	if got.Status != JobFailed {
		t.Errorf("status: %s", got.Status)
	}
	if missing, _ := q.Get(ctx, "nope"); missing != nil {
		t.Error("Get missing should return nil")
	}
}

func TestMemoryQueue_ReclaimStale(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue(ctx, &Job{DocumentID: "d1", TenantID: "t1"})
	j, _ := q.Claim(ctx, "w1")
	if j == nil || !j.ClaimedAt.Equal(now) {
		t.Fatalf("claimed job: %+v", j)
	}

	// 租约未过期时不回收
	if n, _ := q.ReclaimStale(ctx, now, "lease expired"); n != 0 {
		t.Fatalf("reclaimed %d fresh jobs", n)
	}
	now = now.Add(10 * time.Minute)
	n, err := q.ReclaimStale(ctx, now.Add(-5*time.Minute), "lease expired")
	if err != nil || n != 1 {
		t.Fatalf("ReclaimStale: n=%d err=%v", n, err)
	}
	j, _ = q.Claim(ctx, "w2")
	if j == nil || j.ID != id || j.Attempt != 2 || j.LastError != "lease expired" || j.WorkerID != "w2" {
		t.Fatalf("reclaimed job: %+v", j)
	}
}

func TestMemoryQueue_ConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	for i := 0; i < 20; i++ {
		_, _ = q.Enqueue(ctx, &Job{DocumentID: "d", TenantID: "t"})
	}
	seen := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, _ := q.Claim(ctx, "w")
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
				_ = q.Complete(ctx, j.ID)
			}
		}()
	}
	wg.Wait()
	if len(seen) != 20 {
		t.Errorf("claimed %d distinct jobs, want 20", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}
