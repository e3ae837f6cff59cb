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
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tenant-rag/internal/app"
	"tenant-rag/internal/ingestqueue"
	"tenant-rag/internal/storage/metadata"
	"tenant-rag/pkg/config"
)

func TestJobPool_RespectsConcurrency(t *testing.T) {
	q := ingestqueue.NewMemoryQueue()
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := q.Enqueue(ctx, &ingestqueue.Job{DocumentID: "d", TenantID: "t"})
		require.NoError(t, err)
	}

	var running, peak, done atomic.Int32
	handle := func(ctx context.Context, j *ingestqueue.Job) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		done.Add(1)
		return q.Complete(ctx, j.ID)
	}
	pool := NewJobPool("w-test", q, handle, 2, 5*time.Millisecond, time.Second, nil)
	pool.Start(ctx)
	require.Eventually(t, func() bool { return done.Load() == 6 }, 2*time.Second, 5*time.Millisecond)
	pool.Stop()
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestJobPool_StopIsIdempotent(t *testing.T) {
	pool := NewJobPool("w", ingestqueue.NewMemoryQueue(), func(context.Context, *ingestqueue.Job) error { return nil }, 1, time.Millisecond, 0, nil)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
}

func TestJobPool_ReclaimsStaleClaim(t *testing.T) {
	q := ingestqueue.NewMemoryQueue()
	ctx := context.Background()
	id, err := q.Enqueue(ctx, &ingestqueue.Job{DocumentID: "d", TenantID: "t"})
	require.NoError(t, err)
	// 认领后 worker 退出，任务停留在 claimed
	orphan, err := q.Claim(ctx, "w-dead")
	require.NoError(t, err)
	require.NotNil(t, orphan)

	var attempt atomic.Int32
	handle := func(ctx context.Context, j *ingestqueue.Job) error {
		attempt.Store(int32(j.Attempt))
		return q.Complete(ctx, j.ID)
	}
	pool := NewJobPool("w-live", q, handle, 1, 5*time.Millisecond, time.Second, nil).WithLease(20 * time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		j, _ := q.Get(ctx, id)
		return j != nil && j.Status == ingestqueue.JobCompleted
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(2), attempt.Load())
}

func TestApp_ProcessesUploadedDocument(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Storage.Vector.Dimension = 32
	cfg.Worker.PollInterval = "10ms"
	cfg.Tenants = []config.TenantSeed{{ID: "acme", Plan: "free", APIKey: "k"}}

	ctx := context.Background()
	boot, err := app.NewBootstrap(ctx, cfg)
	require.NoError(t, err)

	content := strings.Repeat("Refunds are accepted within thirty days of purchase. ", 40)
	doc := &metadata.Document{ID: "doc-1", TenantID: "acme", SourceRef: "acme/doc-1/policy.txt", Filename: "policy.txt", MimeType: "text/plain", SizeBytes: int64(len(content))}
	require.NoError(t, boot.Objects.Put(ctx, doc.SourceRef, strings.NewReader(content), doc.SizeBytes, doc.MimeType))
	require.NoError(t, boot.Documents.Create(ctx, doc))
	_, err = boot.Queue.Enqueue(ctx, &ingestqueue.Job{DocumentID: doc.ID, TenantID: "acme"})
	require.NoError(t, err)

	a, err := NewApp(boot)
	require.NoError(t, err)
	require.NoError(t, a.Start())

	require.Eventually(t, func() bool {
		d, err := boot.Documents.Get(ctx, doc.ID)
		return err == nil && d.Status == metadata.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	n, err := boot.Index.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Positive(t, n)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(shutdownCtx))
}
