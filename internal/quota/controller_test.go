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

package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
	apperrors "tenant-rag/pkg/errors"
)

func newTestController(t *testing.T) (*Controller, *MemoryLedger) {
	t.Helper()
	ledger := NewMemoryLedger()
	c := NewController(ledger, config.Default().Plans)
	fixed := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	ledger.now = c.now
	return c, ledger
}

func TestAdmitMessage_LimitBoundary(t *testing.T) {
	ctx := context.Background()
	c, ledger := newTestController(t)
	c.plans.Free.MessageLimit = 3
	tenant := &auth.Tenant{ID: "t1", Plan: auth.PlanFree}
	window, ttl := Window(tenant.Plan, ResourceMessages, c.now())

	// count == limit-1
	_, err := ledger.Increment(ctx, "t1", ResourceMessages, window, 2, ttl)
	require.NoError(t, err)

	d, err := c.AdmitMessage(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, d.Admitted)
	assert.Equal(t, int64(3), d.Used)
	assert.Equal(t, int64(0), d.Remaining)

	d, err = c.AdmitMessage(ctx, tenant)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindQuotaExceeded))
	assert.False(t, d.Admitted)

	n, _ := ledger.Get(ctx, "t1", ResourceMessages, window)
	assert.Equal(t, int64(3), n, "rejected request must not be counted")
}

func TestAdmitMessage_ConcurrentNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	c, ledger := newTestController(t)
	c.plans.Premium.MessageLimit = 10
	tenant := &auth.Tenant{ID: "p1", Plan: auth.PlanPremium}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, err := c.AdmitMessage(ctx, tenant); err == nil && d.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	window, _ := Window(tenant.Plan, ResourceMessages, c.now())
	n, _ := ledger.Get(ctx, "p1", ResourceMessages, window)
	assert.Equal(t, 10, admitted)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "2026-05", window)
}

func TestDocumentAdmission_FreeLimit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	tenant := &auth.Tenant{ID: "f1", Plan: auth.PlanFree}
	require.Equal(t, int64(1), c.Limits(auth.PlanFree).DocumentLimit)

	d, err := c.CheckDocument(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, d.Admitted)
	charged, err := c.ChargeDocument(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, charged.Admitted)
	assert.Equal(t, int64(1), charged.Used)

	d, err = c.CheckDocument(ctx, tenant)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindQuotaExceeded))
	assert.Equal(t, int64(1), d.Used)

	u, err := c.Usage(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Documents.Used)
}

func TestChargeDocument_ConcurrentNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	c, ledger := newTestController(t)
	tenant := &auth.Tenant{ID: "f3", Plan: auth.PlanFree}
	limit := c.Limits(auth.PlanFree).DocumentLimit

	// 所有请求先通过只读检查，再同时计数
	var checked, wg sync.WaitGroup
	start := make(chan struct{})
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 5; i++ {
		checked.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.CheckDocument(ctx, tenant)
			checked.Done()
			if err != nil {
				return
			}
			<-start
			d, err := c.ChargeDocument(ctx, tenant)
			if err != nil {
				assert.True(t, apperrors.Is(err, apperrors.KindQuotaExceeded))
				assert.False(t, d.Admitted)
				return
			}
			mu.Lock()
			admitted++
			mu.Unlock()
		}()
	}
	checked.Wait()
	close(start)
	wg.Wait()

	window, _ := Window(tenant.Plan, ResourceDocuments, c.now())
	n, _ := ledger.Get(ctx, "f3", ResourceDocuments, window)
	assert.Equal(t, int(limit), admitted)
	assert.Equal(t, limit, n)
}

func TestCheckDocument_DoesNotCharge(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	tenant := &auth.Tenant{ID: "f2", Plan: auth.PlanFree}
	for i := 0; i < 3; i++ {
		_, err := c.CheckDocument(ctx, tenant)
		require.NoError(t, err)
	}
	u, _ := c.Usage(ctx, tenant)
	assert.Equal(t, int64(0), u.Documents.Used)
}

func TestAddTokensAndReset(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	tenant := &auth.Tenant{ID: "t9", Plan: auth.PlanFree}

	require.NoError(t, c.AddTokens(ctx, tenant, 120))
	require.NoError(t, c.AddTokens(ctx, tenant, 0))
	_, err := c.AdmitMessage(ctx, tenant)
	require.NoError(t, err)

	u, err := c.Usage(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(120), u.Tokens.Used)
	assert.Equal(t, int64(1), u.Messages.Used)
	assert.Equal(t, int64(199), u.Messages.Remaining)

	n, err := c.Reset(ctx, "t9")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	u, _ = c.Usage(ctx, tenant)
	assert.Zero(t, u.Messages.Used)
	assert.Zero(t, u.Tokens.Used)
}

func TestMemoryLedger_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, _ = l.Increment(ctx, "t1", ResourceMessages, "2026-01-01", 5, time.Hour)
	now = now.Add(2 * time.Hour)
	n, _ := l.Get(ctx, "t1", ResourceMessages, "2026-01-01")
	assert.Zero(t, n)
}

func TestMemoryLedger_ResetTenantIsScoped(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	for _, tenant := range []string{"t", "t:x", "tx"} {
		_, err := ledger.Increment(ctx, tenant, ResourceMessages, "2026-05-10", 1, time.Hour)
		require.NoError(t, err)
	}
	n, err := ledger.ResetTenant(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	for _, tenant := range []string{"t:x", "tx"} {
		got, _ := ledger.Get(ctx, tenant, ResourceMessages, "2026-05-10")
		assert.Equal(t, int64(1), got, tenant)
	}
}
