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
	"fmt"
	"time"

	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/metrics"
)

// Decision 一次准入判定的结果
type Decision struct {
	Resource  Resource `json:"resource"`
	Admitted  bool     `json:"admitted"`
	Used      int64    `json:"used"`
	Limit     int64    `json:"limit"`
	Remaining int64    `json:"remaining"`
	Window    string   `json:"window"`
	// TokenLimit 套餐单次回答的 token 上限，仅 messages 判定时填写
	TokenLimit int `json:"token_limit,omitempty"`
}

// ResourceUsage 单个资源在当前窗口的用量
type ResourceUsage struct {
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit,omitempty"`
	Remaining int64  `json:"remaining,omitempty"`
	Window    string `json:"window"`
}

// Usage 租户当前配额快照
type Usage struct {
	TenantID  string        `json:"tenant_id"`
	Plan      auth.Plan     `json:"plan"`
	Messages  ResourceUsage `json:"messages"`
	Documents ResourceUsage `json:"documents"`
	Tokens    ResourceUsage `json:"tokens"`
}

// Controller 基于 Ledger 的准入控制
type Controller struct {
	ledger Ledger
	plans  config.PlansConfig
	now    func() time.Time
}

// NewController 创建准入控制器
func NewController(ledger Ledger, plans config.PlansConfig) *Controller {
	return &Controller{ledger: ledger, plans: plans, now: time.Now}
}

// Limits 返回套餐限额
func (c *Controller) Limits(plan auth.Plan) config.PlanLimits {
	if plan == auth.PlanPremium {
		return c.plans.Premium
	}
	return c.plans.Free
}

func remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}

func record(res Resource, admitted bool) {
	decision := "admitted"
	if !admitted {
		decision = "rejected"
	}
	metrics.QuotaDecisionTotal.WithLabelValues(string(res), decision).Inc()
}

// AdmitMessage 读取当前窗口的 messages 计数；达到上限则拒绝且不计数，否则先计数再放行。
// 并发下若计数越过上限，回退本次增量并拒绝，保证计数不超过上限。
func (c *Controller) AdmitMessage(ctx context.Context, tenant *auth.Tenant) (*Decision, error) {
	limits := c.Limits(tenant.Plan)
	window, ttl := Window(tenant.Plan, ResourceMessages, c.now())
	d := &Decision{
		Resource:   ResourceMessages,
		Limit:      limits.MessageLimit,
		Window:     window,
		TokenLimit: limits.TokenLimit,
	}

	used, err := c.ledger.Get(ctx, tenant.ID, ResourceMessages, window)
	if err != nil {
		return nil, apperrors.Transient("quota.AdmitMessage", err)
	}
	if used >= limits.MessageLimit {
		d.Used = used
		record(ResourceMessages, false)
		return d, apperrors.QuotaExceeded("quota.AdmitMessage", messageLimitText(tenant.Plan))
	}

	n, err := c.ledger.Increment(ctx, tenant.ID, ResourceMessages, window, 1, ttl)
	if err != nil {
		return nil, apperrors.Transient("quota.AdmitMessage", err)
	}
	if n > limits.MessageLimit {
		if n, err = c.ledger.Increment(ctx, tenant.ID, ResourceMessages, window, -1, ttl); err != nil {
			return nil, apperrors.Transient("quota.AdmitMessage", err)
		}
		d.Used = n
		record(ResourceMessages, false)
		return d, apperrors.QuotaExceeded("quota.AdmitMessage", messageLimitText(tenant.Plan))
	}

	d.Admitted = true
	d.Used = n
	d.Remaining = remaining(limits.MessageLimit, n)
	record(ResourceMessages, true)
	return d, nil
}

func messageLimitText(plan auth.Plan) string {
	if plan == auth.PlanFree {
		return "free plan message limit reached, upgrade to premium"
	}
	return "monthly message limit reached, quota resets next month"
}

// CheckDocument 只读判定是否还能上传文档，不计数
func (c *Controller) CheckDocument(ctx context.Context, tenant *auth.Tenant) (*Decision, error) {
	limits := c.Limits(tenant.Plan)
	window, _ := Window(tenant.Plan, ResourceDocuments, c.now())
	used, err := c.ledger.Get(ctx, tenant.ID, ResourceDocuments, window)
	if err != nil {
		return nil, apperrors.Transient("quota.CheckDocument", err)
	}
	d := &Decision{
		Resource:  ResourceDocuments,
		Used:      used,
		Limit:     limits.DocumentLimit,
		Remaining: remaining(limits.DocumentLimit, used),
		Window:    window,
	}
	if used >= limits.DocumentLimit {
		record(ResourceDocuments, false)
		return d, apperrors.QuotaExceeded("quota.CheckDocument",
			fmt.Sprintf("document limit reached (%d)", limits.DocumentLimit))
	}
	d.Admitted = true
	record(ResourceDocuments, true)
	return d, nil
}

// ChargeDocument 文档已落盘后计数。计数越过上限时回退本次增量并拒绝，
// 调用方需清理已写入的对象与元数据。
func (c *Controller) ChargeDocument(ctx context.Context, tenant *auth.Tenant) (*Decision, error) {
	limits := c.Limits(tenant.Plan)
	window, ttl := Window(tenant.Plan, ResourceDocuments, c.now())
	d := &Decision{Resource: ResourceDocuments, Limit: limits.DocumentLimit, Window: window}

	n, err := c.ledger.Increment(ctx, tenant.ID, ResourceDocuments, window, 1, ttl)
	if err != nil {
		return nil, apperrors.Transient("quota.ChargeDocument", err)
	}
	if n > limits.DocumentLimit {
		if n, err = c.ledger.Increment(ctx, tenant.ID, ResourceDocuments, window, -1, ttl); err != nil {
			return nil, apperrors.Transient("quota.ChargeDocument", err)
		}
		d.Used = n
		record(ResourceDocuments, false)
		return d, apperrors.QuotaExceeded("quota.ChargeDocument",
			fmt.Sprintf("document limit reached (%d)", limits.DocumentLimit))
	}
	d.Admitted = true
	d.Used = n
	d.Remaining = remaining(limits.DocumentLimit, n)
	return d, nil
}

// AddTokens 记录当日 token 用量，仅用于统计
func (c *Controller) AddTokens(ctx context.Context, tenant *auth.Tenant, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	window, ttl := Window(tenant.Plan, ResourceTokens, c.now())
	if _, err := c.ledger.Increment(ctx, tenant.ID, ResourceTokens, window, int64(tokens), ttl); err != nil {
		return apperrors.Transient("quota.AddTokens", err)
	}
	return nil
}

// Usage 当前窗口的各资源用量
func (c *Controller) Usage(ctx context.Context, tenant *auth.Tenant) (*Usage, error) {
	limits := c.Limits(tenant.Plan)
	now := c.now()
	u := &Usage{TenantID: tenant.ID, Plan: tenant.Plan}

	for _, item := range []struct {
		res   Resource
		limit int64
		dst   *ResourceUsage
	}{
		{ResourceMessages, limits.MessageLimit, &u.Messages},
		{ResourceDocuments, limits.DocumentLimit, &u.Documents},
		{ResourceTokens, 0, &u.Tokens},
	} {
		window, _ := Window(tenant.Plan, item.res, now)
		used, err := c.ledger.Get(ctx, tenant.ID, item.res, window)
		if err != nil {
			return nil, apperrors.Transient("quota.Usage", err)
		}
		*item.dst = ResourceUsage{Used: used, Limit: item.limit, Window: window}
		if item.limit > 0 {
			item.dst.Remaining = remaining(item.limit, used)
		}
	}
	return u, nil
}

// Reset 管理员清空租户全部计数
func (c *Controller) Reset(ctx context.Context, tenantID string) (int64, error) {
	n, err := c.ledger.ResetTenant(ctx, tenantID)
	if err != nil {
		return 0, apperrors.Transient("quota.Reset", err)
	}
	return n, nil
}
