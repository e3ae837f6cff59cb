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

package auth

import (
	"errors"
	"time"
)

// Plan 租户套餐
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// ParsePlan 未知套餐按 free 处理
func ParsePlan(s string) Plan {
	if s == string(PlanPremium) {
		return PlanPremium
	}
	return PlanFree
}

// PaymentStatus 付费状态
type PaymentStatus string

const (
	PaymentActive    PaymentStatus = "active"
	PaymentPending   PaymentStatus = "pending"
	PaymentSuspended PaymentStatus = "suspended"
)

var (
	ErrTrialExpired    = errors.New("trial expired")
	ErrTenantSuspended = errors.New("account suspended")
)

// Tenant 租户
type Tenant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Plan          Plan          `json:"plan"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TrialEndsAt   *time.Time    `json:"trial_ends_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// CheckActive free 套餐试用到期或账户被停用时返回错误
func (t *Tenant) CheckActive(now time.Time) error {
	if t.Plan == PlanFree && t.TrialEndsAt != nil && now.After(*t.TrialEndsAt) {
		return ErrTrialExpired
	}
	if t.PaymentStatus == PaymentSuspended {
		return ErrTenantSuspended
	}
	return nil
}
