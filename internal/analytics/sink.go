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

package analytics

import (
	"context"
	"time"
)

// Outcome 请求结果
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeError         Outcome = "error"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
)

// Entry 一条请求记录
type Entry struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Endpoint     string    `json:"endpoint"`
	TokensIn     int       `json:"tokens_in"`
	TokensOut    int       `json:"tokens_out"`
	LatencyMs    int64     `json:"latency_ms"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyUsage 按 UTC 日期汇总
type DailyUsage struct {
	Date     string `json:"date"` // 2006-01-02
	Messages int64  `json:"messages"`
	Tokens   int64  `json:"tokens"`
}

// UsageStats 最近 N 天的用量统计
type UsageStats struct {
	TenantID       string       `json:"tenant_id"`
	Days           int          `json:"days"`
	TotalMessages  int64        `json:"total_messages"`
	TotalTokensIn  int64        `json:"total_tokens_in"`
	TotalTokensOut int64        `json:"total_tokens_out"`
	AvgLatencyMs   float64      `json:"avg_latency_ms"`
	AvgConfidence  float64      `json:"avg_confidence"`
	SuccessRate    float64      `json:"success_rate"` // 百分比
	DailyUsage     []DailyUsage `json:"daily_usage"`
}

// DefaultUsageDays 未指定时统计的天数
const DefaultUsageDays = 30

// Sink 请求分析记录
type Sink interface {
	// Log 写入一条记录；CreatedAt 为零时取当前时间
	Log(ctx context.Context, entry *Entry) error
	// Usage 统计租户最近 days 天的用量，日汇总按日期倒序
	Usage(ctx context.Context, tenantID string, days int) (*UsageStats, error)
	Close() error
}

func normalizeDays(days int) int {
	if days <= 0 {
		return DefaultUsageDays
	}
	if days > 365 {
		return 365
	}
	return days
}
