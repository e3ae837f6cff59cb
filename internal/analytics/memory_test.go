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
	"testing"
	"time"
)

func TestMemoryStore_Usage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	conf := 0.8
	entries := []*Entry{
		{TenantID: "t1", Endpoint: "/chat/send", TokensIn: 10, TokensOut: 20, LatencyMs: 100, Confidence: &conf, Outcome: OutcomeSuccess, CreatedAt: now.Add(-time.Hour)},
		{TenantID: "t1", Endpoint: "/chat/send", TokensIn: 5, TokensOut: 0, LatencyMs: 300, Outcome: OutcomeError, ErrorMessage: "boom", CreatedAt: now.AddDate(0, 0, -1)},
		{TenantID: "t1", Endpoint: "/chat/send", TokensIn: 1, Outcome: OutcomeSuccess, CreatedAt: now.AddDate(0, 0, -40)},
		{TenantID: "t2", Endpoint: "/chat/send", TokensIn: 99, Outcome: OutcomeSuccess, CreatedAt: now},
	}
	for _, e := range entries {
		if err := s.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	stats, err := s.Usage(ctx, "t1", 30)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if stats.TotalMessages != 2 {
		t.Errorf("total messages: got %d, want 2", stats.TotalMessages)
	}
	if stats.TotalTokensIn != 15 || stats.TotalTokensOut != 20 {
		t.Errorf("tokens: in=%d out=%d", stats.TotalTokensIn, stats.TotalTokensOut)
	}
	if stats.AvgLatencyMs != 200 {
		t.Errorf("avg latency: got %v, want 200", stats.AvgLatencyMs)
	}
	if stats.AvgConfidence != 0.8 {
		t.Errorf("avg confidence: got %v, want 0.8", stats.AvgConfidence)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("success rate: got %v, want 50", stats.SuccessRate)
	}
	if len(stats.DailyUsage) != 2 {
		t.Fatalf("daily usage: got %d days, want 2", len(stats.DailyUsage))
	}
	if stats.DailyUsage[0].Date != "2026-03-10" || stats.DailyUsage[0].Tokens != 30 {
		t.Errorf("first day: %+v", stats.DailyUsage[0])
	}
	if stats.DailyUsage[1].Date != "2026-03-09" {
		t.Errorf("second day: %+v", stats.DailyUsage[1])
	}
}

func TestMemoryStore_EmptyUsage(t *testing.T) {
	stats, err := NewMemoryStore().Usage(context.Background(), "nobody", 0)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if stats.Days != DefaultUsageDays || stats.TotalMessages != 0 || stats.SuccessRate != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.DailyUsage == nil {
		t.Error("daily usage should be an empty slice for JSON output")
	}
}

func TestMemoryStore_LogRequiresTenant(t *testing.T) {
	if err := NewMemoryStore().Log(context.Background(), &Entry{Endpoint: "/chat/send"}); err == nil {
		t.Error("expected error for missing tenant")
	}
}
