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

package llm

import (
	"context"
	"time"

	"tenant-rag/pkg/metrics"
)

// RateLimitedCompleter 包装任意 Completer，在真实调用前后执行限流并记录用量指标。
type RateLimitedCompleter struct {
	inner   Completer
	limiter *RateLimiter
}

// NewRateLimitedCompleter limiter 为 nil 时退化为直接调用。
func NewRateLimitedCompleter(inner Completer, limiter *RateLimiter) *RateLimitedCompleter {
	return &RateLimitedCompleter{inner: inner, limiter: limiter}
}

// Complete 实现 Completer
func (c *RateLimitedCompleter) Complete(ctx context.Context, messages []Message, maxTokens int) (*Completion, error) {
	if c.limiter != nil {
		estimated := EstimateTokens(messagesText(messages)) + maxTokens
		release, err := c.limiter.Wait(ctx, c.inner.Provider(), estimated)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	start := time.Now()
	out, err := c.inner.Complete(ctx, messages, maxTokens)
	if err != nil {
		metrics.ModelCallDuration.WithLabelValues("complete", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.ModelCallDuration.WithLabelValues("complete", "ok").Observe(time.Since(start).Seconds())
	metrics.LLMTokensTotal.WithLabelValues("input").Add(float64(out.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues("output").Add(float64(out.CompletionTokens))
	return out, nil
}

// Model 返回底层 Completer 的模型名称。
func (c *RateLimitedCompleter) Model() string { return c.inner.Model() }

// Provider 返回底层 Completer 的提供商名称。
func (c *RateLimitedCompleter) Provider() string { return c.inner.Provider() }
