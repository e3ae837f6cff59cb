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

package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"tenant-rag/pkg/metrics"
)

// RateLimitedEmbedder 在调用前按每分钟请求数限流，并记录调用耗时
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder requestsPerMinute<=0 时不限流
func NewRateLimitedEmbedder(inner Embedder, requestsPerMinute float64) *RateLimitedEmbedder {
	r := &RateLimitedEmbedder{inner: inner}
	if requestsPerMinute > 0 {
		burst := int(requestsPerMinute / 60.0 * 2)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burst)
	}
	return r
}

// Model 返回底层模型名称
func (r *RateLimitedEmbedder) Model() string { return r.inner.Model() }

// Dimension 返回底层向量维度
func (r *RateLimitedEmbedder) Dimension() int { return r.inner.Dimension() }

// Embed 实现 Embedder
func (r *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limit wait failed: %w", err)
		}
	}
	start := time.Now()
	out, err := r.inner.Embed(ctx, texts)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ModelCallDuration.WithLabelValues("embed", status).Observe(time.Since(start).Seconds())
	return out, err
}
