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
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig 单个 provider 的限流配置
type LimitConfig struct {
	RequestsPerMinute float64 // 每分钟请求数
	TokensPerMinute   int     // 每分钟 token 配额，0 表示不限
	MaxConcurrent     int     // 最大并发请求数，0 表示不限
}

// RateLimiter provider 维度的限流器：请求速率、token 预算与并发
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*providerLimiter
	defaults LimitConfig
}

type providerLimiter struct {
	requests  *rate.Limiter
	tokens    *rate.Limiter
	semaphore chan struct{}
}

// NewRateLimiter 创建限流器，未单独配置的 provider 使用 defaults
func NewRateLimiter(defaults LimitConfig) *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*providerLimiter), defaults: defaults}
}

func newProviderLimiter(cfg LimitConfig) *providerLimiter {
	l := &providerLimiter{}
	if cfg.RequestsPerMinute > 0 {
		burst := int(cfg.RequestsPerMinute / 60.0 * 2) // burst = 2 秒的配额
		if burst < 1 {
			burst = 1
		}
		l.requests = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst)
	}
	if cfg.TokensPerMinute > 0 {
		l.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), cfg.TokensPerMinute)
	}
	if cfg.MaxConcurrent > 0 {
		l.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return l
}

func (r *RateLimiter) get(provider string) *providerLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[provider]
	if !ok {
		l = newProviderLimiter(r.defaults)
		r.limiters[provider] = l
	}
	return l
}

// Wait 阻塞直到可以执行；返回的 release 必须在调用结束后执行
func (r *RateLimiter) Wait(ctx context.Context, provider string, estimatedTokens int) (release func(), err error) {
	l := r.get(provider)
	if l.requests != nil {
		if err := l.requests.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}
	if l.tokens != nil && estimatedTokens > 0 {
		n := estimatedTokens
		if n > l.tokens.Burst() {
			n = l.tokens.Burst()
		}
		if err := l.tokens.WaitN(ctx, n); err != nil {
			return nil, fmt.Errorf("token budget wait failed: %w", err)
		}
	}
	if l.semaphore == nil {
		return func() {}, nil
	}
	select {
	case l.semaphore <- struct{}{}:
		return func() { <-l.semaphore }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
