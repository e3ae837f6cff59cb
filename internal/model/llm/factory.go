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
	"strings"

	"tenant-rag/pkg/config"
)

// NewFromConfig 根据 model.defaults.llm（provider.model_key）与 model.llm.backend 创建 Completer。
// backend 为 eino 时走 eino-ext OpenAI ChatModel，否则走 resty 客户端；defaults.llm 为 echo 时使用回显实现。
func NewFromConfig(ctx context.Context, cfg config.ModelConfig) (Completer, error) {
	limiter := NewRateLimiter(LimitConfig{RequestsPerMinute: cfg.LLM.RequestsPerMinute})
	key := cfg.Defaults.LLM
	if key == "" || key == "echo" || strings.HasPrefix(key, "echo.") {
		return NewRateLimitedCompleter(EchoCompleter{}, limiter), nil
	}

	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("default key 格式应为 provider.model_key，如 openai.gpt_35_turbo，当前: %q", key)
	}
	provider, modelKey := parts[0], parts[1]
	pc, ok := cfg.LLM.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("LLM provider %q 未配置", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, fmt.Errorf("LLM model %q 未在 provider %q 中配置", modelKey, provider)
	}
	if pc.APIKey == "" {
		return nil, fmt.Errorf("LLM provider %q 的 api_key 未配置", provider)
	}

	var inner Completer
	switch cfg.LLM.Backend {
	case "eino":
		c, err := NewEinoOpenAICompleter(ctx, mi.Name, pc.APIKey, pc.BaseURL)
		if err != nil {
			return nil, err
		}
		inner = c
	case "", "resty":
		inner = NewOpenAIClient(provider, mi.Name, pc.APIKey, pc.BaseURL, mi.Temperature)
	default:
		return nil, fmt.Errorf("不支持的 LLM backend: %s", cfg.LLM.Backend)
	}
	return NewRateLimitedCompleter(inner, limiter), nil
}
