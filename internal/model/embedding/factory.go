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
	"fmt"
	"strings"

	"tenant-rag/pkg/config"
)

// NewFromConfig 根据 model.defaults.embedding（provider.model_key）创建 Embedder。
// provider 为 local 时使用 HashEmbedder，维度取 storage 配置的向量维度。
func NewFromConfig(cfg config.ModelConfig, dimension int) (Embedder, error) {
	key := cfg.Defaults.Embedding
	if key == "" || key == "local" || strings.HasPrefix(key, "local.") {
		return NewRateLimitedEmbedder(NewHashEmbedder(dimension), cfg.Embedding.RequestsPerMinute), nil
	}
	provider, modelKey, err := ParseDefaultKey(key)
	if err != nil {
		return nil, err
	}
	pc, ok := cfg.Embedding.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("Embedding provider %q 未配置", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, fmt.Errorf("Embedding model %q 未在 provider %q 中配置", modelKey, provider)
	}
	if pc.APIKey == "" {
		return nil, fmt.Errorf("Embedding provider %q 的 api_key 未配置", provider)
	}
	if mi.Dimension > 0 {
		dimension = mi.Dimension
	}
	inner := NewOpenAIEmbedder(mi.Name, pc.APIKey, pc.BaseURL, dimension)
	return NewRateLimitedEmbedder(inner, cfg.Embedding.RequestsPerMinute), nil
}

// ParseDefaultKey 解析 provider.model_key
func ParseDefaultKey(key string) (provider, modelKey string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("default key 格式应为 provider.model_key，如 openai.text_embedding_3_small，当前: %q", key)
	}
	return parts[0], parts[1], nil
}
