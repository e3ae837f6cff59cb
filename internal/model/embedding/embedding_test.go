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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-rag/internal/storage/vector"
	"tenant-rag/pkg/config"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(64)
	a, err := EmbedOne(ctx, e, "refund policy for annual plans")
	require.NoError(t, err)
	b, _ := EmbedOne(ctx, e, "refund policy for annual plans")
	require.Len(t, a, 64)
	assert.Equal(t, a, b)

	related, _ := EmbedOne(ctx, e, "what is the refund policy")
	unrelated, _ := EmbedOne(ctx, e, "kubernetes pod scheduling")
	assert.Greater(t, vector.Score(a, related), vector.Score(a, unrelated))
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := EmbedOne(context.Background(), NewHashEmbedder(8), "   ")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Len(t, body.Input, 2)
		// 故意乱序返回，客户端按 index 排序
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("m", "k", srv.URL, 2)
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAIEmbedder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder("m", "k", srv.URL, 2).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestEinoAdapter_RoundTrip(t *testing.T) {
	inner := NewHashEmbedder(16)
	adapter := NewEinoAdapter(inner)
	vecs, err := adapter.EmbedStrings(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	back := NewFromEino(adapter, inner.Model(), inner.Dimension())
	again, err := EmbedOne(context.Background(), back, "hello world")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again)
}

func TestNewFromConfig(t *testing.T) {
	e, err := NewFromConfig(config.ModelConfig{}, 32)
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimension())

	_, err = NewFromConfig(config.ModelConfig{Defaults: config.DefaultsConfig{Embedding: "openai.small"}}, 32)
	require.Error(t, err)

	cfg := config.ModelConfig{
		Defaults: config.DefaultsConfig{Embedding: "openai.small"},
		Embedding: config.EmbeddingConfig{Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "k", Models: map[string]config.ModelInfo{"small": {Name: "text-embedding-3-small", Dimension: 1536}}},
		}},
	}
	e, err = NewFromConfig(cfg, 32)
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimension())
	assert.Equal(t, "text-embedding-3-small", e.Model())
}
