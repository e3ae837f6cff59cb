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

package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-rag/internal/model/embedding"
	"tenant-rag/internal/model/llm"
	"tenant-rag/internal/storage/vector"
	apperrors "tenant-rag/pkg/errors"
)

// recordingCompleter 记录最后一次调用
type recordingCompleter struct {
	messages  []llm.Message
	maxTokens int
	calls     int
	err       error
}

func (c *recordingCompleter) Complete(ctx context.Context, messages []llm.Message, maxTokens int) (*llm.Completion, error) {
	c.calls++
	c.messages = messages
	c.maxTokens = maxTokens
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Completion{Text: "answer", PromptTokens: 40, CompletionTokens: 7, TotalTokens: 47}, nil
}
func (c *recordingCompleter) Model() string    { return "recording" }
func (c *recordingCompleter) Provider() string { return "test" }

func newEngine(t *testing.T, index vector.Index, completer llm.Completer) *Engine {
	t.Helper()
	r, err := NewIndexRetriever(&IndexRetrieverConfig{
		Index:    index,
		Embedder: embedding.NewEinoAdapter(embedding.NewHashEmbedder(32)),
	})
	require.NoError(t, err)
	return NewEngine(r, completer, 0, 0, nil)
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{0.9}, 0.9},
		{"one strong", []float64{0.75, 0.5}, 0.75},
		{"corroborated", []float64{0.75, 0.72}, 0.80},
		{"capped", []float64{0.98, 0.97}, 1.0},
		{"all weak", []float64{0.3, 0.2, 0.1}, 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Confidence(tc.scores), 1e-9)
		})
	}
}

func TestConfidence_MonotonicInTopScore(t *testing.T) {
	prev := -1.0
	for top := 0.0; top <= 1.0; top += 0.01 {
		c := Confidence([]float64{top, 0.71})
		assert.GreaterOrEqual(t, c, prev)
		assert.LessOrEqual(t, c, 1.0)
		prev = c
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages([]string{"alpha", "beta"}, "what?")
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, "Context:\nalpha\n\nbeta\n\nQuestion: what?", msgs[1].Content)
}

func TestAnswer_NoDocumentsStillCallsCompletion(t *testing.T) {
	completer := &recordingCompleter{}
	e := newEngine(t, vector.NewMemoryStore(32), completer)

	ans, err := e.Answer(context.Background(), "t1", "anything there?", 50)
	require.NoError(t, err)
	assert.Zero(t, ans.Confidence)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, MinAnswerTokens, completer.maxTokens)
	assert.Equal(t, "Context:\n\n\nQuestion: anything there?", completer.messages[1].Content)
	assert.Equal(t, 7, ans.TokensUsed)
}

func TestAnswer_TenantScopedContext(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemoryStore(32)
	emb := embedding.NewHashEmbedder(32)
	insert := func(tenant, doc, text string) {
		vecs, err := emb.Embed(ctx, []string{text})
		require.NoError(t, err)
		require.NoError(t, index.InsertBatch(ctx, []*vector.Chunk{{TenantID: tenant, DocumentID: doc, Text: text, Vector: vecs[0]}}))
	}
	insert("t1", "d1", "refund policy allows returns within thirty days")
	insert("t2", "d2", "secret roadmap for the other tenant")

	completer := &recordingCompleter{}
	e := newEngine(t, index, completer)
	ans, err := e.Answer(ctx, "t1", "refund policy allows returns within thirty days", 500)
	require.NoError(t, err)

	require.NotEmpty(t, ans.Sources)
	for _, s := range ans.Sources {
		assert.Equal(t, "d1", s.DocumentID)
	}
	assert.InDelta(t, 1.0, ans.Confidence, 1e-6)
	assert.Equal(t, 500, completer.maxTokens)
	assert.NotContains(t, completer.messages[1].Content, "roadmap")
	assert.True(t, strings.HasPrefix(completer.messages[1].Content, "Context:\nrefund policy"))
}

func TestAnswer_CompletionFailurePropagates(t *testing.T) {
	completer := &recordingCompleter{err: errors.New("upstream 503")}
	e := newEngine(t, vector.NewMemoryStore(32), completer)
	_, err := e.Answer(context.Background(), "t1", "hi", 200)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientIO))
}

func TestRetriever_RequiresTenant(t *testing.T) {
	r, err := NewIndexRetriever(&IndexRetrieverConfig{
		Index:    vector.NewMemoryStore(32),
		Embedder: embedding.NewEinoAdapter(embedding.NewHashEmbedder(32)),
	})
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), "q")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
