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
	"strings"
	"time"

	einoretriever "github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"tenant-rag/internal/model/llm"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/metrics"
	"tenant-rag/pkg/tracing"
)

const (
	// DefaultTopK 每次问答检索的切片数
	DefaultTopK = 5
	// MinAnswerTokens 回答 token 上限的下限
	MinAnswerTokens = 100
	// SystemPrompt 固定的系统指令
	SystemPrompt = "Answer the user question using the provided context. Be concise and accurate."

	corroborationScore = 0.7
	corroborationBoost = 0.05
)

// Source 参与回答的切片
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Answer 问答结果
type Answer struct {
	Text         string   `json:"response"`
	TokensUsed   int      `json:"tokens_used"` // 回答消耗的 completion token
	PromptTokens int      `json:"prompt_tokens"`
	Confidence   float64  `json:"confidence"`
	Sources      []Source `json:"sources"`
}

// Engine 检索增强问答
type Engine struct {
	retriever einoretriever.Retriever
	completer llm.Completer
	topK      int
	minScore  float64
	logger    *log.Logger
}

// NewEngine 创建 Engine；topK <= 0 时取 DefaultTopK
func NewEngine(retriever einoretriever.Retriever, completer llm.Completer, topK int, minScore float64, logger *log.Logger) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{retriever: retriever, completer: completer, topK: topK, minScore: minScore, logger: logger}
}

// Answer 检索租户切片并调用补全模型。检索为空时仍以空上下文调用补全，置信度为 0。
func (e *Engine) Answer(ctx context.Context, tenantID, question string, maxTokens int) (ans *Answer, err error) {
	start := time.Now()
	if maxTokens < MinAnswerTokens {
		maxTokens = MinAnswerTokens
	}
	ctx, span := tracing.StartAnswerSpan(ctx, tenantID, maxTokens)
	defer func() {
		tracing.EndSpan(span, err)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.AnswerDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(question) == "" {
		return nil, apperrors.Validation("query.Answer", "message is required")
	}

	docs, err := e.retriever.Retrieve(ctx, question,
		einoretriever.WithIndex(tenantID),
		einoretriever.WithTopK(e.topK),
		einoretriever.WithScoreThreshold(e.minScore),
	)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(docs))
	texts := make([]string, len(docs))
	sources := make([]Source, len(docs))
	for i, d := range docs {
		scores[i] = d.Score()
		texts[i] = d.Content
		sources[i] = sourceOf(d)
	}
	confidence := Confidence(scores)
	metrics.RetrievalConfidence.Observe(confidence)

	completion, err := e.completer.Complete(ctx, BuildMessages(texts, question), maxTokens)
	if err != nil {
		return nil, apperrors.Transient("query.complete", err)
	}

	e.logger.Debug("answer generated", "tenant_id", tenantID, "chunks", len(docs), "confidence", confidence, "tokens", completion.CompletionTokens)
	return &Answer{
		Text:         completion.Text,
		TokensUsed:   completion.CompletionTokens,
		PromptTokens: completion.PromptTokens,
		Confidence:   confidence,
		Sources:      sources,
	}, nil
}

// Confidence 无结果为 0；否则取最高分，多于一个切片得分 >= 0.7 时加 0.05，上限 1
func Confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	best := scores[0]
	strong := 0
	for _, s := range scores {
		if s > best {
			best = s
		}
		if s >= corroborationScore {
			strong++
		}
	}
	if strong > 1 {
		best += corroborationBoost
	}
	if best > 1 {
		best = 1
	}
	if best < 0 {
		best = 0
	}
	return best
}

// BuildMessages 系统指令 + 按排名拼接的上下文 + 问题
func BuildMessages(contexts []string, question string) []llm.Message {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(contexts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func sourceOf(d *schema.Document) Source {
	s := Source{ChunkID: d.ID, Score: d.Score()}
	if v, ok := d.MetaData[MetaDocumentID].(string); ok {
		s.DocumentID = v
	}
	if v, ok := d.MetaData[MetaChunkIndex].(int); ok {
		s.ChunkIndex = v
	}
	return s
}
