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
	"fmt"

	einoembed "github.com/cloudwego/eino/components/embedding"
	einoretriever "github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"tenant-rag/internal/storage/vector"
	apperrors "tenant-rag/pkg/errors"
)

// 文档 MetaData 中的键
const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
)

// IndexRetriever 基于 vector.Index 实现的 Eino retriever.Retriever。
// WithIndex 传入租户 ID，检索范围限定在该租户的未过期切片。
type IndexRetriever struct {
	index            vector.Index
	embedder         einoembed.Embedder
	defaultTopK      int
	defaultThreshold float64
}

// IndexRetrieverConfig IndexRetriever 构造参数
type IndexRetrieverConfig struct {
	Index            vector.Index
	Embedder         einoembed.Embedder
	DefaultTopK      int
	DefaultThreshold float64
}

// NewIndexRetriever 创建基于 vector.Index 的 Eino Retriever
func NewIndexRetriever(cfg *IndexRetrieverConfig) (*IndexRetriever, error) {
	if cfg == nil || cfg.Index == nil {
		return nil, fmt.Errorf("IndexRetriever requires Index")
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &IndexRetriever{
		index:            cfg.Index,
		embedder:         cfg.Embedder,
		defaultTopK:      topK,
		defaultThreshold: cfg.DefaultThreshold,
	}, nil
}

// Retrieve 实现 github.com/cloudwego/eino/components/retriever.Retriever
func (r *IndexRetriever) Retrieve(ctx context.Context, query string, opts ...einoretriever.Option) ([]*schema.Document, error) {
	options := einoretriever.GetCommonOptions(&einoretriever.Options{Embedding: r.embedder}, opts...)

	if options.Index == nil || *options.Index == "" {
		return nil, apperrors.Validation("query.Retrieve", "tenant index is required")
	}
	tenantID := *options.Index
	topK := r.defaultTopK
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}
	threshold := r.defaultThreshold
	if options.ScoreThreshold != nil {
		threshold = *options.ScoreThreshold
	}
	if options.Embedding == nil {
		return nil, fmt.Errorf("Retriever requires an embedder 以对 query 做向量化")
	}

	vecs, err := options.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, apperrors.Transient("query.embed", err)
	}
	if len(vecs) != 1 {
		return nil, apperrors.Transient("query.embed", fmt.Errorf("embedding returned %d vectors", len(vecs)))
	}

	results, err := r.index.Search(ctx, tenantID, vecs[0], topK, threshold)
	if err != nil {
		return nil, apperrors.Transient("query.search", err)
	}

	docs := make([]*schema.Document, 0, len(results))
	for _, sr := range results {
		d := &schema.Document{
			ID:      sr.ChunkID,
			Content: sr.Text,
			MetaData: map[string]any{
				MetaDocumentID: sr.DocumentID,
				MetaChunkIndex: sr.ChunkIndex,
			},
		}
		d.WithScore(sr.Score)
		docs = append(docs, d)
	}
	return docs, nil
}

var _ einoretriever.Retriever = (*IndexRetriever)(nil)
