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

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tenant-rag/internal/ingestqueue"
	"tenant-rag/internal/model/embedding"
	"tenant-rag/internal/splitter"
	"tenant-rag/internal/storage/metadata"
	"tenant-rag/internal/storage/object"
	"tenant-rag/internal/storage/vector"
	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/metrics"
	"tenant-rag/pkg/tracing"
)

// ErrSkipped 文档已被其他尝试处理或处于终态，本次不做任何修改
var ErrSkipped = errors.New("ingest: document not claimable")

// TenantSource 按 id 读取租户
type TenantSource interface {
	Get(ctx context.Context, id string) (*auth.Tenant, error)
}

// ProcessorOptions 可调参数
type ProcessorOptions struct {
	ChunkTokens      int
	EmbedConcurrency int
	Plans            config.PlansConfig
}

// Processor 对单个文档执行一次入库尝试
type Processor struct {
	docs       metadata.Store
	tenants    TenantSource
	objects    object.Store
	embedder   embedding.Embedder
	index      vector.Index
	extractors *Registry
	opts       ProcessorOptions
	logger     *log.Logger
	now        func() time.Time
}

// NewProcessor 创建 Processor；opts 中的零值取默认
func NewProcessor(docs metadata.Store, tenants TenantSource, objects object.Store, embedder embedding.Embedder, index vector.Index, opts ProcessorOptions, logger *log.Logger) *Processor {
	if opts.ChunkTokens <= 0 {
		opts.ChunkTokens = splitter.DefaultMaxTokens
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 4
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Processor{
		docs:       docs,
		tenants:    tenants,
		objects:    objects,
		embedder:   embedder,
		index:      index,
		extractors: NewRegistry(),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Extractors 返回提取器注册表，API 上传时用于校验 mime type
func (p *Processor) Extractors() *Registry { return p.extractors }

// Process 执行一次尝试。成功时文档为 completed 且索引中只有本次写入的切片；
// 失败时本次写入的切片已被清理，文档保持 processing，由调用方决定重试或置为 failed。
func (p *Processor) Process(ctx context.Context, job *ingestqueue.Job) (err error) {
	ctx, span := tracing.StartIngestSpan(ctx, job.DocumentID, job.TenantID, job.Attempt)
	defer func() { tracing.EndSpan(span, err) }()

	if err := p.claim(ctx, job); err != nil {
		return err
	}

	chunkCount, err := p.run(ctx, job)
	if err != nil {
		p.purge(ctx, job.DocumentID, "failed_attempt")
		return err
	}

	if err := p.docs.MarkCompleted(ctx, job.DocumentID, chunkCount); err != nil {
		p.purge(ctx, job.DocumentID, "failed_attempt")
		if apperrors.Is(err, apperrors.KindNotFound) {
			return err
		}
		return apperrors.Transient("ingest.MarkCompleted", err)
	}
	metrics.IngestChunksTotal.Add(float64(chunkCount))
	return nil
}

// claim pending -> processing；重试尝试接受已处于 processing 的文档
func (p *Processor) claim(ctx context.Context, job *ingestqueue.Job) error {
	ok, err := p.docs.TransitionStatus(ctx, job.DocumentID, metadata.StatusPending, metadata.StatusProcessing)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return err
		}
		return apperrors.Transient("ingest.claim", err)
	}
	if ok {
		return nil
	}
	doc, err := p.docs.Get(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	if doc.Status == metadata.StatusProcessing && job.Attempt > 1 {
		return nil
	}
	p.logger.Info("skip document", "document_id", job.DocumentID, "status", string(doc.Status), "attempt", job.Attempt)
	return ErrSkipped
}

func (p *Processor) run(ctx context.Context, job *ingestqueue.Job) (int, error) {
	doc, err := p.docs.Get(ctx, job.DocumentID)
	if err != nil {
		return 0, err
	}
	tenant, err := p.tenants.Get(ctx, doc.TenantID)
	if err != nil {
		return 0, err
	}

	data, err := p.objects.Get(ctx, doc.SourceRef)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return 0, err
		}
		return 0, apperrors.Transient("ingest.download", err)
	}

	text, err := p.extractors.Extract(doc.MimeType, data)
	if err != nil {
		return 0, err
	}
	pieces := splitter.Chunk(splitter.Normalize(text), p.opts.ChunkTokens)
	if len(pieces) == 0 {
		return 0, apperrors.Validation("ingest.chunk", "no text content found in document")
	}

	vectors, err := p.embed(ctx, pieces)
	if err != nil {
		return 0, err
	}

	now := p.now().UTC()
	var expiresAt *time.Time
	if tenant.Plan != auth.PlanPremium {
		if days := p.opts.Plans.Free.DurationDays; days > 0 {
			t := now.AddDate(0, 0, days)
			expiresAt = &t
		}
	}

	chunks := make([]*vector.Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = &vector.Chunk{
			TenantID:   doc.TenantID,
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       text,
			Vector:     vectors[i],
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}
	}

	// 清理上一次尝试残留
	if _, err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return 0, apperrors.IndexWrite("ingest.purgeStale", err)
	}
	if err := p.index.InsertBatch(ctx, chunks); err != nil {
		return 0, apperrors.IndexWrite("ingest.insert", err)
	}

	p.logger.Info("document indexed", "document_id", doc.ID, "tenant_id", doc.TenantID, "chunks", len(chunks), "attempt", job.Attempt)
	return len(chunks), nil
}

// embed 并发向量化，输出顺序与输入一致
func (p *Processor) embed(ctx context.Context, pieces []string) ([][]float64, error) {
	vectors := make([][]float64, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedConcurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := embedding.EmbedOne(gctx, p.embedder, piece)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if apperrors.KindOf(err) != apperrors.KindUnknown {
			return nil, err
		}
		return nil, apperrors.Transient("ingest.embed", err)
	}
	return vectors, nil
}

func (p *Processor) purge(ctx context.Context, documentID, reason string) {
	// 调用方 ctx 可能已超时，清理使用独立超时
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	n, err := p.index.DeleteByDocument(cleanupCtx, documentID)
	if err != nil {
		p.logger.Error("purge chunks failed", "document_id", documentID, "error", err)
		return
	}
	if n > 0 {
		metrics.ChunksPurgedTotal.WithLabelValues(reason).Add(float64(n))
	}
}
