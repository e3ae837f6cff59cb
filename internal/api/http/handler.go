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

package http

import (
	"context"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"tenant-rag/internal/analytics"
	"tenant-rag/internal/api/http/middleware"
	"tenant-rag/internal/ingestqueue"
	"tenant-rag/internal/model/llm"
	"tenant-rag/internal/pipeline/query"
	"tenant-rag/internal/quota"
	"tenant-rag/internal/storage/metadata"
	"tenant-rag/internal/storage/object"
	"tenant-rag/internal/storage/vector"
	"tenant-rag/pkg/auth"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/log"
	"tenant-rag/pkg/metrics"
)

const (
	maxMessageLen   = 2000
	minContextLimit = 100
	maxContextLimit = 3000
)

// Answerer 检索增强问答
type Answerer interface {
	Answer(ctx context.Context, tenantID, question string, maxTokens int) (*query.Answer, error)
}

// MimeChecker 判断文件类型是否可入库
type MimeChecker interface {
	Supports(mimeType string) bool
}

// Deps Handler 依赖
type Deps struct {
	Documents metadata.Store
	Objects   object.Store
	Index     vector.Index
	Queue     ingestqueue.Queue
	Quota     *quota.Controller
	Answerer  Answerer
	Analytics analytics.Sink
	Mimes     MimeChecker
	Logger    *log.Logger
}

// Handler HTTP 处理器
type Handler struct {
	docs      metadata.Store
	objects   object.Store
	index     vector.Index
	queue     ingestqueue.Queue
	quota     *quota.Controller
	answerer  Answerer
	analytics analytics.Sink
	mimes     MimeChecker
	logger    *log.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = log.Nop()
	}
	return &Handler{
		docs:      d.Documents,
		objects:   d.Objects,
		index:     d.Index,
		queue:     d.Queue,
		quota:     d.Quota,
		answerer:  d.Answerer,
		analytics: d.Analytics,
		mimes:     d.Mimes,
		logger:    d.Logger,
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "tenant-rag-api",
	})
}

// Metrics Prometheus 文本格式
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	c.Response.Header.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	if err := metrics.WritePrometheus(c.Response.BodyWriter()); err != nil {
		h.logger.Error("write metrics failed", "error", err)
		c.SetStatusCode(consts.StatusInternalServerError)
		return
	}
	c.SetStatusCode(consts.StatusOK)
}

func documentView(d *metadata.Document) utils.H {
	return utils.H{
		"id":                d.ID,
		"filename":          d.Filename,
		"file_size":         d.SizeBytes,
		"mime_type":         d.MimeType,
		"processing_status": d.Status,
		"chunk_count":       d.ChunkCount,
		"error_message":     d.ErrorMessage,
		"created_at":        d.CreatedAt,
		"updated_at":        d.UpdatedAt,
	}
}

// writeDocumentQuotaError 文档配额拒绝返回 429，其余错误按类型映射
func (h *Handler) writeDocumentQuotaError(c *app.RequestContext, t *auth.Tenant, d *quota.Decision, err error) {
	if !apperrors.Is(err, apperrors.KindQuotaExceeded) || d == nil {
		h.writeError(c, err)
		return
	}
	msg := apperrors.MessageOf(err)
	if t.Plan != auth.PlanPremium {
		msg += ", upgrade to premium for more documents"
	}
	c.JSON(consts.StatusTooManyRequests, utils.H{
		"error":   "Document limit exceeded",
		"message": msg,
		"quota": utils.H{
			"documents_used":      d.Used,
			"documents_limit":     d.Limit,
			"can_upload_document": false,
		},
	})
}

// UploadDocument 上传文档：配额检查 -> 大小 -> 类型 -> 存储 -> 元数据 -> 计数 -> 入队
func (h *Handler) UploadDocument(ctx context.Context, c *app.RequestContext) {
	t := middleware.TenantFrom(ctx, c)

	if decision, err := h.quota.CheckDocument(ctx, t); err != nil {
		h.writeDocumentQuotaError(c, t, decision, err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "No file provided", "message": "Please upload a file"})
		return
	}

	limits := h.quota.Limits(t.Plan)
	if limits.DocumentSizeLimit > 0 && fh.Size > limits.DocumentSizeLimit {
		c.JSON(consts.StatusRequestEntityTooLarge, utils.H{
			"error":   "File too large",
			"message": "File size exceeds " + strconv.FormatInt(limits.DocumentSizeLimit/(1024*1024), 10) + "MB limit for " + string(t.Plan) + " plan",
		})
		return
	}

	mimeType := detectMime(fh.Header.Get("Content-Type"), fh.Filename)
	if !h.mimes.Supports(mimeType) {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "Unsupported file type", "message": "unsupported file type: " + mimeType})
		return
	}

	docID := uuid.New().String()
	key := object.Key(t.ID, docID, fh.Filename)
	f, err := fh.Open()
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "Invalid upload"})
		return
	}
	defer f.Close()
	if err := h.objects.Put(ctx, key, f, fh.Size, mimeType); err != nil {
		h.writeError(c, apperrors.Transient("http.UploadDocument", err))
		return
	}

	doc := &metadata.Document{
		ID:        docID,
		TenantID:  t.ID,
		SourceRef: key,
		Filename:  fh.Filename,
		MimeType:  mimeType,
		SizeBytes: fh.Size,
	}
	if err := h.docs.Create(ctx, doc); err != nil {
		_ = h.objects.Delete(ctx, key)
		h.writeError(c, err)
		return
	}

	charged, err := h.quota.ChargeDocument(ctx, t)
	if err != nil {
		_, _ = h.docs.Delete(ctx, t.ID, docID)
		_ = h.objects.Delete(ctx, key)
		h.writeDocumentQuotaError(c, t, charged, err)
		return
	}

	jobID, err := h.queue.Enqueue(ctx, &ingestqueue.Job{DocumentID: docID, TenantID: t.ID})
	if err != nil {
		h.logger.Error("enqueue ingest job failed", "document_id", docID, "tenant_id", t.ID, "error", err)
		_ = h.docs.MarkFailed(ctx, docID, "enqueue failed: "+err.Error())
		h.writeError(c, apperrors.Transient("http.UploadDocument", err))
		return
	}

	h.logger.Info("document uploaded", "document_id", docID, "tenant_id", t.ID, "job_id", jobID, "size", fh.Size)
	c.JSON(consts.StatusCreated, utils.H{
		"message":  "Document uploaded successfully. Processing embeddings in background.",
		"document": documentView(doc),
		"job_id":   jobID,
		"quota": utils.H{
			"documents_used":  charged.Used,
			"documents_limit": limits.DocumentLimit,
		},
	})
}

// detectMime 优先使用 multipart 头，缺省或为 octet-stream 时按扩展名推断
func detectMime(header, filename string) string {
	mt := header
	if mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			mt = parsed
		}
	}
	if mt == "" || mt == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
			if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
				return parsed
			}
		}
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case ".doc":
			return "application/msword"
		case ".pdf":
			return "application/pdf"
		case ".txt", ".md":
			return "text/plain"
		}
	}
	return mt
}

// ListDocuments 列出租户文档
func (h *Handler) ListDocuments(ctx context.Context, c *app.RequestContext) {
	t := middleware.TenantFrom(ctx, c)
	page := &metadata.Pagination{}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		page.Offset = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		page.Limit = v
	}
	docs, err := h.docs.ListByTenant(ctx, t.ID, page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	total, err := h.docs.CountByTenant(ctx, t.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]utils.H, 0, len(docs))
	for _, d := range docs {
		views = append(views, documentView(d))
	}
	c.JSON(consts.StatusOK, utils.H{"documents": views, "total": total})
}

// getOwned 读取属于当前租户的文档，其他租户的文档按不存在处理
func (h *Handler) getOwned(ctx context.Context, tenantID, id string) (*metadata.Document, error) {
	doc, err := h.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID {
		return nil, apperrors.NotFound("http.Document", "document not found")
	}
	return doc, nil
}

// GetDocument 查询文档状态
func (h *Handler) GetDocument(ctx context.Context, c *app.RequestContext) {
	t := middleware.TenantFrom(ctx, c)
	doc, err := h.getOwned(ctx, t.ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"document": documentView(doc)})
}

// DeleteDocument 删除文档及其切片、原始文件
func (h *Handler) DeleteDocument(ctx context.Context, c *app.RequestContext) {
	t := middleware.TenantFrom(ctx, c)
	doc, err := h.getOwned(ctx, t.ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	n, err := h.index.DeleteByDocument(ctx, doc.ID)
	if err != nil {
		h.writeError(c, apperrors.IndexWrite("http.DeleteDocument", err))
		return
	}
	if n > 0 {
		metrics.ChunksPurgedTotal.WithLabelValues("document_deleted").Add(float64(n))
	}
	if err := h.objects.Delete(ctx, doc.SourceRef); err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
		h.logger.Warn("delete source object failed", "document_id", doc.ID, "key", doc.SourceRef, "error", err)
	}
	if _, err := h.docs.Delete(ctx, t.ID, doc.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"message": "Document deleted successfully", "chunks_deleted": n})
}

type sendMessageRequest struct {
	Message      string `json:"message"`
	ContextLimit int    `json:"context_limit"`
}

// SendMessage 问答；配额已由 MessageQuota 中间件扣减
func (h *Handler) SendMessage(ctx context.Context, c *app.RequestContext) {
	start := time.Now()
	t := middleware.TenantFrom(ctx, c)

	var req sendMessageRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "Validation failed", "details": "invalid JSON body"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(req.Message); n == 0 || n > maxMessageLen {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "Validation failed", "details": "message must be 1-2000 characters"})
		return
	}
	if req.ContextLimit != 0 && (req.ContextLimit < minContextLimit || req.ContextLimit > maxContextLimit) {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "Validation failed", "details": "context_limit must be between 100 and 3000"})
		return
	}

	limits := h.quota.Limits(t.Plan)
	maxTokens := req.ContextLimit
	if maxTokens == 0 {
		maxTokens = limits.TokenLimit
	}
	tokensIn := llm.EstimateTokens(req.Message)
	endpoint := string(c.Path())

	ans, err := h.answerer.Answer(ctx, t.ID, req.Message, maxTokens)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		h.logAnalytics(ctx, &analytics.Entry{
			TenantID:     t.ID,
			Endpoint:     endpoint,
			TokensIn:     tokensIn,
			TokensOut:    0,
			LatencyMs:    latency,
			Outcome:      analytics.OutcomeError,
			ErrorMessage: err.Error(),
		})
		h.writeError(c, err)
		return
	}

	confidence := ans.Confidence
	h.logAnalytics(ctx, &analytics.Entry{
		TenantID:   t.ID,
		Endpoint:   endpoint,
		TokensIn:   tokensIn,
		TokensOut:  ans.TokensUsed,
		LatencyMs:  latency,
		Confidence: &confidence,
		Outcome:    analytics.OutcomeSuccess,
	})
	if err := h.quota.AddTokens(ctx, t, tokensIn+ans.TokensUsed); err != nil {
		h.logger.Warn("record token usage failed", "tenant_id", t.ID, "error", err)
	}

	resp := utils.H{
		"response":         ans.Text,
		"confidence":       ans.Confidence,
		"tokens_used":      ans.TokensUsed,
		"sources":          ans.Sources,
		"response_time_ms": latency,
	}
	if v, ok := c.Get(middleware.QuotaKey); ok {
		if d, ok := v.(*quota.Decision); ok {
			resp["quota"] = utils.H{
				"messages_used":      d.Used,
				"messages_limit":     d.Limit,
				"messages_remaining": d.Remaining,
				"token_limit":        d.TokenLimit,
			}
		}
	}
	c.JSON(consts.StatusOK, resp)
}

func (h *Handler) logAnalytics(ctx context.Context, e *analytics.Entry) {
	if h.analytics == nil {
		return
	}
	if err := h.analytics.Log(ctx, e); err != nil {
		h.logger.Warn("analytics log failed", "tenant_id", e.TenantID, "error", err)
	}
}

// Usage 最近 N 天的请求统计
func (h *Handler) Usage(ctx context.Context, c *app.RequestContext) {
	t := middleware.TenantFrom(ctx, c)
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(analytics.DefaultUsageDays)))
	if err != nil || days <= 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "days must be a positive integer"})
		return
	}
	stats, err := h.analytics.Usage(ctx, t.ID, days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, stats)
}

// QuotaUsage 当前配额窗口用量
func (h *Handler) QuotaUsage(ctx context.Context, c *app.RequestContext) {
	t := middleware.TenantFrom(ctx, c)
	u, err := h.quota.Usage(ctx, t)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, u)
}

// ResetQuota 管理员清空租户配额计数
func (h *Handler) ResetQuota(ctx context.Context, c *app.RequestContext) {
	tenantID := c.Param("id")
	n, err := h.quota.Reset(ctx, tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("tenant quota reset", "tenant_id", tenantID, "keys", n)
	c.JSON(consts.StatusOK, utils.H{"tenant_id": tenantID, "keys_deleted": n})
}

// WipeTenantChunks 管理员删除租户全部切片
func (h *Handler) WipeTenantChunks(ctx context.Context, c *app.RequestContext) {
	tenantID := c.Param("id")
	n, err := h.index.DeleteByTenant(ctx, tenantID)
	if err != nil {
		h.writeError(c, apperrors.IndexWrite("http.WipeTenantChunks", err))
		return
	}
	if n > 0 {
		metrics.ChunksPurgedTotal.WithLabelValues("tenant_deleted").Add(float64(n))
	}
	h.logger.Info("tenant chunks wiped", "tenant_id", tenantID, "chunks", n)
	c.JSON(consts.StatusOK, utils.H{"tenant_id": tenantID, "chunks_deleted": n})
}
