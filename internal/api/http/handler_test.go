package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"tenant-rag/internal/analytics"
	"tenant-rag/internal/api/http/middleware"
	"tenant-rag/internal/ingestqueue"
	"tenant-rag/internal/model/embedding"
	"tenant-rag/internal/model/llm"
	"tenant-rag/internal/pipeline/ingest"
	"tenant-rag/internal/pipeline/query"
	"tenant-rag/internal/quota"
	"tenant-rag/internal/storage/metadata"
	"tenant-rag/internal/storage/object"
	"tenant-rag/internal/storage/vector"
	"tenant-rag/internal/tenant"
	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
	"tenant-rag/pkg/metrics"
)

type failingAnswerer struct{}

func (failingAnswerer) Answer(ctx context.Context, tenantID, question string, maxTokens int) (*query.Answer, error) {
	return nil, errors.New("completion backend down")
}

type testEnv struct {
	srv       *server.Hertz
	docs      *metadata.MemoryStore
	index     *vector.MemoryStore
	queue     *ingestqueue.MemoryQueue
	analytics *analytics.MemoryStore
}

func newTestEnv(t *testing.T, answerer Answerer) *testEnv {
	t.Helper()
	return newTestEnvWithLedger(t, answerer, quota.NewMemoryLedger())
}

func newTestEnvWithLedger(t *testing.T, answerer Answerer, ledger quota.Ledger) *testEnv {
	t.Helper()
	ctx := context.Background()

	plans := config.Default().Plans
	plans.Free.MessageLimit = 2
	plans.Free.DocumentSizeLimit = 64

	store := tenant.NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	for key, tn := range map[string]*auth.Tenant{
		"free-key":  {ID: "t-free", Plan: auth.PlanFree, PaymentStatus: auth.PaymentActive},
		"prem-key":  {ID: "t-prem", Plan: auth.PlanPremium, PaymentStatus: auth.PaymentActive},
		"trial-key": {ID: "t-trial", Plan: auth.PlanFree, TrialEndsAt: &past},
		"susp-key":  {ID: "t-susp", Plan: auth.PlanPremium, PaymentStatus: auth.PaymentSuspended},
	} {
		if err := store.Upsert(ctx, tn, key); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	env := &testEnv{
		docs:      metadata.NewMemoryStore(),
		index:     vector.NewMemoryStore(16),
		queue:     ingestqueue.NewMemoryQueue(),
		analytics: analytics.NewMemoryStore(),
	}
	controller := quota.NewController(ledger, plans)
	if answerer == nil {
		retriever, err := query.NewIndexRetriever(&query.IndexRetrieverConfig{
			Index:    env.index,
			Embedder: embedding.NewEinoAdapter(embedding.NewHashEmbedder(16)),
		})
		if err != nil {
			t.Fatalf("NewIndexRetriever: %v", err)
		}
		answerer = query.NewEngine(retriever, llm.EchoCompleter{}, 0, 0, nil)
	}

	handler := NewHandler(Deps{
		Documents: env.docs,
		Objects:   object.NewMemoryStore(),
		Index:     env.index,
		Queue:     env.queue,
		Quota:     controller,
		Answerer:  answerer,
		Analytics: env.analytics,
		Mimes:     ingest.NewRegistry(),
	})
	adminJWT, err := middleware.NewAdminJWT(config.MiddlewareConfig{JWTKey: "test-secret", AdminUser: "admin", AdminPassword: "pw"})
	if err != nil {
		t.Fatalf("NewAdminJWT: %v", err)
	}
	env.srv = NewRouter(RouterDeps{
		Handler:    handler,
		Middleware: middleware.NewMiddleware(config.APIConfig{}, nil),
		Tenants:    tenant.NewResolver(store, nil, 0, nil),
		Admitter:   controller,
		AdminJWT:   adminJWT,
	}).Build(":0")
	return env
}

func (e *testEnv) do(method, path string, body []byte, headers ...ut.Header) *ut.ResponseRecorder {
	return ut.PerformRequest(e.srv.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, headers...)
}

func apiKey(k string) ut.Header { return ut.Header{Key: middleware.APIKeyHeader, Value: k} }

func (e *testEnv) upload(key, filename, content string) *ut.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	return e.do("POST", "/api/v1/kb/documents", buf.Bytes(),
		apiKey(key), ut.Header{Key: "Content-Type", Value: mw.FormDataContentType()})
}

func decode(t *testing.T, w *ut.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Result().Body(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Result().Body(), err)
	}
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do("GET", "/api/v1/health", nil)
	if w.Result().StatusCode() != 200 || !bytes.Contains(w.Result().Body(), []byte("ok")) {
		t.Fatalf("health: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
	metrics.ChunksPurgedTotal.WithLabelValues("expired").Add(0)
	w = env.do("GET", "/api/v1/metrics", nil)
	if w.Result().StatusCode() != 200 || !bytes.Contains(w.Result().Body(), []byte("tenantrag_")) {
		t.Fatalf("metrics: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
}

func TestTenantAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := []struct {
		name string
		key  string
		want int
	}{
		{"missing", "", 401},
		{"invalid", "nope", 401},
		{"trial expired", "trial-key", 403},
		{"suspended", "susp-key", 403},
		{"ok", "prem-key", 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var headers []ut.Header
			if tc.key != "" {
				headers = append(headers, apiKey(tc.key))
			}
			w := env.do("GET", "/api/v1/quota", nil, headers...)
			if got := w.Result().StatusCode(); got != tc.want {
				t.Errorf("status = %d, want %d (%s)", got, tc.want, w.Result().Body())
			}
		})
	}
}

func TestUploadDocument_FlowAndLimits(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.upload("free-key", "notes.txt", "hello world")
	if w.Result().StatusCode() != 201 {
		t.Fatalf("upload status = %d: %s", w.Result().StatusCode(), w.Result().Body())
	}
	body := decode(t, w)
	doc := body["document"].(map[string]any)
	if doc["processing_status"] != "pending" || doc["mime_type"] != "text/plain" {
		t.Errorf("unexpected document view: %v", doc)
	}
	job, err := env.queue.Claim(context.Background(), "w")
	if err != nil || job == nil || job.DocumentID != doc["id"] {
		t.Fatalf("expected queued job for document, got %+v %v", job, err)
	}

	// free 套餐只允许 1 个文档
	w = env.upload("free-key", "second.txt", "more")
	if w.Result().StatusCode() != 429 {
		t.Fatalf("second upload status = %d, want 429", w.Result().StatusCode())
	}
	if n, _ := env.docs.CountByTenant(context.Background(), "t-free"); n != 1 {
		t.Errorf("rejected upload must not create a document, count=%d", n)
	}
}

// staleDocumentLedger 文档计数读到旧值，模拟并发上传都通过了只读检查
type staleDocumentLedger struct {
	*quota.MemoryLedger
}

func (l staleDocumentLedger) Get(ctx context.Context, tenantID string, res quota.Resource, window string) (int64, error) {
	if res == quota.ResourceDocuments {
		return 0, nil
	}
	return l.MemoryLedger.Get(ctx, tenantID, res, window)
}

func TestUploadDocument_ChargeRejectsOverLimit(t *testing.T) {
	env := newTestEnvWithLedger(t, nil, staleDocumentLedger{quota.NewMemoryLedger()})

	if w := env.upload("free-key", "first.txt", "hello"); w.Result().StatusCode() != 201 {
		t.Fatalf("first upload status = %d: %s", w.Result().StatusCode(), w.Result().Body())
	}
	w := env.upload("free-key", "second.txt", "again")
	if w.Result().StatusCode() != 429 {
		t.Fatalf("second upload status = %d, want 429: %s", w.Result().StatusCode(), w.Result().Body())
	}
	q := decode(t, w)["quota"].(map[string]any)
	if q["documents_used"] != float64(1) || q["documents_limit"] != float64(1) {
		t.Errorf("quota body: %v", q)
	}
	if n, _ := env.docs.CountByTenant(context.Background(), "t-free"); n != 1 {
		t.Errorf("rejected upload must remove its document, count=%d", n)
	}
	ctx := context.Background()
	first, _ := env.queue.Claim(ctx, "w")
	second, _ := env.queue.Claim(ctx, "w")
	if first == nil || second != nil {
		t.Errorf("expected exactly one queued job, got %+v %+v", first, second)
	}
}

func TestUploadDocument_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.upload("prem-key", "image.png", "\x89PNG"); w.Result().StatusCode() != 400 {
		t.Errorf("png upload status = %d, want 400", w.Result().StatusCode())
	}
	if w := env.upload("free-key", "big.txt", strings.Repeat("a", 100)); w.Result().StatusCode() != 413 {
		t.Errorf("oversize upload status = %d, want 413", w.Result().StatusCode())
	}
	if w := env.do("POST", "/api/v1/kb/documents", nil, apiKey("prem-key")); w.Result().StatusCode() != 400 {
		t.Errorf("missing file status = %d, want 400", w.Result().StatusCode())
	}
}

func TestDocuments_TenantIsolationAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.upload("prem-key", "a.txt", "alpha beta")
	if w.Result().StatusCode() != 201 {
		t.Fatalf("upload: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
	id := decode(t, w)["document"].(map[string]any)["id"].(string)

	if w := env.do("GET", "/api/v1/kb/documents/"+id, nil, apiKey("free-key")); w.Result().StatusCode() != 404 {
		t.Errorf("cross-tenant get status = %d, want 404", w.Result().StatusCode())
	}
	if w := env.do("GET", "/api/v1/kb/documents", nil, apiKey("prem-key")); decode(t, w)["total"] != float64(1) {
		t.Errorf("list: %s", w.Result().Body())
	}

	vec := make([]float64, 16)
	vec[0] = 1
	_ = env.index.InsertBatch(context.Background(), []*vector.Chunk{{TenantID: "t-prem", DocumentID: id, Text: "alpha beta", Vector: vec}})

	w = env.do("DELETE", "/api/v1/kb/documents/"+id, nil, apiKey("prem-key"))
	if w.Result().StatusCode() != 200 {
		t.Fatalf("delete: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
	if n, _ := env.index.CountByDocument(context.Background(), id); n != 0 {
		t.Errorf("chunks left after delete: %d", n)
	}
	if w := env.do("GET", "/api/v1/kb/documents/"+id, nil, apiKey("prem-key")); w.Result().StatusCode() != 404 {
		t.Errorf("get after delete status = %d", w.Result().StatusCode())
	}
}

func TestSendMessage_QuotaAndAnalytics(t *testing.T) {
	env := newTestEnv(t, nil)
	msg := []byte(`{"message":"what is the refund policy?"}`)
	jsonHeader := ut.Header{Key: "Content-Type", Value: "application/json"}

	for i := 0; i < 2; i++ {
		w := env.do("POST", "/api/v1/chat/send", msg, apiKey("free-key"), jsonHeader)
		if w.Result().StatusCode() != 200 {
			t.Fatalf("send %d: %d %s", i, w.Result().StatusCode(), w.Result().Body())
		}
		body := decode(t, w)
		if body["confidence"] != float64(0) {
			t.Errorf("confidence with no documents: %v", body["confidence"])
		}
		if !strings.HasPrefix(body["response"].(string), "echo: ") {
			t.Errorf("response: %v", body["response"])
		}
		q := body["quota"].(map[string]any)
		if q["messages_used"] != float64(i+1) {
			t.Errorf("messages_used = %v, want %d", q["messages_used"], i+1)
		}
	}

	w := env.do("POST", "/api/v1/chat/send", msg, apiKey("free-key"), jsonHeader)
	if w.Result().StatusCode() != 429 {
		t.Fatalf("third send status = %d, want 429", w.Result().StatusCode())
	}

	stats, err := env.analytics.Usage(context.Background(), "t-free", 1)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if stats.TotalMessages != 3 {
		t.Errorf("analytics entries = %d, want 3", stats.TotalMessages)
	}
	if stats.SuccessRate < 66 || stats.SuccessRate > 67 {
		t.Errorf("success rate = %v", stats.SuccessRate)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{`{"message":""}`, `{"message":"hi","context_limit":50}`, `not json`} {
		w := env.do("POST", "/api/v1/chat/send", []byte(body), apiKey("prem-key"), ut.Header{Key: "Content-Type", Value: "application/json"})
		if w.Result().StatusCode() != 400 {
			t.Errorf("body %q: status = %d, want 400", body, w.Result().StatusCode())
		}
	}
}

func TestSendMessage_FailureLogsError(t *testing.T) {
	env := newTestEnv(t, failingAnswerer{})
	w := env.do("POST", "/api/v1/chat/send", []byte(`{"message":"hi"}`), apiKey("prem-key"), ut.Header{Key: "Content-Type", Value: "application/json"})
	if w.Result().StatusCode() != 500 {
		t.Fatalf("status = %d, want 500", w.Result().StatusCode())
	}
	stats, _ := env.analytics.Usage(context.Background(), "t-prem", 1)
	if stats.TotalMessages != 1 || stats.TotalTokensOut != 0 || stats.SuccessRate != 0 {
		t.Errorf("error outcome not recorded: %+v", stats)
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	jsonHeader := ut.Header{Key: "Content-Type", Value: "application/json"}

	if w := env.do("POST", "/api/v1/admin/tenants/t-free/quota/reset", nil); w.Result().StatusCode() != 401 {
		t.Errorf("reset without token status = %d, want 401", w.Result().StatusCode())
	}
	if w := env.do("POST", "/api/v1/admin/login", []byte(`{"username":"admin","password":"bad"}`), jsonHeader); w.Result().StatusCode() != 401 {
		t.Errorf("bad login status = %d, want 401", w.Result().StatusCode())
	}

	w := env.do("POST", "/api/v1/admin/login", []byte(`{"username":"admin","password":"pw"}`), jsonHeader)
	if w.Result().StatusCode() != 200 {
		t.Fatalf("login: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
	token, _ := decode(t, w)["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	bearer := ut.Header{Key: "Authorization", Value: "Bearer " + token}

	// 用满 free 配额后由管理员重置
	msg := []byte(`{"message":"hello"}`)
	for i := 0; i < 3; i++ {
		env.do("POST", "/api/v1/chat/send", msg, apiKey("free-key"), jsonHeader)
	}
	if w := env.do("POST", "/api/v1/admin/tenants/t-free/quota/reset", nil, bearer); w.Result().StatusCode() != 200 {
		t.Fatalf("reset: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
	if w := env.do("POST", "/api/v1/chat/send", msg, apiKey("free-key"), jsonHeader); w.Result().StatusCode() != 200 {
		t.Errorf("send after reset status = %d, want 200", w.Result().StatusCode())
	}

	vec := make([]float64, 16)
	vec[1] = 1
	_ = env.index.InsertBatch(context.Background(), []*vector.Chunk{{TenantID: "t-prem", DocumentID: "d", Text: "x", Vector: vec}})
	w = env.do("DELETE", "/api/v1/admin/tenants/t-prem/chunks", nil, bearer)
	if w.Result().StatusCode() != 200 || decode(t, w)["chunks_deleted"] != float64(1) {
		t.Errorf("wipe: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(errors.New("x")) != 500 {
		t.Error("unknown error should map to 500")
	}
}
