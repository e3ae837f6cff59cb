package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		IngestJobDuration, IngestJobTotal, IngestRetryTotal, IngestChunksTotal,
		WorkerBusy, ChunksPurgedTotal,
		QuotaDecisionTotal, RetrievalConfidence, AnswerDuration,
		LLMTokensTotal, ModelCallDuration,
	)
}

var IngestJobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tenantrag_ingest_job_duration_seconds",
		Help:    "入库任务单次尝试耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"status"},
)

var IngestJobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenantrag_ingest_job_total",
		Help: "入库任务终态总数",
	},
	[]string{"status"}, // completed | failed
)

var IngestRetryTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tenantrag_ingest_retry_total",
		Help: "入库任务重新入队次数",
	},
)

var IngestChunksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tenantrag_ingest_chunks_total",
		Help: "写入向量索引的切片数",
	},
)

var WorkerBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "tenantrag_worker_busy",
		Help: "当前正在执行的入库任务数",
	},
	[]string{"worker_id"},
)

var ChunksPurgedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenantrag_chunks_purged_total",
		Help: "删除的切片数",
	},
	[]string{"reason"}, // expired | failed_attempt | document_deleted | tenant_deleted
)

var QuotaDecisionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenantrag_quota_decision_total",
		Help: "配额准入判定次数",
	},
	[]string{"resource", "decision"}, // decision: admitted | rejected
)

var RetrievalConfidence = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "tenantrag_retrieval_confidence",
		Help:    "检索置信度分布",
		Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	},
)

var AnswerDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tenantrag_answer_duration_seconds",
		Help:    "问答请求耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenantrag_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

var ModelCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tenantrag_model_call_duration_seconds",
		Help:    "模型调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "status"}, // kind: embed | complete
)

func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
