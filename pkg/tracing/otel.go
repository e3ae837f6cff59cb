// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	// 创建 OTLP exporter
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	// 创建 resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	// 创建 tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartJobSpan 开始 job execution span
// Tracer 返回本服务的 tracer
func Tracer() trace.Tracer {
	return otel.Tracer("tenant-rag")
}

// StartIngestSpan 入库任务单次尝试
func StartIngestSpan(ctx context.Context, documentID, tenantID string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "ingest.process",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.String("tenant.id", tenantID),
			attribute.Int("ingest.attempt", attempt),
		),
	)
}

// StartAnswerSpan 检索问答
func StartAnswerSpan(ctx context.Context, tenantID string, maxTokens int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "retrieval.answer",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("llm.max_tokens", maxTokens),
		),
	)
}

// StartObjectSpan 对象存储调用
func StartObjectSpan(ctx context.Context, op, bucket, key string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "object."+op,
		trace.WithAttributes(
			attribute.String("object.bucket", bucket),
			attribute.String("object.key", key),
		),
	)
}

// EndSpan 记录错误并结束 span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
