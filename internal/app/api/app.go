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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"tenant-rag/internal/api/http"
	"tenant-rag/internal/api/http/middleware"
	"tenant-rag/internal/app"
	"tenant-rag/internal/model/embedding"
	"tenant-rag/internal/model/llm"
	"tenant-rag/internal/pipeline/ingest"
	"tenant-rag/internal/pipeline/query"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 Router、Handler、Middleware；存储均来自 Bootstrap）
type App struct {
	boot         *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(ctx context.Context, boot *app.Bootstrap) (*App, error) {
	cfg := boot.Config

	completer, err := llm.NewFromConfig(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("初始化 LLM 失败: %w", err)
	}
	retriever, err := query.NewIndexRetriever(&query.IndexRetrieverConfig{
		Index:            boot.Index,
		Embedder:         embedding.NewEinoAdapter(boot.Embedder),
		DefaultTopK:      cfg.Retrieval.TopK,
		DefaultThreshold: cfg.Retrieval.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化检索器失败: %w", err)
	}
	engine := query.NewEngine(retriever, completer, cfg.Retrieval.TopK, cfg.Retrieval.MinScore, boot.Logger)

	handler := http.NewHandler(http.Deps{
		Documents: boot.Documents,
		Objects:   boot.Objects,
		Index:     boot.Index,
		Queue:     boot.Queue,
		Quota:     boot.Quota,
		Answerer:  engine,
		Analytics: boot.Analytics,
		Mimes:     ingest.NewRegistry(),
		Logger:    boot.Logger,
	})

	deps := http.RouterDeps{
		Handler:    handler,
		Middleware: middleware.NewMiddleware(cfg.API, boot.Logger),
		Tenants:    boot.Resolver,
		Admitter:   boot.Quota,
		Logger:     boot.Logger,
	}
	if cfg.API.Middleware.JWTKey != "" {
		adminJWT, err := middleware.NewAdminJWT(cfg.API.Middleware)
		if err != nil {
			return nil, fmt.Errorf("初始化管理员 JWT 失败: %w", err)
		}
		deps.AdminJWT = adminJWT
	} else {
		boot.Logger.Warn("未配置 api.middleware.jwt_key，管理员接口不可用")
	}

	boot.Logger.Info("API 应用装配完成", "llm", completer.Provider()+"/"+completer.Model())
	return &App{boot: boot, router: http.NewRouter(deps)}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"；阻塞直到 Shutdown
func (a *App) Run(addr string) error {
	cfg := a.boot.Config
	a.boot.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	tracing := cfg.Monitoring.Tracing
	exportEndpoint := tracing.ExportEndpoint
	if exportEndpoint == "" {
		exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if tracing.Enable && exportEndpoint != "" {
		serviceName := tracing.ServiceName
		if serviceName == "" {
			serviceName = "tenant-rag-api"
		}
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(exportEndpoint),
		}
		if tracing.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		tracerOpt, tracerCfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
		a.boot.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.hertz != nil {
		err = a.hertz.Shutdown(ctx)
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	a.boot.Close()
	return err
}
