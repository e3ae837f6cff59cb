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

// devops 启动 Eino Dev 调试服务并注册问答 Graph（检索 -> 生成），供 IDE 插件（Eino Dev）连接后进行可视化调试。
// 存储与模型按 configs/api.yaml 装配；使用：go run ./cmd/devops，在 IDE 中配置连接地址 127.0.0.1:52538。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino-ext/devops"
	einoretriever "github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"tenant-rag/internal/app"
	"tenant-rag/internal/model/embedding"
	"tenant-rag/internal/model/llm"
	"tenant-rag/internal/pipeline/query"
	"tenant-rag/pkg/config"
)

// DevInput 调试输入
type DevInput struct {
	TenantID  string `json:"tenant_id"`
	Query     string `json:"query"`
	MaxTokens int    `json:"max_tokens"`
}

// DevOutput 调试输出
type DevOutput struct {
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Sources    []query.Source `json:"sources"`
}

type retrieved struct {
	in   *DevInput
	docs []*schema.Document
}

// registerAnswerGraph 与 query.Engine 相同的两段式流程，拆成节点便于观察中间结果
func registerAnswerGraph(ctx context.Context, r einoretriever.Retriever, completer llm.Completer, cfg config.RetrievalConfig) error {
	g := compose.NewGraph[*DevInput, *DevOutput]()

	_ = g.AddLambdaNode("retrieve", compose.InvokableLambda(func(ctx context.Context, in *DevInput) (*retrieved, error) {
		if in == nil || in.Query == "" || in.TenantID == "" {
			return nil, fmt.Errorf("tenant_id 与 query 不能为空")
		}
		docs, err := r.Retrieve(ctx, in.Query,
			einoretriever.WithIndex(in.TenantID),
			einoretriever.WithTopK(cfg.TopK),
			einoretriever.WithScoreThreshold(cfg.MinScore),
		)
		if err != nil {
			return nil, err
		}
		return &retrieved{in: in, docs: docs}, nil
	}))

	_ = g.AddLambdaNode("answer", compose.InvokableLambda(func(ctx context.Context, rv *retrieved) (*DevOutput, error) {
		scores := make([]float64, len(rv.docs))
		texts := make([]string, len(rv.docs))
		out := &DevOutput{Sources: make([]query.Source, 0, len(rv.docs))}
		for i, d := range rv.docs {
			scores[i] = d.Score()
			texts[i] = d.Content
			out.Sources = append(out.Sources, query.Source{ChunkID: d.ID, Score: d.Score()})
		}
		maxTokens := rv.in.MaxTokens
		if maxTokens < query.MinAnswerTokens {
			maxTokens = query.MinAnswerTokens
		}
		c, err := completer.Complete(ctx, query.BuildMessages(texts, rv.in.Query), maxTokens)
		if err != nil {
			return nil, err
		}
		out.Answer = c.Text
		out.Confidence = query.Confidence(scores)
		return out, nil
	}))

	_ = g.AddEdge(compose.START, "retrieve")
	_ = g.AddEdge("retrieve", "answer")
	_ = g.AddEdge("answer", compose.END)

	if _, err := g.Compile(ctx, compose.WithGraphName("tenant_rag_answer")); err != nil {
		return fmt.Errorf("compile answer graph: %w", err)
	}
	return nil
}

func main() {
	ctx := context.Background()

	// 1. 先初始化 Eino Dev 调试服务（必须在任何 Compile 之前调用）
	if err := devops.Init(ctx); err != nil {
		log.Fatalf("[eino dev] init failed: %v", err)
	}

	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Printf("[eino dev] 未加载配置，使用默认内存后端: %v", err)
		cfg = config.Default()
	}
	boot, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("[eino dev] bootstrap: %v", err)
	}
	defer boot.Close()

	completer, err := llm.NewFromConfig(ctx, cfg.Model)
	if err != nil {
		log.Fatalf("[eino dev] llm: %v", err)
	}
	r, err := query.NewIndexRetriever(&query.IndexRetrieverConfig{
		Index:            boot.Index,
		Embedder:         embedding.NewEinoAdapter(boot.Embedder),
		DefaultTopK:      cfg.Retrieval.TopK,
		DefaultThreshold: cfg.Retrieval.MinScore,
	})
	if err != nil {
		log.Fatalf("[eino dev] retriever: %v", err)
	}

	// 2. 注册并编译问答图，插件会通过已编译的 artifact 列表展示
	if err := registerAnswerGraph(ctx, r, completer, cfg.Retrieval); err != nil {
		log.Fatalf("[eino dev] register answer graph: %v", err)
	}

	log.Println("[eino dev] server listening on 127.0.0.1:52538; open Eino Dev in IDE and configure this address to debug")
	log.Println("[eino dev] press Ctrl+C to exit")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Println("[eino dev] shutting down")
}
