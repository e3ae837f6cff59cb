package embedding

import (
	"context"
	"fmt"
)

// Embedder 向量化接口，返回与 texts 一一对应的向量
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// Dimension 返回向量维度
	Dimension() int
	// Model 返回模型名称
	Model() string
}

// EmbedOne 向量化单条文本
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float64, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder 返回 %d 个向量，期望 1 个", len(vecs))
	}
	return vecs[0], nil
}
