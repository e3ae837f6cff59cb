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

package vector

import (
	"context"
	"time"
)

// Index 租户隔离的切片向量索引
type Index interface {
	// Insert 写入单个切片，返回切片 ID
	Insert(ctx context.Context, chunk *Chunk) (string, error)
	// InsertBatch 原子写入一批切片：全部成功或全部不可见
	InsertBatch(ctx context.Context, chunks []*Chunk) error
	// Search 在租户自己的未过期切片中检索，按得分降序、同分按写入顺序；只返回 score >= minScore 的结果，不补齐
	Search(ctx context.Context, tenantID string, query []float64, k int, minScore float64) ([]*SearchResult, error)
	// DeleteByDocument 删除文档的全部切片
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	// DeleteByTenant 删除租户的全部切片
	DeleteByTenant(ctx context.Context, tenantID string) (int64, error)
	// PurgeExpired 删除 expiresAt 早于等于 now 的切片
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	// CountByDocument 统计文档的切片数
	CountByDocument(ctx context.Context, documentID string) (int64, error)
	// Close 关闭存储连接
	Close() error
}

// Chunk 切片及其向量；写入后不可变
type Chunk struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	DocumentID string     `json:"document_id"`
	ChunkIndex int        `json:"chunk_index"`
	Text       string     `json:"text"`
	Vector     []float64  `json:"vector"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired 判断切片在 now 时是否已过期
func (c *Chunk) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// SearchResult 搜索结果
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"` // 1 - 余弦距离，限定在 [0,1]
}
