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
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 内存向量索引；切片按写入顺序保存在 slice 中，天然提供稳定的同分顺序
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    []*Chunk
	dimension int
	now       func() time.Time
}

// NewMemoryStore 创建新的内存向量索引；dimension<=0 时不校验维度
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, now: time.Now}
}

func (s *MemoryStore) validate(c *Chunk) error {
	if c.TenantID == "" || c.DocumentID == "" {
		return fmt.Errorf("chunk tenant_id 与 document_id 不能为空")
	}
	if len(c.Vector) == 0 {
		return fmt.Errorf("chunk vector 不能为空")
	}
	if s.dimension > 0 && len(c.Vector) != s.dimension {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(c.Vector), s.dimension)
	}
	return nil
}

func (s *MemoryStore) prepare(c *Chunk) *Chunk {
	cp := *c
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.Vector = append([]float64(nil), c.Vector...)
	return &cp
}

// Insert 写入单个切片
func (s *MemoryStore) Insert(ctx context.Context, chunk *Chunk) (string, error) {
	if err := s.validate(chunk); err != nil {
		return "", err
	}
	cp := s.prepare(chunk)
	s.mu.Lock()
	s.chunks = append(s.chunks, cp)
	s.mu.Unlock()
	return cp.ID, nil
}

// InsertBatch 先整体校验再一次性追加
func (s *MemoryStore) InsertBatch(ctx context.Context, chunks []*Chunk) error {
	prepared := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		if err := s.validate(c); err != nil {
			return err
		}
		prepared = append(prepared, s.prepare(c))
	}
	s.mu.Lock()
	s.chunks = append(s.chunks, prepared...)
	s.mu.Unlock()
	for i, c := range prepared {
		chunks[i].ID = c.ID
	}
	return nil
}

// Search 搜索向量
func (s *MemoryStore) Search(ctx context.Context, tenantID string, query []float64, k int, minScore float64) ([]*SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.dimension > 0 && len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), s.dimension)
	}
	now := s.now()

	s.mu.RLock()
	var results []*SearchResult
	for _, c := range s.chunks {
		if c.TenantID != tenantID || c.Expired(now) {
			continue
		}
		score := Score(query, c.Vector)
		if score < minScore {
			continue
		}
		results = append(results, &SearchResult{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      score,
		})
	}
	s.mu.RUnlock()

	// 稳定排序：同分保持写入顺序
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) deleteWhere(match func(*Chunk) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	var n int64
	for _, c := range s.chunks {
		if match(c) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(s.chunks); i++ {
		s.chunks[i] = nil
	}
	s.chunks = kept
	return n
}

// DeleteByDocument 删除文档的全部切片
func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	return s.deleteWhere(func(c *Chunk) bool { return c.DocumentID == documentID }), nil
}

// DeleteByTenant 删除租户的全部切片
func (s *MemoryStore) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	return s.deleteWhere(func(c *Chunk) bool { return c.TenantID == tenantID }), nil
}

// PurgeExpired 删除已过期切片
func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(c *Chunk) bool { return c.Expired(now) }), nil
}

// CountByDocument 统计文档的切片数
func (s *MemoryStore) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}

// Score 余弦相似度（即 1 - 余弦距离），限定在 [0,1]
func Score(a, b []float64) float64 {
	sim := cosineSimilarity(a, b)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	dotProduct := 0.0
	normA := 0.0
	normB := 0.0

	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
