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

package metadata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "tenant-rag/pkg/errors"
)

// MemoryStore 内存元数据存储实现
type MemoryStore struct {
	docs map[string]*Document
	mu   sync.RWMutex
	now  func() time.Time
}

// NewMemoryStore 创建新的内存元数据存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*Document),
		now:  time.Now,
	}
}

// Create 创建文档元数据
func (s *MemoryStore) Create(ctx context.Context, doc *Document) error {
	if doc.TenantID == "" {
		return apperrors.Validation("metadata.Create", "tenant_id 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document with ID %s already exists", doc.ID)
	}

	now := s.now().UTC()
	doc.Status = StatusPending
	doc.CreatedAt = now
	doc.UpdatedAt = now

	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

// Get 根据 ID 获取文档元数据，返回副本
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, apperrors.NotFound("metadata.Get", fmt.Sprintf("document %s", id))
	}
	cp := *doc
	return &cp, nil
}

// ListByTenant 按创建时间倒序列出租户文档
func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string, page *Pagination) ([]*Document, error) {
	s.mu.RLock()
	var results []*Document
	for _, doc := range s.docs {
		if doc.TenantID == tenantID {
			cp := *doc
			results = append(results, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	offset, limit := page.normalize()
	if offset >= len(results) {
		return []*Document{}, nil
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end], nil
}

// CountByTenant 统计租户文档数量
func (s *MemoryStore) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.docs {
		if doc.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// TransitionStatus 比较并切换状态
func (s *MemoryStore) TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return false, apperrors.NotFound("metadata.TransitionStatus", fmt.Sprintf("document %s", id))
	}
	if doc.Status != from {
		return false, nil
	}
	doc.Status = to
	doc.UpdatedAt = s.now().UTC()
	return true, nil
}

// MarkCompleted 写入切片数并置为 completed
func (s *MemoryStore) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return apperrors.NotFound("metadata.MarkCompleted", fmt.Sprintf("document %s", id))
	}
	if doc.Status != StatusProcessing {
		return fmt.Errorf("document %s is %s, expected processing", id, doc.Status)
	}
	doc.Status = StatusCompleted
	doc.ChunkCount = chunkCount
	doc.ErrorMessage = ""
	doc.UpdatedAt = s.now().UTC()
	return nil
}

// MarkFailed 置为 failed，切片数归零
func (s *MemoryStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return apperrors.NotFound("metadata.MarkFailed", fmt.Sprintf("document %s", id))
	}
	doc.Status = StatusFailed
	doc.ChunkCount = 0
	doc.ErrorMessage = errMsg
	doc.UpdatedAt = s.now().UTC()
	return nil
}

// Delete 删除租户下的文档
func (s *MemoryStore) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists || doc.TenantID != tenantID {
		return false, nil
	}
	delete(s.docs, id)
	return true, nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}
