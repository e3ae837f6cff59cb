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

package tenant

import (
	"context"
	"sync"

	"tenant-rag/pkg/auth"
	apperrors "tenant-rag/pkg/errors"
)

// MemoryStore 进程内租户存储
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*auth.Tenant
	keys    map[string]string // key hash -> tenant id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*auth.Tenant), keys: make(map[string]string)}
}

// Get 实现 Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*auth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, apperrors.NotFound("tenant.Get", "tenant "+id)
	}
	cp := *t
	return &cp, nil
}

// GetByAPIKey 实现 Store
func (s *MemoryStore) GetByAPIKey(ctx context.Context, apiKey string) (*auth.Tenant, error) {
	s.mu.RLock()
	id, ok := s.keys[HashAPIKey(apiKey)]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("tenant.GetByAPIKey", "invalid api key")
	}
	return s.Get(ctx, id)
}

// Upsert 实现 Store
func (s *MemoryStore) Upsert(ctx context.Context, t *auth.Tenant, apiKey string) error {
	if t == nil || t.ID == "" {
		return apperrors.Validation("tenant.Upsert", "tenant id is required")
	}
	cp := *t
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = &cp
	if apiKey != "" {
		s.keys[HashAPIKey(apiKey)] = t.ID
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
