// Copyright 2026 fanjia1024
// In-memory secret store (dev and tests)

package secrets

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 创建内存 secret store
func NewMemoryStore(initial map[string]string) Store {
	m := make(map[string]string, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &memoryStore{secrets: m}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return v, nil
}
