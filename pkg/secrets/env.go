// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store；key 会转为大写
func NewEnvStore() Store {
	return &envStore{}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(strings.ToUpper(key))
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", strings.ToUpper(key))
	}
	return value, nil
}
