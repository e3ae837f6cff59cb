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

package quota

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"tenant-rag/pkg/config"
)

// NewLedger 根据配置创建计数器
func NewLedger(cfg config.QuotaConfig, client redis.UniversalClient) (Ledger, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryLedger(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("quota 类型为 redis 但未配置 quota.addr")
		}
		return NewRedisLedger(client), nil
	default:
		return nil, fmt.Errorf("不支持的 quota 类型: %s", cfg.Type)
	}
}
