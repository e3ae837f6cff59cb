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
	"strings"
	"time"

	"tenant-rag/pkg/auth"
)

// Resource 计数的资源类型
type Resource string

const (
	ResourceMessages  Resource = "messages"
	ResourceDocuments Resource = "documents"
	ResourceTokens    Resource = "tokens"
)

const (
	dayTTL   = 24 * time.Hour
	monthTTL = 30 * 24 * time.Hour
)

// Window 返回计数窗口 key 与过期时间。premium 的 messages 按自然月（YYYY-MM），
// 其余按自然日（YYYY-MM-DD），统一使用 UTC。
func Window(plan auth.Plan, res Resource, now time.Time) (string, time.Duration) {
	now = now.UTC()
	if plan == auth.PlanPremium && res == ResourceMessages {
		return now.Format("2006-01"), monthTTL
	}
	return now.Format("2006-01-02"), dayTTL
}

// CounterKey quota:{tenant}:{resource}:{window}
func CounterKey(tenantID string, res Resource, window string) string {
	return "quota:" + tenantID + ":" + string(res) + ":" + window
}

func tenantPrefix(tenantID string) string {
	return "quota:" + tenantID + ":"
}

// ownedBy key 属于该租户：前缀之后只剩 {resource}:{window}
func ownedBy(key, tenantID string) bool {
	prefix := tenantPrefix(tenantID)
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	return strings.Count(key[len(prefix):], ":") == 1
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// scanPattern SCAN MATCH 模式，租户 id 中的通配符按字面匹配
func scanPattern(tenantID string) string {
	return globEscaper.Replace(tenantPrefix(tenantID)) + "*"
}
