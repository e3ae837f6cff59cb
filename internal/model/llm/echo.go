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

package llm

import (
	"context"
	"strings"
)

// EchoCompleter 开发环境使用：回显问题并附上上下文摘要，不调用外部模型
type EchoCompleter struct{}

// Complete 实现 Completer
func (EchoCompleter) Complete(ctx context.Context, messages []Message, maxTokens int) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	text := last
	if idx := strings.LastIndex(last, "Question: "); idx >= 0 {
		text = "echo: " + last[idx+len("Question: "):]
	}
	if maxTokens > 0 && len(text) > maxTokens*4 {
		text = text[:maxTokens*4]
	}
	out := &Completion{Text: text}
	fillUsage(out, messages)
	return out, nil
}

// Model 返回模型名称
func (EchoCompleter) Model() string { return "echo" }

// Provider 返回提供商名称
func (EchoCompleter) Provider() string { return "echo" }
