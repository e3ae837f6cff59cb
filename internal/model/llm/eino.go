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
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoCompleter 基于 eino ChatModel 的补全实现
type EinoCompleter struct {
	chat     model.BaseChatModel
	provider string
	model    string
}

// NewEinoCompleter 包装任意 eino ChatModel
func NewEinoCompleter(chat model.BaseChatModel, provider, modelName string) *EinoCompleter {
	return &EinoCompleter{chat: chat, provider: provider, model: modelName}
}

// NewEinoOpenAICompleter 使用 eino-ext 的 OpenAI ChatModel
func NewEinoOpenAICompleter(ctx context.Context, modelName, apiKey, baseURL string) (*EinoCompleter, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return NewEinoCompleter(chatModel, "openai", modelName), nil
}

func toSchema(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

// Complete 实现 Completer
func (c *EinoCompleter) Complete(ctx context.Context, messages []Message, maxTokens int) (*Completion, error) {
	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	msg, err := c.chat.Generate(ctx, toSchema(messages), opts...)
	if err != nil {
		return nil, fmt.Errorf("eino chat model generate: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("eino chat model 没有返回结果")
	}
	out := &Completion{Text: msg.Content}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		out.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
		out.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
		out.TotalTokens = msg.ResponseMeta.Usage.TotalTokens
	}
	fillUsage(out, messages)
	return out, nil
}

// Model 返回模型名称
func (c *EinoCompleter) Model() string { return c.model }

// Provider 返回提供商名称
func (c *EinoCompleter) Provider() string { return c.provider }
