package llm

import (
	"context"
)

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completion 一次补全调用的结果与 token 用量
type Completion struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Completer 补全模型
type Completer interface {
	// Complete maxTokens 为回答的 token 上限
	Complete(ctx context.Context, messages []Message, maxTokens int) (*Completion, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// EstimateTokens 粗略估算 token 数（4 字符 ≈ 1 token，向上取整）
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// messagesText 将消息列表合并为单一字符串，用于 token 估算。
func messagesText(msgs []Message) string {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	buf := make([]byte, 0, total)
	for _, m := range msgs {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}

// fillUsage 提供方未返回用量时按字符数估算
func fillUsage(c *Completion, msgs []Message) {
	if c.PromptTokens == 0 {
		c.PromptTokens = EstimateTokens(messagesText(msgs))
	}
	if c.CompletionTokens == 0 {
		c.CompletionTokens = EstimateTokens(c.Text)
	}
	if c.TotalTokens == 0 {
		c.TotalTokens = c.PromptTokens + c.CompletionTokens
	}
}
