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

package splitter

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxTokens 默认每个切片的 token 预算
const DefaultMaxTokens = 400

// TokenSplitter 按词累积的 Token 切片器：贪心合并空白分隔的词，直到再加一个词会超出预算
type TokenSplitter struct {
	maxTokens int
}

// NewTokenSplitter 创建切片器；maxTokens<=0 时使用 DefaultMaxTokens
func NewTokenSplitter(maxTokens int) *TokenSplitter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &TokenSplitter{maxTokens: maxTokens}
}

// MaxTokens 返回切片预算
func (s *TokenSplitter) MaxTokens() int {
	return s.maxTokens
}

// Split 对文本做规范化后切片
func (s *TokenSplitter) Split(content string) []string {
	return Chunk(content, s.maxTokens)
}

// EstimateTokens 估算单词 token 数：ceil(字符数/4)
func EstimateTokens(word string) int {
	n := utf8.RuneCountInString(word)
	return (n + 3) / 4
}

// Normalize 统一换行，折叠连续空白为单个空格，去掉首尾空白
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Join(strings.Fields(text), " ")
}

// Chunk 切片。空输入返回 nil；超长单词独占一个切片，不截断也不丢弃。
func Chunk(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	count := 0
	for _, w := range words {
		cost := EstimateTokens(w)
		if len(current) > 0 && count+cost > maxTokens {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			count = 0
		}
		current = append(current, w)
		count += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
