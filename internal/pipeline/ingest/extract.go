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

package ingest

import (
	"fmt"
	"strings"

	apperrors "tenant-rag/pkg/errors"
)

// 支持的 mime type
const (
	MimeText   = "text/plain"
	MimePDF    = "application/pdf"
	MimeMSWord = "application/msword"
	MimeDOCX   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor 从原始字节中提取纯文本
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc 函数形式的 Extractor
type ExtractorFunc func(data []byte) (string, error)

// Extract 实现 Extractor
func (f ExtractorFunc) Extract(data []byte) (string, error) { return f(data) }

// Registry 按 mime type 选择提取器
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry 注册内置提取器：text/plain、msword、pdf、docx
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(MimeText, ExtractorFunc(extractUTF8))
	r.Register(MimeMSWord, ExtractorFunc(extractUTF8))
	r.Register(MimePDF, ExtractorFunc(extractPDFText))
	r.Register(MimeDOCX, ExtractorFunc(extractDOCXText))
	return r
}

// Register 注册或覆盖提取器
func (r *Registry) Register(mimeType string, e Extractor) {
	r.extractors[mimeType] = e
}

// Supports 是否支持该 mime type（忽略 ; charset 等参数）
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.extractors[baseMime(mimeType)]
	return ok
}

// Extract 不支持的类型或内容无法解析时返回 ValidationError
func (r *Registry) Extract(mimeType string, data []byte) (string, error) {
	e, ok := r.extractors[baseMime(mimeType)]
	if !ok {
		return "", apperrors.Validation("ingest.Extract", fmt.Sprintf("unsupported file type: %s", mimeType))
	}
	text, err := e.Extract(data)
	if err != nil {
		return "", apperrors.E(apperrors.KindValidation, "ingest.Extract", "extract "+baseMime(mimeType), err)
	}
	return text, nil
}

func baseMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// extractUTF8 按 UTF-8 读取，非法字节替换为空格
func extractUTF8(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), " "), nil
}
