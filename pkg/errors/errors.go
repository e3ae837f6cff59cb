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

package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// Kind 错误类别，决定重试与对外状态码
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTransientIO
	KindQuotaExceeded
	KindIndexWrite
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransientIO:
		return "transient_io"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindIndexWrite:
		return "index_write"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error 带类别的错误
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E 构造带类别的错误
func E(kind Kind, op, message string, err error) error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation 输入非法（如不支持的 mime type），不重试
func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Transient 存储或模型调用的临时失败，可按退避重试
func Transient(op string, err error) error {
	return &Error{Kind: KindTransientIO, Op: op, Err: err}
}

// QuotaExceeded 配额耗尽，不重试、不计数
func QuotaExceeded(op, message string) error {
	return &Error{Kind: KindQuotaExceeded, Op: op, Message: message}
}

// IndexWrite 向量写入失败，重试前需清理部分切片
func IndexWrite(op string, err error) error {
	return &Error{Kind: KindIndexWrite, Op: op, Err: err}
}

// NotFound 资源不存在
func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message, Err: ErrNotFound}
}

// KindOf 返回错误链上第一个 *Error 的类别
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrInvalidArg) {
		return KindValidation
	}
	return KindUnknown
}

// MessageOf 返回错误链上第一个 *Error 的 Message，没有时返回 err.Error()
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Is 判断错误是否属于某类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable 入库任务是否可以重试；未知错误按临时错误处理
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindQuotaExceeded, KindNotFound:
		return false
	default:
		return err != nil
	}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
