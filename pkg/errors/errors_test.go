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
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrapf(err, "id=%s", "a")
	if wrapped == nil {
		t.Fatal("Wrapf(err, ...) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"validation", Validation("extract", "unsupported mime type"), KindValidation},
		{"wrapped transient", Wrap(Transient("embed", errors.New("timeout")), "attempt"), KindTransientIO},
		{"index write", IndexWrite("insert", errors.New("conn reset")), KindIndexWrite},
		{"quota", QuotaExceeded("admit", "limit"), KindQuotaExceeded},
		{"not found sentinel", Wrap(ErrNotFound, "document"), KindNotFound},
		{"not found kind", NotFound("get", "document d1"), KindNotFound},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("%s: KindOf = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(Validation("extract", "bad")) {
		t.Error("validation error should not be retryable")
	}
	if !IsRetryable(Transient("download", errors.New("timeout"))) {
		t.Error("transient error should be retryable")
	}
	if !IsRetryable(IndexWrite("insert", errors.New("x"))) {
		t.Error("index write error should be retryable")
	}
	if !IsRetryable(errors.New("unknown")) {
		t.Error("unknown error should be retryable")
	}
}

func TestError_Message(t *testing.T) {
	err := Transient("embed", errors.New("timeout"))
	if err.Error() != "embed: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
	base := errors.New("boom")
	err = E(KindIndexWrite, "insert", "batch", base)
	if err.Error() != "insert: batch: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("E should unwrap to base")
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(QuotaExceeded("op", "limit reached")); got != "limit reached" {
		t.Errorf("MessageOf: got %q", got)
	}
	if got := MessageOf(Transient("op", fmt.Errorf("boom"))); got != "op: boom" {
		t.Errorf("MessageOf without message: got %q", got)
	}
	if MessageOf(nil) != "" {
		t.Error("MessageOf(nil) should be empty")
	}
}
