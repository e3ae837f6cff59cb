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

package object

import (
	"bytes"
	"context"
	"testing"

	apperrors "tenant-rag/pkg/errors"
)

func TestMemoryStore_Put_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Put(ctx, "t1/d1/a.txt", bytes.NewReader([]byte("hello")), 5, "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := s.Get(ctx, "t1/d1/a.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "hello" {
		t.Errorf("Get: got %q", string(b))
	}
	if ok, _ := s.Exists(ctx, "t1/d1/a.txt"); !ok {
		t.Error("Exists should be true after Put")
	}
	if err := s.Delete(ctx, "t1/d1/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "t1/d1/a.txt"); !apperrors.Is(err, apperrors.KindNotFound) {
		t.Errorf("Get after Delete: want not found, got %v", err)
	}
	if err := s.Delete(ctx, "t1/d1/a.txt"); err != nil {
		t.Errorf("Delete missing should not error: %v", err)
	}
}

func TestKey_Sanitize(t *testing.T) {
	cases := map[string]string{
		"report.pdf":             "t1/d1/report.pdf",
		"../../etc/passwd":       "t1/d1/passwd",
		"C:\\docs\\my file.docx": "t1/d1/my_file.docx",
		"":                       "t1/d1/upload",
		"..":                     "t1/d1/upload",
	}
	for in, want := range cases {
		if got := Key("t1", "d1", in); got != want {
			t.Errorf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}
