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
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tenant-rag/pkg/errors"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRegistry_Text(t *testing.T) {
	r := NewRegistry()
	text, err := r.Extract("text/plain; charset=utf-8", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = r.Extract(MimeMSWord, []byte("ok\xffdone"))
	require.NoError(t, err)
	assert.Equal(t, "ok done", text)
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Supports("image/png"))
	assert.True(t, r.Supports(MimePDF))
	_, err := r.Extract("image/png", []byte{1, 2, 3})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "got %v", err)
}

func TestRegistry_DOCX(t *testing.T) {
	xmlDoc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r></w:p>
  </w:body>
</w:document>`
	text, err := NewRegistry().Extract(MimeDOCX, buildDOCX(t, xmlDoc))
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond", text)
}

func TestRegistry_CorruptInputIsValidation(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(MimeDOCX, []byte("not a zip"))
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "docx: %v", err)
	_, err = r.Extract(MimePDF, []byte("not a pdf"))
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "pdf: %v", err)
}
