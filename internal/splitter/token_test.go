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
	"testing"
)

func TestChunk_Empty(t *testing.T) {
	if got := Chunk("", 10); len(got) != 0 {
		t.Errorf("empty content should yield 0 chunks, got %d", len(got))
	}
	if got := Chunk(" \r\n\t  ", 10); len(got) != 0 {
		t.Errorf("whitespace-only content should yield 0 chunks, got %d", len(got))
	}
}

func TestChunk_ShortText(t *testing.T) {
	chunks := NewTokenSplitter(0).Split("hello   world\r\n")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for short text, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("chunk content: %q", chunks[0])
	}
}

func TestChunk_GreedyBudget(t *testing.T) {
	// 每个词 1 token，预算 3 -> 3+3+3+1
	chunks := Chunk("a b c d e f g h i j", 3)
	want := []string{"a b c", "d e f", "g h i", "j"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks: got %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunk_OverLongWord(t *testing.T) {
	long := strings.Repeat("x", 40) // 10 tokens
	chunks := Chunk("ab "+long+" cd", 4)
	want := []string{"ab", long, "cd"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks: got %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, chunks[i], want[i])
		}
	}

	// 首个词即超长：直接独占
	chunks = Chunk(long, 4)
	if len(chunks) != 1 || chunks[0] != long {
		t.Errorf("single over-long word: %v", chunks)
	}
}

func TestChunk_ReconstructsNormalizedInput(t *testing.T) {
	text := "  The quick\tbrown fox\r\njumps over\n\nthe lazy dog; supercalifragilisticexpialidocious words here.  "
	for _, budget := range []int{1, 2, 3, 5, 8, 400} {
		chunks := Chunk(text, budget)
		if got := strings.Join(chunks, " "); got != Normalize(text) {
			t.Errorf("budget %d: reconstruction %q != %q", budget, got, Normalize(text))
		}
		for _, c := range chunks {
			cost := 0
			words := strings.Fields(c)
			for _, w := range words {
				cost += EstimateTokens(w)
			}
			if cost > budget && len(words) != 1 {
				t.Errorf("budget %d: chunk %q costs %d", budget, c, cost)
			}
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	a := Chunk(text, 50)
	b := Chunk(text, 50)
	if strings.Join(a, "|") != strings.Join(b, "|") {
		t.Error("Chunk should be deterministic")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2, "abcdefgh": 2, "你好世界吗": 2}
	for w, want := range cases {
		if got := EstimateTokens(w); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", w, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  a\r\nb\rc \t d  "); got != "a b c d" {
		t.Errorf("Normalize: %q", got)
	}
}
