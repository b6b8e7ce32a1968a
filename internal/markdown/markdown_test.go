package markdown

import (
	"strings"
	"testing"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "this is **important** text", "this is important text"},
		{"bold underscores", "this is __important__ text", "this is important text"},
		{"italic", "an *emphasized* word", "an emphasized word"},
		{"inline code", "run `go test` now", "run go test now"},
		{"code fence", "before\n```go\nfunc main() {}\n```\nafter", "before\nfunc main() {}\nafter"},
		{"header", "# Title\nbody", "Title\nbody"},
		{"link keeps text", "see [the docs](https://example.com) here", "see the docs here"},
		{"bullet list", "- first\n- second", "• first\n• second"},
		{"plain text untouched", "nothing special here", "nothing special here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChunkShortTextIsSinglePiece(t *testing.T) {
	chunks := Chunk("short reply")
	if len(chunks) != 1 || chunks[0] != "short reply" {
		t.Errorf("Chunk = %v, want single piece", chunks)
	}
}

func TestChunkEmptyText(t *testing.T) {
	if chunks := Chunk(""); chunks != nil {
		t.Errorf("Chunk(\"\") = %v, want nil", chunks)
	}
}

func TestChunkPrefersNewlineBoundaries(t *testing.T) {
	lines := strings.Repeat("line of text\n", 10)
	chunks := chunk(lines, 50)

	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d has %d chars, want <= 50", i, len(c))
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d has ragged edges: %q", i, c)
		}
	}

	joined := strings.Join(chunks, "\n")
	if !strings.Contains(joined, "line of text") {
		t.Error("chunking lost content")
	}
}

func TestChunkFinalPieceHasCleanEdges(t *testing.T) {
	chunks := chunk("first line\nsecond line\n", 15)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, c := range chunks {
		if strings.HasSuffix(c, "\n") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk %d has ragged edges: %q", i, c)
		}
	}
	if chunks[1] != "second line" {
		t.Errorf("final chunk = %q, want %q", chunks[1], "second line")
	}
}

func TestChunkHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 120)
	chunks := chunk(text, 50)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d has %d chars, want <= 50", i, len(c))
		}
		total += len(c)
	}
	if total != 120 {
		t.Errorf("chunks total %d chars, want 120", total)
	}
}
