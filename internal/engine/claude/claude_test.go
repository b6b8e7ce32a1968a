package claude

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/buildoak/moltbook/internal/engine"
	"github.com/buildoak/moltbook/internal/gatekeeper"
	"github.com/buildoak/moltbook/internal/sandbox"
	"github.com/buildoak/moltbook/internal/tools"
)

func TestTranscriptStoreRoundTrip(t *testing.T) {
	store, err := newTranscriptStore(t.TempDir())
	if err != nil {
		t.Fatalf("newTranscriptStore: %v", err)
	}

	records := []turnRecord{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "hi", ToolCalls: []toolCallRecord{
			{ID: "tc-1", Name: "Read", Input: json.RawMessage(`{"file_path":"a.txt"}`)},
		}},
		{Role: "user", ToolResults: []toolResultRecord{
			{ToolCallID: "tc-1", Content: "contents"},
		}},
	}

	if err := store.Save("tok-abc", records); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("tok-abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d records, want 3", len(loaded))
	}
	if loaded[1].ToolCalls[0].Name != "Read" {
		t.Errorf("tool call name = %q, want Read", loaded[1].ToolCalls[0].Name)
	}

	if err := store.Delete("tok-abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err = store.Load("tok-abc")
	if err != nil {
		t.Fatalf("Load after Delete: %v", err)
	}
	if loaded != nil {
		t.Errorf("loaded %d records after Delete, want none", len(loaded))
	}
}

func TestTranscriptStoreUnknownTokenIsFresh(t *testing.T) {
	store, err := newTranscriptStore(t.TempDir())
	if err != nil {
		t.Fatalf("newTranscriptStore: %v", err)
	}
	records, err := store.Load("never-saved")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if records != nil {
		t.Errorf("got %d records for unknown token, want none", len(records))
	}
}

func TestTranscriptStoreRejectsMalformedToken(t *testing.T) {
	store, err := newTranscriptStore(t.TempDir())
	if err != nil {
		t.Fatalf("newTranscriptStore: %v", err)
	}
	for _, token := range []string{"../escape", "a/b", "a.b"} {
		if _, err := store.Load(token); err == nil {
			t.Errorf("Load(%q) accepted malformed token", token)
		}
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	workDir := t.TempDir()

	gate, err := gatekeeper.New(gatekeeper.Config{
		Paths:    sandbox.NewPathPolicy(workDir, nil),
		Commands: sandbox.NewCommandPolicy([]string{"echo"}),
		Logger:   slog.Default(),
	})
	if err != nil {
		t.Fatalf("gatekeeper.New: %v", err)
	}

	cfg := tools.Config{WorkingDir: workDir}
	registry := tools.NewRegistry(
		tools.NewReadTool(cfg),
		tools.NewWriteTool(cfg),
		tools.NewBashTool(cfg),
	)

	return &Engine{
		gate:     gate,
		registry: registry,
		logger:   slog.Default(),
	}
}

func TestRunToolDeniedCommand(t *testing.T) {
	e := newTestEngine(t)
	result := e.runTool(context.Background(), engine.Request{}, toolCallRecord{
		ID:    "tc-1",
		Name:  "Bash",
		Input: json.RawMessage(`{"command":"rm -rf /"}`),
	})
	if !result.IsError {
		t.Fatal("denied command executed")
	}
	if !strings.Contains(result.Content, "permission denied") {
		t.Errorf("content = %q, want permission denied", result.Content)
	}
}

func TestRunToolAllowedCommand(t *testing.T) {
	e := newTestEngine(t)
	result := e.runTool(context.Background(), engine.Request{}, toolCallRecord{
		ID:    "tc-2",
		Name:  "Bash",
		Input: json.RawMessage(`{"command":"echo ok"}`),
	})
	if result.IsError {
		t.Fatalf("allowed command failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "ok") {
		t.Errorf("content = %q, want echo output", result.Content)
	}
}

func TestRunToolUnknownTool(t *testing.T) {
	e := newTestEngine(t)
	// WebSearch passes the gate unconditionally but has no local executor.
	result := e.runTool(context.Background(), engine.Request{}, toolCallRecord{
		ID:    "tc-3",
		Name:  "WebSearch",
		Input: json.RawMessage(`{"query":"anything"}`),
	})
	if !result.IsError {
		t.Fatal("unknown tool call succeeded")
	}
	if !strings.Contains(result.Content, "unknown tool") {
		t.Errorf("content = %q, want unknown tool", result.Content)
	}
}

func TestActivityLabel(t *testing.T) {
	tests := []struct {
		name string
		call toolCallRecord
		want string
	}{
		{"read with path", toolCallRecord{Name: "Read", Input: json.RawMessage(`{"file_path":"/home/agent/src/main.go"}`)}, "Reading: src/main.go"},
		{"grep clips pattern", toolCallRecord{Name: "Grep", Input: json.RawMessage(`{"pattern":"` + strings.Repeat("a", 50) + `"}`)}, "Searching: " + strings.Repeat("a", 30)},
		{"glob", toolCallRecord{Name: "Glob", Input: json.RawMessage(`{"pattern":"**/*.go"}`)}, "Finding files..."},
		{"bash first line only", toolCallRecord{Name: "Bash", Input: json.RawMessage(`{"command":"ls -la\necho hidden"}`)}, "Running: ls -la"},
		{"write", toolCallRecord{Name: "Write", Input: json.RawMessage(`{"file_path":"a.txt"}`)}, "Editing file..."},
		{"integration tool", toolCallRecord{Name: "mcp__exa__web_search_exa", Input: json.RawMessage(`{}`)}, "Searching web..."},
		{"unknown tool", toolCallRecord{Name: "Task", Input: json.RawMessage(`{}`)}, "Using: Task"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := activityLabel(tt.call); got != tt.want {
				t.Errorf("activityLabel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunToolMalformedInput(t *testing.T) {
	e := newTestEngine(t)
	result := e.runTool(context.Background(), engine.Request{}, toolCallRecord{
		ID:    "tc-4",
		Name:  "Read",
		Input: json.RawMessage(`{not json`),
	})
	if !result.IsError {
		t.Fatal("malformed input accepted")
	}
}
