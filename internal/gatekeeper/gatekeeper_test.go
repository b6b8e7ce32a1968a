package gatekeeper

import (
	"strings"
	"testing"

	"github.com/buildoak/moltbook/internal/sandbox"
)

func newTestGatekeeper(t *testing.T) *Gatekeeper {
	t.Helper()
	gk, err := New(Config{
		Paths:             sandbox.NewPathPolicy("/home/agent", []string{"/home/research"}),
		Commands:          sandbox.NewCommandPolicy([]string{"ls", "cat", "git status"}),
		IntegrationPrefix: "mcp__exa__",
		IntegrationAllow: []string{
			"mcp__exa__web_search_exa",
			"mcp__exa__get_code_context_exa",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gk
}

func TestDecideUnrestrictedTools(t *testing.T) {
	gk := newTestGatekeeper(t)

	for _, tool := range []string{"WebSearch", "WebFetch"} {
		params := map[string]any{"query": "anything at all"}
		d := gk.Decide(tool, params)
		if !d.Allow {
			t.Errorf("%s should be allowed unconditionally, got deny: %s", tool, d.Reason)
		}
		if d.Parameters["query"] != "anything at all" {
			t.Errorf("%s parameters must pass through unmodified", tool)
		}
	}
}

func TestDecideIntegrationNamespace(t *testing.T) {
	gk := newTestGatekeeper(t)

	if d := gk.Decide("mcp__exa__web_search_exa", map[string]any{"q": "go"}); !d.Allow {
		t.Errorf("enumerated integration tool denied: %s", d.Reason)
	}

	// Namespace membership alone is not sufficient.
	d := gk.Decide("mcp__exa__delete_everything", nil)
	if d.Allow {
		t.Fatal("unenumerated integration tool must be denied")
	}
	if !strings.Contains(d.Reason, "not in the allowed list") {
		t.Errorf("unexpected deny reason: %s", d.Reason)
	}
}

func TestDecideReadPaths(t *testing.T) {
	gk := newTestGatekeeper(t)

	tests := []struct {
		name   string
		tool   string
		params map[string]any
		allow  bool
	}{
		{"read inside sandbox", "Read", map[string]any{"file_path": "/home/agent/notes.txt"}, true},
		{"read inside read-only root", "Read", map[string]any{"file_path": "/home/research/p.pdf"}, true},
		{"read outside", "Read", map[string]any{"file_path": "/etc/passwd"}, false},
		{"glob root inside", "Glob", map[string]any{"path": "/home/agent/src", "pattern": "*.go"}, true},
		{"glob root outside", "Glob", map[string]any{"path": "/tmp", "pattern": "*"}, false},
		{"grep root outside", "Grep", map[string]any{"path": "/var/log", "pattern": "secret"}, false},
		{"missing path is tool-specific", "Read", map[string]any{}, true},
		{"non-string path is tool-specific", "Read", map[string]any{"file_path": 42}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := gk.Decide(tc.tool, tc.params)
			if d.Allow != tc.allow {
				t.Errorf("Decide(%s, %v).Allow = %v, want %v (reason %q)",
					tc.tool, tc.params, d.Allow, tc.allow, d.Reason)
			}
		})
	}
}

func TestDecideDeniedReadNamesPath(t *testing.T) {
	gk := newTestGatekeeper(t)
	d := gk.Decide("Read", map[string]any{"file_path": "/etc/passwd"})
	if d.Allow {
		t.Fatal("expected deny")
	}
	if !strings.Contains(d.Reason, "/etc/passwd") {
		t.Errorf("deny reason should name the offending path, got %q", d.Reason)
	}
}

func TestDecideWritePaths(t *testing.T) {
	gk := newTestGatekeeper(t)

	tests := []struct {
		name  string
		tool  string
		path  string
		allow bool
	}{
		{"write inside sandbox", "Write", "/home/agent/out.txt", true},
		{"edit inside sandbox", "Edit", "/home/agent/a/b.go", true},
		{"write to read-only root", "Write", "/home/research/p.pdf", false},
		{"edit outside", "Edit", "/etc/hosts", false},
		{"write to sibling prefix", "Write", "/home/agent-evil/x", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := gk.Decide(tc.tool, map[string]any{"file_path": tc.path})
			if d.Allow != tc.allow {
				t.Errorf("Decide(%s, %s).Allow = %v, want %v (reason %q)",
					tc.tool, tc.path, d.Allow, tc.allow, d.Reason)
			}
		})
	}
}

func TestDecideShellCommands(t *testing.T) {
	gk := newTestGatekeeper(t)

	tests := []struct {
		name   string
		params map[string]any
		allow  bool
	}{
		{"whitelisted prefix", map[string]any{"command": "ls -la"}, true},
		{"exact whitelisted", map[string]any{"command": "git status"}, true},
		{"chained injection", map[string]any{"command": "ls; rm -rf /"}, false},
		{"unlisted command", map[string]any{"command": "rm -rf /"}, false},
		{"missing command", map[string]any{}, false},
		{"non-string command", map[string]any{"command": []string{"ls"}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := gk.Decide("Bash", tc.params)
			if d.Allow != tc.allow {
				t.Errorf("Decide(Bash, %v).Allow = %v, want %v (reason %q)",
					tc.params, d.Allow, tc.allow, d.Reason)
			}
		})
	}
}

func TestDecideDefaultDeny(t *testing.T) {
	gk := newTestGatekeeper(t)

	payloads := []map[string]any{
		nil,
		{},
		{"file_path": "/home/agent/innocent.txt"},
		{"command": "ls"},
		{"anything": map[string]any{"nested": true}},
	}
	for _, tool := range []string{"Task", "NotebookEdit", "KillShell", "mcp__other__search", ""} {
		for _, params := range payloads {
			d := gk.Decide(tool, params)
			if d.Allow {
				t.Errorf("unknown tool %q must be denied for payload %v", tool, params)
			}
		}
	}
}

func TestNewRequiresPolicies(t *testing.T) {
	if _, err := New(Config{Commands: sandbox.NewCommandPolicy(nil)}); err == nil {
		t.Error("missing path policy should fail")
	}
	if _, err := New(Config{Paths: sandbox.NewPathPolicy("/x", nil)}); err == nil {
		t.Error("missing command policy should fail")
	}
}
