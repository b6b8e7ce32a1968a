package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config controls filesystem tool defaults.
type Config struct {
	WorkingDir   string
	MaxReadBytes int
}

func (c Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.WorkingDir, path)
}

// ReadTool reads file contents with a byte cap.
type ReadTool struct {
	cfg Config
}

func NewReadTool(cfg Config) *ReadTool {
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = 200000
	}
	return &ReadTool{cfg: cfg}
}

func (t *ReadTool) Name() string { return "Read" }

func (t *ReadTool) Description() string {
	return "Read a file. Returns the file contents, truncated past the size cap."
}

func (t *ReadTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to read.",
			},
		},
		"required": []string{"file_path"},
	})
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("file_path is required"), nil
	}

	resolved := t.cfg.resolve(input.FilePath)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}

	truncated := false
	if len(data) > t.cfg.MaxReadBytes {
		data = data[:t.cfg.MaxReadBytes]
		truncated = true
	}

	return toolResult(map[string]interface{}{
		"file_path": input.FilePath,
		"content":   string(data),
		"bytes":     len(data),
		"truncated": truncated,
	}), nil
}

// WriteTool creates or overwrites a file.
type WriteTool struct {
	cfg Config
}

func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{cfg: cfg}
}

func (t *WriteTool) Name() string { return "Write" }

func (t *WriteTool) Description() string {
	return "Write content to a file, creating parent directories as needed."
}

func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to write.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full file content.",
			},
		},
		"required": []string{"file_path", "content"},
	})
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("file_path is required"), nil
	}

	resolved := t.cfg.resolve(input.FilePath)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	return toolResult(map[string]interface{}{
		"file_path": input.FilePath,
		"bytes":     len(input.Content),
	}), nil
}

// EditTool applies a single find/replace edit to a file.
type EditTool struct {
	cfg Config
}

func NewEditTool(cfg Config) *EditTool {
	return &EditTool{cfg: cfg}
}

func (t *EditTool) Name() string { return "Edit" }

func (t *EditTool) Description() string {
	return "Replace text in a file. old_string must appear in the file."
}

func (t *EditTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to edit.",
			},
			"old_string": map[string]interface{}{
				"type":        "string",
				"description": "Text to replace.",
			},
			"new_string": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text.",
			},
			"replace_all": map[string]interface{}{
				"type":        "boolean",
				"description": "Replace all occurrences (default: false).",
			},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	})
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("file_path is required"), nil
	}
	if input.OldString == "" {
		return toolError("old_string is required"), nil
	}

	resolved := t.cfg.resolve(input.FilePath)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	if !strings.Contains(content, input.OldString) {
		return toolError("old_string not found in file"), nil
	}

	replacements := 1
	if input.ReplaceAll {
		replacements = strings.Count(content, input.OldString)
		content = strings.ReplaceAll(content, input.OldString, input.NewString)
	} else {
		content = strings.Replace(content, input.OldString, input.NewString, 1)
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	return toolResult(map[string]interface{}{
		"file_path":    input.FilePath,
		"replacements": replacements,
	}), nil
}
