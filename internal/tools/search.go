package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxGlobMatches = 500
	maxGrepMatches = 200
	maxGrepLine    = 500
)

// GlobTool lists files matching a shell-style pattern.
type GlobTool struct {
	cfg Config
}

func NewGlobTool(cfg Config) *GlobTool {
	return &GlobTool{cfg: cfg}
}

func (t *GlobTool) Name() string { return "Glob" }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern, e.g. '**/*.go'."
}

func (t *GlobTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern to match file names against.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search in (default: working directory).",
			},
		},
		"required": []string{"pattern"},
	})
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	root := t.cfg.WorkingDir
	if input.Path != "" {
		root = t.cfg.resolve(input.Path)
	}

	// filepath.Match has no ** support; match the last pattern segment
	// against file names when the pattern asks for recursion.
	namePattern := input.Pattern
	recursive := strings.Contains(input.Pattern, "**")
	if idx := strings.LastIndex(input.Pattern, "/"); idx >= 0 {
		namePattern = input.Pattern[idx+1:]
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		matched := false
		if recursive {
			matched, _ = filepath.Match(namePattern, d.Name())
		} else {
			matched, _ = filepath.Match(input.Pattern, rel)
		}
		if matched {
			matches = append(matches, rel)
			if len(matches) >= maxGlobMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return toolError("search cancelled"), nil
	}

	return toolResult(map[string]interface{}{
		"pattern": input.Pattern,
		"matches": matches,
		"count":   len(matches),
	}), nil
}

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	cfg Config
}

func NewGrepTool(cfg Config) *GrepTool {
	return &GrepTool{cfg: cfg}
}

func (t *GrepTool) Name() string { return "Grep" }

func (t *GrepTool) Description() string {
	return "Search file contents for a regular expression, returning matching lines."
}

func (t *GrepTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File or directory to search (default: working directory).",
			},
		},
		"required": []string{"pattern"},
	})
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return toolError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	root := t.cfg.WorkingDir
	if input.Path != "" {
		root = t.cfg.resolve(input.Path)
	}

	type match struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var matches []match

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			if len(line) > maxGrepLine {
				line = line[:maxGrepLine]
			}
			matches = append(matches, match{File: rel, Line: lineNo, Text: line})
			if len(matches) >= maxGrepMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return toolError("search cancelled"), nil
	}

	return toolResult(map[string]interface{}{
		"pattern": input.Pattern,
		"matches": matches,
		"count":   len(matches),
	}), nil
}
