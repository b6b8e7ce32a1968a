package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultShellTimeout = 2 * time.Minute
	maxShellOutput      = 100000
)

// BashTool runs shell commands in the working directory. Command eligibility
// is enforced upstream; this executor only handles process mechanics.
type BashTool struct {
	cfg     Config
	timeout time.Duration
}

func NewBashTool(cfg Config) *BashTool {
	return &BashTool{cfg: cfg, timeout: defaultShellTimeout}
}

func (t *BashTool) Name() string { return "Bash" }

func (t *BashTool) Description() string {
	return "Run a shell command in the working directory and return its output."
}

func (t *BashTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to run.",
			},
		},
		"required": []string{"command"},
	})
}

func (t *BashTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Command) == "" {
		return toolError("command is required"), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", input.Command)
	cmd.Dir = t.cfg.WorkingDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()

	text := output.String()
	truncated := false
	if len(text) > maxShellOutput {
		text = text[:maxShellOutput]
		truncated = true
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			return toolError(fmt.Sprintf("command timed out after %s", t.timeout)), nil
		} else {
			return toolError(fmt.Sprintf("run command: %v", runErr)), nil
		}
	}

	return toolResult(map[string]interface{}{
		"command":   input.Command,
		"output":    text,
		"exit_code": exitCode,
		"truncated": truncated,
	}), nil
}
