// Package gatekeeper decides, once per capability request, whether the agent
// engine may perform a tool invocation. The decision table is static and
// default-deny: a tool that does not land in one of the five allow classes is
// refused, for every parameter payload, with no escalation path and no human
// prompt.
package gatekeeper

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/buildoak/moltbook/internal/observability"
	"github.com/buildoak/moltbook/internal/sandbox"
)

// Decision is the outcome of one capability check. On allow, Parameters
// carries the (possibly modified) tool input to execute with. On deny, Reason
// explains the refusal to the agent engine; it is never shown to the end user.
type Decision struct {
	Allow      bool
	Parameters map[string]any
	Reason     string
}

// allowDecision passes parameters through unmodified.
func allowDecision(params map[string]any) Decision {
	return Decision{Allow: true, Parameters: params}
}

func denyDecision(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Tool classes. The table mirrors the tool surface of the agent engine; an
// engine tool absent from every set falls through to the default deny.
var (
	unrestrictedTools = map[string]bool{
		"WebSearch": true,
		"WebFetch":  true,
	}

	// readPathTools maps each read-class tool to the parameter carrying its
	// path. Glob and Grep scope by search root rather than file path.
	readPathTools = map[string]string{
		"Read": "file_path",
		"Glob": "path",
		"Grep": "path",
	}

	writePathTools = map[string]string{
		"Write": "file_path",
		"Edit":  "file_path",
	}

	shellTool         = "Bash"
	shellCommandParam = "command"
)

// maxLoggedParams bounds the audit log line for denied requests.
const maxLoggedParams = 200

// Config assembles a Gatekeeper.
type Config struct {
	// Paths classifies filesystem access (required).
	Paths *sandbox.PathPolicy

	// Commands classifies shell commands (required).
	Commands *sandbox.CommandPolicy

	// IntegrationPrefix is the tool-name prefix of the external integration
	// namespace (e.g. "mcp__exa__"). Empty disables the class.
	IntegrationPrefix string

	// IntegrationAllow enumerates the fully qualified integration tools that
	// are permitted. Namespace membership alone never suffices.
	IntegrationAllow []string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Gatekeeper is the security boundary between the agent engine and the host.
// Decide is pure, synchronous, and total over its inputs: it never blocks,
// never errors, and never prompts.
type Gatekeeper struct {
	paths             *sandbox.PathPolicy
	commands          *sandbox.CommandPolicy
	integrationPrefix string
	integrationAllow  map[string]bool
	logger            *slog.Logger
	metrics           *observability.Metrics
}

// New creates a Gatekeeper from the config.
func New(cfg Config) (*Gatekeeper, error) {
	if cfg.Paths == nil {
		return nil, fmt.Errorf("gatekeeper: path policy is required")
	}
	if cfg.Commands == nil {
		return nil, fmt.Errorf("gatekeeper: command policy is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allow := make(map[string]bool, len(cfg.IntegrationAllow))
	for _, name := range cfg.IntegrationAllow {
		if strings.TrimSpace(name) == "" {
			continue
		}
		allow[name] = true
	}

	return &Gatekeeper{
		paths:             cfg.Paths,
		commands:          cfg.Commands,
		integrationPrefix: cfg.IntegrationPrefix,
		integrationAllow:  allow,
		logger:            logger.With("component", "gatekeeper"),
		metrics:           cfg.Metrics,
	}, nil
}

// Decide evaluates one capability request. Rules are checked in order; the
// first match wins.
func (g *Gatekeeper) Decide(toolName string, params map[string]any) Decision {
	// 1. Unrestricted tools cannot touch the local filesystem or process.
	if unrestrictedTools[toolName] {
		g.metrics.RecordDecision("unrestricted", true)
		return allowDecision(params)
	}

	// 2. External integration namespace: explicit enumeration only.
	if g.integrationPrefix != "" && strings.HasPrefix(toolName, g.integrationPrefix) {
		if g.integrationAllow[toolName] {
			g.metrics.RecordDecision("integration", true)
			return allowDecision(params)
		}
		return g.deny("integration", toolName, params,
			fmt.Sprintf("integration tool %q is not in the allowed list", toolName))
	}

	// 3. Read-class tools: path must be read-eligible when present.
	if paramName, ok := readPathTools[toolName]; ok {
		if path, ok := stringParam(params, paramName); ok && !g.paths.AllowsRead(path) {
			return g.deny("read", toolName, params,
				fmt.Sprintf("access denied: %q is outside allowed directories", path))
		}
		g.metrics.RecordDecision("read", true)
		return allowDecision(params)
	}

	// 4. Write-class tools: sandbox root only, read-only roots do not qualify.
	if paramName, ok := writePathTools[toolName]; ok {
		if path, ok := stringParam(params, paramName); ok && !g.paths.AllowsWrite(path) {
			return g.deny("write", toolName, params,
				fmt.Sprintf("write access denied: %q is outside the agent working directory", path))
		}
		g.metrics.RecordDecision("write", true)
		return allowDecision(params)
	}

	// 5. Shell execution: the command must be a string and whitelisted.
	if toolName == shellTool {
		command, ok := stringParam(params, shellCommandParam)
		if !ok {
			return g.deny("shell", toolName, params, "shell command must be a string")
		}
		if !g.commands.IsSafe(command) {
			return g.deny("shell", toolName, params, "this command is not in the allowed list")
		}
		g.metrics.RecordDecision("shell", true)
		return allowDecision(params)
	}

	// 6. Default deny. No exceptions.
	return g.deny("unknown", toolName, params,
		fmt.Sprintf("tool %q is not allowed", toolName))
}

// deny logs the refusal for audit and records the metric.
func (g *Gatekeeper) deny(class, toolName string, params map[string]any, reason string) Decision {
	g.metrics.RecordDecision(class, false)
	g.logger.Warn("capability denied",
		"tool", toolName,
		"class", class,
		"reason", reason,
		"parameters", truncateParams(params))
	return denyDecision(reason)
}

// stringParam extracts a non-empty string parameter. A missing or non-string
// value reports false: for path tools that means "nothing for the path
// authority to judge" and the tool-specific semantics apply.
func stringParam(params map[string]any, name string) (string, bool) {
	if params == nil {
		return "", false
	}
	value, ok := params[name].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func truncateParams(params map[string]any) string {
	rendered := fmt.Sprintf("%v", params)
	if len(rendered) > maxLoggedParams {
		return rendered[:maxLoggedParams] + "..."
	}
	return rendered
}
