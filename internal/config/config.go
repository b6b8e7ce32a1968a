// Package config loads the service configuration from a YAML file.
// Environment references like ${ANTHROPIC_API_KEY} are expanded before
// parsing so secrets stay out of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram"`
	Engine        EngineConfig        `yaml:"engine"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Integrations  IntegrationsConfig  `yaml:"integrations"`
	State         StateConfig         `yaml:"state"`
	Runner        RunnerConfig        `yaml:"runner"`
	Media         MediaConfig         `yaml:"media"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AllowedUsers []int64 `yaml:"allowed_users"`
}

type EngineConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	MaxTurns  int    `yaml:"max_turns"`
}

type TranscriptionConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type WorkspaceConfig struct {
	Root             string   `yaml:"root"`
	ReadOnlyRoots    []string `yaml:"read_only_roots"`
	AllowedCommands  []string `yaml:"allowed_commands"`
	SystemPromptFile string   `yaml:"system_prompt_file"`
}

type IntegrationsConfig struct {
	Prefix       string   `yaml:"prefix"`
	AllowedTools []string `yaml:"allowed_tools"`
}

type StateConfig struct {
	Dir     string `yaml:"dir"`
	Backend string `yaml:"backend"`
}

type RunnerConfig struct {
	StatusIntervalMs int `yaml:"status_interval_ms"`
}

func (c RunnerConfig) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalMs) * time.Millisecond
}

type MediaConfig struct {
	GroupWindowMs int `yaml:"group_window_ms"`
}

func (c MediaConfig) GroupWindow() time.Duration {
	return time.Duration(c.GroupWindowMs) * time.Millisecond
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type MetricsConfig struct {
	// Listen is the metrics HTTP listen address; empty disables the
	// endpoint.
	Listen string `yaml:"listen"`
}

// Load reads, expands, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and fills in defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("config: telegram.token is required")
	}
	if len(c.Telegram.AllowedUsers) == 0 {
		return errors.New("config: telegram.allowed_users must not be empty")
	}
	if strings.TrimSpace(c.Engine.APIKey) == "" {
		return errors.New("config: engine.api_key is required")
	}
	if strings.TrimSpace(c.Workspace.Root) == "" {
		return errors.New("config: workspace.root is required")
	}
	if !filepath.IsAbs(c.Workspace.Root) {
		return fmt.Errorf("config: workspace.root %q must be absolute", c.Workspace.Root)
	}

	if c.Engine.Model == "" {
		c.Engine.Model = "claude-sonnet-4-20250514"
	}
	if c.Engine.MaxTokens <= 0 {
		c.Engine.MaxTokens = 8192
	}
	if c.Engine.MaxTurns <= 0 {
		c.Engine.MaxTurns = 50
	}
	if c.Workspace.SystemPromptFile == "" {
		c.Workspace.SystemPromptFile = filepath.Join(c.Workspace.Root, "CLAUDE.md")
	}
	if c.State.Dir == "" {
		c.State.Dir = filepath.Join(c.Workspace.Root, ".moltbook")
	}
	switch c.State.Backend {
	case "":
		c.State.Backend = "file"
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown state.backend %q", c.State.Backend)
	}
	if c.Runner.StatusIntervalMs <= 0 {
		c.Runner.StatusIntervalMs = 500
	}
	if c.Media.GroupWindowMs <= 0 {
		c.Media.GroupWindowMs = 500
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}
