// Package main is the CLI entry point for moltbook, a Telegram front end for
// a sandboxed autonomous coding agent.
//
// Start the service:
//
//	moltbook serve --config moltbook.yaml
//
// The config path can also come from the MOLTBOOK_CONFIG environment
// variable.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/buildoak/moltbook/internal/config"
	"github.com/buildoak/moltbook/internal/engine/claude"
	"github.com/buildoak/moltbook/internal/gatekeeper"
	"github.com/buildoak/moltbook/internal/observability"
	"github.com/buildoak/moltbook/internal/prompt"
	"github.com/buildoak/moltbook/internal/runner"
	"github.com/buildoak/moltbook/internal/sandbox"
	"github.com/buildoak/moltbook/internal/sessions"
	"github.com/buildoak/moltbook/internal/telegram"
	"github.com/buildoak/moltbook/internal/tools"
	"github.com/buildoak/moltbook/internal/transcribe"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "moltbook",
		Short:   "Telegram front end for a sandboxed coding agent",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}
	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildVersionCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("moltbook %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("MOLTBOOK_CONFIG")
			}
			if configPath == "" {
				configPath = "moltbook.yaml"
			}
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	paths := sandbox.NewPathPolicy(cfg.Workspace.Root, cfg.Workspace.ReadOnlyRoots)
	commands := sandbox.NewCommandPolicy(cfg.Workspace.AllowedCommands)

	gate, err := gatekeeper.New(gatekeeper.Config{
		Paths:             paths,
		Commands:          commands,
		IntegrationPrefix: cfg.Integrations.Prefix,
		IntegrationAllow:  cfg.Integrations.AllowedTools,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return err
	}

	toolCfg := tools.Config{WorkingDir: cfg.Workspace.Root}
	registry := tools.NewRegistry(
		tools.NewReadTool(toolCfg),
		tools.NewWriteTool(toolCfg),
		tools.NewEditTool(toolCfg),
		tools.NewGlobTool(toolCfg),
		tools.NewGrepTool(toolCfg),
		tools.NewBashTool(toolCfg),
		tools.NewWebFetchTool(),
	)

	prompts := prompt.NewWatcher(cfg.Workspace.SystemPromptFile, logger)
	go func() {
		if err := prompts.Watch(ctx); err != nil {
			logger.Warn("prompt watcher stopped", "error", err)
		}
	}()

	eng, err := claude.New(claude.Config{
		APIKey:        cfg.Engine.APIKey,
		BaseURL:       cfg.Engine.BaseURL,
		Model:         cfg.Engine.Model,
		MaxTokens:     cfg.Engine.MaxTokens,
		MaxTurns:      cfg.Engine.MaxTurns,
		TranscriptDir: filepath.Join(cfg.State.Dir, "transcripts"),
		SystemPrompt:  prompts.Get,
		Gate:          gate,
		Registry:      registry,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	runs, err := runner.New(runner.Config{
		Engine:         eng,
		Store:          store,
		WorkingDir:     cfg.Workspace.Root,
		StatusInterval: cfg.Runner.StatusInterval(),
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	var transcriber transcribe.Transcriber
	if cfg.Transcription.APIKey != "" {
		whisper, err := transcribe.NewWhisper(transcribe.WhisperConfig{
			APIKey:   cfg.Transcription.APIKey,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		transcriber = whisper
	} else {
		logger.Info("voice transcription disabled: no API key configured")
	}

	gateway, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		AllowedUsers: cfg.Telegram.AllowedUsers,
		WorkingDir:   cfg.Workspace.Root,
		Runner:       runs,
		Store:        store,
		Paths:        paths,
		Transcriber:  transcriber,
		GroupWindow:  cfg.Media.GroupWindow(),
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, logger)
	}

	logger.Info("moltbook starting",
		"version", version,
		"working_dir", cfg.Workspace.Root,
		"allowed_users", len(cfg.Telegram.AllowedUsers),
		"state_backend", cfg.State.Backend)

	gateway.Start(ctx)

	logger.Info("shutdown complete")
	return nil
}

func openStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.State.Backend {
	case "file":
		return sessions.NewFileStore(filepath.Join(cfg.State.Dir, "sessions.json"))
	case "sqlite":
		return sessions.NewSQLiteStore(filepath.Join(cfg.State.Dir, "sessions.db"))
	case "memory":
		return sessions.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

func serveMetrics(ctx context.Context, listen string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "error", err)
	}
}
