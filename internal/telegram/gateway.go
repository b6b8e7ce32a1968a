// Package telegram is the chat-facing front end: it receives messages from
// authorized users, routes them into the run controller, and delivers run
// output back as plain-text messages, documents, and edited status lines.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/buildoak/moltbook/internal/markdown"
	"github.com/buildoak/moltbook/internal/mediagroup"
	"github.com/buildoak/moltbook/internal/observability"
	"github.com/buildoak/moltbook/internal/runner"
	"github.com/buildoak/moltbook/internal/sandbox"
	"github.com/buildoak/moltbook/internal/sessions"
	"github.com/buildoak/moltbook/internal/transcribe"
)

// sendFilePattern matches the marker the agent emits to attach a file to its
// reply: [SEND_FILE:/path/to/file].
var sendFilePattern = regexp.MustCompile(`\[SEND_FILE:([^\]]+)\]`)

// Config assembles a Gateway.
type Config struct {
	Token        string
	AllowedUsers []int64
	WorkingDir   string

	Runner *runner.Runner
	Store  sessions.Store
	Paths  *sandbox.PathPolicy

	// Transcriber handles voice notes; nil disables voice input.
	Transcriber transcribe.Transcriber

	// GroupWindow is the quiet window for photo album batching.
	GroupWindow time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Gateway bridges Telegram and the run controller.
type Gateway struct {
	bot         *bot.Bot
	allowed     map[int64]bool
	workingDir  string
	runner      *runner.Runner
	store       sessions.Store
	paths       *sandbox.PathPolicy
	transcriber transcribe.Transcriber
	albums      *mediagroup.Aggregator
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu      sync.Mutex
	baseCtx context.Context
}

func New(cfg Config) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if len(cfg.AllowedUsers) == 0 {
		return nil, errors.New("telegram: allowed user list must not be empty")
	}
	if cfg.Runner == nil || cfg.Store == nil || cfg.Paths == nil {
		return nil, errors.New("telegram: runner, store, and path policy are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := &Gateway{
		allowed:     make(map[int64]bool, len(cfg.AllowedUsers)),
		workingDir:  cfg.WorkingDir,
		runner:      cfg.Runner,
		store:       cfg.Store,
		paths:       cfg.Paths,
		transcriber: cfg.Transcriber,
		logger:      cfg.Logger.With("component", "telegram"),
		metrics:     cfg.Metrics,
	}
	for _, id := range cfg.AllowedUsers {
		g.allowed[id] = true
	}
	g.albums = mediagroup.New(cfg.GroupWindow, g.handleAlbum)

	b, err := bot.New(cfg.Token,
		bot.WithDefaultHandler(g.handleUpdate),
		bot.WithMiddlewares(g.authorize),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	g.bot = b
	return g, nil
}

// Start runs the long-polling loop until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	g.baseCtx = ctx
	g.mu.Unlock()

	g.logger.Info("telegram gateway started", "working_dir", g.workingDir)
	g.bot.Start(ctx)
	g.albums.Stop()
	g.logger.Info("telegram gateway stopped")
}

// runCtx returns the long-lived context runs are launched under. Handler
// contexts are per-update; a run must outlive the update that started it.
func (g *Gateway) runCtx() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.baseCtx != nil {
		return g.baseCtx
	}
	return context.Background()
}

// authorize rejects updates from users outside the allowlist. The rejection
// echoes the user ID so legitimate operators can add themselves.
func (g *Gateway) authorize(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil || msg.From == nil {
			return
		}
		if !g.allowed[msg.From.ID] {
			g.logger.Warn("unauthorized message", "user", msg.From.ID)
			g.send(ctx, msg.Chat.ID, fmt.Sprintf("Unauthorized. Your user ID: %d", msg.From.ID))
			return
		}
		next(ctx, b, update)
	}
}

func (g *Gateway) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	switch {
	case msg.Voice != nil:
		g.metrics.RecordMessage("voice")
		g.handleVoice(ctx, msg)
	case len(msg.Photo) > 0:
		g.metrics.RecordMessage("photo")
		g.handlePhoto(ctx, msg)
	case msg.Text != "":
		g.metrics.RecordMessage("text")
		g.handleText(ctx, msg)
	}
}

// send delivers a plain message, logging failures instead of propagating.
func (g *Gateway) send(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	_, err := g.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		g.logger.Error("send failed", "chat", chatID, "error", err)
	}
}

// deliver post-processes final run output: file markers first, then markdown
// stripping, then chunked sending.
func (g *Gateway) deliver(ctx context.Context, chatID int64, text string) {
	text = g.sendMarkedFiles(ctx, chatID, text)
	text = markdown.Strip(text)
	for _, chunk := range markdown.Chunk(text) {
		g.send(ctx, chatID, chunk)
	}
}

// sendMarkedFiles sends every [SEND_FILE:path] the reply names, provided the
// path is read-eligible, and replaces each marker with a delivery note.
func (g *Gateway) sendMarkedFiles(ctx context.Context, chatID int64, text string) string {
	return sendFilePattern.ReplaceAllStringFunc(text, func(match string) string {
		path := sendFilePattern.FindStringSubmatch(match)[1]
		path = filepath.Clean(path)

		if !g.paths.AllowsRead(path) {
			g.logger.Warn("file send denied", "path", path)
			return "[Access denied: file outside allowed paths]"
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Sprintf("[File not found: %s]", path)
			}
			g.logger.Error("file send failed", "path", path, "error", err)
			return fmt.Sprintf("[Failed to send: %s]", path)
		}

		name := filepath.Base(path)
		_, err = g.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chatID,
			Document: &models.InputFileUpload{
				Filename: name,
				Data:     bytes.NewReader(data),
			},
		})
		if err != nil {
			g.logger.Error("file send failed", "path", path, "error", err)
			return fmt.Sprintf("[Failed to send: %s]", path)
		}
		return fmt.Sprintf("[Sent: %s]", name)
	})
}

// statusMessage wraps the ephemeral progress line shown while a run is in
// flight. Edits and deletion fail silently: the user may have removed it.
type statusMessage struct {
	bot    *bot.Bot
	chatID int64
	id     int

	mu      sync.Mutex
	deleted bool
}

// sendStatus posts a status line. Returns nil on failure; all statusMessage
// methods tolerate a nil receiver.
func (g *Gateway) sendStatus(ctx context.Context, chatID int64, text string) *statusMessage {
	msg, err := g.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		g.logger.Warn("status send failed", "chat", chatID, "error", err)
		return nil
	}
	return &statusMessage{bot: g.bot, chatID: chatID, id: msg.ID}
}

func (s *statusMessage) edit(ctx context.Context, text string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	gone := s.deleted
	s.mu.Unlock()
	if gone {
		return
	}
	_, _ = s.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    s.chatID,
		MessageID: s.id,
		Text:      text,
	})
}

func (s *statusMessage) delete(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	s.deleted = true
	s.mu.Unlock()
	_, _ = s.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    s.chatID,
		MessageID: s.id,
	})
}

// downloadFile fetches a Telegram-hosted file by its file ID.
func (g *Gateway) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := g.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("telegram: get file: %w", err)
	}

	link := g.bot.FileDownloadLink(file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("telegram: download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: read file: %w", err)
	}
	return data, filepath.Base(file.FilePath), nil
}
