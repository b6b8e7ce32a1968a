package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/buildoak/moltbook/internal/engine"
	"github.com/buildoak/moltbook/internal/mediagroup"
	"github.com/buildoak/moltbook/internal/runner"
	"github.com/buildoak/moltbook/internal/sessions"
)

// promptEnvelope wraps user input with delivery-format instructions before it
// reaches the model. The reply lands in a chat client, not a terminal.
const promptEnvelope = `<tg_format>
You are responding via Telegram. Keep responses concise and plain text:
- Start with a brief (1-2 sentence) summary of what you did
- No markdown formatting (no **bold**, no ` + "`code`" + `, no headers)
- Keep total response under 2000 chars when possible
</tg_format>

<tg_message>
%s
</tg_message>`

func wrapPrompt(message string) string {
	return fmt.Sprintf(promptEnvelope, message)
}

// command extracts the bot command from message text, tolerating the
// "/cmd@botname" form Telegram uses in group chats and any trailing
// arguments. Returns "" when the text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	if idx := strings.IndexAny(text, " \n"); idx >= 0 {
		text = text[:idx]
	}
	if idx := strings.IndexByte(text, '@'); idx >= 0 {
		text = text[:idx]
	}
	return text
}

func (g *Gateway) handleText(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := msg.Text

	switch command(text) {
	case "/start":
		g.resetSession(ctx, userID)
		g.send(ctx, chatID, "New session started. Any running query was aborted.")
		return
	case "/stop":
		g.resetSession(ctx, userID)
		g.send(ctx, chatID, "Session stopped. Any running query was aborted.")
		return
	case "/status":
		g.send(ctx, chatID, g.statusReport(ctx, userID))
		return
	}

	// A leading "!" supersedes the current run with the remainder as a
	// fresh prompt. Bare "!" is just a stop request.
	if strings.HasPrefix(text, "!") {
		text = strings.TrimSpace(text[1:])
		if text == "" {
			if !g.runner.Stop(userID) {
				g.send(ctx, chatID, "Nothing to stop.")
			}
			return
		}
	}

	status := g.sendStatus(ctx, chatID, "Processing...")
	g.startRun(userID, chatID, text, nil, status)
}

// resetSession cancels any active run and deletes the stored session.
func (g *Gateway) resetSession(ctx context.Context, userID int64) {
	g.runner.Stop(userID)
	if err := g.store.Delete(ctx, userID); err != nil {
		g.logger.Error("session delete failed", "user", userID, "error", err)
	}
}

func (g *Gateway) statusReport(ctx context.Context, userID int64) string {
	var b strings.Builder

	session, err := g.store.Get(ctx, userID)
	switch {
	case err == nil && session.ResumeToken != "":
		token := session.ResumeToken
		if len(token) > 8 {
			token = token[:8]
		}
		idle := time.Since(session.LastActivity).Round(time.Second)
		fmt.Fprintf(&b, "Session active\nID: %s...\nIdle: %s", token, idle)
	case err == nil || errors.Is(err, sessions.ErrNotFound):
		b.WriteString("No active session.")
	default:
		b.WriteString("No active session.")
		g.logger.Error("session load failed", "user", userID, "error", err)
	}

	if g.runner.Active(userID) {
		b.WriteString("\nRun in progress.")
	}

	voice := "disabled"
	if g.transcriber != nil {
		voice = "enabled"
	}
	fmt.Fprintf(&b, "\n\nVoice: %s\nWorking dir: %s", voice, g.workingDir)
	return b.String()
}

// startRun hands a prompt to the run controller, binding delivery callbacks
// to the originating chat.
func (g *Gateway) startRun(userID, chatID int64, message string, attachments []engine.Attachment, status *statusMessage) {
	runCtx := g.runCtx()
	g.runner.Start(runCtx, userID, wrapPrompt(message), attachments, runner.Callbacks{
		Status: func(label string) {
			status.edit(runCtx, label)
		},
		Reply: func(text string) {
			status.delete(runCtx)
			g.deliver(runCtx, chatID, text)
		},
		Notice: func(text string) {
			status.delete(runCtx)
			g.send(runCtx, chatID, text)
		},
		Done: func() {
			status.delete(runCtx)
		},
	})
}

func (g *Gateway) handleVoice(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if g.transcriber == nil {
		g.send(ctx, chatID, "Voice transcription not configured.")
		return
	}

	status := g.sendStatus(ctx, chatID, "Transcribing...")

	audio, filename, err := g.downloadFile(ctx, msg.Voice.FileID)
	if err != nil {
		g.logger.Error("voice download failed", "user", userID, "error", err)
		g.metrics.RecordTranscription(false)
		status.edit(ctx, "Transcription failed.")
		return
	}

	transcript, err := g.transcriber.Transcribe(ctx, audio, filename)
	if err != nil || strings.TrimSpace(transcript) == "" {
		g.logger.Error("transcription failed", "user", userID, "error", err)
		g.metrics.RecordTranscription(false)
		status.edit(ctx, "Transcription failed.")
		return
	}
	g.metrics.RecordTranscription(true)

	// The transcript stays visible; the run gets its own status line.
	status.edit(ctx, fmt.Sprintf("You said:\n%q", transcript))

	text := transcript
	if strings.HasPrefix(text, "!") {
		text = strings.TrimSpace(text[1:])
		if text == "" {
			g.runner.Stop(userID)
			return
		}
	}

	runStatus := g.sendStatus(ctx, chatID, "Processing...")
	g.startRun(userID, chatID, text, nil, runStatus)
}

func (g *Gateway) handlePhoto(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	// Telegram orders photo sizes ascending; take the largest.
	largest := msg.Photo[len(msg.Photo)-1]
	data, _, err := g.downloadFile(ctx, largest.FileID)
	if err != nil {
		g.logger.Error("photo download failed", "user", userID, "error", err)
		g.send(ctx, chatID, "Error processing image.")
		return
	}

	attachment := engine.Attachment{MediaType: "image/jpeg", Data: data}

	if msg.MediaGroupID != "" {
		key := albumKey(userID, chatID, msg.MediaGroupID)
		g.albums.Add(key, msg.Caption, mediagroup.Photo{
			Data:      data,
			MediaType: attachment.MediaType,
		})
		return
	}

	prompt := msg.Caption
	if prompt == "" {
		prompt = "What's in this image?"
	}
	status := g.sendStatus(ctx, chatID, "Processing image...")
	g.startRun(userID, chatID, prompt, []engine.Attachment{attachment}, status)
}

// handleAlbum receives a completed photo album from the aggregator.
func (g *Gateway) handleAlbum(key, caption string, photos []mediagroup.Photo) {
	userID, chatID, ok := parseAlbumKey(key)
	if !ok {
		g.logger.Error("malformed album key", "key", key)
		return
	}

	attachments := make([]engine.Attachment, 0, len(photos))
	for _, photo := range photos {
		attachments = append(attachments, engine.Attachment{
			MediaType: photo.MediaType,
			Data:      photo.Data,
		})
	}

	prompt := caption
	if prompt == "" {
		if len(attachments) > 1 {
			prompt = "What's in these images?"
		} else {
			prompt = "What's in this image?"
		}
	}

	ctx := g.runCtx()
	label := fmt.Sprintf("Processing %d image", len(attachments))
	if len(attachments) > 1 {
		label += "s"
	}
	status := g.sendStatus(ctx, chatID, label+"...")
	g.startRun(userID, chatID, prompt, attachments, status)
}

func albumKey(userID, chatID int64, groupID string) string {
	return fmt.Sprintf("%d:%d:%s", userID, chatID, groupID)
}

func parseAlbumKey(key string) (userID, chatID int64, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return 0, 0, false
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	chatID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return userID, chatID, true
}
