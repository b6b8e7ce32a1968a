// Package transcribe turns voice notes into text. Transcription is an
// optional capability: when no provider is configured, callers degrade to
// telling the user voice input is unavailable rather than failing the
// message.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber converts an audio payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// WhisperConfig configures the OpenAI-backed transcriber.
type WhisperConfig struct {
	APIKey string
	Model  string

	// Language hints the source language (ISO 639-1); empty lets the model
	// detect it.
	Language string

	Logger *slog.Logger
}

// Whisper transcribes audio through the OpenAI transcription endpoint.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger
}

func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transcribe: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Whisper{
		client:   openai.NewClient(cfg.APIKey),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   cfg.Logger.With("component", "transcribe"),
	}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("transcribe: empty audio payload")
	}
	if filename == "" {
		filename = "voice.ogg"
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(audio),
		FilePath: filename,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	w.logger.Debug("voice note transcribed",
		"bytes", len(audio), "chars", len(resp.Text))
	return resp.Text, nil
}
