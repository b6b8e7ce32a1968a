// Package claude adapts the Anthropic Messages API to the engine contract.
// Each turn runs a streaming tool loop: the model's tool calls are checked by
// the capability gate, executed locally when allowed, and their results fed
// back until the model produces a final text reply.
package claude

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/google/uuid"

	"github.com/buildoak/moltbook/internal/engine"
	"github.com/buildoak/moltbook/internal/gatekeeper"
	"github.com/buildoak/moltbook/internal/tools"
)

// maxEmptyStreamEvents bounds consecutive events that carry no content before
// the stream is treated as malformed.
const maxEmptyStreamEvents = 300

// Gate decides whether a tool call may execute.
type Gate interface {
	Decide(toolName string, params map[string]any) gatekeeper.Decision
}

// Config configures the Claude engine.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// MaxTurns caps model round-trips within a single run.
	MaxTurns int

	// TranscriptDir is where conversation transcripts are persisted, one
	// file per resume token.
	TranscriptDir string

	// SystemPrompt is evaluated at the start of every run so prompt
	// updates take effect without a restart.
	SystemPrompt func() string

	Gate     Gate
	Registry *tools.Registry
	Logger   *slog.Logger
}

// Engine is the Anthropic-backed implementation of engine.Engine.
type Engine struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	maxTurns    int
	system      func() string
	gate        Gate
	registry    *tools.Registry
	transcripts *transcriptStore
	logger      *slog.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("claude: API key is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("claude: gate is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("claude: tool registry is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transcripts, err := newTranscriptStore(cfg.TranscriptDir)
	if err != nil {
		return nil, err
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Engine{
		client:      anthropic.NewClient(options...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxTurns:    cfg.MaxTurns,
		system:      cfg.SystemPrompt,
		gate:        cfg.Gate,
		registry:    cfg.Registry,
		transcripts: transcripts,
		logger:      cfg.Logger.With("component", "claude"),
	}, nil
}

// Run executes one turn, resuming from req.ResumeToken when a transcript for
// it exists. On success the transcript is saved under a fresh token and the
// old one is removed.
func (e *Engine) Run(ctx context.Context, req engine.Request) (*engine.Result, error) {
	records, err := e.transcripts.Load(req.ResumeToken)
	if err != nil {
		e.logger.Warn("transcript load failed, starting fresh",
			"token", req.ResumeToken, "error", err)
		records = nil
	}

	records = append(records, turnRecord{Role: "user", Text: req.Prompt})
	messages, err := buildMessages(records, req.Attachments)
	if err != nil {
		return nil, err
	}

	finalText := ""
	for turn := 0; turn < e.maxTurns; turn++ {
		stream := e.client.Messages.NewStreaming(ctx, e.buildParams(messages))
		text, calls, err := consumeStream(stream, req.OnActivity)
		if err != nil {
			if ctx.Err() != nil {
				return nil, engine.ErrAborted
			}
			return nil, fmt.Errorf("claude: stream: %w", err)
		}

		if text != "" {
			finalText = text
		}
		if text == "" && len(calls) == 0 {
			break
		}

		assistant := turnRecord{Role: "assistant", Text: text, ToolCalls: calls}
		records = append(records, assistant)
		assistantMsg, err := recordToMessage(assistant, nil)
		if err != nil {
			return nil, err
		}
		messages = append(messages, assistantMsg)

		if len(calls) == 0 {
			break
		}

		results := turnRecord{Role: "user"}
		for _, call := range calls {
			if ctx.Err() != nil {
				return nil, engine.ErrAborted
			}
			if req.OnActivity != nil {
				req.OnActivity(activityLabel(call))
			}
			results.ToolResults = append(results.ToolResults, e.runTool(ctx, req, call))
		}
		records = append(records, results)
		resultsMsg, err := recordToMessage(results, nil)
		if err != nil {
			return nil, err
		}
		messages = append(messages, resultsMsg)
	}

	token := uuid.NewString()
	if err := e.transcripts.Save(token, records); err != nil {
		return nil, err
	}
	if req.ResumeToken != "" && req.ResumeToken != token {
		if err := e.transcripts.Delete(req.ResumeToken); err != nil {
			e.logger.Warn("stale transcript cleanup failed",
				"token", req.ResumeToken, "error", err)
		}
	}

	return &engine.Result{Text: finalText, ResumeToken: token}, nil
}

func (e *Engine) buildParams(messages []anthropic.MessageParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		Messages:  messages,
		MaxTokens: int64(e.maxTokens),
	}
	if e.system != nil {
		if prompt := e.system(); prompt != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: prompt}}
		}
	}
	params.Tools = e.buildTools()
	return params
}

func (e *Engine) buildTools() []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, tool := range e.registry.All() {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			e.logger.Warn("skipping tool with invalid schema",
				"tool", tool.Name(), "error", err)
			continue
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(tool.Description())
		}
		result = append(result, param)
	}
	return result
}

// runTool gates and executes one tool call. Failures become error results so
// the model can see them and adjust.
func (e *Engine) runTool(ctx context.Context, req engine.Request, call toolCallRecord) toolResultRecord {
	var params map[string]any
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &params); err != nil {
			return toolResultRecord{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("invalid tool input: %v", err),
				IsError:    true,
			}
		}
	}

	decision := e.gate.Decide(call.Name, params)
	if !decision.Allow {
		return toolResultRecord{
			ToolCallID: call.ID,
			Content:    "permission denied: " + decision.Reason,
			IsError:    true,
		}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return toolResultRecord{
			ToolCallID: call.ID,
			Content:    "unknown tool: " + call.Name,
			IsError:    true,
		}
	}

	result, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return toolResultRecord{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool failed: %v", err),
			IsError:    true,
		}
	}
	return toolResultRecord{
		ToolCallID: call.ID,
		Content:    result.Content,
		IsError:    result.IsError,
	}
}

// activityLabel derives a short progress label from a tool call.
func activityLabel(call toolCallRecord) string {
	var params map[string]any
	_ = json.Unmarshal(call.Input, &params)
	str := func(key string) string {
		s, _ := params[key].(string)
		return s
	}

	switch {
	case call.Name == "Read":
		if path := str("file_path"); path != "" {
			return "Reading: " + shortPath(path)
		}
	case call.Name == "Grep":
		if pattern := str("pattern"); pattern != "" {
			return "Searching: " + clip(pattern, 30)
		}
	case call.Name == "Glob":
		return "Finding files..."
	case call.Name == "Bash":
		command := str("command")
		if idx := strings.IndexByte(command, '\n'); idx >= 0 {
			command = command[:idx]
		}
		if command != "" {
			return "Running: " + clip(command, 30)
		}
	case call.Name == "Edit" || call.Name == "Write":
		return "Editing file..."
	case strings.HasPrefix(call.Name, "mcp__"):
		return "Searching web..."
	}
	return "Using: " + call.Name
}

// shortPath keeps the last two path segments.
func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}

func clip(text string, limit int) string {
	if len(text) > limit {
		return text[:limit]
	}
	return text
}

// consumeStream drains one streaming response, returning the assistant text
// and any tool calls the model requested.
func consumeStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], onActivity func(string)) (string, []toolCallRecord, error) {
	var text strings.Builder
	var calls []toolCallRecord
	var currentCall *toolCallRecord
	var currentInput strings.Builder
	emptyEvents := 0

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			processed = true

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentCall = &toolCallRecord{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}
			processed = true

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if onActivity != nil {
						onActivity("Writing response...")
					}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentCall != nil {
				input := currentInput.String()
				if input == "" {
					input = "{}"
				}
				currentCall.Input = json.RawMessage(input)
				calls = append(calls, *currentCall)
				currentCall = nil
			}
			processed = true

		case "message_delta":
			processed = true

		case "message_stop":
			return text.String(), calls, nil

		case "error":
			return "", nil, errors.New("server reported a stream error")
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				return "", nil, fmt.Errorf("malformed stream: %d consecutive empty events", emptyEvents)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return "", nil, err
	}
	return text.String(), calls, nil
}

// buildMessages converts transcript records to API messages. Attachments are
// appended to the final user message only; they are not persisted.
func buildMessages(records []turnRecord, attachments []engine.Attachment) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam
	for i, record := range records {
		var extra []engine.Attachment
		if i == len(records)-1 && record.Role == "user" {
			extra = attachments
		}
		msg, err := recordToMessage(record, extra)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func recordToMessage(record turnRecord, attachments []engine.Attachment) (anthropic.MessageParam, error) {
	var content []anthropic.ContentBlockParamUnion

	if record.Text != "" {
		content = append(content, anthropic.NewTextBlock(record.Text))
	}
	for _, att := range attachments {
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		content = append(content, anthropic.NewImageBlockBase64(att.MediaType, encoded))
	}
	for _, result := range record.ToolResults {
		content = append(content, anthropic.NewToolResultBlock(
			result.ToolCallID, result.Content, result.IsError))
	}
	for _, call := range record.ToolCalls {
		var input map[string]interface{}
		if err := json.Unmarshal(call.Input, &input); err != nil {
			return anthropic.MessageParam{}, fmt.Errorf("claude: invalid tool call input: %w", err)
		}
		content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
	}

	if record.Role == "assistant" {
		return anthropic.NewAssistantMessage(content...), nil
	}
	return anthropic.NewUserMessage(content...), nil
}
