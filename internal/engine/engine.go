// Package engine defines the contract between the run controller and the
// model backend. The controller treats the backend as opaque: it hands over a
// prompt plus an optional resume token, observes tool activity for status
// reporting, and receives final text and the token for the next turn.
package engine

import (
	"context"
	"errors"
)

// ErrAborted reports that a run ended because its context was cancelled,
// either by supersession or an explicit stop. Callers treat it as a quiet
// outcome rather than a failure.
var ErrAborted = errors.New("engine: run aborted")

// Attachment is an image handed to the model alongside the prompt.
type Attachment struct {
	MediaType string
	Data      []byte
}

// Request describes a single turn.
type Request struct {
	Prompt      string
	ResumeToken string
	WorkingDir  string
	Attachments []Attachment

	// OnActivity, when set, receives human-readable labels for tool
	// activity as it happens ("Reading: main.go", "Running: ls"). Called
	// from the engine's goroutine; implementations must not block.
	OnActivity func(label string)
}

// Result is the outcome of a completed turn.
type Result struct {
	// Text is the assistant's final reply. Empty when the model produced
	// no text output.
	Text string

	// ResumeToken identifies the conversation for the next turn. Always
	// set on success, even when Text is empty.
	ResumeToken string
}

// Engine runs turns against a model backend.
type Engine interface {
	Run(ctx context.Context, req Request) (*Result, error)
}
