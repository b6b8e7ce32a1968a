// Package runner owns the per-user run lifecycle: at most one active run per
// user, newer submissions supersede older ones, and explicit interrupts stop
// a run with a notice. Resume tokens are persisted before any output is
// delivered so a crash mid-delivery never loses conversation continuity.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/buildoak/moltbook/internal/engine"
	"github.com/buildoak/moltbook/internal/observability"
	"github.com/buildoak/moltbook/internal/sessions"
)

// Fixed user-facing notices.
const (
	NoticeNoResponse = "No response from the agent."
	NoticeStopped    = "Stopped."
)

// maxErrorLen bounds the engine error text relayed to the user.
const maxErrorLen = 300

const defaultStatusInterval = 500 * time.Millisecond

// Callbacks deliver run output to the user. All of them are optional; nil
// callbacks are skipped.
type Callbacks struct {
	// Status receives throttled tool-activity labels while the run is in
	// flight.
	Status func(label string)

	// Reply receives the final assistant text.
	Reply func(text string)

	// Notice receives fixed notices and error summaries.
	Notice func(text string)

	// Done fires once when the run has wound down, after any delivery,
	// regardless of outcome. Superseded runs that deliver nothing still
	// fire it.
	Done func()
}

// Config assembles a Runner.
type Config struct {
	Engine     engine.Engine
	Store      sessions.Store
	WorkingDir string

	// StatusInterval is the minimum gap between status updates for one run.
	StatusInterval time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// runState tracks one in-flight run. The superseded flag distinguishes "a
// newer message replaced this run" from "the user asked to stop": it is set
// at most once, just before the superseding cancellation, and consumed
// exactly once when the aborted run winds down.
type runState struct {
	cancel     context.CancelFunc
	mu         sync.Mutex
	superseded bool
	done       chan struct{}
}

func (s *runState) markSuperseded() {
	s.mu.Lock()
	s.superseded = true
	s.mu.Unlock()
}

func (s *runState) consumeSuperseded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.superseded
	s.superseded = false
	return was
}

// Runner is the per-user run controller.
type Runner struct {
	engine         engine.Engine
	store          sessions.Store
	workingDir     string
	statusInterval time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics

	mu   sync.Mutex
	runs map[int64]*runState
}

func New(cfg Config) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, errors.New("runner: engine is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("runner: session store is required")
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		engine:         cfg.Engine,
		store:          cfg.Store,
		workingDir:     cfg.WorkingDir,
		statusInterval: cfg.StatusInterval,
		logger:         cfg.Logger.With("component", "runner"),
		metrics:        cfg.Metrics,
		runs:           map[int64]*runState{},
	}, nil
}

// Start launches a run for userID. Any run already in flight for that user is
// marked superseded and cancelled first; it winds down silently because the
// user already triggered the next action. Only the newest run delivers
// output.
func (r *Runner) Start(ctx context.Context, userID int64, prompt string, attachments []engine.Attachment, cb Callbacks) {
	state := &runState{done: make(chan struct{})}
	runCtx, cancel := context.WithCancel(ctx)
	state.cancel = cancel

	r.mu.Lock()
	if prev, ok := r.runs[userID]; ok {
		prev.markSuperseded()
		prev.cancel()
	}
	r.runs[userID] = state
	r.mu.Unlock()

	go r.run(runCtx, state, userID, prompt, attachments, cb)
}

// Stop cancels the user's active run, if any, and reports whether one was in
// flight. Unlike supersession the run is not marked superseded, so it emits
// the stopped notice as it winds down. Idempotent when idle.
func (r *Runner) Stop(userID int64) bool {
	r.mu.Lock()
	state, ok := r.runs[userID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	state.cancel()
	return true
}

// Active reports whether userID has a run in flight.
func (r *Runner) Active(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[userID]
	return ok
}

// Wait blocks until the user's current run, if any, has wound down. Intended
// for tests and shutdown.
func (r *Runner) Wait(userID int64) {
	r.mu.Lock()
	state, ok := r.runs[userID]
	r.mu.Unlock()
	if ok {
		<-state.done
	}
}

func (r *Runner) run(ctx context.Context, state *runState, userID int64, prompt string, attachments []engine.Attachment, cb Callbacks) {
	defer close(state.done)
	defer r.clear(userID, state)
	if cb.Done != nil {
		defer cb.Done()
	}

	r.metrics.RunStarted()
	defer r.metrics.RunEnded()
	started := time.Now()

	resumeToken := ""
	if session, err := r.store.Get(ctx, userID); err == nil {
		resumeToken = session.ResumeToken
	} else if !errors.Is(err, sessions.ErrNotFound) {
		r.logger.Warn("session load failed, starting fresh", "user", userID, "error", err)
	}

	throttle := &statusThrottle{interval: r.statusInterval, send: cb.Status}
	result, err := r.engine.Run(ctx, engine.Request{
		Prompt:      prompt,
		ResumeToken: resumeToken,
		WorkingDir:  r.workingDir,
		Attachments: attachments,
		OnActivity:  throttle.Push,
	})

	switch {
	case err == nil:
		// Persist the token before delivery: losing the reply is
		// recoverable, losing the conversation is not.
		if putErr := r.store.Put(context.Background(), &sessions.Session{
			UserID:       userID,
			ResumeToken:  result.ResumeToken,
			LastActivity: time.Now(),
		}); putErr != nil {
			r.logger.Error("session persist failed", "user", userID, "error", putErr)
		}
		if result.Text == "" {
			notify(cb.Notice, NoticeNoResponse)
		} else {
			notify(cb.Reply, result.Text)
		}
		r.metrics.RecordRun("success", time.Since(started).Seconds())

	case errors.Is(err, engine.ErrAborted):
		if !state.consumeSuperseded() {
			notify(cb.Notice, NoticeStopped)
		}
		r.metrics.RecordRun("aborted", time.Since(started).Seconds())

	default:
		r.logger.Error("run failed", "user", userID, "error", err)
		notify(cb.Notice, "Error: "+truncateError(err))
		r.metrics.RecordRun("error", time.Since(started).Seconds())
	}
}

// clear removes state from the table unless a newer run has replaced it.
func (r *Runner) clear(userID int64, state *runState) {
	r.mu.Lock()
	if r.runs[userID] == state {
		delete(r.runs, userID)
	}
	r.mu.Unlock()
}

func notify(fn func(string), text string) {
	if fn != nil {
		fn(text)
	}
}

func truncateError(err error) string {
	text := fmt.Sprintf("%v", err)
	if len(text) > maxErrorLen {
		return text[:maxErrorLen] + "..."
	}
	return text
}

// statusThrottle forwards activity labels at most once per interval, and only
// when the label changed since the last forwarded one.
type statusThrottle struct {
	interval time.Duration
	send     func(string)

	mu        sync.Mutex
	lastLabel string
	lastSent  time.Time
}

func (t *statusThrottle) Push(label string) {
	if t.send == nil {
		return
	}
	t.mu.Lock()
	now := time.Now()
	if label == t.lastLabel || now.Sub(t.lastSent) < t.interval {
		t.mu.Unlock()
		return
	}
	t.lastLabel = label
	t.lastSent = now
	t.mu.Unlock()

	t.send(label)
}
