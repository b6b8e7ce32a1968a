// Package prompt serves the agent's system prompt from a file and reloads it
// when the file changes, so prompt edits take effect without a restart.
package prompt

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the current system prompt text.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	text string
}

// NewWatcher loads the prompt at path. A missing file is not an error: the
// prompt is empty until the file appears.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, logger: logger.With("component", "prompt")}
	w.reload()
	return w
}

// Get returns the current prompt text.
func (w *Watcher) Get() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("prompt read failed", "path", w.path, "error", err)
		}
		w.setText("")
		return
	}
	w.setText(string(data))
	w.logger.Info("system prompt loaded", "path", w.path, "chars", len(data))
}

func (w *Watcher) setText(text string) {
	w.mu.Lock()
	w.text = text
	w.mu.Unlock()
}

// Watch reloads the prompt on file changes until ctx is cancelled. The parent
// directory is watched rather than the file itself so editors that replace
// the file (write temp, rename) keep triggering reloads.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("prompt watch error", "error", err)
		}
	}
}
