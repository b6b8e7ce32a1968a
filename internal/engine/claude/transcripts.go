package claude

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// turnRecord is one message in a persisted conversation transcript.
type turnRecord struct {
	Role        string             `json:"role"`
	Text        string             `json:"text,omitempty"`
	ToolCalls   []toolCallRecord   `json:"tool_calls,omitempty"`
	ToolResults []toolResultRecord `json:"tool_results,omitempty"`
}

type toolCallRecord struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type toolResultRecord struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// transcriptStore persists conversation history under a state directory, one
// JSON file per resume token. A token with no file on disk means the
// conversation starts fresh, which is the correct degradation after the state
// directory is wiped.
type transcriptStore struct {
	dir string
}

func newTranscriptStore(dir string) (*transcriptStore, error) {
	if dir == "" {
		return nil, errors.New("claude: transcript dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("claude: create transcript dir: %w", err)
	}
	return &transcriptStore{dir: dir}, nil
}

func (s *transcriptStore) path(token string) (string, error) {
	if !tokenPattern.MatchString(token) {
		return "", fmt.Errorf("claude: malformed resume token %q", token)
	}
	return filepath.Join(s.dir, token+".json"), nil
}

// Load returns the transcript for token, or nil when none exists.
func (s *transcriptStore) Load(token string) ([]turnRecord, error) {
	if token == "" {
		return nil, nil
	}
	path, err := s.path(token)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claude: read transcript: %w", err)
	}

	var records []turnRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("claude: parse transcript: %w", err)
	}
	return records, nil
}

// Save writes the transcript for token, replacing any previous content.
func (s *transcriptStore) Save(token string, records []turnRecord) error {
	path, err := s.path(token)
	if err != nil {
		return err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("claude: encode transcript: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("claude: write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("claude: rename transcript: %w", err)
	}
	return nil
}

// Delete removes the transcript for token if present.
func (s *transcriptStore) Delete(token string) error {
	path, err := s.path(token)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("claude: delete transcript: %w", err)
	}
	return nil
}
