package telegram

import (
	"strings"
	"testing"
)

func TestWrapPrompt(t *testing.T) {
	wrapped := wrapPrompt("fix the build")
	if !strings.Contains(wrapped, "<tg_message>\nfix the build\n</tg_message>") {
		t.Errorf("wrapped prompt missing message body:\n%s", wrapped)
	}
	if !strings.Contains(wrapped, "<tg_format>") {
		t.Error("wrapped prompt missing format instructions")
	}
}

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "/start"},
		{"/start@moltbook_bot", "/start"},
		{"/status extra words", "/status"},
		{"/stop@moltbook_bot now", "/stop"},
		{"/stop\nmore", "/stop"},
		{"plain text", ""},
		{"! /start", ""},
		{"hello /status", ""},
	}

	for _, tt := range tests {
		if got := command(tt.text); got != tt.want {
			t.Errorf("command(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestAlbumKeyRoundTrip(t *testing.T) {
	key := albumKey(42, -100123, "group:with:colons")
	userID, chatID, ok := parseAlbumKey(key)
	if !ok {
		t.Fatalf("parseAlbumKey(%q) failed", key)
	}
	if userID != 42 || chatID != -100123 {
		t.Errorf("got user %d chat %d, want 42 and -100123", userID, chatID)
	}
}

func TestParseAlbumKeyMalformed(t *testing.T) {
	for _, key := range []string{"", "1", "1:2", "x:y:z"} {
		if _, _, ok := parseAlbumKey(key); ok {
			t.Errorf("parseAlbumKey(%q) = ok, want failure", key)
		}
	}
}

func TestSendFilePattern(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"done [SEND_FILE:/home/agent/out.pdf]", []string{"/home/agent/out.pdf"}},
		{"[SEND_FILE:/a] and [SEND_FILE:/b]", []string{"/a", "/b"}},
		{"no markers here", nil},
		{"[SEND_FILE:]", nil},
	}

	for _, tt := range tests {
		matches := sendFilePattern.FindAllStringSubmatch(tt.text, -1)
		var got []string
		for _, m := range matches {
			got = append(got, m[1])
		}
		if len(got) != len(tt.want) {
			t.Errorf("paths in %q = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("paths in %q = %v, want %v", tt.text, got, tt.want)
			}
		}
	}
}
