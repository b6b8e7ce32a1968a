// Package markdown flattens model output for chat delivery. Replies are sent
// as plain text, so markdown syntax is stripped rather than rendered, and
// long replies are split into chunks under the transport's message limit.
package markdown

import (
	"regexp"
	"strings"
)

// ChunkLimit is the maximum size of one outgoing message.
const ChunkLimit = 4000

var (
	codeFence  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)\n?```")
	inlineCode = regexp.MustCompile("`([^`]*)`")
	bold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldAlt    = regexp.MustCompile(`__([^_]+)__`)
	italic     = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicAlt  = regexp.MustCompile(`(^|\s)_([^_\n]+)_`)
	header     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	link       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	bullet     = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
)

// Strip removes markdown syntax, keeping the readable content.
func Strip(text string) string {
	out := codeFence.ReplaceAllString(text, "$1")
	out = inlineCode.ReplaceAllString(out, "$1")
	out = bold.ReplaceAllString(out, "$1")
	out = boldAlt.ReplaceAllString(out, "$1")
	out = italic.ReplaceAllString(out, "$1")
	out = italicAlt.ReplaceAllString(out, "$1$2")
	out = header.ReplaceAllString(out, "")
	out = link.ReplaceAllString(out, "$1")
	out = bullet.ReplaceAllString(out, "$1• ")
	return strings.TrimSpace(out)
}

// Chunk splits text into pieces of at most ChunkLimit characters, preferring
// to break at newlines and falling back to spaces before cutting mid-word.
func Chunk(text string) []string {
	return chunk(text, ChunkLimit)
}

func chunk(text string, limit int) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		if idx := strings.LastIndex(text[:limit], "\n"); idx > 0 {
			cut = idx
		} else if idx := strings.LastIndex(text[:limit], " "); idx > 0 {
			cut = idx
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n "))
		text = strings.TrimLeft(text[cut:], "\n ")
	}
	if text = strings.TrimRight(text, "\n "); text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
