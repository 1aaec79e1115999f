// Package filter suppresses tool-call JSON that models leak into the
// user-visible content channel. Detection works chunk-by-chunk with no
// access to the complete message; chunk boundaries are arbitrary.
package filter

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultMaxBuffer bounds accumulation from pathological streams that
// never resolve into something classifiable.
const DefaultMaxBuffer = 2000

// Buffer accumulates content deltas until they can be classified as a
// leaked tool call (suppressed), still-ambiguous (held), or ordinary
// content (emitted).
type Buffer struct {
	buf strings.Builder
	max int
}

// NewBuffer creates a filter buffer. maxSize <= 0 selects
// DefaultMaxBuffer.
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBuffer
	}
	return &Buffer{max: maxSize}
}

// Len reports the currently buffered byte count.
func (b *Buffer) Len() int { return b.buf.Len() }

// Reset drops any held content.
func (b *Buffer) Reset() { b.buf.Reset() }

// AddChunk consumes one content delta. It returns the text to show the
// user (possibly empty while accumulation is ambiguous) and whether a
// completed tool-call payload was suppressed.
func (b *Buffer) AddChunk(chunk string) (string, bool) {
	if chunk == "" {
		return "", false
	}

	b.buf.WriteString(chunk)
	if b.buf.Len() > b.max {
		// Drop the oldest half so a runaway stream cannot grow the
		// buffer without bound.
		held := b.buf.String()
		b.buf.Reset()
		b.buf.WriteString(held[len(held)/2:])
	}

	held := b.buf.String()
	switch {
	case isToolCallJSON(held), isFencedToolCallJSON(held):
		b.buf.Reset()
		return "", true
	case stillAccumulating(held):
		return "", false
	default:
		b.buf.Reset()
		return held, false
	}
}

// Flush releases whatever is still held once the stream ends. Content
// that never resolved into a tool call belongs to the user.
func (b *Buffer) Flush() string {
	held := b.buf.String()
	b.buf.Reset()
	if isToolCallJSON(held) || isFencedToolCallJSON(held) {
		return ""
	}
	return held
}

// isToolCallJSON reports whether content is a complete bare tool-call
// object: brace-delimited, valid JSON with both "name" and "arguments"
// keys, and referencing "tool" somewhere (case-insensitive). The last
// requirement keeps ordinary data objects that happen to carry
// name/arguments keys visible.
func isToolCallJSON(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return false
	}
	if !strings.Contains(trimmed, `"name"`) && !strings.Contains(trimmed, `"arguments"`) {
		return false
	}
	if !strings.Contains(strings.ToLower(trimmed), "tool") {
		return false
	}
	return isToolCallObject(trimmed)
}

// isFencedToolCallJSON reports whether content is a closed markdown
// fence wrapping a tool-call object. Fenced form is unambiguous enough
// that the "tool" substring requirement is dropped.
func isFencedToolCallJSON(content string) bool {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return false
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 3 {
		return false
	}
	inner := strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	if !strings.HasPrefix(inner, "{") || !strings.HasSuffix(inner, "}") {
		return false
	}
	if !strings.Contains(inner, `"name"`) && !strings.Contains(inner, `"arguments"`) {
		return false
	}
	return isToolCallObject(inner)
}

func isToolCallObject(candidate string) bool {
	if !gjson.Valid(candidate) {
		return false
	}
	parsed := gjson.Parse(candidate)
	if !parsed.IsObject() {
		return false
	}
	return parsed.Get("name").Exists() && parsed.Get("arguments").Exists()
}

// toolFragmentRe matches a buffer that consists solely of tool-call
// key fragments, e.g. `"name"` or `"arguments":`, as streamed before
// the surrounding object arrives.
var toolFragmentRe = regexp.MustCompile(`(?i)^["{,\s]*"?(name|arguments|code_description|current_code_context)"?\s*[:,]?\s*$`)

// stillAccumulating decides whether the held content may yet turn into
// a suppressible tool call and must not be shown.
func stillAccumulating(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}

	// Open markdown fence: everything is held until the fence closes.
	if strings.HasPrefix(trimmed, "```") {
		return !strings.Contains(trimmed[3:], "```")
	}

	// Possible JSON object still streaming. A lone "{" may open one; a
	// brace-wrapped identifier like {limit} is a templating token, not
	// JSON — real JSON-in-progress shows a quote and a colon. Anything
	// quote-and-colon shaped is held until it parses; a trailing "}"
	// alone does not mean the object is finished.
	if strings.HasPrefix(trimmed, "{") {
		if trimmed == "{" {
			return true
		}
		if !strings.Contains(trimmed, `"`) || !strings.Contains(trimmed, ":") {
			return false
		}
		return !gjson.Valid(trimmed)
	}

	// Bare tool-call key fragments ahead of their object.
	return toolFragmentRe.MatchString(trimmed)
}
