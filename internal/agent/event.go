package agent

import (
	"encoding/json"

	"relay/internal/llm/core"
)

// EventKind identifies the event variants a session emits. The set is
// closed: consumers switch over kinds rather than inspecting payload
// shapes.
type EventKind string

const (
	// EventContentDelta carries one user-visible text fragment.
	EventContentDelta EventKind = "content_delta"
	// EventReasoningDelta carries one reasoning-trace fragment.
	EventReasoningDelta EventKind = "reasoning_delta"
	// EventToolOutput carries a successful tool result.
	EventToolOutput EventKind = "tool_output"
	// EventToolOutputError carries a tool failure rendered as text.
	EventToolOutputError EventKind = "tool_output_error"
	// EventRawChunk forwards a provider-native chunk verbatim.
	EventRawChunk EventKind = "raw_chunk"
	// EventFinal carries the full conversation history once the model
	// answers without requesting tools.
	EventFinal EventKind = "final"
	// EventError is terminal; the stream closes after it.
	EventError EventKind = "error"
)

// Event is one unit of session output. Exactly the fields relevant to
// Kind are populated.
type Event struct {
	Kind EventKind

	// Text holds the fragment for content/reasoning deltas and the
	// output text for tool events.
	Text string
	// ToolName names the tool for tool-output events.
	ToolName string
	// Raw holds the provider chunk for raw-chunk events.
	Raw json.RawMessage
	// History is the full conversation snapshot for final events.
	History []core.Message
	// Err is set on error events.
	Err error
}
