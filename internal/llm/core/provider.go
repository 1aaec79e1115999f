package core

import (
	"context"
	"encoding/json"
)

// Provider streams model deltas for a single chat-completion request.
// Implementations do not retry: a transport failure surfaces as a
// terminal error event and the caller decides what to do with it.
type Provider interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// ToolSpec describes a tool offered to the model.
// Schema can be generated from a Go struct via NewToolSpecFromStruct.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// Request is the provider-agnostic streaming request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
}

// EventType identifies stream event variants.
type EventType string

const (
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// ToolCallDelta is one streamed fragment of an indexed tool call.
// Index is the position the model assigns to this call within the
// turn; fragments for the same index reconstruct one call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// Delta is one incremental fragment of a streamed model response.
// Raw carries the provider-native chunk verbatim for low-level
// consumers.
type Delta struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCallDelta
	Raw       json.RawMessage
}

// Usage tracks provider token accounting for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// DonePayload carries the final status when the stream ends normally.
type DonePayload struct {
	FinishReason string
	Usage        Usage
}

// Event is the provider-agnostic streaming event.
type Event struct {
	Type  EventType
	Delta *Delta
	Done  *DonePayload
	Err   error
}
