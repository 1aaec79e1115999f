package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"relay/internal/llm/core"
)

// ErrNoUserMessage means a request carried no user-authored message to
// run the turn on.
var ErrNoUserMessage = errors.New("request contains no user message")

// Executor adapts request-shaped input to the session loop: callers
// hand over a full message list, the last user-authored message
// becomes the new utterance, and everything else seeds the history.
type Executor struct {
	session *Session
}

// NewExecutor wraps a session.
func NewExecutor(session *Session) *Executor {
	return &Executor{session: session}
}

// Run splits messages into prior history plus the new utterance and
// streams the resulting turn. A request without any user message fails
// fast with a single error event.
func (e *Executor) Run(ctx context.Context, messages []core.Message) (<-chan Event, error) {
	idx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 {
		out := make(chan Event, 1)
		out <- Event{Kind: EventError, Err: ErrNoUserMessage}
		close(out)
		return out, nil
	}

	prior := make([]core.Message, 0, len(messages)-1)
	prior = append(prior, messages[:idx]...)
	prior = append(prior, messages[idx+1:]...)
	if err := e.session.Seed(prior); err != nil {
		return nil, err
	}
	return e.session.Stream(ctx, messages[idx].Text())
}

// NormalizeMessages converts loosely shaped message payloads, as
// produced by chat-completions clients, into the canonical form.
// Content may be a plain string or a list of typed parts.
func NormalizeMessages(raw []map[string]any) ([]core.Message, error) {
	out := make([]core.Message, 0, len(raw))
	for i, item := range raw {
		blob, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		var probe struct {
			Role       string          `json:"role"`
			Content    json.RawMessage `json:"content"`
			ToolCalls  []core.ToolCall `json:"tool_calls"`
			ToolCallID string          `json:"tool_call_id"`
			Name       string          `json:"name"`
		}
		if err := json.Unmarshal(blob, &probe); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if probe.Role == "" {
			return nil, fmt.Errorf("message %d: missing role", i)
		}

		msg := core.Message{
			Role:       core.Role(probe.Role),
			ToolCalls:  probe.ToolCalls,
			ToolCallID: probe.ToolCallID,
			Name:       probe.Name,
		}
		if len(probe.Content) > 0 && string(probe.Content) != "null" {
			var text string
			if err := json.Unmarshal(probe.Content, &text); err == nil {
				msg.Content = text
			} else {
				var parts []core.ContentPart
				if err := json.Unmarshal(probe.Content, &parts); err != nil {
					return nil, fmt.Errorf("message %d: unsupported content shape", i)
				}
				msg.Parts = parts
			}
		}
		out = append(out, msg)
	}
	return out, nil
}
