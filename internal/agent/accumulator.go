package agent

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relay/internal/llm/core"
)

// turnAccumulator reconstructs one assistant message from streamed
// deltas. Tool-call fragments arrive tagged with an index; the list is
// padded with placeholders up to the highest index seen so fragments
// can land out of order.
type turnAccumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	calls     []core.ToolCall
}

func newCallID() string {
	id := uuid.New()
	return "call_" + hex.EncodeToString(id[:])
}

func (a *turnAccumulator) consume(delta *core.Delta) {
	if delta == nil {
		return
	}
	a.content.WriteString(delta.Content)
	a.reasoning.WriteString(delta.Reasoning)

	for _, tc := range delta.ToolCalls {
		if tc.Index < 0 {
			continue
		}
		for len(a.calls) <= tc.Index {
			a.calls = append(a.calls, core.ToolCall{ID: newCallID(), Type: "function"})
		}
		entry := &a.calls[tc.Index]
		if tc.ID != "" {
			entry.ID = tc.ID
		}
		if tc.Type != "" {
			entry.Type = tc.Type
		}
		if tc.Name != "" {
			entry.Name = tc.Name
		}
		entry.Arguments += tc.Arguments
	}
}

// finalize seals the turn into an assistant message. Argument strings
// that never became valid JSON are coerced to "{}" so the calls stay
// executable; coercion is logged, never fatal.
func (a *turnAccumulator) finalize(log zerolog.Logger) core.Message {
	calls := a.calls
	for i := range calls {
		coerced, changed := core.CoerceJSONObject(calls[i].Arguments)
		if changed {
			log.Warn().
				Str("tool", calls[i].Name).
				Str("arguments", calls[i].Arguments).
				Msg("tool call arguments invalid, coerced to empty object")
		}
		calls[i].Arguments = coerced
		if calls[i].Type == "" {
			calls[i].Type = "function"
		}
	}
	if len(calls) == 0 {
		calls = nil
	}
	return core.AssistantMessage(a.content.String(), calls)
}
