package mockprovider

import (
	"context"
	"sync"
	"time"

	"relay/internal/llm/core"
)

// Provider emits predefined event scripts for deterministic tests.
// Each Stream call plays the next script in order; the last script
// repeats once the list is exhausted. Requests records every request
// received, with messages snapshotted at call time.
type Provider struct {
	Scripts [][]core.Event
	Delay   time.Duration

	mu       sync.Mutex
	calls    int
	Requests []*core.Request
}

// StreamCalls reports how many times Stream has been invoked.
func (m *Provider) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RequestAt returns the n-th recorded request, or nil.
func (m *Provider) RequestAt(n int) *core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.Requests) {
		return nil
	}
	return m.Requests[n]
}

// Stream emits the next scripted event sequence until exhaustion or
// cancellation.
func (m *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	m.mu.Lock()
	var script []core.Event
	if len(m.Scripts) > 0 {
		idx := m.calls
		if idx >= len(m.Scripts) {
			idx = len(m.Scripts) - 1
		}
		script = m.Scripts[idx]
	}
	m.calls++
	if req != nil {
		snapshot := *req
		snapshot.Messages = core.CloneMessages(req.Messages)
		m.Requests = append(m.Requests, &snapshot)
	}
	m.mu.Unlock()

	out := make(chan core.Event, 1)
	go func() {
		defer close(out)
		for _, ev := range script {
			if m.Delay > 0 {
				timer := time.NewTimer(m.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					core.SendTerminalEvent(out, core.Event{Type: core.EventError, Err: ctx.Err()})
					return
				case <-timer.C:
				}
			}

			if err := core.SendEvent(ctx, out, ev); err != nil {
				core.SendTerminalEvent(out, core.Event{Type: core.EventError, Err: err})
				return
			}
		}
	}()

	return out, nil
}

// ContentTurn builds a script that streams text fragments and stops.
func ContentTurn(fragments ...string) []core.Event {
	events := make([]core.Event, 0, len(fragments)+1)
	for _, f := range fragments {
		events = append(events, core.Event{Type: core.EventDelta, Delta: &core.Delta{Content: f}})
	}
	events = append(events, core.Event{Type: core.EventDone, Done: &core.DonePayload{FinishReason: "stop"}})
	return events
}

// ToolCallTurn builds a script that streams one tool-call delta per
// event and finishes with a tool_calls stop.
func ToolCallTurn(deltas ...core.ToolCallDelta) []core.Event {
	events := make([]core.Event, 0, len(deltas)+1)
	for _, d := range deltas {
		events = append(events, core.Event{Type: core.EventDelta, Delta: &core.Delta{ToolCalls: []core.ToolCallDelta{d}}})
	}
	events = append(events, core.Event{Type: core.EventDone, Done: &core.DonePayload{FinishReason: "tool_calls"}})
	return events
}
