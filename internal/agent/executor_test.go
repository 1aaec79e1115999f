package agent

import (
	"context"
	"errors"
	"testing"

	"relay/internal/llm/core"
	mockprovider "relay/internal/llm/providers/mock"
)

func TestExecutorSplitsHistoryAndUtterance(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("ok"),
	}}
	session := newTestSession(t, mp, Config{})
	exec := NewExecutor(session)

	messages := []core.Message{
		core.UserMessage("earlier question"),
		core.AssistantMessage("earlier answer", nil),
		core.UserMessage("new question"),
	}
	events, err := exec.Run(context.Background(), messages)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	collect(t, events)

	req := mp.RequestAt(0)
	if req == nil {
		t.Fatalf("no request recorded")
	}
	want := []struct {
		role core.Role
		text string
	}{
		{core.RoleUser, "earlier question"},
		{core.RoleAssistant, "earlier answer"},
		{core.RoleUser, "new question"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("request messages = %d, want %d", len(req.Messages), len(want))
	}
	for i, w := range want {
		if req.Messages[i].Role != w.role || req.Messages[i].Text() != w.text {
			t.Fatalf("messages[%d] = %+v, want %v %q", i, req.Messages[i], w.role, w.text)
		}
	}
}

func TestExecutorFailsFastWithoutUserMessage(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{}
	session := newTestSession(t, mp, Config{})
	exec := NewExecutor(session)

	events, err := exec.Run(context.Background(), []core.Message{
		core.AssistantMessage("orphaned", nil),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)
	if len(got) != 1 || got[0].Kind != EventError || !errors.Is(got[0].Err, ErrNoUserMessage) {
		t.Fatalf("events = %+v, want single ErrNoUserMessage error event", got)
	}
	if mp.StreamCalls() != 0 {
		t.Fatalf("model calls = %d, want 0", mp.StreamCalls())
	}
}

func TestExecutorHandlesStructuredContentParts(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("ok"),
	}}
	session := newTestSession(t, mp, Config{})
	exec := NewExecutor(session)

	messages := []core.Message{
		{Role: core.RoleUser, Parts: []core.ContentPart{
			{Type: core.ContentTypeText, Text: "part one "},
			{Type: core.ContentTypeText, Text: "part two"},
		}},
	}
	events, err := exec.Run(context.Background(), messages)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	collect(t, events)

	req := mp.RequestAt(0)
	if req == nil || len(req.Messages) != 1 {
		t.Fatalf("request = %+v", req)
	}
	if req.Messages[0].Text() != "part one part two" {
		t.Fatalf("utterance = %q", req.Messages[0].Text())
	}
}

func TestNormalizeMessages(t *testing.T) {
	t.Parallel()

	raw := []map[string]any{
		{"role": "system", "content": "be nice"},
		{"role": "user", "content": []any{
			map[string]any{"type": "text", "text": "hello"},
		}},
		{"role": "assistant", "content": nil, "tool_calls": []any{
			map[string]any{"id": "c1", "type": "function", "name": "echo", "arguments": "{}"},
		}},
		{"role": "tool", "content": "result", "tool_call_id": "c1", "name": "echo"},
	}

	got, err := NormalizeMessages(raw)
	if err != nil {
		t.Fatalf("NormalizeMessages() error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("messages = %d, want 4", len(got))
	}
	if got[0].Role != core.RoleSystem || got[0].Content != "be nice" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if got[1].Text() != "hello" {
		t.Fatalf("got[1] text = %q", got[1].Text())
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].ID != "c1" {
		t.Fatalf("got[2] = %+v", got[2])
	}
	if got[3].ToolCallID != "c1" || got[3].Content != "result" {
		t.Fatalf("got[3] = %+v", got[3])
	}
}

func TestNormalizeMessagesRejectsBadShapes(t *testing.T) {
	t.Parallel()

	if _, err := NormalizeMessages([]map[string]any{{"content": "no role"}}); err == nil {
		t.Fatalf("missing role accepted")
	}
	if _, err := NormalizeMessages([]map[string]any{{"role": "user", "content": 42}}); err == nil {
		t.Fatalf("numeric content accepted")
	}
}
