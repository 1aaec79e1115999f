package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relay/internal/llm/core"
)

func serveChunks(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Errorf("response writer does not implement flusher")
			return
		}
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

// TestStreamEmitsContentDeltaAndDone verifies basic text streaming emits delta and done events.
func TestStreamEmitsContentDeltaAndDone(t *testing.T) {
	t.Parallel()

	server := serveChunks(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"hi"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`,
	})
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := p.Stream(ctx, &core.Request{
		Model:    "gpt-4o-mini",
		Messages: []core.Message{core.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var content string
	var done *core.DonePayload
	for ev := range stream {
		switch ev.Type {
		case core.EventDelta:
			content += ev.Delta.Content
			if len(ev.Delta.Raw) == 0 {
				t.Errorf("delta missing raw chunk")
			}
		case core.EventDone:
			done = ev.Done
		case core.EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if content != "hi" {
		t.Fatalf("content = %q, want %q", content, "hi")
	}
	if done == nil {
		t.Fatalf("missing done event")
	}
	if done.FinishReason != "stop" {
		t.Fatalf("finish reason = %q, want %q", done.FinishReason, "stop")
	}
	if done.Usage.TotalTokens != 12 {
		t.Fatalf("usage total = %d, want 12", done.Usage.TotalTokens)
	}
}

// TestStreamReconstructsFragmentedToolCall verifies indexed tool-call
// fragments arrive with index, id, name and split argument text intact.
func TestStreamReconstructsFragmentedToolCall(t *testing.T) {
	t.Parallel()

	server := serveChunks(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"search","arguments":""}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	})
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := p.Stream(ctx, &core.Request{
		Model:    "gpt-4o-mini",
		Messages: []core.Message{core.UserMessage("find go")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var id, name, args string
	var finish string
	for ev := range stream {
		switch ev.Type {
		case core.EventDelta:
			for _, tc := range ev.Delta.ToolCalls {
				if tc.Index != 0 {
					t.Fatalf("tool call index = %d, want 0", tc.Index)
				}
				if tc.ID != "" {
					id = tc.ID
				}
				if tc.Name != "" {
					name = tc.Name
				}
				args += tc.Arguments
			}
		case core.EventDone:
			finish = ev.Done.FinishReason
		case core.EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if id != "call_1" || name != "search" {
		t.Fatalf("tool call identity = (%q, %q), want (call_1, search)", id, name)
	}
	if args != `{"query":"go"}` {
		t.Fatalf("arguments = %q", args)
	}
	if finish != "tool_calls" {
		t.Fatalf("finish reason = %q, want %q", finish, "tool_calls")
	}
}

// TestStreamTransportFailureIsTerminal verifies an HTTP failure yields
// exactly one error event and no retry traffic.
func TestStreamTransportFailureIsTerminal(t *testing.T) {
	t.Parallel()

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	stream, err := p.Stream(context.Background(), &core.Request{
		Model:    "gpt-4o-mini",
		Messages: []core.Message{core.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var errEvents int
	for ev := range stream {
		if ev.Type == core.EventError {
			errEvents++
			if ev.Err == nil {
				t.Fatalf("error event carries nil error")
			}
		}
	}
	if errEvents != 1 {
		t.Fatalf("error events = %d, want 1", errEvents)
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1 (no retry)", requests)
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	_, err := p.Stream(context.Background(), &core.Request{
		Model:    "gpt-4o-mini",
		Messages: []core.Message{core.UserMessage("hello")},
	})
	if !errors.Is(err, core.ErrMissingAPIKey) {
		t.Fatalf("Stream() error = %v, want missing api key", err)
	}
}

func TestResolveBaseURL(t *testing.T) {
	t.Parallel()

	table := DefaultBaseURLs()

	tests := []struct {
		provider string
		want     string
	}{
		{"openrouter", "https://openrouter.ai/api/v1"},
		{"Groq", "https://api.groq.com/openai/v1"},
		{"google-genai", "https://generativelanguage.googleapis.com/v1beta/openai/"},
		{"openai", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := ResolveBaseURL(table, tc.provider); got != tc.want {
			t.Fatalf("ResolveBaseURL(%q) = %q, want %q", tc.provider, got, tc.want)
		}
	}
}
