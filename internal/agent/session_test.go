package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relay/internal/llm/core"
	mockprovider "relay/internal/llm/providers/mock"
	"relay/internal/tools"
)

// recordingTool captures the raw params of every invocation.
type recordingTool struct {
	name   string
	result tools.Result
	err    error

	mu    sync.Mutex
	calls []string
}

func (t *recordingTool) Name() string                { return t.name }
func (t *recordingTool) Description() string         { return "test tool" }
func (t *recordingTool) Schema() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (t *recordingTool) recordedCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *recordingTool) Execute(_ context.Context, params json.RawMessage) (tools.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, string(params))
	t.mu.Unlock()
	return t.result, t.err
}

func newTestSession(t *testing.T, mp *mockprovider.Provider, cfg Config) *Session {
	t.Helper()
	cfg.Provider = mp
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	cfg.Logger = zerolog.Nop()
	session, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return session
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, open := <-events:
			if !open {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(out))
		}
	}
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestStreamFinalAnswer(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("Hello ", "world"),
	}}
	session := newTestSession(t, mp, Config{})

	events, err := session.Stream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	deltas := eventsOfKind(got, EventContentDelta)
	if len(deltas) != 2 || deltas[0].Text != "Hello " || deltas[1].Text != "world" {
		t.Fatalf("content deltas = %+v", deltas)
	}

	finals := eventsOfKind(got, EventFinal)
	if len(finals) != 1 {
		t.Fatalf("final events = %d, want 1", len(finals))
	}
	history := finals[0].History
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != core.RoleUser || history[0].Content != "hi" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Role != core.RoleAssistant || history[1].Content != "Hello world" {
		t.Fatalf("history[1] = %+v", history[1])
	}
	if len(eventsOfKind(got, EventError)) != 0 {
		t.Fatalf("unexpected error events: %+v", got)
	}
}

func TestStreamSkipsDuplicateUserMessage(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("ok"),
	}}
	session := newTestSession(t, mp, Config{})
	if err := session.Seed([]core.Message{core.UserMessage("hi")}); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	events, err := session.Stream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	collect(t, events)

	req := mp.RequestAt(0)
	if req == nil {
		t.Fatalf("no request recorded")
	}
	users := 0
	for _, msg := range req.Messages {
		if msg.Role == core.RoleUser {
			users++
		}
	}
	if users != 1 {
		t.Fatalf("user messages in request = %d, want 1", users)
	}
}

func TestSystemPromptPinnedAtMostOnce(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("one"),
		mockprovider.ContentTurn("two"),
	}}
	session := newTestSession(t, mp, Config{SystemPrompt: "be terse"})

	for _, text := range []string{"first", "second"} {
		events, err := session.Stream(context.Background(), text)
		if err != nil {
			t.Fatalf("Stream(%q) error: %v", text, err)
		}
		collect(t, events)
	}

	req := mp.RequestAt(1)
	if req == nil {
		t.Fatalf("second request not recorded")
	}
	if req.Messages[0].Role != core.RoleSystem || req.Messages[0].Content != "be terse" {
		t.Fatalf("messages[0] = %+v", req.Messages[0])
	}
	systems := 0
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Fatalf("system messages = %d, want 1", systems)
	}
}

func TestFragmentedToolCallReconstruction(t *testing.T) {
	t.Parallel()

	echo := &recordingTool{name: "echo", result: tools.Result{Content: "echoed"}}
	registry := tools.NewRegistry(echo)

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ToolCallTurn(
			core.ToolCallDelta{Index: 0, ID: "call_1", Type: "function", Name: "echo"},
			core.ToolCallDelta{Index: 0, Arguments: `{"te`},
			core.ToolCallDelta{Index: 0, Arguments: `xt":"hi"}`},
		),
		mockprovider.ContentTurn("done"),
	}}
	session := newTestSession(t, mp, Config{Tools: registry})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	calls := echo.recordedCalls()
	if len(calls) != 1 || calls[0] != `{"text":"hi"}` {
		t.Fatalf("tool params = %v", calls)
	}

	outputs := eventsOfKind(got, EventToolOutput)
	if len(outputs) != 1 || outputs[0].ToolName != "echo" || outputs[0].Text != "echoed" {
		t.Fatalf("tool output events = %+v", outputs)
	}

	// The second request must carry assistant(tool_calls) then the tool
	// result, in that order.
	req := mp.RequestAt(1)
	if req == nil {
		t.Fatalf("second request not recorded")
	}
	n := len(req.Messages)
	assistant, toolMsg := req.Messages[n-2], req.Messages[n-1]
	if assistant.Role != core.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", assistant)
	}
	if assistant.ToolCalls[0].Arguments != `{"text":"hi"}` {
		t.Fatalf("reconstructed arguments = %q", assistant.ToolCalls[0].Arguments)
	}
	if toolMsg.Role != core.RoleTool || toolMsg.ToolCallID != "call_1" || toolMsg.Content != "echoed" {
		t.Fatalf("tool message = %+v", toolMsg)
	}
}

func TestOutOfOrderToolCallIndices(t *testing.T) {
	t.Parallel()

	alpha := &recordingTool{name: "alpha", result: tools.Result{Content: "a"}}
	beta := &recordingTool{name: "beta", result: tools.Result{Content: "b"}}
	registry := tools.NewRegistry(alpha, beta)

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ToolCallTurn(
			core.ToolCallDelta{Index: 1, Name: "beta", Arguments: "{}"},
			core.ToolCallDelta{Index: 0, ID: "call_a", Type: "function", Name: "alpha", Arguments: "{}"},
		),
		mockprovider.ContentTurn("done"),
	}}
	session := newTestSession(t, mp, Config{Tools: registry})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	collect(t, events)

	req := mp.RequestAt(1)
	if req == nil {
		t.Fatalf("second request not recorded")
	}
	var assistant core.Message
	for _, msg := range req.Messages {
		if msg.Role == core.RoleAssistant {
			assistant = msg
		}
	}
	if len(assistant.ToolCalls) != 2 {
		t.Fatalf("tool calls = %+v", assistant.ToolCalls)
	}
	if assistant.ToolCalls[0].Name != "alpha" || assistant.ToolCalls[0].ID != "call_a" {
		t.Fatalf("calls[0] = %+v", assistant.ToolCalls[0])
	}
	if assistant.ToolCalls[1].Name != "beta" {
		t.Fatalf("calls[1] = %+v", assistant.ToolCalls[1])
	}
	// Index 1 arrived before index 0, so its slot was created as a
	// placeholder with a synthesized id.
	if !strings.HasPrefix(assistant.ToolCalls[1].ID, "call_") || len(assistant.ToolCalls[1].ID) < 10 {
		t.Fatalf("placeholder id = %q", assistant.ToolCalls[1].ID)
	}
}

func TestInvalidArgumentsCoercedToEmptyObject(t *testing.T) {
	t.Parallel()

	broken := &recordingTool{name: "broken_args", result: tools.Result{Content: "ran"}}
	registry := tools.NewRegistry(broken)

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ToolCallTurn(
			core.ToolCallDelta{Index: 0, ID: "call_1", Type: "function", Name: "broken_args", Arguments: `{"unterminated":`},
		),
		mockprovider.ContentTurn("done"),
	}}
	session := newTestSession(t, mp, Config{Tools: registry})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	calls := broken.recordedCalls()
	if len(calls) != 1 || calls[0] != "{}" {
		t.Fatalf("tool params = %v, want coerced {}", calls)
	}
	if len(eventsOfKind(got, EventError)) != 0 {
		t.Fatalf("coercion must not fail the turn: %+v", got)
	}
}

func TestToolFaultsAreIsolatedWithinBatch(t *testing.T) {
	t.Parallel()

	ok := &recordingTool{name: "ok_tool", result: tools.Result{Content: "fine"}}
	failing := &recordingTool{name: "fail_tool", err: errors.New("disk full")}
	registry := tools.NewRegistry(ok, failing)

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ToolCallTurn(
			core.ToolCallDelta{Index: 0, ID: "c0", Type: "function", Name: "ok_tool", Arguments: "{}"},
			core.ToolCallDelta{Index: 1, ID: "c1", Type: "function", Name: "missing_tool", Arguments: "{}"},
			core.ToolCallDelta{Index: 2, ID: "c2", Type: "function", Name: "fail_tool", Arguments: "{}"},
		),
		mockprovider.ContentTurn("done"),
	}}
	session := newTestSession(t, mp, Config{Tools: registry})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	if n := len(eventsOfKind(got, EventToolOutput)); n != 1 {
		t.Fatalf("tool output events = %d, want 1", n)
	}
	if n := len(eventsOfKind(got, EventToolOutputError)); n != 2 {
		t.Fatalf("tool output error events = %d, want 2", n)
	}
	if n := len(eventsOfKind(got, EventFinal)); n != 1 {
		t.Fatalf("final events = %d, want 1: batch must survive per-call faults", n)
	}

	// All three tool messages are committed in call order.
	req := mp.RequestAt(1)
	if req == nil {
		t.Fatalf("second request not recorded")
	}
	var toolMsgs []core.Message
	for _, msg := range req.Messages {
		if msg.Role == core.RoleTool {
			toolMsgs = append(toolMsgs, msg)
		}
	}
	if len(toolMsgs) != 3 {
		t.Fatalf("tool messages = %d, want 3", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "c0" || toolMsgs[0].Content != "fine" {
		t.Fatalf("toolMsgs[0] = %+v", toolMsgs[0])
	}
	if toolMsgs[1].ToolCallID != "c1" || !strings.Contains(toolMsgs[1].Content, "not available") {
		t.Fatalf("toolMsgs[1] = %+v", toolMsgs[1])
	}
	if toolMsgs[2].ToolCallID != "c2" || !strings.Contains(toolMsgs[2].Content, "disk full") {
		t.Fatalf("toolMsgs[2] = %+v", toolMsgs[2])
	}
}

func TestIterationCeilingEmitsSingleError(t *testing.T) {
	t.Parallel()

	loop := &recordingTool{name: "loop_tool", result: tools.Result{Content: "again"}}
	registry := tools.NewRegistry(loop)

	// The single script repeats, so the model asks for a tool forever.
	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ToolCallTurn(
			core.ToolCallDelta{Index: 0, ID: "c", Type: "function", Name: "loop_tool", Arguments: "{}"},
		),
	}}
	session := newTestSession(t, mp, Config{Tools: registry, MaxIterations: 3})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	if mp.StreamCalls() != 3 {
		t.Fatalf("model calls = %d, want exactly 3", mp.StreamCalls())
	}
	errs := eventsOfKind(got, EventError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want exactly 1", len(errs))
	}
	if !strings.Contains(errs[0].Err.Error(), "Max iterations: 3") {
		t.Fatalf("error = %v", errs[0].Err)
	}
	if len(eventsOfKind(got, EventFinal)) != 0 {
		t.Fatalf("unexpected final event after ceiling")
	}
}

func TestStalledTurnContinuesLoop(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn(),
		mockprovider.ContentTurn("recovered"),
	}}
	session := newTestSession(t, mp, Config{})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	if mp.StreamCalls() != 2 {
		t.Fatalf("model calls = %d, want 2", mp.StreamCalls())
	}
	if len(eventsOfKind(got, EventError)) != 0 {
		t.Fatalf("stalled turn must not error: %+v", got)
	}
	finals := eventsOfKind(got, EventFinal)
	if len(finals) != 1 {
		t.Fatalf("final events = %d, want 1", len(finals))
	}
}

func TestProviderErrorIsTerminal(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		{{Type: core.EventError, Err: errors.New("connection reset")}},
	}}
	session := newTestSession(t, mp, Config{})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	if mp.StreamCalls() != 1 {
		t.Fatalf("model calls = %d, want 1: no retry on transport failure", mp.StreamCalls())
	}
	errs := eventsOfKind(got, EventError)
	if len(errs) != 1 || !strings.Contains(errs[0].Err.Error(), "connection reset") {
		t.Fatalf("error events = %+v", errs)
	}
}

func TestReasoningAndRawChunksForwarded(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"id":"chunk-1"}`)
	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		{
			{Type: core.EventDelta, Delta: &core.Delta{Reasoning: "thinking", Raw: raw}},
			{Type: core.EventDelta, Delta: &core.Delta{Content: "answer"}},
			{Type: core.EventDone, Done: &core.DonePayload{FinishReason: "stop"}},
		},
	}}
	session := newTestSession(t, mp, Config{})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	reasoning := eventsOfKind(got, EventReasoningDelta)
	if len(reasoning) != 1 || reasoning[0].Text != "thinking" {
		t.Fatalf("reasoning events = %+v", reasoning)
	}
	raws := eventsOfKind(got, EventRawChunk)
	if len(raws) != 1 || string(raws[0].Raw) != string(raw) {
		t.Fatalf("raw events = %+v", raws)
	}
}

func TestCatalogLoadedOncePerSession(t *testing.T) {
	t.Parallel()

	remote := &recordingTool{name: "remote_tool", result: tools.Result{Content: "r"}}
	loads := 0
	loader := func(ctx context.Context) ([]tools.Tool, error) {
		loads++
		return []tools.Tool{remote}, nil
	}

	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("one"),
		mockprovider.ContentTurn("two"),
	}}
	session := newTestSession(t, mp, Config{Catalog: loader})

	for _, text := range []string{"a", "b"} {
		events, err := session.Stream(context.Background(), text)
		if err != nil {
			t.Fatalf("Stream(%q) error: %v", text, err)
		}
		collect(t, events)
	}

	if loads != 1 {
		t.Fatalf("catalog loads = %d, want 1", loads)
	}
	req := mp.RequestAt(0)
	if req == nil || len(req.Tools) != 1 || req.Tools[0].Name != "remote_tool" {
		t.Fatalf("first request tools = %+v", req)
	}
}

func TestCatalogLoadFailureIsTerminal(t *testing.T) {
	t.Parallel()

	loader := func(ctx context.Context) ([]tools.Tool, error) {
		return nil, errors.New("server unreachable")
	}
	mp := &mockprovider.Provider{Scripts: [][]core.Event{
		mockprovider.ContentTurn("never"),
	}}
	session := newTestSession(t, mp, Config{Catalog: loader})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	got := collect(t, events)

	if mp.StreamCalls() != 0 {
		t.Fatalf("model calls = %d, want 0", mp.StreamCalls())
	}
	errs := eventsOfKind(got, EventError)
	if len(errs) != 1 || !strings.Contains(errs[0].Err.Error(), "server unreachable") {
		t.Fatalf("error events = %+v", errs)
	}
}

func TestStreamWhileRunningReturnsBusy(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{
		Scripts: [][]core.Event{mockprovider.ContentTurn("slow")},
		Delay:   50 * time.Millisecond,
	}
	session := newTestSession(t, mp, Config{})

	events, err := session.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if _, err := session.Stream(context.Background(), "again"); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("second Stream() error = %v, want ErrSessionBusy", err)
	}
	collect(t, events)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Model: "m"}); !errors.Is(err, ErrProviderRequired) {
		t.Fatalf("New without provider = %v", err)
	}
	if _, err := New(Config{Provider: &mockprovider.Provider{}}); !errors.Is(err, ErrModelRequired) {
		t.Fatalf("New without model = %v", err)
	}
}
