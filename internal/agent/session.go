// Package agent runs the streaming tool-call loop: it sends the
// conversation to a model provider, reconstructs the assistant turn
// from deltas, executes any requested tools, and feeds the results
// back until the model produces a final answer or the iteration
// ceiling is reached.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"relay/internal/llm/core"
	"relay/internal/tools"
)

// DefaultMaxIterations bounds model round-trips within one Stream call.
const DefaultMaxIterations = 15

var (
	ErrProviderRequired = errors.New("provider is required")
	ErrModelRequired    = errors.New("model is required")
	ErrSessionBusy      = errors.New("session already streaming")
)

// CatalogLoader fetches remote tools for the session. It is invoked at
// most once, before the first model call.
type CatalogLoader func(ctx context.Context) ([]tools.Tool, error)

// Config assembles a session.
type Config struct {
	Provider    core.Provider
	Model       string
	Temperature float32
	// SystemPrompt, when set, is pinned at position 0 of the history.
	SystemPrompt string
	// Tools holds locally registered tools. Optional.
	Tools *tools.Registry
	// Catalog loads remote tools once per session. Optional.
	Catalog CatalogLoader
	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int
	Logger        zerolog.Logger
}

// Session owns one conversation: its history, its tool registry, and
// the turn loop. A session streams one request at a time.
type Session struct {
	provider      core.Provider
	model         string
	temperature   float32
	systemPrompt  string
	registry      *tools.Registry
	catalog       CatalogLoader
	maxIterations int
	log           zerolog.Logger

	mu            sync.Mutex
	running       bool
	state         State
	history       []core.Message
	catalogLoaded bool
}

// New validates the configuration and builds a session.
func New(cfg Config) (*Session, error) {
	if cfg.Provider == nil {
		return nil, ErrProviderRequired
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrModelRequired
	}

	registry := cfg.Tools
	if registry == nil {
		registry = tools.NewRegistry()
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return &Session{
		provider:      cfg.Provider,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		systemPrompt:  cfg.SystemPrompt,
		registry:      registry,
		catalog:       cfg.Catalog,
		maxIterations: maxIterations,
		log:           cfg.Logger,
		state:         StateIdle,
	}, nil
}

// State reports the current loop state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a snapshot of the conversation so far.
func (s *Session) History() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.CloneMessages(s.history)
}

// Seed replaces the conversation history, typically with prior turns
// handed in by a caller that manages history externally.
func (s *Session) Seed(history []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSessionBusy
	}
	s.history = core.CloneMessages(history)
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Stream appends userText to the conversation and runs the turn loop,
// emitting events until a final answer, a terminal error, or the
// iteration ceiling. The returned channel closes when the turn ends.
func (s *Session) Stream(ctx context.Context, userText string) (<-chan Event, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.running = true
	s.mu.Unlock()

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.run(ctx, userText, out)
	}()
	return out, nil
}

func (s *Session) run(ctx context.Context, userText string, out chan<- Event) {
	if err := s.ensureCatalog(ctx); err != nil {
		s.fail(ctx, out, fmt.Errorf("load tool catalog: %w", err))
		return
	}
	s.prepareHistory(userText)

	for iteration := 0; iteration < s.maxIterations; iteration++ {
		s.setState(StateAwaitingModel)
		assistant, ok := s.modelTurn(ctx, out)
		if !ok {
			return
		}

		s.mu.Lock()
		s.history = append(s.history, assistant)
		s.mu.Unlock()

		s.setState(StateDeciding)
		switch {
		case len(assistant.ToolCalls) > 0:
			s.setState(StateExecutingTools)
			s.executeTools(ctx, assistant.ToolCalls, out)
		case strings.TrimSpace(assistant.Content) != "":
			s.setState(StateDone)
			s.send(ctx, out, Event{Kind: EventFinal, History: s.History()})
			return
		default:
			s.log.Warn().Int("iteration", iteration).Msg("model produced neither content nor tool calls, continuing")
		}
	}

	s.fail(ctx, out, fmt.Errorf(
		"Recursion limit reached without a final answer. Max iterations: %d. Please refine your prompt or tools.",
		s.maxIterations))
}

// ensureCatalog loads remote tools exactly once per session, before
// the first model call sees the tool specs.
func (s *Session) ensureCatalog(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.catalogLoaded
	s.mu.Unlock()
	if loaded || s.catalog == nil {
		s.mu.Lock()
		s.catalogLoaded = true
		s.mu.Unlock()
		return nil
	}

	remote, err := s.catalog(ctx)
	if err != nil {
		return err
	}
	for _, tool := range remote {
		if err := s.registry.Register(tool); err != nil {
			s.log.Warn().Err(err).Str("tool", tool.Name()).Msg("skipping remote tool registration")
		}
	}
	s.log.Info().Int("tools", len(remote)).Msg("remote tool catalog loaded")

	s.mu.Lock()
	s.catalogLoaded = true
	s.mu.Unlock()
	return nil
}

// prepareHistory pins the system prompt at position 0 (at most once)
// and appends the user message unless it duplicates the previous
// history entry, so retried requests do not double the utterance.
func (s *Session) prepareHistory(userText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.systemPrompt != "" {
		if len(s.history) == 0 || s.history[0].Role != core.RoleSystem {
			s.history = append([]core.Message{core.SystemMessage(s.systemPrompt)}, s.history...)
		}
	}

	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		if last.Role == core.RoleUser && last.Text() == userText {
			return
		}
	}
	s.history = append(s.history, core.UserMessage(userText))
}

// modelTurn streams one model response, forwarding deltas as events
// and reconstructing the assistant message. ok is false when the turn
// ended the session (transport error or cancellation).
func (s *Session) modelTurn(ctx context.Context, out chan<- Event) (core.Message, bool) {
	req := &core.Request{
		Model:       s.model,
		Messages:    s.History(),
		Tools:       s.registry.Specs(),
		Temperature: s.temperature,
	}

	stream, err := s.provider.Stream(ctx, req)
	if err != nil {
		s.fail(ctx, out, err)
		return core.Message{}, false
	}

	s.setState(StateStreamingDelta)
	var acc turnAccumulator
	for {
		select {
		case <-ctx.Done():
			s.fail(ctx, out, ctx.Err())
			return core.Message{}, false
		case ev, open := <-stream:
			if !open {
				return acc.finalize(s.log), true
			}
			switch ev.Type {
			case core.EventDelta:
				s.forwardDelta(ctx, ev.Delta, out)
				acc.consume(ev.Delta)
			case core.EventDone:
				return acc.finalize(s.log), true
			case core.EventError:
				s.fail(ctx, out, ev.Err)
				return core.Message{}, false
			}
		}
	}
}

func (s *Session) forwardDelta(ctx context.Context, delta *core.Delta, out chan<- Event) {
	if delta == nil {
		return
	}
	if delta.Content != "" {
		s.send(ctx, out, Event{Kind: EventContentDelta, Text: delta.Content})
	}
	if delta.Reasoning != "" {
		s.send(ctx, out, Event{Kind: EventReasoningDelta, Text: delta.Reasoning})
	}
	if len(delta.Raw) > 0 {
		s.send(ctx, out, Event{Kind: EventRawChunk, Raw: delta.Raw})
	}
}

// executeTools runs the turn's calls in order. Each failure is
// isolated: the error becomes that call's tool message and the batch
// continues. All tool messages are committed to history together, in
// call order, so the next request sees a complete batch.
func (s *Session) executeTools(ctx context.Context, calls []core.ToolCall, out chan<- Event) {
	batch := make([]core.Message, 0, len(calls))
	for _, call := range calls {
		content, ok := s.executeOne(ctx, call)
		kind := EventToolOutput
		if !ok {
			kind = EventToolOutputError
		}
		s.send(ctx, out, Event{Kind: kind, ToolName: call.Name, Text: content})
		batch = append(batch, core.ToolMessage(call.ID, call.Name, content))
	}

	s.mu.Lock()
	s.history = append(s.history, batch...)
	s.mu.Unlock()
}

func (s *Session) executeOne(ctx context.Context, call core.ToolCall) (string, bool) {
	tool, err := s.registry.Get(call.Name)
	if err != nil {
		s.log.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
		return fmt.Sprintf("Error: tool %q is not available", call.Name), false
	}

	result, err := tool.Execute(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		s.log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		return fmt.Sprintf("Error executing tool %q: %v", call.Name, err), false
	}
	return result.Content, true
}

func (s *Session) fail(ctx context.Context, out chan<- Event, err error) {
	s.setState(StateFailed)
	s.log.Warn().Err(err).Msg("session turn failed")
	s.send(ctx, out, Event{Kind: EventError, Err: err})
}

func (s *Session) send(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
