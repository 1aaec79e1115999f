package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	sdk "github.com/sashabaranov/go-openai"

	"relay/internal/llm/core"
)

// DefaultBaseURLs maps known OpenAI-compatible provider names to their
// chat-completions endpoints.
func DefaultBaseURLs() map[string]string {
	return map[string]string{
		"openrouter": "https://openrouter.ai/api/v1",
		"anthropic":  "https://api.anthropic.com/v1",
		"cerebras":   "https://api.cerebras.ai/v1",
		"groq":       "https://api.groq.com/openai/v1",
		"requesty":   "https://router.requesty.ai/v1",
	}
}

// ResolveBaseURL looks up the base URL for a provider name. Names
// containing "google" fall back to the Gemini OpenAI-compatibility
// endpoint; unknown names return "" and the SDK default applies.
func ResolveBaseURL(table map[string]string, provider string) string {
	name := strings.ToLower(strings.TrimSpace(provider))
	if url, ok := table[name]; ok {
		return url
	}
	if strings.Contains(name, "google") {
		return "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	return ""
}

// Config configures the OpenAI-compatible provider.
type Config struct {
	// Provider selects a base URL from BaseURLs when BaseURL is unset.
	Provider string
	APIKey   string
	BaseURL  string
	// BaseURLs overrides the built-in endpoint table. The map is copied
	// at construction; later mutation by the caller has no effect.
	BaseURLs   map[string]string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Provider streams chat completions from any OpenAI-compatible
// endpoint. A transport failure ends the stream with one terminal
// error event; there is no retry at this layer.
type Provider struct {
	apiKey string
	log    zerolog.Logger
	client *sdk.Client
}

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
	apiKey := strings.TrimSpace(cfg.APIKey)

	table := DefaultBaseURLs()
	for name, url := range cfg.BaseURLs {
		table[strings.ToLower(name)] = url
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = ResolveBaseURL(table, cfg.Provider)
	}

	clientConfig := sdk.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Provider{
		apiKey: apiKey,
		log:    cfg.Logger,
		client: sdk.NewClientWithConfig(clientConfig),
	}
}

// Stream executes a single streaming chat-completion request.
func (p *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	if p == nil {
		return nil, fmt.Errorf("openai provider is nil")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, core.ErrMissingAPIKey
	}

	params, err := toChatCompletionRequest(req)
	if err != nil {
		return nil, err
	}

	events := make(chan core.Event, 1)

	go func() {
		defer close(events)
		if err := p.stream(ctx, params, events); err != nil {
			p.log.Warn().Err(err).Str("model", req.Model).Msg("stream failed")
			core.SendTerminalEvent(events, core.Event{
				Type: core.EventError,
				Err:  fmt.Errorf("openai stream: %w", err),
			})
		}
	}()

	return events, nil
}

// stream drives one SDK stream to completion, forwarding deltas and a
// final done event. A non-nil return means no done event was sent.
func (p *Provider) stream(ctx context.Context, params sdk.ChatCompletionRequest, events chan<- core.Event) error {
	stream, err := p.client.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return err
	}
	defer stream.Close()

	done := core.DonePayload{FinishReason: string(sdk.FinishReasonStop)}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return core.SendEvent(ctx, events, core.Event{Type: core.EventDone, Done: &done})
		}
		if err != nil {
			return err
		}

		delta, finish, usage := fromStreamChunk(chunk)
		if finish != "" {
			done.FinishReason = finish
		}
		if usage != nil {
			done.Usage = *usage
		}
		if delta == nil {
			continue
		}
		if err := core.SendEvent(ctx, events, core.Event{Type: core.EventDelta, Delta: delta}); err != nil {
			return err
		}
	}
}
