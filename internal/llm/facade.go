package llm

import (
	mockprovider "relay/internal/llm/providers/mock"
	openaiprovider "relay/internal/llm/providers/openai"

	"relay/internal/llm/core"
)

type (
	// Provider is the public streaming provider contract.
	Provider = core.Provider

	// EventType enumerates stream event variants.
	EventType = core.EventType

	// ToolSpec describes a tool offered to the model.
	ToolSpec = core.ToolSpec

	// Request and Event payload aliases define the public stream protocol.
	Request       = core.Request
	Delta         = core.Delta
	ToolCallDelta = core.ToolCallDelta
	DonePayload   = core.DonePayload
	Event         = core.Event

	// Conversation-model aliases.
	Role        = core.Role
	ContentType = core.ContentType
	ContentPart = core.ContentPart
	ToolCall    = core.ToolCall
	Message     = core.Message
	Usage       = core.Usage

	// OpenAI* aliases expose provider-specific configuration and implementation.
	OpenAIConfig   = openaiprovider.Config
	OpenAIProvider = openaiprovider.Provider

	// MockProvider emits scripted events for tests.
	MockProvider = mockprovider.Provider
)

const (
	EventDelta = core.EventDelta
	EventDone  = core.EventDone
	EventError = core.EventError

	RoleSystem    = core.RoleSystem
	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleTool      = core.RoleTool

	ContentTypeText = core.ContentTypeText
)

var (
	// ErrInvalidRequest indicates malformed canonical request payloads.
	ErrInvalidRequest = core.ErrInvalidRequest
	// ErrMissingAPIKey indicates missing provider credentials.
	ErrMissingAPIKey = core.ErrMissingAPIKey
)

// NewToolSpecFromStruct reflects a Go struct into a normalized tool schema.
func NewToolSpecFromStruct(name, description string, schemaStruct any) (ToolSpec, error) {
	return core.NewToolSpecFromStruct(name, description, schemaStruct)
}

// NewOpenAIProvider constructs an OpenAI-compatible provider with
// normalized defaults.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return openaiprovider.New(cfg)
}

// DefaultBaseURLs returns the built-in provider endpoint table.
func DefaultBaseURLs() map[string]string {
	return openaiprovider.DefaultBaseURLs()
}
