package core

// Role identifies the message author on the chat-completions wire.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentType identifies content part variants. Only text parts are
// recognized; unknown part types are ignored, not rejected.
type ContentType string

const (
	ContentTypeText ContentType = "text"
)

// ContentPart is a typed content unit inside a structured message body.
type ContentPart struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// ToolCall represents a model-emitted tool invocation. Arguments holds
// the raw argument string; a finalized call always carries a valid JSON
// object (malformed accumulations are coerced to "{}").
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is the provider-agnostic conversation record. Content carries
// plain text; Parts carries a structured body when the caller supplied
// one. Providers prefer Content and fall back to the text parts.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// Text returns the plain-text body of the message, flattening text
// parts when no plain content is present.
func (m Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var out string
	for _, part := range m.Parts {
		if part.Type != ContentTypeText {
			continue
		}
		out += part.Text
	}
	return out
}

// SystemMessage builds a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool-result message referencing a prior call.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: content}
}

// CloneMessages returns a deep-enough copy for handing history
// snapshots to consumers without sharing backing slices.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	cloned := make([]Message, len(messages))
	for i, msg := range messages {
		cloned[i] = msg
		if msg.Parts != nil {
			cloned[i].Parts = append([]ContentPart(nil), msg.Parts...)
		}
		if msg.ToolCalls != nil {
			cloned[i].ToolCalls = append([]ToolCall(nil), msg.ToolCalls...)
		}
	}
	return cloned
}
