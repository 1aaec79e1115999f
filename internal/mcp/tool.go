package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"relay/internal/llm/core"
	"relay/internal/tools"
)

// descriptor is the cacheable slice of a remote tool: descriptive
// metadata only. The invocation closure is rebuilt live against the
// owning connection after a cache read.
type descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

func toDescriptor(tool mcpproto.Tool) descriptor {
	d := descriptor{
		Name:        tool.Name,
		Description: tool.Description,
	}
	if len(tool.RawInputSchema) > 0 {
		d.InputSchema = append(json.RawMessage(nil), tool.RawInputSchema...)
	} else if raw, err := json.Marshal(tool.InputSchema); err == nil {
		d.InputSchema = raw
	}
	return d
}

// remoteTool binds a descriptor to its connection. Every execution
// opens a fresh session bounded by the connection's session timeout.
type remoteTool struct {
	desc descriptor
	conn Connection
	dial Dialer
	log  zerolog.Logger
}

func bindTool(desc descriptor, conn Connection, dial Dialer, log zerolog.Logger) tools.Tool {
	return &remoteTool{desc: desc, conn: conn, dial: dial, log: log}
}

func (t *remoteTool) Name() string { return t.desc.Name }

func (t *remoteTool) Description() string { return t.desc.Description }

func (t *remoteTool) Schema() json.RawMessage {
	if len(t.desc.InputSchema) > 0 {
		return t.desc.InputSchema
	}
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *remoteTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	args, err := core.DecodeJSONObject(params)
	if err != nil {
		return tools.Result{}, fmt.Errorf("tool %q: %w", t.desc.Name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.conn.sessionTimeout())
	defer cancel()

	session, err := t.dial(callCtx, t.conn)
	if err != nil {
		return tools.Result{}, fmt.Errorf("tool %q: %w", t.desc.Name, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			t.log.Debug().Err(cerr).Str("tool", t.desc.Name).Msg("session close failed")
		}
	}()

	if err := session.Initialize(callCtx); err != nil {
		return tools.Result{}, fmt.Errorf("tool %q: %w", t.desc.Name, err)
	}

	result, err := session.CallTool(callCtx, t.desc.Name, args)
	if err != nil {
		return tools.Result{}, fmt.Errorf("tool %q: %w", t.desc.Name, err)
	}
	return convertCallResult(t.desc.Name, result)
}

// convertCallResult splits a call result into model-facing text and
// non-text attachments. A server-reported error becomes a Go error
// carrying the text payload.
func convertCallResult(name string, result *mcpproto.CallToolResult) (tools.Result, error) {
	if result == nil {
		return tools.Result{}, fmt.Errorf("tool %q: empty call result", name)
	}

	var texts []string
	var attachments []tools.Attachment
	for _, content := range result.Content {
		if text, ok := mcpproto.AsTextContent(content); ok {
			texts = append(texts, text.Text)
			continue
		}
		payload, err := json.Marshal(content)
		if err != nil {
			continue
		}
		attachments = append(attachments, tools.Attachment{
			Type:    contentType(payload),
			Payload: payload,
		})
	}

	text := strings.Join(texts, "\n")
	if result.IsError {
		return tools.Result{}, fmt.Errorf("tool %q reported an error: %s", name, text)
	}
	return tools.Result{Content: text, Attachments: attachments}, nil
}

func contentType(payload json.RawMessage) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.Type == "" {
		return "unknown"
	}
	return probe.Type
}
