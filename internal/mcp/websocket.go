package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
)

// wsSession speaks the tool-server protocol as JSON-RPC 2.0 with one
// message per text frame. Requests are serialized: one in-flight call
// at a time, matched to its response by id.
type wsSession struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID int64
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *wsError        `json:"error"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func dialWebsocket(ctx context.Context, conn Connection) (Session, error) {
	header := http.Header{}
	for k, v := range conn.Headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: conn.sessionTimeout()}
	ws, _, err := dialer.DialContext(ctx, conn.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", conn.URL, err)
	}
	return &wsSession{conn: ws}, nil
}

// call performs one request/response round-trip, skipping any server
// notifications interleaved on the stream.
func (s *wsSession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
		_ = s.conn.SetWriteDeadline(deadline)
	}

	if err := s.conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var res wsResponse
		if err := s.conn.ReadJSON(&res); err != nil {
			return nil, fmt.Errorf("read %s response: %w", method, err)
		}
		if res.ID == nil || *res.ID != id {
			continue
		}
		if res.Error != nil {
			return nil, res.Error
		}
		return res.Result, nil
	}
}

func (s *wsSession) notify(method string, params any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(wsRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *wsSession) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": mcpproto.LATEST_PROTOCOL_VERSION,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "relay",
			"version": "1.0.0",
		},
	}
	if _, err := s.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	if err := s.notify("notifications/initialized", map[string]any{}); err != nil {
		return fmt.Errorf("confirm initialization: %w", err)
	}
	return nil
}

func (s *wsSession) ListTools(ctx context.Context, cursor string) ([]mcpproto.Tool, string, error) {
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	raw, err := s.call(ctx, "tools/list", params)
	if err != nil {
		return nil, "", err
	}

	var res mcpproto.ListToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, "", fmt.Errorf("decode tools/list result: %w", err)
	}
	return res.Tools, string(res.NextCursor), nil
}

func (s *wsSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcpproto.CallToolResult, error) {
	raw, err := s.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	result, err := mcpproto.ParseCallToolResult(&raw)
	if err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return result, nil
}

func (s *wsSession) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
