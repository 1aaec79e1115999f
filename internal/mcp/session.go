package mcp

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
)

// Session is one live conversation with a tool server. Sessions are
// short-lived: the client opens a fresh one per catalog fetch and per
// tool call.
type Session interface {
	// Initialize performs the protocol handshake.
	Initialize(ctx context.Context) error
	// ListTools returns one page of tools plus the next cursor, empty
	// when pagination is complete.
	ListTools(ctx context.Context, cursor string) ([]mcpproto.Tool, string, error)
	// CallTool invokes a named tool with structured arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpproto.CallToolResult, error)
	Close() error
}

// Dialer opens a session for a connection. Swappable in tests.
type Dialer func(ctx context.Context, conn Connection) (Session, error)

// OpenSession establishes a session over the connection's transport.
// Websocket connections speak JSON-RPC per text frame; the rest go
// through the mcp-go client.
func OpenSession(ctx context.Context, conn Connection) (Session, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if conn.Transport == TransportWebsocket {
		return dialWebsocket(ctx, conn)
	}

	client, err := newProtocolClient(conn)
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("start %s session: %w", conn.Transport, err)
	}
	return &protocolSession{client: client}, nil
}

func newProtocolClient(conn Connection) (*mcpclient.Client, error) {
	switch conn.Transport {
	case TransportStdio:
		env := make([]string, 0, len(conn.Env))
		for k, v := range conn.Env {
			env = append(env, k+"="+v)
		}
		return mcpclient.NewStdioMCPClient(conn.Command, env, conn.Args...)
	case TransportSSE:
		var opts []transport.ClientOption
		if len(conn.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(conn.Headers))
		}
		return mcpclient.NewSSEMCPClient(conn.URL, opts...)
	case TransportStreamableHTTP:
		opts := []transport.StreamableHTTPCOption{
			transport.WithHTTPTimeout(conn.sessionTimeout()),
		}
		if len(conn.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(conn.Headers))
		}
		return mcpclient.NewStreamableHttpClient(conn.URL, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, conn.Transport)
	}
}

// protocolSession adapts the mcp-go client to the Session contract.
type protocolSession struct {
	client *mcpclient.Client
}

func (s *protocolSession) Initialize(ctx context.Context) error {
	req := mcpproto.InitializeRequest{}
	req.Params.ProtocolVersion = mcpproto.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcpproto.Implementation{
		Name:    "relay",
		Version: "1.0.0",
	}
	if _, err := s.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	return nil
}

func (s *protocolSession) ListTools(ctx context.Context, cursor string) ([]mcpproto.Tool, string, error) {
	req := mcpproto.ListToolsRequest{}
	req.Params.Cursor = mcpproto.Cursor(cursor)
	res, err := s.client.ListTools(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return res.Tools, string(res.NextCursor), nil
}

func (s *protocolSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcpproto.CallToolResult, error) {
	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.client.CallTool(ctx, req)
}

func (s *protocolSession) Close() error {
	return s.client.Close()
}
