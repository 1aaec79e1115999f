// Package mcp manages named connections to remote tool servers,
// fetches and caches their tool catalogs, and binds remote tools into
// the local registry contract.
package mcp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transport identifies how a connection reaches its server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable_http"
	TransportWebsocket      Transport = "websocket"
)

// DefaultSessionTimeout bounds session establishment plus a single
// list or call round-trip.
const DefaultSessionTimeout = 30 * time.Second

var ErrUnknownTransport = errors.New("unknown mcp transport")

// Connection is immutable transport configuration for one tool server,
// supplied once at client construction. Stdio connections use Command,
// Args and Env; the HTTP-based transports and websocket use URL and
// Headers.
type Connection struct {
	Transport Transport         `json:"transport" toml:"transport"`
	Command   string            `json:"command,omitempty" toml:"command"`
	Args      []string          `json:"args,omitempty" toml:"args"`
	Env       map[string]string `json:"env,omitempty" toml:"env"`
	URL       string            `json:"url,omitempty" toml:"url"`
	Headers   map[string]string `json:"headers,omitempty" toml:"headers"`
	// SessionTimeout bounds each per-call session; zero means
	// DefaultSessionTimeout.
	SessionTimeout time.Duration `json:"session_timeout,omitempty" toml:"session_timeout"`
}

// Validate checks that the transport-specific fields are present.
func (c Connection) Validate() error {
	switch c.Transport {
	case TransportStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("stdio connection requires a command")
		}
	case TransportSSE, TransportStreamableHTTP, TransportWebsocket:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("%s connection requires a url", c.Transport)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
	return nil
}

func (c Connection) sessionTimeout() time.Duration {
	if c.SessionTimeout > 0 {
		return c.SessionTimeout
	}
	return DefaultSessionTimeout
}
