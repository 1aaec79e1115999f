package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// ConnectionHash derives a stable content hash from the
// identity-relevant fields of one connection: transport, url, sorted
// headers, and for stdio the command and args. Runtime state never
// participates, so the hash survives process restarts.
func ConnectionHash(conn Connection) string {
	parts := map[string]any{}
	if conn.Transport != "" {
		parts["transport"] = string(conn.Transport)
	}
	if conn.URL != "" {
		parts["url"] = conn.URL
	}
	if len(conn.Headers) > 0 {
		keys := make([]string, 0, len(conn.Headers))
		for k := range conn.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		headers := make([][2]string, 0, len(keys))
		for _, k := range keys {
			headers = append(headers, [2]string{k, conn.Headers[k]})
		}
		parts["headers"] = headers
	}
	if conn.Transport == TransportStdio {
		if conn.Command != "" {
			parts["command"] = conn.Command
		}
		if len(conn.Args) > 0 {
			parts["args"] = conn.Args
		}
	}

	// Map keys marshal in sorted order, giving a canonical serialization.
	serialized, err := json.Marshal(parts)
	if err != nil {
		serialized = []byte(string(conn.Transport) + ":" + conn.URL + ":" + conn.Command)
	}

	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// ConnectionsHash derives a stable hash for a named connection set by
// combining per-connection hashes in name order.
func ConnectionsHash(connections map[string]Connection) string {
	names := make([]string, 0, len(connections))
	for name := range connections {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]string, 0, len(names))
	for _, name := range names {
		entries = append(entries, name+":"+ConnectionHash(connections[name]))
	}

	sum := sha256.Sum256([]byte(strings.Join(entries, "|")))
	return hex.EncodeToString(sum[:])
}
