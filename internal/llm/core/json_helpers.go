package core

import (
	"encoding/json"
	"strings"
)

// CoerceJSONObject validates a streamed argument string and substitutes
// an empty JSON object when it does not parse. The bool reports whether
// coercion was applied.
func CoerceJSONObject(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "{}", true
	}
	if !json.Valid([]byte(trimmed)) {
		return "{}", true
	}
	return raw, false
}

// DecodeArguments decodes a finalized tool-call argument string into a
// map, falling back to an empty map for anything that is not a JSON
// object.
func DecodeArguments(raw string) map[string]any {
	return DecodeJSONObjectOrEmpty(json.RawMessage(raw))
}
