package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeParams fills target from raw tool-call arguments. Models send
// nothing at all for zero-argument tools; that decodes as an empty
// object rather than an error.
func decodeParams(raw json.RawMessage, target any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode tool params: %w", err)
	}
	return nil
}
