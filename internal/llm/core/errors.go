package core

import "errors"

var (
	// ErrInvalidRequest flags a request that cannot be sent: no model,
	// no messages, or a tool spec that does not reduce to an object
	// schema.
	ErrInvalidRequest = errors.New("invalid llm request")
	// ErrMissingAPIKey flags a provider constructed without credentials.
	ErrMissingAPIKey = errors.New("missing api key")
)
