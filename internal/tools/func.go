package tools

import (
	"context"
	"encoding/json"

	"relay/internal/llm/core"
)

// FuncTool adapts a plain Go function into a Tool. The schema is
// reflected from the function's typed parameter struct.
type FuncTool[P any] struct {
	name        string
	description string
	schema      json.RawMessage
	run         func(ctx context.Context, params P) (Result, error)
}

// NewFunc builds a function-backed tool. P must be a struct; its JSON
// Schema is reflected at construction time.
func NewFunc[P any](name, description string, run func(ctx context.Context, params P) (Result, error)) (*FuncTool[P], error) {
	var zero P
	spec, err := core.NewToolSpecFromStruct(name, description, zero)
	if err != nil {
		return nil, err
	}
	return &FuncTool[P]{
		name:        name,
		description: description,
		schema:      spec.Schema,
		run:         run,
	}, nil
}

func (t *FuncTool[P]) Name() string { return t.name }

func (t *FuncTool[P]) Description() string { return t.description }

func (t *FuncTool[P]) Schema() json.RawMessage { return t.schema }

// Execute decodes the raw params into P and invokes the function.
func (t *FuncTool[P]) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	var decoded P
	if err := decodeParams(params, &decoded); err != nil {
		return Result{}, err
	}
	return t.run(ctx, decoded)
}
