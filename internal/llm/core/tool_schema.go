package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// ToolJSONSchema is the normalized object schema handed to providers.
// Every tool schema in this layer reduces to an object with properties
// and a required list; anything richer is flattened on the way in.
type ToolJSONSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// NewToolSpecFromStruct reflects a Go struct into a tool spec. The
// struct's fields become schema properties; `jsonschema:"required"`
// tags populate the required list.
func NewToolSpecFromStruct(name, description string, schemaStruct any) (ToolSpec, error) {
	target, err := reflectionTarget(schemaStruct)
	if err != nil {
		return ToolSpec{}, err
	}

	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	raw, err := json.Marshal(reflector.Reflect(target))
	if err != nil {
		return ToolSpec{}, fmt.Errorf("marshal reflected tool schema: %w", err)
	}

	normalized, err := DecodeToolJSONSchema(raw)
	if err != nil {
		return ToolSpec{}, err
	}
	schema, err := json.Marshal(normalized)
	if err != nil {
		return ToolSpec{}, fmt.Errorf("marshal normalized tool schema: %w", err)
	}

	return ToolSpec{
		Name:        name,
		Description: description,
		Schema:      schema,
	}, nil
}

func reflectionTarget(schemaStruct any) (any, error) {
	t := reflect.TypeOf(schemaStruct)
	if t == nil {
		return nil, fmt.Errorf("%w: schema struct is nil", ErrInvalidRequest)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: schema struct must be a struct or pointer to struct", ErrInvalidRequest)
	}
	return reflect.New(t).Interface(), nil
}

// DecodeToolJSONSchema validates raw schema JSON and reduces it to the
// normalized object shape. Empty input yields an empty object schema,
// which is what a no-argument tool advertises.
func DecodeToolJSONSchema(raw json.RawMessage) (ToolJSONSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ToolJSONSchema{Type: "object", Properties: map[string]any{}}, nil
	}

	var schema ToolJSONSchema
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return ToolJSONSchema{}, fmt.Errorf("%w: invalid tool schema json", ErrInvalidRequest)
	}

	switch strings.TrimSpace(schema.Type) {
	case "":
		schema.Type = "object"
	case "object":
	default:
		return ToolJSONSchema{}, fmt.Errorf("%w: tool schema type must be object", ErrInvalidRequest)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}
	return schema, nil
}

// DecodeJSONObject validates and decodes a JSON object into a map.
func DecodeJSONObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: invalid tool input json", ErrInvalidRequest)
	}
	obj := map[string]any{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	return obj, nil
}

// DecodeJSONObjectOrEmpty decodes JSON object input and falls back to
// an empty map on any error.
func DecodeJSONObjectOrEmpty(raw json.RawMessage) map[string]any {
	obj, err := DecodeJSONObject(raw)
	if err != nil {
		return map[string]any{}
	}
	return obj
}
