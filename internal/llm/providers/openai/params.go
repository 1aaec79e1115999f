package openaiprovider

import (
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/sashabaranov/go-openai"

	"relay/internal/llm/core"
)

// toChatCompletionRequest maps the provider-agnostic request onto the
// SDK wire shape. Usage accounting is requested on the final chunk.
func toChatCompletionRequest(req *core.Request) (sdk.ChatCompletionRequest, error) {
	if req == nil {
		return sdk.ChatCompletionRequest{}, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return sdk.ChatCompletionRequest{}, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return sdk.ChatCompletionRequest{}, fmt.Errorf("%w: at least one message is required", core.ErrInvalidRequest)
	}

	params := sdk.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      toWireMessages(req.Messages),
		Temperature:   req.Temperature,
		StreamOptions: &sdk.StreamOptions{IncludeUsage: true},
	}
	if len(req.Tools) > 0 {
		tools, err := toWireTools(req.Tools)
		if err != nil {
			return sdk.ChatCompletionRequest{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func toWireMessages(messages []core.Message) []sdk.ChatCompletionMessage {
	wire := make([]sdk.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := sdk.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Text(),
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, sdk.ToolCall{
				ID:   call.ID,
				Type: sdk.ToolType(call.Type),
				Function: sdk.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		wire = append(wire, m)
	}
	return wire
}

func toWireTools(specs []core.ToolSpec) ([]sdk.Tool, error) {
	tools := make([]sdk.Tool, 0, len(specs))
	for _, spec := range specs {
		schema, err := core.DecodeToolJSONSchema(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", spec.Name, err)
		}
		tools = append(tools, sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// fromStreamChunk maps one SDK chunk to a provider-agnostic delta. The
// returned delta is nil for chunks that carry only finish or usage
// bookkeeping. Finish and usage are reported separately so the caller
// can fold them into the done event.
func fromStreamChunk(chunk sdk.ChatCompletionStreamResponse) (*core.Delta, string, *core.Usage) {
	var finish string
	var usage *core.Usage

	if chunk.Usage != nil {
		usage = &core.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	if len(chunk.Choices) == 0 {
		return nil, finish, usage
	}

	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		finish = string(choice.FinishReason)
	}

	delta := core.Delta{
		Content:   choice.Delta.Content,
		Reasoning: choice.Delta.ReasoningContent,
	}
	for _, call := range choice.Delta.ToolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		delta.ToolCalls = append(delta.ToolCalls, core.ToolCallDelta{
			Index:     index,
			ID:        call.ID,
			Type:      string(call.Type),
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	if delta.Content == "" && delta.Reasoning == "" && len(delta.ToolCalls) == 0 {
		return nil, finish, usage
	}

	if raw, err := json.Marshal(chunk); err == nil {
		delta.Raw = raw
	}
	return &delta, finish, usage
}
