package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CodeAssistantInput describes a code generation or completion request.
type CodeAssistantInput struct {
	CodeDescription    string `json:"code_description" jsonschema:"required" jsonschema_description:"A natural language description of the code to be generated or completed."`
	CurrentCodeContext string `json:"current_code_context,omitempty" jsonschema_description:"Optional. The existing code snippet or context to be worked on."`
}

// CodeAssistantOutput carries structured guidance back to the model.
type CodeAssistantOutput struct {
	GeneratedCodeSnippet string `json:"generated_code_snippet"`
	Explanation          string `json:"explanation,omitempty"`
}

// NewCodeAssistant builds the code-assistant tool. It does not generate
// code itself; it prepares a structured prompt that guides the model's
// code generation on the next turn.
func NewCodeAssistant() (Tool, error) {
	return NewFunc(
		"code_assistant_tool",
		"Assists with code generation, completion, or explanation. Provides structured context to guide code generation based on natural language description and optional existing code context.",
		func(ctx context.Context, in CodeAssistantInput) (Result, error) {
			_ = ctx

			contextInfo := "No existing context provided."
			if strings.TrimSpace(in.CurrentCodeContext) != "" {
				contextInfo = "Building upon existing context:\n" + in.CurrentCodeContext
			}

			out := CodeAssistantOutput{
				GeneratedCodeSnippet: fmt.Sprintf(`
Code Request Analysis:
- Description: %s
- Context: %s
- Task: Generate appropriate code based on the description

Please provide:
1. Clean, well-commented code
2. Brief explanation of approach
3. Any relevant best practices or considerations
`, in.CodeDescription, contextInfo),
				Explanation: "Structured request prepared for code generation. The LLM will use this context to generate appropriate code.",
			}

			payload, err := json.Marshal(out)
			if err != nil {
				return Result{}, fmt.Errorf("encode code assistant output: %w", err)
			}
			return Result{Content: string(payload)}, nil
		},
	)
}
