package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCodeAssistantPreparesStructuredPrompt(t *testing.T) {
	t.Parallel()

	tool, err := NewCodeAssistant()
	if err != nil {
		t.Fatalf("NewCodeAssistant() error = %v", err)
	}
	if tool.Name() != "code_assistant_tool" {
		t.Fatalf("Name() = %q", tool.Name())
	}

	res, err := tool.Execute(context.Background(), json.RawMessage(
		`{"code_description":"add two numbers","current_code_context":"def my_func():\n    pass"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var out CodeAssistantOutput
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !strings.Contains(out.GeneratedCodeSnippet, "add two numbers") {
		t.Fatalf("snippet missing description: %s", out.GeneratedCodeSnippet)
	}
	if !strings.Contains(out.GeneratedCodeSnippet, "Building upon existing context") {
		t.Fatalf("snippet missing context marker: %s", out.GeneratedCodeSnippet)
	}
}

func TestCodeAssistantWithoutContext(t *testing.T) {
	t.Parallel()

	tool, err := NewCodeAssistant()
	if err != nil {
		t.Fatalf("NewCodeAssistant() error = %v", err)
	}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"code_description":"sort a slice"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Content, "No existing context provided.") {
		t.Fatalf("output missing empty-context marker: %s", res.Content)
	}
}
