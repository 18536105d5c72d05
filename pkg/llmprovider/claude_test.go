package llmprovider

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"mcpflow/pkg/chatmsg"
)

func TestConvertMessagesToClaudeSkipsSystemAndConvertsToolCalls(t *testing.T) {
	messages := []chatmsg.Message{
		chatmsg.NewSystemMessage("ignored"),
		chatmsg.NewUserMessage("hello"),
		chatmsg.NewAssistantMessage("", []chatmsg.ToolCall{
			{ID: "t1", Function: chatmsg.ToolCallFunction{Name: "search", Arguments: `{"q":"go"}`}},
		}),
		chatmsg.NewToolResultMessage("search", "t1", "results"),
	}

	out, err := convertMessagesToClaude(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected system message dropped, got %d messages", len(out))
	}
}

func TestConvertMessagesToClaudeRejectsMalformedArguments(t *testing.T) {
	messages := []chatmsg.Message{
		chatmsg.NewAssistantMessage("", []chatmsg.ToolCall{
			{ID: "t1", Function: chatmsg.ToolCallFunction{Name: "search", Arguments: "{not json"}},
		}),
	}
	if _, err := convertMessagesToClaude(messages); err == nil {
		t.Fatal("expected error for malformed tool call arguments")
	}
}

func TestConvertToolsToClaude(t *testing.T) {
	tools := []chatmsg.Tool{
		{Name: "search", Description: "search the web", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
		}},
	}
	out, err := convertToolsToClaude(tools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].OfTool == nil {
		t.Fatalf("expected one tool param, got %+v", out)
	}
	if string(out[0].OfTool.Name) != "search" {
		t.Fatalf("expected tool name search, got %s", out[0].OfTool.Name)
	}
}

func TestIsRetryableClaudeError(t *testing.T) {
	if !isRetryableClaudeError(errNonAPI{}) {
		t.Fatal("expected unknown errors to be treated as retryable")
	}
	rateLimited := &anthropic.Error{StatusCode: 429}
	if !isRetryableClaudeError(rateLimited) {
		t.Fatal("expected 429 to be retryable")
	}
	badRequest := &anthropic.Error{StatusCode: 400}
	if isRetryableClaudeError(badRequest) {
		t.Fatal("expected 400 to not be retryable")
	}
}

type errNonAPI struct{}

func (errNonAPI) Error() string { return "boom" }

func TestClaudeResponseToResponseExtractsTextAndToolUse(t *testing.T) {
	raw := `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet",
		"content": [
			{"type": "text", "text": "hello"},
			{"type": "tool_use", "id": "t1", "name": "search", "input": {"q": "go"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`
	var msg anthropic.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	resp := claudeResponseToResponse(&msg)
	if resp.Message.Content != "hello" {
		t.Fatalf("expected text content 'hello', got %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Name != "search" {
		t.Fatalf("expected one search tool call, got %+v", resp.Message.ToolCalls)
	}
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 5 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}
