// Package llmprovider adapts chatmsg's provider-agnostic chat shape to
// concrete LLM SDKs. A Provider is resolved per-model by modelfactory and
// called once per chat-loop iteration; it does not stream.
package llmprovider

import (
	"context"

	"mcpflow/pkg/chatmsg"
)

// Request is one completion call: a system prompt, full message history,
// and the tool catalogue currently visible to the model.
type Request struct {
	Model       string
	System      string
	Messages    []chatmsg.Message
	Tools       []chatmsg.Tool
	MaxTokens   int
	Temperature *float64
}

// Usage reports token consumption for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the model's reply, already folded into the shared Message
// shape so the orchestrator never sees provider-specific content blocks.
type Response struct {
	Message    chatmsg.Message
	StopReason string
	Usage      Usage
}

// Provider performs one completion call against a concrete backend.
type Provider interface {
	// Name identifies the backend, e.g. "claude" or "openai".
	Name() string

	// Complete sends req and returns the assistant's reply.
	Complete(ctx context.Context, req Request) (Response, error)
}
