// Package chatorch is the chat orchestrator: the central state machine
// that resolves a model, assembles the tool catalogue a call should see,
// drives the bounded LLM/tool-call loop, and normalises MCP results back
// into chat messages.
package chatorch

import (
	"context"

	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/llmprovider"
	"mcpflow/pkg/mcp"
)

// ResultFormat controls how a normalised MCP tool result is wrapped before
// it becomes a ToolResult message's content.
type ResultFormat string

const (
	ResultFormatPlain             ResultFormat = "result"
	ResultFormatFunctionResult    ResultFormat = "function_result"
	ResultFormatFunctionArgsResult ResultFormat = "function_args_result"
)

// CallTransport is the subset of *mcp.Aggregate the orchestrator depends
// on, named here so tests can supply a fake without spinning up real MCP
// connections.
type CallTransport interface {
	Resolve(qualifiedName string) (server, localName string, ok bool)
	CallTool(ctx context.Context, qualifiedName string, arguments map[string]any) (mcp.CallToolResult, error)
}

// ModelResolver is the subset of *modelfactory.Resolver the orchestrator
// depends on, named here so tests can supply a fake provider without real
// API keys or network access.
type ModelResolver interface {
	Resolve(modelName string) (llmprovider.Provider, chatmsg.ModelConfig, error)
}

// ChatRequest is one call to Orchestrator.Chat.
type ChatRequest struct {
	// Model names an entry in the configured models map. Required.
	Model string

	// System overrides the resolved system prompt when non-empty.
	System string

	// Messages is the caller's conversation so far. Never mutated.
	Messages []chatmsg.Message

	// ToolSet names a configured toolset to filter the catalogue by. Empty
	// means the orchestrator's default toolset, or every tool the transport
	// advertises when no default toolset is configured.
	ToolSet string

	// IncludeStats asks for stats to be attached to the response.
	IncludeStats bool

	// Meta carries caller-supplied call metadata (tracing identifiers and
	// similar). It is not currently forwarded to the MCP transport.
	Meta map[string]any
}

// ChatResponse is the result of one Orchestrator.Chat call.
type ChatResponse struct {
	// Messages is the full conversation: the caller's messages plus any
	// system-prompt insertions and everything the loop appended.
	Messages []chatmsg.Message

	// Response is only the messages this call produced (the assistant
	// turns and tool results appended during the loop), in emission order.
	Response []chatmsg.Message

	// Stats is populated only when IncludeStats was set.
	Stats *chatmsg.ChatStats
}
