// Package tools defines the synthetic tool contract: tools the
// orchestrator implements itself (search-tools today) rather than
// proxying to an MCP server. Synthetic tools take precedence over MCP
// tools of the same name.
package tools

import (
	"context"
	"fmt"

	"mcpflow/pkg/chatmsg"
)

// SyntheticTool is a tool the orchestrator implements locally.
type SyntheticTool interface {
	// Name returns the tool's catalogue name.
	Name() string

	// Definition returns the tool's wire-level description and schema.
	Definition() chatmsg.Tool

	// SystemPrompt returns supplementary system-prompt text for this tool,
	// or "" if it needs none. The chat orchestrator injects it only for the
	// per-call search-tools instance; it is not read for tools added to a
	// Registry.
	SystemPrompt() string

	// Execute runs the tool against already-decoded arguments.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result is the outcome of a synthetic tool execution. NewlyLoadedTools is
// populated only by search-tools: tools it just moved from deferred to
// loaded, which the orchestrator must fold into the next LLM call's tool
// list.
type Result struct {
	Content          string
	IsError          bool
	NewlyLoadedTools []chatmsg.Tool
}

// NewResult creates a successful result with no newly-loaded tools.
func NewResult(content string) Result {
	return Result{Content: content}
}

// NewResultWithLoaded creates a successful result that also reports newly
// loaded tools.
func NewResultWithLoaded(content string, newlyLoaded []chatmsg.Tool) Result {
	return Result{Content: content, NewlyLoadedTools: newlyLoaded}
}

// NewErrorResult creates an error result from err.
func NewErrorResult(err error) Result {
	return Result{Content: err.Error(), IsError: true}
}

// NewErrorResultf creates an error result with a formatted message.
func NewErrorResultf(format string, args ...any) Result {
	return Result{Content: formatMessage(format, args...), IsError: true}
}

func formatMessage(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
