package chatorch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/mcp"
	"mcpflow/pkg/tools"
)

// syntheticServerName is the sentinel stats.ToolCalls.ByServer bucket
// every synthetic tool call is attributed to.
const syntheticServerName = "_synthetic"

// dispatchResult is one tool call's outcome: the ToolResult message that
// goes back into the transcript, plus any tools a synthetic call (only
// search-tools today) just moved from deferred to loaded.
type dispatchResult struct {
	message     chatmsg.Message
	newlyLoaded []chatmsg.Tool
}

// dispatchToolCalls runs every call in toolCalls concurrently (§5: the
// only parallelism this module has, bounded to one assistant turn's
// fan-out) and returns their ToolResult messages in the same order the
// assistant emitted the calls, regardless of completion order.
func (o *Orchestrator) dispatchToolCalls(
	ctx context.Context,
	toolCalls []chatmsg.ToolCall,
	state discoveryState,
	stats *chatmsg.ChatStats,
) ([]dispatchResult, error) {
	results := make([]dispatchResult, len(toolCalls))
	var statsMu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(toolCalls))
	for i, call := range toolCalls {
		go func(i int, call chatmsg.ToolCall) {
			defer wg.Done()
			results[i] = o.dispatchOne(ctx, call, state, stats, &statsMu)
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, chatmsg.CancelledError("chat call cancelled during tool dispatch", err)
	}
	return results, nil
}

func (o *Orchestrator) dispatchOne(
	ctx context.Context,
	call chatmsg.ToolCall,
	state discoveryState,
	stats *chatmsg.ChatStats,
	statsMu *sync.Mutex,
) dispatchResult {
	name := call.Function.Name

	if state.active() && name == state.tool.Name() {
		return o.dispatchSearchTools(ctx, call, state, stats, statsMu)
	}

	if synth := o.synthetics.Get(name); synth != nil {
		return o.dispatchSynthetic(ctx, call, synth, stats, statsMu)
	}

	if state.isDeferredToolName(name) {
		server := owningDeferredServer(state, name)
		recordStats(stats, statsMu, name, server)
		msg := chatmsg.NewToolResultMessage(name, call.ID, fmt.Sprintf(
			"Error: Tool '%s' is not yet loaded. Use search-tools to load it before calling it.", name))
		return dispatchResult{message: msg}
	}

	return o.dispatchMCP(ctx, call, stats, statsMu)
}

// dispatchSearchTools runs the per-call search-tools instance and, when
// discovery stats are being tracked, records the search and how many
// tools it surfaced.
func (o *Orchestrator) dispatchSearchTools(
	ctx context.Context,
	call chatmsg.ToolCall,
	state discoveryState,
	stats *chatmsg.ChatStats,
	statsMu *sync.Mutex,
) dispatchResult {
	res := o.dispatchSynthetic(ctx, call, state.tool, stats, statsMu)
	if stats != nil {
		statsMu.Lock()
		stats.RecordDiscoverySearch(len(res.newlyLoaded))
		statsMu.Unlock()
	}
	return res
}

func (o *Orchestrator) dispatchSynthetic(
	ctx context.Context,
	call chatmsg.ToolCall,
	synth tools.SyntheticTool,
	stats *chatmsg.ChatStats,
	statsMu *sync.Mutex,
) dispatchResult {
	recordStats(stats, statsMu, call.Function.Name, syntheticServerName)

	args, err := decodeArgs(call.Function.Arguments)
	if err != nil {
		return dispatchResult{message: chatmsg.NewToolResultMessage(
			call.Function.Name, call.ID, malformedArgsMessage(call.Function.Name))}
	}

	result, err := synth.Execute(ctx, args)
	if err != nil {
		return dispatchResult{message: chatmsg.NewToolResultMessage(
			call.Function.Name, call.ID, fmt.Sprintf("Error: Tool '%s' failed to execute.", call.Function.Name))}
	}

	content := wrapResult(o.resultFormat, call.Function.Name, call.Function.Arguments, result.Content)
	return dispatchResult{
		message:     chatmsg.NewToolResultMessage(call.Function.Name, call.ID, content),
		newlyLoaded: result.NewlyLoadedTools,
	}
}

func (o *Orchestrator) dispatchMCP(
	ctx context.Context,
	call chatmsg.ToolCall,
	stats *chatmsg.ChatStats,
	statsMu *sync.Mutex,
) dispatchResult {
	name := call.Function.Name
	server, _, _ := o.transport.Resolve(name)
	recordStats(stats, statsMu, name, server)

	args, err := decodeArgs(call.Function.Arguments)
	if err != nil {
		return dispatchResult{message: chatmsg.NewToolResultMessage(
			name, call.ID, malformedArgsMessage(name))}
	}

	result, err := o.transport.CallTool(ctx, name, args)
	if err != nil {
		return dispatchResult{message: chatmsg.NewToolResultMessage(
			name, call.ID, mcpErrorMessage(name, err))}
	}

	content := normalizeContent(result)
	wrapped := wrapResult(o.resultFormat, name, call.Function.Arguments, content)
	return dispatchResult{message: chatmsg.NewToolResultMessage(name, call.ID, wrapped)}
}

// mcpErrorMessage renders a failed MCP call per §4.6.2: a server-reported
// JSON-RPC error (the ValueError-style case — a validation complaint the
// server wants the model to see) surfaces its own message; anything else
// (a dead subprocess, a decode failure) becomes a generic message so
// transport internals never leak into the transcript.
func mcpErrorMessage(name string, err error) string {
	var rpcErr *mcp.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return fmt.Sprintf("Error: Tool '%s' failed to execute.", name)
}

// malformedArgsMessage is the literal wording §8 scenario 5 expects.
func malformedArgsMessage(name string) string {
	return fmt.Sprintf("Error: Malformed arguments for tool '%s'.", name)
}

func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func recordStats(stats *chatmsg.ChatStats, mu *sync.Mutex, toolName, server string) {
	if stats == nil {
		return
	}
	mu.Lock()
	stats.ToolCalls.Record(toolName, server)
	mu.Unlock()
}

func owningDeferredServer(state discoveryState, name string) string {
	for server, toolsForServer := range state.deferredByServer {
		for _, t := range toolsForServer {
			if t.Name == name {
				return server
			}
		}
	}
	return ""
}
