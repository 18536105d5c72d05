package chatorch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/mcp"
	"mcpflow/pkg/partition"
	"mcpflow/pkg/searchtool"
)

// fakeTransport is a minimal CallTransport a test can script without real
// MCP connections.
type fakeTransport struct {
	mu      sync.Mutex
	servers map[string]string // tool name -> owning server
	calls   []string
	result  mcp.CallToolResult
	err     error
}

func newFakeTransport(servers map[string]string) *fakeTransport {
	return &fakeTransport{servers: servers}
}

func (f *fakeTransport) Resolve(name string) (server, localName string, ok bool) {
	server, ok = f.servers[name]
	return server, name, ok
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, args map[string]any) (mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.err != nil {
		return mcp.CallToolResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newOrchestratorForDispatch(transport *fakeTransport) *Orchestrator {
	return New(Config{Transport: transport})
}

func TestDispatchDirectCallToDeferredToolNeverReachesTransport(t *testing.T) {
	transport := newFakeTransport(map[string]string{"weather_get": "weather"})
	o := newOrchestratorForDispatch(transport)

	discovery := chatmsg.ToolDiscoveryConfig{Enabled: true}
	tools := []chatmsg.Tool{{Name: "math_add"}, {Name: "weather_get"}}
	state := buildDiscoveryState(tools, o.owningServer, &discovery, func(server string) bool { return server == "weather" })

	stats := &chatmsg.ChatStats{}
	results, err := o.dispatchToolCalls(context.Background(), []chatmsg.ToolCall{
		{ID: "c1", Function: chatmsg.ToolCallFunction{Name: "weather_get", Arguments: "{}"}},
	}, state, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport.callCount() != 0 {
		t.Fatalf("expected MCP transport never invoked, got %d calls", transport.callCount())
	}
	msg := results[0].message
	if !strings.Contains(msg.Content, "not yet loaded") || !strings.Contains(msg.Content, "search-tools") {
		t.Fatalf("expected guidance message, got %q", msg.Content)
	}
	if stats.ToolCalls.Total != 1 || stats.ToolCalls.ByServer["weather"] != 1 {
		t.Fatalf("expected stats attributed to weather server, got %+v", stats.ToolCalls)
	}
}

func TestDispatchConcurrentFanOutPreservesEmissionOrder(t *testing.T) {
	transport := newFakeTransport(map[string]string{"math_add": "math", "words_define": "words"})
	transport.result = mcp.CallToolResult{Content: []mcp.ContentItem{{Type: "text", Text: "ok"}}}
	o := newOrchestratorForDispatch(transport)

	state := discoveryState{loaded: []chatmsg.Tool{{Name: "math_add"}, {Name: "words_define"}}}
	stats := &chatmsg.ChatStats{}

	calls := []chatmsg.ToolCall{
		{ID: "c1", Function: chatmsg.ToolCallFunction{Name: "math_add", Arguments: `{"a":1,"b":2}`}},
		{ID: "c2", Function: chatmsg.ToolCallFunction{Name: "math_add", Arguments: `{"a":3,"b":4}`}},
		{ID: "c3", Function: chatmsg.ToolCallFunction{Name: "words_define", Arguments: `{"word":"x"}`}},
	}
	results, err := o.dispatchToolCalls(context.Background(), calls, state, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, id := range []string{"c1", "c2", "c3"} {
		if results[i].message.ToolCallID != id {
			t.Fatalf("expected result %d to answer %s, got %s", i, id, results[i].message.ToolCallID)
		}
	}

	if stats.ToolCalls.Total != 3 {
		t.Fatalf("expected 3 total tool calls, got %d", stats.ToolCalls.Total)
	}
	if stats.ToolCalls.ByTool["math_add"] != 2 || stats.ToolCalls.ByTool["words_define"] != 1 {
		t.Fatalf("unexpected by_tool stats: %+v", stats.ToolCalls.ByTool)
	}
	if stats.ToolCalls.ByServer["math"] != 2 || stats.ToolCalls.ByServer["words"] != 1 {
		t.Fatalf("unexpected by_server stats: %+v", stats.ToolCalls.ByServer)
	}
}

func TestDispatchMalformedArgumentsSkipsTransport(t *testing.T) {
	transport := newFakeTransport(map[string]string{"math_add": "math"})
	o := newOrchestratorForDispatch(transport)

	state := discoveryState{loaded: []chatmsg.Tool{{Name: "math_add"}}}
	stats := &chatmsg.ChatStats{}

	results, err := o.dispatchToolCalls(context.Background(), []chatmsg.ToolCall{
		{ID: "c1", Function: chatmsg.ToolCallFunction{Name: "math_add", Arguments: "{not json"}},
	}, state, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport.callCount() != 0 {
		t.Fatalf("expected MCP transport never invoked for malformed arguments")
	}
	if results[0].message.Content != "Error: Malformed arguments for tool 'math_add'." {
		t.Fatalf("unexpected message: %q", results[0].message.Content)
	}
}

func TestDispatchSearchToolsMovesToolToLoadedAndRecordsDiscovery(t *testing.T) {
	transport := newFakeTransport(map[string]string{"weather_get": "weather"})
	o := newOrchestratorForDispatch(transport)

	discovery := chatmsg.ToolDiscoveryConfig{Enabled: true, MaxSearchResults: 10}
	deferredByServer := map[string][]chatmsg.Tool{"weather": {{Name: "weather_get", Description: "Get weather"}}}
	state := discoveryState{
		deferredByServer: deferredByServer,
		tool:             searchtool.New(deferredByServer, discovery),
	}
	state.prompt = state.tool.SystemPrompt()

	stats := &chatmsg.ChatStats{Discovery: &chatmsg.DiscoveryStats{}}
	argsJSON, _ := json.Marshal(map[string]any{"tool_names": []string{"weather_get"}})
	results, err := o.dispatchToolCalls(context.Background(), []chatmsg.ToolCall{
		{ID: "c1", Function: chatmsg.ToolCallFunction{Name: "search-tools", Arguments: string(argsJSON)}},
	}, state, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(results[0].message.Content, "Found 1 tool(s)") {
		t.Fatalf("expected manifest-style content, got %q", results[0].message.Content)
	}
	if len(results[0].newlyLoaded) != 1 || results[0].newlyLoaded[0].Name != "weather_get" {
		t.Fatalf("expected weather_get newly loaded, got %+v", results[0].newlyLoaded)
	}
	if stats.ToolCalls.ByServer[syntheticServerName] != 1 {
		t.Fatalf("expected search-tools call attributed to %s, got %+v", syntheticServerName, stats.ToolCalls.ByServer)
	}
	if stats.Discovery.SearchCalls != 1 || stats.Discovery.ToolsDiscovered != 1 {
		t.Fatalf("unexpected discovery stats: %+v", stats.Discovery)
	}
}

func TestFoldNewlyLoadedUnblocksSubsequentDirectCall(t *testing.T) {
	transport := newFakeTransport(map[string]string{"weather_get": "weather"})
	transport.result = mcp.CallToolResult{Content: []mcp.ContentItem{{Type: "text", Text: "sunny"}}}
	o := newOrchestratorForDispatch(transport)

	deferredByServer := map[string][]chatmsg.Tool{"weather": {{Name: "weather_get"}}}
	state := discoveryState{deferredByServer: deferredByServer}
	state = foldNewlyLoaded(state, []chatmsg.Tool{{Name: "weather_get"}})

	if state.isDeferredToolName("weather_get") {
		t.Fatal("expected weather_get to no longer be deferred after folding")
	}

	results, err := o.dispatchToolCalls(context.Background(), []chatmsg.ToolCall{
		{ID: "c1", Function: chatmsg.ToolCallFunction{Name: "weather_get", Arguments: "{}"}},
	}, state, &chatmsg.ChatStats{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport.callCount() != 1 {
		t.Fatalf("expected exactly one MCP call, got %d", transport.callCount())
	}
	if results[0].message.Content != "sunny" {
		t.Fatalf("expected normalized content 'sunny', got %q", results[0].message.Content)
	}
}

func TestPartitionRoundTripDisjointUnion(t *testing.T) {
	discovery := chatmsg.ToolDiscoveryConfig{Enabled: true}
	tools := []chatmsg.Tool{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	owning := func(t chatmsg.Tool) (string, bool) {
		if t.Name == "c" {
			return "", false
		}
		return "srv", true
	}
	loaded, deferred := partition.Partition(tools, owning, &discovery, func(string) bool { return true })

	var flat []string
	for _, ts := range deferred {
		for _, t := range ts {
			flat = append(flat, t.Name)
		}
	}
	for _, t := range loaded {
		flat = append(flat, t.Name)
	}
	sort.Strings(flat)
	if fmt.Sprint(flat) != fmt.Sprint([]string{"a", "b", "c"}) {
		t.Fatalf("expected disjoint union to reconstruct {a,b,c}, got %v", flat)
	}
}
