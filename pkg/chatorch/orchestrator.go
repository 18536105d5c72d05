// Package chatorch is the chat orchestrator: the central state machine
// that resolves a model, assembles the tool catalogue a call should see,
// drives the bounded LLM/tool-call loop, and normalises MCP results back
// into chat messages.
package chatorch

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"text/template"

	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/llmprovider"
	"mcpflow/pkg/toolcache"
	"mcpflow/pkg/toolset"
	"mcpflow/pkg/tools"
)

const defaultMaxIterations = 50

// Orchestrator owns one chat() call's worth of machinery: the shared tool
// cache, a provider resolver, the MCP transport, and the handful of
// per-instance defaults every Chat call falls back to.
type Orchestrator struct {
	cache     *toolcache.Cache
	providers ModelResolver
	transport CallTransport

	servers   map[string]chatmsg.ServerConfig
	toolsets  map[string]chatmsg.ToolsetConfig
	discovery chatmsg.ToolDiscoveryConfig

	defaultSystem  string
	defaultToolset *chatmsg.ToolsetConfig
	maxIterations  int
	resultFormat   ResultFormat

	synthetics *tools.Registry

	lastStats atomic.Pointer[chatmsg.ChatStats]
}

// Config configures a new Orchestrator.
type Config struct {
	Cache     *toolcache.Cache
	Providers ModelResolver
	Transport CallTransport

	Servers   map[string]chatmsg.ServerConfig
	Toolsets  map[string]chatmsg.ToolsetConfig
	Discovery chatmsg.ToolDiscoveryConfig

	DefaultSystem  string
	DefaultToolset *chatmsg.ToolsetConfig
	MaxIterations  int
	ResultFormat   ResultFormat
}

// New builds an Orchestrator from cfg, applying the same defaults the
// config loader applies to MaxIterations/ResultFormat so a zero-value
// Config still behaves sensibly in tests.
func New(cfg Config) *Orchestrator {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	format := cfg.ResultFormat
	if format == "" {
		format = ResultFormatPlain
	}

	return &Orchestrator{
		cache:          cfg.Cache,
		providers:      cfg.Providers,
		transport:      cfg.Transport,
		servers:        cfg.Servers,
		toolsets:       cfg.Toolsets,
		discovery:      cfg.Discovery,
		defaultSystem:  cfg.DefaultSystem,
		defaultToolset: cfg.DefaultToolset,
		maxIterations:  maxIter,
		resultFormat:   format,
		synthetics:     tools.NewRegistry(),
	}
}

// LastStats returns the stats published by the most recently completed
// Chat call on this Orchestrator, or nil if none has completed yet.
func (o *Orchestrator) LastStats() *chatmsg.ChatStats {
	return o.lastStats.Load()
}

func (o *Orchestrator) serverNames() map[string]bool {
	out := make(map[string]bool, len(o.servers))
	for name := range o.servers {
		out[name] = true
	}
	return out
}

func (o *Orchestrator) deferLoading(server string) bool {
	return o.servers[server].DeferLoading
}

func (o *Orchestrator) owningServer(t chatmsg.Tool) (string, bool) {
	server, _, ok := o.transport.Resolve(t.Name)
	return server, ok
}

// Chat runs one full tool-calling loop per spec.md §4.6 and returns the
// accumulated response.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	// Step 1: resolve model.
	if req.Model == "" {
		return ChatResponse{}, chatmsg.ModelUnresolvedError("no model specified", nil)
	}
	provider, model, err := o.providers.Resolve(req.Model)
	if err != nil {
		return ChatResponse{}, err
	}

	// Step 2: resolve system prompt.
	system, err := o.resolveSystem(ctx, req, model)
	if err != nil {
		return ChatResponse{}, err
	}

	// Step 3: fetch catalogue, optionally filter, snapshot watch version.
	serverTools, err := o.cache.GetTools(ctx, false)
	if err != nil {
		return ChatResponse{}, err
	}
	catalogue := toolsFromServerTools(serverTools)

	toolSet := req.ToolSet
	var activeToolset *chatmsg.ToolsetConfig
	if toolSet != "" {
		ts, ok := o.toolsets[toolSet]
		if !ok {
			return ChatResponse{}, chatmsg.ToolsetValidationError(fmt.Sprintf("unknown toolset %q", toolSet), nil)
		}
		activeToolset = &ts
	} else {
		activeToolset = o.defaultToolset
	}
	if activeToolset != nil {
		catalogue, err = toolset.Filter(catalogue, *activeToolset, o.serverNames(), true)
		if err != nil {
			return ChatResponse{}, err
		}
	}
	watchVersion := o.cache.Version()

	// Step 4: initialise discovery state.
	stats := &chatmsg.ChatStats{}
	if o.discovery.Enabled {
		stats.Discovery = &chatmsg.DiscoveryStats{}
	}
	discoveryCfg := o.discovery
	state := buildDiscoveryState(catalogue, o.owningServer, &discoveryCfg, o.deferLoading)

	// Step 5: prepare messages on a copy.
	messages := chatmsg.CloneMessages(req.Messages)
	hasSystem := false
	for _, m := range messages {
		if m.Role == chatmsg.RoleSystem {
			hasSystem = true
			break
		}
	}
	if !hasSystem && system != "" {
		messages = append([]chatmsg.Message{chatmsg.NewSystemMessage(system)}, messages...)
	}
	discoveryIdx := -1
	if state.active() {
		messages, discoveryIdx = swapDiscoveryMessage(messages, discoveryIdx, state.prompt)
	}

	responseStart := len(messages)

	// Step 6: bounded iteration loop.
	for iter := 0; iter < o.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return ChatResponse{}, chatmsg.CancelledError("chat call cancelled", err)
		}

		if o.discovery.Enabled && o.cache.Version() != watchVersion {
			freshServerTools, err := o.cache.GetTools(ctx, false)
			if err != nil {
				return ChatResponse{}, err
			}
			freshCatalogue := toolsFromServerTools(freshServerTools)
			if activeToolset != nil {
				freshCatalogue, err = toolset.Filter(freshCatalogue, *activeToolset, o.serverNames(), false)
				if err != nil {
					return ChatResponse{}, err
				}
			}
			state = rebuildDiscoveryState(state, freshCatalogue, o.owningServer, &discoveryCfg, o.deferLoading)
			messages, discoveryIdx = swapDiscoveryMessage(messages, discoveryIdx, state.prompt)
			watchVersion = o.cache.Version()
		}

		llmTools := o.buildLLMTools(state)

		resp, err := provider.Complete(ctx, llmprovider.Request{
			Model:       model.Model,
			System:      system,
			Messages:    messages,
			Tools:       llmTools,
			Temperature: model.Temperature,
		})
		if err != nil {
			return ChatResponse{}, chatmsg.TransportError("llm call failed", err)
		}
		stats.LLMCalls++
		stats.Tokens.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		messages = append(messages, resp.Message)

		if !resp.Message.HasToolCalls() {
			return o.finish(messages, responseStart, stats, req.IncludeStats), nil
		}

		results, err := o.dispatchToolCalls(ctx, resp.Message.ToolCalls, state, stats)
		if err != nil {
			return ChatResponse{}, err
		}

		for _, r := range results {
			messages = append(messages, r.message)
			if len(r.newlyLoaded) > 0 {
				state = foldNewlyLoaded(state, r.newlyLoaded)
			}
		}
	}

	return ChatResponse{}, chatmsg.LoopLimitExceededError(
		fmt.Sprintf("exceeded %d iterations without a final answer", o.maxIterations), nil)
}

func (o *Orchestrator) finish(messages []chatmsg.Message, responseStart int, stats *chatmsg.ChatStats, includeStats bool) ChatResponse {
	o.lastStats.Store(stats)
	resp := ChatResponse{
		Messages: messages,
		Response: append([]chatmsg.Message(nil), messages[responseStart:]...),
	}
	if includeStats {
		resp.Stats = stats
	}
	return resp
}

// foldNewlyLoaded moves tools a search-tools call just loaded out of the
// deferred set and into the loaded set. The search-tools instance and its
// manifest are left as they are; they change only on a discovery rebuild.
func foldNewlyLoaded(state discoveryState, newlyLoaded []chatmsg.Tool) discoveryState {
	loadedNames := make(map[string]bool, len(newlyLoaded))
	for _, t := range newlyLoaded {
		loadedNames[t.Name] = true
	}

	state.loaded = append(state.loaded, newlyLoaded...)

	residual := make(map[string][]chatmsg.Tool, len(state.deferredByServer))
	for server, toolsForServer := range state.deferredByServer {
		var kept []chatmsg.Tool
		for _, t := range toolsForServer {
			if !loadedNames[t.Name] {
				kept = append(kept, t)
			}
		}
		if len(kept) > 0 {
			residual[server] = kept
		}
	}
	state.deferredByServer = residual
	return state
}

// buildLLMTools converts the current loaded set plus every synthetic
// tool's definition (static synthetics and search-tools, if deferred
// tools remain) into the tool list an LLM call should see.
func (o *Orchestrator) buildLLMTools(state discoveryState) []chatmsg.Tool {
	out := append([]chatmsg.Tool(nil), state.loaded...)

	names := o.synthetics.Names()
	sort.Strings(names)
	for _, name := range names {
		out = append(out, o.synthetics.Get(name).Definition())
	}

	if state.active() && len(state.deferredByServer) > 0 {
		out = append(out, state.tool.Definition())
	}
	return out
}

// resolveSystem implements §4.6 step 2's priority chain.
func (o *Orchestrator) resolveSystem(ctx context.Context, req ChatRequest, model chatmsg.ModelConfig) (string, error) {
	if req.System != "" {
		return req.System, nil
	}
	if model.Template != "" {
		serverTools, err := o.cache.GetTools(ctx, false)
		if err != nil {
			return "", err
		}
		return renderSystemTemplate(model.Template, toolsFromServerTools(serverTools))
	}
	return o.defaultSystem, nil
}

func renderSystemTemplate(tmpl string, catalogue []chatmsg.Tool) (string, error) {
	t, err := template.New("system").Parse(tmpl)
	if err != nil {
		return "", chatmsg.ConfigInvalidError("parse model system prompt template", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Tools []chatmsg.Tool }{Tools: catalogue}); err != nil {
		return "", chatmsg.ConfigInvalidError("render model system prompt template", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func toolsFromServerTools(serverTools []chatmsg.ServerTool) []chatmsg.Tool {
	out := make([]chatmsg.Tool, len(serverTools))
	for i, st := range serverTools {
		out[i] = st.Tool
	}
	return out
}

// RegisterSynthetic installs a synthetic tool that is always present in
// the tool list, independent of the discovery state (search-tools itself
// is wired in per call, not through this path). Panics if a tool with the
// same name is already registered.
func (o *Orchestrator) RegisterSynthetic(t tools.SyntheticTool) {
	o.synthetics.MustRegister(t)
}
