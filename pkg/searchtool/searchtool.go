// Package searchtool implements the Search-Tools synthetic tool: the
// LLM-facing mechanism for discovering and loading deferred MCP tools.
package searchtool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/searchindex"
	"mcpflow/pkg/tools"
)

const (
	toolName            = "search-tools"
	maxToolNamesShown    = 4
	maxDescriptionLength = 80
)

// GenerateManifest builds the compressed text manifest of deferred tools
// grouped by server, one line per server plus an optional summary line.
func GenerateManifest(deferredByServer map[string][]chatmsg.Tool) string {
	servers := make([]string, 0, len(deferredByServer))
	for s := range deferredByServer {
		servers = append(servers, s)
	}
	sort.Strings(servers)

	var lines []string
	for _, server := range servers {
		toolsForServer := deferredByServer[server]
		count := len(toolsForServer)

		names := make([]string, len(toolsForServer))
		for i, t := range toolsForServer {
			names[i] = t.Name
		}

		var namesStr string
		if count > 10 {
			shown := strings.Join(names[:maxToolNamesShown], ", ")
			namesStr = fmt.Sprintf("%s, ... and %d more", shown, count-maxToolNamesShown)
		} else {
			namesStr = strings.Join(names, ", ")
		}

		toolWord := "tools"
		if count == 1 {
			toolWord = "tool"
		}

		summary := summariseServer(toolsForServer)
		lines = append(lines, fmt.Sprintf("- %s (%d %s): %s", server, count, toolWord, namesStr))
		if summary != "" {
			lines = append(lines, "  "+summary)
		}
	}

	return strings.Join(lines, "\n")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, ". "); idx != -1 {
		return text[:idx+1]
	}
	if strings.HasSuffix(text, ".") {
		return text
	}
	return text
}

func summariseServer(toolsForServer []chatmsg.Tool) string {
	var seen []string
	seenSet := make(map[string]bool)
	for _, t := range toolsForServer {
		sentence := firstSentence(t.Description)
		if sentence != "" && !seenSet[sentence] {
			seen = append(seen, sentence)
			seenSet[sentence] = true
		}
	}
	summary := strings.Join(seen, " ")
	if len(summary) > maxDescriptionLength {
		summary = strings.TrimRight(summary[:maxDescriptionLength-3], " ") + "..."
	}
	return summary
}

func formatParamDetails(inputSchema map[string]any) string {
	props, _ := inputSchema["properties"].(map[string]any)
	if len(props) == 0 {
		return "  No parameters."
	}

	requiredSet := make(map[string]bool)
	if req, ok := inputSchema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				requiredSet[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		pdef, _ := props[name].(map[string]any)
		ptype := "any"
		if t, ok := pdef["type"].(string); ok {
			ptype = t
		}
		reqMarker := ""
		if requiredSet[name] {
			reqMarker = " (required)"
		}
		descPart := ""
		if d, ok := pdef["description"].(string); ok && d != "" {
			descPart = " - " + d
		}
		parts = append(parts, fmt.Sprintf("    - %s: %s%s%s", name, ptype, reqMarker, descPart))
	}
	return strings.Join(parts, "\n")
}

func formatToolDetails(server string, t chatmsg.Tool) string {
	desc := t.Description
	if desc == "" {
		desc = "(no description)"
	}
	header := fmt.Sprintf("  [%s] %s: %s", server, t.Name, desc)
	params := formatParamDetails(t.InputSchema)
	return header + "\n  Parameters:\n" + params
}

// SearchTool is the per-call search-tools synthetic tool instance. It
// owns its own internal loaded/deferred split, mutated by Execute, so the
// chat orchestrator's loaded set and this tool's view never diverge.
type SearchTool struct {
	index            *searchindex.Index
	config           chatmsg.ToolDiscoveryConfig
	serverNames      []string
	deferredByServer map[string][]chatmsg.Tool
	manifest         string
	loaded           map[string]bool
}

// New builds a search-tools instance over the given deferred catalogue.
func New(deferredByServer map[string][]chatmsg.Tool, config chatmsg.ToolDiscoveryConfig) *SearchTool {
	var entries []chatmsg.ServerTool
	servers := make([]string, 0, len(deferredByServer))
	for server, toolsForServer := range deferredByServer {
		servers = append(servers, server)
		for _, t := range toolsForServer {
			entries = append(entries, chatmsg.ServerTool{Server: server, Tool: t})
		}
	}
	sort.Strings(servers)

	return &SearchTool{
		index:            searchindex.New(entries),
		config:           config,
		serverNames:      servers,
		deferredByServer: deferredByServer,
		manifest:         GenerateManifest(deferredByServer),
		loaded:           make(map[string]bool),
	}
}

// Name returns the tool's catalogue name, "search-tools".
func (s *SearchTool) Name() string {
	return toolName
}

// Definition returns the search-tools tool definition. Its description is
// the short fixed text only; the manifest is delivered separately through
// SystemPrompt.
func (s *SearchTool) Definition() chatmsg.Tool {
	description := "Search for and load additional tools that are available but not yet loaded.\n" +
		"Use this tool to discover tools you need to complete a task.\n\n" +
		"Provide at least one of: query, server_name, or tool_names."

	validServers := append([]string(nil), s.serverNames...)
	sort.Strings(validServers)

	return chatmsg.Tool{
		Name:        toolName,
		Description: description,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keyword search query to find relevant tools by name or description.",
				},
				"server_name": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Load all tools from a specific server. Valid servers: %s.", strings.Join(validServers, ", ")),
				},
				"tool_names": map[string]any{
					"type":        "array",
					"description": "Exact tool names to load.",
					"items":       map[string]any{"type": "string"},
				},
			},
			"required": []any{},
		},
	}
}

// SystemPrompt returns the manifest to be injected as the discovery
// system message, distinct from the tool's short schema description.
func (s *SearchTool) SystemPrompt() string {
	return s.manifest
}

// Execute implements the §4.5 resolution table and mutates the internal
// loaded/deferred split.
func (s *SearchTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	query := stringArg(args, "query")
	serverName := stringArg(args, "server_name")
	toolNames := stringSliceArg(args, "tool_names")

	if query == "" && serverName == "" && len(toolNames) == 0 {
		return tools.NewErrorResult(fmt.Errorf("Please provide at least one of: query, server_name, or tool_names")), nil
	}

	if serverName != "" && !containsString(s.serverNames, serverName) {
		return tools.NewErrorResult(fmt.Errorf("Unknown server '%s'. Valid servers: %s", serverName, strings.Join(sortedCopy(s.serverNames), ", "))), nil
	}

	var results []chatmsg.ServerTool
	var notFoundMsg string

	switch {
	case len(toolNames) > 0:
		found, notFound := s.index.GetByNames(toolNames)
		if serverName != "" {
			filtered := found[:0:0]
			for _, f := range found {
				if f.Server == serverName {
					filtered = append(filtered, f)
				}
			}
			found = filtered
		}
		results = found
		if len(notFound) > 0 {
			notFoundMsg = fmt.Sprintf("Not found: %s.", strings.Join(notFound, ", "))
		}
	case serverName != "" && query != "":
		sf := serverName
		results = s.index.Search(query, s.config.MaxSearchResults, &sf)
	case serverName != "":
		results = s.index.GetByServer(serverName)
	default:
		results = s.index.Search(query, s.config.MaxSearchResults, nil)
	}

	if len(results) == 0 {
		var parts []string
		parts = append(parts, "No tools found")
		if query != "" {
			parts = append(parts, fmt.Sprintf("matching '%s'", query))
		}
		if serverName != "" {
			parts = append(parts, fmt.Sprintf("in server '%s'", serverName))
		}
		msg := strings.Join(parts, " ") + "."
		if notFoundMsg != "" {
			msg += " " + notFoundMsg
		}
		return tools.NewResult(msg), nil
	}

	var newlyLoaded []chatmsg.Tool
	var alreadyLoaded []string
	var detailParts []string

	for _, r := range results {
		if s.loaded[r.Tool.Name] {
			alreadyLoaded = append(alreadyLoaded, r.Tool.Name)
		} else {
			newlyLoaded = append(newlyLoaded, r.Tool)
			s.loaded[r.Tool.Name] = true
		}
		detailParts = append(detailParts, formatToolDetails(r.Server, r.Tool))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d tool(s):\n", len(results))
	sb.WriteString(strings.Join(detailParts, "\n\n"))
	if len(alreadyLoaded) > 0 {
		fmt.Fprintf(&sb, "\n\nAlready loaded: %s", strings.Join(alreadyLoaded, ", "))
	}
	if notFoundMsg != "" {
		fmt.Fprintf(&sb, "\n\n%s", notFoundMsg)
	}

	return tools.NewResultWithLoaded(sb.String(), newlyLoaded), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsString(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
