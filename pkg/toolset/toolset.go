// Package toolset implements the Toolset Filter: a named include/exclude
// spec over (server, tool) pairs, applied against a catalogue already
// carrying the MCP aggregate's "<server>_<tool>" prefixing.
package toolset

import (
	"fmt"
	"sort"
	"strings"

	"mcpflow/pkg/chatmsg"
)

// ExtractServerAndTool recovers the owning server and base tool name from
// a possibly-prefixed catalogue name. If the text before the first "_"
// names a known server, that prefix is stripped; failing that, with
// exactly one server the whole name is the base name of that server;
// otherwise the server is reported as "default", matching the Python original's fallback when the server
// cannot be determined.
func ExtractServerAndTool(toolName string, serverNames map[string]bool) (server, base string) {
	if idx := strings.Index(toolName, "_"); idx >= 0 {
		prefix := toolName[:idx]
		if serverNames[prefix] {
			return prefix, toolName[idx+1:]
		}
	}
	if len(serverNames) == 1 {
		for name := range serverNames {
			return name, toolName
		}
	}
	return "default", toolName
}

func buildServerToolMap(tools []chatmsg.Tool, serverNames map[string]bool) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(serverNames))
	for name := range serverNames {
		out[name] = make(map[string]bool)
	}
	for _, t := range tools {
		server, base := ExtractServerAndTool(t.Name, serverNames)
		if out[server] == nil {
			out[server] = make(map[string]bool)
		}
		out[server][base] = true
	}
	return out
}

// Validate checks a toolset against the full catalogue, collecting every
// problem it finds into a single error rather than failing on the first —
// partial validation would leave a caller unsure whether fixing one
// problem surfaces another.
func Validate(ts chatmsg.ToolsetConfig, tools []chatmsg.Tool, serverNames map[string]bool) error {
	serverToolMap := buildServerToolMap(tools, serverNames)
	var problems []string

	serverKeys := make([]string, 0, len(ts.Servers))
	for name := range ts.Servers {
		serverKeys = append(serverKeys, name)
	}
	sort.Strings(serverKeys)

	for _, serverName := range serverKeys {
		spec := ts.Servers[serverName]
		if !serverNames[serverName] {
			problems = append(problems, fmt.Sprintf("server %q not found in configuration", serverName))
			continue
		}

		available := serverToolMap[serverName]
		switch spec.Kind {
		case chatmsg.ToolSpecInclude:
			for _, name := range spec.Names {
				if !available[name] {
					problems = append(problems, fmt.Sprintf(
						"tool %q not found in server %q (available: %s)",
						name, serverName, formatAvailable(available)))
				}
			}
		case chatmsg.ToolSpecExclude:
			for _, name := range spec.Names {
				if !available[name] {
					problems = append(problems, fmt.Sprintf(
						"tool %q not found in server %q (specified in exclude list, available: %s)",
						name, serverName, formatAvailable(available)))
				}
			}
		}
	}

	if len(problems) > 0 {
		return chatmsg.ToolsetValidationError(strings.Join(problems, "; "), nil)
	}
	return nil
}

func formatAvailable(available map[string]bool) string {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}

// Filter returns the subset of tools the toolset admits. When validate is
// true it runs Validate first and returns its error unchanged.
func Filter(tools []chatmsg.Tool, ts chatmsg.ToolsetConfig, serverNames map[string]bool, validate bool) ([]chatmsg.Tool, error) {
	if validate {
		if err := Validate(ts, tools, serverNames); err != nil {
			return nil, err
		}
	}

	var out []chatmsg.Tool
	for _, t := range tools {
		server, base := ExtractServerAndTool(t.Name, serverNames)
		spec, ok := ts.Servers[server]
		if !ok {
			continue
		}

		var include bool
		switch spec.Kind {
		case chatmsg.ToolSpecAll:
			include = true
		case chatmsg.ToolSpecInclude:
			include = containsString(spec.Names, base)
		case chatmsg.ToolSpecExclude:
			include = !containsString(spec.Names, base)
		}

		if include {
			out = append(out, t)
		}
	}
	return out, nil
}

func containsString(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
