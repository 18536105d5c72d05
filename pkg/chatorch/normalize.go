package chatorch

import (
	"encoding/json"
	"fmt"
	"strings"

	"mcpflow/pkg/mcp"
)

// knownTextMimeTypes are content mime types the orchestrator still renders
// as text rather than an opaque "[<type>: <mime>]" placeholder.
var knownTextMimeTypes = map[string]bool{
	"": true, "text/plain": true, "application/json": true,
}

// normalizeContent implements §4.6.3's content-to-string rules, in order:
// structuredContent wins if present, then the empty-content literal, then
// a per-item walk of the content blocks.
func normalizeContent(result mcp.CallToolResult) string {
	if len(result.StructuredContent) > 0 {
		var v any
		if err := json.Unmarshal(result.StructuredContent, &v); err == nil {
			if encoded, err := json.Marshal(v); err == nil {
				return string(encoded)
			}
		}
		return string(result.StructuredContent)
	}

	if len(result.Content) == 0 {
		return "[No content returned]"
	}

	parts := make([]string, len(result.Content))
	for i, item := range result.Content {
		parts[i] = normalizeContentItem(item)
	}
	return strings.Join(parts, "\n")
}

func normalizeContentItem(item mcp.ContentItem) string {
	if item.Type == "text" || item.Type == "" || knownTextMimeTypes[item.MimeType] {
		return item.Text
	}
	return fmt.Sprintf("[%s: %s]", item.Type, item.MimeType)
}

// wrapResult applies the configured ResultFormat, grounded on the
// original's format_tool_call_result: "result" passes content through
// unchanged, "function_result" prefixes the tool name, and
// "function_args_result" also renders the call's arguments.
func wrapResult(format ResultFormat, toolName, argsJSON, content string) string {
	switch format {
	case ResultFormatFunctionResult:
		return fmt.Sprintf("%s → %s", toolName, content)
	case ResultFormatFunctionArgsResult:
		return fmt.Sprintf("%s(%s) → %s", toolName, formatArgsForDisplay(argsJSON), content)
	default:
		return content
	}
}

// formatArgsForDisplay renders a JSON argument object as
// key='value', key2=value2 pairs, matching the original's repr-style
// rendering: strings are single-quoted, everything else prints as-is.
// Key order follows the JSON object's own order, not map iteration.
func formatArgsForDisplay(argsJSON string) string {
	keys, values, err := decodeOrderedObject(argsJSON)
	if err != nil || len(keys) == 0 {
		return ""
	}

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, formatArgValue(values[i]))
	}
	return strings.Join(parts, ", ")
}

func formatArgValue(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + val + "'"
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}

// decodeOrderedObject walks a JSON object's tokens to recover key order,
// which encoding/json's map decoding otherwise discards.
func decodeOrderedObject(raw string) (keys []string, values []any, err error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, nil, fmt.Errorf("chatorch: expected a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("chatorch: expected a string key")
		}

		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, val)
	}
	return keys, values, nil
}
