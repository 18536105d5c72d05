// Package chatmsg holds the wire-level data model shared by the tool
// cache, toolset filter, search index, and chat orchestrator: tools,
// chat messages, tool calls, and server/model/toolset configuration.
package chatmsg

// Tool describes one callable tool in a catalogue. Names are unique within
// a catalogue; when more than one server is mounted the name carries a
// "<server>_<tool>" prefix, applied by the MCP aggregate, not here.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Role identifies the sender of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallFunction is the function half of a ToolCall.
type ToolCallFunction struct {
	Name string `json:"name"`
	// Arguments is the JSON-encoded argument object, kept as a raw string
	// because that is the wire shape every LLM tool-calling API uses.
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation an assistant message requested.
type ToolCall struct {
	ID       string           `json:"id"`
	Function ToolCallFunction `json:"function"`
}

// Message is a tagged sum type over the four chat message variants:
// System, User, Assistant, and ToolResult. Role selects the variant; the
// remaining fields are populated per variant and zero otherwise.
type Message struct {
	Role Role `json:"role"`

	// Content holds System/User text, or the optional Assistant text.
	Content string `json:"content,omitempty"`

	// ToolCalls is set only on Assistant messages that invoked tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Name and ToolCallID are set only on ToolResult messages. ToolCallID
	// must equal the ID of the ToolCall it answers.
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewSystemMessage builds a System message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a User message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an Assistant message, with or without tool calls.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// NewToolResultMessage builds a ToolResult message answering toolCallID.
func NewToolResultMessage(name, toolCallID, content string) Message {
	return Message{Role: RoleTool, Name: name, ToolCallID: toolCallID, Content: content}
}

// HasToolCalls reports whether an Assistant message requested tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// CloneMessages returns a shallow copy of a message slice so callers can
// mutate it (insert system prompts, append results) without aliasing the
// caller's own slice.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// ServerKind distinguishes the two ServerConfig variants.
type ServerKind string

const (
	ServerKindStdio  ServerKind = "stdio"
	ServerKindRemote ServerKind = "remote"
)

// RemoteTransport identifies the wire transport for a Remote server.
type RemoteTransport string

const (
	RemoteTransportHTTP           RemoteTransport = "http"
	RemoteTransportStreamableHTTP RemoteTransport = "streamable-http"
	RemoteTransportSSE            RemoteTransport = "sse"
)

// StdioServerConfig launches a local MCP server subprocess.
type StdioServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
}

// RemoteServerConfig connects to a network-hosted MCP server.
type RemoteServerConfig struct {
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Transport RemoteTransport   `json:"transport,omitempty"`
}

// ServerConfig is a tagged variant over Stdio and Remote server connections.
// Both variants carry DeferLoading, which controls whether the Partitioner
// withholds this server's tools from the LLM until search-tools surfaces them.
type ServerConfig struct {
	Kind         ServerKind          `json:"-"`
	Stdio        *StdioServerConfig  `json:"-"`
	Remote       *RemoteServerConfig `json:"-"`
	DeferLoading bool                `json:"defer_loading,omitempty"`
}

// ClientConfig describes one LLM endpoint.
type ClientConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Timeout  int    `json:"timeout,omitempty"` // seconds, default 60
}

// ModelConfig references a client by name and carries per-model overrides.
type ModelConfig struct {
	Client      string   `json:"client"`
	Model       string   `json:"model"`
	Template    string   `json:"template,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ToolDiscoveryConfig controls lazy loading of deferred tools.
type ToolDiscoveryConfig struct {
	Enabled          bool `json:"enabled,omitempty"`
	DeferAll         bool `json:"defer_all,omitempty"`
	MaxSearchResults int  `json:"max_search_results,omitempty"` // >= 1
}

// ToolSpecKind distinguishes the three ToolSpec variants.
type ToolSpecKind string

const (
	ToolSpecAll     ToolSpecKind = "all"
	ToolSpecInclude ToolSpecKind = "include"
	ToolSpecExclude ToolSpecKind = "exclude"
)

// ToolSpec is one server's entry in a ToolsetConfig: ALL tools, an Include
// list of base tool names, or an Exclude list of base tool names.
type ToolSpec struct {
	Kind  ToolSpecKind
	Names []string
}

// ToolsetConfig is a named include/exclude spec over (server, tool) pairs.
type ToolsetConfig struct {
	Description string              `json:"description,omitempty"`
	Servers     map[string]ToolSpec `json:"servers"`
}

// ServerTool pairs a tool with the name of the server that owns it.
type ServerTool struct {
	Server string
	Tool   Tool
}
