package chatmsg

// TokenUsage accumulates prompt/completion token counts across every LLM
// call made during one Chat.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add folds one LLM call's usage into the running total.
func (u *TokenUsage) Add(prompt, completion int) {
	u.Prompt += prompt
	u.Completion += completion
	u.Total += prompt + completion
}

// ToolCallStats breaks down tool invocations by tool name and by owning
// server, alongside the running total.
type ToolCallStats struct {
	Total    int            `json:"total"`
	ByTool   map[string]int `json:"by_tool,omitempty"`
	ByServer map[string]int `json:"by_server,omitempty"`
}

// Record counts one tool call against both its tool and server buckets.
func (s *ToolCallStats) Record(toolName, server string) {
	if s.ByTool == nil {
		s.ByTool = make(map[string]int)
	}
	if s.ByServer == nil {
		s.ByServer = make(map[string]int)
	}
	s.Total++
	s.ByTool[toolName]++
	if server != "" {
		s.ByServer[server]++
	}
}

// DiscoveryStats is only non-nil when tool discovery is enabled for a call.
type DiscoveryStats struct {
	SearchCalls     int `json:"search_calls"`
	ToolsDiscovered int `json:"tools_discovered"`
}

// ChatStats is the optional per-call accounting a caller may request via
// ChatRequest.IncludeStats. A caller that never asks for stats pays nothing
// beyond the few counter increments already required to drive the loop.
type ChatStats struct {
	LLMCalls  int             `json:"llm_calls"`
	Tokens    TokenUsage      `json:"tokens"`
	ToolCalls ToolCallStats   `json:"tool_calls"`
	Discovery *DiscoveryStats `json:"discovery,omitempty"`
}

// RecordDiscoverySearch lazily allocates Discovery on first use so callers
// that never enable discovery never see the field.
func (s *ChatStats) RecordDiscoverySearch(toolsReturned int) {
	if s.Discovery == nil {
		s.Discovery = &DiscoveryStats{}
	}
	s.Discovery.SearchCalls++
	s.Discovery.ToolsDiscovered += toolsReturned
}
