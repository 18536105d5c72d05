package chatmsg

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders a ServerConfig as either the Stdio or the Remote
// shape from the configuration file format (§6): a Stdio config and a
// Remote config are distinguished structurally, not by a "kind" tag, since
// that is how the configuration file documents them.
func (s ServerConfig) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ServerKindStdio:
		if s.Stdio == nil {
			return nil, fmt.Errorf("chatmsg: stdio server config missing Stdio body")
		}
		return json.Marshal(struct {
			Command      string            `json:"command"`
			Args         []string          `json:"args,omitempty"`
			Env          map[string]string `json:"env,omitempty"`
			Cwd          string            `json:"cwd,omitempty"`
			DeferLoading bool              `json:"defer_loading,omitempty"`
			Transport    string            `json:"transport,omitempty"`
		}{
			Command:      s.Stdio.Command,
			Args:         s.Stdio.Args,
			Env:          s.Stdio.Env,
			Cwd:          s.Stdio.Cwd,
			DeferLoading: s.DeferLoading,
			Transport:    "stdio",
		})
	case ServerKindRemote:
		if s.Remote == nil {
			return nil, fmt.Errorf("chatmsg: remote server config missing Remote body")
		}
		return json.Marshal(struct {
			URL          string            `json:"url"`
			Headers      map[string]string `json:"headers,omitempty"`
			Transport    RemoteTransport   `json:"transport,omitempty"`
			DeferLoading bool              `json:"defer_loading,omitempty"`
		}{
			URL:          s.Remote.URL,
			Headers:      s.Remote.Headers,
			Transport:    s.Remote.Transport,
			DeferLoading: s.DeferLoading,
		})
	default:
		return nil, fmt.Errorf("chatmsg: unknown server kind %q", s.Kind)
	}
}

// UnmarshalJSON decides the ServerConfig variant from the presence of a
// "command" field (Stdio) versus a "url" field (Remote), matching the
// config file's untagged union shape.
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var probe struct {
		Command string `json:"command"`
		URL     string `json:"url"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch {
	case probe.Command != "":
		var body struct {
			Command      string            `json:"command"`
			Args         []string          `json:"args"`
			Env          map[string]string `json:"env"`
			Cwd          string            `json:"cwd"`
			DeferLoading bool              `json:"defer_loading"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		s.Kind = ServerKindStdio
		s.DeferLoading = body.DeferLoading
		s.Stdio = &StdioServerConfig{
			Command: body.Command,
			Args:    body.Args,
			Env:     body.Env,
			Cwd:     body.Cwd,
		}
		return nil
	case probe.URL != "":
		var body struct {
			URL          string            `json:"url"`
			Headers      map[string]string `json:"headers"`
			Transport    RemoteTransport   `json:"transport"`
			DeferLoading bool              `json:"defer_loading"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		transport := body.Transport
		if transport == "" {
			transport = RemoteTransportHTTP
		}
		s.Kind = ServerKindRemote
		s.DeferLoading = body.DeferLoading
		s.Remote = &RemoteServerConfig{
			URL:       body.URL,
			Headers:   body.Headers,
			Transport: transport,
		}
		return nil
	default:
		return fmt.Errorf("chatmsg: server config has neither \"command\" nor \"url\"")
	}
}

// MarshalJSON renders a ToolSpec as the config file's three-shape union:
// `true` for ALL, a bare name array for Include, or {"exclude": [...]} for
// Exclude.
func (t ToolSpec) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case ToolSpecAll:
		return []byte("true"), nil
	case ToolSpecInclude:
		return json.Marshal(t.Names)
	case ToolSpecExclude:
		return json.Marshal(struct {
			Exclude []string `json:"exclude"`
		}{Exclude: t.Names})
	default:
		return nil, fmt.Errorf("chatmsg: unknown tool spec kind %q", t.Kind)
	}
}

// UnmarshalJSON parses the config file's three-shape ToolSpec union.
func (t *ToolSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("true")) {
		*t = ToolSpec{Kind: ToolSpecAll}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return err
		}
		*t = ToolSpec{Kind: ToolSpecInclude, Names: names}
		return nil
	}
	var exclude struct {
		Exclude []string `json:"exclude"`
	}
	if err := json.Unmarshal(data, &exclude); err != nil {
		return fmt.Errorf("chatmsg: invalid tool spec: %w", err)
	}
	*t = ToolSpec{Kind: ToolSpecExclude, Names: exclude.Exclude}
	return nil
}
