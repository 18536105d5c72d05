package mcp

import (
	"context"
	"fmt"

	"mcpflow/pkg/chatmsg"
)

// ServerConn manages one MCP server connection and its advertised tools.
type ServerConn struct {
	name      string
	client    *Client
	transport Transport
	tools     []ToolInfo
}

// NewStdioServerConn launches command as a subprocess MCP server.
func NewStdioServerConn(name string, cfg chatmsg.StdioServerConfig) (*ServerConn, error) {
	var envSlice []string
	for k, v := range cfg.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	transport, err := NewStdioTransport(cfg.Command, cfg.Args, envSlice, cfg.Cwd)
	if err != nil {
		return nil, fmt.Errorf("create stdio transport for server %s: %w", name, err)
	}

	return &ServerConn{
		name:      name,
		client:    NewClient(transport),
		transport: transport,
	}, nil
}

// NewRemoteServerConn connects to a network-hosted MCP server.
func NewRemoteServerConn(ctx context.Context, name string, cfg chatmsg.RemoteServerConfig) (*ServerConn, error) {
	var transport Transport
	var err error

	switch cfg.Transport {
	case chatmsg.RemoteTransportStreamableHTTP:
		transport = NewStreamableHTTPTransport(cfg.URL, cfg.Headers)
	case chatmsg.RemoteTransportSSE:
		transport, err = NewSSETransport(ctx, cfg.URL, cfg.Headers)
	default:
		transport = NewHTTPTransport(cfg.URL, cfg.Headers)
	}
	if err != nil {
		return nil, fmt.Errorf("create remote transport for server %s: %w", name, err)
	}

	return &ServerConn{
		name:      name,
		client:    NewClient(transport),
		transport: transport,
	}, nil
}

// Initialize performs the handshake and loads the tool catalogue.
func (s *ServerConn) Initialize(ctx context.Context) error {
	if err := s.client.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize MCP server %s: %w", s.name, err)
	}

	toolInfos, err := s.client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools from MCP server %s: %w", s.name, err)
	}
	s.tools = toolInfos
	return nil
}

// Name returns the server's configured name.
func (s *ServerConn) Name() string {
	return s.name
}

// Tools returns this server's catalogue as chatmsg.Tool values with
// unprefixed, server-local names. Prefixing for multi-server aggregates is
// applied by Aggregate, not here.
func (s *ServerConn) Tools() []chatmsg.Tool {
	out := make([]chatmsg.Tool, len(s.tools))
	for i, info := range s.tools {
		out[i] = chatmsg.Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
		}
	}
	return out
}

// CallTool invokes a tool by its server-local name.
func (s *ServerConn) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
	return s.client.CallTool(ctx, name, arguments)
}

// Close closes the underlying connection.
func (s *ServerConn) Close() error {
	return s.client.Close()
}

// ServerInfo returns the remote implementation info reported at handshake.
func (s *ServerConn) ServerInfo() Implementation {
	return s.client.ServerInfo()
}
