package mcp

import (
	"context"
	"fmt"
	"sync"

	"mcpflow/pkg/chatmsg"
)

// Aggregate merges the catalogues of every configured MCP server into one
// feed for the tool cache. A tool's advertised name carries a
// "<server>_<tool>" prefix only when more than one server is mounted;
// with a single server the tool keeps its bare name.
type Aggregate struct {
	mu      sync.RWMutex
	conns   map[string]*ServerConn
	order   []string
}

// NewAggregate builds an empty aggregate; servers are added with Add.
func NewAggregate() *Aggregate {
	return &Aggregate{conns: make(map[string]*ServerConn)}
}

// Add registers an initialized server connection.
func (a *Aggregate) Add(conn *ServerConn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.conns[conn.Name()]; !exists {
		a.order = append(a.order, conn.Name())
	}
	a.conns[conn.Name()] = conn
}

// Conn returns the connection registered under name, if any.
func (a *Aggregate) Conn(name string) (*ServerConn, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.conns[name]
	return c, ok
}

// ServerNames returns the registered server names in registration order.
func (a *Aggregate) ServerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// qualifiedName applies the single-server/multi-server prefixing rule.
func (a *Aggregate) qualifiedName(server, tool string) string {
	a.mu.RLock()
	multi := len(a.conns) > 1
	a.mu.RUnlock()
	if multi {
		return server + "_" + tool
	}
	return tool
}

// Catalogue returns every server's tools under their aggregate-qualified
// names, paired with the owning server.
func (a *Aggregate) Catalogue() []chatmsg.ServerTool {
	a.mu.RLock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	a.mu.RUnlock()

	var out []chatmsg.ServerTool
	for _, name := range names {
		a.mu.RLock()
		conn := a.conns[name]
		a.mu.RUnlock()
		for _, t := range conn.Tools() {
			out = append(out, chatmsg.ServerTool{
				Server: name,
				Tool: chatmsg.Tool{
					Name:        a.qualifiedName(name, t.Name),
					Description: t.Description,
					InputSchema: t.InputSchema,
				},
			})
		}
	}
	return out
}

// Resolve maps an aggregate-qualified tool name back to its owning server
// and server-local tool name.
func (a *Aggregate) Resolve(qualifiedName string) (server, localName string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.conns) == 1 {
		for name, conn := range a.conns {
			for _, t := range conn.Tools() {
				if t.Name == qualifiedName {
					return name, t.Name, true
				}
			}
		}
		return "", "", false
	}

	for name, conn := range a.conns {
		prefix := name + "_"
		if len(qualifiedName) <= len(prefix) || qualifiedName[:len(prefix)] != prefix {
			continue
		}
		localName := qualifiedName[len(prefix):]
		for _, t := range conn.Tools() {
			if t.Name == localName {
				return name, localName, true
			}
		}
	}
	return "", "", false
}

// CallTool resolves qualifiedName to a server and invokes it there.
func (a *Aggregate) CallTool(ctx context.Context, qualifiedName string, arguments map[string]any) (CallToolResult, error) {
	server, local, ok := a.Resolve(qualifiedName)
	if !ok {
		return CallToolResult{}, fmt.Errorf("mcp: unknown tool %q", qualifiedName)
	}
	conn, ok := a.Conn(server)
	if !ok {
		return CallToolResult{}, fmt.Errorf("mcp: unknown server %q", server)
	}
	return conn.CallTool(ctx, local, arguments)
}

// Close closes every registered connection, returning the first error.
func (a *Aggregate) Close() error {
	a.mu.RLock()
	conns := make([]*ServerConn, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.RUnlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
