// Package partition implements the Partitioner: splitting a post-filter
// catalogue into an eager "loaded" set and per-server "deferred" sets.
package partition

import "mcpflow/pkg/chatmsg"

// OwningServer resolves a tool to its owning server, reporting false when
// the server is unknown to the caller (e.g. a synthetic tool).
type OwningServer func(tool chatmsg.Tool) (server string, known bool)

// DeferLoading reports whether server's configuration marks it for
// deferred loading.
type DeferLoading func(server string) bool

// Partition splits tools per §4.4's ordered rules: discovery absent or
// disabled loads everything; DeferAll defers everything (grouped by
// owning server); otherwise a tool defers iff its owning server does.
// Tools with an unknown owning server always load eagerly.
func Partition(
	toolsIn []chatmsg.Tool,
	owningServer OwningServer,
	discovery *chatmsg.ToolDiscoveryConfig,
	deferLoading DeferLoading,
) (loaded []chatmsg.Tool, deferredByServer map[string][]chatmsg.Tool) {
	deferredByServer = make(map[string][]chatmsg.Tool)

	if discovery == nil || !discovery.Enabled {
		return append([]chatmsg.Tool(nil), toolsIn...), deferredByServer
	}

	for _, t := range toolsIn {
		server, known := owningServer(t)
		if !known {
			loaded = append(loaded, t)
			continue
		}

		defer_ := discovery.DeferAll || deferLoading(server)
		if defer_ {
			deferredByServer[server] = append(deferredByServer[server], t)
		} else {
			loaded = append(loaded, t)
		}
	}

	return loaded, deferredByServer
}
