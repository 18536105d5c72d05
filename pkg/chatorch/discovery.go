package chatorch

import (
	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/partition"
	"mcpflow/pkg/searchtool"
)

// discoveryState is one Chat call's view of the deferred/loaded split. It
// is rebuilt mid-loop (§4.6.1) whenever the underlying catalogue changes,
// but previously-loaded tools are always carried forward into the rebuild.
type discoveryState struct {
	loaded           []chatmsg.Tool
	deferredByServer map[string][]chatmsg.Tool
	tool             *searchtool.SearchTool
	prompt           string
}

// active reports whether a search-tools instance exists for this call,
// i.e. whether the last build or rebuild left any tool deferred.
func (d discoveryState) active() bool {
	return d.tool != nil
}

// buildDiscoveryState runs the Partitioner over tools and, if anything
// ends up deferred, builds a fresh search-tools instance over it.
func buildDiscoveryState(
	tools []chatmsg.Tool,
	owningServer partition.OwningServer,
	discovery *chatmsg.ToolDiscoveryConfig,
	deferLoading partition.DeferLoading,
) discoveryState {
	loaded, deferredByServer := partition.Partition(tools, owningServer, discovery, deferLoading)

	st := discoveryState{loaded: loaded, deferredByServer: deferredByServer}
	if len(deferredByServer) > 0 {
		st.tool = searchtool.New(deferredByServer, *discovery)
		st.prompt = st.tool.SystemPrompt()
	}
	return st
}

// rebuildDiscoveryState re-partitions a freshly-fetched catalogue while honoring §4.6.1:
// a tool the prior state already loaded stays loaded even if the new
// partition would defer it again, since the model has already seen it.
func rebuildDiscoveryState(
	prev discoveryState,
	freshTools []chatmsg.Tool,
	owningServer partition.OwningServer,
	discovery *chatmsg.ToolDiscoveryConfig,
	deferLoading partition.DeferLoading,
) discoveryState {
	alreadyLoaded := make(map[string]bool, len(prev.loaded))
	for _, t := range prev.loaded {
		alreadyLoaded[t.Name] = true
	}

	loaded, deferredByServer := partition.Partition(freshTools, owningServer, discovery, deferLoading)

	carried := make([]chatmsg.Tool, 0, len(prev.loaded))
	carried = append(carried, prev.loaded...)
	seen := make(map[string]bool, len(carried))
	for _, t := range carried {
		seen[t.Name] = true
	}
	for _, t := range loaded {
		if !seen[t.Name] {
			carried = append(carried, t)
			seen[t.Name] = true
		}
	}

	residual := make(map[string][]chatmsg.Tool, len(deferredByServer))
	for server, toolsForServer := range deferredByServer {
		var kept []chatmsg.Tool
		for _, t := range toolsForServer {
			if alreadyLoaded[t.Name] {
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) > 0 {
			residual[server] = kept
		}
	}

	st := discoveryState{loaded: carried, deferredByServer: residual}
	if len(residual) > 0 {
		st.tool = searchtool.New(residual, *discovery)
		st.prompt = st.tool.SystemPrompt()
	}
	return st
}

// isDeferredToolName reports whether name belongs to the current residual
// deferred set, i.e. the model would be bypassing search-tools by calling
// it directly.
func (d discoveryState) isDeferredToolName(name string) bool {
	for _, toolsForServer := range d.deferredByServer {
		for _, t := range toolsForServer {
			if t.Name == name {
				return true
			}
		}
	}
	return false
}

// swapDiscoveryMessage replaces the discovery system message in place: the
// caller tracks its own index (-1 if none is present yet) across rebuilds,
// since the message carries no tag of its own. prompt == "" removes the
// message entirely and reports idx -1. Returns the updated messages and
// the discovery message's new index.
func swapDiscoveryMessage(messages []chatmsg.Message, idx int, prompt string) ([]chatmsg.Message, int) {
	if prompt == "" {
		if idx >= 0 {
			return append(messages[:idx], messages[idx+1:]...), -1
		}
		return messages, -1
	}

	msg := chatmsg.NewSystemMessage(prompt)
	if idx >= 0 {
		messages[idx] = msg
		return messages, idx
	}

	insertAt := 0
	for insertAt < len(messages) && messages[insertAt].Role == chatmsg.RoleSystem {
		insertAt++
	}
	out := make([]chatmsg.Message, 0, len(messages)+1)
	out = append(out, messages[:insertAt]...)
	out = append(out, msg)
	out = append(out, messages[insertAt:]...)
	return out, insertAt
}
