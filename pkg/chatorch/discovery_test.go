package chatorch

import (
	"testing"

	"mcpflow/pkg/chatmsg"
)

func owningServerFixed(server string, names map[string]bool) func(chatmsg.Tool) (string, bool) {
	return func(t chatmsg.Tool) (string, bool) {
		if names[t.Name] {
			return server, true
		}
		return "", false
	}
}

func TestBuildDiscoveryStateDefersOnlyMarkedServers(t *testing.T) {
	discovery := chatmsg.ToolDiscoveryConfig{Enabled: true}
	tools := []chatmsg.Tool{{Name: "math_add"}, {Name: "weather_get"}}
	owning := func(t chatmsg.Tool) (string, bool) {
		if t.Name == "weather_get" {
			return "weather", true
		}
		return "math", true
	}
	deferLoading := func(server string) bool { return server == "weather" }

	state := buildDiscoveryState(tools, owning, &discovery, deferLoading)

	if !state.active() {
		t.Fatal("expected discovery state to be active with a deferred tool present")
	}
	if len(state.loaded) != 1 || state.loaded[0].Name != "math_add" {
		t.Fatalf("expected math_add to load eagerly, got %+v", state.loaded)
	}
	if !state.isDeferredToolName("weather_get") {
		t.Fatal("expected weather_get to be deferred")
	}
}

func TestBuildDiscoveryStateInactiveWhenDiscoveryDisabled(t *testing.T) {
	discovery := chatmsg.ToolDiscoveryConfig{Enabled: false}
	tools := []chatmsg.Tool{{Name: "math_add"}}
	state := buildDiscoveryState(tools, owningServerFixed("math", map[string]bool{"math_add": true}), &discovery, func(string) bool { return true })

	if state.active() {
		t.Fatal("expected discovery state to be inactive when discovery is disabled")
	}
	if len(state.loaded) != 1 {
		t.Fatalf("expected every tool to load eagerly, got %+v", state.loaded)
	}
}

func TestRebuildDiscoveryStateCarriesPreviouslyLoadedToolsForward(t *testing.T) {
	discovery := chatmsg.ToolDiscoveryConfig{Enabled: true}
	owning := owningServerFixed("weather", map[string]bool{"weather_get": true, "weather_forecast": true})
	deferAll := func(string) bool { return true }

	prev := discoveryState{loaded: []chatmsg.Tool{{Name: "weather_get"}}}

	fresh := []chatmsg.Tool{{Name: "weather_get"}, {Name: "weather_forecast"}}
	next := rebuildDiscoveryState(prev, fresh, owning, &discovery, deferAll)

	foundLoaded := false
	for _, t := range next.loaded {
		if t.Name == "weather_get" {
			foundLoaded = true
		}
	}
	if !foundLoaded {
		t.Fatal("expected weather_get to remain loaded across a rebuild")
	}
	if !next.isDeferredToolName("weather_forecast") {
		t.Fatal("expected weather_forecast, never loaded before, to stay deferred")
	}
	if next.isDeferredToolName("weather_get") {
		t.Fatal("expected weather_get to not reappear in the deferred set")
	}
}

func TestSwapDiscoveryMessageInsertsAfterExistingSystemMessages(t *testing.T) {
	messages := []chatmsg.Message{
		chatmsg.NewSystemMessage("base prompt"),
		chatmsg.NewUserMessage("hello"),
	}
	out, idx := swapDiscoveryMessage(messages, -1, "manifest text")
	if idx != 1 {
		t.Fatalf("expected discovery message inserted at index 1, got %d", idx)
	}
	if out[1].Content != "manifest text" || out[1].Role != chatmsg.RoleSystem {
		t.Fatalf("unexpected message at idx 1: %+v", out[1])
	}
	if out[2].Content != "hello" {
		t.Fatalf("expected user message preserved after discovery message, got %+v", out[2])
	}
}

func TestSwapDiscoveryMessageReplacesInPlaceOnRebuild(t *testing.T) {
	messages := []chatmsg.Message{
		chatmsg.NewSystemMessage("first manifest"),
		chatmsg.NewUserMessage("hello"),
	}
	out, idx := swapDiscoveryMessage(messages, 0, "second manifest")
	if idx != 0 {
		t.Fatalf("expected idx to stay 0, got %d", idx)
	}
	if out[0].Content != "second manifest" {
		t.Fatalf("expected in-place replacement, got %+v", out[0])
	}
	if len(out) != 2 {
		t.Fatalf("expected message count unchanged, got %d", len(out))
	}
}

func TestSwapDiscoveryMessageRemovesWhenPromptEmpty(t *testing.T) {
	messages := []chatmsg.Message{
		chatmsg.NewSystemMessage("manifest"),
		chatmsg.NewUserMessage("hello"),
	}
	out, idx := swapDiscoveryMessage(messages, 0, "")
	if idx != -1 {
		t.Fatalf("expected idx -1 after removal, got %d", idx)
	}
	if len(out) != 1 || out[0].Content != "hello" {
		t.Fatalf("expected only the user message to remain, got %+v", out)
	}
}
