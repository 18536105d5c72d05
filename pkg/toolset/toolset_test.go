package toolset

import (
	"testing"

	"mcpflow/pkg/chatmsg"
)

func serverSet(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func TestExtractServerAndToolMultiServer(t *testing.T) {
	servers := serverSet("github", "files")
	server, base := ExtractServerAndTool("github_create_issue", servers)
	if server != "github" || base != "create_issue" {
		t.Fatalf("got server=%q base=%q", server, base)
	}
}

func TestExtractServerAndToolSingleServerUnprefixed(t *testing.T) {
	servers := serverSet("files")
	server, base := ExtractServerAndTool("read_file", servers)
	if server != "files" || base != "read_file" {
		t.Fatalf("got server=%q base=%q", server, base)
	}
}

func TestExtractServerAndToolFallsBackToDefault(t *testing.T) {
	servers := serverSet("github", "files")
	server, base := ExtractServerAndTool("unknownprefix_thing", servers)
	if server != "default" || base != "unknownprefix_thing" {
		t.Fatalf("got server=%q base=%q", server, base)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	tools := []chatmsg.Tool{
		{Name: "github_create_issue"},
		{Name: "files_read_file"},
	}
	servers := serverSet("github", "files")

	ts := chatmsg.ToolsetConfig{
		Servers: map[string]chatmsg.ToolSpec{
			"github": {Kind: chatmsg.ToolSpecInclude, Names: []string{"create_issue", "nonexistent_tool"}},
			"ghost":  {Kind: chatmsg.ToolSpecAll},
		},
	}

	err := Validate(ts, tools, servers)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !containsSubstring(msg, "nonexistent_tool") || !containsSubstring(msg, "ghost") {
		t.Fatalf("expected both problems reported, got: %s", msg)
	}
}

func TestFilterAll(t *testing.T) {
	tools := []chatmsg.Tool{
		{Name: "github_create_issue"},
		{Name: "github_close_issue"},
		{Name: "files_read_file"},
	}
	servers := serverSet("github", "files")
	ts := chatmsg.ToolsetConfig{
		Servers: map[string]chatmsg.ToolSpec{
			"github": {Kind: chatmsg.ToolSpecAll},
		},
	}

	got, err := Filter(tools, ts, servers, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tools, got %d: %+v", len(got), got)
	}
}

func TestFilterExclude(t *testing.T) {
	tools := []chatmsg.Tool{
		{Name: "github_create_issue"},
		{Name: "github_close_issue"},
	}
	servers := serverSet("github")
	ts := chatmsg.ToolsetConfig{
		Servers: map[string]chatmsg.ToolSpec{
			"github": {Kind: chatmsg.ToolSpecExclude, Names: []string{"close_issue"}},
		},
	}

	got, err := Filter(tools, ts, servers, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "github_create_issue" {
		t.Fatalf("expected only create_issue to survive, got %+v", got)
	}
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
