package tools

import (
	"context"
	"testing"

	"mcpflow/pkg/chatmsg"
)

type mockTool struct {
	name string
}

func (t mockTool) Name() string { return t.name }
func (t mockTool) Definition() chatmsg.Tool {
	return chatmsg.Tool{Name: t.name, Description: "test tool"}
}
func (t mockTool) SystemPrompt() string { return "" }
func (t mockTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	return NewResult("ok"), nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	tool := mockTool{name: "test_tool"}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := r.Get("test_tool")
	if got == nil {
		t.Fatal("expected tool, got nil")
	}
	if got.Name() != "test_tool" {
		t.Fatalf("expected test_tool, got %s", got.Name())
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	tool := mockTool{name: "test_tool"}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Register(tool); err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestRegistryGetNonExistent(t *testing.T) {
	r := NewRegistry()

	got := r.Get("nonexistent")
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()

	r.MustRegister(mockTool{name: "tool1"})
	r.MustRegister(mockTool{name: "tool2"})

	got := r.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(got))
	}
}

func TestRegistryHas(t *testing.T) {
	r := NewRegistry()

	r.MustRegister(mockTool{name: "exists"})

	if !r.Has("exists") {
		t.Fatal("expected tool to exist")
	}
	if r.Has("nonexistent") {
		t.Fatal("expected tool to not exist")
	}
}

func TestRegistryCount(t *testing.T) {
	r := NewRegistry()

	r.MustRegister(mockTool{name: "tool1"})
	r.MustRegister(mockTool{name: "tool2"})

	if r.Count() != 2 {
		t.Fatalf("expected 2 tools, got %d", r.Count())
	}
}
