package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mcpflow/pkg/accesslist"
	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/chatorch"
	"mcpflow/pkg/llmprovider"
	"mcpflow/pkg/mcp"
	"mcpflow/pkg/toolcache"
)

type stubProvider struct{ message chatmsg.Message }

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Complete(ctx context.Context, req llmprovider.Request) (llmprovider.Response, error) {
	return llmprovider.Response{Message: p.message}, nil
}

type stubResolver struct{ provider llmprovider.Provider }

func (r *stubResolver) Resolve(modelName string) (llmprovider.Provider, chatmsg.ModelConfig, error) {
	if modelName == "" {
		return nil, chatmsg.ModelConfig{}, chatmsg.ModelUnresolvedError("no model specified", nil)
	}
	return r.provider, chatmsg.ModelConfig{Model: modelName}, nil
}

type fakeTransportForHTTP struct{}

func (fakeTransportForHTTP) Resolve(name string) (string, string, bool) { return "", "", false }
func (fakeTransportForHTTP) CallTool(ctx context.Context, name string, args map[string]any) (mcp.CallToolResult, error) {
	return mcp.CallToolResult{}, nil
}

func newTestServer() *Server {
	cache := toolcache.New(func(context.Context) ([]chatmsg.ServerTool, error) { return nil, nil }, time.Hour)
	cache.Prime(nil)

	orchestrator := chatorch.New(chatorch.Config{
		Cache:     cache,
		Providers: &stubResolver{provider: &stubProvider{message: chatmsg.NewAssistantMessage("hi there", nil)}},
		Transport: fakeTransportForHTTP{},
	})
	access, _ := accesslist.Parse("")
	toolsets := map[string]chatmsg.ToolsetConfig{
		"default": {Description: "every tool", Servers: map[string]chatmsg.ToolSpec{"math": {Kind: chatmsg.ToolSpecAll}}},
	}
	return New(orchestrator, toolsets, access)
}

func TestHandleChatReturnsAssistantReply(t *testing.T) {
	srv := newTestServer()
	body := `{"model":"fake-model","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp chatResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(resp.Response) != 1 || resp.Response[0].Content != "hi there" {
		t.Fatalf("unexpected response body: %+v", resp)
	}
}

func TestHandleChatMissingModelReturns400(t *testing.T) {
	srv := newTestServer()
	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ModelUnresolvedError, got %d", w.Code)
	}
}

func TestHandleToolsetsListsConfiguredToolsets(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/toolsets", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var descriptors []toolsetDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &descriptors); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(descriptors) != 1 || descriptors[0].Name != "default" {
		t.Fatalf("unexpected descriptors: %+v", descriptors)
	}
}

func TestHandleChatRejectsWhenIPNotAllowed(t *testing.T) {
	cache := toolcache.New(func(context.Context) ([]chatmsg.ServerTool, error) { return nil, nil }, time.Hour)
	cache.Prime(nil)
	orchestrator := chatorch.New(chatorch.Config{
		Cache:     cache,
		Providers: &stubResolver{provider: &stubProvider{message: chatmsg.NewAssistantMessage("hi", nil)}},
		Transport: fakeTransportForHTTP{},
	})
	access, _ := accesslist.Parse("203.0.113.0/24")
	srv := New(orchestrator, nil, access)

	body := `{"model":"fake-model","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.9:1234"
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a caller outside the allowlist, got %d", w.Code)
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
