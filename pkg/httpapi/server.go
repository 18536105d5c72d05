// Package httpapi is the HTTP wrapper around the chat orchestrator: a
// POST /chat endpoint, a GET /toolsets descriptor listing, and healthz,
// gated by pkg/accesslist the way the teacher gates its webhook endpoint.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"mcpflow/pkg/accesslist"
	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/chatorch"
	"mcpflow/pkg/logging"
)

// Server serves the chat HTTP API.
type Server struct {
	orchestrator *chatorch.Orchestrator
	toolsets     map[string]chatmsg.ToolsetConfig
	access       accesslist.List
	logger       *logging.Logger
}

// New builds a Server. access gates every request by caller source IP.
func New(orchestrator *chatorch.Orchestrator, toolsets map[string]chatmsg.ToolsetConfig, access accesslist.List) *Server {
	return &Server{
		orchestrator: orchestrator,
		toolsets:     toolsets,
		access:       access,
		logger:       logging.Default(),
	}
}

// Handler returns the HTTP handler for the chat API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.withAccessGate(s.handleChat))
	mux.HandleFunc("/toolsets", s.withAccessGate(s.handleToolsets))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *Server) withAccessGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.logger.With("path", r.URL.Path)
		clientIP := accesslist.ExtractClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"))
		if !s.access.Allows(clientIP) {
			log.Warn("request rejected: IP not in allowlist", "client_ip", clientIP.String())
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// chatRequestBody is the wire shape of POST /chat.
type chatRequestBody struct {
	Model        string             `json:"model"`
	SystemPrompt string             `json:"system_prompt,omitempty"`
	Messages     []chatmsg.Message  `json:"messages"`
	ToolSet      string             `json:"tool_set,omitempty"`
	IncludeStats bool               `json:"include_stats,omitempty"`
}

// chatResponseBody is the wire shape of POST /chat's response.
type chatResponseBody struct {
	Messages []chatmsg.Message  `json:"messages"`
	Response []chatmsg.Message  `json:"response"`
	Stats    *chatmsg.ChatStats `json:"stats,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("path", r.URL.Path)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	defer r.Body.Close()

	var req chatRequestBody
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request")
		return
	}

	resp, err := s.orchestrator.Chat(r.Context(), chatorch.ChatRequest{
		Model:        req.Model,
		System:       req.SystemPrompt,
		Messages:     req.Messages,
		ToolSet:      req.ToolSet,
		IncludeStats: req.IncludeStats,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if chatmsg.IsKind(err, chatmsg.KindToolsetValidation) || chatmsg.IsKind(err, chatmsg.KindModelUnresolved) {
			status = http.StatusBadRequest
		}
		log.Error("chat call failed", "error", err.Error(), "status", status)
		writeError(w, status, err.Error())
		return
	}

	log.Info("chat call completed", "messages", len(resp.Messages))
	writeJSON(w, http.StatusOK, chatResponseBody{
		Messages: resp.Messages,
		Response: resp.Response,
		Stats:    resp.Stats,
	})
}

// toolsetDescriptor is one entry in GET /toolsets' listing.
type toolsetDescriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Servers     []string `json:"servers"`
}

func (s *Server) handleToolsets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	descriptors := make([]toolsetDescriptor, 0, len(s.toolsets))
	for name, ts := range s.toolsets {
		servers := make([]string, 0, len(ts.Servers))
		for server := range ts.Servers {
			servers = append(servers, server)
		}
		descriptors = append(descriptors, toolsetDescriptor{
			Name:        name,
			Description: ts.Description,
			Servers:     servers,
		})
	}
	writeJSON(w, http.StatusOK, descriptors)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
