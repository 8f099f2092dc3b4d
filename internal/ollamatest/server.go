// Package ollamatest runs an in-process imitation of the Ollama HTTP API for
// tests. It answers /api/tags, /api/pull and /api/generate, streaming
// fragments as NDJSON the way the real server does.
package ollamatest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// GenerateCall records one /api/generate request.
type GenerateCall struct {
	Model  string
	Prompt string
	System string
	Stream bool
}

// Server is a fake Ollama. Replies are fixed per server; set Fragments before
// issuing requests.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	models    []string
	fragments []string
	failWith  string
	failMidAt int
	calls     []GenerateCall
	pulled    []string
}

// Option customizes a Server.
type Option func(*Server)

// WithModels sets the names reported by /api/tags.
func WithModels(names ...string) Option {
	return func(s *Server) { s.models = names }
}

// WithFragments sets the completion text, split into stream fragments.
func WithFragments(fragments ...string) Option {
	return func(s *Server) { s.fragments = fragments }
}

// WithError makes /api/generate fail with the given message and HTTP 500.
func WithError(msg string) Option {
	return func(s *Server) { s.failWith = msg }
}

// WithStreamError makes a streamed generation emit an error line after n fragments.
func WithStreamError(n int, msg string) Option {
	return func(s *Server) {
		s.failMidAt = n
		s.failWith = msg
	}
}

// New starts a fake Ollama server. It is closed automatically by Close.
func New(opts ...Option) *Server {
	s := &Server{
		models:    []string{"llama2:latest"},
		fragments: []string{"Why do programmers prefer dark mode? ", "Because light ", "attracts bugs."},
		failMidAt: -1,
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Get("/api/tags", s.handleTags)
	r.Post("/api/pull", s.handlePull)
	r.Post("/api/generate", s.handleGenerate)
	s.Server = httptest.NewServer(r)
	return s
}

// Text is the full completion the server produces.
func (s *Server) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.fragments, "")
}

// Calls returns the generate requests received so far.
func (s *Server) Calls() []GenerateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GenerateCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Pulled returns the model names requested through /api/pull.
func (s *Server) Pulled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pulled...)
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		Name string `json:"name"`
	}
	resp := struct {
		Models []entry `json:"models"`
	}{Models: []entry{}}
	for _, m := range s.models {
		resp.Models = append(resp.Models, entry{Name: m})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.pulled = append(s.pulled, req.Name)
	s.models = append(s.models, req.Name+":latest")
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	enc.Encode(map[string]any{"status": "pulling manifest"})
	enc.Encode(map[string]any{"status": "downloading", "total": 100, "completed": 100})
	enc.Encode(map[string]any{"status": "success"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		System string `json:"system"`
		Stream bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, GenerateCall(req))
	fragments := append([]string(nil), s.fragments...)
	failWith, failMidAt := s.failWith, s.failMidAt
	known := s.hasModelLocked(req.Model)
	s.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "model '" + req.Model + "' not found"})
		return
	}
	if failWith != "" && failMidAt < 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": failWith})
		return
	}

	if !req.Stream {
		writeJSON(w, http.StatusOK, map[string]any{
			"model":       req.Model,
			"response":    strings.Join(fragments, ""),
			"done":        true,
			"done_reason": "stop",
		})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for i, f := range fragments {
		if i == failMidAt {
			enc.Encode(map[string]any{"error": failWith})
			return
		}
		enc.Encode(map[string]any{"model": req.Model, "response": f, "done": false})
		if flusher != nil {
			flusher.Flush()
		}
	}
	enc.Encode(map[string]any{"model": req.Model, "response": "", "done": true, "done_reason": "stop"})
}

func (s *Server) hasModelLocked(name string) bool {
	for _, m := range s.models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
