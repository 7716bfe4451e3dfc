// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the engine over HTTP: query answering with
// optional SSE streaming, ingestion, health and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/observability"
	"github.com/kadirpekel/vectra/pkg/rag"
)

// Server serves the HTTP API for a single engine.
type Server struct {
	cfg    config.ServerConfig
	engine *rag.Engine
	http   *http.Server
}

// New builds a server around engine. The configuration is defaulted
// but not validated; validation belongs to config loading.
func New(cfg config.ServerConfig, engine *rag.Engine) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, engine: engine}
	s.http = &http.Server{
		Addr:        cfg.Address(),
		Handler:     s.routes(),
		ReadTimeout: time.Duration(cfg.ReadTimeout),
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	// Operational endpoints stay open so probes and scrapers work
	// without credentials.
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", observability.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		if s.cfg.AuthToken != "" {
			r.Use(bearerAuth(s.cfg.AuthToken))
		}
		r.Post("/v1/query", s.handleQuery)
		r.Post("/v1/ingest", s.handleIngest)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownTimeout))
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// QueryRequest is the /v1/query request body.
type QueryRequest struct {
	Question  string         `json:"question"`
	SessionID string         `json:"sessionId,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`

	// Stream switches the response to server-sent events.
	Stream bool `json:"stream,omitempty"`
}

// IngestRequest is the /v1/ingest request body. Path may name a file
// or a directory on the server's filesystem.
type IngestRequest struct {
	Path string `json:"path"`
}

// streamEvent is one SSE data payload.
type streamEvent struct {
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	opts := rag.QueryOptions{SessionID: req.SessionID, Filter: req.Filter}
	if req.Stream {
		s.streamQuery(w, r, req.Question, opts)
		return
	}

	result, err := s.engine.Query(r.Context(), req.Question, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// streamQuery relays engine stream chunks as SSE events and ends the
// stream with a [DONE] sentinel. Pipeline errors before the first
// chunk still produce a JSON error response.
func (s *Server) streamQuery(w http.ResponseWriter, r *http.Request, question string, opts rag.QueryOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chunks, err := s.engine.QueryStream(r.Context(), question, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		event := streamEvent{Delta: chunk.Delta, FinishReason: chunk.FinishReason}
		if chunk.Err != nil {
			event = streamEvent{Error: chunk.Err.Error()}
		}
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	summary, err := s.engine.Ingest(r.Context(), req.Path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
