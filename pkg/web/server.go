// Package web exposes the dependency graph over a JSON API with SSE push
// for sync progress.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/depscope/depscope/pkg/engine"
	"github.com/depscope/depscope/pkg/logging"
	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/pubsub"
	"github.com/depscope/depscope/pkg/walker"
)

// Server serves graph queries and sync control over HTTP.
type Server struct {
	router    *mux.Router
	engine    *engine.Engine
	walker    *walker.Walker
	publisher pubsub.Publisher
}

// NewServer creates a server over an engine and the walker that feeds it.
func NewServer(eng *engine.Engine, w *walker.Walker) *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// New subscribers get the current state, not the full history.
	ssePublisher.ConfigureTopic(pubsub.TopicSyncStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})
	ssePublisher.ConfigureTopic(pubsub.TopicGraph, pubsub.TopicConfig{
		BufferSize: 5,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		engine:    eng,
		walker:    w,
		publisher: ssePublisher,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/sync_status", s.handleSubscribe(pubsub.TopicSyncStatus)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/graph", s.handleSubscribe(pubsub.TopicGraph)).Methods("GET")

	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/sync", s.handleSync).Methods("POST")
	s.router.HandleFunc("/api/files", s.handleFiles).Methods("GET")
	s.router.HandleFunc("/api/symbols", s.handleSymbols).Methods("GET")
	s.router.HandleFunc("/api/symbols/{id}", s.handleSymbol).Methods("GET")
	s.router.HandleFunc("/api/symbols/{id}/edges", s.handleEdges).Methods("GET")
	s.router.HandleFunc("/api/symbols/{id}/impact", s.handleImpact).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
}

// RunSync walks the workspace, syncs the engine, and publishes progress.
// It is shared by the POST endpoint and watch mode.
func (s *Server) RunSync(ctx context.Context) (*model.SyncReport, error) {
	s.publishStatus("started", "", "walking workspace")

	files, unreadable, err := s.walker.Walk(ctx)
	if err != nil {
		s.publishStatus("failed", "", err.Error())
		return nil, err
	}

	report, err := s.engine.Sync(ctx, files, unreadable)
	if err != nil {
		runID := ""
		if report != nil {
			runID = report.RunID
		}
		s.publishStatus("failed", runID, err.Error())
		return report, err
	}

	s.publishStatus("finished", report.RunID, fmt.Sprintf("%d files synced", len(files)))
	s.publisher.Publish(pubsub.TopicGraph, "updated", pubsub.GraphSummary{
		Files:    len(files),
		Added:    report.FilesAdded,
		Modified: report.FilesModified,
		Removed:  report.FilesRemoved,
		Failed:   report.FilesFailed,
		Changed:  report.Changed(),
	})
	return report, nil
}

func (s *Server) publishStatus(eventType, runID, message string) {
	s.publisher.Publish(pubsub.TopicSyncStatus, eventType, pubsub.SyncStatus{
		State:   string(s.engine.State()),
		RunID:   runID,
		Message: message,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(s.engine.State()),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.RunSync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.engine.Files(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file")
	if path == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing file query parameter"))
		return
	}
	symbols, err := s.engine.SymbolsIn(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	id, ok := s.symbolID(w, r)
	if !ok {
		return
	}
	sym, err := s.engine.Symbol(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sym)
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := s.symbolID(w, r)
	if !ok {
		return
	}
	edges, err := s.engine.EdgesFrom(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.symbolID(w, r)
	if !ok {
		return
	}
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid depth %q", raw))
			return
		}
		depth = parsed
	}
	entries, err := s.engine.ImpactOf(r.Context(), id, depth)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []model.ImpactEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	found, err := s.engine.FindCycles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if found == nil {
		found = []model.Cycle{}
	}
	writeJSON(w, http.StatusOK, found)
}

// symbolID resolves the {id} path variable, accepting both raw ids and
// path#name/arity references. References contain slashes, so they may also
// be passed unescaped via the ref query parameter.
func (s *Server) symbolID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ref := mux.Vars(r)["id"]
	if q := r.URL.Query().Get("ref"); q != "" {
		ref = q
	}
	id, err := engine.ResolveRef(ref)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrSymbolNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// handleSubscribe streams a topic over SSE until the client disconnects.
func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		// Establish the stream before any event arrives.
		fmt.Fprintf(w, ": connected\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer sub.Close()

		for event := range sub.Events() {
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.Debug("SSE client gone", "topic", topic, "error", err)
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close shuts down the event publisher.
func (s *Server) Close() error {
	return s.publisher.Close()
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Info("Web server listening", "addr", fmt.Sprintf("http://localhost%s", addr))
	return http.ListenAndServe(addr, s.router)
}
