// Package api serves batch run status and history over HTTP, with engine
// events relayed to clients as an SSE stream. No HTML UI is served; the
// endpoints are plain JSON for whatever front-end or script wants them.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/chunkerbatch/chunkerbatch/internal/engine"
	"github.com/chunkerbatch/chunkerbatch/internal/history"
)

// Store provides the run-history queries the API needs
type Store interface {
	RecentRuns(limit int) ([]*history.Run, error)
	GetRun(runID string) (*history.Run, error)
	RunOutcomes(runID string) ([]*history.Outcome, error)
}

// SnapshotFunc reports the live run, or nil when nothing is converting
type SnapshotFunc func() *engine.Snapshot

// Server is the HTTP status API server
type Server struct {
	store    Store
	snapshot SnapshotFunc
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
}

// NewServer creates a status server. snapshot may be nil when the process
// only serves history (the standalone serve command).
func NewServer(store Store, snapshot SnapshotFunc, addr string) *Server {
	s := &Server{
		store:    store,
		snapshot: snapshot,
		addr:     addr,
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Start starts the HTTP server and blocks
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
