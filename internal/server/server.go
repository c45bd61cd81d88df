// Package server exposes a small JSON control surface over the
// pipeline: trigger a collection cycle, inspect store statistics, and
// read past cycle reports.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"newspipe/internal/collector"
	"newspipe/internal/store"
)

// Trigger starts collection cycles. Satisfied by the orchestrator.
type Trigger interface {
	RunCycle(ctx context.Context, filter []string) *collector.CycleReport
	Running() []string
}

// Server is the HTTP control server.
type Server struct {
	store   *store.Store
	trigger Trigger
	mux     *http.ServeMux

	// base is the lifetime for background cycles started over HTTP.
	// Serve ties it to its own ctx so shutdown cancellation reaches
	// cycles the API has triggered.
	base context.Context
}

// New creates a server over the given store and orchestrator.
func New(st *store.Store, trigger Trigger) *Server {
	s := &Server{store: st, trigger: trigger, mux: http.NewServeMux(), base: context.Background()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/collect", s.handleCollect)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/reports", s.handleReports)
}

type collectRequest struct {
	Source string `json:"source"`
}

// handleCollect starts a cycle in the background and returns 202
// immediately. The caller polls /api/reports for the outcome.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.base.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	var req collectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	var filter []string
	if req.Source != "" {
		filter = []string{req.Source}
	}

	go s.trigger.RunCycle(s.base, filter)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"source": req.Source,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		log.Printf("server: reading stats: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"articles":         stats.TotalArticles,
		"unclassified":     stats.Unclassified,
		"bodies_missing":   stats.BodiesMissing,
		"cycles":           stats.CycleReports,
		"by_category":      stats.ByCategory,
		"latest_collected": stats.LatestCollected,
		"collecting":       s.trigger.Running(),
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	reports, err := s.store.ListCycleReports(limit)
	if err != nil {
		log.Printf("server: reading reports: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: writing response: %v", err)
	}
}

// Serve starts the control server on the given port, shutting down
// when ctx is cancelled.
func Serve(ctx context.Context, st *store.Store, trigger Trigger, port int) error {
	s := New(st, trigger)
	s.base = ctx
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
