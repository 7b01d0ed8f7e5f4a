package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/metrics"
	"github.com/indygreg/docker-worker/pkg/storage"
)

// defaultRunsLimit caps a /runs listing when the caller does not ask
// for a specific size.
const defaultRunsLimit = 50

// Server is the worker's HTTP sidecar: liveness and readiness probes,
// Prometheus metrics, and a read-only view of recent run history.
type Server struct {
	store  storage.Store
	logger zerolog.Logger
	srv    *http.Server
}

// NewServer creates the HTTP server listening on addr
func NewServer(addr string, store storage.Store, logger zerolog.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/runs", s.runsHandler)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called. It blocks; run it on its own
// goroutine.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the route mux for embedding in tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// RunsResponse is the /runs payload: recent terminal runs plus the
// all-time result tallies.
type RunsResponse struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Runs      []RunSummary `json:"runs"`
}

// RunSummary is one run history entry as the API renders it
type RunSummary struct {
	TaskID     string    `json:"taskId"`
	RunID      int       `json:"runId"`
	Phase      string    `json:"phase"`
	Success    bool      `json:"success"`
	ExitCode   int       `json:"exitCode"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// runsHandler lists recent run history, most recent first. The limit
// query parameter bounds the listing; taskId plus runId select one run
// with its full record, artifacts included.
func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if taskID := r.URL.Query().Get("taskId"); taskID != "" {
		s.runDetail(w, r, taskID)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.store.List(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list run history")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	succeeded, failed, err := s.store.CountByResult()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to count run history")
		http.Error(w, "failed to count runs", http.StatusInternalServerError)
		return
	}

	resp := RunsResponse{
		Succeeded: succeeded,
		Failed:    failed,
		Runs:      make([]RunSummary, 0, len(records)),
	}
	for _, rec := range records {
		resp.Runs = append(resp.Runs, RunSummary{
			TaskID:     rec.TaskID,
			RunID:      rec.RunID,
			Phase:      string(rec.Phase),
			Success:    rec.Success,
			ExitCode:   rec.ExitCode,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
			Error:      rec.Error,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// runDetail serves one run's full record
func (s *Server) runDetail(w http.ResponseWriter, r *http.Request, taskID string) {
	runID, err := strconv.Atoi(r.URL.Query().Get("runId"))
	if err != nil || runID < 0 {
		http.Error(w, "runId must be a non-negative integer", http.StatusBadRequest)
		return
	}

	record, err := s.store.Get(taskID, runID)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(record)
}
