package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/dealhound/internal/metrics"
	"github.com/maltedev/dealhound/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunFunc executes one complete tracking run.
type RunFunc func(ctx context.Context) (models.RunSummary, error)

// Handlers serves the run trigger and status endpoints. At most one run is
// in flight at a time.
type Handlers struct {
	ctx     context.Context
	run     RunFunc
	metrics *metrics.Metrics
	logger  *slog.Logger

	running sync.Mutex

	mu      sync.RWMutex
	latest  *RunStatus
	current *RunStatus
}

// RunStatus is the JSON view of a run.
type RunStatus struct {
	Status  string             `json:"status"`
	Summary *models.RunSummary `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty"`
}

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// NewHandlers builds the handlers. Runs started over HTTP inherit ctx, so
// cancelling it aborts an in-flight run.
func NewHandlers(ctx context.Context, run RunFunc, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		ctx:     ctx,
		run:     run,
		metrics: m,
		logger:  logger.With("component", "api"),
	}
}

// Router wires the handlers with the standard middleware stack.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", h.StartRun)
		r.Get("/runs/latest", h.LatestRun)
	})

	return r
}

// Health reports liveness and whether a run is in progress.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	running := h.current != nil
	h.mu.RUnlock()

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": running,
		"time":    time.Now().UTC(),
	})
}

// StartRun launches a run in the background and returns immediately.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	if !h.running.TryLock() {
		h.respondError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	status := &RunStatus{Status: statusRunning}
	h.mu.Lock()
	h.current = status
	h.mu.Unlock()

	go h.execute()

	h.respondJSON(w, http.StatusAccepted, status)
}

func (h *Handlers) execute() {
	defer h.running.Unlock()

	summary, err := h.run(h.ctx)

	result := &RunStatus{Status: statusCompleted, Summary: &summary}
	if err != nil {
		result.Status = statusFailed
		result.Error = err.Error()
		h.logger.Error("run failed", "run_id", summary.RunID.String(), "error", err)
	}

	h.mu.Lock()
	h.latest = result
	h.current = nil
	h.mu.Unlock()
}

// LatestRun returns the in-flight run if there is one, otherwise the last
// finished run.
func (h *Handlers) LatestRun(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	status := h.current
	if status == nil {
		status = h.latest
	}
	h.mu.RUnlock()

	if status == nil {
		h.respondError(w, http.StatusNotFound, "no run has been started")
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
