package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"guest-delivery/internal/observability/logging"
)

// ReadinessCheck is one dependency probed by /health/ready, such as a database ping.
// An Optional check is reported in the response but never fails readiness.
type ReadinessCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// HealthServer serves liveness and readiness probes. Extra handlers can be mounted before
// Start, which is how the worker exposes channel health and queue stats.
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	ready   atomic.Bool
	checks  []ReadinessCheck
	mux     *http.ServeMux
	timeout time.Duration
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthServer creates a server that reports not ready until SetReady(true).
func NewHealthServer(addr string, logger *slog.Logger, checks ...ReadinessCheck) *HealthServer {
	h := &HealthServer{
		addr:    addr,
		logger:  logger,
		checks:  checks,
		mux:     http.NewServeMux(),
		timeout: 2 * time.Second,
	}
	h.mux.HandleFunc("/health", h.handleLiveness)
	h.mux.HandleFunc("/health/ready", h.handleReadiness)
	return h
}

// Handle mounts an additional handler.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Handler returns the server's routes.
func (h *HealthServer) Handler() http.Handler {
	return h.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully and returns nil.
func (h *HealthServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         h.addr,
		Handler:      h.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		h.logger.Info("health server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SetReady flips the readiness state.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = logging.SanitizeError(err)
			if !c.Optional {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, resp)
}

// WriteJSON writes v with status code; handlers mounted by the worker use it too.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
