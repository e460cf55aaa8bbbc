package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	workerPkg "guest-delivery/internal/infra/worker"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/slo"
	"guest-delivery/internal/observability/tracing"
	"guest-delivery/internal/usecase/delivery"
	"guest-delivery/internal/usecase/queue"
)

// ChannelHealthResponse is the /health/channels body.
type ChannelHealthResponse struct {
	Healthy  bool                     `json:"healthy"`
	Channels []delivery.ChannelHealth `json:"channels"`
}

// QueueStatsResponse is the /queue/stats body.
type QueueStatsResponse struct {
	Counts       map[string]int64 `json:"counts"`
	SuccessRatio float64          `json:"success_ratio"`
	Backlog      int64            `json:"backlog"`
	SLOBreached  bool             `json:"slo_breached"`
}

// startMetricsServer serves /metrics and /queue/stats until ctx is cancelled.
func startMetricsServer(ctx context.Context, logger *slog.Logger, port int, stats *queue.Service) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/queue/stats", queueStatsHandler(stats))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      tracing.Middleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		logger.Info("metrics server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// channelHealthHandler reports provider configuration and breaker state. It answers 503
// while any configured channel has an open circuit.
func channelHealthHandler(registry *delivery.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := ChannelHealthResponse{
			Healthy:  registry.Healthy(),
			Channels: registry.ChannelHealth(),
		}
		code := http.StatusOK
		if !resp.Healthy {
			code = http.StatusServiceUnavailable
		}
		workerPkg.WriteJSON(w, code, resp)
	})
}

func queueStatsHandler(svc *queue.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Error("queue stats failed", slog.String("error", logging.SanitizeError(err)))
			workerPkg.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "queue stats unavailable"})
			return
		}
		counts := make(map[string]int64, len(stats))
		for status, n := range stats {
			counts[string(status)] = n
		}
		snap := slo.Evaluate(stats)
		workerPkg.WriteJSON(w, http.StatusOK, QueueStatsResponse{
			Counts:       counts,
			SuccessRatio: snap.SuccessRatio,
			Backlog:      snap.Backlog,
			SLOBreached:  snap.Breached,
		})
	})
}
