// Package metrics provides the Prometheus registry and HTTP endpoint for the
// harvester. All metrics are defined in their respective packages (auth,
// client, pagination, fanout, ratelimit) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve exposes Handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Token Metrics (pkg/auth):
//   - graph_token_refreshes_total (Counter): Credentials acquired from the token endpoint
//   - graph_token_refresh_failures_total (Counter): Failed credential acquisitions
//
// Request Metrics (pkg/client):
//   - graph_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - graph_request_duration_seconds{method} (Histogram): Request duration by method
//   - graph_errors_total{class} (Counter): Failures by class (client, server, throttled, network, auth)
//   - graph_throttled_total (Counter): 429 responses signaled for retry
//
// Retry Metrics (pkg/client):
//   - graph_retries_total (Counter): Requests reissued after throttling
//   - graph_retry_wait_seconds (Histogram): Time slept before reissuing
//   - graph_retry_exhausted_total (Counter): Requests still throttled after max attempts
//
// Pagination Metrics (pkg/pagination):
//   - graph_pages_fetched_total (Counter): Collection pages fetched
//
// Fan-out Metrics (pkg/fanout):
//   - graph_partitions_total{outcome} (Counter): Partition walks by outcome (ok, error)
//   - graph_partition_duration_seconds (Histogram): Time to walk one partition
//
// Throttle Gate Metrics (pkg/ratelimit):
//   - graph_throttle_recorded_total (Counter): Back-off deadlines recorded
//   - graph_throttle_gate_waits_total (Counter): Requests held back by the shared gate
//   - graph_throttle_gate_wait_seconds (Histogram): Time requests were held back
//
// Example Prometheus Queries:
//
//   # Throttle Rate
//   rate(graph_throttled_total[5m]) / sum(rate(graph_requests_total[5m]))
//
//   # Request Error Rate
//   sum by (class) (rate(graph_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(graph_request_duration_seconds_bucket[5m]))
//
//   # Slowest Partitions
//   histogram_quantile(0.99, rate(graph_partition_duration_seconds_bucket[15m]))
