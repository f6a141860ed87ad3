// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesProcessed counts messages fully processed, labeled by the
	// classified intent kind.
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nifty",
		Name:      "messages_processed_total",
		Help:      "Messages processed by the dispatcher, by intent kind.",
	}, []string{"intent"})

	// MessagesDropped counts messages dropped before processing, labeled by
	// reason (queue_overflow, malformed, known_bot).
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nifty",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped before processing, by reason.",
	}, []string{"reason"})

	// CacheHits counts price cache lookups served without an upstream call.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nifty",
		Name:      "price_cache_hits_total",
		Help:      "Price cache lookups served from a live entry.",
	})

	// CacheMisses counts price cache lookups that required a fetch.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nifty",
		Name:      "price_cache_misses_total",
		Help:      "Price cache lookups that triggered an upstream fetch.",
	})

	// UpstreamErrors counts failed upstream calls, by backend.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nifty",
		Name:      "upstream_errors_total",
		Help:      "Failed upstream calls, by backend.",
	}, []string{"backend"})

	// ProcessingDuration observes per-message processing time by intent kind.
	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nifty",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing one message, by intent kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"intent"})
)

// Serve runs the /metrics HTTP listener on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
