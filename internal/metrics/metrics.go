// Package metrics exposes Prometheus counters for classification, pool
// resolution and arbitrage detection. A nil *Metrics records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "mev_inspect"

// Metrics holds the inspector's collectors
type Metrics struct {
	eventsClassified *prometheus.CounterVec
	eventsSkipped    prometheus.Counter
	eventsFailed     *prometheus.CounterVec
	poolCache        *prometheus.CounterVec
	poolFetches      *prometheus.CounterVec
	arbitrages       prometheus.Counter
	swapsExcluded    prometheus.Counter
	blocksProcessed  prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_classified_total",
			Help:      "Logs classified into canonical events.",
		}, []string{"protocol", "kind"}),
		eventsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_unrecognized_total",
			Help:      "Logs outside protocol coverage.",
		}),
		eventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Logs whose classification failed.",
		}, []string{"reason"}),
		poolCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_cache_lookups_total",
			Help:      "Pool cache lookups by result.",
		}, []string{"result"}),
		poolFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_fetches_total",
			Help:      "Pool topology fetches issued to the chain.",
		}, []string{"protocol", "status"}),
		arbitrages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrages_detected_total",
			Help:      "Arbitrage cycles detected.",
		}),
		swapsExcluded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_excluded_total",
			Help:      "Swaps excluded from detection as malformed input.",
		}),
		blocksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Blocks inspected.",
		}),
	}
}

// EventClassified counts an event a classifier turned into a swap or transfer
func (m *Metrics) EventClassified(protocol, kind string) {
	if m == nil {
		return
	}
	m.eventsClassified.WithLabelValues(protocol, kind).Inc()
}

// EventUnrecognized counts a log no classifier claimed
func (m *Metrics) EventUnrecognized() {
	if m == nil {
		return
	}
	m.eventsSkipped.Inc()
}

// EventFailed counts a log that could not be classified, labelled by reason
func (m *Metrics) EventFailed(reason string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(reason).Inc()
}

// PoolCacheHit records a pool served from memory
func (m *Metrics) PoolCacheHit() {
	if m == nil {
		return
	}
	m.poolCache.WithLabelValues("hit").Inc()
}

// PoolCacheMiss records a pool that had to be loaded
func (m *Metrics) PoolCacheMiss() {
	if m == nil {
		return
	}
	m.poolCache.WithLabelValues("miss").Inc()
}

// PoolFetched records an on-chain pool fetch and whether it failed
func (m *Metrics) PoolFetched(protocol string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.poolFetches.WithLabelValues(protocol, status).Inc()
}

// ArbitragesDetected adds n detected arbitrages
func (m *Metrics) ArbitragesDetected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.arbitrages.Add(float64(n))
}

// SwapExcluded counts a swap dropped before cycle detection
func (m *Metrics) SwapExcluded() {
	if m == nil {
		return
	}
	m.swapsExcluded.Inc()
}

// BlockProcessed counts an inspected block
func (m *Metrics) BlockProcessed() {
	if m == nil {
		return
	}
	m.blocksProcessed.Inc()
}

// Serve exposes the gatherer on addr at /metrics until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
