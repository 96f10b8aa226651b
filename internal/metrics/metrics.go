package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swcache"

// Metrics holds the worker's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	networkErrors    *prometheus.CounterVec
	writeFailures    *prometheus.CounterVec
	evictions        *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	precacheEntries  prometheus.Gauge
	routes           prometheus.Gauge
}

// New creates and registers all collectors, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Intercepted requests by route, strategy and response source.",
			},
			[]string{"route", "strategy", "source"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time to answer an intercepted request.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"strategy", "source"},
		),
		networkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "network_errors_total",
				Help:      "Failed upstream fetches surfaced to a caller.",
			},
			[]string{"reason"},
		),
		writeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_failures_total",
				Help:      "Best-effort cache writes or evictions that failed.",
			},
			[]string{"cache"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Entries removed by expiration policies.",
			},
			[]string{"cache"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_refresh_total",
				Help:      "Stale-while-revalidate background refreshes by outcome.",
			},
			[]string{"cache", "outcome"},
		),
		precacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "precache_entries",
			Help:      "Entries in the current precache manifest.",
		}),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes",
			Help:      "Registered routes.",
		}),
	}
	m.registry.MustRegister(
		m.dispatches, m.dispatchDuration, m.networkErrors, m.writeFailures,
		m.evictions, m.refreshes, m.precacheEntries, m.routes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDispatch records one answered request.
func (m *Metrics) ObserveDispatch(route, strategy, source string, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "none"
	}
	m.dispatches.WithLabelValues(route, strategy, source).Inc()
	m.dispatchDuration.WithLabelValues(strategy, source).Observe(d.Seconds())
}

// NetworkError counts a fetch failure that reached a caller.
func (m *Metrics) NetworkError(timeout bool) {
	if m == nil {
		return
	}
	reason := "error"
	if timeout {
		reason = "timeout"
	}
	m.networkErrors.WithLabelValues(reason).Inc()
}

// CacheWriteFailed implements strategy.Observer.
func (m *Metrics) CacheWriteFailed(cache string, _ error) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(cache).Inc()
}

// Evicted implements strategy.Observer.
func (m *Metrics) Evicted(cache string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(cache).Add(float64(n))
}

// Refreshed implements strategy.Observer.
func (m *Metrics) Refreshed(cache string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.refreshes.WithLabelValues(cache, outcome).Inc()
}

// SetPrecacheEntries sets the manifest size gauge.
func (m *Metrics) SetPrecacheEntries(n int) {
	if m == nil {
		return
	}
	m.precacheEntries.Set(float64(n))
}

// SetRoutes sets the registered route gauge.
func (m *Metrics) SetRoutes(n int) {
	if m == nil {
		return
	}
	m.routes.Set(float64(n))
}
