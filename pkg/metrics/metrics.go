// Package metrics exposes Prometheus collectors for the access core:
// entitlement decisions and cache behavior, gate outcomes, token
// issuance, and generic HTTP request instrumentation.
//
// A nil *Metrics is valid and records nothing, so components accept one
// optionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "access"

// Entitlement decision results.
const (
	ResultAllowed   = "allowed"
	ResultDenied    = "denied"
	ResultSuspended = "suspended"
	ResultError     = "error"
	ResultBypass    = "bypass"
)

// Cache outcomes.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStale   = "stale"
	CacheExpired = "expired"
)

// Metrics holds the registered collectors.
type Metrics struct {
	decisions      *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cacheEntries   prometheus.Gauge
	staleTokens    prometheus.Counter
	lookupDuration prometheus.Histogram
	legacyGrants   prometheus.Counter
	gateRejections *prometheus.CounterVec
	tokensIssued   *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg
// skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_decisions_total",
			Help:      "Entitlement checks by result.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_cache_lookups_total",
			Help:      "Entitlement cache lookups by outcome.",
		}, []string{"outcome"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entitlement_cache_entries",
			Help:      "Organizations currently cached.",
		}),
		staleTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_stale_token_versions_total",
			Help:      "Checks where the token's entitlements version differed from the database.",
		}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entitlement_check_duration_seconds",
			Help:      "Latency of entitlement checks including database reads.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		legacyGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_legacy_services_grants_total",
			Help:      "Requests allowed only by the legacy services list.",
		}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by the authorization gate, by reason.",
		}, []string{"reason"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by type.",
		}, []string{"type"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.decisions, m.cacheLookups, m.cacheEntries, m.staleTokens, m.lookupDuration,
		m.legacyGrants, m.gateRejections, m.tokensIssued,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	}
}

// Decision records an entitlement check result and its latency.
func (m *Metrics) Decision(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(result).Inc()
	m.lookupDuration.Observe(elapsed.Seconds())
}

// CacheLookup records a cache outcome.
func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// CacheSize sets the number of cached organizations.
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// StaleToken records a token whose entitlements version lagged.
func (m *Metrics) StaleToken() {
	if m == nil {
		return
	}
	m.staleTokens.Inc()
}

// LegacyGrant records a request admitted by the legacy services list.
func (m *Metrics) LegacyGrant() {
	if m == nil {
		return
	}
	m.legacyGrants.Inc()
}

// GateRejection records a gate rejection by client reason.
func (m *Metrics) GateRejection(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}

// TokenIssued records an issued token.
func (m *Metrics) TokenIssued(tokenType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(tokenType).Inc()
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Instrument wraps next with request counting, latency and in-flight
// tracking. The route label is fixed per wrapped handler to keep label
// cardinality bounded.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
