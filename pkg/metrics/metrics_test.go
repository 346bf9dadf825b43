package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Decision(ResultAllowed, time.Millisecond)
		m.CacheLookup(CacheHit)
		m.CacheSize(3)
		m.StaleToken()
		m.LegacyGrant()
		m.GateRejection("entitlement_denied")
		m.TokenIssued("access")
	})
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.Instrument("/x", h))
}

func TestRecorders(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Decision(ResultAllowed, time.Millisecond)
	m.Decision(ResultAllowed, time.Millisecond)
	m.Decision(ResultSuspended, time.Millisecond)
	m.CacheLookup(CacheMiss)
	m.CacheSize(2)
	m.StaleToken()
	m.GateRejection("token_expired")
	m.TokenIssued("refresh")

	assert.InDelta(t, 2, testutil.ToFloat64(m.decisions.WithLabelValues(ResultAllowed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.decisions.WithLabelValues(ResultSuspended)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheMiss)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.cacheEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.staleTokens), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.gateRejections.WithLabelValues("token_expired")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.tokensIssued.WithLabelValues("refresh")), 0)
}

func TestInstrumentAndHandler(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	h := m.Instrument("/api/me", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/me", "GET", "403")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.httpInFlight), 0)

	scrape := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, scrape.Code)
	assert.True(t, strings.Contains(scrape.Body.String(), "access_http_requests_total"))
}
