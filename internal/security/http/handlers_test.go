package securityhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/security"
)

type stubPurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (s *stubPurger) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.n, s.err
}

type stubShared struct {
	ips []string
	err error
}

func (s stubShared) SuspiciousIPs(context.Context) ([]string, error) {
	return s.ips, s.err
}

func newRouter(h *Handler, view, manage func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r, view, manage)
	return r
}

func seededRecorder() *security.Recorder {
	rec := security.NewRecorder()
	rec.Log(security.EventSQLInjection, security.RequestInfo{SourceIP: "1.2.3.4"}, security.SeverityCritical, nil)
	rec.Log(security.EventAuthFailure, security.RequestInfo{SourceIP: "5.6.7.8"}, security.SeverityMedium, nil)
	rec.Log(security.EventAuthFailure, security.RequestInfo{SourceIP: "5.6.7.8"}, security.SeverityMedium, nil)
	return rec
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(NewHandler(nil, seededRecorder(), nil, nil), nil, nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/security/metrics", nil))

	require.Equal(t, http.StatusOK, res.Code)
	var m security.Metrics
	require.NoError(t, json.NewDecoder(res.Body).Decode(&m))
	assert.EqualValues(t, 3, m.TotalRequests)
	assert.EqualValues(t, 1, m.SQLInjectionAttempts)
	assert.Equal(t, []string{"1.2.3.4"}, m.SuspiciousIPs)
}

func TestEventsEndpointFilters(t *testing.T) {
	router := newRouter(NewHandler(nil, seededRecorder(), nil, nil), nil, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/security/events?type=auth_failure&limit=1", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Events []security.Event `json:"events"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, security.EventAuthFailure, body.Events[0].Type)

	for _, target := range []string{"/security/events?severity=urgent", "/security/events?limit=abc", "/security/events?limit=5000", "/security/events?type=NOPE"} {
		res = httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, res.Code, target)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	router := newRouter(NewHandler(nil, seededRecorder(), nil, nil), nil, nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/security/dashboard", nil))

	require.Equal(t, http.StatusOK, res.Code)
	var d security.Dashboard
	require.NoError(t, json.NewDecoder(res.Body).Decode(&d))
	assert.Equal(t, 3, d.Last24h)
	assert.Equal(t, 2, d.ByType[security.EventAuthFailure])
	assert.Equal(t, 60, d.HealthScore)
	assert.Len(t, d.RecentEvents, 3)
}

func TestSuspiciousIPsMergesClusterView(t *testing.T) {
	h := NewHandler(nil, seededRecorder(), nil, stubShared{ips: []string{"9.9.9.9", "1.2.3.4"}})
	res := httptest.NewRecorder()
	newRouter(h, nil, nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/security/suspicious-ips", nil))

	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		IPs    []string `json:"suspiciousIPs"`
		Source string   `json:"source"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, []string{"1.2.3.4", "9.9.9.9"}, body.IPs)
	assert.Equal(t, "cluster", body.Source)

	h = NewHandler(nil, seededRecorder(), nil, stubShared{err: errors.New("down")})
	res = httptest.NewRecorder()
	newRouter(h, nil, nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/security/suspicious-ips", nil))
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "local", body.Source)
}

func TestCleanupEndpoint(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	purger := &stubPurger{n: 4}
	h := NewHandler(nil, seededRecorder(), purger, nil)
	h.now = func() time.Time { return now }

	res := httptest.NewRecorder()
	newRouter(h, nil, nil).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/security/cleanup", nil))

	require.Equal(t, http.StatusOK, res.Code)
	var body cleanupResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, 0, body.Removed)
	assert.EqualValues(t, 4, body.Purged)
	assert.Equal(t, now.Add(-security.DefaultRetention), purger.cutoff)

	purger.err = errors.New("db down")
	res = httptest.NewRecorder()
	newRouter(h, nil, nil).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/security/cleanup", nil))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestGuardsAreApplied(t *testing.T) {
	deny := func(status int) func(http.Handler) http.Handler {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				httpx.Error(w, r, status, http.StatusText(status))
			})
		}
	}
	router := newRouter(NewHandler(nil, seededRecorder(), nil, nil), deny(http.StatusForbidden), deny(http.StatusUnauthorized))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/security/dashboard", nil))
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/security/cleanup", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
