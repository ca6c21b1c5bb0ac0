package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/saleledger/internal/infrastructure/metrics"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/v1/sales/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	testCases := []struct {
		name    string
		path    string
		pattern string
		status  int
	}{
		{"collapses ids", "/api/v1/sales/01ABC", "/api/v1/sales/{id}", http.StatusTeapot},
		{"unmatched path", "/nope", unmatchedRoute, http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))

			counter := m.HTTPRequests.WithLabelValues(http.MethodGet, tc.pattern, strconv.Itoa(tc.status))
			if got := testutil.ToFloat64(counter); got != 1 {
				t.Fatalf("expected 1 request for %s, got %v", tc.pattern, got)
			}
		})
	}

	if got := testutil.CollectAndCount(m.HTTPDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}

func TestMetricsMiddlewareNilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
}
