package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Ingested("lmt", "created")
	m.Released(true)
	m.Polled(time.Second, 3)
	assert.Nil(t, m.Registry())

	called := false
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Ingested("lmt", "created")
	m.Ingested("lmt", "created")
	m.Ingested("lmt", "updated")
	m.Released(false)
	m.Polled(10*time.Millisecond, 2)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.FilesIngested.WithLabelValues("lmt", "created")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FilesIngested.WithLabelValues("lmt", "updated")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ObservationsReleased.WithLabelValues("false")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.PendingObservations))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/products/"+id, nil))
	}
	assert.Equal(t, 3.0, promtest.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/v1/products/{id}", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `dpdb_http_requests_total{code="418",method="GET",route="/v1/products/{id}"} 3`))
}
