package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toltec-dpdb/internal/domain"
)

func newClient(t *testing.T, h http.Handler, cfg HTTPConfig) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	c, err := NewHTTPClient(cfg, srv.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestHTTPClient_Parts(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/telemetry/observations/toltec/113515/0/1/parts", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]PartJSON{ToPartJSON(domain.PartRecord{Key: key, Part: 3, Valid: true, Timestamp: t0})})
	}), HTTPConfig{})

	parts, err := c.Parts(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, key, parts[0].Key)
	assert.True(t, parts[0].Valid)
}

func TestHTTPClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"later": true}`))
	}), HTTPConfig{MaxAttempts: 3})

	later, err := c.HasLater(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, later)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ExhaustedRetriesAreTransportErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}), HTTPConfig{MaxAttempts: 2})

	_, err := c.Active(context.Background(), 10)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, domain.IsRetryable(err))
}

func TestHTTPClient_DeadlineIsTransportError(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}), HTTPConfig{MaxAttempts: 5, Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Parts(ctx, key)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such part", http.StatusNotFound)
	}), HTTPConfig{MaxAttempts: 3})

	_, err := c.Part(context.Background(), key, 4)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewHTTPClient_InvalidURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{BaseURL: "not a url"}, nil, nil)
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
