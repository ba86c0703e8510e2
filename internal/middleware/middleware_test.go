package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v *stubValidator) Validate(_ context.Context, _ string) (*JWTClaims, error) {
	return v.claims, v.err
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestRequireBearer(t *testing.T) {
	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		validator JWTValidator
		header    string
		wantCode  int
		wantSub   string
	}{
		{"disabled", nil, "", http.StatusNoContent, ""},
		{"missing header", &stubValidator{}, "", http.StatusUnauthorized, ""},
		{"wrong scheme", &stubValidator{}, "Basic abc", http.StatusUnauthorized, ""},
		{"invalid token", &stubValidator{err: errors.New("expired")}, "Bearer x", http.StatusUnauthorized, ""},
		{"no subject", &stubValidator{claims: &JWTClaims{}}, "Bearer x", http.StatusUnauthorized, ""},
		{"valid", &stubValidator{claims: &JWTClaims{Subject: "pipeline"}}, "Bearer x", http.StatusNoContent, "pipeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject = ""
			req := httptest.NewRequest(http.MethodPost, "/v1/ingest", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireBearer(tt.validator)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantSub, gotSubject)
			if rec.Code == http.StatusUnauthorized {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.EqualValues(t, 401, body["code"])
			}
		})
	}
}

func TestHS256Validator(t *testing.T) {
	_, err := NewHS256Validator("", "")
	require.Error(t, err)

	v, err := NewHS256Validator("s3cret", "dpdb")
	require.NoError(t, err)
	ctx := context.Background()

	good := signHS256(t, "s3cret", jwt.MapClaims{
		"sub": "scheduler", "iss": "lmt", "aud": "dpdb",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	claims, err := v.Validate(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", claims.Subject)
	assert.Equal(t, "lmt", claims.Issuer)
	assert.Equal(t, []string{"dpdb"}, claims.Audience)

	for name, tok := range map[string]string{
		"wrong secret":   signHS256(t, "other", jwt.MapClaims{"sub": "x", "aud": "dpdb"}),
		"wrong audience": signHS256(t, "s3cret", jwt.MapClaims{"sub": "x", "aud": "other"}),
		"expired":        signHS256(t, "s3cret", jwt.MapClaims{"sub": "x", "aud": "dpdb", "exp": time.Now().Add(-time.Hour).Unix()}),
		"garbage":        "not.a.token",
	} {
		_, err := v.Validate(ctx, tok)
		assert.Error(t, err, name)
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 2})(okHandler)

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterSetSweep(t *testing.T) {
	s := &limiterSet{cfg: RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, clients: map[string]*clientLimiter{}}
	now := time.Now()
	s.get("a", now.Add(-time.Hour))
	s.get("b", now)
	s.sweep(now.Add(-10 * time.Minute))
	assert.Len(t, s.clients, 1)
	assert.Contains(t, s.clients, "b")
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)

	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.True(t, strings.Contains(line, `"request_id":"rid-1"`), line)
	assert.Contains(t, line, `"status":418`)
	assert.Contains(t, line, `"path":"/healthz"`)
}
