package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"toltec-dpdb/internal/domain"
)

var _ domain.TelemetrySource = (*HTTPClient)(nil)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // first retry delay, doubled per attempt
	RPS         float64
	Burst       int
}

// HTTPClient reads telemetry from a REST facade. Requests are throttled,
// retried with exponential backoff on transport failures and 5xx/429
// answers, and bounded by the caller's context. Exhausted retries and
// expired deadlines surface as *domain.TransportError.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	cfg     HTTPConfig
	logger  *slog.Logger
}

// NewHTTPClient validates cfg and builds a client. hc may be nil.
func NewHTTPClient(cfg HTTPConfig, hc *http.Client, logger *slog.Logger) (*HTTPClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, domain.ErrConfiguration("invalid telemetry url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

func keyPath(key domain.ObservationKey) string {
	return fmt.Sprintf("/v1/telemetry/observations/%s/%d/%d/%d",
		url.PathEscape(key.Master), key.ObsNum, key.SubObsNum, key.ScanNum)
}

// Parts implements domain.TelemetrySource.
func (c *HTTPClient) Parts(ctx context.Context, key domain.ObservationKey) ([]domain.PartRecord, error) {
	var body []PartJSON
	if err := c.get(ctx, "parts", keyPath(key)+"/parts", nil, &body); err != nil {
		return nil, err
	}
	return toRecords(body), nil
}

// Part implements domain.TelemetrySource.
func (c *HTTPClient) Part(ctx context.Context, key domain.ObservationKey, part int) (*domain.PartRecord, error) {
	var body PartJSON
	if err := c.get(ctx, "part", keyPath(key)+"/parts/"+strconv.Itoa(part), nil, &body); err != nil {
		return nil, err
	}
	rec := body.Record()
	return &rec, nil
}

// Since implements domain.TelemetrySource.
func (c *HTTPClient) Since(ctx context.Context, t time.Time) ([]domain.PartRecord, error) {
	var body []PartJSON
	q := url.Values{"since": {t.UTC().Format(time.RFC3339)}}
	if err := c.get(ctx, "since", "/v1/telemetry/parts", q, &body); err != nil {
		return nil, err
	}
	return toRecords(body), nil
}

// Active implements domain.TelemetrySource.
func (c *HTTPClient) Active(ctx context.Context, limit int) ([]domain.ObservationKey, error) {
	var body []KeyJSON
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "active", "/v1/telemetry/observations", q, &body); err != nil {
		return nil, err
	}
	out := make([]domain.ObservationKey, 0, len(body))
	for _, k := range body {
		out = append(out, k.Key())
	}
	return out, nil
}

// HasLater implements domain.TelemetrySource.
func (c *HTTPClient) HasLater(ctx context.Context, key domain.ObservationKey) (bool, error) {
	var body struct {
		Later bool `json:"later"`
	}
	if err := c.get(ctx, "has later", keyPath(key)+"/later", nil, &body); err != nil {
		return false, err
	}
	return body.Later, nil
}

func toRecords(in []PartJSON) []domain.PartRecord {
	out := make([]domain.PartRecord, 0, len(in))
	for _, p := range in {
		out = append(out, p.Record())
	}
	return out
}

// statusError is a non-retryable HTTP answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.body) }

// retryable is a failure worth another attempt.
type retryable struct{ err error }

func (e *retryable) Error() string { return e.err.Error() }
func (e *retryable) Unwrap() error { return e.err }

func (c *HTTPClient) get(ctx context.Context, op, path string, q url.Values, out interface{}) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.cfg.Backoff * time.Duration(1<<uint(attempt-2))
			select {
			case <-ctx.Done():
				return &domain.TransportError{Op: op, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.TransportError{Op: op, Attempts: attempt - 1, Err: err}
		}

		err := c.do(ctx, u.String(), out)
		if err == nil {
			return nil
		}
		var rt *retryable
		if !errors.As(err, &rt) {
			return c.classify(op, err)
		}
		lastErr = rt.err
		c.logger.Warn("telemetry request failed, retrying",
			"op", op, "attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "error", lastErr)
		if ctx.Err() != nil {
			return &domain.TransportError{Op: op, Attempts: attempt, Err: ctx.Err()}
		}
	}
	return &domain.TransportError{Op: op, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

func (c *HTTPClient) do(ctx context.Context, rawURL string, out interface{}) error {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return &retryable{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{code: resp.StatusCode, body: string(b)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &retryable{err: se}
		}
		return se
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) classify(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusNotFound:
			return domain.ErrNotFound("telemetry %s: %s", op, se.body)
		case http.StatusBadRequest:
			return domain.ErrValidation("telemetry %s: %s", op, se.body)
		}
	}
	return fmt.Errorf("telemetry %s: %w", op, err)
}
