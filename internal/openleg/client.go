// Package openleg talks to the read-only OpenLeg legislative-data API. It
// builds request URLs, performs GETs, and turns the decoded JSON envelopes
// into typed Response values through a registry of response kinds.
package openleg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
	"github.com/nysenate/openleg-sync/pkg/metrics"
)

const (
	DefaultScheme  = "https"
	DefaultHost    = "legislation.nysenate.gov"
	DefaultVersion = "3"
	defaultTimeout = 30 * time.Second

	// apiKeyParam is the query parameter that carries the API key.
	apiKeyParam = "key"
)

// DefaultPathPrefix precedes the version segment in every URL.
var DefaultPathPrefix = Path{"api"}

// Config describes how to reach the API. Zero values take the defaults.
type Config struct {
	Scheme            string
	Host              string
	Version           string
	PathPrefix        Path
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

func (c Config) withDefaults() Config {
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.PathPrefix == nil {
		c.PathPrefix = DefaultPathPrefix
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Payload is a decoded top-level JSON object returned by the API.
type Payload map[string]json.RawMessage

// TransportError reports a network failure or a non-2xx HTTP status. It is
// distinct from an application-level success:false payload.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{apperrors.ErrTransport, e.Err}
	}
	return []error{apperrors.ErrTransport}
}

// Retryable reports whether the failure is worth another attempt: network
// errors, throttling and server errors are; other client errors are not.
func (e *TransportError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// Client issues GETs against one endpoint (resource family) of the API.
type Client struct {
	cfg      Config
	endpoint Path
	http     *resty.Client
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewClient creates a Client for the given endpoint, e.g. NewClient(cfg, "bills").
func NewClient(cfg Config, m *metrics.Metrics, endpoint ...string) *Client {
	cfg = cfg.withDefaults()
	httpClient := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	httpClient.SetHeader("Accept", "application/json")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return &Client{
		cfg:      cfg,
		endpoint: P(endpoint...),
		http:     httpClient,
		limiter:  limiter,
		metrics:  m,
		logger:   slog.Default().With("component", "openleg-client"),
	}
}

// WithEndpoint returns a Client for another endpoint sharing this client's
// transport, rate limiter and API key.
func (c *Client) WithEndpoint(endpoint ...string) *Client {
	clone := *c
	clone.endpoint = P(endpoint...)
	return &clone
}

// Endpoint returns the normalized endpoint path.
func (c *Client) Endpoint() Path {
	return c.endpoint
}

// URL builds https://{host}/{prefix}/{version}/{endpoint}/{resource}/?{query}.
func (c *Client) URL(resource Path, params map[string]string) string {
	u := url.URL{
		Scheme: c.cfg.Scheme,
		Host:   c.cfg.Host,
		Path:   c.path(resource),
	}
	if q := c.query(params); len(q) > 0 {
		values := url.Values{}
		for k, v := range q {
			values.Set(k, v)
		}
		u.RawQuery = values.Encode()
	}
	return u.String()
}

func (c *Client) path(resource Path) string {
	segs := Join(c.cfg.PathPrefix, P(c.cfg.Version), c.endpoint, resource)
	if len(segs) == 0 {
		return "/"
	}
	return "/" + segs.String() + "/"
}

// query merges the stored API key into params. A key supplied by the caller
// wins over the configured one.
func (c *Client) query(params map[string]string) map[string]string {
	q := make(map[string]string, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	if _, ok := q[apiKeyParam]; !ok && c.cfg.APIKey != "" {
		q[apiKeyParam] = c.cfg.APIKey
	}
	return q
}

// Get fetches one resource and returns its decoded JSON object. Network and
// non-2xx failures are returned as *TransportError; a body that is not a
// JSON object wraps ErrInvalidPayload.
func (c *Client) Get(ctx context.Context, resource Path, params map[string]string) (Payload, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	target := url.URL{Scheme: c.cfg.Scheme, Host: c.cfg.Host, Path: c.path(resource)}
	endpoint := c.endpoint.String()
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.query(params)).
		Get(target.String())
	if err != nil {
		c.metrics.ObserveAPIRequest(endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{URL: target.String(), Err: err}
	}
	c.metrics.ObserveAPIRequest(endpoint, resp.StatusCode(), time.Since(start))

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		c.logger.Warn("unexpected status from api",
			"url", target.String(),
			"status", resp.StatusCode(),
		)
		return nil, &TransportError{URL: target.String(), StatusCode: resp.StatusCode()}
	}

	var payload Payload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", apperrors.ErrInvalidPayload, target.String(), err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: %s returned null", apperrors.ErrInvalidPayload, target.String())
	}
	c.logger.Debug("api response received",
		"url", target.String(),
		"bytes", len(resp.Body()),
	)
	return payload, nil
}
