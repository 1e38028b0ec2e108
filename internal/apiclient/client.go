// Package apiclient is the HTTP client every front end uses to reach the
// library API. It injects the stored bearer token into each request and
// evicts that token whenever the API answers 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

const tracerName = "github.com/me/folio/internal/apiclient"

// APIError is a non-2xx response from the library API.
type APIError = model.APIError

// Client is an HTTP client for the library API.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    *tokenstore.Store
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	requestID func(context.Context) string

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.Component(logger, "apiclient") }
}

// WithMetrics records request counts, latencies and evictions on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRequestID copies the ID returned by fn into the X-Request-ID header
// of outbound requests.
func WithRequestID(fn func(context.Context) string) Option {
	return func(c *Client) { c.requestID = fn }
}

// New creates a Client for the API at baseURL, reading the bearer token from
// tokens. tokens may be nil.
func New(baseURL string, tokens *tokenstore.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:   NormalizeBaseURL(baseURL),
		http:      &http.Client{},
		tokens:    tokens,
		logger:    logging.Component(nil, "apiclient"),
		tracer:    otel.Tracer(tracerName),
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a Client sharing c's transport, logger and metrics but
// reading tokens from ts. Eviction listeners are not shared.
func (c *Client) WithTokens(ts *tokenstore.Store) *Client {
	return &Client{
		baseURL:   c.baseURL,
		http:      c.http,
		tokens:    ts,
		logger:    c.logger,
		metrics:   c.metrics,
		tracer:    c.tracer,
		requestID: c.requestID,
		listeners: make(map[int]func()),
	}
}

// NormalizeBaseURL trims trailing slashes and appends "/api" when missing.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	return base
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Tokens returns the token store the client reads from.
func (c *Client) Tokens() *tokenstore.Store { return c.tokens }

// OnEvict registers fn to run after a 401 response has cleared the stored
// token. The returned func unregisters it.
func (c *Client) OnEvict(fn func()) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) evict() {
	c.tokens.Clear()
	if c.metrics != nil {
		c.metrics.evictions.Inc()
	}

	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Do sends a request to path (relative to the base URL) and decodes a JSON
// response into out when out is non-nil. body, when non-nil, is sent as JSON.
// Non-2xx responses return *APIError. A 401 additionally clears the stored
// token and notifies OnEvict listeners before the error is returned.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "folio.api "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		c.logger.Debug("HTTP request body", "bytes", len(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.tokens.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.requestID != nil {
		if id := c.requestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
	}

	c.logger.Debug("HTTP request", "method", method, "url", u)

	start := time.Now()
	resp, err := c.http.Do(req)
	c.observe(method, resp, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Debug("HTTP response", "method", method, "url", u, "status", resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("unauthorized response, clearing stored token", "path", path)
		c.evict()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := model.ParseAPIError(resp.StatusCode, respBody)
		span.SetStatus(codes.Error, apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (c *Client) observe(method string, resp *http.Response, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.requests.WithLabelValues(method, status).Inc()
	c.metrics.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// IsUnauthorized reports whether err is an API 401.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status of an *APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message returns a user-facing message for err: the API's own message when
// err wraps an *APIError, else err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
