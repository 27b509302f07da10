// Package client provides the Microsoft Graph HTTP client: authenticated
// single-attempt execution, response classification and throttling-aware
// retry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/graph-harvester/pkg/auth"
	"github.com/Sternrassler/graph-harvester/pkg/ratelimit"
)

// Prometheus metrics for Graph client operations.
var (
	graphRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_requests_total",
		Help: "Total Graph requests by method and status",
	}, []string{"method", "status"})

	graphRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graph_request_duration_seconds",
		Help:    "Graph request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	graphErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_errors_total",
		Help: "Total Graph request failures by class",
	}, []string{"class"})

	graphThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_throttled_total",
		Help: "Total number of 429 responses signaled for retry",
	})
)

const (
	// DefaultBaseURL is the Microsoft Graph service root.
	DefaultBaseURL = "https://graph.microsoft.com/"

	// DefaultAPIVersion is the Graph version segment. Sign-in logs are
	// only complete on beta.
	DefaultAPIVersion = "beta"
)

// TokenProvider hands out a credential that is valid for the next request.
type TokenProvider interface {
	EnsureValid(ctx context.Context) (auth.Credential, error)
}

// Config holds the client configuration.
type Config struct {
	// Tokens supplies the bearer credential (REQUIRED).
	Tokens TokenProvider

	// BaseURL and APIVersion prefix every relative path.
	BaseURL    string
	APIVersion string

	// RetryEnabled turns 429 responses into retriable outcomes. When false,
	// a 429 is a fatal APIError.
	RetryEnabled bool
	Retry        RetryConfig

	// Sleep is used between retries (default SleepContext).
	Sleep Sleeper

	// RequestsPerSecond paces requests client-side. 0 disables pacing.
	RequestsPerSecond float64

	// Timeout bounds a single attempt. 0 disables the per-call deadline.
	Timeout time.Duration

	// Throttle, when set, shares 429 back-off deadlines between workers.
	Throttle *ratelimit.Tracker

	Logger     zerolog.Logger
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration against the public Graph endpoint.
func DefaultConfig(tokens TokenProvider) Config {
	return Config{
		Tokens:       tokens,
		BaseURL:      DefaultBaseURL,
		APIVersion:   DefaultAPIVersion,
		RetryEnabled: true,
		Retry:        DefaultRetryConfig(),
		Timeout:      60 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

// Request describes one Graph API call. Path is either relative to the
// versioned base URL or an absolute URL (continuation cursors).
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Client is the Graph API client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	baseURL    string
	version    string
	config     Config
	limiter    *rate.Limiter
	throttle   *ratelimit.Tracker
	retrier    *Retrier
	jitter     func(lo, hi time.Duration) time.Duration
	logger     zerolog.Logger
}

// New creates a new Graph client.
func New(cfg Config) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.WaitMin < 0 || cfg.Retry.WaitMax < cfg.Retry.WaitMin {
		return nil, fmt.Errorf("retry wait range invalid: min %v, max %v", cfg.Retry.WaitMin, cfg.Retry.WaitMax)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger.With().Str("component", "graph-client").Logger()

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    strings.Trim(cfg.APIVersion, "/"),
		config:     cfg,
		limiter:    limiter,
		throttle:   cfg.Throttle,
		retrier:    NewRetrier(cfg.Retry.MaxAttempts, cfg.Sleep, logger),
		jitter:     randomWait,
		logger:     logger,
	}, nil
}

// Execute performs exactly one attempt of req and classifies the result.
func (c *Client) Execute(ctx context.Context, req Request) Outcome {
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return Fatal(fmt.Errorf("%w: %v", ErrContextCancelled, err))
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Fatal(fmt.Errorf("%w: %v", ErrContextCancelled, err))
		}
	}

	cred, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		graphErrorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
		return Fatal(err)
	}

	target, err := c.resolveURL(req.Path, req.Query)
	if err != nil {
		return Fatal(fmt.Errorf("build request url: %w", err))
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return Fatal(fmt.Errorf("encode request body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	callCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, target, body)
	if err != nil {
		return Fatal(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("client-request-id", uuid.NewString())

	decoded := decodeURL(target)

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	graphRequestDuration.WithLabelValues(req.Method).Observe(time.Since(startTime).Seconds())

	if err != nil {
		graphRequestsTotal.WithLabelValues(req.Method, "network_error").Inc()
		graphErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.logger.Error().Err(err).Str("method", req.Method).Str("url", decoded).Msg("HTTP request failed")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fatal(fmt.Errorf("%w: %s %s: %v", ErrContextCancelled, req.Method, decoded, ctxErr))
		}
		return Fatal(fmt.Errorf("%s %s: %w", req.Method, decoded, err))
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		graphErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return Fatal(fmt.Errorf("read response body of %s %s: %w", req.Method, decoded, err))
	}

	graphRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(httpResp.StatusCode)).Inc()

	return c.classify(ctx, &Response{
		Method:     req.Method,
		URL:        decoded,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	})
}

// classify turns a response into an outcome and logs it.
func (c *Client) classify(ctx context.Context, resp *Response) Outcome {
	status := resp.StatusCode

	switch {
	case status >= 200 && status < 300:
		c.logger.Info().
			Str("method", resp.Method).
			Int("status", status).
			Str("url", resp.URL).
			Msg("Request completed")
		return OK(resp)

	case status == http.StatusTooManyRequests && c.config.RetryEnabled:
		wait := c.throttleWait(resp.Header)
		graphThrottledTotal.Inc()

		c.logger.Warn().
			Str("method", resp.Method).
			Int("status", status).
			Str("url", resp.URL).
			Dur("retry_in", wait).
			Msg("Request throttled")

		if c.throttle != nil {
			if err := c.throttle.RecordThrottle(ctx, wait); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record throttle state")
			}
		}
		return Retriable(wait, resp)

	default:
		class := classifyStatus(status)
		graphErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Error().
			Str("method", resp.Method).
			Int("status", status).
			Str("url", resp.URL).
			Str("error_class", string(class)).
			Interface("headers", resp.Header).
			Str("body", string(resp.Body)).
			Msg("Request failed")

		return Fatal(&APIError{
			Method:     resp.Method,
			URL:        resp.URL,
			StatusCode: status,
			ErrorClass: class,
			Body:       string(resp.Body),
			Header:     resp.Header,
		})
	}
}

// throttleWait honors Retry-After (seconds or HTTP date) and falls back to
// a random wait in the configured range.
func (c *Client) throttleWait(h http.Header) time.Duration {
	if wait, ok := parseRetryAfter(h.Get("Retry-After"), time.Now()); ok {
		return wait
	}
	return c.jitter(c.config.Retry.WaitMin, c.config.Retry.WaitMax)
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}

// randomWait draws uniformly from [lo, hi].
func randomWait(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// resolveURL joins relative paths to the versioned base URL and appends the
// query. Absolute URLs are used verbatim.
func (c *Client) resolveURL(path string, query url.Values) (string, error) {
	var raw string
	if isAbsolute(path) {
		raw = path
	} else {
		parts := []string{c.baseURL}
		if c.version != "" {
			parts = append(parts, c.version)
		}
		parts = append(parts, strings.TrimLeft(path, "/"))
		raw = strings.Join(parts, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if len(query) > 0 {
		// OData expects %20 rather than '+' for spaces in $filter.
		encoded := strings.ReplaceAll(query.Encode(), "+", "%20")
		if u.RawQuery != "" {
			u.RawQuery += "&" + encoded
		} else {
			u.RawQuery = encoded
		}
	}

	return u.String(), nil
}

func isAbsolute(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

func decodeURL(u string) string {
	if decoded, err := url.QueryUnescape(u); err == nil {
		return decoded
	}
	return u
}

// Do executes req, reissuing it while the server throttles it.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return c.retrier.Do(ctx, func(ctx context.Context) Outcome {
		return c.Execute(ctx, req)
	})
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Query: query, Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Query: query, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Query: query, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Query: query, Body: body})
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
