// Package client provides the MediaWiki Action API transport client with
// retry, rate limit gating, caching, and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wikibatch/mediawiki-query-client/pkg/cache"
	"github.com/wikibatch/mediawiki-query-client/pkg/ratelimit"
	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// Prometheus metrics for client operations.
var (
	mwqRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_requests_total",
		Help: "Total API requests by operation and status",
	}, []string{"operation", "status"})

	mwqRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mwq_request_duration_seconds",
		Help:    "API request duration in seconds by operation",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	mwqErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// apiDefaults are submitted with every request.
var apiDefaults = map[string]string{
	"format":        "json",
	"formatversion": "2",
}

// Client is the Action API transport client.
type Client struct {
	httpClient *http.Client
	redis      *redis.Client
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the api.php endpoint, e.g. "https://en.wikipedia.org/w/api.php"
	BaseURL string

	// User-Agent header. Wikimedia wikis require a descriptive one.
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Redis client for the response cache and shared pressure state.
	// Optional: when nil, caching and cross-instance gating are disabled.
	Redis *redis.Client

	// TitleLimit is the maximum number of titles per request. The API
	// allows 50 for normal accounts and 500 for accounts with bot rights.
	TitleLimit int

	// MaxLag asks the server to reject queries while replication lag
	// exceeds this many seconds. 0 disables the parameter.
	MaxLag int

	// CacheTTL is how long successful query responses are cached.
	// 0 disables caching even when Redis is configured.
	CacheTTL time.Duration

	// Timeout applies to each request attempt.
	Timeout time.Duration

	// Retry configures the backoff schedule for transient failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:    baseURL,
		UserAgent:  userAgent,
		TitleLimit: 50,
		MaxLag:     5,
		CacheTTL:   5 * time.Minute,
		Timeout:    30 * time.Second,
		Retry:      DefaultRetryConfig(),
	}
}

// New creates a new Action API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.TitleLimit <= 0 {
		return nil, fmt.Errorf("title_limit must be positive (got %d)", cfg.TitleLimit)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "mediawiki-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		redis:  cfg.Redis,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("github.com/wikibatch/mediawiki-query-client/pkg/client"),
	}

	if cfg.Redis != nil {
		c.tracker = ratelimit.NewTracker(cfg.Redis, logger)
		c.cache = cache.NewManager(cfg.Redis)
	} else {
		logger.Info().Msg("No Redis configured - response cache and shared gating disabled")
	}

	return c, nil
}

// TitleLimit returns the per-request title limit for this client's privilege
// level. The query engine uses it as the default chunk size.
func (c *Client) TitleLimit() int {
	return c.config.TitleLimit
}

// Invoke performs one action=query API call with the given parameters and
// returns the validated response envelope. Transient failures are retried
// with exponential backoff; permanent failures surface immediately.
func (c *Client) Invoke(ctx context.Context, params map[string]string) (*response.Envelope, error) {
	values := c.buildParams(params)
	operation := operationLabel(params)

	ctx, span := c.tracer.Start(ctx, "mediawiki.query",
		trace.WithAttributes(attribute.String("mw.operation", operation)))
	defer span.End()

	startTime := time.Now()
	defer func() {
		mwqRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: gate on shared pressure state
	if c.tracker != nil {
		allowed, err := c.tracker.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Pressure state check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("operation", operation).
				Msg("Request blocked by Retry-After deadline")
			mwqRequestsTotal.WithLabelValues(operation, "rate_limited").Inc()
			return nil, fmt.Errorf("request blocked: Retry-After deadline active")
		}
	}

	// Step 2: check cache
	var cacheKey cache.CacheKey
	cacheable := c.cache != nil && c.config.CacheTTL > 0
	if cacheable {
		cacheKey = cache.CacheKey{Params: values}
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("operation", operation).Msg("Cache get error")
		}
		if entry != nil {
			env, derr := response.Decode(entry.Data)
			if derr == nil {
				c.logger.Debug().
					Str("operation", operation).
					Msg("Serving query response from cache")
				span.SetAttributes(attribute.Bool("mw.cache_hit", true))
				return env, nil
			}
			c.logger.Warn().Err(derr).Msg("Cached response unreadable - refetching")
		}
	}

	// Step 3: execute with retry
	c.logger.Debug().
		Str("operation", operation).
		Msg("Executing API query")

	var env *response.Envelope
	retryErr := retryWithBackoff(ctx, c.config.Retry, func() error {
		e, body, err := c.doRequest(ctx, values, operation)
		if err != nil {
			return err
		}
		env = e

		// Step 4: cache the successful response
		if cacheable {
			entry := cache.NewEntry(body, c.config.CacheTTL)
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			}
		}
		return nil
	})
	if retryErr != nil {
		span.RecordError(retryErr)
		return nil, retryErr
	}

	if len(env.Warnings) > 0 {
		c.logger.Warn().
			Str("operation", operation).
			Int("sections", len(env.Warnings)).
			Msg("API returned warnings alongside result")
	}

	return env, nil
}

// doRequest performs one HTTP attempt and maps every failure mode onto a
// classified RequestError.
func (c *Client) doRequest(ctx context.Context, values url.Values, operation string) (*response.Envelope, []byte, error) {
	// POST keeps long title lists off the URL; GET has length limits
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("operation", operation).Msg("HTTP request failed")
		mwqErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		mwqRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, nil, &RequestError{
			ErrorClass: ErrorClassNetwork,
			Message:    "http request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header)

	if resp.StatusCode >= 400 {
		errClass := classifyStatus(resp.StatusCode)
		mwqErrorsTotal.WithLabelValues(string(errClass)).Inc()
		mwqRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("API request error")

		if errClass == ErrorClassRateLimit && c.tracker != nil && retryAfter > 0 {
			if err := c.tracker.Publish(ctx, retryAfter, 0); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to publish pressure state")
			}
		}

		return nil, nil, &RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
			RetryAfter: retryAfter,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		mwqErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, nil, &RequestError{
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	env, err := response.Decode(body)
	if err != nil {
		mwqErrorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return nil, nil, &RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    "undecodable response body",
			Err:        err,
		}
	}

	if env.Error != nil {
		errClass := classifyAPIError(env.Error)
		mwqErrorsTotal.WithLabelValues(string(errClass)).Inc()
		mwqRequestsTotal.WithLabelValues(operation, env.Error.Code).Inc()

		c.logger.Warn().
			Str("operation", operation).
			Str("code", env.Error.Code).
			Str("error_class", string(errClass)).
			Msg("API rejected request")

		if env.Error.Code == "maxlag" && retryAfter == 0 && env.Error.Lag > 0 {
			retryAfter = time.Duration(math.Ceil(env.Error.Lag)) * time.Second
		}
		if errClass == ErrorClassRateLimit && c.tracker != nil {
			if err := c.tracker.Publish(ctx, retryAfter, env.Error.Lag); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to publish pressure state")
			}
		}

		return nil, nil, &RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    env.Error.Code,
			RetryAfter: retryAfter,
			Err:        env.Error,
		}
	}

	mwqRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	return env, body, nil
}

// buildParams merges request parameters over the API defaults.
func (c *Client) buildParams(params map[string]string) url.Values {
	values := url.Values{}
	for k, v := range apiDefaults {
		values.Set(k, v)
	}
	values.Set("action", "query")
	if c.config.MaxLag > 0 {
		values.Set("maxlag", strconv.Itoa(c.config.MaxLag))
	}
	for k, v := range params {
		values.Set(k, v)
	}
	return values
}

// classifyStatus categorizes an HTTP status for retry handling.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// parseRetryAfter reads the Retry-After header, in either delta-seconds or
// HTTP-date form. Returns 0 when absent or unparseable.
func parseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// operationLabel derives a low-cardinality metrics label from the request.
func operationLabel(params map[string]string) string {
	for _, key := range []string{"list", "prop", "meta"} {
		if v, ok := params[key]; ok && v != "" {
			return v
		}
	}
	return "query"
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
