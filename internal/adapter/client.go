package adapter

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/circuitbreaker"
	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/metrics"
	"github.com/near-pulse/internal/retry"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source names used in logs, metrics and circuit breakers
const (
	SourceNearBlocks = "nearblocks"
	SourceNearRPC    = "near_rpc"
	SourceFastNear   = "fastnear"
	SourceIntear     = "intear"
	SourceRefFinance = "ref_finance"
	SourceCoinGecko  = "coingecko"
)

// maxResponseBytes bounds how much of an upstream body is read
const maxResponseBytes = 8 << 20

// ClientOptions configures one upstream HTTP client
type ClientOptions struct {
	Source  string
	BaseURL string
	Timeout time.Duration
	// Headers are sent on every request
	Headers map[string]string
	// Limiter throttles outgoing requests; nil means unthrottled
	Limiter *rate.Limiter
	Breaker *circuitbreaker.CircuitBreaker
	// Retry applies to GET requests only; nil disables retries
	Retry      *retry.RetryConfig
	HTTPClient *http.Client
}

// httpClient is the shared transport for every upstream: per-attempt timeout,
// throttling, circuit breaking, bounded retry for GETs and categorized errors.
type httpClient struct {
	source  string
	baseURL string
	timeout time.Duration
	headers map[string]string
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.RetryConfig
	client  *http.Client
}

func newHTTPClient(opts ClientOptions) *httpClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var retryCfg *retry.RetryConfig
	if opts.Retry != nil {
		cfg := *opts.Retry
		if cfg.ShouldRetry == nil {
			cfg.ShouldRetry = shouldRetry
		}
		retryCfg = &cfg
	}

	return &httpClient{
		source:  opts.Source,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: timeout,
		headers: opts.Headers,
		limiter: opts.Limiter,
		breaker: opts.Breaker,
		retry:   retryCfg,
		client:  client,
	}
}

// getJSON fetches path with the given query and decodes the body into dest
func (c *httpClient) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempt := func(ctx context.Context, _ int) error {
		return c.do(ctx, http.MethodGet, endpoint, nil, dest)
	}
	if c.retry == nil {
		return attempt(ctx, 1)
	}
	return unwrapRetry(retry.Do(ctx, c.retry, attempt))
}

// postJSON sends body as JSON to the base URL. Posts are never retried.
func (c *httpClient) postJSON(ctx context.Context, body interface{}, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternalError("failed to encode request", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL, payload, dest)
}

func (c *httpClient) do(ctx context.Context, method, endpoint string, payload []byte, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeThrottled).Inc()
			return errors.NewSourceTimeoutError(c.source, err)
		}
	}

	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, method, endpoint, payload, dest)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	if stderrors.Is(err, circuitbreaker.ErrCircuitOpen) || stderrors.Is(err, circuitbreaker.ErrTooManyRequests) {
		metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeCircuitOpen).Inc()
		return errors.NewSourceUnavailableError(c.source, err)
	}
	return err
}

func (c *httpClient) roundTrip(ctx context.Context, method, endpoint string, payload []byte, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.NewInternalError("failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.SourceDuration.WithLabelValues(c.source).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeError).Inc()
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.NewSourceTimeoutError(c.source, err)
		}
		return errors.NewSourceUnavailableError(c.source, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeError).Inc()
		return errors.NewSourceUnavailableError(c.source, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeThrottled).Inc()
		return errors.NewSourceRateLimitError(c.source)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeError).Inc()
		return statusError(c.source, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeError).Inc()
		return errors.NewMalformedRecordError(c.source, endpointPath(endpoint), err.Error())
	}

	metrics.SourceRequests.WithLabelValues(c.source, metrics.OutcomeSuccess).Inc()
	return nil
}

// statusError records the upstream status so retries can skip client errors
func statusError(source string, status int, body []byte) *errors.CategorizedError {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := errors.NewSourceUnavailableError(source, fmt.Errorf("unexpected status %d: %s", status, snippet))
	err.Details["status"] = status
	return err
}

// shouldRetry retries transient upstream failures but not client errors or throttling
func shouldRetry(err error) bool {
	if !errors.IsRetryable(err) {
		return false
	}
	catErr := errors.Categorize(err)
	if catErr.StatusCode == http.StatusTooManyRequests {
		return false
	}
	if status, ok := catErr.Details["status"].(int); ok && status >= 400 && status < 500 {
		return false
	}
	return true
}

// unwrapRetry surfaces the categorized error behind retry's wrapping
func unwrapRetry(err error) error {
	if err == nil {
		return nil
	}
	var catErr *errors.CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}
	return err
}

func endpointPath(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		return u.Path
	}
	return endpoint
}
