package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/near-pulse/internal/circuitbreaker"
	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testOptions(source, baseURL string) ClientOptions {
	return ClientOptions{
		Source:  source,
		BaseURL: baseURL,
		Timeout: time.Second,
		Retry: &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := newHTTPClient(testOptions("test", srv.URL))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.getJSON(context.Background(), "/x", nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newHTTPClient(testOptions("test", srv.URL))
	var out map[string]interface{}
	err := c.getJSON(context.Background(), "/missing", nil, &out)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	catErr := errors.Categorize(err)
	assert.Equal(t, errors.CategorySourceUnavailable, catErr.Category)
	assert.Equal(t, http.StatusNotFound, catErr.Details["status"])
}

func TestHTTPClient_RateLimitedResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newHTTPClient(testOptions("test", srv.URL))
	var out map[string]interface{}
	err := c.getJSON(context.Background(), "/", nil, &out)

	require.Error(t, err)
	assert.Equal(t, "SOURCE_RATE_LIMIT", errors.Categorize(err).Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_TimeoutIsCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	opts := testOptions("slow", srv.URL)
	opts.Timeout = 20 * time.Millisecond
	opts.Retry = nil
	c := newHTTPClient(opts)

	var out map[string]interface{}
	err := c.getJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.Equal(t, "SOURCE_TIMEOUT", errors.Categorize(err).Code)
}

func TestHTTPClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := newHTTPClient(testOptions("test", srv.URL))
	var out map[string]interface{}
	err := c.getJSON(context.Background(), "/page", nil, &out)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestHTTPClient_CircuitOpenSkipsUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := testOptions("flaky", srv.URL)
	opts.Retry = nil
	opts.Breaker = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "flaky",
		MaxFailures:      2,
		FailureThreshold: 0.5,
		Timeout:          time.Hour,
	})
	c := newHTTPClient(opts)

	var out map[string]interface{}
	for i := 0; i < 4; i++ {
		err := c.getJSON(context.Background(), "/", nil, &out)
		require.Error(t, err)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, circuitbreaker.StateOpen, opts.Breaker.GetState())
}

func TestHTTPClient_LimiterWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	opts := testOptions("limited", srv.URL)
	opts.Retry = nil
	opts.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	c := newHTTPClient(opts)

	var out map[string]interface{}
	require.NoError(t, c.getJSON(context.Background(), "/", nil, &out))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.getJSON(ctx, "/", nil, &out)
	require.Error(t, err)
	assert.Equal(t, "SOURCE_TIMEOUT", errors.Categorize(err).Code)
}

func TestHTTPClient_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	opts := testOptions(SourceNearBlocks, srv.URL)
	opts.Headers = nearBlocksHeaders("secret")
	c := newHTTPClient(opts)

	var out map[string]interface{}
	require.NoError(t, c.getJSON(context.Background(), "/", nil, &out))
	assert.Nil(t, nearBlocksHeaders(""))
}
