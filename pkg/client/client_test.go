package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wikibatch/mediawiki-query-client/internal/testutil"
)

// newTestClient wires a client to the mock server with fast retries.
func newTestClient(t *testing.T, mock *testutil.MockWiki, maxRetries int) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL(), "mwq-test/1.0 (test@example.com)")
	cfg.Timeout = 5 * time.Second
	cfg.Retry = RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base URL", func(c *Config) { c.BaseURL = "" }},
		{"missing user agent", func(c *Config) { c.UserAgent = "" }},
		{"zero title limit", func(c *Config) { c.TitleLimit = 0 }},
		{"negative title limit", func(c *Config) { c.TitleLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("https://wiki.example.org/w/api.php", "test/1.0")
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() accepted an invalid config")
			}
		})
	}
}

func TestInvokeSuccess(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.Enqueue(testutil.NewQueryResponse(
		`{"batchcomplete":true,"query":{"pages":[{"pageid":1,"ns":0,"title":"Alpha"}]}}`))

	c := newTestClient(t, mock, 0)
	defer c.Close()

	env, err := c.Invoke(context.Background(), map[string]string{
		"prop":   "info",
		"titles": "Alpha",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	pages, err := env.Pages()
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(pages) != 1 || pages[0].Title != "Alpha" {
		t.Errorf("Pages = %+v, want one page titled Alpha", pages)
	}

	req := mock.LastRequest()
	for key, want := range map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"maxlag":        "5",
		"prop":          "info",
		"titles":        "Alpha",
	} {
		if got := req.Get(key); got != want {
			t.Errorf("Request %s = %q, want %q", key, got, want)
		}
	}

	if ua := mock.LastRequestHeader.Get("User-Agent"); !strings.HasPrefix(ua, "mwq-test/1.0") {
		t.Errorf("User-Agent = %q, want the configured one", ua)
	}
}

func TestInvokePermanentAPIError(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.SetFallback(testutil.NewQueryResponse(
		`{"error":{"code":"invalidtitle","info":"Bad title"}}`))

	c := newTestClient(t, mock, 3)
	defer c.Close()

	_, err := c.Invoke(context.Background(), map[string]string{"prop": "info", "titles": "<bad>"})
	if err == nil {
		t.Fatal("Invoke() succeeded on an API error")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.ErrorClass != ErrorClassClient {
		t.Fatalf("Error = %v, want a client-class RequestError", err)
	}
	// Permanent errors must not consume the retry budget.
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Requests = %d, want 1", got)
	}
}

func TestInvokeRetriesMaxLag(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	// maxlag rejections come back as HTTP 200 with the error in the body.
	// No lag value and no Retry-After header, so the computed backoff runs.
	mock.Enqueue(
		testutil.NewQueryResponse(`{"error":{"code":"maxlag","info":"Waiting for a database server"}}`),
		testutil.NewQueryResponse(`{"batchcomplete":true,"query":{"pages":[]}}`),
	)

	c := newTestClient(t, mock, 3)
	defer c.Close()

	if _, err := c.Invoke(context.Background(), map[string]string{"prop": "info", "titles": "Alpha"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("Requests = %d, want 2 (one rejection, one success)", got)
	}
}

func TestInvokeRetriesRateLimit(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.Enqueue(
		testutil.NewRateLimitResponse("0"),
		testutil.NewQueryResponse(`{"batchcomplete":true,"query":{"pages":[]}}`),
	)

	c := newTestClient(t, mock, 3)
	defer c.Close()

	if _, err := c.Invoke(context.Background(), map[string]string{"list": "search", "srsearch": "x"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("Requests = %d, want 2", got)
	}
}

func TestInvokeRetryBudget(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.SetFallback(testutil.NewServerErrorResponse())

	c := newTestClient(t, mock, 2)
	defer c.Close()

	_, err := c.Invoke(context.Background(), map[string]string{"prop": "info", "titles": "Alpha"})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Error = %v, want ErrRetryExhausted", err)
	}
	// Budget 2 means three attempts in total.
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("Requests = %d, want 3", got)
	}
}

func TestInvokeUndecodableBody(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.Enqueue(
		testutil.NewQueryResponse(`<html>surprise maintenance page</html>`),
		testutil.NewQueryResponse(`{"batchcomplete":true,"query":{"pages":[]}}`),
	)

	c := newTestClient(t, mock, 1)
	defer c.Close()

	// Non-JSON bodies classify as server faults and are retried.
	if _, err := c.Invoke(context.Background(), map[string]string{"prop": "info", "titles": "Alpha"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("Requests = %d, want 2", got)
	}
}

func TestInvokeNetworkError(t *testing.T) {
	mock := testutil.NewMockWiki()
	url := mock.URL()
	mock.Close() // nothing listening anymore

	cfg := DefaultConfig(url, "mwq-test/1.0")
	cfg.Retry = RetryConfig{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Invoke(context.Background(), map[string]string{"meta": "userinfo"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.ErrorClass != ErrorClassNetwork {
		t.Fatalf("Error = %v, want a network-class RequestError", err)
	}
}

func TestTitleLimit(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	cfg := DefaultConfig(mock.URL(), "mwq-test/1.0")
	cfg.TitleLimit = 500 // bot account
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.TitleLimit() != 500 {
		t.Errorf("TitleLimit() = %d, want 500", c.TitleLimit())
	}
}

func TestOperationLabel(t *testing.T) {
	tests := []struct {
		params map[string]string
		want   string
	}{
		{map[string]string{"list": "categorymembers"}, "categorymembers"},
		{map[string]string{"prop": "revisions"}, "revisions"},
		{map[string]string{"meta": "userinfo"}, "userinfo"},
		{map[string]string{"titles": "Alpha"}, "query"},
	}
	for _, tt := range tests {
		if got := operationLabel(tt.params); got != tt.want {
			t.Errorf("operationLabel(%v) = %q, want %q", tt.params, got, tt.want)
		}
	}
}
