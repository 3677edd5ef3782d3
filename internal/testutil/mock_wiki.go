// Package testutil provides testing utilities for the query client.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockWiki is a configurable mock Action API endpoint. All requests hit the
// same api.php path, so responses are scripted as a consumable sequence
// rather than keyed by path.
type MockWiki struct {
	server   *httptest.Server
	mu       sync.RWMutex
	queue    []MockResponse
	fallback MockResponse
	handler  func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	Requests          []url.Values
	LastRequestHeader http.Header
}

// NewMockWiki creates a new mock API server. With no scripted responses it
// answers every request with an empty successful query body.
func NewMockWiki() *MockWiki {
	mock := &MockWiki{
		fallback: NewQueryResponse(`{"batchcomplete":true,"query":{}}`),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, r.Form)
		mock.LastRequestHeader = r.Header.Clone()

		if mock.handler != nil {
			handler := mock.handler
			mock.mu.Unlock()
			handler(w, r)
			return
		}

		resp := mock.fallback
		if len(mock.queue) > 0 {
			resp = mock.queue[0]
			mock.queue = mock.queue[1:]
		}
		mock.mu.Unlock()

		resp.write(w)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockWiki) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockWiki) Close() {
	m.server.Close()
}

// Reset clears tracking state and any unconsumed scripted responses.
func (m *MockWiki) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
	m.LastRequestHeader = nil
	m.queue = nil
	m.handler = nil
}

// Enqueue appends responses to the scripted sequence. Each is served
// exactly once, in order, before the fallback takes over.
func (m *MockWiki) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetFallback configures the response served once the sequence is drained.
func (m *MockWiki) SetFallback(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// SetHandler installs a full custom handler, bypassing the sequence.
func (m *MockWiki) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockWiki) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestAt returns the decoded form parameters of the i-th request.
func (m *MockWiki) RequestAt(i int) url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.Requests) {
		return nil
	}
	return m.Requests[i]
}

// LastRequest returns the decoded form parameters of the most recent request.
func (m *MockWiki) LastRequest() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

func (r MockResponse) write(w http.ResponseWriter) {
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}

	for key, value := range r.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}

	w.WriteHeader(r.StatusCode)
	if r.Body != "" {
		w.Write([]byte(r.Body))
	}
}

// NewQueryResponse creates a 200 OK response carrying an API JSON body.
func NewQueryResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMaxLagResponse creates the body the API returns when replication lag
// exceeds the request's maxlag parameter. The status is 200; the error
// lives in the JSON.
func NewMaxLagResponse(lag float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"error":{"code":"maxlag","info":"Waiting for a database server","lag":` + formatLag(lag) + `}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  "5",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"code":"ratelimited","info":"Too many requests"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  retryAfter,
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"code":"internal_api_error_DBQueryError","info":"Database query error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

func formatLag(lag float64) string {
	return strconv.FormatFloat(lag, 'f', -1, 64)
}
