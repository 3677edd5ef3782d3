package query

import (
	"context"
	"sync"
	"testing"

	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// invokeFunc adapts a closure to the Invoker interface.
type invokeFunc func(ctx context.Context, params map[string]string) (*response.Envelope, error)

func (f invokeFunc) Invoke(ctx context.Context, params map[string]string) (*response.Envelope, error) {
	return f(ctx, params)
}

// scriptedInvoker serves pre-decoded envelopes in order and records every
// request's parameters.
type scriptedInvoker struct {
	mu     sync.Mutex
	bodies []string
	errs   []error
	calls  []map[string]string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, params map[string]string) (*response.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	s.calls = append(s.calls, copied)

	i := len(s.calls) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.bodies) {
		return response.Decode([]byte(`{"batchcomplete":true,"query":{}}`))
	}
	return response.Decode([]byte(s.bodies[i]))
}

func (s *scriptedInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedInvoker) callAt(t *testing.T, i int) map[string]string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.calls) {
		t.Fatalf("Only %d calls recorded, want index %d", len(s.calls), i)
	}
	return s.calls[i]
}

func mustEnvelope(t *testing.T, body string) *response.Envelope {
	t.Helper()
	env, err := response.Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return env
}
