package query

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/wikibatch/mediawiki-query-client/pkg/logging"
	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// Prometheus metrics for the query engine.
var (
	mwqQueryStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_query_steps_total",
		Help: "Total continuation steps by operation",
	}, []string{"operation"})

	mwqContinuationLimitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_continuation_limit_total",
		Help: "Total continuation safety-net trips by operation",
	}, []string{"operation"})

	mwqBatchChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_batch_chunks_total",
		Help: "Total chunks processed by batch queries, by operation and outcome",
	}, []string{"operation", "outcome"})
)

// State of a continuation driver run.
type State int

const (
	// StateInit: no request issued yet.
	StateInit State = iota

	// StateAwaitingResponse: a request is in flight.
	StateAwaitingResponse

	// StateMerging: a response arrived and its items are being merged.
	StateMerging

	// StateDone: the server signalled exhaustion.
	StateDone

	// StateFailed: a fatal error or exhausted retries ended the run.
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Driver executes one descriptor, optionally restricted to one chunk of
// keys, to exhaustion: it reissues the request with the server's continue
// cursor merged in until the server omits the cursor. Steps are strictly
// sequential; each depends on the previous cursor.
type Driver[T any] struct {
	inv      Invoker
	desc     Descriptor[T]
	keys     []string
	maxSteps int
	logger   zerolog.Logger

	state  State
	cursor map[string]string
	steps  int
}

// NewDriver creates a driver for one chunk (keys nil for keyless queries).
func NewDriver[T any](inv Invoker, desc Descriptor[T], keys []string, opts Options) *Driver[T] {
	return &Driver[T]{
		inv:      inv,
		desc:     desc,
		keys:     keys,
		maxSteps: opts.maxStepsOrDefault(),
		logger:   logging.NewLogger("query-driver"),
		state:    StateInit,
	}
}

// State returns the driver's current state.
func (d *Driver[T]) State() State {
	return d.state
}

// Cursor returns the current continuation cursor (nil before the first
// response and after exhaustion).
func (d *Driver[T]) Cursor() map[string]string {
	return d.cursor
}

// step issues one request and returns the keyed items of that single page.
// done is true when the server signalled exhaustion.
func (d *Driver[T]) step(ctx context.Context) (page map[string][]T, done bool, err error) {
	if d.steps >= d.maxSteps {
		d.state = StateFailed
		mwqContinuationLimitTotal.WithLabelValues(d.desc.Name).Inc()
		d.logger.Error().
			Str("operation", d.desc.Name).
			Int("step", d.steps).
			Msg("Continuation safety net tripped")
		return nil, false, fmt.Errorf("%w: %q did not terminate within %d steps",
			ErrContinuationLimit, d.desc.Name, d.maxSteps)
	}

	params := d.desc.baseParams(d.keys)
	for k, v := range d.cursor {
		params[k] = v
	}

	d.state = StateAwaitingResponse
	env, err := d.inv.Invoke(ctx, params)
	if err != nil {
		d.state = StateFailed
		return nil, false, err
	}

	d.state = StateMerging
	d.steps++
	mwqQueryStepsTotal.WithLabelValues(d.desc.Name).Inc()

	page, err = d.extract(env)
	if err != nil {
		d.state = StateFailed
		return nil, false, err
	}

	if env.HasContinue() {
		d.cursor = env.Continue
		d.logger.Debug().
			Str("operation", d.desc.Name).
			Int("step", d.steps).
			Int("cursor", len(d.cursor)).
			Msg("Continuation cursor received")
		return page, false, nil
	}

	d.cursor = nil
	d.state = StateDone
	return page, true, nil
}

// Run drives the query to exhaustion, merging every page's items into one
// result map. Items for a key concatenate across steps in arrival order.
// Every key of the chunk is present in the result, even with no items.
func (d *Driver[T]) Run(ctx context.Context) (map[string][]T, error) {
	out := make(map[string][]T, len(d.keys))
	for _, k := range d.keys {
		out[k] = nil
	}

	for {
		page, done, err := d.step(ctx)
		if err != nil {
			return nil, err
		}
		for k, items := range page {
			out[k] = append(out[k], items...)
		}
		if done {
			return out, nil
		}
	}
}

// extract pulls the descriptor's items out of one envelope, keyed by the
// title as originally submitted (normalization is undone here).
func (d *Driver[T]) extract(env *response.Envelope) (map[string][]T, error) {
	out := make(map[string][]T)

	switch d.desc.Mode {
	case ModeProp:
		pages, err := env.Pages()
		if err != nil {
			return nil, err
		}

		denorm, err := denormalizer(env)
		if err != nil {
			return nil, err
		}

		for _, p := range pages {
			items, err := d.desc.ExtractPage(p)
			if err != nil {
				d.logger.Debug().
					Err(err).
					Str("operation", d.desc.Name).
					Str("title", p.Title).
					Msg("Unable to parse module payload")
				continue
			}
			for _, key := range denorm(p.Title) {
				out[key] = append(out[key], items...)
			}
		}

	case ModeList, ModeMeta:
		raw, ok := env.Section(d.desc.Name)
		if !ok {
			// no results (or exhausted) for this module
			return out, nil
		}
		items, err := d.desc.ExtractList(raw)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			out[SyntheticKey] = items
		}
	}

	return out, nil
}

// denormalizer maps a canonical response title back to the title(s) the
// caller submitted. Titles the server did not normalize map to themselves.
func denormalizer(env *response.Envelope) (func(string) []string, error) {
	pairs, err := env.Normalized()
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return func(title string) []string { return []string{title} }, nil
	}

	back := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		back[pair.To] = append(back[pair.To], pair.From)
	}
	return func(title string) []string {
		if origs, ok := back[title]; ok {
			return origs
		}
		return []string{title}
	}, nil
}
