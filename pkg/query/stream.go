package query

import (
	"context"
	"sort"
)

// Unit is one streamed result item tagged with the key it belongs to
// (SyntheticKey for keyless list queries).
type Unit[T any] struct {
	Key  string
	Item T
}

// Stream lazily yields the results of one descriptor by driving a single
// continuation run and handing out items page by page. It keeps at most one
// request outstanding: a new page is fetched only when the buffered one is
// consumed.
//
// A stream is single-consumer and not restartable; to scan again, create a
// new one. Abandoning a stream (stop calling Next, or Close) issues no
// further requests.
type Stream[T any] struct {
	drv    *Driver[T]
	buf    []Unit[T]
	cur    Unit[T]
	err    error
	done   bool
	closed bool
}

// NewStream creates a stream for one descriptor. keys is nil for list
// queries; prop-continuation scans over a single title pass that title.
func NewStream[T any](inv Invoker, desc Descriptor[T], keys []string, opts Options) *Stream[T] {
	return &Stream[T]{
		drv: NewDriver(inv, desc, keys, opts),
	}
}

// Next advances to the next unit, fetching the next page from the server
// when the current one is exhausted. It returns false when the stream ends,
// either by exhaustion or error; check Err to distinguish.
func (s *Stream[T]) Next(ctx context.Context) bool {
	for len(s.buf) == 0 {
		if s.closed || s.done || s.err != nil {
			return false
		}

		page, done, err := s.drv.step(ctx)
		if err != nil {
			s.err = err
			return false
		}
		s.done = done
		s.buf = flattenPage(s.drv.keys, page)
	}

	s.cur = s.buf[0]
	s.buf = s.buf[1:]
	return true
}

// Unit returns the unit produced by the last successful Next.
func (s *Stream[T]) Unit() Unit[T] {
	return s.cur
}

// Err returns the error that terminated the stream, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close abandons the stream. Buffered units are dropped and no further
// requests are issued. Close is idempotent.
func (s *Stream[T]) Close() {
	s.closed = true
	s.buf = nil
}

// flattenPage orders one page's keyed items deterministically: the chunk's
// key order first, then any remaining response keys sorted.
func flattenPage[T any](keyOrder []string, page map[string][]T) []Unit[T] {
	var units []Unit[T]
	seen := make(map[string]bool, len(keyOrder))

	emit := func(key string) {
		for _, item := range page[key] {
			units = append(units, Unit[T]{Key: key, Item: item})
		}
		seen[key] = true
	}

	for _, key := range keyOrder {
		if _, ok := page[key]; ok {
			emit(key)
		}
	}

	var rest []string
	for key := range page {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		emit(key)
	}

	return units
}
