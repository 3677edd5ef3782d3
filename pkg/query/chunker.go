package query

import (
	"fmt"
	"iter"
	"slices"
)

// Chunks lazily splits keys into ordered groups of at most size keys each,
// preserving relative order and covering every key exactly once. An empty
// key list yields zero chunks. Fails with ErrInvalidLimit when size is not
// positive.
func Chunks(keys []string, size int) (iter.Seq[[]string], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, size)
	}
	if len(keys) == 0 {
		return func(yield func([]string) bool) {}, nil
	}
	return slices.Chunk(keys, size), nil
}
