package query

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Options configure the batch engine.
type Options struct {
	// ChunkSize is the maximum number of titles per request. Must match
	// the account's privilege level (50 default, 500 with bot rights).
	ChunkSize int

	// Concurrency caps how many chunk drivers run at once. 1 degrades to
	// fully sequential processing.
	Concurrency int

	// MaxSteps caps continuation steps per driver as a safety net against
	// runaway pagination.
	MaxSteps int
}

// DefaultOptions returns safe defaults for an unprivileged account.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   50,
		Concurrency: 5,
		MaxSteps:    500,
	}
}

func (o Options) concurrencyOrDefault() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}

func (o Options) maxStepsOrDefault() int {
	if o.MaxSteps < 1 {
		return 500
	}
	return o.MaxSteps
}

// chunkResult carries one chunk driver's outcome to the collector.
type chunkResult[T any] struct {
	data map[string][]T
	err  error
}

// Aggregate runs one descriptor over any number of keys: it partitions the
// keys into chunks, drives each chunk to exhaustion with at most
// opts.Concurrency drivers in flight, and merges everything into one map.
//
// Every input key is present in the result, with an empty item list when the
// server reported nothing for it. Chunk boundaries are not observable in the
// output. On the first chunk failure the whole operation fails with a
// PartialBatchError; data from chunks that already completed is discarded.
func Aggregate[T any](ctx context.Context, inv Invoker, desc Descriptor[T], keys []string, opts Options) (map[string][]T, error) {
	chunks, err := Chunks(keys, opts.ChunkSize)
	if err != nil {
		// rejected before any network call
		return nil, err
	}

	start := time.Now()

	out := make(map[string][]T, len(keys))
	for _, k := range keys {
		out[k] = nil
	}
	if len(keys) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := opts.concurrencyOrDefault()
	chunkQueue := make(chan []string)
	results := make(chan chunkResult[T])

	// Fill chunk queue
	go func() {
		defer close(chunkQueue)
		for chunk := range chunks {
			select {
			case chunkQueue <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunkQueue {
				select {
				case <-ctx.Done():
					return
				default:
				}

				drv := NewDriver(inv, desc, chunk, opts)
				data, err := drv.Run(ctx)
				if err != nil {
					mwqBatchChunksTotal.WithLabelValues(desc.Name, "failed").Inc()
					err = &PartialBatchError{
						Operation: desc.Name,
						FirstKey:  chunk[0],
						LastKey:   chunk[len(chunk)-1],
						Cursor:    drv.Cursor(),
						Err:       err,
					}
				} else {
					mwqBatchChunksTotal.WithLabelValues(desc.Name, "ok").Inc()
				}

				select {
				case results <- chunkResult[T]{data: data, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect: merge chunk maps, fail fast on the first error
	var firstErr error
	chunksDone := 0
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		for k, items := range result.data {
			out[k] = append(out[k], items...)
		}
		chunksDone++
	}

	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Str("operation", desc.Name).
			Int("chunks_done", chunksDone).
			Msg("Batch query failed - discarding partial results")
		return nil, firstErr
	}

	log.Debug().
		Str("operation", desc.Name).
		Int("keys", len(keys)).
		Int("chunks", chunksDone).
		Dur("duration", time.Since(start)).
		Msg("Batch query complete")

	return out, nil
}
