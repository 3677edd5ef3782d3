package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	mwqRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	mwqRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mwq_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	mwqRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mwq_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// request is attempted at most MaxRetries+1 times.
	MaxRetries int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// Only transient RequestErrors are retried; a server-suggested Retry-After
// takes precedence over the computed backoff. Jitter (±20%) is added to the
// computed backoff to prevent thundering herd.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		var reqErr *RequestError
		if !errors.As(err, &reqErr) || !reqErr.Transient() {
			// permanent failure, surface immediately
			return err
		}

		// If this was the last attempt, don't wait
		if attempt >= config.MaxRetries {
			break
		}

		errorClass := string(reqErr.ErrorClass)
		mwqRetriesTotal.WithLabelValues(errorClass).Inc()

		// Add jitter (±20% randomness)
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		// Server-suggested wait wins over computed backoff
		if reqErr.RetryAfter > 0 {
			wait = reqErr.RetryAfter
		}
		mwqRetryBackoffSeconds.WithLabelValues(errorClass).Observe(wait.Seconds())

		log.Debug().
			Str("error_class", errorClass).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", errorClass).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
			// Continue to next attempt
		}

		// Calculate next backoff (exponential)
		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	// All retries exhausted
	var reqErr *RequestError
	if errors.As(lastErr, &reqErr) {
		mwqRetryExhaustedTotal.WithLabelValues(string(reqErr.ErrorClass)).Inc()
	}
	log.Warn().
		Int("max_retries", config.MaxRetries).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxRetries+1, lastErr)
}
