package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	mwqServerLagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mwq_server_lag_seconds",
		Help: "Replication lag reported by the last maxlag error",
	})

	mwqRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mwq_rate_limit_blocks_total",
		Help: "Total number of requests blocked by an active Retry-After deadline",
	})

	mwqRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mwq_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to server lag",
	})
)

// staleLagAge is how long a lag reading keeps influencing throttling.
const staleLagAge = 2 * time.Minute

// Tracker monitors server pressure signals and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new pressure tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current pressure state from Redis.
// Returns a default relaxed state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context) (*PressureState, error) {
	blockedUnix, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	lag, err := t.redis.Get(ctx, RedisKeyLastLag).Float64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last lag: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	if err == redis.Nil && blockedUnix == 0 {
		t.logger.Debug().Msg("No pressure state in Redis, returning relaxed state")
		return &PressureState{LastUpdate: time.Now()}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &PressureState{
		LastLag:    lag,
		LastUpdate: lastUpdate,
	}
	if blockedUnix > 0 {
		state.BlockedUntil = time.Unix(blockedUnix, 0)
	}

	// Old lag readings should not keep slowing everyone down.
	if state.IsStale(staleLagAge) {
		state.LastLag = 0
	}

	return state, nil
}

// Publish records a server pressure signal so that all client instances
// sharing this Redis observe it. retryAfter 0 and lag 0 clear the signal.
func (t *Tracker) Publish(ctx context.Context, retryAfter time.Duration, lag float64) error {
	now := time.Now()

	pipe := t.redis.Pipeline()
	if retryAfter > 0 {
		pipe.Set(ctx, RedisKeyBlockedUntil, now.Add(retryAfter).Unix(), retryAfter)
	}
	pipe.Set(ctx, RedisKeyLastLag, lag, staleLagAge)

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store pressure state in redis: %w", err)
	}

	mwqServerLagSeconds.Set(lag)

	if retryAfter > 0 {
		t.logger.Warn().
			Dur("retry_after", retryAfter).
			Float64("lag", lag).
			Msg("Server pressure signal published - requests will be gated")
	} else if lag >= LagThresholdWarning {
		t.logger.Warn().
			Float64("lag", lag).
			Msg("Server lag above threshold - requests will be throttled")
	} else {
		t.logger.Debug().Float64("lag", lag).Msg("Pressure state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current
// pressure state. Returns false if the request should be blocked by an active
// Retry-After deadline. Returns true but may sleep briefly when the server is
// lagged.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get pressure state: %w", err)
	}

	if state.Blocked() {
		waitDuration := state.TimeUntilUnblocked()

		t.logger.Warn().
			Dur("wait_duration", waitDuration).
			Msg("Retry-After deadline active - blocking request")

		mwqRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Float64("lag", state.LastLag).
			Msg("Server lagged - throttling request")

		mwqRateLimitThrottlesTotal.Inc()

		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}
