// Package ratelimit tracks server pressure signals from the MediaWiki API and
// gates requests accordingly. Retry-After deadlines and maxlag replication
// lag reported to any client instance are shared through Redis so that all
// cooperating instances back off together.
package ratelimit

import (
	"time"
)

// Redis keys for shared pressure state.
const (
	RedisKeyBlockedUntil = "mwq:rate_limit:blocked_until"
	RedisKeyLastLag      = "mwq:rate_limit:last_lag"
	RedisKeyLastUpdate   = "mwq:rate_limit:last_update"
)

// LagThresholdWarning is the replication lag (seconds) above which requests
// are throttled. Matches the conventional maxlag=5 guidance for bots.
const LagThresholdWarning = 5.0

// PressureState is the shared view of current server pressure.
type PressureState struct {
	// BlockedUntil is the deadline of the most recent Retry-After signal.
	// Zero when no block is active.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastLag is the replication lag reported by the last maxlag error.
	LastLag float64 `json:"last_lag"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// Blocked returns true while a Retry-After deadline is active.
func (s *PressureState) Blocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining wait for an active block.
// Returns 0 when no block is active.
func (s *PressureState) TimeUntilUnblocked() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// NeedsThrottling returns true when the server reported high replication lag
// and requests should be slowed down rather than blocked.
func (s *PressureState) NeedsThrottling() bool {
	return !s.Blocked() && s.LastLag >= LagThresholdWarning
}

// IsStale returns true if the state data is older than the given duration.
// Stale lag readings should not keep throttling requests forever.
func (s *PressureState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
