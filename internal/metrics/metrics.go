package metrics

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Collector logs agent metrics and keeps running totals.
type Collector struct {
	logger    zerolog.Logger
	requests  atomic.Int64
	updates   atomic.Int64
	snapshots atomic.Int64
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Totals is a point-in-time copy of the collector counters.
type Totals struct {
	ActionRequests int64 `json:"action_requests"`
	Updates        int64 `json:"updates"`
	Snapshots      int64 `json:"snapshots"`
}

// Totals returns the running counters.
func (c *Collector) Totals() Totals {
	return Totals{
		ActionRequests: c.requests.Load(),
		Updates:        c.updates.Load(),
		Snapshots:      c.snapshots.Load(),
	}
}

// Track action decisions
func (c *Collector) ActionRequested(mode string, duration time.Duration) {
	c.requests.Add(1)
	c.logger.Debug().
		Str("metric", "action_requested").
		Str("mode", mode).
		Dur("duration", duration).
		Msg("Action request metric")
}

// Track Q-factor updates
func (c *Collector) UpdateRecorded(reward, bandwidth float64) {
	c.updates.Add(1)
	c.logger.Debug().
		Str("metric", "update_recorded").
		Float64("reward", reward).
		Float64("bandwidth", bandwidth).
		Msg("Update metric")
}

// Track API request metrics
func (c *Collector) APIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "api_request").
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("API request metric")
}

// Track mode transitions
func (c *Collector) ModeTransition(fromMode, toMode string) {
	c.logger.Info().
		Str("metric", "mode_transition").
		Str("from_mode", fromMode).
		Str("to_mode", toMode).
		Msg("Mode transition metric")
}

// Track snapshot persistence
func (c *Collector) SnapshotSaved(snapshotID, reason string, points int, duration time.Duration) {
	c.snapshots.Add(1)
	c.logger.Info().
		Str("metric", "snapshot_saved").
		Str("snapshot_id", snapshotID).
		Str("reason", reason).
		Int("points", points).
		Dur("duration", duration).
		Msg("Snapshot metric")
}
