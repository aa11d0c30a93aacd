// Package checkpoint periodically persists agent snapshots.
package checkpoint

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/qagent/internal/storage"
)

// Config holds checkpoint configuration
type Config struct {
	Interval time.Duration
	// Keep is the number of snapshots retained after each checkpoint; 0
	// keeps all of them.
	Keep int
}

// Saver is the part of the agent service the runner drives.
type Saver interface {
	SaveSnapshot(ctx context.Context, reason string) (storage.Record, error)
	PruneSnapshots(ctx context.Context, keep int) (int, error)
}

// Runner saves a snapshot on every tick
type Runner struct {
	saver  Saver
	config Config
	logger zerolog.Logger
}

// NewRunner creates a new checkpoint runner
func NewRunner(saver Saver, config Config, logger zerolog.Logger) *Runner {
	return &Runner{
		saver:  saver,
		config: config,
		logger: logger,
	}
}

// Start begins the checkpoint loop and blocks until ctx is cancelled
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.config.Interval).
		Int("keep", r.config.Keep).
		Msg("Starting checkpoint runner")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Checkpoint runner stopped")
			return
		case <-ticker.C:
			if err := r.Checkpoint(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Checkpoint failed")
			}
		}
	}
}

// Checkpoint saves one snapshot and prunes old ones.
func (r *Runner) Checkpoint(ctx context.Context) error {
	record, err := r.saver.SaveSnapshot(ctx, storage.ReasonCheckpoint)
	if err != nil {
		return err
	}
	r.logger.Debug().
		Str("snapshot_id", record.ID).
		Int("points", record.Points).
		Msg("Checkpoint saved")

	if r.config.Keep <= 0 {
		return nil
	}
	removed, err := r.saver.PruneSnapshots(ctx, r.config.Keep)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.logger.Debug().Int("removed", removed).Msg("Pruned old checkpoints")
	}
	return nil
}
