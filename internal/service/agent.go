package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/qagent/internal/events"
	"github.com/cartridge/qagent/internal/learner"
	"github.com/cartridge/qagent/internal/metrics"
	"github.com/cartridge/qagent/internal/policy"
	"github.com/cartridge/qagent/internal/storage"
	"github.com/cartridge/qagent/internal/types"
)

// ErrNoStore is returned by snapshot operations when no store is configured.
var ErrNoStore = errors.New("snapshot store not configured")

// UpdateInput captures the payload of a Q-factor update.
type UpdateInput struct {
	State    types.State  `json:"state"`
	Action   types.Action `json:"action"`
	Reward   float64      `json:"reward"`
	NewState types.State  `json:"new_state,omitempty"`
}

// Stats describes the agent configuration and learning progress.
type Stats struct {
	StateDims          []string       `json:"state_dims"`
	ActionDims         []string       `json:"action_dims"`
	Mode               types.Mode     `json:"mode"`
	LearningRate       float64        `json:"learning_rate"`
	DiscountFactor     float64        `json:"discount_factor"`
	Accuracy           float64        `json:"accuracy"`
	DefaultQ           float64        `json:"default_q"`
	Bandwidth          float64        `json:"bandwidth"`
	K                  int            `json:"k,omitempty"`
	Started            bool           `json:"started"`
	Points             int            `json:"points"`
	MinimumValues      []float64      `json:"minimum_values"`
	MaximumValues      []float64      `json:"maximum_values"`
	QueriesPerDecision int            `json:"queries_per_decision"`
	Totals             metrics.Totals `json:"totals"`
}

// Agent serialises access to one Learner and wires it to persistence,
// event fan-out and metrics.
type Agent struct {
	mu      sync.Mutex
	learner *learner.Learner
	store   storage.SnapshotStore
	events  events.Publisher
	metrics *metrics.Collector
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewAgent constructs an Agent. A nil store disables snapshots; a nil
// publisher or collector is replaced by a no-op.
func NewAgent(l *learner.Learner, store storage.SnapshotStore, publisher events.Publisher, collector *metrics.Collector, logger *zerolog.Logger) *Agent {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if collector == nil {
		collector = metrics.NewCollector(zerolog.Nop())
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Agent{
		learner: l,
		store:   store,
		events:  publisher,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow allows tests to override the time source.
func (a *Agent) WithNow(now func() time.Time) {
	a.now = now
}

// RequestAction chooses an action for state.
func (a *Agent) RequestAction(_ context.Context, state types.State) (types.Action, error) {
	start := a.now()
	a.mu.Lock()
	action, err := a.learner.RequestAction(state)
	mode := a.learner.Mode()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a.metrics.ActionRequested(string(mode), a.now().Sub(start))
	return action, nil
}

// UpdateQFactors records a transition and publishes an update event.
func (a *Agent) UpdateQFactors(ctx context.Context, input UpdateInput) error {
	a.mu.Lock()
	err := a.learner.UpdateQFactors(input.State, input.Action, input.Reward, input.NewState)
	bandwidth := a.learner.Bandwidth()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.metrics.UpdateRecorded(input.Reward, bandwidth)
	event := events.UpdateEvent{
		ID:        uuid.New().String(),
		State:     input.State,
		Action:    input.Action,
		Reward:    input.Reward,
		Bandwidth: bandwidth,
		Timestamp: a.now(),
	}
	if err := a.events.PublishUpdate(ctx, event); err != nil {
		a.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to publish update event")
	}
	return nil
}

// SetMode switches the operating mode and publishes the transition.
func (a *Agent) SetMode(ctx context.Context, mode types.Mode) error {
	a.mu.Lock()
	from := a.learner.Mode()
	err := a.learner.SetMode(mode)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.metrics.ModeTransition(string(from), string(mode))
	event := events.ModeEvent{
		ID:        uuid.New().String(),
		FromMode:  string(from),
		ToMode:    string(mode),
		Timestamp: a.now(),
	}
	if err := a.events.PublishMode(ctx, event); err != nil {
		a.logger.Error().Err(err).Str("to_mode", string(mode)).Msg("failed to publish mode event")
	}
	return nil
}

// Configure applies a partial settings update atomically.
func (a *Agent) Configure(_ context.Context, settings types.Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.learner.Configure(settings)
}

// SetRanges replaces both bound arrays.
func (a *Agent) SetRanges(_ context.Context, min, max []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.learner.SetRanges(min, max)
}

// LoadData replaces the estimator dataset.
func (a *Agent) LoadData(_ context.Context, data [][]float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.learner.LoadData(data)
}

// ExportData returns the estimator dataset.
func (a *Agent) ExportData(_ context.Context) [][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.learner.Data()
}

// SetAction validates a labelled state/action pair.
func (a *Agent) SetAction(_ context.Context, state types.State, action types.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.learner.SetAction(state, action)
}

// Stats returns the current configuration and learning progress.
func (a *Agent) Stats(_ context.Context) Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	l := a.learner
	layout := l.Layout()
	return Stats{
		StateDims:          layout.StateDims(),
		ActionDims:         layout.ActionDims(),
		Mode:               l.Mode(),
		LearningRate:       l.LearningRate(),
		DiscountFactor:     l.DiscountFactor(),
		Accuracy:           l.Accuracy(),
		DefaultQ:           l.DefaultQ(),
		Bandwidth:          l.Bandwidth(),
		K:                  l.K(),
		Started:            l.Started(),
		Points:             len(l.Data()),
		MinimumValues:      l.MinimumValues(),
		MaximumValues:      l.MaximumValues(),
		QueriesPerDecision: policy.QueriesPerDecision(layout.NumAction(), l.Accuracy()),
		Totals:             a.metrics.Totals(),
	}
}

// SaveSnapshot persists the full learner state.
func (a *Agent) SaveSnapshot(ctx context.Context, reason string) (storage.Record, error) {
	if a.store == nil {
		return storage.Record{}, ErrNoStore
	}
	start := a.now()

	a.mu.Lock()
	snap := a.learner.Snapshot()
	a.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return storage.Record{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if reason == "" {
		reason = storage.ReasonManual
	}
	record := storage.Record{
		ID:        uuid.New().String(),
		Reason:    reason,
		Points:    len(snap.Data),
		Payload:   payload,
		CreatedAt: start,
	}
	if err := a.store.SaveSnapshot(ctx, record); err != nil {
		return storage.Record{}, err
	}

	a.metrics.SnapshotSaved(record.ID, reason, record.Points, a.now().Sub(start))
	a.publishSnapshot(ctx, record, "saved")
	return withoutPayload(record), nil
}

// RestoreSnapshot loads the snapshot with the given ID into the learner.
func (a *Agent) RestoreSnapshot(ctx context.Context, id string) (storage.Record, error) {
	if a.store == nil {
		return storage.Record{}, ErrNoStore
	}
	record, err := a.store.GetSnapshot(ctx, id)
	if err != nil {
		return storage.Record{}, err
	}
	return a.restore(ctx, record)
}

// RestoreLatest loads the most recent snapshot into the learner.
func (a *Agent) RestoreLatest(ctx context.Context) (storage.Record, error) {
	if a.store == nil {
		return storage.Record{}, ErrNoStore
	}
	record, err := a.store.LatestSnapshot(ctx)
	if err != nil {
		return storage.Record{}, err
	}
	return a.restore(ctx, record)
}

// ListSnapshots returns stored snapshot metadata, newest first.
func (a *Agent) ListSnapshots(ctx context.Context, limit int) ([]storage.Record, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	return a.store.ListSnapshots(ctx, limit)
}

// PruneSnapshots keeps only the newest keep snapshots.
func (a *Agent) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if a.store == nil {
		return 0, ErrNoStore
	}
	return a.store.PruneSnapshots(ctx, keep)
}

func (a *Agent) restore(ctx context.Context, record storage.Record) (storage.Record, error) {
	var snap learner.Snapshot
	if err := json.Unmarshal(record.Payload, &snap); err != nil {
		return storage.Record{}, fmt.Errorf("%w: decode snapshot %s: %v", types.ErrType, record.ID, err)
	}

	a.mu.Lock()
	err := a.learner.Restore(snap)
	a.mu.Unlock()
	if err != nil {
		return storage.Record{}, err
	}

	a.logger.Info().
		Str("snapshot_id", record.ID).
		Int("points", record.Points).
		Msg("restored snapshot")
	a.publishSnapshot(ctx, record, "restored")
	return withoutPayload(record), nil
}

func (a *Agent) publishSnapshot(ctx context.Context, record storage.Record, event string) {
	if err := a.events.PublishSnapshot(ctx, events.SnapshotEvent{
		SnapshotID: record.ID,
		Event:      event,
		Reason:     record.Reason,
		Points:     record.Points,
		Timestamp:  a.now(),
	}); err != nil {
		a.logger.Error().Err(err).Str("snapshot_id", record.ID).Msg("failed to publish snapshot event")
	}
}

func withoutPayload(record storage.Record) storage.Record {
	record.Payload = nil
	return record
}
