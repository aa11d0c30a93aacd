// Package events fans agent activity out to downstream consumers.
package events

import (
	"context"
	"time"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishUpdate(ctx context.Context, payload UpdateEvent) error
	PublishMode(ctx context.Context, payload ModeEvent) error
	PublishSnapshot(ctx context.Context, payload SnapshotEvent) error
}

// UpdateEvent is emitted after every accepted Q-factor update.
type UpdateEvent struct {
	ID        string             `json:"id"`
	State     map[string]float64 `json:"state"`
	Action    map[string]float64 `json:"action"`
	Reward    float64            `json:"reward"`
	Bandwidth float64            `json:"bandwidth"`
	Timestamp time.Time          `json:"timestamp"`
}

// ModeEvent tracks operating mode transitions.
type ModeEvent struct {
	ID        string    `json:"id"`
	FromMode  string    `json:"from_mode"`
	ToMode    string    `json:"to_mode"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotEvent is emitted when a snapshot is saved or restored.
type SnapshotEvent struct {
	SnapshotID string    `json:"snapshot_id"`
	Event      string    `json:"event"`
	Reason     string    `json:"reason,omitempty"`
	Points     int       `json:"points"`
	Timestamp  time.Time `json:"timestamp"`
}

// NoopPublisher drops every event; useful for tests.
type NoopPublisher struct{}

// PublishUpdate satisfies Publisher.
func (NoopPublisher) PublishUpdate(context.Context, UpdateEvent) error { return nil }

// PublishMode satisfies Publisher.
func (NoopPublisher) PublishMode(context.Context, ModeEvent) error { return nil }

// PublishSnapshot satisfies Publisher.
func (NoopPublisher) PublishSnapshot(context.Context, SnapshotEvent) error { return nil }
