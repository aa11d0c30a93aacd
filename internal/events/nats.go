package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher implements Publisher using NATS
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher creates a new NATS-backed publisher
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("qagent"))
	if err != nil {
		return nil, err
	}
	return NewNATSPublisherWithConn(conn, subject, logger), nil
}

// NewNATSPublisherWithConn wraps an existing connection.
func NewNATSPublisherWithConn(conn Conn, subject string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Close closes the NATS connection
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// PublishUpdate publishes update events on <subject>.updates
func (n *NATSPublisher) PublishUpdate(_ context.Context, event UpdateEvent) error {
	subject := n.subject + ".updates"
	if err := n.publish(subject, event); err != nil {
		return err
	}

	n.logger.Debug().
		Str("event_id", event.ID).
		Float64("reward", event.Reward).
		Str("subject", subject).
		Msg("Published update event")
	return nil
}

// PublishMode publishes mode transitions on <subject>.mode
func (n *NATSPublisher) PublishMode(_ context.Context, event ModeEvent) error {
	subject := n.subject + ".mode"
	if err := n.publish(subject, event); err != nil {
		return err
	}

	n.logger.Debug().
		Str("from_mode", event.FromMode).
		Str("to_mode", event.ToMode).
		Str("subject", subject).
		Msg("Published mode event")
	return nil
}

// PublishSnapshot publishes snapshot lifecycle events on <subject>.snapshots
func (n *NATSPublisher) PublishSnapshot(_ context.Context, event SnapshotEvent) error {
	subject := n.subject + ".snapshots"
	if err := n.publish(subject, event); err != nil {
		return err
	}

	n.logger.Debug().
		Str("snapshot_id", event.SnapshotID).
		Str("event", event.Event).
		Str("subject", subject).
		Msg("Published snapshot event")
	return nil
}

func (n *NATSPublisher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return err
	}
	return nil
}
