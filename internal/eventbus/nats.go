/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/events"
)

// subjectPrefix is prepended to the event type to form the NATS subject.
const subjectPrefix = "skald.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// envelope is the wire format for events published to NATS.
type envelope struct {
	NodeID string         `json:"node_id"`
	Type   string         `json:"type"`
	SentAt time.Time      `json:"sent_at"`
	Data   events.Payload `json:"data"`
}

// NATSBus is a NATS-backed event bus for multi-instance deployments.
// Local subscribers are served by an in-memory bus; every published
// event is additionally fanned out over NATS, and events received from
// other nodes are replayed into the local bus.
type NATSBus struct {
	logger zerolog.Logger
	local  *events.Bus
	conn   *nats.Conn
	sub    *nats.Subscription
	nodeID string
}

// NewNATSBus connects to NATS and bridges remote events into a local bus.
// If url is empty, the bus operates purely in-memory.
func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger: logger,
		local:  events.NewBus(),
		nodeID: uuid.NewString(),
	}
	if cfg.URL == "" {
		logger.Info().Msg("no NATS URL configured, using in-memory event bus")
		return nb, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.Name("skald-"+nb.nodeID),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", cfg.URL, err)
	}
	nb.conn = conn

	sub, err := conn.Subscribe(subjectPrefix+">", nb.handleRemote)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s>: %w", subjectPrefix, err)
	}
	nb.sub = sub

	logger.Info().Str("url", cfg.URL).Str("node_id", nb.nodeID).Msg("connected to NATS event bus")
	return nb, nil
}

// handleRemote replays events published by other nodes into the local bus.
func (nb *NATSBus) handleRemote(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		nb.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("discarding malformed event")
		return
	}
	if env.NodeID == nb.nodeID {
		return // our own publish echoed back
	}
	nb.local.Publish(events.EventType(env.Type), env.Data)
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers an event to local subscribers and, when connected,
// to the rest of the cluster.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}
	data, err := json.Marshal(envelope{
		NodeID: nb.nodeID,
		Type:   string(eventType),
		SentAt: time.Now().UTC(),
		Data:   payload,
	})
	if err != nil {
		nb.logger.Warn().Err(err).Str("type", string(eventType)).Msg("failed to encode event")
		return
	}
	if err := nb.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		nb.logger.Warn().Err(err).Str("type", string(eventType)).Msg("failed to publish event to NATS")
	}
}

// Close drains the NATS subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.sub != nil {
		if err := nb.sub.Unsubscribe(); err != nil {
			nb.logger.Warn().Err(err).Msg("unsubscribe failed during close")
		}
	}
	if nb.conn != nil {
		nb.conn.Close()
	}
	return nil
}
