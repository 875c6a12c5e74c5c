// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bus connects the event spine to RabbitMQ.
//
// The Publisher serializes envelopes as UTF-8 JSON, marks them persistent,
// and publishes them to a durable topic exchange under the envelope's event
// type as routing key. When correlation tracking is enabled it also records
// causation edges via the correlation tracker - opportunistically, bounded
// by a short timeout, and never at the expense of delivery.
//
// The Consumer binds a durable queue to the same exchange and feeds raw
// message bodies to a handler with manual acknowledgement.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/delorenj/bloodbank/pkg/core/config"
	"github.com/delorenj/bloodbank/pkg/correlation"
	"github.com/delorenj/bloodbank/pkg/events"
	"github.com/delorenj/bloodbank/pkg/metrics"
)

// ErrTrackingDisabled reports use of a correlation feature on a publisher
// constructed without correlation tracking.
var ErrTrackingDisabled = errors.New("bus: correlation tracking is disabled")

const (
	// DefaultCorrelationTimeout bounds the correlation write on the publish
	// hot path. The write is not awaited past this bound; delivery proceeds.
	DefaultCorrelationTimeout = 1 * time.Second

	// DefaultConnectTimeout bounds the lazy broker connection attempt.
	// Without it a hung broker would stall initialization indefinitely.
	DefaultConnectTimeout = 10 * time.Second
)

// channel is the slice of *amqp.Channel the publisher uses. Narrowing it to
// an interface lets tests substitute a fake broker.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Confirm(noWait bool) error
	Close() error
}

// Options configures a Publisher.
type Options struct {
	// URL is the AMQP connection URL. Required before first publish.
	URL string

	// Exchange is the durable topic exchange to publish to.
	Exchange string

	// EnableCorrelationTracking turns on the correlation subsystem. The
	// publisher owns a Tracker built from Redis; deterministic event-id
	// generation shares this flag for operational simplicity even though
	// derivation itself needs no store.
	EnableCorrelationTracking bool

	// Redis configures the correlation tracker. Ignored unless
	// EnableCorrelationTracking is set.
	Redis correlation.Options

	// CorrelationTimeout overrides DefaultCorrelationTimeout.
	CorrelationTimeout time.Duration

	// ConnectTimeout overrides DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Logger receives publish diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Publisher publishes event envelopes to the topic exchange.
//
// A Publisher is safe for concurrent use. The broker connection is
// established lazily on first publish (or eagerly via Start); the lazy-start
// sequence is guarded so concurrent first use triggers exactly one
// connection attempt.
//
// Publish is not idempotent across network partitions. Callers needing
// idempotent delivery rely on deterministic event ids (GenerateEventID), not
// on broker-level deduplication.
type Publisher struct {
	url                string
	exchange           string
	correlationTimeout time.Duration
	connectTimeout     time.Duration
	logger             *slog.Logger
	tracker            *correlation.Tracker

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      channel
	started bool
}

// NewPublisher creates a publisher. No connection is attempted until Start
// or the first Publish.
func NewPublisher(opts Options) *Publisher {
	if opts.CorrelationTimeout <= 0 {
		opts.CorrelationTimeout = DefaultCorrelationTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Publisher{
		url:                opts.URL,
		exchange:           opts.Exchange,
		correlationTimeout: opts.CorrelationTimeout,
		connectTimeout:     opts.ConnectTimeout,
		logger:             opts.Logger.With("component", "publisher"),
	}
	if opts.EnableCorrelationTracking {
		redisOpts := opts.Redis
		if redisOpts.Logger == nil {
			redisOpts.Logger = opts.Logger
		}
		p.tracker = correlation.NewTracker(redisOpts)
	}
	return p
}

// Start connects to the broker and declares the topic exchange, then starts
// the correlation tracker if tracking is enabled.
//
// A broker connection failure is fatal and surfaces to the caller with
// credentials redacted from the diagnostic. A correlation store failure is
// not: the tracker degrades silently. Start is idempotent.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLocked(ctx)
}

// startLocked is Start's body; p.mu must be held.
func (p *Publisher) startLocked(ctx context.Context) error {
	if p.started {
		return nil
	}
	if p.url == "" {
		return errors.New("bus: RABBIT_URL is not configured")
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial: amqp.DefaultDial(p.connectTimeout),
	})
	if err != nil {
		return fmt.Errorf("bus: failed to connect to RabbitMQ at %q: %w", config.RedactURL(p.url), err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("bus: failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("bus: failed to enable publisher confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("bus: failed to declare exchange %q: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info("connected to RabbitMQ exchange", "exchange", p.exchange)

	if p.tracker != nil {
		// Degrades silently on failure; tracking is optional.
		p.tracker.Start(ctx)
	}

	p.started = true
	return nil
}

// Close shuts down the tracker and the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tracker != nil {
		p.tracker.Close()
	}

	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	p.conn = nil
	p.ch = nil
	p.started = false
	return err
}

// channelRef returns the live channel, lazily connecting first if needed.
// The reference is taken under the lock so a concurrent Close cannot race a
// publish in flight; a publish on a channel Close already released surfaces
// as a broker error, not a data race.
func (p *Publisher) channelRef(ctx context.Context) (channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.startLocked(ctx); err != nil {
		return nil, err
	}
	return p.ch, nil
}

// PublishOption customizes a single publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	eventID  uuid.UUID
	parents  []uuid.UUID
	metadata map[string]any
}

// WithEventID sets the event id explicitly instead of extracting it from the
// body. The broker message id is set to this value.
func WithEventID(id uuid.UUID) PublishOption {
	return func(o *publishOptions) { o.eventID = id }
}

// WithParents records the given event ids as causal parents of this event in
// the correlation store.
func WithParents(ids ...uuid.UUID) PublishOption {
	return func(o *publishOptions) { o.parents = append(o.parents, ids...) }
}

// WithCorrelationMetadata attaches metadata to the recorded correlation edge.
func WithCorrelationMetadata(md map[string]any) PublishOption {
	return func(o *publishOptions) { o.metadata = md }
}

// Publish serializes body and delivers it to the topic exchange under
// routingKey, lazily connecting first if needed.
//
// If an event id is available (explicit or extracted from the body) and
// parents were supplied, the correlation edge is recorded first, bounded by
// a short timeout so a slow or hung store never blocks delivery; store
// errors and timeouts are logged and swallowed. The broker publish itself is
// fatal on failure and surfaces to the caller - at-least-once delivery is
// the caller's responsibility.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body any, opts ...PublishOption) error {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}

	ch, err := p.channelRef(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bus: failed to serialize message body: %w", err)
	}

	eventID := o.eventID
	if eventID == uuid.Nil {
		eventID = extractEventID(body)
	}

	p.recordCorrelation(ctx, eventID, o.parents, o.metadata)

	msg := amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		Timestamp:       time.Now(),
		Body:            payload,
	}
	if eventID != uuid.Nil {
		msg.MessageId = eventID.String()
	}

	if err := ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		metrics.PublishFailures.Inc()
		return fmt.Errorf("bus: failed to publish to %q: %w", routingKey, err)
	}

	metrics.EventsPublished.WithLabelValues(routingKey).Inc()
	p.logger.Debug("published message", "routing_key", routingKey, "message_id", msg.MessageId)
	return nil
}

// PublishEnvelope publishes an envelope under its own event type, recording
// the given causal parents. This is the narrow surface the command manager
// consumes.
func (p *Publisher) PublishEnvelope(ctx context.Context, env *events.EventEnvelope, parents []uuid.UUID) error {
	return p.Publish(ctx, env.EventType, env,
		WithEventID(env.EventID),
		WithParents(parents...))
}

// recordCorrelation schedules the correlation edge write and waits for it at
// most correlationTimeout. The write is fire-and-forget past that bound: it
// is not cancelled, merely no longer awaited, and its outcome never affects
// the publish.
func (p *Publisher) recordCorrelation(ctx context.Context, eventID uuid.UUID, parents []uuid.UUID, md map[string]any) {
	if p.tracker == nil || eventID == uuid.Nil || len(parents) == 0 {
		return
	}

	done := make(chan error, 1)
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.correlationTimeout)
	go func() {
		defer cancel()
		done <- p.tracker.AddCorrelation(writeCtx, eventID, parents, md)
	}()

	select {
	case err := <-done:
		// A degraded tracker no-ops the write: neither a success nor a
		// failure, so no counter moves.
		switch {
		case err != nil:
			metrics.CorrelationWriteFailures.Inc()
			p.logger.Error("correlation tracking failed", "event_id", eventID, "error", err)
		case p.tracker.Enabled():
			metrics.CorrelationWrites.Inc()
		}
	case <-time.After(p.correlationTimeout):
		metrics.CorrelationWriteTimeouts.Inc()
		p.logger.Warn("correlation tracking timed out", "event_id", eventID)
	}
}

// GenerateEventID derives a deterministic event id from the event type and
// named uniqueness fields (see correlation.DeriveIDFromFields).
//
// It returns ErrTrackingDisabled when the publisher was constructed without
// correlation tracking: derivation itself needs no store, but the two
// features share one operational flag.
func (p *Publisher) GenerateEventID(eventType string, fields map[string]string) (uuid.UUID, error) {
	if p.tracker == nil {
		return uuid.Nil, ErrTrackingDisabled
	}
	return correlation.DeriveIDFromFields(eventType, fields), nil
}

// TrackingEnabled reports whether the publisher carries a correlation
// tracker. The tracker itself may still be degraded.
func (p *Publisher) TrackingEnabled() bool {
	return p.tracker != nil
}

// Tracker exposes the underlying correlation tracker, or nil when tracking
// is disabled. Intended for debug tooling.
func (p *Publisher) Tracker() *correlation.Tracker {
	return p.tracker
}

// CorrelationChain returns the correlation chain for an event.
// Returns ErrTrackingDisabled when tracking is off.
func (p *Publisher) CorrelationChain(ctx context.Context, id uuid.UUID, direction correlation.Direction, maxDepth int) ([]uuid.UUID, error) {
	if p.tracker == nil {
		return nil, ErrTrackingDisabled
	}
	return p.tracker.Chain(ctx, id, direction, maxDepth)
}

// DebugCorrelation returns the full correlation dump for an event.
// Returns ErrTrackingDisabled when tracking is off.
func (p *Publisher) DebugCorrelation(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	if p.tracker == nil {
		return nil, ErrTrackingDisabled
	}
	return p.tracker.DebugDump(ctx, id), nil
}

// extractEventID pulls an event id out of a message body when the caller did
// not pass one explicitly.
func extractEventID(body any) uuid.UUID {
	switch v := body.(type) {
	case *events.EventEnvelope:
		return v.EventID
	case events.EventEnvelope:
		return v.EventID
	case map[string]any:
		if s, ok := v["event_id"].(string); ok {
			if id, err := uuid.Parse(s); err == nil {
				return id
			}
		}
	}
	return uuid.Nil
}
