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

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/delorenj/bloodbank/pkg/events"
	"github.com/delorenj/bloodbank/pkg/events/registry"
	"github.com/delorenj/bloodbank/pkg/metrics"
)

// SideEffectPublisher publishes an envelope with the given causal parents.
// Satisfied by *bus.Publisher.
type SideEffectPublisher interface {
	PublishEnvelope(ctx context.Context, env *events.EventEnvelope, parents []uuid.UUID) error
}

// Manager dispatches consumed envelopes: it rehydrates the payload via the
// type registry, executes it when it is an Invokable, and publishes the
// collected side effects linked to the triggering event.
type Manager struct {
	registry  *registry.Registry
	publisher SideEffectPublisher
	logger    *slog.Logger
}

// NewManager creates a command manager.
func NewManager(reg *registry.Registry, publisher SideEffectPublisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:  reg,
		publisher: publisher,
		logger:    logger.With("component", "command-manager"),
	}
}

// Handle processes one consumed envelope.
//
// Unknown event types and non-invokable payloads are not errors: the bus
// carries plain data events too, and a processor must not poison-loop on
// them. An error is returned only when an invokable payload fails to decode,
// fails to execute, or a side effect fails to publish.
func (m *Manager) Handle(ctx context.Context, env *events.EventEnvelope) error {
	payload, ok := m.registry.Resolve(env.EventType)
	if !ok {
		m.logger.Warn("no registered type for event, skipping",
			"event_type", env.EventType,
			"event_id", env.EventID)
		return nil
	}

	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return fmt.Errorf("command: failed to decode %q payload: %w", env.EventType, err)
	}

	invokable, ok := payload.(Invokable)
	if !ok {
		m.logger.Debug("payload is not invokable, nothing to execute",
			"event_type", env.EventType,
			"event_id", env.EventID)
		return nil
	}

	cmdCtx := Context{
		CorrelationID: env.EventID,
		SourceApp:     env.Source.App,
		AgentContext:  env.AgentContext,
		Timestamp:     env.Timestamp,
	}

	metrics.CommandsExecuted.WithLabelValues(env.EventType).Inc()
	m.logger.Info("executing command",
		"event_type", env.EventType,
		"event_id", env.EventID)

	var collector EventCollector
	if err := invokable.Execute(ctx, cmdCtx, &collector); err != nil {
		metrics.CommandsFailed.WithLabelValues(env.EventType).Inc()
		if rb, ok := invokable.(RollbackHandler); ok {
			m.logger.Warn("command failed, rolling back",
				"event_type", env.EventType,
				"event_id", env.EventID,
				"error", err)
			rb.Rollback(ctx, cmdCtx)
		}
		return fmt.Errorf("command: %q execution failed: %w", env.EventType, err)
	}

	parents := []uuid.UUID{env.EventID}
	for _, sideEffect := range collector.Collect() {
		if err := m.publisher.PublishEnvelope(ctx, sideEffect, parents); err != nil {
			return fmt.Errorf("command: failed to publish side effect %q of %q: %w",
				sideEffect.EventType, env.EventType, err)
		}
		metrics.SideEffectsPublished.Inc()
		m.logger.Debug("published side effect",
			"event_type", sideEffect.EventType,
			"event_id", sideEffect.EventID,
			"parent", env.EventID)
	}
	return nil
}

// HandleRaw decodes a wire message and processes it via Handle. It is the
// bus.Handler the processor wires to the consumer.
func (m *Manager) HandleRaw(ctx context.Context, routingKey string, body []byte) error {
	env, err := events.ParseEnvelope(body)
	if err != nil {
		// Malformed wire data cannot become valid on redelivery.
		m.logger.Error("dropping undecodable message", "routing_key", routingKey, "error", err)
		return nil
	}
	return m.Handle(ctx, env)
}

// InvokableEventTypes returns the registered event types whose payloads
// implement Invokable, sorted. Processors use this to compute their routing
// key bindings at startup.
func InvokableEventTypes(reg *registry.Registry) []string {
	var invokable []string
	for _, eventType := range reg.AllEvents() {
		payload, ok := reg.Resolve(eventType)
		if !ok {
			continue
		}
		if _, ok := payload.(Invokable); ok {
			invokable = append(invokable, eventType)
		}
	}
	return invokable
}
