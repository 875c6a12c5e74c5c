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

// Package command runs invokable event payloads and publishes the events
// they emit as causally-linked side effects.
//
// A payload type opts into execution by implementing Invokable; payloads
// that do not are plain data and flow through the manager untouched.
// Commands never publish directly: they add envelopes to an EventCollector,
// and the manager publishes the collected envelopes after the command
// returns, each linked to the triggering event.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/delorenj/bloodbank/pkg/events"
)

// Context carries the execution context of one triggering event into a
// command.
type Context struct {
	// CorrelationID is the id of the triggering event. Side effects are
	// published with this id as their causal parent.
	CorrelationID uuid.UUID

	// SourceApp is the producing application of the triggering event.
	SourceApp string

	// AgentContext is the triggering event's agent metadata, if any.
	AgentContext *events.AgentContext

	// Timestamp is the triggering event's timestamp.
	Timestamp time.Time
}

// Invokable marks a payload as executable. Implementations mutate nothing
// outside themselves and report outcomes exclusively through the collector
// and the returned error.
type Invokable interface {
	Execute(ctx context.Context, cmdCtx Context, out *EventCollector) error
}

// RollbackHandler is an optional capability of an Invokable: when Execute
// fails, Rollback runs before the error propagates. Rollback is best-effort
// compensation, not a transaction.
type RollbackHandler interface {
	Rollback(ctx context.Context, cmdCtx Context)
}

// EventCollector accumulates the envelopes a command emits during execution.
// The zero value is ready to use. A collector is owned by a single execution
// and is not safe for concurrent use.
type EventCollector struct {
	envelopes []*events.EventEnvelope
}

// Add queues an envelope for publication after the command completes.
func (c *EventCollector) Add(env *events.EventEnvelope) {
	c.envelopes = append(c.envelopes, env)
}

// Count returns the number of queued envelopes.
func (c *EventCollector) Count() int {
	return len(c.envelopes)
}

// Collect drains and returns the queued envelopes.
func (c *EventCollector) Collect() []*events.EventEnvelope {
	collected := c.envelopes
	c.envelopes = nil
	return collected
}
