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

// Package metrics defines the Prometheus instrumentation for the event
// spine. Counters are registered on the default registry and exposed on the
// HTTP API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts messages successfully handed to the broker.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbank_events_published_total",
		Help: "Events successfully published to the broker, by routing key.",
	}, []string{"routing_key"})

	// PublishFailures counts broker publish calls that returned an error.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_publish_failures_total",
		Help: "Broker publish calls that failed and were surfaced to the caller.",
	})

	// CorrelationWrites counts correlation edges recorded successfully.
	CorrelationWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_correlation_writes_total",
		Help: "Correlation edges recorded in the store.",
	})

	// CorrelationWriteFailures counts store errors during edge recording.
	// These are logged and swallowed; non-zero values mean causation data
	// is being lost, not that delivery is affected.
	CorrelationWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_correlation_write_failures_total",
		Help: "Correlation edge writes that failed.",
	})

	// CorrelationWriteTimeouts counts edge writes abandoned by the publish
	// hot path after the bounded wait elapsed. The write itself may still
	// complete in the background.
	CorrelationWriteTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_correlation_write_timeouts_total",
		Help: "Correlation edge writes that exceeded the publish-path bound.",
	})

	// CommandsExecuted counts invokable payloads handed to execution.
	CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbank_commands_executed_total",
		Help: "Command executions started, by event type.",
	}, []string{"event_type"})

	// CommandsFailed counts command executions that raised.
	CommandsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbank_commands_failed_total",
		Help: "Command executions that failed, by event type.",
	}, []string{"event_type"})

	// SideEffectsPublished counts envelopes collected from command
	// executions and published with a causal link to their trigger.
	SideEffectsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_side_effects_published_total",
		Help: "Side-effect envelopes published by the command manager.",
	})
)
