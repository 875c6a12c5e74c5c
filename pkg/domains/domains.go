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

// Package domains is the compile-time catalog of event domains. A new
// domain ships by adding its RoutingKeys() to the catalog here; nothing is
// discovered by scanning.
package domains

import (
	"log/slog"

	"github.com/delorenj/bloodbank/pkg/domains/agentthread"
	"github.com/delorenj/bloodbank/pkg/domains/artifact"
	"github.com/delorenj/bloodbank/pkg/domains/fireflies"
	"github.com/delorenj/bloodbank/pkg/domains/github"
	"github.com/delorenj/bloodbank/pkg/domains/infra"
	"github.com/delorenj/bloodbank/pkg/domains/llm"
	"github.com/delorenj/bloodbank/pkg/domains/session"
	"github.com/delorenj/bloodbank/pkg/domains/theboard"
	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// catalog lists every domain's routing key bindings.
var catalog = []func() map[string]registry.TypeFactory{
	agentthread.RoutingKeys,
	artifact.RoutingKeys,
	fireflies.RoutingKeys,
	github.RoutingKeys,
	infra.RoutingKeys,
	llm.RoutingKeys,
	session.RoutingKeys,
	theboard.RoutingKeys,
}

// RegisterAll registers every domain in the catalog on the registry.
// A conflicting binding is logged and skipped rather than aborting startup:
// the already-registered type wins.
func RegisterAll(reg *registry.Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, routingKeys := range catalog {
		for eventType, factory := range routingKeys() {
			if err := reg.Register(eventType, factory); err != nil {
				logger.Warn("skipping conflicting event type registration",
					"event_type", eventType,
					"error", err)
			}
		}
	}
}
