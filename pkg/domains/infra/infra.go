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

// Package infra defines the event payloads for infrastructure ticket
// dispatch. DispatchRequestPayload is invokable: consuming it applies the
// Ready-gate rules to a Plane issue update and emits a correlated
// infra.dispatch.completed event carrying the dispatch instructions, or an
// infra.dispatch.failed event when the ticket cannot be routed.
package infra

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/delorenj/bloodbank/pkg/events"
	"github.com/delorenj/bloodbank/pkg/events/command"
	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// Name is the domain segment of this package's event types.
const Name = "infra"

// Routing keys.
const (
	EventDispatchRequest   = "infra.dispatch.request"
	EventDispatchCompleted = "infra.dispatch.completed"
	EventDispatchFailed    = "infra.dispatch.failed"
)

// dispatcherApp identifies the dispatcher as the source of the side-effect
// events it emits.
const dispatcherApp = "bloodbank-infra-dispatcher"

// Ready-gate defaults, applied when the request carries none.
var (
	defaultReadyStates = []string{"unstarted"}
	defaultReadyLabels = []string{"ready", "automation-go"}
)

const defaultComponentPrefix = "comp"

// Issue is the subset of a Plane issue the dispatcher evaluates.
type Issue struct {
	ID                string   `json:"id"`
	Identifier        string   `json:"identifier,omitempty"` // e.g. "INFRA-42"
	SequenceID        int      `json:"sequence_id,omitempty"`
	ProjectIdentifier string   `json:"project_identifier,omitempty"`
	Name              string   `json:"name,omitempty"`
	State             string   `json:"state,omitempty"`
	Labels            []string `json:"labels,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	URL               string   `json:"url,omitempty"`
}

// DispatchRequestPayload asks the dispatcher to evaluate one issue update.
//
// An issue qualifies for dispatch when its state is one of ReadyStates and it
// carries at least one of ReadyLabels; updates that do not qualify produce no
// side effects at all. Component routing is read from the first label with
// the component prefix (e.g. "comp:storage" routes to "storage").
type DispatchRequestPayload struct {
	Event       string `json:"event"`  // e.g. "issue"
	Action      string `json:"action"` // "create" or "update"
	WorkspaceID string `json:"workspace_id,omitempty"`
	Issue       Issue  `json:"issue"`

	ReadyStates          []string `json:"ready_states,omitempty"`
	ReadyLabels          []string `json:"ready_labels,omitempty"`
	ComponentLabelPrefix string   `json:"component_label_prefix,omitempty"`
}

// DispatchCompletedPayload reports a ticket handed to a worker route.
type DispatchCompletedPayload struct {
	TicketRef   string   `json:"ticket_ref"`
	Title       string   `json:"title"`
	State       string   `json:"state"`
	Labels      []string `json:"labels,omitempty"`
	Component   string   `json:"component"`
	Fingerprint string   `json:"fingerprint"`
	URL         string   `json:"url,omitempty"`
	WorkspaceID string   `json:"workspace_id,omitempty"`

	// Message is the rendered dispatch instruction block.
	Message string `json:"message"`
}

// DispatchFailedPayload reports a ready ticket that could not be routed.
type DispatchFailedPayload struct {
	TicketRef string   `json:"ticket_ref"`
	Reason    string   `json:"reason"`
	Labels    []string `json:"labels,omitempty"`
}

var tokenCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeToken lowercases a label or state and collapses everything
// non-alphanumeric to single dashes, so "Automation:GO" and "automation-go"
// compare equal.
func normalizeToken(s string) string {
	s = tokenCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}

func normalizeAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if token := normalizeToken(s); token != "" {
			out = append(out, token)
		}
	}
	return out
}

// ticketRef renders the human-facing ticket reference.
func (i Issue) ticketRef() string {
	if i.Identifier != "" {
		return i.Identifier
	}
	if i.ProjectIdentifier != "" && i.SequenceID > 0 {
		return fmt.Sprintf("%s-%d", i.ProjectIdentifier, i.SequenceID)
	}
	if i.ID != "" {
		return i.ID
	}
	return "(unknown-ticket)"
}

// component returns the route named by the first component-prefixed label,
// or "" when none is present.
func component(labels []string, prefix string) string {
	normalized := normalizeToken(prefix)
	if normalized == "" {
		normalized = defaultComponentPrefix
	}
	for _, label := range labels {
		if rest, ok := strings.CutPrefix(label, normalized+"-"); ok && rest != "" {
			return rest
		}
	}
	return ""
}

// fingerprint identifies one logical ticket update, so repeated deliveries
// of the same update can be deduplicated downstream.
func (p *DispatchRequestPayload) fingerprint(state string, labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	updated := p.Issue.UpdatedAt
	if updated == "" {
		updated = p.Issue.CreatedAt
	}
	return fmt.Sprintf("%s:%s:%s:%s",
		strings.ToLower(p.Action), updated, state, strings.Join(sorted, ","))
}

func buildDispatchMessage(p *DispatchCompletedPayload) string {
	labels := "(none)"
	if len(p.Labels) > 0 {
		labels = strings.Join(p.Labels, ", ")
	}
	url := p.URL
	if url == "" {
		url = "(not provided)"
	}
	lines := []string{
		"Team Infra dispatch event.",
		"",
		"Ticket: " + p.TicketRef,
		"Title: " + p.Title,
		"State: " + p.State,
		"Labels: " + labels,
		"Component route: " + p.Component,
		"Ticket URL: " + url,
		"",
		"Dispatch policy:",
		"1) Delegate to the matching worker for the component route (or spawn focused subagents).",
		"2) Keep this run internal; return a concise dispatch summary only.",
	}
	return strings.Join(lines, "\n")
}

// Execute applies the Ready-gate rules to the issue update.
//
// Updates that are not ready (wrong event or action, missing issue id, state
// or labels outside the gate) are silently ignored: they are routine webhook
// traffic, not errors. Ready tickets emit exactly one side effect, completed
// or failed, correlated to the triggering event.
func (p *DispatchRequestPayload) Execute(ctx context.Context, cmdCtx command.Context, out *command.EventCollector) error {
	if !strings.EqualFold(p.Event, "issue") {
		return nil
	}
	action := strings.ToLower(p.Action)
	if action != "create" && action != "update" {
		return nil
	}
	if p.Issue.ID == "" {
		return nil
	}

	state := normalizeToken(p.Issue.State)
	labels := normalizeAll(p.Issue.Labels)

	readyStates := p.ReadyStates
	if len(readyStates) == 0 {
		readyStates = defaultReadyStates
	}
	if !contains(normalizeAll(readyStates), state) {
		return nil
	}

	readyLabels := normalizeAll(p.ReadyLabels)
	if len(readyLabels) == 0 {
		readyLabels = defaultReadyLabels
	}
	if !intersects(labels, readyLabels) {
		return nil
	}

	ref := p.Issue.ticketRef()
	route := component(labels, p.ComponentLabelPrefix)
	if route == "" {
		return p.emit(cmdCtx, out, EventDispatchFailed, &DispatchFailedPayload{
			TicketRef: ref,
			Reason:    "no component route: add a comp:<component> label",
			Labels:    labels,
		})
	}

	title := strings.TrimSpace(p.Issue.Name)
	if title == "" {
		title = "(untitled)"
	}
	completed := &DispatchCompletedPayload{
		TicketRef:   ref,
		Title:       title,
		State:       state,
		Labels:      labels,
		Component:   route,
		Fingerprint: p.fingerprint(state, labels),
		URL:         p.Issue.URL,
		WorkspaceID: p.WorkspaceID,
	}
	completed.Message = buildDispatchMessage(completed)
	return p.emit(cmdCtx, out, EventDispatchCompleted, completed)
}

func (p *DispatchRequestPayload) emit(cmdCtx command.Context, out *command.EventCollector, eventType string, payload any) error {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	env, err := events.NewEnvelope(eventType, payload,
		events.NewSource(host, events.TriggerHook, dispatcherApp),
		events.WithCorrelationIDs(cmdCtx.CorrelationID))
	if err != nil {
		return fmt.Errorf("infra: failed to build %s envelope: %w", eventType, err)
	}
	out.Add(env)
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if contains(b, s) {
			return true
		}
	}
	return false
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventDispatchRequest:   func() any { return &DispatchRequestPayload{} },
		EventDispatchCompleted: func() any { return &DispatchCompletedPayload{} },
		EventDispatchFailed:    func() any { return &DispatchFailedPayload{} },
	}
}
