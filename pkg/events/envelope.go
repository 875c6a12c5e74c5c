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

// Package events defines the event envelope, the unit of transport on the
// bloodbank bus.
//
// Every message on the wire is one UTF-8 JSON serialized EventEnvelope. The
// envelope carries routing and causation metadata around a typed,
// domain-specific payload; the payload itself stays opaque to the transport.
//
// Versioning strategy:
//   - Bump EnvelopeVersion for breaking changes to the envelope structure
//   - Payload schemas evolve independently (add optional fields)
//   - For breaking payload changes, create a new event type (e.g. ".v2")
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version of the envelope shape itself,
// independent of payload evolution.
const EnvelopeVersion = "1.0.0"

// TriggerType describes how an event was triggered.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"     // Human-initiated
	TriggerAgent     TriggerType = "agent"      // AI agent triggered
	TriggerScheduled TriggerType = "scheduled"  // Cron/timer triggered
	TriggerFileWatch TriggerType = "file_watch" // File system event
	TriggerHook      TriggerType = "hook"       // External webhook
)

// ParseTriggerType converts a string to a TriggerType, falling back to
// TriggerManual for unknown values rather than failing envelope construction.
func ParseTriggerType(s string) TriggerType {
	switch TriggerType(s) {
	case TriggerManual, TriggerAgent, TriggerScheduled, TriggerFileWatch, TriggerHook:
		return TriggerType(s)
	default:
		return TriggerManual
	}
}

// Source identifies who or what produced an event.
type Source struct {
	// Host is the machine that generated the event.
	Host string `json:"host"`

	// Type records how the event was triggered.
	Type TriggerType `json:"type"`

	// App is the producing application name, if known.
	App string `json:"app,omitempty"`

	// Meta carries additional free-form context.
	Meta map[string]any `json:"meta,omitempty"`
}

// NewSource builds a Source with the given host, trigger and app name.
func NewSource(host string, trigger TriggerType, app string) Source {
	return Source{Host: host, Type: trigger, App: app}
}

// AgentType names known agent kinds in the ecosystem.
type AgentType string

const (
	AgentClaudeCode AgentType = "claude-code"
	AgentClaudeChat AgentType = "claude-chat"
	AgentGeminiCLI  AgentType = "gemini-cli"
	AgentLetta      AgentType = "letta"
	AgentCustom     AgentType = "custom"
)

// CodeState is a git context snapshot for an agent's working environment.
type CodeState struct {
	RepoURL        string `json:"repo_url,omitempty"`
	Branch         string `json:"branch,omitempty"`
	WorkingDiff    string `json:"working_diff,omitempty"` // Unstaged changes
	BranchDiff     string `json:"branch_diff,omitempty"`  // Diff vs main
	LastCommitHash string `json:"last_commit_hash,omitempty"`
}

// AgentContext is rich metadata about an AI agent, attached when the
// envelope's trigger kind is TriggerAgent.
type AgentContext struct {
	Type           AgentType      `json:"type"`
	Name           string         `json:"name,omitempty"`          // Agent's persona/name
	SystemPrompt   string         `json:"system_prompt,omitempty"` // Initial system prompt
	InstanceID     string         `json:"instance_id,omitempty"`   // Unique session identifier
	MCPServers     []string       `json:"mcp_servers,omitempty"`   // Connected MCP servers
	FileReferences []string       `json:"file_references,omitempty"`
	URLReferences  []string       `json:"url_references,omitempty"`
	CodeState      *CodeState     `json:"code_state,omitempty"`
	CheckpointID   string         `json:"checkpoint_id,omitempty"` // For checkpoint-based agents
	Meta           map[string]any `json:"meta,omitempty"`
}

// EventEnvelope wraps every event on the bus.
//
// EventID is assigned once at construction and never mutated. The parent list
// in CorrelationIDs is likewise fixed at construction: publishing appends
// edges to the correlation store, not to the envelope.
type EventEnvelope struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"` // Routing key, e.g. "fireflies.transcript.ready"
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"` // Envelope schema version
	Source    Source    `json:"source"`

	// CorrelationIDs lists the event ids that causally precede this one.
	CorrelationIDs []uuid.UUID `json:"correlation_ids"`

	// AgentContext is set when Source.Type is TriggerAgent.
	AgentContext *AgentContext `json:"agent_context,omitempty"`

	// Payload is the typed, domain-specific body, kept as raw JSON so the
	// transport never depends on payload shapes. Use the type registry to
	// rehydrate it.
	Payload json.RawMessage `json:"payload"`
}

// Option customizes envelope construction.
type Option func(*EventEnvelope)

// WithEventID sets an explicit event id, typically a deterministic one
// derived via the correlation package.
func WithEventID(id uuid.UUID) Option {
	return func(e *EventEnvelope) { e.EventID = id }
}

// WithCorrelationIDs sets the parent event ids for causation tracking.
func WithCorrelationIDs(ids ...uuid.UUID) Option {
	return func(e *EventEnvelope) { e.CorrelationIDs = append(e.CorrelationIDs, ids...) }
}

// WithCorrelationStrings parses string parent ids, skipping entries that are
// not valid UUIDs. Correlation is best-effort: one malformed parent must not
// reject the whole envelope.
func WithCorrelationStrings(ids ...string) Option {
	return func(e *EventEnvelope) {
		for _, raw := range ids {
			if id, err := uuid.Parse(raw); err == nil {
				e.CorrelationIDs = append(e.CorrelationIDs, id)
			}
		}
	}
}

// WithAgentContext attaches agent metadata to the envelope.
func WithAgentContext(ac *AgentContext) Option {
	return func(e *EventEnvelope) { e.AgentContext = ac }
}

// NewEnvelope creates a properly-formed event envelope.
//
// The payload is serialized immediately; a random event id and the current
// UTC time are assigned unless overridden via options.
func NewEnvelope(eventType string, payload any, source Source, opts ...Option) (*EventEnvelope, error) {
	if eventType == "" {
		return nil, fmt.Errorf("events: event type must not be empty")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: failed to serialize payload for %q: %w", eventType, err)
	}

	env := &EventEnvelope{
		EventID:        uuid.New(),
		EventType:      eventType,
		Timestamp:      time.Now().UTC(),
		Version:        EnvelopeVersion,
		Source:         source,
		CorrelationIDs: []uuid.UUID{},
		Payload:        raw,
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}

// ParseEnvelope decodes a wire message into an envelope.
func ParseEnvelope(data []byte) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: failed to decode envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("events: envelope is missing event_type")
	}
	return &env, nil
}
