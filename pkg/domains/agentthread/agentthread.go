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

// Package agentthread defines the event payloads for agent thread
// interactions. ThreadPromptPayload is invokable: consuming it executes the
// prompt and emits an agent.thread.response event correlated to it.
package agentthread

import (
	"context"
	"fmt"
	"os"

	"github.com/delorenj/bloodbank/pkg/events"
	"github.com/delorenj/bloodbank/pkg/events/command"
	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// Name is the domain segment of this package's event types.
const Name = "agent"

// Routing keys.
const (
	EventThreadPrompt   = "agent.thread.prompt"
	EventThreadResponse = "agent.thread.response"
	EventThreadError    = "agent.thread.error"
)

// executorApp identifies the command executor as the source of side-effect
// events it emits.
const executorApp = "bloodbank-command-executor"

// ThreadResponsePayload records an agent's answer to a prompt.
type ThreadResponsePayload struct {
	Provider string `json:"provider"`
	// PromptID is deprecated; use the envelope's correlation ids.
	PromptID   string `json:"prompt_id,omitempty"`
	Response   string `json:"response"`
	Model      string `json:"model,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// ThreadErrorPayload records a failed agent interaction.
type ThreadErrorPayload struct {
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	ErrorMessage string `json:"error_message"`
	ErrorCode    string `json:"error_code,omitempty"`
	IsRetryable  bool   `json:"is_retryable"`
	RetryCount   int    `json:"retry_count"`
}

// ThreadPromptPayload is a prompt sent to an agent thread. Consuming it
// executes the prompt; the response is emitted as a correlated
// agent.thread.response event.
type ThreadPromptPayload struct {
	Provider   string   `json:"provider"` // e.g. "anthropic", "openai"
	Model      string   `json:"model,omitempty"`
	Prompt     string   `json:"prompt"`
	Project    string   `json:"project,omitempty"` // Git project name
	WorkingDir string   `json:"working_dir,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Execute runs the prompt and collects the response event.
//
// TODO(delorenj): call the actual provider here; this echoes the prompt
// until the provider client lands.
func (p *ThreadPromptPayload) Execute(ctx context.Context, cmdCtx command.Context, out *command.EventCollector) error {
	responseText := fmt.Sprintf("Echoing your prompt: %s", p.Prompt)

	response := &ThreadResponsePayload{
		Provider:   p.Provider,
		PromptID:   cmdCtx.CorrelationID.String(), // Legacy field
		Response:   responseText,
		Model:      p.Model,
		TokensUsed: 42,
		DurationMS: 100,
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	source := events.NewSource(host, events.TriggerAgent, executorApp)

	env, err := events.NewEnvelope(EventThreadResponse, response, source,
		events.WithCorrelationIDs(cmdCtx.CorrelationID),
		events.WithAgentContext(cmdCtx.AgentContext))
	if err != nil {
		return fmt.Errorf("agentthread: failed to build response envelope: %w", err)
	}

	out.Add(env)
	return nil
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventThreadPrompt:      func() any { return &ThreadPromptPayload{} },
		EventThreadResponse:    func() any { return &ThreadResponsePayload{} },
		EventThreadError:       func() any { return &ThreadErrorPayload{} },
		EventFeedbackRequested: func() any { return &FeedbackRequestedPayload{} },
		EventFeedbackResponse:  func() any { return &FeedbackResponsePayload{} },
	}
}
