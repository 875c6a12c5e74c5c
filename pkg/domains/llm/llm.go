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

// Package llm defines the event payloads for LLM interactions: prompt,
// response and error, with responses and errors correlated back to the
// prompt that caused them.
package llm

import "github.com/delorenj/bloodbank/pkg/events/registry"

// Name is the domain segment of this package's event types.
const Name = "llm"

// Routing keys.
const (
	EventPrompt   = "llm.prompt"
	EventResponse = "llm.response"
	EventError    = "llm.error"
)

// PromptPayload records a prompt sent to an LLM provider.
type PromptPayload struct {
	Provider   string   `json:"provider"` // e.g. "anthropic", "openai"
	Model      string   `json:"model,omitempty"`
	Prompt     string   `json:"prompt"`
	Project    string   `json:"project,omitempty"` // Git project name
	WorkingDir string   `json:"working_dir,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// ResponsePayload records the provider's answer to a prompt.
type ResponsePayload struct {
	Provider string `json:"provider"`
	// PromptID is deprecated; use the envelope's correlation ids.
	PromptID   string `json:"prompt_id,omitempty"`
	Response   string `json:"response"`
	Model      string `json:"model,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// ErrorPayload records a failed LLM call.
type ErrorPayload struct {
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	ErrorMessage string `json:"error_message"`
	ErrorCode    string `json:"error_code,omitempty"`
	IsRetryable  bool   `json:"is_retryable"`
	RetryCount   int    `json:"retry_count"`
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventPrompt:   func() any { return &PromptPayload{} },
		EventResponse: func() any { return &ResponsePayload{} },
		EventError:    func() any { return &ErrorPayload{} },
	}
}
