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

package agentthread

// Feedback routing keys. Requests are consumed by the external
// agent-feedback-router service, not by the in-process command executor, so
// neither payload is invokable here.
const (
	EventFeedbackRequested = "agent.feedback.requested"
	EventFeedbackResponse  = "agent.feedback.response"
)

// FeedbackRequestedPayload asks a specific agent for mid-session feedback.
type FeedbackRequestedPayload struct {
	AgentID      string         `json:"agent_id"` // registry id of the agent
	Message      string         `json:"message"`
	LettaAgentID string         `json:"letta_agent_id,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
}

// FeedbackResponsePayload carries the agent's answer, correlated back to the
// request via the envelope's correlation ids.
type FeedbackResponsePayload struct {
	AgentID      string         `json:"agent_id"`
	LettaAgentID string         `json:"letta_agent_id,omitempty"`
	Response     string         `json:"response"`
	Status       string         `json:"status"` // "ok" or "error"
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
