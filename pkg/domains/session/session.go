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

// Package session defines the telemetry payloads of coding-agent CLI
// sessions: lifecycle, messages, tool invocations, thinking and errors.
package session

import (
	"time"

	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// Name is the domain segment of this package's event types.
const Name = "session"

// Routing keys.
const (
	EventThreadStart     = "session.thread.start"
	EventThreadEnd       = "session.thread.end"
	EventThreadMessage   = "session.thread.message"
	EventThreadError     = "session.thread.error"
	EventAgentToolAction = "session.thread.agent.action"
	EventAgentThinking   = "session.thread.agent.thinking"
)

// ToolUseMetadata describes one tool invocation.
type ToolUseMetadata struct {
	ToolName        string         `json:"tool_name"`
	ToolInput       map[string]any `json:"tool_input"`
	ExecutionTimeMS int            `json:"execution_time_ms,omitempty"`
	Success         bool           `json:"success"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	OutputPreview   string         `json:"output_preview,omitempty"`
}

// ThreadStartPayload marks the creation of a session.
type ThreadStartPayload struct {
	SessionID        string    `json:"session_id"`
	ThreadID         string    `json:"thread_id,omitempty"`
	WorkingDirectory string    `json:"working_directory"`
	GitBranch        string    `json:"git_branch,omitempty"`
	GitRemote        string    `json:"git_remote,omitempty"`
	Model            string    `json:"model"`
	UserPrompt       string    `json:"user_prompt,omitempty"`
	ContextFiles     []string  `json:"context_files,omitempty"`
	MCPServers       []string  `json:"mcp_servers,omitempty"`
	StartedAt        time.Time `json:"started_at"`
}

// ThreadEndPayload is the final event of a session, carrying its totals.
type ThreadEndPayload struct {
	SessionID        string         `json:"session_id"`
	ThreadID         string         `json:"thread_id,omitempty"`
	EndReason        string         `json:"end_reason"` // "user_stop", "timeout", "error", "completion"
	DurationSeconds  int            `json:"duration_seconds,omitempty"`
	TotalTurns       int            `json:"total_turns"`
	TotalTokens      int            `json:"total_tokens,omitempty"`
	TotalCostUSD     float64        `json:"total_cost_usd,omitempty"`
	ToolsUsed        map[string]int `json:"tools_used,omitempty"`
	FilesModified    []string       `json:"files_modified,omitempty"`
	GitCommits       []string       `json:"git_commits,omitempty"`
	FinalStatus      string         `json:"final_status"` // "success", "error", "partial", "abandoned"
	Summary          string         `json:"summary,omitempty"`
	WorkingDirectory string         `json:"working_directory,omitempty"`
	GitBranch        string         `json:"git_branch,omitempty"`
}

// ThreadMessagePayload is a single user or assistant turn.
type ThreadMessagePayload struct {
	SessionID        string   `json:"session_id"`
	ThreadID         string   `json:"thread_id,omitempty"`
	Role             string   `json:"role"` // "user" or "assistant"
	Content          string   `json:"content"`
	TurnNumber       int      `json:"turn_number"`
	Tokens           int      `json:"tokens,omitempty"`
	Model            string   `json:"model,omitempty"`
	ThinkingIncluded bool     `json:"thinking_included"`
	ToolCalls        []string `json:"tool_calls,omitempty"`
}

// ThreadErrorPayload reports an error raised during a session.
type ThreadErrorPayload struct {
	SessionID    string `json:"session_id"`
	ThreadID     string `json:"thread_id,omitempty"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	StackTrace   string `json:"stack_trace,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	Recoverable  bool   `json:"recoverable"`
	TurnNumber   int    `json:"turn_number,omitempty"`
}

// AgentToolActionPayload records one tool invocation with its surrounding
// workspace state, enough for replay and analysis.
type AgentToolActionPayload struct {
	SessionID        string          `json:"session_id"`
	ThreadID         string          `json:"thread_id,omitempty"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	ToolMetadata     ToolUseMetadata `json:"tool_metadata"`
	WorkingDirectory string          `json:"working_directory,omitempty"`
	GitBranch        string          `json:"git_branch,omitempty"`
	GitStatus        string          `json:"git_status,omitempty"`
	FilesInContext   []string        `json:"files_in_context,omitempty"`
	TurnNumber       int             `json:"turn_number,omitempty"`
	Model            string          `json:"model,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
}

// AgentThinkingPayload captures emitted reasoning tokens.
type AgentThinkingPayload struct {
	SessionID          string `json:"session_id"`
	ThreadID           string `json:"thread_id,omitempty"`
	ThinkingText       string `json:"thinking_text"`
	ThinkingDurationMS int    `json:"thinking_duration_ms,omitempty"`
	TurnNumber         int    `json:"turn_number,omitempty"`
	TriggeredByTool    string `json:"triggered_by_tool,omitempty"`
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventThreadStart:     func() any { return &ThreadStartPayload{} },
		EventThreadEnd:       func() any { return &ThreadEndPayload{} },
		EventThreadMessage:   func() any { return &ThreadMessagePayload{} },
		EventThreadError:     func() any { return &ThreadErrorPayload{} },
		EventAgentToolAction: func() any { return &AgentToolActionPayload{} },
		EventAgentThinking:   func() any { return &AgentThinkingPayload{} },
	}
}
