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

// Package theboard defines the event payloads of the multi-agent meeting
// orchestration system: meeting lifecycle, per-round progress, comment
// extraction and convergence detection.
package theboard

import (
	"github.com/google/uuid"

	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// Name is the domain segment of this package's event types.
const Name = "theboard"

// Routing keys.
const (
	EventMeetingCreated   = "theboard.meeting.created"
	EventMeetingStarted   = "theboard.meeting.started"
	EventRoundCompleted   = "theboard.meeting.round_completed"
	EventCommentExtracted = "theboard.meeting.comment_extracted"
	EventMeetingConverged = "theboard.meeting.converged"
	EventMeetingCompleted = "theboard.meeting.completed"
	EventMeetingFailed    = "theboard.meeting.failed"
)

// Strategy names a meeting turn-taking strategy.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyGreedy     Strategy = "greedy"
)

// MeetingCreatedPayload is emitted when a new meeting is initialized.
type MeetingCreatedPayload struct {
	MeetingID  uuid.UUID `json:"meeting_id"`
	Topic      string    `json:"topic"`
	Strategy   Strategy  `json:"strategy"`
	MaxRounds  int       `json:"max_rounds"`
	AgentCount int       `json:"agent_count,omitempty"`
}

// MeetingStartedPayload is emitted when a meeting begins execution.
type MeetingStartedPayload struct {
	MeetingID      uuid.UUID `json:"meeting_id"`
	SelectedAgents []string  `json:"selected_agents"`
	AgentCount     int       `json:"agent_count"`
}

// RoundCompletedPayload is emitted when one meeting round finishes.
type RoundCompletedPayload struct {
	MeetingID      uuid.UUID `json:"meeting_id"`
	RoundNum       int       `json:"round_num"`
	AgentName      string    `json:"agent_name"`
	ResponseLength int       `json:"response_length"`
	CommentCount   int       `json:"comment_count"`
	AvgNovelty     float64   `json:"avg_novelty"`
	TokensUsed     int       `json:"tokens_used"`
	Cost           float64   `json:"cost"`
}

// CommentExtractedPayload is emitted per comment extracted from an agent
// response.
type CommentExtractedPayload struct {
	MeetingID    uuid.UUID `json:"meeting_id"`
	RoundNum     int       `json:"round_num"`
	AgentName    string    `json:"agent_name"`
	CommentText  string    `json:"comment_text"`
	Category     string    `json:"category"` // e.g. "technical_decision", "risk"
	NoveltyScore float64   `json:"novelty_score"`
}

// MeetingConvergedPayload is emitted when the novelty average drops below
// the convergence threshold.
type MeetingConvergedPayload struct {
	MeetingID        uuid.UUID `json:"meeting_id"`
	RoundNum         int       `json:"round_num"`
	AvgNovelty       float64   `json:"avg_novelty"`
	NoveltyThreshold float64   `json:"novelty_threshold"`
	TotalComments    int       `json:"total_comments"`
}

// MeetingCompletedPayload is emitted when a meeting finishes successfully.
type MeetingCompletedPayload struct {
	MeetingID           uuid.UUID `json:"meeting_id"`
	TotalRounds         int       `json:"total_rounds"`
	TotalComments       int       `json:"total_comments"`
	TotalCost           float64   `json:"total_cost"`
	ConvergenceDetected bool      `json:"convergence_detected"`
	StoppingReason      string    `json:"stopping_reason"`
}

// MeetingFailedPayload is emitted when meeting execution fails.
type MeetingFailedPayload struct {
	MeetingID    uuid.UUID `json:"meeting_id"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	RoundNum     int       `json:"round_num,omitempty"`
	AgentName    string    `json:"agent_name,omitempty"`
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventMeetingCreated:   func() any { return &MeetingCreatedPayload{} },
		EventMeetingStarted:   func() any { return &MeetingStartedPayload{} },
		EventRoundCompleted:   func() any { return &RoundCompletedPayload{} },
		EventCommentExtracted: func() any { return &CommentExtractedPayload{} },
		EventMeetingConverged: func() any { return &MeetingConvergedPayload{} },
		EventMeetingCompleted: func() any { return &MeetingCompletedPayload{} },
		EventMeetingFailed:    func() any { return &MeetingFailedPayload{} },
	}
}
