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

// Package fireflies defines the event payloads of the Fireflies meeting
// transcription pipeline: upload request, transcription ready webhook,
// RAG ingestion completion and failure reporting.
package fireflies

import (
	"time"

	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// Name is the domain segment of this package's event types.
const Name = "fireflies"

// Routing keys.
const (
	EventTranscriptUpload    = "fireflies.transcript.upload"
	EventTranscriptReady     = "fireflies.transcript.ready"
	EventTranscriptProcessed = "fireflies.transcript.processed"
	EventTranscriptFailed    = "fireflies.transcript.failed"
)

// Sentiment classifies a transcript sentence.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// AIFilters is AI-extracted metadata for one sentence.
type AIFilters struct {
	TextCleanup string    `json:"text_cleanup"`
	Task        string    `json:"task,omitempty"`
	Pricing     string    `json:"pricing,omitempty"`
	Metric      string    `json:"metric,omitempty"`
	Question    string    `json:"question,omitempty"`
	DateAndTime string    `json:"date_and_time,omitempty"`
	Sentiment   Sentiment `json:"sentiment"`
}

// TranscriptSentence is a single sentence of the transcript.
type TranscriptSentence struct {
	Index       int       `json:"index"`
	SpeakerName string    `json:"speaker_name,omitempty"`
	SpeakerID   int       `json:"speaker_id"`
	RawText     string    `json:"raw_text"`
	Text        string    `json:"text"` // Cleaned version
	StartTime   float64   `json:"start_time"`
	EndTime     float64   `json:"end_time"`
	AIFilters   AIFilters `json:"ai_filters"`
}

// MeetingParticipant is one participant of the meeting.
type MeetingParticipant struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// User is the Fireflies account that owns the transcript.
type User struct {
	UserID          string  `json:"user_id"`
	Email           string  `json:"email"`
	Name            string  `json:"name"`
	NumTranscripts  int     `json:"num_transcripts"`
	MinutesConsumed float64 `json:"minutes_consumed"`
	IsAdmin         bool    `json:"is_admin"`
}

// TranscriptUploadPayload requests media upload for transcription.
//
// Deterministic event ids use unique key "{user_id}|{file_path}".
type TranscriptUploadPayload struct {
	MediaFile            string    `json:"media_file"` // Path or URL
	MediaDurationSeconds int       `json:"media_duration_seconds"`
	MediaType            string    `json:"media_type"` // e.g. "audio/mpeg"
	Title                string    `json:"title,omitempty"`
	UserID               string    `json:"user_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// TranscriptReadyPayload is the webhook payload Fireflies sends when
// transcription completes. It carries the full transcript so consumers need
// no follow-up API calls.
type TranscriptReadyPayload struct {
	ID       string    `json:"id"` // Fireflies transcript id
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Duration float64   `json:"duration"` // Minutes

	TranscriptURL string `json:"transcript_url"`
	AudioURL      string `json:"audio_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`

	Sentences []TranscriptSentence `json:"sentences"`
	Summary   string               `json:"summary,omitempty"`

	Participants []MeetingParticipant `json:"participants,omitempty"`
	Speakers     []string             `json:"speakers,omitempty"`

	User           User   `json:"user"`
	HostEmail      string `json:"host_email"`
	OrganizerEmail string `json:"organizer_email"`
	Privacy        string `json:"privacy"` // e.g. "link", "private"

	MeetingLink  string `json:"meeting_link,omitempty"`
	CalendarID   string `json:"calendar_id,omitempty"`
	CalendarType string `json:"calendar_type,omitempty"`

	// RawMeetingInfo keeps the full webhook meeting_info object for
	// extensibility.
	RawMeetingInfo map[string]any `json:"raw_meeting_info,omitempty"`
}

// TranscriptProcessedPayload reports RAG ingestion of a transcript.
type TranscriptProcessedPayload struct {
	TranscriptID       string         `json:"transcript_id"`
	RAGDocumentID      string         `json:"rag_document_id"`
	Title              string         `json:"title"`
	IngestionTimestamp time.Time      `json:"ingestion_timestamp"`
	SentenceCount      int            `json:"sentence_count"`
	SpeakerCount       int            `json:"speaker_count"`
	DurationMinutes    float64        `json:"duration_minutes"`
	VectorStore        string         `json:"vector_store"` // e.g. "chroma"
	ChunkCount         int            `json:"chunk_count"`
	EmbeddingModel     string         `json:"embedding_model,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// FailedStage names the pipeline stage a failure occurred in.
type FailedStage string

const (
	StageUpload        FailedStage = "upload"
	StageTranscription FailedStage = "transcription"
	StageProcessing    FailedStage = "processing"
)

// TranscriptFailedPayload reports a pipeline failure at any stage.
type TranscriptFailedPayload struct {
	FailedStage  FailedStage    `json:"failed_stage"`
	ErrorMessage string         `json:"error_message"`
	ErrorCode    string         `json:"error_code,omitempty"`
	TranscriptID string         `json:"transcript_id,omitempty"` // Absent when upload failed
	MediaFile    string         `json:"media_file,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	RetryCount   int            `json:"retry_count"`
	IsRetryable  bool           `json:"is_retryable"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventTranscriptUpload:    func() any { return &TranscriptUploadPayload{} },
		EventTranscriptReady:     func() any { return &TranscriptReadyPayload{} },
		EventTranscriptProcessed: func() any { return &TranscriptProcessedPayload{} },
		EventTranscriptFailed:    func() any { return &TranscriptFailedPayload{} },
	}
}
