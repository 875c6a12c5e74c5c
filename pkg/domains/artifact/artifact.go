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

// Package artifact defines the event payloads of the artifact lifecycle:
// files and documents entering or leaving the indexing pipeline.
package artifact

import "github.com/delorenj/bloodbank/pkg/events/registry"

// Name is the domain segment of this package's event types.
const Name = "artifact"

// Routing keys. Created, updated and deleted share one payload shape; the
// action is carried both in the routing key and in the payload.
const (
	EventCreated         = "artifact.created"
	EventUpdated         = "artifact.updated"
	EventDeleted         = "artifact.deleted"
	EventIngestionFailed = "artifact.ingestion.failed"
)

// Payload describes one artifact lifecycle change. Consumed by the file
// indexer, version control and the RAG ingestion service.
type Payload struct {
	Action   string         `json:"action"` // "created", "updated" or "deleted"
	Kind     string         `json:"kind"`   // e.g. "transcript", "code", "document"
	URI      string         `json:"uri"`    // file path or URL
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestionFailedPayload reports a failed RAG ingestion. Correlated back to
// the artifact.created or artifact.updated event that triggered it.
type IngestionFailedPayload struct {
	ArtifactURI  string `json:"artifact_uri"`
	ArtifactKind string `json:"artifact_kind"`
	ErrorMessage string `json:"error_message"`
	ErrorCode    string `json:"error_code,omitempty"`
	RetryCount   int    `json:"retry_count"`
	IsRetryable  bool   `json:"is_retryable"`
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventCreated:         func() any { return &Payload{} },
		EventUpdated:         func() any { return &Payload{} },
		EventDeleted:         func() any { return &Payload{} },
		EventIngestionFailed: func() any { return &IngestionFailedPayload{} },
	}
}
