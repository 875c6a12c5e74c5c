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

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/delorenj/bloodbank/pkg/correlation"
	"github.com/delorenj/bloodbank/pkg/events"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": s.serviceName,
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	byDomain := make(map[string][]string)
	for _, domain := range s.registry.Domains() {
		eventTypes, err := s.registry.Events(domain)
		if err != nil {
			continue
		}
		byDomain[domain] = eventTypes
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"domains": byDomain})
}

// publishRequest is the POST /events/{event_type} body.
type publishRequest struct {
	Payload json.RawMessage `json:"payload"`

	// CorrelationIDs are parent event ids as strings; invalid entries are
	// skipped rather than rejecting the request.
	CorrelationIDs []string `json:"correlation_ids,omitempty"`

	// EventID overrides the random event id, typically with a
	// deterministically derived one.
	EventID string `json:"event_id,omitempty"`

	Trigger      string               `json:"trigger,omitempty"`
	App          string               `json:"app,omitempty"`
	AgentContext *events.AgentContext `json:"agent_context,omitempty"`
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	eventType := r.PathValue("event_type")
	if !s.registry.IsRegistered(eventType) {
		s.writeError(w, http.StatusNotFound, "unknown event type: "+eventType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req publishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if len(req.Payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	if s.validator != nil {
		result := s.validator.ValidatePayload(eventType, req.Payload)
		if !result.Valid {
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"detail": "payload failed schema validation",
				"errors": result.Errors,
			})
			return
		}
	}

	source := events.NewSource(clientHost(r), events.ParseTriggerType(req.Trigger), req.App)

	opts := []events.Option{events.WithCorrelationStrings(req.CorrelationIDs...)}
	if req.EventID != "" {
		id, err := uuid.Parse(req.EventID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "event_id is not a valid UUID")
			return
		}
		opts = append(opts, events.WithEventID(id))
	}
	if req.AgentContext != nil {
		opts = append(opts, events.WithAgentContext(req.AgentContext))
	}

	env, err := events.NewEnvelope(eventType, req.Payload, source, opts...)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.publisher.PublishEnvelope(r.Context(), env, env.CorrelationIDs); err != nil {
		s.logger.Error("publish failed", "event_type", eventType, "error", err)
		s.writeError(w, http.StatusBadGateway, "failed to publish event")
		return
	}

	s.writeJSON(w, http.StatusAccepted, env)
}

func (s *Server) handleDebugCorrelation(w http.ResponseWriter, r *http.Request) {
	if !s.publisher.TrackingEnabled() {
		s.writeError(w, http.StatusServiceUnavailable, "correlation tracking is disabled")
		return
	}

	id, err := uuid.Parse(r.PathValue("event_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "event_id is not a valid UUID")
		return
	}

	dump, err := s.publisher.DebugCorrelation(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if empty(dump) {
		s.writeError(w, http.StatusNotFound, "no correlation data for "+id.String())
		return
	}
	s.writeJSON(w, http.StatusOK, dump)
}

func (s *Server) handleCorrelationChain(w http.ResponseWriter, r *http.Request) {
	if !s.publisher.TrackingEnabled() {
		s.writeError(w, http.StatusServiceUnavailable, "correlation tracking is disabled")
		return
	}

	id, err := uuid.Parse(r.PathValue("event_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "event_id is not a valid UUID")
		return
	}

	direction := correlation.Direction(strings.ToLower(r.URL.Query().Get("direction")))
	if direction == "" {
		direction = correlation.DirectionAncestors
	}

	maxDepth := correlation.DefaultMaxDepth
	if raw := r.URL.Query().Get("max_depth"); raw != "" {
		maxDepth, err = strconv.Atoi(raw)
		if err != nil || maxDepth <= 0 {
			s.writeError(w, http.StatusBadRequest, "max_depth must be a positive integer")
			return
		}
	}

	chain, err := s.publisher.CorrelationChain(r.Context(), id, direction, maxDepth)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"event_id":  id,
		"direction": direction,
		"chain":     chain,
		"count":     len(chain),
	})
}

// empty reports whether a correlation dump carries no edges.
func empty(dump map[string]any) bool {
	for _, key := range []string{"parents", "children"} {
		if ids, ok := dump[key].([]string); ok && len(ids) > 0 {
			return false
		}
	}
	return true
}
