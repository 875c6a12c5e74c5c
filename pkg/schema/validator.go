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

// Package schema validates event payloads against JSON Schemas kept on
// disk.
//
// Schemas live under a root directory, one per event type, grouped by
// domain:
//
//	<dir>/<domain>/events/<event_type>.v1.schema.json
//
// with <event_type>.schema.json accepted as a fallback. A missing schema is
// a validation failure in strict mode and a pass-through otherwise, so
// deployments can adopt schemas domain by domain.
package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/delorenj/bloodbank/pkg/events"
)

// Result is the outcome of validating one payload.
type Result struct {
	// Valid reports whether the payload passed.
	Valid bool

	// Errors lists human-readable validation failures. Empty when Valid.
	Errors []string

	// SchemaPath is the schema file used, or empty when none was found.
	SchemaPath string
}

// Validator validates payloads against per-event-type schemas. Compiled
// schemas are cached; a Validator is safe for concurrent use.
type Validator struct {
	dir    string
	strict bool
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates a validator rooted at dir. In strict mode an event
// type without a schema fails validation instead of passing through.
func NewValidator(dir string, strict bool, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		dir:    dir,
		strict: strict,
		logger: logger.With("component", "schema-validator"),
		cache:  make(map[string]*jsonschema.Schema),
	}
}

// schemaPath locates the schema file for an event type, or "" when none
// exists.
func (v *Validator) schemaPath(eventType string) string {
	domain, _, ok := strings.Cut(eventType, ".")
	if !ok {
		return ""
	}
	candidates := []string{
		filepath.Join(v.dir, domain, "events", eventType+".v1.schema.json"),
		filepath.Join(v.dir, domain, "events", eventType+".schema.json"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (v *Validator) compiled(path string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cache[path]; ok {
		return s, nil
	}
	s, err := jsonschema.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to compile %q: %w", path, err)
	}
	v.cache[path] = s
	return s, nil
}

// ValidatePayload validates a raw JSON payload against the schema for
// eventType.
func (v *Validator) ValidatePayload(eventType string, payload json.RawMessage) Result {
	path := v.schemaPath(eventType)
	if path == "" {
		if v.strict {
			return Result{
				Valid:  false,
				Errors: []string{fmt.Sprintf("no schema found for event type %q", eventType)},
			}
		}
		v.logger.Debug("no schema for event type, skipping validation", "event_type", eventType)
		return Result{Valid: true}
	}

	s, err := v.compiled(path)
	if err != nil {
		return Result{Valid: false, Errors: []string{err.Error()}, SchemaPath: path}
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Result{
			Valid:      false,
			Errors:     []string{fmt.Sprintf("payload is not valid JSON: %v", err)},
			SchemaPath: path,
		}
	}

	if err := s.Validate(doc); err != nil {
		return Result{Valid: false, Errors: flatten(err), SchemaPath: path}
	}
	return Result{Valid: true, SchemaPath: path}
}

// ValidateEnvelope checks envelope-level requirements and then the payload
// schema.
func (v *Validator) ValidateEnvelope(env *events.EventEnvelope) Result {
	var errs []string
	if env.EventType == "" {
		errs = append(errs, "envelope is missing event_type")
	}
	if env.Version == "" {
		errs = append(errs, "envelope is missing version")
	}
	if env.Source.Host == "" {
		errs = append(errs, "envelope source is missing host")
	}
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}
	return v.ValidatePayload(env.EventType, env.Payload)
}

// flatten renders a jsonschema validation error as a flat list of messages,
// one per leaf cause.
func flatten(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return msgs
}
