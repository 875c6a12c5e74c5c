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

package correlation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DefaultNamespace is the id-derivation namespace shared by all bloodbank
// producers. Changing it changes every derived id, so treat it as part of the
// wire contract.
const DefaultNamespace = "bloodbank"

// DeriveID generates a deterministic event id for idempotency.
//
// The id is a name-based (version 5, SHA-1) UUID over
// "namespace:event_type:unique_key" in the OID namespace. Same inputs always
// yield the same id, across processes and restarts; no I/O is involved.
// Consumers can dedupe on the event id without broker support.
func DeriveID(eventType, uniqueKey string) uuid.UUID {
	return DeriveIDInNamespace(DefaultNamespace, eventType, uniqueKey)
}

// DeriveIDInNamespace is DeriveID with an explicit namespace, for callers
// that need to prevent collisions across deployments.
func DeriveIDInNamespace(namespace, eventType, uniqueKey string) uuid.UUID {
	name := namespace + ":" + eventType + ":" + uniqueKey
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

// DeriveIDFromFields generates a deterministic event id from named fields.
//
// Field names are sorted before concatenation so that field order never
// changes the derived id:
//
//	DeriveIDFromFields("fireflies.transcript.upload", map[string]string{
//	    "meeting_id": "abc123",
//	    "user_id":    "user_456",
//	})
func DeriveIDFromFields(eventType string, fields map[string]string) uuid.UUID {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, fields[name]))
	}
	return DeriveID(eventType, strings.Join(parts, "|"))
}
