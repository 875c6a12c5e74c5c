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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveID_Deterministic(t *testing.T) {
	t.Parallel()

	a := DeriveID("fireflies.transcript.upload", "user_456|/data/standup.mp4")
	b := DeriveID("fireflies.transcript.upload", "user_456|/data/standup.mp4")

	assert.Equal(t, a, b, "same inputs must derive the same id")
	assert.NotEqual(t, uuid.Nil, a)
	assert.Equal(t, uuid.Version(5), a.Version(), "derived ids are name-based v5 UUIDs")
}

func TestDeriveID_DistinctInputs(t *testing.T) {
	t.Parallel()

	base := DeriveID("llm.prompt", "key-1")

	assert.NotEqual(t, base, DeriveID("llm.prompt", "key-2"),
		"different keys must derive different ids")
	assert.NotEqual(t, base, DeriveID("llm.response", "key-1"),
		"different event types must derive different ids")
}

func TestDeriveIDInNamespace_IsolatesDeployments(t *testing.T) {
	t.Parallel()

	prod := DeriveIDInNamespace("prod", "llm.prompt", "key-1")
	staging := DeriveIDInNamespace("staging", "llm.prompt", "key-1")

	assert.NotEqual(t, prod, staging)
	assert.Equal(t, DeriveID("llm.prompt", "key-1"),
		DeriveIDInNamespace(DefaultNamespace, "llm.prompt", "key-1"))
}

func TestDeriveIDFromFields_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := DeriveIDFromFields("github.pr.created", map[string]string{
		"repo_owner": "delorenj",
		"repo_name":  "trinote",
		"pr_number":  "423",
	})
	b := DeriveIDFromFields("github.pr.created", map[string]string{
		"pr_number":  "423",
		"repo_name":  "trinote",
		"repo_owner": "delorenj",
	})

	assert.Equal(t, a, b, "field order must not change the derived id")
}

func TestDeriveIDFromFields_MatchesJoinedForm(t *testing.T) {
	t.Parallel()

	fromFields := DeriveIDFromFields("github.pr.created", map[string]string{
		"b": "2",
		"a": "1",
	})
	fromKey := DeriveID("github.pr.created", "a=1|b=2")

	require.Equal(t, fromKey, fromFields,
		"field form must reduce to the sorted k=v joined key")
}

func TestDeriveID_RawKeyIsNotAField(t *testing.T) {
	t.Parallel()

	key := "user_456|/data/standup.mp4"
	raw := DeriveID("fireflies.transcript.upload", key)
	wrapped := DeriveIDFromFields("fireflies.transcript.upload",
		map[string]string{"unique_key": key})

	assert.NotEqual(t, raw, wrapped,
		"a raw key hashes as-is; wrapping it in a field name changes the id")
}
