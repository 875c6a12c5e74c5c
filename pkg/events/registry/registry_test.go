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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type promptPayload struct {
	Prompt string `json:"prompt"`
}

type responsePayload struct {
	Response string `json:"response"`
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	t.Parallel()

	reg := New()
	require.NoError(t, reg.Register("llm.prompt", func() any { return &promptPayload{} }))

	payload, ok := reg.Resolve("llm.prompt")
	require.True(t, ok)
	assert.IsType(t, &promptPayload{}, payload)
	assert.True(t, reg.IsRegistered("llm.prompt"))

	// Each resolve hands out a fresh value.
	other, _ := reg.Resolve("llm.prompt")
	assert.NotSame(t, payload, other)
}

func TestRegistry_UnknownType(t *testing.T) {
	t.Parallel()

	reg := New()
	_, ok := reg.Resolve("llm.prompt")
	assert.False(t, ok)
	assert.False(t, reg.IsRegistered("nodomain"))
}

func TestRegistry_MalformedEventType(t *testing.T) {
	t.Parallel()

	reg := New()
	assert.Error(t, reg.Register("noseparator", func() any { return &promptPayload{} }))
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := New()
	require.NoError(t, reg.Register("llm.prompt", func() any { return &promptPayload{} }))

	// Same shape again is a no-op.
	assert.NoError(t, reg.Register("llm.prompt", func() any { return &promptPayload{} }))

	// A different shape behind the same event type is rejected.
	err := reg.Register("llm.prompt", func() any { return &responsePayload{} })
	assert.Error(t, err, "rebinding an event type to another payload shape must fail")
}

func TestRegistry_DomainGrouping(t *testing.T) {
	t.Parallel()

	reg := New()
	require.NoError(t, reg.Register("llm.response", func() any { return &responsePayload{} }))
	require.NoError(t, reg.Register("llm.prompt", func() any { return &promptPayload{} }))
	require.NoError(t, reg.Register("github.pr.created", func() any { return &promptPayload{} }))

	assert.Equal(t, []string{"github", "llm"}, reg.Domains())

	llmEvents, err := reg.Events("llm")
	require.NoError(t, err)
	assert.Equal(t, []string{"llm.prompt", "llm.response"}, llmEvents, "events are sorted")

	_, err = reg.Events("fireflies")
	assert.Error(t, err)

	assert.Equal(t, []string{"github.pr.created", "llm.prompt", "llm.response"}, reg.AllEvents())
}

func TestDomain_AddAndEvents(t *testing.T) {
	t.Parallel()

	d := NewDomain("llm")
	assert.Equal(t, "llm", d.Name())
	require.NoError(t, d.Add("llm.prompt", func() any { return &promptPayload{} }))
	assert.Error(t, d.Add("llm.prompt", func() any { return &responsePayload{} }))
	assert.Error(t, d.Add("llm.other", nil))

	payload, ok := d.PayloadType("llm.prompt")
	require.True(t, ok)
	assert.IsType(t, &promptPayload{}, payload)

	_, ok = d.PayloadType("llm.response")
	assert.False(t, ok)
}

func TestRegistry_RegisterDomain(t *testing.T) {
	t.Parallel()

	d := NewDomain("llm")
	require.NoError(t, d.Add("llm.prompt", func() any { return &promptPayload{} }))
	require.NoError(t, d.Add("llm.response", func() any { return &responsePayload{} }))

	reg := New()
	require.NoError(t, reg.RegisterDomain(d))
	assert.True(t, reg.IsRegistered("llm.prompt"))
	assert.True(t, reg.IsRegistered("llm.response"))
}
