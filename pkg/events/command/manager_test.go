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

package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delorenj/bloodbank/pkg/events"
	"github.com/delorenj/bloodbank/pkg/events/registry"
)

// fakePublisher records published side effects.
type fakePublisher struct {
	published []publishedEnvelope
	err       error
}

type publishedEnvelope struct {
	env     *events.EventEnvelope
	parents []uuid.UUID
}

func (f *fakePublisher) PublishEnvelope(_ context.Context, env *events.EventEnvelope, parents []uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedEnvelope{env: env, parents: parents})
	return nil
}

// plainPayload is data only, not invokable.
type plainPayload struct {
	Message string `json:"message"`
}

// echoCommand emits one response event per execution.
type echoCommand struct {
	Prompt string `json:"prompt"`
}

func (c *echoCommand) Execute(_ context.Context, cmdCtx Context, out *EventCollector) error {
	env, err := events.NewEnvelope("test.echo.response",
		map[string]string{"echo": c.Prompt},
		events.NewSource("test-host", events.TriggerAgent, "test"),
		events.WithCorrelationIDs(cmdCtx.CorrelationID))
	if err != nil {
		return err
	}
	out.Add(env)
	return nil
}

// failingCommand always fails and records its rollback.
type failingCommand struct {
	Prompt string `json:"prompt"`
}

var rollbackCalls int

func (c *failingCommand) Execute(context.Context, Context, *EventCollector) error {
	return errors.New("boom")
}

func (c *failingCommand) Rollback(context.Context, Context) {
	rollbackCalls++
}

func newTestManager(t *testing.T, pub SideEffectPublisher) (*Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("test.echo.prompt", func() any { return &echoCommand{} }))
	require.NoError(t, reg.Register("test.echo.response", func() any { return &plainPayload{} }))
	require.NoError(t, reg.Register("test.fail.prompt", func() any { return &failingCommand{} }))
	require.NoError(t, reg.Register("test.plain.data", func() any { return &plainPayload{} }))
	return NewManager(reg, pub, nil), reg
}

func triggerEnvelope(t *testing.T, eventType string, payload any) *events.EventEnvelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, payload,
		events.NewSource("test-host", events.TriggerManual, "test-suite"))
	require.NoError(t, err)
	return env
}

func TestManager_ExecutesAndLinksSideEffects(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	manager, _ := newTestManager(t, pub)

	trigger := triggerEnvelope(t, "test.echo.prompt", map[string]string{"prompt": "hello"})
	require.NoError(t, manager.Handle(context.Background(), trigger))

	require.Len(t, pub.published, 1)
	sideEffect := pub.published[0]
	assert.Equal(t, "test.echo.response", sideEffect.env.EventType)
	assert.Equal(t, []uuid.UUID{trigger.EventID}, sideEffect.parents,
		"side effects must be causally linked to the triggering event")
	assert.Equal(t, []uuid.UUID{trigger.EventID}, sideEffect.env.CorrelationIDs)
}

func TestManager_UnknownEventTypeIsSkipped(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	manager, _ := newTestManager(t, pub)

	trigger := triggerEnvelope(t, "unknown.event.type", nil)
	assert.NoError(t, manager.Handle(context.Background(), trigger),
		"unknown event types must not poison-loop the processor")
	assert.Empty(t, pub.published)
}

func TestManager_PlainPayloadPassesThrough(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	manager, _ := newTestManager(t, pub)

	trigger := triggerEnvelope(t, "test.plain.data", plainPayload{Message: "just data"})
	assert.NoError(t, manager.Handle(context.Background(), trigger))
	assert.Empty(t, pub.published, "non-invokable payloads are not executed")
}

func TestManager_UndecodablePayloadFails(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	manager, _ := newTestManager(t, pub)

	trigger := triggerEnvelope(t, "test.echo.prompt", nil)
	trigger.Payload = []byte(`{"prompt": 42}`)

	assert.Error(t, manager.Handle(context.Background(), trigger))
}

func TestManager_FailureRollsBackAndPropagates(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	manager, _ := newTestManager(t, pub)

	before := rollbackCalls
	trigger := triggerEnvelope(t, "test.fail.prompt", map[string]string{"prompt": "x"})

	err := manager.Handle(context.Background(), trigger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, before+1, rollbackCalls, "rollback must run before the error propagates")
	assert.Empty(t, pub.published)
}

func TestManager_SideEffectPublishFailure(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: fmt.Errorf("broker down")}
	manager, _ := newTestManager(t, pub)

	trigger := triggerEnvelope(t, "test.echo.prompt", map[string]string{"prompt": "hi"})
	err := manager.Handle(context.Background(), trigger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestManager_HandleRawDropsMalformedMessages(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	manager, _ := newTestManager(t, pub)

	assert.NoError(t, manager.HandleRaw(context.Background(), "test.echo.prompt", []byte("garbage")),
		"undecodable wire data is dropped, not redelivered")
}

func TestInvokableEventTypes(t *testing.T) {
	t.Parallel()

	_, reg := newTestManager(t, &fakePublisher{})
	assert.Equal(t, []string{"test.echo.prompt", "test.fail.prompt"}, InvokableEventTypes(reg))
}

func TestEventCollector(t *testing.T) {
	t.Parallel()

	var c EventCollector
	assert.Zero(t, c.Count())

	env := triggerEnvelope(t, "test.echo.response", nil)
	c.Add(env)
	assert.Equal(t, 1, c.Count())

	collected := c.Collect()
	require.Len(t, collected, 1)
	assert.Same(t, env, collected[0])
	assert.Zero(t, c.Count(), "Collect drains the collector")
}
