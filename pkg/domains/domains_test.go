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

package domains

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delorenj/bloodbank/pkg/domains/agentthread"
	"github.com/delorenj/bloodbank/pkg/domains/artifact"
	"github.com/delorenj/bloodbank/pkg/domains/fireflies"
	"github.com/delorenj/bloodbank/pkg/domains/github"
	"github.com/delorenj/bloodbank/pkg/domains/infra"
	"github.com/delorenj/bloodbank/pkg/domains/llm"
	"github.com/delorenj/bloodbank/pkg/domains/session"
	"github.com/delorenj/bloodbank/pkg/domains/theboard"
	"github.com/delorenj/bloodbank/pkg/events"
	"github.com/delorenj/bloodbank/pkg/events/command"
	"github.com/delorenj/bloodbank/pkg/events/registry"
)

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	RegisterAll(reg, nil)

	assert.Equal(t,
		[]string{"agent", "artifact", "fireflies", "github", "infra", "llm", "session", "theboard"},
		reg.Domains())

	for _, eventType := range []string{
		agentthread.EventThreadPrompt,
		agentthread.EventThreadResponse,
		agentthread.EventThreadError,
		agentthread.EventFeedbackRequested,
		agentthread.EventFeedbackResponse,
		artifact.EventCreated,
		artifact.EventUpdated,
		artifact.EventDeleted,
		artifact.EventIngestionFailed,
		fireflies.EventTranscriptUpload,
		fireflies.EventTranscriptReady,
		fireflies.EventTranscriptProcessed,
		fireflies.EventTranscriptFailed,
		github.EventPRCreated,
		infra.EventDispatchRequest,
		infra.EventDispatchCompleted,
		infra.EventDispatchFailed,
		llm.EventPrompt,
		llm.EventResponse,
		llm.EventError,
		session.EventThreadStart,
		session.EventThreadEnd,
		session.EventThreadMessage,
		session.EventThreadError,
		session.EventAgentToolAction,
		session.EventAgentThinking,
		theboard.EventMeetingCreated,
		theboard.EventMeetingCompleted,
		theboard.EventRoundCompleted,
	} {
		assert.True(t, reg.IsRegistered(eventType), "missing %s", eventType)
	}
}

func TestRegisterAll_Idempotent(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	RegisterAll(reg, nil)
	before := reg.AllEvents()

	// Re-registering the catalog must not fail or change anything.
	RegisterAll(reg, nil)
	assert.Equal(t, before, reg.AllEvents())
}

func TestInvokableCatalog(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	RegisterAll(reg, nil)

	assert.Equal(t,
		[]string{agentthread.EventThreadPrompt, infra.EventDispatchRequest},
		command.InvokableEventTypes(reg),
		"only prompts and dispatch requests carry executable behavior")
}

func TestThreadPrompt_ExecuteCollectsResponse(t *testing.T) {
	t.Parallel()

	prompt := &agentthread.ThreadPromptPayload{
		Provider: "anthropic",
		Model:    "claude-sonnet-4",
		Prompt:   "hello",
	}
	trigger := uuid.New()
	cmdCtx := command.Context{
		CorrelationID: trigger,
		SourceApp:     "test",
		AgentContext:  &events.AgentContext{Type: events.AgentClaudeCode},
	}

	var out command.EventCollector
	require.NoError(t, prompt.Execute(context.Background(), cmdCtx, &out))

	collected := out.Collect()
	require.Len(t, collected, 1)
	env := collected[0]

	assert.Equal(t, agentthread.EventThreadResponse, env.EventType)
	assert.Equal(t, []uuid.UUID{trigger}, env.CorrelationIDs,
		"the response must be correlated to the prompt")
	assert.Equal(t, events.TriggerAgent, env.Source.Type)
	assert.Equal(t, cmdCtx.AgentContext, env.AgentContext)

	var resp agentthread.ThreadResponsePayload
	require.NoError(t, json.Unmarshal(env.Payload, &resp))
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Contains(t, resp.Response, "hello")
	assert.Equal(t, trigger.String(), resp.PromptID)
}

func TestGitHubDefaultCacheType(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	RegisterAll(reg, nil)

	payload, ok := reg.Resolve(github.EventPRCreated)
	require.True(t, ok)
	pr, ok := payload.(*github.PRCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, github.CacheRedis, pr.CacheType, "cache type defaults to redis")
}
