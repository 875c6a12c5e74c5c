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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delorenj/bloodbank/pkg/bus"
	"github.com/delorenj/bloodbank/pkg/events/registry"
)

type promptPayload struct {
	Prompt string `json:"prompt"`
}

// newTestServer builds an API server whose publisher has no broker
// connection; only handlers that do not reach the broker are exercised.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register("llm.prompt", func() any { return &promptPayload{} }))

	publisher := bus.NewPublisher(bus.Options{Exchange: "test.exchange"})
	server := NewServer("127.0.0.1:0", "bloodbank-test", publisher, reg, nil, nil)
	return server.Routes()
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(t), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "bloodbank-test", body["service"])
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(t), http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Domains map[string][]string `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"llm.prompt"}, body.Domains["llm"])
}

func TestPublishEvent_UnknownType(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(t), http.MethodPost,
		"/events/unknown.event.type", `{"payload":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishEvent_BadRequests(t *testing.T) {
	t.Parallel()
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/events/llm.prompt", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/events/llm.prompt", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "payload is required")

	rec = doRequest(t, handler, http.MethodPost, "/events/llm.prompt",
		`{"payload":{"prompt":"hi"},"event_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugCorrelation_TrackingDisabled(t *testing.T) {
	t.Parallel()
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodGet,
		"/debug/correlation/4bf3a1a2-0000-0000-0000-000000000001", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, handler, http.MethodGet,
		"/debug/correlation/4bf3a1a2-0000-0000-0000-000000000001/chain", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorBodiesCarryDetail(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(t), http.MethodPost,
		"/events/unknown.event.type", `{"payload":{}}`)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["detail"], "unknown.event.type")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(t), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
