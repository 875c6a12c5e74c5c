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

// Package api exposes the HTTP ingress for the event bus: event publication
// for producers that cannot speak AMQP, correlation debugging, health and
// metrics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delorenj/bloodbank/pkg/bus"
	"github.com/delorenj/bloodbank/pkg/events/registry"
	"github.com/delorenj/bloodbank/pkg/schema"
)

// Server is the HTTP API for the event bus.
type Server struct {
	addr        string
	serviceName string
	publisher   *bus.Publisher
	registry    *registry.Registry
	validator   *schema.Validator
	logger      *slog.Logger
}

// NewServer creates the API server. The validator may be nil to disable
// payload validation.
func NewServer(addr, serviceName string, publisher *bus.Publisher, reg *registry.Registry, validator *schema.Validator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:        addr,
		serviceName: serviceName,
		publisher:   publisher,
		registry:    reg,
		validator:   validator,
		logger:      logger.With("component", "api"),
	}
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("POST /events/{event_type}", s.handlePublishEvent)
	mux.HandleFunc("GET /debug/correlation/{event_id}", s.handleDebugCorrelation)
	mux.HandleFunc("GET /debug/correlation/{event_id}/chain", s.handleCorrelationChain)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// writeJSON serializes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError emits a {"detail": ...} error body.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// clientHost extracts the requesting host for event source attribution.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
