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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/delorenj/bloodbank/pkg/api"
	"github.com/delorenj/bloodbank/pkg/bus"
	"github.com/delorenj/bloodbank/pkg/core/config"
	"github.com/delorenj/bloodbank/pkg/correlation"
	"github.com/delorenj/bloodbank/pkg/domains"
	"github.com/delorenj/bloodbank/pkg/events/registry"
	"github.com/delorenj/bloodbank/pkg/schema"
)

// serveCmd runs the HTTP ingress.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP event ingress",
	Long: `Run the HTTP API that accepts event publications, validates payloads
against their schemas, publishes them to the topic exchange and exposes
the correlation debug endpoints.

Examples:
  # Serve with defaults (localhost broker and store)
  bloodbank serve

  # Serve with a config file and verbose logging
  bloodbank serve --config /etc/bloodbank/config.yaml --log-level DEBUG`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildPublisher wires a bus publisher from the loaded configuration.
func buildPublisher(cfg *config.Config) *bus.Publisher {
	return bus.NewPublisher(bus.Options{
		URL:                       cfg.Rabbit.URL,
		Exchange:                  cfg.Rabbit.ExchangeName,
		EnableCorrelationTracking: cfg.Redis.EnableCorrelationTracking,
		Redis: correlation.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CorrelationTTL(),
		},
		Logger: slog.Default(),
	})
}

// buildRegistry creates the type registry with every domain registered.
func buildRegistry() *registry.Registry {
	reg := registry.New()
	domains.RegisterAll(reg, slog.Default())
	return reg
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := buildPublisher(cfg)
	defer publisher.Close()

	if err := publisher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	var validator *schema.Validator
	if cfg.Schema.Dir != "" {
		validator = schema.NewValidator(cfg.Schema.Dir, cfg.Schema.Strict, slog.Default())
	}

	server := api.NewServer(cfg.HTTP.Addr(), cfg.ServiceName, publisher, buildRegistry(), validator, slog.Default())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	slog.Info("bloodbank ingress started",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"addr", cfg.HTTP.Addr(),
		"exchange", cfg.Rabbit.ExchangeName,
		"correlation_tracking", cfg.Redis.EnableCorrelationTracking)

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
