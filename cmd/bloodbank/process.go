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
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/delorenj/bloodbank/pkg/bus"
	"github.com/delorenj/bloodbank/pkg/events/command"
)

var processQueue string

// processCmd runs the command processor.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the command processor",
	Long: `Consume invokable events from the bus and execute them.

The processor binds a durable queue to every registered event type whose
payload is invokable, executes each consumed command and publishes the
events it emits as side effects correlated to the triggering event.

Examples:
  # Process commands with the default queue name
  bloodbank process

  # Use a dedicated queue so multiple processors shard independently
  bloodbank process --queue bloodbank-agents`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processQueue, "queue", "",
		"Durable queue name (default: the service name)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := buildRegistry()
	routingKeys := command.InvokableEventTypes(reg)
	if len(routingKeys) == 0 {
		return fmt.Errorf("no invokable event types are registered, nothing to process")
	}

	publisher := buildPublisher(cfg)
	defer publisher.Close()

	if err := publisher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	manager := command.NewManager(reg, publisher, slog.Default())

	queue := processQueue
	if queue == "" {
		queue = cfg.ServiceName
	}
	consumer := bus.NewConsumer(bus.ConsumerOptions{
		URL:      cfg.Rabbit.URL,
		Exchange: cfg.Rabbit.ExchangeName,
		Queue:    queue,
		Logger:   slog.Default(),
	})

	slog.Info("command processor started",
		"queue", queue,
		"routing_keys", routingKeys)

	if err := consumer.Run(ctx, routingKeys, manager.HandleRaw); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
