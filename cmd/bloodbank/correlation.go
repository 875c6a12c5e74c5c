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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/delorenj/bloodbank/pkg/correlation"
)

var (
	chainDirection string
	chainMaxDepth  int
)

// correlationCmd is the parent command for correlation operations.
var correlationCmd = &cobra.Command{
	Use:   "correlation",
	Short: "Correlation graph operations",
	Long: `Inspect the correlation graph that links events to their causes.

Available subcommands:
  show    Show all correlation data for one event
  chain   Walk the ancestor or descendant chain of one event`,
}

// correlationShowCmd dumps everything known about one event's edges.
var correlationShowCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Show all correlation data for an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runCorrelationShow,
}

// correlationChainCmd walks the chain in one direction.
var correlationChainCmd = &cobra.Command{
	Use:   "chain <event-id>",
	Short: "Walk the correlation chain of an event",
	Long: `Walk the correlation chain of an event, depth-first.

Examples:
  # Everything that led to this event
  bloodbank correlation chain 4bf3...d1 --direction ancestors

  # Everything this event caused
  bloodbank correlation chain 4bf3...d1 --direction descendants`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrelationChain,
}

func init() {
	correlationChainCmd.Flags().StringVar(&chainDirection, "direction", "ancestors",
		"Traversal direction: ancestors or descendants")
	correlationChainCmd.Flags().IntVar(&chainMaxDepth, "max-depth", correlation.DefaultMaxDepth,
		"Maximum traversal depth")

	correlationCmd.AddCommand(correlationShowCmd)
	correlationCmd.AddCommand(correlationChainCmd)
	rootCmd.AddCommand(correlationCmd)
}

// buildTracker connects a standalone tracker for read-only queries.
func buildTracker(cmd *cobra.Command) (*correlation.Tracker, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Redis.EnableCorrelationTracking {
		return nil, fmt.Errorf("correlation tracking is disabled in the configuration")
	}

	tracker := correlation.NewTracker(correlation.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.CorrelationTTL(),
		Logger:   slog.Default(),
	})
	tracker.Start(cmd.Context())
	if !tracker.Enabled() {
		return nil, fmt.Errorf("correlation store at %s is unreachable", cfg.Redis.Addr())
	}
	return tracker, nil
}

func runCorrelationShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%q is not a valid event id: %w", args[0], err)
	}

	tracker, err := buildTracker(cmd)
	if err != nil {
		return err
	}
	defer tracker.Close()

	dump := tracker.DebugDump(cmd.Context(), id)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}

func runCorrelationChain(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%q is not a valid event id: %w", args[0], err)
	}

	tracker, err := buildTracker(cmd)
	if err != nil {
		return err
	}
	defer tracker.Close()

	chain, err := tracker.Chain(cmd.Context(), id, correlation.Direction(chainDirection), chainMaxDepth)
	if err != nil {
		return err
	}

	if len(chain) == 0 {
		fmt.Printf("no %s for %s\n", chainDirection, id)
		return nil
	}
	for _, link := range chain {
		fmt.Println(link)
	}
	return nil
}
