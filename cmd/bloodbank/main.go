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

// bloodbank is the event bus service and CLI.
//
// The serve command runs the HTTP ingress, the process command runs the
// command processor, and the remaining subcommands are operator utilities
// for publishing events and inspecting correlation chains.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/delorenj/bloodbank/pkg/core/config"
	"github.com/delorenj/bloodbank/pkg/core/logging"
)

var (
	flagConfig   string
	flagLogLevel string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "bloodbank",
	Short: "Event bus with causation tracking and idempotent publication",
	Long: `bloodbank publishes and consumes typed events over RabbitMQ with
deterministic event ids for idempotency and a Redis-backed correlation
graph that links every event to the events that caused it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Path to YAML configuration file (env: BLOODBANK_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"Log level: ERROR, WARNING, INFO, DEBUG, TRACE (overrides config)")
}

// loadConfig loads configuration and installs the process-wide logger.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("BLOODBANK_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	slog.SetDefault(logging.NewLogger(level))
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
