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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/delorenj/bloodbank/pkg/bus"
	"github.com/delorenj/bloodbank/pkg/correlation"
	"github.com/delorenj/bloodbank/pkg/events"
)

var (
	publishPayloadFile    string
	publishCorrelationIDs []string
	publishUniqueKey      string
	publishApp            string
	publishTrigger        string
)

// publishCmd publishes one event from the command line.
var publishCmd = &cobra.Command{
	Use:   "publish <event-type>",
	Short: "Publish an event to the bus",
	Long: `Publish a single event envelope to the topic exchange.

The payload is read from --payload (a file path, or "-" for stdin) and
must be JSON matching the event type's payload shape. With --unique-key
the event id is derived deterministically, so re-running the same publish
produces the same id and consumers can deduplicate.

Examples:
  # Publish from a file
  bloodbank publish llm.prompt --payload prompt.json

  # Pipe a payload and link it to a parent event
  echo '{"provider":"anthropic","prompt":"hi"}' | \
    bloodbank publish llm.prompt --payload - \
    --correlation-id 4bf3...d1

  # Idempotent publication
  bloodbank publish fireflies.transcript.upload --payload u.json \
    --unique-key "user_456|/data/standup.mp4"`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishPayloadFile, "payload", "-",
		"Payload JSON file, or - for stdin")
	publishCmd.Flags().StringSliceVar(&publishCorrelationIDs, "correlation-id", nil,
		"Parent event id (repeatable)")
	publishCmd.Flags().StringVar(&publishUniqueKey, "unique-key", "",
		"Derive a deterministic event id from this key")
	publishCmd.Flags().StringVar(&publishApp, "app", "bloodbank-cli",
		"Source application name")
	publishCmd.Flags().StringVar(&publishTrigger, "trigger", "manual",
		"Trigger type: manual, agent, scheduled, file_watch, hook")
	rootCmd.AddCommand(publishCmd)
}

func readPayload(path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return data, nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	eventType := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !buildRegistry().IsRegistered(eventType) {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	payload, err := readPayload(publishPayloadFile)
	if err != nil {
		return err
	}

	publisher := buildPublisher(cfg)
	defer publisher.Close()

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	source := events.NewSource(host, events.ParseTriggerType(publishTrigger), publishApp)

	opts := []events.Option{events.WithCorrelationStrings(publishCorrelationIDs...)}
	if publishUniqueKey != "" {
		if !publisher.TrackingEnabled() {
			return fmt.Errorf("deterministic event ids need correlation tracking enabled: %w", bus.ErrTrackingDisabled)
		}
		// The flag carries the raw uniqueness key itself.
		opts = append(opts, events.WithEventID(correlation.DeriveID(eventType, publishUniqueKey)))
	}

	env, err := events.NewEnvelope(eventType, payload, source, opts...)
	if err != nil {
		return err
	}

	if err := publisher.PublishEnvelope(cmd.Context(), env, env.CorrelationIDs); err != nil {
		return err
	}

	fmt.Printf("published %s  event_id=%s\n", env.EventType, env.EventID)
	return nil
}
