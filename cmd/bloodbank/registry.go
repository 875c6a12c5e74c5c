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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/delorenj/bloodbank/pkg/events/command"
)

// eventsCmd lists the registered event catalog.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List registered event types",
	Long: `List every registered event type, grouped by domain. Invokable
event types (commands) are marked.`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(_ *cobra.Command, _ []string) error {
	reg := buildRegistry()

	invokable := make(map[string]bool)
	for _, eventType := range command.InvokableEventTypes(reg) {
		invokable[eventType] = true
	}

	for _, domain := range reg.Domains() {
		eventTypes, err := reg.Events(domain)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", domain)
		for _, eventType := range eventTypes {
			marker := ""
			if invokable[eventType] {
				marker = "  (command)"
			}
			fmt.Printf("  %s%s\n", eventType, marker)
		}
	}
	return nil
}
