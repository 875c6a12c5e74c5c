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

// Package github defines the event payloads for GitHub activity.
package github

import "github.com/delorenj/bloodbank/pkg/events/registry"

// Name is the domain segment of this package's event types.
const Name = "github"

// EventPRCreated is published when a pull request is created.
const EventPRCreated = "github.pr.created"

// CacheType names where referenced PR data is stored.
type CacheType string

const (
	CacheRedis  CacheType = "redis"
	CacheMemory CacheType = "memory"
	CacheFile   CacheType = "file"
)

// PRCreatedPayload announces a new pull request. PR details live in a cache
// and are referenced by key rather than inlined, keeping the event small.
//
// Deterministic event ids use unique key "{repo_owner}|{repo_name}|{pr_number}".
type PRCreatedPayload struct {
	// CacheKey retrieves the PR data, e.g. "trinote|423".
	CacheKey string `json:"cache_key"`

	// CacheType is the cache backing the key. Defaults to redis.
	CacheType CacheType `json:"cache_type"`
}

// RoutingKeys maps this domain's event types to payload factories.
func RoutingKeys() map[string]registry.TypeFactory {
	return map[string]registry.TypeFactory{
		EventPRCreated: func() any { return &PRCreatedPayload{CacheType: CacheRedis} },
	}
}
