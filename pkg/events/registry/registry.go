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

// Package registry maps event type strings to payload constructors.
//
// Event types follow the "domain.entity.action" convention; the registry
// groups them by domain (the first dot-separated segment) and resolves a
// routing key to a factory that produces a fresh payload value ready for
// JSON unmarshalling.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// TypeFactory produces a fresh, zero-valued payload for one event type. The
// returned value must be a pointer so it can be unmarshalled into.
type TypeFactory func() any

// Domain groups the event types of one bounded context.
type Domain struct {
	name      string
	factories map[string]TypeFactory
}

// NewDomain creates an empty domain with the given name.
func NewDomain(name string) *Domain {
	return &Domain{
		name:      name,
		factories: make(map[string]TypeFactory),
	}
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Add binds an event type to its payload factory.
//
// Re-adding the same event type is accepted when the factory produces the
// same payload shape (a no-op), and rejected when it would silently change
// the payload type behind an existing binding.
func (d *Domain) Add(eventType string, factory TypeFactory) error {
	if factory == nil {
		return fmt.Errorf("registry: nil factory for %q", eventType)
	}
	if existing, ok := d.factories[eventType]; ok {
		if reflect.TypeOf(existing()) == reflect.TypeOf(factory()) {
			return nil
		}
		return fmt.Errorf("registry: %q is already bound to %T, refusing to rebind to %T",
			eventType, existing(), factory())
	}
	d.factories[eventType] = factory
	return nil
}

// PayloadType returns a fresh payload value for the event type, or false
// when the domain does not know it.
func (d *Domain) PayloadType(eventType string) (any, bool) {
	factory, ok := d.factories[eventType]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Events returns the domain's event types, sorted.
func (d *Domain) Events() []string {
	events := make([]string, 0, len(d.factories))
	for eventType := range d.factories {
		events = append(events, eventType)
	}
	sort.Strings(events)
	return events
}

// Registry resolves event types to payload factories across all registered
// domains. It is safe for concurrent use; registration typically happens
// once at startup, resolution on every consumed message.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*Domain
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{domains: make(map[string]*Domain)}
}

// Register binds an event type to its payload factory, inferring the domain
// from the first dot-separated segment of the event type.
func (r *Registry) Register(eventType string, factory TypeFactory) error {
	domain, _, ok := strings.Cut(eventType, ".")
	if !ok || domain == "" {
		return fmt.Errorf("registry: event type %q does not follow domain.entity.action", eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.domains[domain]
	if !exists {
		d = NewDomain(domain)
		r.domains[domain] = d
	}
	return d.Add(eventType, factory)
}

// RegisterDomain registers every event type of a pre-built domain.
func (r *Registry) RegisterDomain(d *Domain) error {
	for _, eventType := range d.Events() {
		factory, _ := d.factories[eventType]
		if err := r.Register(eventType, factory); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns a fresh payload value for the event type, or false when no
// domain knows it.
func (r *Registry) Resolve(eventType string) (any, bool) {
	domain, _, ok := strings.Cut(eventType, ".")
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.domains[domain]
	if !exists {
		return nil, false
	}
	return d.PayloadType(eventType)
}

// IsRegistered reports whether the event type is known.
func (r *Registry) IsRegistered(eventType string) bool {
	_, ok := r.Resolve(eventType)
	return ok
}

// Domains returns the registered domain names, sorted.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.domains))
	for name := range r.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns the sorted event types of one domain, or an error when the
// domain is unknown.
func (r *Registry) Events(domain string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.domains[domain]
	if !exists {
		return nil, fmt.Errorf("registry: unknown domain %q", domain)
	}
	return d.Events(), nil
}

// AllEvents returns every registered event type across all domains, sorted.
func (r *Registry) AllEvents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []string
	for _, d := range r.domains {
		events = append(events, d.Events()...)
	}
	sort.Strings(events)
	return events
}
