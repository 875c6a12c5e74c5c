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

// Package correlation tracks event causation chains in Redis and derives
// deterministic event ids for idempotent publication.
//
// The tracker persists a correlation DAG: for every published event it can
// record which events caused it (parent edges) and maintain the reverse
// index (child edges). Edges are write-once and expire after a bounded
// retention window; traversal queries walk the DAG with a visited set so
// they terminate even on malformed graphs.
//
// Correlation tracking is best-effort infrastructure. If the store is
// unreachable the tracker degrades to a silent no-op: writes are skipped,
// reads return empty results, and nothing is raised. The degraded state is
// only left by an explicit Restart.
package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Direction selects which way Chain walks the correlation DAG.
type Direction string

const (
	// DirectionAncestors walks parent edges: causes, grand-causes, and so on.
	DirectionAncestors Direction = "ancestors"

	// DirectionDescendants walks child edges: effects and their effects.
	DirectionDescendants Direction = "descendants"
)

// ErrInvalidDirection reports a chain query with an unknown direction.
var ErrInvalidDirection = errors.New("correlation: direction must be \"ancestors\" or \"descendants\"")

const (
	// DefaultMaxDepth bounds chain traversal when the caller passes no limit.
	DefaultMaxDepth = 100

	// DefaultTimeout bounds individual store operations, including the
	// initial connection attempt.
	DefaultTimeout = 5 * time.Second

	keyPrefixForward = "correlation:forward:"
	keyPrefixReverse = "correlation:reverse:"
)

// Options configures a Tracker.
type Options struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password authenticates against Redis, if required.
	Password string

	// DB selects the Redis database number.
	DB int

	// TTL is the retention window for correlation edges. Both the forward
	// record and the reverse index carry the same TTL. Defaults to 30 days.
	TTL time.Duration

	// Timeout bounds each store operation. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Namespace prefixes every key, isolating deployments that share a
	// Redis instance. Defaults to DefaultNamespace.
	Namespace string

	// Logger receives degradation and failure diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// forwardRecord is the JSON value stored under the forward key of an edge.
type forwardRecord struct {
	ParentEventIDs []string       `json:"parent_event_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata"`
}

// Tracker is a Redis-backed correlation store.
//
// A Tracker is safe for concurrent use. The connection is established by
// Start; all operations before Start, or after a failed Start, behave as
// no-ops per the degraded-mode contract.
type Tracker struct {
	addr      string
	password  string
	db        int
	ttl       time.Duration
	timeout   time.Duration
	namespace string
	logger    *slog.Logger

	mu      sync.Mutex
	client  *redis.Client
	started bool
}

// NewTracker creates a tracker. No connection is attempted until Start.
func NewTracker(opts Options) *Tracker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		addr:      opts.Addr,
		password:  opts.Password,
		db:        opts.DB,
		ttl:       opts.TTL,
		timeout:   opts.Timeout,
		namespace: opts.Namespace,
		logger:    opts.Logger.With("component", "correlation-tracker"),
	}
}

// Start establishes the Redis connection.
//
// A failed connection attempt (including timeout) transitions the tracker to
// the degraded state instead of returning an error: correlation tracking is
// optional and must never block the services that carry it. The degraded
// state persists until Restart is called.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:         t.addr,
		Password:     t.password,
		DB:           t.db,
		DialTimeout:  t.timeout,
		ReadTimeout:  t.timeout,
		WriteTimeout: t.timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.logger.Error("failed to connect to correlation store, tracking disabled",
			"addr", t.addr,
			"error", err)
		_ = client.Close()
		return
	}

	t.client = client
	t.started = true
	t.logger.Info("correlation store connection established", "addr", t.addr)
}

// Restart closes any existing connection and attempts a fresh one. This is
// the only way out of the degraded state; there is no background retry.
func (t *Tracker) Restart(ctx context.Context) {
	t.Close()
	t.Start(ctx)
}

// Close releases the Redis connection. Safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		_ = t.client.Close()
		t.client = nil
	}
	t.started = false
}

// Enabled reports whether the tracker has a live store connection.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *Tracker) getClient() *redis.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	return t.client
}

func (t *Tracker) forwardKey(id uuid.UUID) string {
	return t.namespace + ":" + keyPrefixForward + id.String()
}

func (t *Tracker) reverseKey(id uuid.UUID) string {
	return t.namespace + ":" + keyPrefixReverse + id.String()
}

// AddCorrelation records that childID was caused by parentIDs.
//
// It writes the forward record (child -> parents, creation time, metadata)
// and appends childID to each parent's reverse set; both sides carry the
// same TTL. Nil parent entries are skipped best-effort rather than rejecting
// the call. An empty parent list is a no-op.
//
// In degraded mode the write is silently skipped. Partial failure across the
// forward and reverse writes is acceptable: edges are best-effort, not
// transactional.
func (t *Tracker) AddCorrelation(ctx context.Context, childID uuid.UUID, parentIDs []uuid.UUID, metadata map[string]any) error {
	client := t.getClient()
	if client == nil {
		t.logger.Warn("correlation tracker not started, skipping correlation tracking")
		return nil
	}

	parents := make([]string, 0, len(parentIDs))
	for _, pid := range parentIDs {
		if pid == uuid.Nil {
			t.logger.Debug("skipping invalid parent event id", "child_event_id", childID)
			continue
		}
		parents = append(parents, pid.String())
	}
	if len(parents) == 0 {
		return nil
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	record, err := json.Marshal(forwardRecord{
		ParentEventIDs: parents,
		CreatedAt:      time.Now().UTC(),
		Metadata:       metadata,
	})
	if err != nil {
		return fmt.Errorf("correlation: failed to encode edge record for %s: %w", childID, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	child := childID.String()
	pipe := client.TxPipeline()
	pipe.Set(opCtx, t.forwardKey(childID), record, t.ttl)
	for _, parent := range parents {
		key := t.namespace + ":" + keyPrefixReverse + parent
		pipe.SAdd(opCtx, key, child)
		pipe.Expire(opCtx, key, t.ttl)
	}
	if _, err := pipe.Exec(opCtx); err != nil {
		return fmt.Errorf("correlation: failed to add correlation for %s: %w", childID, err)
	}
	return nil
}

// Parents returns the immediate parent event ids of id, or an empty slice if
// it has none or the store is unreachable.
func (t *Tracker) Parents(ctx context.Context, id uuid.UUID) []uuid.UUID {
	client := t.getClient()
	if client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	data, err := client.Get(opCtx, t.forwardKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Error("failed to get parents", "event_id", id, "error", err)
		}
		return nil
	}

	var record forwardRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		t.logger.Error("corrupt forward record", "event_id", id, "error", err)
		return nil
	}
	return parseIDs(record.ParentEventIDs)
}

// Children returns the immediate child event ids of id, or an empty slice if
// it has none or the store is unreachable.
func (t *Tracker) Children(ctx context.Context, id uuid.UUID) []uuid.UUID {
	client := t.getClient()
	if client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	members, err := client.SMembers(opCtx, t.reverseKey(id)).Result()
	if err != nil {
		t.logger.Error("failed to get children", "event_id", id, "error", err)
		return nil
	}
	return parseIDs(members)
}

// Chain returns the full correlation chain from id in the given direction,
// up to maxDepth hops (DefaultMaxDepth when maxDepth <= 0).
//
// The walk is depth-first with a visited set, so it visits each id at most
// once and always terminates: the graph is expected to be acyclic, but edges
// are written without global coordination and a back-edge introduced by
// misuse must not hang the query. The starting id is included only if it has
// at least one edge in the requested direction.
func (t *Tracker) Chain(ctx context.Context, id uuid.UUID, direction Direction, maxDepth int) ([]uuid.UUID, error) {
	if direction != DirectionAncestors && direction != DirectionDescendants {
		return nil, ErrInvalidDirection
	}
	if t.getClient() == nil {
		return nil, nil
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	visited := make(map[uuid.UUID]bool)
	var chain []uuid.UUID

	var walk func(current uuid.UUID, depth int)
	walk = func(current uuid.UUID, depth int) {
		if visited[current] || depth >= maxDepth {
			return
		}
		visited[current] = true

		var next []uuid.UUID
		if direction == DirectionAncestors {
			next = t.Parents(ctx, current)
		} else {
			next = t.Children(ctx, current)
		}
		for _, n := range next {
			walk(n, depth+1)
		}

		// The starting event only belongs to its own chain when it actually
		// participates in an edge.
		if current != id || len(next) > 0 {
			chain = append(chain, current)
		}
	}

	walk(id, 0)
	return chain, nil
}

// Metadata returns the metadata stored with id's forward edge, or nil if the
// edge is absent or the store is unreachable.
func (t *Tracker) Metadata(ctx context.Context, id uuid.UUID) map[string]any {
	client := t.getClient()
	if client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	data, err := client.Get(opCtx, t.forwardKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Error("failed to get metadata", "event_id", id, "error", err)
		}
		return nil
	}

	var record forwardRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		t.logger.Error("corrupt forward record", "event_id", id, "error", err)
		return nil
	}
	return record.Metadata
}

// DebugDump gathers all correlation data for one event: parents, children,
// full ancestor and descendant chains, and edge metadata. Intended for the
// debug endpoints; degrades to empty fields like every other read.
func (t *Tracker) DebugDump(ctx context.Context, id uuid.UUID) map[string]any {
	ancestors, _ := t.Chain(ctx, id, DirectionAncestors, DefaultMaxDepth)
	descendants, _ := t.Chain(ctx, id, DirectionDescendants, DefaultMaxDepth)

	return map[string]any{
		"event_id":    id.String(),
		"parents":     formatIDs(t.Parents(ctx, id)),
		"children":    formatIDs(t.Children(ctx, id)),
		"ancestors":   formatIDs(ancestors),
		"descendants": formatIDs(descendants),
		"metadata":    t.Metadata(ctx, id),
	}
}

// parseIDs converts stored id strings to UUIDs, skipping malformed entries.
func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func formatIDs(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
