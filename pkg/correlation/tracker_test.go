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

package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTracker starts a tracker against an in-process Redis.
func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	srv := miniredis.RunT(t)
	tracker := NewTracker(Options{
		Addr: srv.Addr(),
		TTL:  time.Hour,
	})
	tracker.Start(context.Background())
	require.True(t, tracker.Enabled(), "tracker must connect to miniredis")
	t.Cleanup(tracker.Close)
	return tracker
}

func TestTracker_AddAndReadEdges(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	parent := uuid.New()
	child := uuid.New()

	err := tracker.AddCorrelation(ctx, child, []uuid.UUID{parent}, map[string]any{"stage": "upload"})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{parent}, tracker.Parents(ctx, child))
	assert.Equal(t, []uuid.UUID{child}, tracker.Children(ctx, parent))
	assert.Equal(t, map[string]any{"stage": "upload"}, tracker.Metadata(ctx, child))
}

func TestTracker_MultipleParents(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	p1, p2, child := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, child, []uuid.UUID{p1, p2}, nil))

	assert.ElementsMatch(t, []uuid.UUID{p1, p2}, tracker.Parents(ctx, child))
	assert.Equal(t, []uuid.UUID{child}, tracker.Children(ctx, p1))
	assert.Equal(t, []uuid.UUID{child}, tracker.Children(ctx, p2))
}

func TestTracker_EmptyAndNilParents(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	child := uuid.New()

	require.NoError(t, tracker.AddCorrelation(ctx, child, nil, nil))
	assert.Empty(t, tracker.Parents(ctx, child), "empty parent list must be a no-op")

	// Nil entries are skipped, and an all-nil list writes nothing.
	require.NoError(t, tracker.AddCorrelation(ctx, child, []uuid.UUID{uuid.Nil}, nil))
	assert.Empty(t, tracker.Parents(ctx, child))
}

func TestTracker_UnknownEventHasNoEdges(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	assert.Empty(t, tracker.Parents(ctx, uuid.New()))
	assert.Empty(t, tracker.Children(ctx, uuid.New()))
	assert.Nil(t, tracker.Metadata(ctx, uuid.New()))
}

func TestTracker_ChainLinear(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	// a -> b -> c -> d
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, b, []uuid.UUID{a}, nil))
	require.NoError(t, tracker.AddCorrelation(ctx, c, []uuid.UUID{b}, nil))
	require.NoError(t, tracker.AddCorrelation(ctx, d, []uuid.UUID{c}, nil))

	ancestors, err := tracker.Chain(ctx, d, DirectionAncestors, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b, c, d}, ancestors,
		"post-order walk yields root-first ordering")

	descendants, err := tracker.Chain(ctx, a, DirectionDescendants, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{d, c, b, a}, descendants)
}

func TestTracker_ChainBranching(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	// a -> b -> d and c -> d
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, b, []uuid.UUID{a}, nil))
	require.NoError(t, tracker.AddCorrelation(ctx, d, []uuid.UUID{b, c}, nil))

	ancestors, err := tracker.Chain(ctx, d, DirectionAncestors, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c, d}, ancestors,
		"all branches contribute their ancestors")
}

func TestTracker_ChainStartWithoutEdges(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	chain, err := tracker.Chain(ctx, uuid.New(), DirectionAncestors, 0)
	require.NoError(t, err)
	assert.Empty(t, chain, "an event without edges is not part of any chain")
}

func TestTracker_ChainCycleTerminates(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, b, []uuid.UUID{a}, nil))
	require.NoError(t, tracker.AddCorrelation(ctx, a, []uuid.UUID{b}, nil))

	chain, err := tracker.Chain(ctx, a, DirectionAncestors, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, chain,
		"a back-edge must not hang or duplicate the walk")
}

func TestTracker_ChainMaxDepth(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, b, []uuid.UUID{a}, nil))
	require.NoError(t, tracker.AddCorrelation(ctx, c, []uuid.UUID{b}, nil))

	chain, err := tracker.Chain(ctx, c, DirectionAncestors, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, c}, chain, "depth limit truncates the walk")
}

func TestTracker_ChainInvalidDirection(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)

	_, err := tracker.Chain(context.Background(), uuid.New(), Direction("sideways"), 0)
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestTracker_DegradedMode(t *testing.T) {
	t.Parallel()

	// Nothing listens on this address; Start must degrade, not fail.
	tracker := NewTracker(Options{
		Addr:    "127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	})
	tracker.Start(context.Background())
	assert.False(t, tracker.Enabled())

	ctx := context.Background()
	child, parent := uuid.New(), uuid.New()

	assert.NoError(t, tracker.AddCorrelation(ctx, child, []uuid.UUID{parent}, nil),
		"writes are silent no-ops when degraded")
	assert.Empty(t, tracker.Parents(ctx, child))
	assert.Empty(t, tracker.Children(ctx, parent))

	chain, err := tracker.Chain(ctx, child, DirectionAncestors, 0)
	assert.NoError(t, err)
	assert.Empty(t, chain)
}

func TestTracker_RestartRecovers(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	tracker := NewTracker(Options{
		Addr:    "127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	})
	tracker.Start(context.Background())
	require.False(t, tracker.Enabled())

	// Point the tracker at the live store and restart explicitly.
	tracker.addr = srv.Addr()
	tracker.Restart(context.Background())
	assert.True(t, tracker.Enabled(), "Restart is the only way out of degraded mode")
	tracker.Close()
}

func TestTracker_TTLApplied(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	tracker := NewTracker(Options{
		Addr: srv.Addr(),
		TTL:  time.Minute,
	})
	tracker.Start(context.Background())
	t.Cleanup(tracker.Close)

	ctx := context.Background()
	parent, child := uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, child, []uuid.UUID{parent}, nil))

	require.NotEmpty(t, tracker.Parents(ctx, child))

	srv.FastForward(2 * time.Minute)
	assert.Empty(t, tracker.Parents(ctx, child), "edges expire after the retention window")
	assert.Empty(t, tracker.Children(ctx, parent))
}

func TestTracker_DebugDump(t *testing.T) {
	t.Parallel()
	tracker := newTestTracker(t)
	ctx := context.Background()

	parent, child := uuid.New(), uuid.New()
	require.NoError(t, tracker.AddCorrelation(ctx, child, []uuid.UUID{parent}, map[string]any{"via": "test"}))

	dump := tracker.DebugDump(ctx, child)
	assert.Equal(t, child.String(), dump["event_id"])
	assert.Equal(t, []string{parent.String()}, dump["parents"])
	assert.Equal(t, []string{}, dump["children"])
	assert.Equal(t, map[string]any{"via": "test"}, dump["metadata"])
}
