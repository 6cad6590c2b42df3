package resolution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mindsync/application/ports"
	"mindsync/domain/config"
	"mindsync/domain/core/entities"
	"mindsync/domain/core/operations"
	"mindsync/domain/core/valueobjects"
	"mindsync/domain/events"
	pkgerrors "mindsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu       sync.Mutex
	appended []operations.Operation
	failWith error

	// delay simulates a slow storage collaborator.
	delay time.Duration
}

func (s *fakeStore) Append(_ context.Context, op operations.Operation) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.appended = append(s.appended, op)
	return nil
}

func (s *fakeStore) Recent(_ context.Context, mindmapID string, limit int) ([]operations.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []operations.Operation
	for _, op := range s.appended {
		if op.MindmapID == mindmapID {
			out = append(out, op)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *fakePublisher) Publish(_ context.Context, event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) byType(eventType string) []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.DomainEvent
	for _, e := range p.events {
		if e.GetEventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestResolver(t *testing.T) (*Resolver, *fakeStore, *fakePublisher) {
	t.Helper()
	store := &fakeStore{}
	publisher := &fakePublisher{}
	r := NewResolver(config.DefaultSyncConfig(), operations.NewTransformer(nil), store, publisher, zap.NewNop())
	t.Cleanup(r.Close)
	return r, store, publisher
}

func opWithClock(opType operations.OperationType, userID, targetID string, ts int64, clock valueobjects.VectorClock) operations.Operation {
	op := operations.Operation{
		ID:          mustID(fmt.Sprintf("%s-%s-%d", userID, targetID, ts)),
		Type:        opType,
		TargetType:  operations.TargetNode,
		TargetID:    targetID,
		MindmapID:   "map-1",
		UserID:      userID,
		Timestamp:   ts,
		VectorClock: clock,
	}
	switch opType {
	case operations.OpUpdate:
		op.Update = &entities.NodePatch{}
	case operations.OpMove:
		x, y := 0.0, 0.0
		op.Move = &operations.MovePayload{X: &x, Y: &y}
	case operations.OpCreate:
		op.Create = &entities.NodeData{ID: targetID}
	}
	return op
}

func mustID(id string) valueobjects.OperationID {
	opID, err := valueobjects.NewOperationIDFromString(id)
	if err != nil {
		panic(err)
	}
	return opID
}

func TestResolveOperationNoConflict(t *testing.T) {
	r, store, publisher := newTestResolver(t)
	ctx := context.Background()

	op := opWithClock(operations.OpUpdate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	text := "hello"
	op.Update.Text = &text

	res, err := r.ResolveOperation(ctx, op)

	require.NoError(t, err)
	assert.True(t, res.ShouldApply)
	assert.False(t, res.Transformed)
	assert.False(t, res.RequiresManualResolution)
	assert.Equal(t, op.ID, res.Applied.ID)

	assert.Len(t, store.appended, 1)
	assert.Len(t, publisher.byType("operation.resolved"), 1)
	assert.Equal(t, 1, r.HistoryLen("map-1"))
}

func TestResolveOperationRejectsIncomplete(t *testing.T) {
	r, _, _ := newTestResolver(t)

	_, err := r.ResolveOperation(context.Background(), operations.Operation{})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestConcurrentTextUpdatesConverge(t *testing.T) {
	r, _, _ := newTestResolver(t)
	ctx := context.Background()

	aliceText := "alice version"
	alice := opWithClock(operations.OpUpdate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	alice.Update.Text = &aliceText

	bobText := "bob version"
	bob := opWithClock(operations.OpUpdate, "bob", "n1", 200, valueobjects.VectorClock{"bob": 1})
	bob.Update.Text = &bobText

	first, err := r.ResolveOperation(ctx, alice)
	require.NoError(t, err)
	assert.True(t, first.ShouldApply)

	second, err := r.ResolveOperation(ctx, bob)
	require.NoError(t, err)

	// Bob's update is later so it wins; it still applies and the text field
	// lands on bob's value.
	assert.True(t, second.ShouldApply)
	assert.True(t, second.Transformed)
	require.NotNil(t, second.Applied.Update)
	assert.Equal(t, "bob version", *second.Applied.Update.Text)
	require.Len(t, second.TransformLog, 1)
	assert.Equal(t, alice.ID.String(), second.TransformLog[0].AgainstOperationID)
}

func TestCausallyOrderedOperationsDoNotConflict(t *testing.T) {
	r, _, _ := newTestResolver(t)
	ctx := context.Background()

	first := opWithClock(operations.OpUpdate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})

	// Bob saw alice's edit before making his own; clocks are ordered, so no
	// transformation happens even though the target is shared.
	second := opWithClock(operations.OpUpdate, "bob", "n1", 200, valueobjects.VectorClock{"alice": 1, "bob": 1})

	_, err := r.ResolveOperation(ctx, first)
	require.NoError(t, err)

	res, err := r.ResolveOperation(ctx, second)
	require.NoError(t, err)
	assert.True(t, res.ShouldApply)
	assert.False(t, res.Transformed)
	assert.Empty(t, res.TransformLog)
}

func TestUpdateAgainstConcurrentDelete(t *testing.T) {
	r, store, publisher := newTestResolver(t)
	ctx := context.Background()

	del := opWithClock(operations.OpDelete, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	_, err := r.ResolveOperation(ctx, del)
	require.NoError(t, err)

	update := opWithClock(operations.OpUpdate, "bob", "n1", 200, valueobjects.VectorClock{"bob": 1})
	text := "too late"
	update.Update.Text = &text

	res, err := r.ResolveOperation(ctx, update)

	require.NoError(t, err)
	assert.False(t, res.ShouldApply)
	assert.True(t, res.Applied.IsNoop())
	assert.Contains(t, res.Applied.TransformNote, "deleted")

	// The neutralized update is neither persisted nor announced, and it does
	// not enter the history window.
	assert.Len(t, store.appended, 1)
	assert.Len(t, publisher.byType("operation.resolved"), 1)
	assert.Equal(t, 1, r.HistoryLen("map-1"))
}

func TestDuplicateCreateKeepsEarlier(t *testing.T) {
	r, _, _ := newTestResolver(t)
	ctx := context.Background()

	earlier := opWithClock(operations.OpCreate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	later := opWithClock(operations.OpCreate, "bob", "n1", 200, valueobjects.VectorClock{"bob": 1})

	_, err := r.ResolveOperation(ctx, earlier)
	require.NoError(t, err)

	res, err := r.ResolveOperation(ctx, later)

	require.NoError(t, err)
	assert.False(t, res.ShouldApply)
	assert.Contains(t, res.Applied.TransformNote, "already created")
}

func TestEarlierIncomingLosesSharedFields(t *testing.T) {
	r, _, publisher := newTestResolver(t)
	ctx := context.Background()

	localText := "local"
	local := opWithClock(operations.OpUpdate, "bob", "n1", 200, valueobjects.VectorClock{"bob": 1})
	local.Update.Text = &localText

	_, err := r.ResolveOperation(ctx, local)
	require.NoError(t, err)

	incomingText := "incoming"
	incoming := opWithClock(operations.OpUpdate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	incoming.Update.Text = &incomingText

	res, err := r.ResolveOperation(ctx, incoming)
	require.NoError(t, err)

	// The incoming update is earlier so the local one wins; the incoming
	// still applies, but its shared text field is rewritten to the winner's
	// value. The local operation is untouched, so no local-update event goes
	// out.
	assert.True(t, res.ShouldApply)
	require.NotNil(t, res.Applied.Update)
	assert.Equal(t, "local", *res.Applied.Update.Text)
	assert.Empty(t, publisher.byType("operation.local_update"))
}

func TestHistoryWindowEviction(t *testing.T) {
	r, _, _ := newTestResolver(t)
	ctx := context.Background()

	// Fill the window with unrelated operations, then one more. Each touches
	// its own node so nothing transforms.
	max := config.DefaultSyncConfig().MaxHistoryEntries
	for i := 0; i < max+1; i++ {
		op := opWithClock(operations.OpCreate, "alice", fmt.Sprintf("n%d", i), int64(100+i),
			valueobjects.VectorClock{"alice": int64(i + 1)})
		_, err := r.ResolveOperation(ctx, op)
		require.NoError(t, err)
	}

	assert.Equal(t, max, r.HistoryLen("map-1"))

	// The evicted entry is the oldest: a conflicting create against n0 no
	// longer finds it and passes through untransformed.
	dup := opWithClock(operations.OpCreate, "bob", "n0", 50, valueobjects.VectorClock{"bob": 1})
	res, err := r.ResolveOperation(ctx, dup)
	require.NoError(t, err)
	assert.True(t, res.ShouldApply)
	assert.False(t, res.Transformed)
}

func TestManualQueueAndResolution(t *testing.T) {
	newConflicted := func(t *testing.T) (*Resolver, *fakePublisher, string, operations.Operation) {
		t.Helper()
		r, _, publisher := newTestResolver(t)
		ctx := context.Background()

		local := opWithClock(operations.OpMove, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
		_, err := r.ResolveOperation(ctx, local)
		require.NoError(t, err)

		incoming := opWithClock(operations.OpMove, "bob", "n1", 200, valueobjects.VectorClock{"bob": 1})

		// Seed the manual queue through the same path the pipeline failure
		// branch takes.
		r.mu.Lock()
		conflict := r.enqueueConflictLocked(incoming, []operations.Operation{local},
			pkgerrors.NewInternalError("transform pipeline panic: synthetic"))
		r.mu.Unlock()
		r.announceManual(ctx, conflict)

		return r, publisher, conflict.ID, incoming
	}

	t.Run("conflict is visible in the queue", func(t *testing.T) {
		r, publisher, conflictID, incoming := newConflicted(t)

		pending := r.PendingConflicts()
		require.Len(t, pending, 1)
		assert.Equal(t, conflictID, pending[0].ID)
		assert.Equal(t, ConflictPending, pending[0].Status)
		assert.Equal(t, incoming.ID, pending[0].Incoming.ID)

		assert.Len(t, publisher.byType("conflict.manual_resolution_required"), 1)
	})

	t.Run("accept_remote applies the incoming operation", func(t *testing.T) {
		r, publisher, conflictID, incoming := newConflicted(t)

		resolved, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy:   StrategyAcceptRemote,
			ResolvedBy: "operator",
		})

		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, incoming.ID, resolved.ID)
		assert.Empty(t, r.PendingConflicts())
		assert.Len(t, publisher.byType("conflict.resolved"), 1)
	})

	t.Run("accept_local returns the recorded local operation", func(t *testing.T) {
		r, _, conflictID, _ := newConflicted(t)

		resolved, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy: StrategyAcceptLocal,
		})

		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, "alice", resolved.UserID)
	})

	t.Run("merge_custom builds a linked merge operation", func(t *testing.T) {
		r, _, conflictID, incoming := newConflicted(t)

		text := "merged"
		resolved, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy:   StrategyMergeCustom,
			MergedData: &entities.NodePatch{Text: &text},
			ResolvedBy: "operator",
		})

		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, operations.OpUpdate, resolved.Type)
		assert.Contains(t, resolved.MergedFrom, incoming.ID.String())
		assert.Equal(t, "operator", resolved.UserID)
	})

	t.Run("merge_custom without data is rejected", func(t *testing.T) {
		r, _, conflictID, _ := newConflicted(t)

		_, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy: StrategyMergeCustom,
		})

		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
		assert.Len(t, r.PendingConflicts(), 1)
	})

	t.Run("reject_all drops the conflict with no operation", func(t *testing.T) {
		r, _, conflictID, _ := newConflicted(t)

		resolved, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy: StrategyRejectAll,
		})

		require.NoError(t, err)
		assert.Nil(t, resolved)
		assert.Empty(t, r.PendingConflicts())
	})

	t.Run("defer keeps the conflict queued and counts the attempt", func(t *testing.T) {
		r, _, conflictID, _ := newConflicted(t)

		resolved, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy: StrategyDefer,
		})

		require.NoError(t, err)
		assert.Nil(t, resolved)
		pending := r.PendingConflicts()
		require.Len(t, pending, 1)
		assert.Equal(t, 2, pending[0].Attempts)
	})

	t.Run("unknown strategy fails without touching the queue", func(t *testing.T) {
		r, _, conflictID, _ := newConflicted(t)

		_, err := r.ResolveManually(context.Background(), conflictID, ManualChoice{
			Strategy: StrategyName("flip_a_coin"),
		})

		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
		assert.Len(t, r.PendingConflicts(), 1)
	})
}

func TestResolveManuallyUnknownConflict(t *testing.T) {
	r, _, _ := newTestResolver(t)

	_, err := r.ResolveManually(context.Background(), "no-such-conflict", ManualChoice{
		Strategy: StrategyAcceptRemote,
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestResolveBatch(t *testing.T) {
	t.Run("resolves every operation across batch boundaries", func(t *testing.T) {
		r, _, _ := newTestResolver(t)

		count := config.DefaultSyncConfig().MaxBatchSize*2 + 3
		ops := make([]operations.Operation, 0, count)
		for i := 0; i < count; i++ {
			ops = append(ops, opWithClock(operations.OpCreate, "alice", fmt.Sprintf("n%d", i),
				int64(100+i), valueobjects.VectorClock{"alice": int64(i + 1)}))
		}

		results, err := r.ResolveBatch(context.Background(), ops)

		require.NoError(t, err)
		assert.Len(t, results, count)
		for _, res := range results {
			assert.True(t, res.ShouldApply)
		}
	})

	t.Run("operations are processed in timestamp order", func(t *testing.T) {
		r, store, _ := newTestResolver(t)

		late := opWithClock(operations.OpCreate, "alice", "n-late", 500, valueobjects.VectorClock{"alice": 1})
		early := opWithClock(operations.OpCreate, "bob", "n-early", 100, valueobjects.VectorClock{"bob": 1})

		_, err := r.ResolveBatch(context.Background(), []operations.Operation{late, early})

		require.NoError(t, err)
		require.Len(t, store.appended, 2)
		assert.Equal(t, "n-early", store.appended[0].TargetID)
		assert.Equal(t, "n-late", store.appended[1].TargetID)
	})

	t.Run("a timed-out batch still surfaces its committed resolutions", func(t *testing.T) {
		cfg := config.DefaultSyncConfig()
		cfg.MaxBatchSize = 3
		cfg.BatchTimeout = 150 * time.Millisecond

		store := &fakeStore{delay: 100 * time.Millisecond}
		publisher := &fakePublisher{}
		r := NewResolver(cfg, operations.NewTransformer(nil), store, publisher, zap.NewNop())
		t.Cleanup(r.Close)

		count := cfg.MaxBatchSize * 2
		ops := make([]operations.Operation, 0, count)
		for i := 0; i < count; i++ {
			ops = append(ops, opWithClock(operations.OpCreate, "alice", fmt.Sprintf("n%d", i),
				int64(100+i), valueobjects.VectorClock{"alice": int64(i + 1)}))
		}

		results, err := r.ResolveBatch(context.Background(), ops)

		// The deadline surfaces as the timeout kind, not a generic failure.
		require.Error(t, err)
		assert.True(t, pkgerrors.IsTimeout(err))

		// Everything that committed before the deadline (persisted, announced,
		// admitted to history) is present in the returned results; an applied
		// operation is never silently dropped from the report.
		store.mu.Lock()
		committed := len(store.appended)
		firstTarget := store.appended[0].TargetID
		store.mu.Unlock()

		require.NotEmpty(t, results)
		assert.Len(t, results, committed)
		assert.Less(t, len(results), count)
		assert.Equal(t, committed, r.HistoryLen("map-1"))
		assert.Len(t, publisher.byType("operation.resolved"), committed)

		// The first batch's committed history survives the later batch's
		// timeout: the earliest operation is still first in the durable log.
		assert.Equal(t, "n0", firstTarget)
	})

	t.Run("a cancelled context surfaces without a panic", func(t *testing.T) {
		r, _, _ := newTestResolver(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		op := opWithClock(operations.OpCreate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
		results, err := r.ResolveBatch(ctx, []operations.Operation{op})

		require.Error(t, err)
		// Cancellation is not a deadline; the timeout kind stays distinct.
		assert.False(t, pkgerrors.IsTimeout(err))
		assert.Empty(t, results)
	})
}

func TestMetrics(t *testing.T) {
	r, _, _ := newTestResolver(t)
	ctx := context.Background()

	snapshot := r.Metrics()
	assert.Zero(t, snapshot.TotalConflicts)
	assert.Zero(t, snapshot.SuccessRate)

	del := opWithClock(operations.OpDelete, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	_, err := r.ResolveOperation(ctx, del)
	require.NoError(t, err)

	update := opWithClock(operations.OpUpdate, "bob", "n1", 200, valueobjects.VectorClock{"bob": 1})
	_, err = r.ResolveOperation(ctx, update)
	require.NoError(t, err)

	snapshot = r.Metrics()
	assert.Equal(t, int64(1), snapshot.TotalConflicts)
	assert.Equal(t, int64(1), snapshot.ResolvedConflicts)
	assert.Equal(t, 1.0, snapshot.SuccessRate)
	assert.Positive(t, snapshot.ConflictRatePerMinute)
}

func TestCleanupSweep(t *testing.T) {
	r, _, _ := newTestResolver(t)
	ctx := context.Background()

	op := opWithClock(operations.OpCreate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	_, err := r.ResolveOperation(ctx, op)
	require.NoError(t, err)
	require.Equal(t, 1, r.HistoryLen("map-1"))

	// Jump the resolver's clock past the retention horizon and sweep.
	r.now = func() time.Time {
		return time.Now().Add(config.DefaultSyncConfig().HistoryRetention + time.Hour)
	}
	r.cleanupExpired()

	assert.Equal(t, 0, r.HistoryLen("map-1"))
}

func TestCloseStopsResolution(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	r := NewResolver(nil, operations.NewTransformer(nil), store, publisher, zap.NewNop())

	r.Close()
	r.Close() // second close is a no-op

	op := opWithClock(operations.OpCreate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	_, err := r.ResolveOperation(context.Background(), op)
	require.Error(t, err)
}

func TestStorageFailureDoesNotFailResolution(t *testing.T) {
	store := &fakeStore{failWith: pkgerrors.NewDatabaseError("append", assert.AnError)}
	publisher := &fakePublisher{}
	r := NewResolver(config.DefaultSyncConfig(), operations.NewTransformer(nil), store, publisher, zap.NewNop())
	t.Cleanup(r.Close)

	op := opWithClock(operations.OpCreate, "alice", "n1", 100, valueobjects.VectorClock{"alice": 1})
	res, err := r.ResolveOperation(context.Background(), op)

	require.NoError(t, err)
	assert.True(t, res.ShouldApply)
	// The resolved event still goes out; durable storage lagging is logged,
	// not fatal.
	assert.Len(t, publisher.byType("operation.resolved"), 1)
}

func TestStrategyFor(t *testing.T) {
	r, _, _ := newTestResolver(t)

	s, ok := r.StrategyFor(operations.OpMove, operations.TargetNode)
	require.True(t, ok)
	assert.Equal(t, "last_writer_wins", s.Name)

	_, ok = r.StrategyFor(operations.OpMove, operations.TargetAttachment)
	assert.False(t, ok)
}

var _ ports.OperationStore = (*fakeStore)(nil)
var _ ports.EventPublisher = (*fakePublisher)(nil)
