package memory

import (
	"context"
	"testing"

	"mindsync/domain/core/entities"
	"mindsync/domain/core/operations"
	pkgerrors "mindsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationStoreRecent(t *testing.T) {
	store := NewOperationStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		op := operations.NewDelete("map-1", "alice", "n1")
		op.Timestamp = int64(i)
		require.NoError(t, store.Append(ctx, op))
	}
	require.NoError(t, store.Append(ctx, operations.NewDelete("map-2", "bob", "n2")))

	ops, err := store.Recent(ctx, "map-1", 3)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	// Newest last, trimmed from the front.
	assert.Equal(t, int64(2), ops[0].Timestamp)
	assert.Equal(t, int64(4), ops[2].Timestamp)

	other, err := store.Recent(ctx, "map-2", 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestDocumentStoreVersionGuard(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	v2 := &entities.DocumentState{ID: "map-1", Version: 2, Nodes: map[string]*entities.NodeData{}}
	require.NoError(t, store.SaveSnapshot(ctx, v2))

	v1 := &entities.DocumentState{ID: "map-1", Version: 1, Nodes: map[string]*entities.NodeData{}}
	err := store.SaveSnapshot(ctx, v1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))

	loaded, err := store.LoadSnapshot(ctx, "map-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)

	_, err = store.LoadSnapshot(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDocumentStoreRejectsInvalidState(t *testing.T) {
	store := NewDocumentStore()

	bad := &entities.DocumentState{
		ID:      "map-1",
		Version: 1,
		Nodes: map[string]*entities.NodeData{
			"n1": {ID: "n1", ParentID: "ghost"},
		},
	}
	err := store.SaveSnapshot(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestConnectionRegistry(t *testing.T) {
	registry := NewConnectionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, "map-1", "conn-a"))
	require.NoError(t, registry.Register(ctx, "map-1", "conn-b"))
	require.NoError(t, registry.Register(ctx, "map-2", "conn-c"))

	conns, err := registry.Connections(ctx, "map-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, conns)

	require.NoError(t, registry.Unregister(ctx, "conn-a"))

	conns, err = registry.Connections(ctx, "map-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-b"}, conns)
}
