// Package memory provides in-process implementations of the persistence
// ports for development mode and tests.
package memory

import (
	"context"
	"sync"

	"mindsync/application/ports"
	"mindsync/domain/core/entities"
	"mindsync/domain/core/operations"
	pkgerrors "mindsync/pkg/errors"
)

// OperationStore keeps the operation log in process memory.
type OperationStore struct {
	mu  sync.RWMutex
	log map[string][]operations.Operation
}

// NewOperationStore creates an empty in-memory operation store.
func NewOperationStore() *OperationStore {
	return &OperationStore{log: make(map[string][]operations.Operation)}
}

// Append records a resolved operation.
func (s *OperationStore) Append(_ context.Context, op operations.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log[op.MindmapID] = append(s.log[op.MindmapID], op)
	return nil
}

// Recent returns up to limit operations for a mindmap, newest last.
func (s *OperationStore) Recent(_ context.Context, mindmapID string, limit int) ([]operations.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := s.log[mindmapID]
	if limit > 0 && len(ops) > limit {
		ops = ops[len(ops)-limit:]
	}
	out := make([]operations.Operation, len(ops))
	copy(out, ops)
	return out, nil
}

// DocumentStore keeps document snapshots in process memory.
type DocumentStore struct {
	mu        sync.RWMutex
	snapshots map[string]*entities.DocumentState
}

// NewDocumentStore creates an empty in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{snapshots: make(map[string]*entities.DocumentState)}
}

// SaveSnapshot stores the resolved document state.
func (s *DocumentStore) SaveSnapshot(_ context.Context, state *entities.DocumentState) error {
	if state == nil || state.ID == "" {
		return pkgerrors.NewValidationError("snapshot requires a document id")
	}
	if err := state.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.snapshots[state.ID]; ok && existing.Version > state.Version {
		return pkgerrors.NewConflictError("snapshot is already newer")
	}
	s.snapshots[state.ID] = state
	return nil
}

// LoadSnapshot retrieves the latest snapshot for a mindmap.
func (s *DocumentStore) LoadSnapshot(_ context.Context, mindmapID string) (*entities.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.snapshots[mindmapID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("snapshot for mindmap " + mindmapID)
	}
	return state, nil
}

// ConnectionRegistry tracks subscriptions in process memory.
type ConnectionRegistry struct {
	mu sync.RWMutex
	// byConnection maps connection id to mindmap id.
	byConnection map[string]string
}

// NewConnectionRegistry creates an empty in-memory connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{byConnection: make(map[string]string)}
}

// Register subscribes a connection to a mindmap's sync feed.
func (r *ConnectionRegistry) Register(_ context.Context, mindmapID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConnection[connectionID] = mindmapID
	return nil
}

// Unregister removes a connection's subscription.
func (r *ConnectionRegistry) Unregister(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConnection, connectionID)
	return nil
}

// Connections lists the connection ids subscribed to a mindmap.
func (r *ConnectionRegistry) Connections(_ context.Context, mindmapID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for connID, mapID := range r.byConnection {
		if mapID == mindmapID {
			out = append(out, connID)
		}
	}
	return out, nil
}

var (
	_ ports.OperationStore     = (*OperationStore)(nil)
	_ ports.DocumentStore      = (*DocumentStore)(nil)
	_ ports.ConnectionRegistry = (*ConnectionRegistry)(nil)
)
