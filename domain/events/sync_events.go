package events

import (
	"time"

	"mindsync/domain/core/operations"
)

// Sync events

// OperationResolved is raised when an incoming operation has passed the
// resolution pipeline and should be applied to document state.
type OperationResolved struct {
	BaseEvent
	MindmapID string               `json:"mindmap_id"`
	Operation operations.Operation `json:"operation"`
	// Transformed reports whether the pipeline rewrote the operation on
	// the way through.
	Transformed bool `json:"transformed"`
}

// NewOperationResolved creates an OperationResolved event.
func NewOperationResolved(mindmapID string, op operations.Operation, transformed bool, timestamp time.Time) OperationResolved {
	return OperationResolved{
		BaseEvent: BaseEvent{
			AggregateID: mindmapID,
			EventType:   "operation.resolved",
			Timestamp:   timestamp,
			Version:     1,
		},
		MindmapID:   mindmapID,
		Operation:   op,
		Transformed: transformed,
	}
}

// LocalOperationUpdated is raised when transformation rewrote a local
// operation that is still sitting in the external pending queue; the
// transport collaborator must swap in the transformed counterpart.
type LocalOperationUpdated struct {
	BaseEvent
	MindmapID string               `json:"mindmap_id"`
	Operation operations.Operation `json:"operation"`
}

// NewLocalOperationUpdated creates a LocalOperationUpdated event.
func NewLocalOperationUpdated(mindmapID string, op operations.Operation, timestamp time.Time) LocalOperationUpdated {
	return LocalOperationUpdated{
		BaseEvent: BaseEvent{
			AggregateID: mindmapID,
			EventType:   "operation.local_update",
			Timestamp:   timestamp,
			Version:     1,
		},
		MindmapID: mindmapID,
		Operation: op,
	}
}

// ManualResolutionRequired is raised when the automatic pipeline could not
// resolve a conflict and queued it for a human decision.
type ManualResolutionRequired struct {
	BaseEvent
	MindmapID  string               `json:"mindmap_id"`
	ConflictID string               `json:"conflict_id"`
	Incoming   operations.Operation `json:"incoming_operation"`
	Reason     string               `json:"reason"`
}

// NewManualResolutionRequired creates a ManualResolutionRequired event.
func NewManualResolutionRequired(mindmapID, conflictID string, incoming operations.Operation, reason string, timestamp time.Time) ManualResolutionRequired {
	return ManualResolutionRequired{
		BaseEvent: BaseEvent{
			AggregateID: mindmapID,
			EventType:   "conflict.manual_resolution_required",
			Timestamp:   timestamp,
			Version:     1,
		},
		MindmapID:  mindmapID,
		ConflictID: conflictID,
		Incoming:   incoming,
		Reason:     reason,
	}
}

// ConflictResolved is raised when a queued conflict was settled, either by
// an operator choice or by the cleanup sweep escalating it away.
type ConflictResolved struct {
	BaseEvent
	MindmapID  string `json:"mindmap_id"`
	ConflictID string `json:"conflict_id"`
	Strategy   string `json:"strategy"`
}

// NewConflictResolved creates a ConflictResolved event.
func NewConflictResolved(mindmapID, conflictID, strategy string, timestamp time.Time) ConflictResolved {
	return ConflictResolved{
		BaseEvent: BaseEvent{
			AggregateID: mindmapID,
			EventType:   "conflict.resolved",
			Timestamp:   timestamp,
			Version:     1,
		},
		MindmapID:  mindmapID,
		ConflictID: conflictID,
		Strategy:   strategy,
	}
}
