package operations

import (
	"time"

	"mindsync/domain/core/entities"
	"mindsync/domain/core/valueobjects"
)

// OperationType discriminates the operation union.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
	OpMove   OperationType = "move"

	// OpNoop is terminal: the operation was stripped of effect during
	// transformation and is retained only to carry its TransformNote.
	OpNoop OperationType = "noop"
)

// TargetType identifies what kind of object an operation edits.
type TargetType string

const (
	TargetNode       TargetType = "node"
	TargetMindmap    TargetType = "mindmap"
	TargetAttachment TargetType = "attachment"
	TargetLink       TargetType = "link"
)

// MovePayload carries the position/parent change of a move operation.
// Nil fields mean the aspect is untouched.
type MovePayload struct {
	ParentID *string  `json:"parent_id,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

// Copy returns an independent clone of the payload.
func (m *MovePayload) Copy() *MovePayload {
	if m == nil {
		return nil
	}
	clone := MovePayload{}
	if m.ParentID != nil {
		v := *m.ParentID
		clone.ParentID = &v
	}
	if m.X != nil {
		v := *m.X
		clone.X = &v
	}
	if m.Y != nil {
		v := *m.Y
		clone.Y = &v
	}
	return &clone
}

// Operation is one edit issued by a replica. ID, TargetID and the shape
// implied by Type never change after creation; transformation produces a
// replacement value instead of mutating the original.
type Operation struct {
	ID         valueobjects.OperationID `json:"id"`
	Type       OperationType            `json:"operation_type"`
	TargetType TargetType               `json:"target_type"`
	TargetID   string                   `json:"target_id"`
	MindmapID  string                   `json:"mindmap_id"`
	UserID     string                   `json:"userId"`

	// Timestamp is the author's wall clock in milliseconds; ties are broken
	// by UserID so ordering stays deterministic across replicas.
	Timestamp int64 `json:"timestamp"`

	// VectorClock is the snapshot of the originating session's clock at
	// issue time. May be nil for operations from legacy clients.
	VectorClock valueobjects.VectorClock `json:"vector_clock,omitempty"`

	// TransformNote is a human-readable reason, set only when transformation
	// rewrote or neutralized the operation.
	TransformNote string `json:"transform_note,omitempty"`

	// Variant payloads; exactly one is set for create/update/move.
	Create *entities.NodeData  `json:"data,omitempty"`
	Update *entities.NodePatch `json:"patch,omitempty"`
	Move   *MovePayload        `json:"move,omitempty"`

	// MergedFrom links a manually merged operation back to its sources.
	MergedFrom []string `json:"mergedFrom,omitempty"`
}

// NewCreate builds a create operation for a node.
func NewCreate(mindmapID, userID string, data *entities.NodeData) Operation {
	return Operation{
		ID:         valueobjects.NewOperationID(),
		Type:       OpCreate,
		TargetType: TargetNode,
		TargetID:   data.ID,
		MindmapID:  mindmapID,
		UserID:     userID,
		Timestamp:  time.Now().UnixMilli(),
		Create:     data,
	}
}

// NewUpdate builds an update operation against an existing node.
func NewUpdate(mindmapID, userID, targetID string, patch *entities.NodePatch) Operation {
	return Operation{
		ID:         valueobjects.NewOperationID(),
		Type:       OpUpdate,
		TargetType: TargetNode,
		TargetID:   targetID,
		MindmapID:  mindmapID,
		UserID:     userID,
		Timestamp:  time.Now().UnixMilli(),
		Update:     patch,
	}
}

// NewDelete builds a delete operation against an existing node.
func NewDelete(mindmapID, userID, targetID string) Operation {
	return Operation{
		ID:         valueobjects.NewOperationID(),
		Type:       OpDelete,
		TargetType: TargetNode,
		TargetID:   targetID,
		MindmapID:  mindmapID,
		UserID:     userID,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// NewMove builds a move operation against an existing node.
func NewMove(mindmapID, userID, targetID string, payload *MovePayload) Operation {
	return Operation{
		ID:         valueobjects.NewOperationID(),
		Type:       OpMove,
		TargetType: TargetNode,
		TargetID:   targetID,
		MindmapID:  mindmapID,
		UserID:     userID,
		Timestamp:  time.Now().UnixMilli(),
		Move:       payload,
	}
}

// Copy returns a deep clone of the operation. Transform results are built
// on copies so the operation held by the other replica is never touched.
func (op Operation) Copy() Operation {
	clone := op
	clone.VectorClock = op.VectorClock.Copy()
	clone.Create = op.Create.Copy()
	clone.Update = op.Update.Copy()
	clone.Move = op.Move.Copy()
	if op.MergedFrom != nil {
		clone.MergedFrom = make([]string, len(op.MergedFrom))
		copy(clone.MergedFrom, op.MergedFrom)
	}
	return clone
}

// AsNoop returns a replacement operation stripped of effect, keeping
// identity fields and recording why it was neutralized.
func (op Operation) AsNoop(note string) Operation {
	clone := op.Copy()
	clone.Type = OpNoop
	clone.TransformNote = note
	clone.Create = nil
	clone.Update = nil
	clone.Move = nil
	return clone
}

// IsNoop reports whether the operation has been stripped of effect.
func (op Operation) IsNoop() bool {
	return op.Type == OpNoop
}

// ParentID returns the parent node referenced by the operation's payload,
// or "" when the payload carries none.
func (op Operation) ParentID() string {
	switch op.Type {
	case OpCreate:
		if op.Create != nil {
			return op.Create.ParentID
		}
	case OpUpdate:
		if op.Update != nil && op.Update.ParentID != nil {
			return *op.Update.ParentID
		}
	case OpMove:
		if op.Move != nil && op.Move.ParentID != nil {
			return *op.Move.ParentID
		}
	}
	return ""
}
