package resolution

import (
	"time"

	"mindsync/domain/core/entities"
	"mindsync/domain/core/operations"
)

// ConflictStatus tracks where a queued conflict sits in its lifecycle.
type ConflictStatus string

const (
	ConflictPending   ConflictStatus = "pending"
	ConflictInReview  ConflictStatus = "in_review"
	ConflictSettled   ConflictStatus = "resolved"
	ConflictEscalated ConflictStatus = "escalated"
)

// ConflictData is one entry in the manual-resolution queue: the incoming
// operation the pipeline could not settle, the local operations it clashed
// with, and bookkeeping for the operator.
type ConflictData struct {
	ID       string                 `json:"id"`
	Incoming operations.Operation   `json:"incoming_operation"`
	Local    []operations.Operation `json:"local_operations"`
	Status   ConflictStatus         `json:"status"`
	Attempts int                    `json:"attempts"`
	Created  time.Time              `json:"timestamp"`

	// Error preserves the original failure message for operator visibility.
	Error string `json:"error,omitempty"`

	// Analysis carries the classified pattern when one was recognized.
	Analysis *operations.ConflictPattern `json:"analysis,omitempty"`
}

// StrategyName identifies a resolution strategy.
type StrategyName string

const (
	StrategyAcceptLocal  StrategyName = "accept_local"
	StrategyAcceptRemote StrategyName = "accept_remote"
	StrategyMergeCustom  StrategyName = "merge_custom"
	StrategyRejectAll    StrategyName = "reject_all"
	StrategyDefer        StrategyName = "defer"
)

// ManualChoice is an operator's decision for one queued conflict.
type ManualChoice struct {
	Strategy StrategyName `json:"strategy"`

	// LocalOperationID selects which recorded local operation wins under
	// accept_local; empty means the first one.
	LocalOperationID string `json:"local_operation_id,omitempty"`

	// MergedData supplies the payload for merge_custom.
	MergedData *entities.NodePatch `json:"merged_data,omitempty"`

	// ResolvedBy attributes the decision.
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// StrategyKey indexes the auto-resolution rule table.
type StrategyKey struct {
	OperationType operations.OperationType
	TargetType    operations.TargetType
}

// AutoStrategy is a prioritized, enable-able policy hint per operation/
// target combination. The table is consulted for policy and reporting;
// the mechanical resolution always goes through the transform pipeline.
type AutoStrategy struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// defaultStrategyTable mirrors how each operation pair actually resolves,
// so reporting stays truthful about pipeline behavior.
func defaultStrategyTable() map[StrategyKey]AutoStrategy {
	return map[StrategyKey]AutoStrategy{
		{operations.OpMove, operations.TargetNode}:   {Name: "last_writer_wins", Priority: 1, Enabled: true},
		{operations.OpUpdate, operations.TargetNode}: {Name: "field_level_merge", Priority: 1, Enabled: true},
		{operations.OpDelete, operations.TargetNode}: {Name: "delete_wins", Priority: 2, Enabled: true},
		{operations.OpCreate, operations.TargetNode}: {Name: "first_writer_wins", Priority: 1, Enabled: true},
	}
}

// Resolution is what the caller gets back for one incoming operation.
type Resolution struct {
	// Applied is the operation to apply to document state when ShouldApply
	// is true. It may differ from the submitted operation.
	Applied operations.Operation `json:"applied"`

	ShouldApply              bool   `json:"should_apply"`
	RequiresManualResolution bool   `json:"requires_manual_resolution"`
	ConflictID               string `json:"conflict_id,omitempty"`

	// Transformed reports whether any concurrent history entry rewrote the
	// operation on the way through.
	Transformed bool `json:"transformed"`

	// TransformLog is the audit trail of every pairwise transform applied.
	TransformLog []TransformRecord `json:"transform_log,omitempty"`
}

// TransformRecord is one step of the transform audit trail.
type TransformRecord struct {
	AgainstOperationID string `json:"against_operation_id"`
	IncomingChanged    bool   `json:"incoming_changed"`
	LocalChanged       bool   `json:"local_changed"`
	IncomingNeutered   bool   `json:"incoming_neutered"`
}
