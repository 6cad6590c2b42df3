package operations

import (
	"fmt"
	"sort"

	"mindsync/domain/config"
	"mindsync/domain/core/entities"
	"mindsync/domain/core/valueobjects"
)

// Transformer implements pairwise operational transformation over the
// operation vocabulary. It is pure and deterministic: the only inputs that
// influence a decision are the two operations themselves. Pairs the
// dispatch table does not recognize pass through unchanged, so Transform is
// total and never returns an error.
type Transformer struct {
	cfg *config.SyncConfig
}

// NewTransformer creates a transformer with the given sync configuration.
func NewTransformer(cfg *config.SyncConfig) *Transformer {
	if cfg == nil {
		cfg = config.DefaultSyncConfig()
	}
	return &Transformer{cfg: cfg}
}

// AreRelated reports whether two operations can conflict at all: identical
// target, or (for node targets) a parent/child or sibling relationship.
// Unrelated operations are never transformed, which keeps the pairwise scan
// over concurrent history bounded to genuinely conflicting pairs.
func (t *Transformer) AreRelated(a, b Operation) bool {
	if a.TargetID == b.TargetID {
		return true
	}
	if a.TargetType != TargetNode || b.TargetType != TargetNode {
		return false
	}

	// Parent/child: one operation's payload points at the other's target.
	if a.ParentID() != "" && a.ParentID() == b.TargetID {
		return true
	}
	if b.ParentID() != "" && b.ParentID() == a.TargetID {
		return true
	}

	// Siblings: both payloads name the same parent.
	if a.ParentID() != "" && a.ParentID() == b.ParentID() {
		return true
	}

	return false
}

// DeterminePriority returns the operation that takes precedence: the one
// with the numerically larger timestamp, or on an exact tie the one whose
// user id sorts lexicographically smaller. The order is total and
// identical on every replica, which is what makes concurrent resolution
// converge without coordination.
func (t *Transformer) DeterminePriority(a, b Operation) Operation {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return a
		}
		return b
	}
	if a.UserID <= b.UserID {
		return a
	}
	return b
}

// earlierOf returns the operation issued first under the same total order
// DeterminePriority uses. Ties resolve to the smaller user id, mirroring
// the precedence rule so both helpers pick consistently.
func (t *Transformer) earlierOf(a, b Operation) Operation {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return a
		}
		return b
	}
	if a.UserID <= b.UserID {
		return a
	}
	return b
}

// Transform rewrites a pair of concurrent operations into a conflict-free
// pair. Inputs are never mutated; results are fresh values.
func (t *Transformer) Transform(op1, op2 Operation) (Operation, Operation) {
	if !t.AreRelated(op1, op2) {
		return op1, op2
	}

	switch {
	case op1.Type == OpUpdate && op2.Type == OpUpdate:
		return t.transformUpdateUpdate(op1, op2)
	case op1.Type == OpUpdate && op2.Type == OpDelete:
		a, b := t.transformUpdateDelete(op1, op2)
		return a, b
	case op1.Type == OpDelete && op2.Type == OpUpdate:
		b, a := t.transformUpdateDelete(op2, op1)
		return a, b
	case op1.Type == OpDelete && op2.Type == OpDelete:
		return t.transformDeleteDelete(op1, op2)
	case op1.Type == OpMove && op2.Type == OpMove:
		return t.transformMoveMove(op1, op2)
	case op1.Type == OpUpdate && op2.Type == OpMove,
		op1.Type == OpMove && op2.Type == OpUpdate:
		// Disjoint aspects: properties versus position/parent.
		return op1, op2
	case op1.Type == OpCreate && op2.Type == OpCreate:
		return t.transformCreateCreate(op1, op2)
	case op1.Type == OpCreate && op2.Type == OpDelete:
		return t.transformCreateDelete(op1, op2)
	default:
		// Includes delete-then-recreate and every pair involving a noop:
		// both sides pass through unchanged.
		return op1, op2
	}
}

// transformUpdateUpdate resolves two concurrent updates of the same node.
// The priority winner's values overwrite the loser's matching fields, so
// applying the pair in either order converges on the winner's state.
// Fields only one side touched always survive.
func (t *Transformer) transformUpdateUpdate(op1, op2 Operation) (Operation, Operation) {
	if op1.TargetID != op2.TargetID {
		return op1, op2
	}

	winner := t.DeterminePriority(op1, op2)
	if winner.ID.Equals(op1.ID) {
		loser := op2.Copy()
		loser.Update = t.mergeFieldUpdates(op1.Update, op2.Update)
		loser.TransformNote = fmt.Sprintf("fields overridden by concurrent update %s", op1.ID)
		return op1, loser
	}

	loser := op1.Copy()
	loser.Update = t.mergeFieldUpdates(op2.Update, op1.Update)
	loser.TransformNote = fmt.Sprintf("fields overridden by concurrent update %s", op2.ID)
	return loser, op2
}

// transformUpdateDelete resolves an update racing a delete of the same
// node. The delete always wins; the update is neutralized.
func (t *Transformer) transformUpdateDelete(update, del Operation) (Operation, Operation) {
	if update.TargetID != del.TargetID {
		return update, del
	}
	noop := update.AsNoop(fmt.Sprintf("target deleted by %s", del.ID))
	return noop, del
}

// transformDeleteDelete resolves two concurrent deletes of the same node.
// The earlier delete survives; the other arrives at an already-deleted
// node and is neutralized.
func (t *Transformer) transformDeleteDelete(op1, op2 Operation) (Operation, Operation) {
	if op1.TargetID != op2.TargetID {
		return op1, op2
	}
	survivor := t.earlierOf(op1, op2)
	if survivor.ID.Equals(op1.ID) {
		return op1, op2.AsNoop(fmt.Sprintf("already deleted by %s", op1.ID))
	}
	return op1.AsNoop(fmt.Sprintf("already deleted by %s", op2.ID)), op2
}

// transformMoveMove resolves two concurrent moves of the same node. The
// later move wins; a node cannot end up in two places.
func (t *Transformer) transformMoveMove(op1, op2 Operation) (Operation, Operation) {
	if op1.TargetID != op2.TargetID {
		return op1, op2
	}
	winner := t.DeterminePriority(op1, op2)
	if winner.ID.Equals(op1.ID) {
		return op1, op2.AsNoop(fmt.Sprintf("overridden by move %s", op1.ID))
	}
	return op1.AsNoop(fmt.Sprintf("overridden by move %s", op2.ID)), op2
}

// transformCreateCreate resolves two creates. Same target id means a
// duplicated creation: the one issued first materializes the node and the
// other is neutralized. Different targets never conflict.
func (t *Transformer) transformCreateCreate(op1, op2 Operation) (Operation, Operation) {
	if op1.TargetID != op2.TargetID {
		return op1, op2
	}
	winner := t.earlierOf(op1, op2)
	if winner.ID.Equals(op1.ID) {
		return op1, op2.AsNoop(fmt.Sprintf("already created by %s", op1.ID))
	}
	return op1.AsNoop(fmt.Sprintf("already created by %s", op2.ID)), op2
}

// transformCreateDelete resolves a create racing a delete of the same id:
// the delete targets a node that has not materialized yet, so the delete is
// neutralized and the create survives. The reverse order (delete, create)
// is a valid delete-then-recreate and passes through untouched.
func (t *Transformer) transformCreateDelete(create, del Operation) (Operation, Operation) {
	if create.TargetID != del.TargetID {
		return create, del
	}
	noop := del.AsNoop(fmt.Sprintf("target does not exist yet, being created by %s", create.ID))
	return create, noop
}

// mergeFieldUpdates rewrites the loser's patch so that every field both
// sides touched carries the winner's value. The merged set is fixed:
// text, x, y, fontSize, fontWeight, color, collapsed. Fields only the
// loser touched are preserved; fields only the winner touched stay out of
// the loser's patch entirely.
func (t *Transformer) mergeFieldUpdates(winner, loser *entities.NodePatch) *entities.NodePatch {
	if winner == nil || loser == nil {
		return loser.Copy()
	}
	merged := loser.Copy()
	if winner.Text != nil && merged.Text != nil {
		v := *winner.Text
		merged.Text = &v
	}
	if winner.X != nil && merged.X != nil {
		v := *winner.X
		merged.X = &v
	}
	if winner.Y != nil && merged.Y != nil {
		v := *winner.Y
		merged.Y = &v
	}
	if winner.FontSize != nil && merged.FontSize != nil {
		v := *winner.FontSize
		merged.FontSize = &v
	}
	if winner.FontWeight != nil && merged.FontWeight != nil {
		v := *winner.FontWeight
		merged.FontWeight = &v
	}
	if winner.Color != nil && merged.Color != nil {
		v := *winner.Color
		merged.Color = &v
	}
	if winner.Collapsed != nil && merged.Collapsed != nil {
		v := *winner.Collapsed
		merged.Collapsed = &v
	}
	return merged
}

// TransformBatch resolves a flat list of operations into a conflict-free
// sequence: sort by timestamp ascending, fold each operation through every
// already-accepted one (rewriting both sides as it goes), then drop the
// operations that ended up as noops.
//
// The left fold is order-independent for the pairs the dispatch table
// handles; chains outside the table (three-way create/create/delete and
// the like) pass through and are not verified transitively consistent.
func (t *Transformer) TransformBatch(ops []Operation) []Operation {
	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	accepted := make([]Operation, 0, len(sorted))
	for _, op := range sorted {
		current := op
		for i := range accepted {
			current, accepted[i] = t.Transform(current, accepted[i])
		}
		accepted = append(accepted, current)
	}

	result := make([]Operation, 0, len(accepted))
	for _, op := range accepted {
		if !op.IsNoop() {
			result = append(result, op)
		}
	}
	return result
}

// AnalyzeDependencies builds an adjacency map of mutually related
// operations, keyed by operation id. Consumers use it for visualization
// and diagnostics; resolution never reads it.
func (t *Transformer) AnalyzeDependencies(ops []Operation) map[string][]string {
	deps := make(map[string][]string, len(ops))
	for i := range ops {
		deps[ops[i].ID.String()] = []string{}
	}
	for i := range ops {
		for j := i + 1; j < len(ops); j++ {
			if t.AreRelated(ops[i], ops[j]) {
				a := ops[i].ID.String()
				b := ops[j].ID.String()
				deps[a] = append(deps[a], b)
				deps[b] = append(deps[b], a)
			}
		}
	}
	return deps
}

// movePosition extracts the destination of a move operation. The second
// return is false when the payload carries no usable coordinates.
func movePosition(op Operation) (valueobjects.Position, bool) {
	if op.Type != OpMove || op.Move == nil {
		return valueobjects.Position{}, false
	}
	if op.Move.X == nil || op.Move.Y == nil {
		return valueobjects.Position{}, false
	}
	return valueobjects.NewPosition(*op.Move.X, *op.Move.Y), true
}

// DetectPositionConflict reports whether two moves land their targets
// within the collision threshold of each other. This geometry check is a
// separate tool from Transform: it runs only when explicitly invoked, so
// unrelated nodes dropped near each other are not silently rewritten.
func (t *Transformer) DetectPositionConflict(a, b Operation) bool {
	pa, ok := movePosition(a)
	if !ok {
		return false
	}
	pb, ok := movePosition(b)
	if !ok {
		return false
	}
	return pa.DistanceTo(pb) <= t.cfg.PositionCollisionThreshold
}

// ResolvePositionConflict nudges the lower-priority move sideways so both
// nodes stay visible. The winner is untouched.
func (t *Transformer) ResolvePositionConflict(a, b Operation) (Operation, Operation) {
	if !t.DetectPositionConflict(a, b) {
		return a, b
	}
	winner := t.DeterminePriority(a, b)
	nudge := func(op Operation) Operation {
		moved := op.Copy()
		if moved.Move != nil && moved.Move.X != nil {
			x := *moved.Move.X + t.cfg.PositionNudgeOffset
			moved.Move.X = &x
		}
		moved.TransformNote = fmt.Sprintf("position nudged to avoid collision with %s", winner.ID)
		return moved
	}
	if winner.ID.Equals(a.ID) {
		return a, nudge(b)
	}
	return nudge(a), b
}

// ConflictKind labels a recognized conflict shape for UI and metrics
// consumption. Classification never alters resolution outcomes.
type ConflictKind string

const (
	ConflictConcurrentDelete  ConflictKind = "concurrent_delete"
	ConflictUpdateDelete      ConflictKind = "update_delete_conflict"
	ConflictConcurrentMove    ConflictKind = "concurrent_move"
	ConflictDuplicateCreation ConflictKind = "duplicate_creation"
	ConflictConcurrentUpdate  ConflictKind = "concurrent_update"
)

// Severity grades how disruptive a conflict kind is to the document.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConflictPattern tags a pair of operations with a recognized conflict
// shape.
type ConflictPattern struct {
	Kind         ConflictKind `json:"type"`
	Severity     Severity     `json:"severity"`
	OperationIDs []string     `json:"operation_ids"`
}

// ClassifyConflict labels a pair of operations on the same target, or
// returns nil when the pair matches no known pattern.
func (t *Transformer) ClassifyConflict(a, b Operation) *ConflictPattern {
	if a.TargetID != b.TargetID {
		return nil
	}

	pattern := func(kind ConflictKind, severity Severity) *ConflictPattern {
		return &ConflictPattern{
			Kind:         kind,
			Severity:     severity,
			OperationIDs: []string{a.ID.String(), b.ID.String()},
		}
	}

	switch {
	case a.Type == OpDelete && b.Type == OpDelete:
		return pattern(ConflictConcurrentDelete, SeverityMedium)
	case (a.Type == OpUpdate && b.Type == OpDelete) || (a.Type == OpDelete && b.Type == OpUpdate):
		return pattern(ConflictUpdateDelete, SeverityHigh)
	case a.Type == OpMove && b.Type == OpMove:
		return pattern(ConflictConcurrentMove, SeverityLow)
	case a.Type == OpCreate && b.Type == OpCreate:
		return pattern(ConflictDuplicateCreation, SeverityHigh)
	case a.Type == OpUpdate && b.Type == OpUpdate:
		return pattern(ConflictConcurrentUpdate, SeverityMedium)
	default:
		return nil
	}
}

// DetectConflictPatterns scans a list of operations pairwise and collects
// every recognized pattern.
func (t *Transformer) DetectConflictPatterns(ops []Operation) []ConflictPattern {
	var patterns []ConflictPattern
	for i := range ops {
		for j := i + 1; j < len(ops); j++ {
			if p := t.ClassifyConflict(ops[i], ops[j]); p != nil {
				patterns = append(patterns, *p)
			}
		}
	}
	return patterns
}
