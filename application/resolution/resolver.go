package resolution

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"mindsync/application/ports"
	"mindsync/domain/config"
	"mindsync/domain/core/operations"
	"mindsync/domain/events"
	pkgerrors "mindsync/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// historyEntry is one operation in the per-mindmap in-memory window, with
// the wall time it was admitted (for the retention sweep).
type historyEntry struct {
	op      operations.Operation
	addedAt time.Time
}

// Resolver orchestrates conflict detection, transformation, manual
// escalation and bookkeeping for concurrent mind-map edits.
//
// A single mutex serializes every touch of the per-mindmap history and the
// pending-conflict queue; the lock is never held across a call to a
// collaborator, so slow persistence or transport cannot stall detection.
type Resolver struct {
	cfg         *config.SyncConfig
	transformer *operations.Transformer
	store       ports.OperationStore
	publisher   ports.EventPublisher
	logger      *zap.Logger

	mu         sync.Mutex
	history    map[string][]historyEntry
	pending    map[string]*ConflictData
	strategies map[StrategyKey]AutoStrategy
	metrics    resolverMetrics
	closed     bool

	now func() time.Time

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewResolver creates a resolver and starts its periodic cleanup loop.
// Call Close on teardown; no resolution is possible afterward.
func NewResolver(
	cfg *config.SyncConfig,
	transformer *operations.Transformer,
	store ports.OperationStore,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *Resolver {
	if cfg == nil {
		cfg = config.DefaultSyncConfig()
	}
	r := &Resolver{
		cfg:         cfg,
		transformer: transformer,
		store:       store,
		publisher:   publisher,
		logger:      logger,
		history:     make(map[string][]historyEntry),
		pending:     make(map[string]*ConflictData),
		strategies:  defaultStrategyTable(),
		now:         time.Now,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// StrategyFor returns the configured auto-resolution policy for an
// operation/target combination. Reporting only; the transform pipeline is
// never bypassed.
func (r *Resolver) StrategyFor(opType operations.OperationType, target operations.TargetType) (AutoStrategy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[StrategyKey{OperationType: opType, TargetType: target}]
	if !ok || !s.Enabled {
		return AutoStrategy{}, false
	}
	return s, true
}

// ResolveOperation runs one incoming operation through the pipeline:
// look up causally-concurrent related history, transform pairwise, and
// either hand back an operation to apply or queue the conflict for manual
// resolution. Pipeline failures never propagate as errors; they surface as
// RequiresManualResolution on the result.
func (r *Resolver) ResolveOperation(ctx context.Context, op operations.Operation) (Resolution, error) {
	if op.ID.IsZero() || op.MindmapID == "" {
		return Resolution{}, pkgerrors.NewValidationError("operation must carry an id and a mindmap id")
	}

	start := r.now()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Resolution{}, pkgerrors.NewInternalError("resolver is closed")
	}

	concurrent := r.concurrentEntries(op)
	if len(concurrent) == 0 {
		r.appendHistory(op)
		r.mu.Unlock()

		r.persistAndAnnounce(ctx, op, false)
		return Resolution{Applied: op, ShouldApply: true}, nil
	}

	r.metrics.recordConflict(start)

	outcome, err := r.performTransformation(op, concurrent)
	if err != nil {
		conflict := r.enqueueConflictLocked(op, concurrent, err)
		r.mu.Unlock()

		r.announceManual(ctx, conflict)
		return Resolution{
			Applied:                  op,
			ShouldApply:              false,
			RequiresManualResolution: true,
			ConflictID:               conflict.ID,
		}, nil
	}

	// Swap rewritten local counterparts into the history window before
	// anyone else can race them.
	for _, upd := range outcome.updatedLocals {
		r.replaceHistoryLocked(op.MindmapID, upd)
	}
	if !outcome.final.IsNoop() {
		r.appendHistory(outcome.final)
	}
	r.metrics.recordResolved(r.now().Sub(start))
	r.mu.Unlock()

	// Collaborator side effects happen outside the lock.
	for _, upd := range outcome.updatedLocals {
		r.publish(ctx, events.NewLocalOperationUpdated(op.MindmapID, upd, r.now()))
	}
	if !outcome.final.IsNoop() {
		r.persistAndAnnounce(ctx, outcome.final, outcome.transformed)
	}

	return Resolution{
		Applied:      outcome.final,
		ShouldApply:  !outcome.final.IsNoop(),
		Transformed:  outcome.transformed,
		TransformLog: outcome.log,
	}, nil
}

// transformOutcome is the pure result of folding an incoming operation
// through concurrent history.
type transformOutcome struct {
	final         operations.Operation
	updatedLocals []operations.Operation
	log           []TransformRecord
	transformed   bool
}

// performTransformation folds the incoming operation through every
// concurrent history entry. A panic inside the transform (malformed
// payload shapes from remote clients) is converted into an error so the
// caller can route the operation to the manual queue; shared state is
// never touched here.
func (r *Resolver) performTransformation(op operations.Operation, concurrent []operations.Operation) (outcome transformOutcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.NewInternalError(fmt.Sprintf("transform pipeline panic: %v", rec))
		}
	}()

	current := op
	for _, local := range concurrent {
		transformedIncoming, transformedLocal := r.transformer.Transform(current, local)

		record := TransformRecord{
			AgainstOperationID: local.ID.String(),
			IncomingChanged:    !reflect.DeepEqual(transformedIncoming, current),
			LocalChanged:       !reflect.DeepEqual(transformedLocal, local),
			IncomingNeutered:   transformedIncoming.IsNoop(),
		}
		outcome.log = append(outcome.log, record)

		if record.IncomingChanged || record.LocalChanged {
			outcome.transformed = true
		}
		if record.LocalChanged {
			outcome.updatedLocals = append(outcome.updatedLocals, transformedLocal)
		}
		current = transformedIncoming
	}

	outcome.final = current
	return outcome, nil
}

// concurrentEntries returns the history operations that are related to the
// incoming one AND causally concurrent with it. Causally-ordered edits are
// not conflicts: if one replica already saw the other's change, the
// vector clocks order them and the pair is skipped.
func (r *Resolver) concurrentEntries(op operations.Operation) []operations.Operation {
	var out []operations.Operation
	for _, entry := range r.history[op.MindmapID] {
		if !r.transformer.AreRelated(op, entry.op) {
			continue
		}
		if !entry.op.VectorClock.IsConcurrent(op.VectorClock) {
			continue
		}
		out = append(out, entry.op)
	}
	return out
}

// appendHistory admits an operation to the in-memory window, evicting the
// oldest entry once the cap is reached. Strict insertion-order trim, not
// LRU.
func (r *Resolver) appendHistory(op operations.Operation) {
	entries := append(r.history[op.MindmapID], historyEntry{op: op, addedAt: r.now()})
	if len(entries) > r.cfg.MaxHistoryEntries {
		entries = entries[len(entries)-r.cfg.MaxHistoryEntries:]
	}
	r.history[op.MindmapID] = entries
}

// replaceHistoryLocked swaps a transformed local operation in place of its
// original history entry.
func (r *Resolver) replaceHistoryLocked(mindmapID string, op operations.Operation) {
	entries := r.history[mindmapID]
	for i := range entries {
		if entries[i].op.ID.Equals(op.ID) {
			entries[i].op = op
			return
		}
	}
}

// enqueueConflictLocked creates a pending ConflictData entry for the
// operator. The caller holds the mutex.
func (r *Resolver) enqueueConflictLocked(op operations.Operation, locals []operations.Operation, cause error) *ConflictData {
	conflict := &ConflictData{
		ID:       uuid.New().String(),
		Incoming: op,
		Local:    locals,
		Status:   ConflictPending,
		Attempts: 1,
		Created:  r.now(),
		Error:    cause.Error(),
	}
	if len(locals) > 0 {
		conflict.Analysis = r.transformer.ClassifyConflict(op, locals[0])
	}

	r.pending[conflict.ID] = conflict
	r.metrics.recordManual()

	if len(r.pending) > r.cfg.MaxPendingConflicts {
		r.logger.Warn("pending conflict queue above configured bound",
			zap.Int("pending", len(r.pending)),
			zap.Int("max", r.cfg.MaxPendingConflicts),
		)
	}
	return conflict
}

// PendingConflicts returns a snapshot of the manual-resolution queue.
func (r *Resolver) PendingConflicts() []ConflictData {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ConflictData, 0, len(r.pending))
	for _, c := range r.pending {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Conflict returns one queued conflict by id.
func (r *Resolver) Conflict(conflictID string) (ConflictData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.pending[conflictID]
	if !ok {
		return ConflictData{}, pkgerrors.NewNotFoundError("conflict " + conflictID)
	}
	return *c, nil
}

// ResolveManually settles a queued conflict with an operator decision.
// Unknown conflict ids and unknown strategies fail fast and leave the
// queue untouched. The returned operation (nil for reject_all and defer)
// is what the caller should apply to document state.
func (r *Resolver) ResolveManually(ctx context.Context, conflictID string, choice ManualChoice) (*operations.Operation, error) {
	r.mu.Lock()
	conflict, ok := r.pending[conflictID]
	if !ok {
		r.mu.Unlock()
		return nil, pkgerrors.NewNotFoundError("conflict " + conflictID)
	}

	var resolved *operations.Operation
	switch choice.Strategy {
	case StrategyAcceptLocal:
		op, err := pickLocal(conflict, choice.LocalOperationID)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		resolved = &op

	case StrategyAcceptRemote:
		op := conflict.Incoming.Copy()
		resolved = &op

	case StrategyMergeCustom:
		if choice.MergedData == nil {
			r.mu.Unlock()
			return nil, pkgerrors.NewValidationError("merge_custom requires merged data")
		}
		op := buildMergedOperation(conflict, choice)
		resolved = &op

	case StrategyRejectAll:
		resolved = nil

	case StrategyDefer:
		// Leave the conflict queued for a later pass.
		conflict.Status = ConflictPending
		conflict.Attempts++
		r.mu.Unlock()
		return nil, nil

	default:
		r.mu.Unlock()
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("invalid resolution strategy %q", choice.Strategy))
	}

	conflict.Status = ConflictSettled
	delete(r.pending, conflictID)
	if resolved != nil {
		r.appendHistory(*resolved)
	}
	mindmapID := conflict.Incoming.MindmapID
	r.mu.Unlock()

	r.publish(ctx, events.NewConflictResolved(mindmapID, conflictID, string(choice.Strategy), r.now()))
	if resolved != nil {
		r.persistAndAnnounce(ctx, *resolved, true)
	}

	r.logger.Info("conflict resolved manually",
		zap.String("conflictID", conflictID),
		zap.String("strategy", string(choice.Strategy)),
		zap.String("mindmapID", mindmapID),
	)
	return resolved, nil
}

// pickLocal selects the recorded local operation named by the choice, or
// the first one when unspecified.
func pickLocal(conflict *ConflictData, localOperationID string) (operations.Operation, error) {
	if len(conflict.Local) == 0 {
		return operations.Operation{}, pkgerrors.NewValidationError("conflict has no local operations to accept")
	}
	if localOperationID == "" {
		return conflict.Local[0].Copy(), nil
	}
	for _, op := range conflict.Local {
		if op.ID.String() == localOperationID {
			return op.Copy(), nil
		}
	}
	return operations.Operation{}, pkgerrors.NewNotFoundError("local operation " + localOperationID)
}

// buildMergedOperation constructs a fresh update from operator-supplied
// data, linked back to both sources.
func buildMergedOperation(conflict *ConflictData, choice ManualChoice) operations.Operation {
	merged := operations.NewUpdate(
		conflict.Incoming.MindmapID,
		choice.ResolvedBy,
		conflict.Incoming.TargetID,
		choice.MergedData,
	)
	merged.MergedFrom = append(merged.MergedFrom, conflict.Incoming.ID.String())
	for _, local := range conflict.Local {
		merged.MergedFrom = append(merged.MergedFrom, local.ID.String())
	}
	return merged
}

// ResolveBatch partitions operations into fixed-size batches and resolves
// each under its own timeout. A stalled batch fails with a timeout error
// without blocking the remaining batches or corrupting history already
// committed by earlier ones. Resolutions from successful batches are
// returned alongside the joined per-batch errors.
func (r *Resolver) ResolveBatch(ctx context.Context, ops []operations.Operation) ([]Resolution, error) {
	sorted := make([]operations.Operation, len(ops))
	copy(sorted, ops)
	if r.cfg.PrioritizeByTimestamp {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})
	}

	batchSize := r.cfg.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var results []Resolution
	var errs []error
	for start := 0; start < len(sorted); start += batchSize {
		end := start + batchSize
		if end > len(sorted) {
			end = len(sorted)
		}

		batchResults, err := r.resolveOneBatch(ctx, sorted[start:end])
		results = append(results, batchResults...)
		if err != nil {
			errs = append(errs, err)
			r.logger.Warn("batch resolution failed",
				zap.Int("batchStart", start),
				zap.Int("batchSize", end-start),
				zap.Error(err),
			)
		}
	}
	return results, errors.Join(errs...)
}

// resolveOneBatch runs a single batch under the per-batch timeout,
// checking the deadline between operations. A timed-out batch abandons its
// remaining work, but every resolution that already committed is returned
// alongside the timeout error: operations were persisted and announced, so
// dropping their results would leave the caller retrying edits that are
// already applied.
func (r *Resolver) resolveOneBatch(ctx context.Context, batch []operations.Operation) ([]Resolution, error) {
	batchCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	var resolutions []Resolution
	for _, op := range batch {
		if err := batchCtx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return resolutions, pkgerrors.NewTimeoutError("batch resolution")
			}
			return resolutions, err
		}
		res, err := r.ResolveOperation(batchCtx, op)
		if err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, res)
	}
	return resolutions, nil
}

// Metrics returns a point-in-time snapshot of the resolver's counters.
func (r *Resolver) Metrics() ports.MetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics.snapshot(r.now(), len(r.pending))
}

// HistoryLen reports the current in-memory window size for a mindmap.
func (r *Resolver) HistoryLen(mindmapID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history[mindmapID])
}

// persistAndAnnounce appends a resolved operation to durable storage and
// publishes the resolved event. Both collaborators are fallible and slow;
// neither is called under the lock, and a failure is logged rather than
// unwinding a resolution that already committed.
func (r *Resolver) persistAndAnnounce(ctx context.Context, op operations.Operation, transformed bool) {
	if r.store != nil {
		if err := r.store.Append(ctx, op); err != nil {
			r.logger.Error("failed to persist resolved operation",
				zap.String("operationID", op.ID.String()),
				zap.String("mindmapID", op.MindmapID),
				zap.Error(err),
			)
		}
	}
	r.publish(ctx, events.NewOperationResolved(op.MindmapID, op, transformed, r.now()))
}

// announceManual notifies the transport collaborator that a conflict needs
// a human decision.
func (r *Resolver) announceManual(ctx context.Context, conflict *ConflictData) {
	r.logger.Warn("conflict queued for manual resolution",
		zap.String("conflictID", conflict.ID),
		zap.String("mindmapID", conflict.Incoming.MindmapID),
		zap.String("reason", conflict.Error),
	)
	r.publish(ctx, events.NewManualResolutionRequired(
		conflict.Incoming.MindmapID,
		conflict.ID,
		conflict.Incoming,
		conflict.Error,
		r.now(),
	))
}

func (r *Resolver) publish(ctx context.Context, event events.DomainEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("failed to publish sync event",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err),
		)
	}
}

// cleanupLoop drops history entries and pending conflicts past their
// retention on a fixed interval, independent of request traffic.
func (r *Resolver) cleanupLoop() {
	defer close(r.stoppedChan)

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.cleanupExpired()
		}
	}
}

// cleanupExpired performs one retention sweep. The window cap and the age
// limit apply independently; whichever is smaller wins at any instant.
func (r *Resolver) cleanupExpired() {
	now := r.now()
	historyCutoff := now.Add(-r.cfg.HistoryRetention)
	conflictCutoff := now.Add(-r.cfg.ConflictRetention)

	r.mu.Lock()
	defer r.mu.Unlock()

	droppedOps := 0
	for mindmapID, entries := range r.history {
		kept := entries[:0]
		for _, e := range entries {
			if e.addedAt.After(historyCutoff) {
				kept = append(kept, e)
			} else {
				droppedOps++
			}
		}
		if len(kept) == 0 {
			delete(r.history, mindmapID)
		} else {
			r.history[mindmapID] = kept
		}
	}

	droppedConflicts := 0
	for id, c := range r.pending {
		if c.Created.Before(conflictCutoff) {
			delete(r.pending, id)
			droppedConflicts++
		}
	}

	if droppedOps > 0 || droppedConflicts > 0 {
		r.logger.Debug("cleanup sweep completed",
			zap.Int("droppedOperations", droppedOps),
			zap.Int("droppedConflicts", droppedConflicts),
		)
	}
}

// Close stops the cleanup loop and clears all state. The resolver cannot
// be reused afterward.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.history = make(map[string][]historyEntry)
	r.pending = make(map[string]*ConflictData)
	r.mu.Unlock()

	close(r.stopChan)
	<-r.stoppedChan
	r.logger.Info("resolver stopped")
}
