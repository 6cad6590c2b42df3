package handlers

import (
	"net/http"
	"strconv"

	"mindsync/application/ports"
	"mindsync/application/resolution"
	"mindsync/domain/core/operations"
	"mindsync/domain/core/valueobjects"
	"mindsync/pkg/auth"
	"mindsync/pkg/common"
	pkgerrors "mindsync/pkg/errors"
	"mindsync/pkg/observability"

	"go.uber.org/zap"
)

const maxOperationBodyBytes = 1 << 20 // 1 MiB

// SyncHandler exposes the conflict-resolution pipeline over HTTP.
type SyncHandler struct {
	resolver *resolution.Resolver
	store    ports.OperationStore
	tracer   *observability.Tracer
	logger   *zap.Logger
}

// NewSyncHandler creates a sync handler. tracer may be nil when tracing is
// disabled.
func NewSyncHandler(resolver *resolution.Resolver, store ports.OperationStore, tracer *observability.Tracer, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		resolver: resolver,
		store:    store,
		tracer:   tracer,
		logger:   logger,
	}
}

// SubmitOperation resolves one incoming operation.
// POST /api/v1/sync/operations
func (h *SyncHandler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	var op operations.Operation
	if err := common.ParseJSONBody(r, &op, maxOperationBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid operation payload")
		return
	}

	if err := h.stampSubmitter(r, &op); err != nil {
		common.RespondAppError(w, err)
		return
	}

	result, err := h.resolver.ResolveOperation(r.Context(), op)
	if err != nil {
		h.logger.Warn("operation resolution rejected",
			zap.String("operationID", op.ID.String()),
			zap.Error(err),
		)
		common.RespondAppError(w, err)
		return
	}

	if h.tracer != nil {
		h.tracer.TraceResolution(r.Context(), op.MindmapID, result.Transformed, result.RequiresManualResolution)
	}

	status := http.StatusOK
	if result.RequiresManualResolution {
		status = http.StatusConflict
	}
	common.RespondJSON(w, status, result)
}

// SubmitBatch resolves a list of operations in timestamp order.
// POST /api/v1/sync/operations/batch
func (h *SyncHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operations []operations.Operation `json:"operations"`
	}
	if err := common.ParseJSONBody(r, &body, 8*maxOperationBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid batch payload")
		return
	}
	if len(body.Operations) == 0 {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "batch contains no operations")
		return
	}

	for i := range body.Operations {
		if err := h.stampSubmitter(r, &body.Operations[i]); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}

	results, err := h.resolver.ResolveBatch(r.Context(), body.Operations)
	if err != nil && len(results) == 0 {
		common.RespondAppError(w, err)
		return
	}

	response := map[string]interface{}{
		"results": results,
	}
	if err != nil {
		// Partial success: some batches resolved, others failed.
		response["partial_failure"] = err.Error()
	}
	common.RespondJSON(w, http.StatusOK, response)
}

// RecentOperations returns the durable operation log tail for a mindmap.
// GET /api/v1/sync/operations?mindmap_id=...&limit=...
func (h *SyncHandler) RecentOperations(w http.ResponseWriter, r *http.Request) {
	mindmapID := r.URL.Query().Get("mindmap_id")
	if mindmapID == "" {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "mindmap_id is required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			common.RespondError(w, http.StatusBadRequest, "VALIDATION", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	ops, err := h.store.Recent(r.Context(), mindmapID, limit)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"mindmap_id": mindmapID,
		"operations": ops,
	})
}

// Metrics returns the resolver's current counters.
// GET /api/v1/sync/metrics
func (h *SyncHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.resolver.Metrics())
}

// stampSubmitter fills identity fields the server owns: the authenticated
// user always overrides whatever the client claims, and a missing id gets
// assigned.
func (h *SyncHandler) stampSubmitter(r *http.Request, op *operations.Operation) error {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return pkgerrors.NewUnauthorizedError("")
	}
	op.UserID = user.UserID
	if op.ID.IsZero() {
		op.ID = valueobjects.NewOperationID()
	}
	return nil
}
