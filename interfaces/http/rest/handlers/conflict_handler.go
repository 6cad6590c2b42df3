package handlers

import (
	"net/http"

	"mindsync/application/resolution"
	"mindsync/pkg/auth"
	"mindsync/pkg/common"
	pkgerrors "mindsync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConflictHandler exposes the manual-resolution queue over HTTP.
type ConflictHandler struct {
	resolver *resolution.Resolver
	logger   *zap.Logger
}

// NewConflictHandler creates a conflict handler.
func NewConflictHandler(resolver *resolution.Resolver, logger *zap.Logger) *ConflictHandler {
	return &ConflictHandler{
		resolver: resolver,
		logger:   logger,
	}
}

// ListConflicts returns the pending conflict queue, oldest first.
// GET /api/v1/conflicts
func (h *ConflictHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.resolver.PendingConflicts()
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// GetConflict returns one queued conflict.
// GET /api/v1/conflicts/{conflictID}
func (h *ConflictHandler) GetConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := chi.URLParam(r, "conflictID")
	conflict, err := h.resolver.Conflict(conflictID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, conflict)
}

// ResolveConflict settles a queued conflict with an operator decision.
// POST /api/v1/conflicts/{conflictID}/resolve
func (h *ConflictHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := chi.URLParam(r, "conflictID")

	var choice resolution.ManualChoice
	if err := common.ParseJSONBody(r, &choice, maxOperationBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid resolution payload")
		return
	}

	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewUnauthorizedError(""))
		return
	}
	choice.ResolvedBy = user.UserID

	resolved, err := h.resolver.ResolveManually(r.Context(), conflictID, choice)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("manual resolution applied",
		zap.String("conflictID", conflictID),
		zap.String("strategy", string(choice.Strategy)),
		zap.String("resolvedBy", user.UserID),
	)

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conflict_id": conflictID,
		"strategy":    choice.Strategy,
		"operation":   resolved,
	})
}
