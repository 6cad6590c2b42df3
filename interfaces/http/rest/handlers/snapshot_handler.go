package handlers

import (
	"net/http"

	"mindsync/application/ports"
	"mindsync/domain/core/entities"
	"mindsync/pkg/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxSnapshotBodyBytes = 8 << 20 // 8 MiB

// SnapshotHandler exposes document snapshot save/load for reconnecting
// replicas.
type SnapshotHandler struct {
	store  ports.DocumentStore
	logger *zap.Logger
}

// NewSnapshotHandler creates a snapshot handler.
func NewSnapshotHandler(store ports.DocumentStore, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		store:  store,
		logger: logger,
	}
}

// GetSnapshot returns the latest resolved document state for a mindmap.
// GET /api/v1/mindmaps/{mindmapID}/snapshot
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	mindmapID := chi.URLParam(r, "mindmapID")

	state, err := h.store.LoadSnapshot(r.Context(), mindmapID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, state)
}

// SaveSnapshot stores a resolved document state.
// PUT /api/v1/mindmaps/{mindmapID}/snapshot
func (h *SnapshotHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	mindmapID := chi.URLParam(r, "mindmapID")

	var state entities.DocumentState
	if err := common.ParseJSONBody(r, &state, maxSnapshotBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid snapshot payload")
		return
	}
	state.ID = mindmapID

	if err := h.store.SaveSnapshot(r.Context(), &state); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("snapshot saved",
		zap.String("mindmapID", mindmapID),
		zap.Int64("version", state.Version),
		zap.Int("nodes", len(state.Nodes)),
	)
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"mindmap_id": mindmapID,
		"version":    state.Version,
	})
}
