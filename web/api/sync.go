package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"bptrack/models"

	"github.com/rohanthewiz/rweb"
)

// ============================================================================
// Sync Control Handlers
//
// These endpoints power the UI's sync controls: a status indicator with
// pending count, a "Sync Now" button, and the conflict review dialog.
// ============================================================================

// syncStatusResponse is the shape behind the UI status indicator.
type syncStatusResponse struct {
	Online       bool       `json:"online"`
	PendingCount int        `json:"pending_count"`
	LastSync     *time.Time `json:"last_sync"`
}

// SyncStatus handles GET /api/v1/sync/status
func SyncStatus(ctx rweb.Context) error {
	pending, err := manager.GetPendingSyncCount()
	if err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}
	lastSync, err := manager.GetLastSyncTime()
	if err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}

	return writeSuccess(ctx, http.StatusOK, syncStatusResponse{
		Online:       manager.IsOnline(),
		PendingCount: pending,
		LastSync:     lastSync,
	})
}

// SyncNow handles POST /api/v1/sync/now
// Triggers an immediate sync pass. Returns 409 Conflict when a pass is
// already running or the device is offline, so the UI can message rather
// than retry blindly.
func SyncNow(ctx rweb.Context) error {
	result, err := manager.SyncOfflineData(context.Background())
	if err != nil {
		if strings.Contains(err.Error(), "already in progress") || strings.Contains(err.Error(), "offline") {
			return writeError(ctx, http.StatusConflict, err.Error())
		}
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}

	return writeSuccess(ctx, http.StatusOK, result)
}

// conflictsResponse pairs live conflicts (with advisory summaries) with the
// resolution history.
type conflictsResponse struct {
	Pending []conflictWithSummary     `json:"pending"`
	History []models.ConflictLogEntry `json:"history"`
}

type conflictWithSummary struct {
	Conflict models.ConflictDetails `json:"conflict"`
	Summary  models.ConflictSummary `json:"summary"`
}

// ListConflicts handles GET /api/v1/sync/conflicts
func ListConflicts(ctx rweb.Context) error {
	pending := manager.PendingConflicts()

	withSummaries := make([]conflictWithSummary, 0, len(pending))
	for i := range pending {
		withSummaries = append(withSummaries, conflictWithSummary{
			Conflict: pending[i],
			Summary:  models.Summarize(&pending[i]),
		})
	}

	history, err := models.ConflictLog()
	if err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}

	return writeSuccess(ctx, http.StatusOK, conflictsResponse{
		Pending: withSummaries,
		History: history,
	})
}

// ResolveConflict handles POST /api/v1/sync/conflicts/:id/resolve
// Request body: {"strategy": "local"|"server"|"merge", "fields": {...}}
// where fields optionally overrides individual merge outcomes.
func ResolveConflict(ctx rweb.Context) error {
	mutationID := ctx.Request().Param("id")
	if mutationID == "" {
		return writeError(ctx, http.StatusBadRequest, "mutation id is required")
	}

	var req struct {
		Strategy string         `json:"strategy"`
		Fields   models.Payload `json:"fields"`
	}
	if err := json.Unmarshal(ctx.Request().Body(), &req); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	strategy := models.ConflictResolution(req.Strategy)
	switch strategy {
	case models.ResolveLocal, models.ResolveServer, models.ResolveMerge:
	default:
		return writeError(ctx, http.StatusBadRequest, "invalid resolution strategy: "+req.Strategy)
	}

	if err := manager.ResolveConflict(context.Background(), mutationID, strategy, req.Fields); err != nil {
		return writeError(ctx, http.StatusConflict, err.Error())
	}

	return writeSuccess(ctx, http.StatusOK, map[string]bool{"resolved": true})
}

// ExportOfflineData handles GET /api/v1/offline/export
func ExportOfflineData(ctx rweb.Context) error {
	bundle, err := manager.ExportOfflineData()
	if err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}
	return writeSuccess(ctx, http.StatusOK, bundle)
}

// ClearOfflineData handles DELETE /api/v1/offline
// Destructive: unsynced work is lost. The UI confirms before calling.
func ClearOfflineData(ctx rweb.Context) error {
	if err := manager.ClearOfflineData(); err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}
	return writeSuccess(ctx, http.StatusOK, map[string]bool{"cleared": true})
}
