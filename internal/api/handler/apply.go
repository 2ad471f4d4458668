package handler

import (
	"net/http"
	"strconv"

	"github.com/mhodges/bigip-rule-manager/internal/service"
	"github.com/mhodges/bigip-rule-manager/internal/storage"
)

// ApplyHandler handles apply and history endpoints.
type ApplyHandler struct {
	store        storage.Storage
	applyService *service.ApplyService
}

// NewApplyHandler creates a new ApplyHandler.
func NewApplyHandler(store storage.Storage, applyService *service.ApplyService) *ApplyHandler {
	return &ApplyHandler{store: store, applyService: applyService}
}

// Apply reconciles all stored rule definitions onto the device.
func (h *ApplyHandler) Apply(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "1" || r.URL.Query().Get("dry_run") == "true"

	report, err := h.applyService.ApplyAll(r.Context(), dryRun)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// ListRuns lists recent apply runs, newest first.
func (h *ApplyHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := h.store.ListApplyRuns(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}
