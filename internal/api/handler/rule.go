package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
	"github.com/mhodges/bigip-rule-manager/internal/service"
	"github.com/mhodges/bigip-rule-manager/internal/storage"
	"github.com/mhodges/bigip-rule-manager/internal/validation"
)

// RuleHandler handles stored iRule definition endpoints.
type RuleHandler struct {
	store        storage.Storage
	applyService *service.ApplyService
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(store storage.Storage, applyService *service.ApplyService) *RuleHandler {
	return &RuleHandler{store: store, applyService: applyService}
}

// Create creates a new stored rule definition.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Partition == "" {
		req.Partition = domain.DefaultPartition
	}
	if req.State == "" {
		req.State = domain.StatePresent
	}

	var errs validation.ValidationErrors
	if err := validation.ValidateRuleName(req.Name); err != nil {
		errs.Add("name", req.Name, err.Error())
	}
	if err := validation.ValidateModule(req.Module); err != nil {
		errs.Add("module", string(req.Module), err.Error())
	}
	if err := validation.ValidatePartition(req.Partition); err != nil {
		errs.Add("partition", req.Partition, err.Error())
	}
	if err := validation.ValidateState(req.State); err != nil {
		errs.Add("state", string(req.State), err.Error())
	}
	if req.State == domain.StatePresent && req.Content == "" {
		errs.Add("content", "", "content is required when state is present")
	}
	if errs.HasErrors() {
		respondValidationErrors(w, errs)
		return
	}

	now := time.Now()
	rule := &domain.Rule{
		ID:        generateID(),
		Name:      req.Name,
		Module:    req.Module,
		Partition: req.Partition,
		Content:   req.Content,
		State:     req.State,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateRule(r.Context(), rule); err != nil {
		handleError(w, err)
		return
	}

	h.applyService.TriggerApply()
	respondJSON(w, http.StatusCreated, rule)
}

// List lists all stored rule definitions.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rules)
}

// Get gets a stored rule by ID.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Update updates a stored rule's content or desired state.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	var req domain.UpdateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	if req.Content != nil {
		rule.Content = *req.Content
	}
	if req.State != nil {
		if err := validation.ValidateState(*req.State); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		rule.State = *req.State
	}
	if rule.State == domain.StatePresent && rule.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required when state is present")
		return
	}
	rule.UpdatedAt = time.Now()

	if err := h.store.UpdateRule(r.Context(), rule); err != nil {
		handleError(w, err)
		return
	}

	h.applyService.TriggerApply()
	respondJSON(w, http.StatusOK, rule)
}

// Delete deletes a stored rule definition. The rule on the device is not
// touched; set state=absent and apply to remove it there first.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Apply reconciles a single stored rule onto the device.
func (h *RuleHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	dryRun := r.URL.Query().Get("dry_run") == "1" || r.URL.Query().Get("dry_run") == "true"

	result, err := h.applyService.ApplyRule(r.Context(), id, dryRun)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Runs lists the apply history for one stored rule.
func (h *RuleHandler) Runs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if _, err := h.store.GetRule(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	runs, err := h.store.ListApplyRunsForRule(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}
