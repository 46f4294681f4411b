package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	"github.com/nagomirachel/flagsmith/internal/api/middleware"
	apierrors "github.com/nagomirachel/flagsmith/internal/pkg/errors"
	"github.com/nagomirachel/flagsmith/internal/platform/audit"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
)

// EventPublisher is the seam between the control plane and the delivery
// engine. The feature handler publishes and moves on; delivery outcomes never
// surface back here.
type EventPublisher interface {
	Dispatch(environmentID, eventType string, data interface{})
}

const EventFlagUpdated = "FLAG_UPDATED"

type FeatureHandler struct {
	featureRepo *repositories.FeatureRepository
	publisher   EventPublisher
	auditLogger *audit.Logger
}

func NewFeatureHandler(featureRepo *repositories.FeatureRepository, publisher EventPublisher, auditLogger *audit.Logger) *FeatureHandler {
	return &FeatureHandler{
		featureRepo: featureRepo,
		publisher:   publisher,
		auditLogger: auditLogger,
	}
}

// UpdateState sets the per-environment flag state and publishes the change
// event. The write succeeds and returns 200 regardless of what happens to
// the resulting webhook deliveries.
func (h *FeatureHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	featureID := params.ByName("feature_id")

	var req struct {
		Enabled *bool   `json:"enabled"`
		Value   *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Enabled == nil && req.Value == nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "At least one of enabled or value is required", nil)
		return
	}

	state, err := h.featureRepo.GetState(env.ID, featureID)
	if errors.Is(err, repositories.ErrNotFound) {
		state = &models.FeatureState{EnvironmentID: env.ID, FeatureID: featureID}
	} else if err != nil {
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to load feature state", nil)
		return
	}

	if req.Enabled != nil {
		state.Enabled = *req.Enabled
	}
	if req.Value != nil {
		state.Value = *req.Value
	}

	if err := h.featureRepo.SetState(state); err != nil {
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to update feature state", nil)
		return
	}

	h.auditLogger.Log(r.Context(), env.ID, "feature_state.updated", "feature_state", state.ID, map[string]interface{}{
		"feature_id": featureID,
		"enabled":    state.Enabled,
	})

	h.publisher.Dispatch(env.ID, EventFlagUpdated, state)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}
