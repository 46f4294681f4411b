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

// WebhookHandler translates the environment-scoped CRUD surface onto the
// webhook repository. It owns no business rules beyond scoping and request
// decoding; validation and uniqueness live in the store.
type WebhookHandler struct {
	webhookRepo  *repositories.WebhookRepository
	deliveryRepo *repositories.DeliveryRepository
	auditLogger  *audit.Logger
}

func NewWebhookHandler(webhookRepo *repositories.WebhookRepository, deliveryRepo *repositories.DeliveryRepository, auditLogger *audit.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		auditLogger:  auditLogger,
	}
}

type webhookRequest struct {
	URL     *string `json:"url"`
	Secret  *string `json:"secret"`
	Enabled *bool   `json:"enabled"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook := &models.Webhook{
		EnvironmentID: env.ID,
		Enabled:       true,
	}
	if req.URL != nil {
		webhook.URL = *req.URL
	}
	if req.Secret != nil {
		webhook.Secret = *req.Secret
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := h.webhookRepo.Create(webhook); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), env.ID, "webhook.created", "webhook", webhook.ID, map[string]interface{}{"url": webhook.URL})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)

	webhooks, err := h.webhookRepo.List(env.ID)
	if err != nil {
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to list webhooks", nil)
		return
	}
	if webhooks == nil {
		webhooks = []*models.Webhook{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhooks)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	webhook, err := h.webhookRepo.Get(env.ID, params.ByName("webhook_id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhook)
}

// Update serves both PUT and PATCH: fields absent from the body keep their
// stored values, so a full replacement body and a partial one go through the
// same merge.
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.webhookRepo.Get(env.ID, params.ByName("webhook_id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	if req.URL != nil {
		webhook.URL = *req.URL
	}
	if req.Secret != nil {
		webhook.Secret = *req.Secret
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := h.webhookRepo.Update(webhook); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), env.ID, "webhook.updated", "webhook", webhook.ID, map[string]interface{}{"url": webhook.URL})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	if err := h.webhookRepo.Delete(env.ID, id); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), env.ID, "webhook.deleted", "webhook", id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries exposes the delivery history for one webhook. The webhook
// lookup runs first so a foreign id yields 404 rather than an empty list.
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	if _, err := h.webhookRepo.Get(env.ID, id); err != nil {
		h.writeStoreError(w, err)
		return
	}

	deliveries, err := h.deliveryRepo.ListByWebhook(env.ID, id, 50)
	if err != nil {
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to list deliveries", nil)
		return
	}
	if deliveries == nil {
		deliveries = []*models.Delivery{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deliveries)
}

func (h *WebhookHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "Webhook not found", nil)
	case errors.Is(err, repositories.ErrDuplicateURL):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, err.Error(), map[string]string{"field": "url"})
	case errors.Is(err, repositories.ErrInvalidURL):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, err.Error(), map[string]string{"field": "url"})
	default:
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Webhook operation failed", nil)
	}
}
