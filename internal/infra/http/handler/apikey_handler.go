package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowdeckio/api/internal/app"
	infrahttp "github.com/flowdeckio/api/internal/infra/http"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/domain/apikey"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/validator"
)

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	service   *app.APIKeyService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAPIKeyHandler creates a new API key handler.
func NewAPIKeyHandler(service *app.APIKeyService, v *validator.Validator, log *logger.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "apikey"),
	}
}

// CreateAPIKeyRequest names a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// APIKeyResponse is the API shape of an API key. The raw key never
// appears here; only the lookup prefix is shown.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// CreateAPIKeyResponse carries the raw key exactly once, at creation.
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func toAPIKeyResponse(k *apikey.Key) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID.String(),
		Name:       k.Name,
		Prefix:     k.Prefix,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// Create handles POST /api/v1/api-keys. The response is the only place
// the raw key is ever returned.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	key, raw, err := h.service.Create(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, h.logger, "API key", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            raw,
	})
}

// List handles GET /api/v1/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	keys, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, "API key", err)
		return
	}

	responses := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		responses[i] = toAPIKeyResponse(k)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": responses})
}

// Delete handles DELETE /api/v1/api-keys/{id}.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "api key id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		handleServiceError(w, h.logger, "API key", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
