package handler

import (
	"encoding/json"
	"net/http"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/validator"
)

// EnvVarHandler handles environment-variable endpoints. Values are
// write-only through this API: reads return names, never plaintext.
type EnvVarHandler struct {
	service   *app.EnvVarService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewEnvVarHandler creates a new environment-variable handler.
func NewEnvVarHandler(service *app.EnvVarService, v *validator.Validator, log *logger.Logger) *EnvVarHandler {
	return &EnvVarHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "envvar"),
	}
}

// UpsertEnvVarsRequest sets or replaces environment variables.
type UpsertEnvVarsRequest struct {
	Variables map[string]string `json:"variables" validate:"required,min=1"`
}

// DeleteEnvVarsRequest removes environment variables by name.
type DeleteEnvVarsRequest struct {
	Names []string `json:"names" validate:"required,min=1,dive,env_var_name"`
}

// EnvVarNamesResponse lists variable names without values.
type EnvVarNamesResponse struct {
	Names []string `json:"names"`
}

// Upsert handles PUT /api/v1/environment.
func (h *EnvVarHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertEnvVarsRequest
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

	if err := h.service.Upsert(r.Context(), userID, req.Variables); err != nil {
		handleServiceError(w, h.logger, "Environment", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/environment.
func (h *EnvVarHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	names, err := h.service.ListNames(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, "Environment", err)
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, EnvVarNamesResponse{Names: names})
}

// Delete handles DELETE /api/v1/environment.
func (h *EnvVarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteEnvVarsRequest
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

	if err := h.service.Delete(r.Context(), userID, req.Names...); err != nil {
		handleServiceError(w, h.logger, "Environment", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
