// Package handler contains the HTTP request handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/internal/infra/http/middleware"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/validator"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleValidationError converts validator errors to a 422 response
// with per-field details.
func handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// handleServiceError maps domain errors to API errors. The resource
// name is used in 404 messages.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, resource string, err error) {
	var usageErr *app.UsageLimitExceededError
	switch {
	case shared.IsNotFound(err):
		apierror.NotFound(resource).WriteJSON(w)
	case shared.IsAlreadyRunning(err):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case errors.As(err, &usageErr):
		apierror.UsageLimitExceeded(usageErr.Error(), usageErr.Check.CurrentUsage, usageErr.Check.Limit).WriteJSON(w)
	case shared.IsUsageLimit(err):
		apierror.UsageLimitExceeded(err.Error(), 0, 0).WriteJSON(w)
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidInput):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrAlreadyExists), errors.Is(err, shared.ErrConflict):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrInvalidState):
		apierror.Conflict(err.Error()).WriteJSON(w)
	default:
		log.Error("service error", "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}

// requireUserID extracts the authenticated user or writes a 401.
func requireUserID(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	userID, err := middleware.MustUserID(r.Context())
	if err != nil {
		apierror.Unauthorized("").WriteJSON(w)
		return shared.ID{}, false
	}
	return userID, true
}

// parseID parses a path parameter as an ID or writes a 400.
func parseID(w http.ResponseWriter, raw, name string) (shared.ID, bool) {
	id, err := shared.IDFromString(raw)
	if err != nil || id.IsZero() {
		apierror.BadRequest("Invalid " + name).WriteJSON(w)
		return shared.ID{}, false
	}
	return id, true
}
