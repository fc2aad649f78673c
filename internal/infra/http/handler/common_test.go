package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
	"github.com/flowdeckio/api/pkg/logger"
)

func TestHandleServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        shared.NewDomainError("NOT_FOUND", "workflow not found", shared.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "already running rejects with conflict",
			err:        &app.AlreadyRunningError{WorkflowID: shared.NewID()},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name: "usage limit rejects with payment required",
			err: &app.UsageLimitExceededError{Check: usage.Check{
				Exceeded:     true,
				CurrentUsage: 120,
				Limit:        100,
			}},
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "USAGE_LIMIT_EXCEEDED",
		},
		{
			name:       "validation",
			err:        shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation),
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "invalid state",
			err:        shared.NewDomainError("INVALID_STATE", "document is not failed", shared.ErrInvalidState),
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, logger.NewNop(), "Workflow", tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleServiceError_UsageLimitCarriesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	handleServiceError(rec, logger.NewNop(), "Workflow", &app.UsageLimitExceededError{
		Check: usage.Check{Exceeded: true, CurrentUsage: 120, Limit: 100},
	})

	var resp struct {
		Details struct {
			CurrentUsage float64 `json:"currentUsage"`
			Limit        float64 `json:"limit"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 120.0, resp.Details.CurrentUsage)
	assert.Equal(t, 100.0, resp.Details.Limit)
}
