package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowdeckio/api/internal/app"
	infrahttp "github.com/flowdeckio/api/internal/infra/http"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/domain/execution"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
	"github.com/flowdeckio/api/pkg/validator"
)

// maxBatchItems caps the number of inputs accepted per batch request.
const maxBatchItems = 100

// ExecutionHandler handles workflow execution endpoints.
type ExecutionHandler struct {
	service   *app.ExecutionService
	batch     *app.BatchProcessor
	validator *validator.Validator
	logger    *logger.Logger
}

// NewExecutionHandler creates a new execution handler.
func NewExecutionHandler(service *app.ExecutionService, batch *app.BatchProcessor, v *validator.Validator, log *logger.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		service:   service,
		batch:     batch,
		validator: v,
		logger:    log.With("handler", "execution"),
	}
}

// ExecuteWorkflowRequest is the payload for a single execution.
type ExecuteWorkflowRequest struct {
	Input          map[string]any            `json:"input"`
	SubBlockValues map[string]map[string]any `json:"subBlockValues"`
}

// BatchExecuteRequest runs one workflow against many inputs. Results
// come back index-aligned with Inputs.
type BatchExecuteRequest struct {
	Inputs         []map[string]any `json:"inputs" validate:"required,min=1"`
	BatchSize      int              `json:"batchSize" validate:"omitempty,min=1,max=50"`
	StaggerDelayMS int              `json:"staggerDelayMs" validate:"omitempty,min=0,max=10000"`
}

// ExecutionResponse is the API shape of an execution record.
type ExecutionResponse struct {
	ID          string            `json:"id"`
	WorkflowID  string            `json:"workflowId"`
	Trigger     string            `json:"trigger"`
	Status      execution.Status  `json:"status"`
	Result      *execution.Result `json:"result,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// BatchItemResponse is one slot of a batch execution result.
type BatchItemResponse struct {
	Index     int                `json:"index"`
	Success   bool               `json:"success"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// BatchExecuteResponse summarizes a batch run.
type BatchExecuteResponse struct {
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []BatchItemResponse `json:"results"`
}

func toExecutionResponse(rec *execution.Record) *ExecutionResponse {
	return &ExecutionResponse{
		ID:          rec.ID.String(),
		WorkflowID:  rec.WorkflowID.String(),
		Trigger:     rec.Trigger,
		Status:      rec.Status,
		Result:      rec.Result,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
}

// Execute handles POST /api/v1/workflows/{id}/execute. A workflow that
// is already running returns 409; a user over their usage limit
// returns 402.
func (h *ExecutionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteWorkflowRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierror.BadRequest("Invalid request body").WriteJSON(w)
			return
		}
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	workflowID, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	rec, err := h.service.Execute(r.Context(), app.ExecuteRequest{
		WorkflowID:     workflowID,
		UserID:         userID,
		Trigger:        execution.TriggerAPI,
		Input:          req.Input,
		SubBlockValues: req.SubBlockValues,
	})
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, toExecutionResponse(rec))
}

// ExecuteBatch handles POST /api/v1/workflows/{id}/execute/batch.
// Inputs run in bounded waves; one failed input never aborts the rest.
func (h *ExecutionHandler) ExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}
	if len(req.Inputs) > maxBatchItems {
		apierror.BadRequest("Too many batch inputs").WriteJSON(w)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	workflowID, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	processor := h.batch
	if req.BatchSize > 0 || req.StaggerDelayMS > 0 {
		processor = app.NewBatchProcessor(app.BatchOptions{
			BatchSize:        req.BatchSize,
			InterItemStagger: time.Duration(req.StaggerDelayMS) * time.Millisecond,
		}, h.logger)
	}

	// Every item targets the same workflow, so overlapping items would
	// collide on its admission ticket.
	results := app.RunBatches(r.Context(), processor.Sequential(), req.Inputs,
		func(ctx context.Context, input map[string]any) (*execution.Record, error) {
			return h.service.Execute(ctx, app.ExecuteRequest{
				WorkflowID: workflowID,
				UserID:     userID,
				Trigger:    execution.TriggerAPI,
				Input:      input,
			})
		})

	resp := BatchExecuteResponse{
		Total:   len(results),
		Results: make([]BatchItemResponse, len(results)),
	}
	for i, res := range results {
		item := BatchItemResponse{Index: res.Index}
		if res.Err != nil {
			item.Error = res.Err.Error()
			resp.Failed++
		} else {
			item.Success = true
			item.Execution = toExecutionResponse(res.Value)
			resp.Succeeded++
		}
		resp.Results[i] = item
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/executions/{id}.
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "execution id")
	if !ok {
		return
	}

	rec, err := h.service.GetExecution(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Execution", err)
		return
	}

	writeJSON(w, http.StatusOK, toExecutionResponse(rec))
}

// List handles GET /api/v1/workflows/{id}/executions.
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	workflowID, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	page := infrahttp.ParsePagination(r)

	result, err := h.service.ListExecutions(r.Context(), workflowID, userID, page)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	responses := make([]*ExecutionResponse, len(result.Data))
	for i, rec := range result.Data {
		responses[i] = toExecutionResponse(rec)
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(responses, result.Total, page))
}
