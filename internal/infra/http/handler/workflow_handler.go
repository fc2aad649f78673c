package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowdeckio/api/internal/app"
	infrahttp "github.com/flowdeckio/api/internal/infra/http"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
	"github.com/flowdeckio/api/pkg/validator"
)

// WorkflowHandler handles workflow CRUD and deployment endpoints.
type WorkflowHandler struct {
	service   *app.WorkflowService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(service *app.WorkflowService, v *validator.Validator, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "workflow"),
	}
}

// CreateWorkflowRequest is the payload for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateStateRequest replaces the live graph state.
type UpdateStateRequest struct {
	Blocks    map[string]*workflow.Block    `json:"blocks" validate:"required"`
	Edges     []*workflow.Edge              `json:"edges"`
	Loops     map[string]*workflow.Loop     `json:"loops"`
	Parallels map[string]*workflow.Parallel `json:"parallels"`
}

// SetScheduleRequest attaches or clears a cron schedule. An empty
// expression clears the schedule.
type SetScheduleRequest struct {
	Cron string `json:"cron" validate:"omitempty,cron"`
}

// WorkflowResponse is the API shape of a workflow.
type WorkflowResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Color       string                  `json:"color,omitempty"`
	State       *workflow.GraphSnapshot `json:"state"`
	IsDeployed  bool                    `json:"isDeployed"`
	DeployedAt  *time.Time              `json:"deployedAt,omitempty"`
	Variables   map[string]any          `json:"variables,omitempty"`
	Schedule    string                  `json:"schedule,omitempty"`
	RunCount    int                     `json:"runCount"`
	LastRunAt   *time.Time              `json:"lastRunAt,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

func toWorkflowResponse(wf *workflow.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:          wf.ID.String(),
		Name:        wf.Name,
		Description: wf.Description,
		Color:       wf.Color,
		State:       wf.Live,
		IsDeployed:  wf.IsDeployed,
		DeployedAt:  wf.DeployedAt,
		Variables:   wf.Variables,
		Schedule:    wf.Schedule,
		RunCount:    wf.RunCount,
		LastRunAt:   wf.LastRunAt,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

func toWorkflowResponses(wfs []*workflow.Workflow) []WorkflowResponse {
	out := make([]WorkflowResponse, len(wfs))
	for i, wf := range wfs {
		out[i] = toWorkflowResponse(wf)
	}
	return out
}

// Create handles POST /api/v1/workflows.
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
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

	wf, err := h.service.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusCreated, toWorkflowResponse(wf))
}

// Get handles GET /api/v1/workflows/{id}.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	wf, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// List handles GET /api/v1/workflows.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page := infrahttp.ParsePagination(r)
	search := infrahttp.QueryParam(r, "search")

	result, err := h.service.List(r.Context(), userID, search, page)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(
		toWorkflowResponses(result.Data), result.Total, page))
}

// UpdateState handles PUT /api/v1/workflows/{id}/state. The whole live
// graph is replaced atomically.
func (h *WorkflowHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	var req UpdateStateRequest
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
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	snapshot := &workflow.GraphSnapshot{
		Blocks:    req.Blocks,
		Edges:     req.Edges,
		Loops:     req.Loops,
		Parallels: req.Parallels,
	}

	wf, err := h.service.UpdateLive(r.Context(), id, userID, snapshot)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// Deploy handles POST /api/v1/workflows/{id}/deploy.
func (h *WorkflowHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	wf, err := h.service.Deploy(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// Undeploy handles POST /api/v1/workflows/{id}/undeploy.
func (h *WorkflowHandler) Undeploy(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	wf, err := h.service.Undeploy(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// Status handles GET /api/v1/workflows/{id}/status.
func (h *WorkflowHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// SetSchedule handles PUT /api/v1/workflows/{id}/schedule.
func (h *WorkflowHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	var req SetScheduleRequest
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
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	wf, err := h.service.SetSchedule(r.Context(), id, userID, req.Cron)
	if err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// Delete handles DELETE /api/v1/workflows/{id}.
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "workflow id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		handleServiceError(w, h.logger, "Workflow", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
