package app

import (
	"context"
	"fmt"
	"time"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
)

// WorkflowService manages workflow lifecycle: authoring, deployment
// and deletion.
type WorkflowService struct {
	repo   workflow.Repository
	logger *logger.Logger
}

// NewWorkflowService creates the workflow service.
func NewWorkflowService(repo workflow.Repository, log *logger.Logger) *WorkflowService {
	return &WorkflowService{
		repo:   repo,
		logger: log.With("component", "workflow_service"),
	}
}

// Create makes a new empty workflow.
func (s *WorkflowService) Create(ctx context.Context, userID shared.ID, name, description string) (*workflow.Workflow, error) {
	wf, err := workflow.New(userID, name, description)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	s.logger.Info("workflow created", "workflow_id", wf.ID, "user_id", userID)
	return wf, nil
}

// Get returns a workflow owned by the user.
func (s *WorkflowService) Get(ctx context.Context, id, userID shared.ID) (*workflow.Workflow, error) {
	wf, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.UserID != userID {
		return nil, shared.NewDomainError("NOT_FOUND", "workflow not found", shared.ErrNotFound)
	}
	return wf, nil
}

// List returns the user's workflows.
func (s *WorkflowService) List(ctx context.Context, userID shared.ID, search string, p pagination.Pagination) (pagination.Result[*workflow.Workflow], error) {
	filter := workflow.Filter{UserID: &userID, Search: search}
	return s.repo.List(ctx, filter, p)
}

// UpdateLive replaces the live graph of a workflow.
func (s *WorkflowService) UpdateLive(ctx context.Context, id, userID shared.ID, snapshot *workflow.GraphSnapshot) (*workflow.Workflow, error) {
	wf, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := wf.UpdateLive(snapshot); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return wf, nil
}

// Deploy freezes the current live graph as the deployed snapshot.
func (s *WorkflowService) Deploy(ctx context.Context, id, userID shared.ID) (*workflow.Workflow, error) {
	wf, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := wf.Deploy(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("deploy workflow: %w", err)
	}
	s.logger.Info("workflow deployed", "workflow_id", wf.ID)
	return wf, nil
}

// Undeploy removes the deployed snapshot.
func (s *WorkflowService) Undeploy(ctx context.Context, id, userID shared.ID) (*workflow.Workflow, error) {
	wf, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	wf.Undeploy()
	if err := s.repo.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("undeploy workflow: %w", err)
	}
	s.logger.Info("workflow undeployed", "workflow_id", wf.ID)
	return wf, nil
}

// DeploymentStatus reports whether a workflow is deployed and whether
// the live graph has drifted since.
type DeploymentStatus struct {
	IsDeployed        bool       `json:"isDeployed"`
	DeployedAt        *time.Time `json:"deployedAt,omitempty"`
	NeedsRedeployment bool       `json:"needsRedeployment"`
}

// Status returns the deployment status of a workflow.
func (s *WorkflowService) Status(ctx context.Context, id, userID shared.ID) (*DeploymentStatus, error) {
	wf, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &DeploymentStatus{
		IsDeployed:        wf.IsDeployed,
		DeployedAt:        wf.DeployedAt,
		NeedsRedeployment: wf.NeedsRedeployment(),
	}, nil
}

// SetSchedule attaches or clears a cron schedule.
func (s *WorkflowService) SetSchedule(ctx context.Context, id, userID shared.ID, cronExpr string) (*workflow.Workflow, error) {
	wf, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	wf.Schedule = cronExpr
	wf.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return wf, nil
}

// Delete removes a workflow.
func (s *WorkflowService) Delete(ctx context.Context, id, userID shared.ID) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	s.logger.Info("workflow deleted", "workflow_id", id)
	return nil
}
