// Package workflow defines the workflow domain entities: the editable
// graph, its frozen deployed snapshot, and per-workflow run statistics.
package workflow

import (
	"time"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Workflow represents a stored workflow definition.
type Workflow struct {
	ID          shared.ID
	UserID      shared.ID
	Name        string
	Description string
	Color       string

	// Live is the editable graph state.
	Live *GraphSnapshot

	// Deployed is the immutable snapshot frozen at the most recent
	// deployment. Nil when the workflow has never been deployed.
	Deployed   *GraphSnapshot
	IsDeployed bool
	DeployedAt *time.Time

	// Workflow-level variables passed to the execution engine alongside
	// the resolved environment variables.
	Variables map[string]any

	// Schedule is an optional cron expression for scheduled executions.
	Schedule string

	// Execution statistics
	RunCount  int
	LastRunAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a new workflow owned by the given user.
func New(userID shared.ID, name, description string) (*Workflow, error) {
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if userID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "user_id is required", shared.ErrValidation)
	}

	now := time.Now()
	return &Workflow{
		ID:          shared.NewID(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Live:        NewGraphSnapshot(),
		Variables:   make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateLive replaces the live graph state after validating it.
func (w *Workflow) UpdateLive(s *GraphSnapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	w.Live = s
	w.UpdatedAt = time.Now()
	return nil
}

// Deploy freezes the current live state into the deployed snapshot.
func (w *Workflow) Deploy() error {
	if w.Live == nil || len(w.Live.Blocks) == 0 {
		return shared.NewDomainError("VALIDATION", "cannot deploy an empty workflow", shared.ErrValidation)
	}
	if err := w.Live.Validate(); err != nil {
		return err
	}

	now := time.Now()
	w.Deployed = w.Live.Clone()
	w.IsDeployed = true
	w.DeployedAt = &now
	w.UpdatedAt = now
	return nil
}

// Undeploy removes the deployed snapshot.
func (w *Workflow) Undeploy() {
	w.Deployed = nil
	w.IsDeployed = false
	w.DeployedAt = nil
	w.UpdatedAt = time.Now()
}

// ExecutionSnapshot returns the graph execution should run against:
// the deployed snapshot when one exists, otherwise the live state.
func (w *Workflow) ExecutionSnapshot() *GraphSnapshot {
	if w.IsDeployed && w.Deployed != nil {
		return w.Deployed
	}
	return w.Live
}

// NeedsRedeployment reports whether the live state has been edited since
// the last deployment.
func (w *Workflow) NeedsRedeployment() bool {
	if !w.IsDeployed || w.DeployedAt == nil {
		return false
	}
	return w.UpdatedAt.After(*w.DeployedAt)
}

// RecordRun records a completed successful execution.
func (w *Workflow) RecordRun() {
	now := time.Now()
	w.RunCount++
	w.LastRunAt = &now
}

// HasSchedule reports whether the workflow is configured for scheduled runs.
func (w *Workflow) HasSchedule() bool {
	return w.Schedule != ""
}
