package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/pagination"
)

// WorkflowRepository is the PostgreSQL implementation of workflow.Repository.
type WorkflowRepository struct {
	db *DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

var _ workflow.Repository = (*WorkflowRepository)(nil)

const workflowColumns = `
	id, user_id, name, description, color,
	live_state, deployed_state, is_deployed, deployed_at,
	variables, schedule, run_count, last_run_at,
	created_at, updated_at
`

// Create inserts a new workflow.
func (r *WorkflowRepository) Create(ctx context.Context, wf *workflow.Workflow) error {
	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	liveState, deployedState, variables, err := marshalWorkflowState(wf)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		wf.ID.String(),
		wf.UserID.String(),
		wf.Name,
		nullString(wf.Description),
		nullString(wf.Color),
		liveState,
		deployedState,
		wf.IsDeployed,
		nullTime(wf.DeployedAt),
		variables,
		nullString(wf.Schedule),
		wf.RunCount,
		nullTime(wf.LastRunAt),
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("CONFLICT", "workflow already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow with both graph snapshots.
func (r *WorkflowRepository) GetByID(ctx context.Context, id shared.ID) (*workflow.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id.String())
	return scanWorkflow(row)
}

// List lists workflows with filters and pagination.
func (r *WorkflowRepository) List(ctx context.Context, filter workflow.Filter, page pagination.Pagination) (pagination.Result[*workflow.Workflow], error) {
	conditions := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, filter.UserID.String())
		argIdx++
	}
	if filter.IsDeployed != nil {
		conditions = append(conditions, fmt.Sprintf("is_deployed = $%d", argIdx))
		args = append(args, *filter.IsDeployed)
		argIdx++
	}
	if filter.Scheduled != nil && *filter.Scheduled {
		conditions = append(conditions, "schedule IS NOT NULL")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM workflows` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*workflow.Workflow]{}, fmt.Errorf("count workflows: %w", err)
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows` + where +
		fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*workflow.Workflow]{}, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*workflow.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return pagination.Result[*workflow.Workflow]{}, err
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*workflow.Workflow]{}, fmt.Errorf("iterate workflows: %w", err)
	}

	return pagination.NewResult(workflows, total, page), nil
}

// ListScheduled lists deployed workflows that have a cron schedule.
func (r *WorkflowRepository) ListScheduled(ctx context.Context) ([]*workflow.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
		WHERE is_deployed = TRUE AND schedule IS NOT NULL AND schedule <> ''`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scheduled workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*workflow.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// Update updates a workflow, including snapshots and deployment state.
func (r *WorkflowRepository) Update(ctx context.Context, wf *workflow.Workflow) error {
	query := `
		UPDATE workflows SET
			name = $2, description = $3, color = $4,
			live_state = $5, deployed_state = $6, is_deployed = $7, deployed_at = $8,
			variables = $9, schedule = $10, updated_at = $11
		WHERE id = $1
	`

	liveState, deployedState, variables, err := marshalWorkflowState(wf)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query,
		wf.ID.String(),
		wf.Name,
		nullString(wf.Description),
		nullString(wf.Color),
		liveState,
		deployedState,
		wf.IsDeployed,
		nullTime(wf.DeployedAt),
		variables,
		nullString(wf.Schedule),
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return requireRowAffected(result, "workflow")
}

// IncrementRunCount atomically increments the run counter.
func (r *WorkflowRepository) IncrementRunCount(ctx context.Context, id shared.ID) error {
	query := `UPDATE workflows SET run_count = run_count + 1, last_run_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("increment run count: %w", err)
	}
	return requireRowAffected(result, "workflow")
}

// Delete deletes a workflow.
func (r *WorkflowRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return requireRowAffected(result, "workflow")
}

func marshalWorkflowState(wf *workflow.Workflow) (liveState, deployedState, variables []byte, err error) {
	liveState, err = toJSONB(wf.Live)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal live state: %w", err)
	}
	if wf.Deployed != nil {
		deployedState, err = toJSONB(wf.Deployed)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal deployed state: %w", err)
		}
	}
	if len(wf.Variables) > 0 {
		variables, err = toJSONB(wf.Variables)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal variables: %w", err)
		}
	}
	return liveState, deployedState, variables, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*workflow.Workflow, error) {
	var (
		wf            workflow.Workflow
		idStr         string
		userIDStr     string
		description   sql.NullString
		color         sql.NullString
		liveState     []byte
		deployedState []byte
		deployedAt    sql.NullTime
		variables     []byte
		schedule      sql.NullString
		lastRunAt     sql.NullTime
	)

	err := row.Scan(
		&idStr, &userIDStr, &wf.Name, &description, &color,
		&liveState, &deployedState, &wf.IsDeployed, &deployedAt,
		&variables, &schedule, &wf.RunCount, &lastRunAt,
		&wf.CreatedAt, &wf.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "workflow not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if wf.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("parse workflow id: %w", err)
	}
	if wf.UserID, err = shared.IDFromString(userIDStr); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	wf.Description = nullStringValue(description)
	wf.Color = nullStringValue(color)
	wf.Schedule = nullStringValue(schedule)
	wf.DeployedAt = nullTimeValue(deployedAt)
	wf.LastRunAt = nullTimeValue(lastRunAt)

	wf.Live = workflow.NewGraphSnapshot()
	if err := fromJSONB(liveState, wf.Live); err != nil {
		return nil, fmt.Errorf("unmarshal live state: %w", err)
	}
	if len(deployedState) > 0 {
		wf.Deployed = workflow.NewGraphSnapshot()
		if err := fromJSONB(deployedState, wf.Deployed); err != nil {
			return nil, fmt.Errorf("unmarshal deployed state: %w", err)
		}
	}
	if err := fromJSONB(variables, &wf.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}

	return &wf, nil
}

func requireRowAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return shared.NewDomainError("NOT_FOUND", entity+" not found", shared.ErrNotFound)
	}
	return nil
}
