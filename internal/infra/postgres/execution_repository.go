package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flowdeckio/api/pkg/domain/execution"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/pagination"
)

// ExecutionRepository is the PostgreSQL implementation of execution.Repository.
type ExecutionRepository struct {
	db *DB
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(db *DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

var _ execution.Repository = (*ExecutionRepository)(nil)

const executionColumns = `
	id, workflow_id, user_id, trigger_source, status,
	result, started_at, completed_at
`

// Create persists a finalized execution record.
func (r *ExecutionRepository) Create(ctx context.Context, record *execution.Record) error {
	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	result, err := toJSONB(record.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		record.ID.String(),
		record.WorkflowID.String(),
		record.UserID.String(),
		record.Trigger,
		string(record.Status),
		result,
		record.StartedAt,
		nullTime(record.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}
	return nil
}

// GetByID retrieves an execution record by execution id.
func (r *ExecutionRepository) GetByID(ctx context.Context, id shared.ID) (*execution.Record, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	return scanExecution(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListByWorkflow lists records for a workflow, newest first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID shared.ID, page pagination.Pagination) (pagination.Result[*execution.Record], error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM executions WHERE workflow_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, workflowID.String()).Scan(&total); err != nil {
		return pagination.Result[*execution.Record]{}, fmt.Errorf("count executions: %w", err)
	}

	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, workflowID.String(), page.Limit(), page.Offset())
	if err != nil {
		return pagination.Result[*execution.Record]{}, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	records := make([]*execution.Record, 0)
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return pagination.Result[*execution.Record]{}, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*execution.Record]{}, fmt.Errorf("iterate executions: %w", err)
	}

	return pagination.NewResult(records, total, page), nil
}

func scanExecution(row rowScanner) (*execution.Record, error) {
	var (
		record        execution.Record
		idStr         string
		workflowIDStr string
		userIDStr     string
		status        string
		result        []byte
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&idStr, &workflowIDStr, &userIDStr, &record.Trigger, &status,
		&result, &record.StartedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "execution not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if record.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	if record.WorkflowID, err = shared.IDFromString(workflowIDStr); err != nil {
		return nil, fmt.Errorf("parse workflow id: %w", err)
	}
	if record.UserID, err = shared.IDFromString(userIDStr); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	record.Status = execution.Status(status)
	record.CompletedAt = nullTimeValue(completedAt)
	if len(result) > 0 {
		record.Result = &execution.Result{}
		if err := fromJSONB(result, record.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &record, nil
}
