package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
)

// TaskRepository manages the materialized per-step assignment records.
// For every instance exactly one task is PENDING at a time, at the
// instance's current step order.
type TaskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Insert creates a task row inside the caller's transaction.
func (r *TaskRepository) Insert(ctx context.Context, tx pgx.Tx, task *WorkflowTask) error {
	query := `
		INSERT INTO workflow_tasks
		    (instance_id, step_order, assigned_to_user_id, action)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		task.InstanceID,
		task.StepOrder,
		task.AssignedToUserID,
		task.Action,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create workflow task")
	}
	return nil
}

// Close marks the pending task at the given step with a terminal action.
// Closing a task that is not pending is a precondition failure, which keeps
// a lost race from silently relabeling an already-acted task.
func (r *TaskRepository) Close(ctx context.Context, tx pgx.Tx, instanceID string, stepOrder int, action string) error {
	query := `
		UPDATE workflow_tasks
		SET action   = $3,
		    acted_at = NOW()
		WHERE instance_id = $1
		  AND step_order  = $2
		  AND action      = 'PENDING'
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, instanceID, stepOrder, action).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.Conflict("no pending task at the current step")
	}
	return err
}

// ListByInstance returns all tasks for an instance ordered by step.
func (r *TaskRepository) ListByInstance(ctx context.Context, instanceID string) ([]*WorkflowTask, error) {
	query := `
		SELECT id, instance_id, step_order, assigned_to_user_id, action,
		       acted_at, created_at
		FROM workflow_tasks
		WHERE instance_id = $1
		ORDER BY step_order ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list workflow tasks")
	}
	defer rows.Close()

	var tasks []*WorkflowTask
	for rows.Next() {
		t := &WorkflowTask{}
		if err := rows.Scan(
			&t.ID,
			&t.InstanceID,
			&t.StepOrder,
			&t.AssignedToUserID,
			&t.Action,
			&t.ActedAt,
			&t.CreatedAt,
		); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan workflow task")
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
