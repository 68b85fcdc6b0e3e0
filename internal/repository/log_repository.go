package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
)

// LogRepository appends and reads immutable workflow audit entries. The
// table has a delete-prevention trigger so Append is the only mutation.
type LogRepository struct {
	db *database.DB
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(db *database.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append inserts one log entry inside the caller's transaction, so the audit
// trail commits or rolls back together with the transition it records.
func (r *LogRepository) Append(ctx context.Context, tx pgx.Tx, entry *WorkflowLogEntry) error {
	query := `
		INSERT INTO workflow_logs
		    (instance_id, step_order, action, actor_user_id, comments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		entry.InstanceID,
		entry.StepOrder,
		entry.Action,
		entry.ActorUserID,
		entry.Comments,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append workflow log")
	}
	return nil
}

// ListByInstance returns the full trail for an instance oldest-first.
func (r *LogRepository) ListByInstance(ctx context.Context, instanceID string) ([]*WorkflowLogEntry, error) {
	query := `
		SELECT id, instance_id, step_order, action, actor_user_id, comments, created_at
		FROM workflow_logs
		WHERE instance_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list workflow logs")
	}
	defer rows.Close()

	var entries []*WorkflowLogEntry
	for rows.Next() {
		e := &WorkflowLogEntry{}
		if err := rows.Scan(
			&e.ID,
			&e.InstanceID,
			&e.StepOrder,
			&e.Action,
			&e.ActorUserID,
			&e.Comments,
			&e.CreatedAt,
		); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan workflow log")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindSubmitter resolves the original initiator from the SUBMIT entry.
func (r *LogRepository) FindSubmitter(ctx context.Context, instanceID string) (int64, error) {
	query := `
		SELECT actor_user_id
		FROM workflow_logs
		WHERE instance_id = $1 AND action = 'SUBMIT'
		ORDER BY created_at ASC
		LIMIT 1
	`

	var userID int64
	err := r.db.QueryRow(ctx, query, instanceID).Scan(&userID)
	if err == pgx.ErrNoRows {
		return 0, apperr.NotFound("submit log entry", instanceID)
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "failed to resolve submitter")
	}
	return userID, nil
}
