package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
)

// InstanceRepository manages document workflow instances. Mutations run
// inside the action transaction, so every mutator takes the caller's tx.
type InstanceRepository struct {
	db *database.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *database.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

const instanceColumns = `
	id, company_id, workflow_id, document_id, document_type, amount,
	current_step_order, status, assigned_to_user_id, created_at, updated_at
`

// Insert creates an instance row inside the start transaction.
func (r *InstanceRepository) Insert(ctx context.Context, tx pgx.Tx, inst *WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances
		    (company_id, workflow_id, document_id, document_type, amount,
		     current_step_order, status, assigned_to_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		inst.CompanyID,
		inst.WorkflowID,
		inst.DocumentID,
		string(inst.DocumentType),
		inst.Amount,
		inst.CurrentStepOrder,
		inst.Status,
		inst.AssignedToUserID,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create workflow instance")
	}
	return nil
}

// GetByID retrieves an instance without locking.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE id = $1
	`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("workflow_instance", id)
	}
	return inst, err
}

// GetByIDForUpdate retrieves an instance holding a row lock until the
// transaction commits. Action preconditions are re-checked on the locked row
// so two concurrent actions can never both advance the same instance.
func (r *InstanceRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE id = $1
		FOR UPDATE
	`

	inst, err := r.scanInstance(tx.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("workflow_instance", id)
	}
	return inst, err
}

// GetActiveByDocument returns the non-terminal instance for a document, or
// nil when none exists. Runs on the caller's tx so the start uniqueness
// guard sees uncommitted state.
func (r *InstanceRepository) GetActiveByDocument(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (*WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE company_id = $1 AND document_id = $2 AND document_type = $3
		  AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1
	`

	inst, err := r.scanInstance(tx.QueryRow(ctx, query, companyID, documentID, string(t)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// Advance moves the instance to the next step and reassigns it.
func (r *InstanceRepository) Advance(ctx context.Context, tx pgx.Tx, id string, stepOrder int, assigneeID int64) error {
	query := `
		UPDATE workflow_instances
		SET current_step_order  = $2,
		    assigned_to_user_id = $3,
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, stepOrder, assigneeID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("workflow_instance", id)
	}
	return err
}

// Finalize sets a terminal status and clears the assignee.
func (r *InstanceRepository) Finalize(ctx context.Context, tx pgx.Tx, id, status string) error {
	query := `
		UPDATE workflow_instances
		SET status              = $2,
		    assigned_to_user_id = NULL,
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("workflow_instance", id)
	}
	return err
}

// ListPendingForUser returns all PENDING instances assigned to a user,
// joined with the workflow name and current step name for inbox display.
func (r *InstanceRepository) ListPendingForUser(ctx context.Context, companyID string, userID int64) ([]*PendingApproval, error) {
	query := `
		SELECT i.id, i.company_id, i.workflow_id, i.document_id, i.document_type,
		       i.amount, i.current_step_order, i.status, i.assigned_to_user_id,
		       i.created_at, i.updated_at,
		       d.name,
		       COALESCE(s.step_name, '')
		FROM workflow_instances i
		JOIN workflow_definitions d ON d.id = i.workflow_id
		LEFT JOIN workflow_steps s
		       ON s.workflow_id = i.workflow_id AND s.step_order = i.current_step_order
		WHERE i.company_id = $1
		  AND i.status = 'PENDING'
		  AND i.assigned_to_user_id = $2
		ORDER BY i.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, companyID, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	var items []*PendingApproval
	for rows.Next() {
		inst := &WorkflowInstance{}
		var docType string
		item := &PendingApproval{Instance: inst}
		if err := rows.Scan(
			&inst.ID,
			&inst.CompanyID,
			&inst.WorkflowID,
			&inst.DocumentID,
			&docType,
			&inst.Amount,
			&inst.CurrentStepOrder,
			&inst.Status,
			&inst.AssignedToUserID,
			&inst.CreatedAt,
			&inst.UpdatedAt,
			&item.WorkflowName,
			&item.StepName,
		); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan pending approval")
		}
		inst.DocumentType = doctype.Type(docType)
		items = append(items, item)
	}
	return items, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type instanceScanner interface {
	Scan(dest ...any) error
}

func (r *InstanceRepository) scanInstance(row instanceScanner) (*WorkflowInstance, error) {
	inst := &WorkflowInstance{}
	var docType string
	err := row.Scan(
		&inst.ID,
		&inst.CompanyID,
		&inst.WorkflowID,
		&inst.DocumentID,
		&docType,
		&inst.Amount,
		&inst.CurrentStepOrder,
		&inst.Status,
		&inst.AssignedToUserID,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.DocumentType = doctype.Type(docType)
	return inst, nil
}
