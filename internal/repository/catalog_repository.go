package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
)

// CatalogRepository reads workflow definitions, steps and approver sets.
// Definitions are administrator-managed elsewhere; the engine only reads,
// so this repository exposes no mutations.
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const definitionColumns = `
	id, company_id, code, name, module_key, document_type, document_route,
	min_amount, max_amount, default_behavior, is_active, created_at, updated_at
`

// GetDefinition retrieves one definition with its steps hydrated.
func (r *CatalogRepository) GetDefinition(ctx context.Context, id, companyID string) (*WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE id = $1 AND company_id = $2
	`

	def, err := r.scanDefinition(r.db.QueryRow(ctx, query, id, companyID))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("workflow_definition", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.hydrateSteps(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// FindByRoute returns all definitions (active or not) matching a document
// route, in catalog order. Steps are hydrated.
func (r *CatalogRepository) FindByRoute(ctx context.Context, companyID, route string) ([]*WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE company_id = $1 AND document_route = $2
		ORDER BY id ASC
	`
	return r.findDefinitions(ctx, query, companyID, route)
}

// FindByType returns all definitions for a document type, in catalog order.
// Steps are hydrated.
func (r *CatalogRepository) FindByType(ctx context.Context, companyID string, t doctype.Type) ([]*WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE company_id = $1 AND document_type = $2
		ORDER BY id ASC
	`
	return r.findDefinitions(ctx, query, companyID, string(t))
}

func (r *CatalogRepository) findDefinitions(ctx context.Context, query string, args ...any) ([]*WorkflowDefinition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to query workflow definitions")
	}
	defer rows.Close()

	var defs []*WorkflowDefinition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan workflow definition")
		}
		defs = append(defs, def)
	}
	for _, def := range defs {
		if err := r.hydrateSteps(ctx, def); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// hydrateSteps loads a definition's steps and per-step approver sets, ordered
// by step_order. Step orders are expected to be contiguous from 1 but the
// engine never assumes it.
func (r *CatalogRepository) hydrateSteps(ctx context.Context, def *WorkflowDefinition) error {
	stepQuery := `
		SELECT id, workflow_id, step_order, step_name,
		       approver_user_id, approval_limit, is_mandatory
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, stepQuery, def.ID)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to query workflow steps")
	}
	defer rows.Close()

	var steps []*WorkflowStep
	for rows.Next() {
		s := &WorkflowStep{}
		if err := rows.Scan(
			&s.ID,
			&s.WorkflowID,
			&s.StepOrder,
			&s.StepName,
			&s.ApproverUserID,
			&s.ApprovalLimit,
			&s.IsMandatory,
		); err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, s)
	}
	rows.Close()

	approverQuery := `
		SELECT user_id, approval_limit
		FROM workflow_step_approvers
		WHERE step_id = $1
		ORDER BY user_id ASC
	`
	for _, s := range steps {
		arows, err := r.db.Query(ctx, approverQuery, s.ID)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to query step approvers")
		}
		for arows.Next() {
			var a StepApprover
			if err := arows.Scan(&a.UserID, &a.ApprovalLimit); err != nil {
				arows.Close()
				return apperr.Wrap(err, apperr.CodeInternal, "failed to scan step approver")
			}
			s.Approvers = append(s.Approvers, a)
		}
		arows.Close()
	}

	def.Steps = steps
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type definitionScanner interface {
	Scan(dest ...any) error
}

func (r *CatalogRepository) scanDefinition(row definitionScanner) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{}
	var docType string
	err := row.Scan(
		&def.ID,
		&def.CompanyID,
		&def.Code,
		&def.Name,
		&def.ModuleKey,
		&docType,
		&def.DocumentRoute,
		&def.MinAmount,
		&def.MaxAmount,
		&def.DefaultBehavior,
		&def.IsActive,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.DocumentType = doctype.Type(docType)
	return def, nil
}
