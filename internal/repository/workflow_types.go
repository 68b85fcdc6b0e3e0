package repository

import (
	"time"

	"github.com/halcyon-erp/be-approvals/internal/doctype"
)

// ── Domain types for the approval workflow engine ────────────────────────────

// Instance statuses. An instance leaves PENDING exactly once.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusReturned = "RETURNED"
)

// Task actions. PENDING marks the single currently-actionable task.
const (
	TaskPending  = "PENDING"
	TaskApproved = "APPROVED"
	TaskRejected = "REJECTED"
	TaskReturned = "RETURNED"
)

// Log actions, append-only.
const (
	LogSubmit  = "SUBMIT"
	LogApprove = "APPROVE"
	LogReject  = "REJECT"
	LogReturn  = "RETURN"
)

// Catalog default behaviors for document types with no active definition.
const (
	BehaviorBypass      = "BYPASS"
	BehaviorAutoApprove = "AUTO_APPROVE"
	BehaviorManual      = "MANUAL"
)

// WorkflowDefinition is an administrator-configured approval template for one
// (company, document type, amount band). Read-only to the engine.
type WorkflowDefinition struct {
	ID              string
	CompanyID       string
	Code            string
	Name            string
	ModuleKey       string
	DocumentType    doctype.Type
	DocumentRoute   *string // optional URL-style alternate match key
	MinAmount       *int64  // cents; nil = no lower bound
	MaxAmount       *int64  // cents; nil = no upper bound
	DefaultBehavior *string // BYPASS | AUTO_APPROVE | MANUAL
	IsActive        bool
	Steps           []*WorkflowStep
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WorkflowStep is one ordered stage of a definition with its approver set.
type WorkflowStep struct {
	ID             string
	WorkflowID     string
	StepOrder      int
	StepName       string
	ApproverUserID *int64 // legacy single-approver column, used when the set is empty
	ApprovalLimit  *int64 // cents; nil = unlimited
	IsMandatory    bool
	Approvers      []StepApprover
}

// StepApprover is one member of a step's approver set. The per-approver limit
// column exists in the catalog schema; the engine enforces the step limit.
type StepApprover struct {
	UserID        int64
	ApprovalLimit *int64
}

// WorkflowInstance is one live approval case bound to exactly one document.
type WorkflowInstance struct {
	ID               string
	CompanyID        string
	WorkflowID       string
	DocumentID       string
	DocumentType     doctype.Type
	Amount           *int64 // cents; nil when the document carries no amount
	CurrentStepOrder int
	Status           string
	AssignedToUserID *int64 // nil once terminal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the instance has reached a final status.
func (i *WorkflowInstance) Terminal() bool {
	return i.Status != StatusPending
}

// WorkflowTask is the materialized assignment record for one traversed step.
type WorkflowTask struct {
	ID               string
	InstanceID       string
	StepOrder        int
	AssignedToUserID int64
	Action           string
	ActedAt          *time.Time
	CreatedAt        time.Time
}

// WorkflowLogEntry is one immutable audit record. The SUBMIT entry is the
// source of truth for who initiated the instance.
type WorkflowLogEntry struct {
	ID          string
	InstanceID  string
	StepOrder   int
	Action      string
	ActorUserID int64
	Comments    *string
	CreatedAt   time.Time
}

// Notification is an in-app inbox row written as a transition side effect.
type Notification struct {
	ID        string
	CompanyID string
	UserID    int64
	Title     string
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}

// PendingApproval is one row of a user's approval inbox: the instance joined
// with its workflow name and a human-readable document reference.
type PendingApproval struct {
	Instance     *WorkflowInstance
	WorkflowName string
	StepName     string
	DocumentRef  string
}
