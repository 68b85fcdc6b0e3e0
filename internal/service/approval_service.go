package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/client"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
	"github.com/halcyon-erp/be-approvals/internal/repository"
)

// Approver decision actions.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionReturn  = "RETURN"
)

// Start outcomes beyond a created instance.
const (
	OutcomeStarted      = "STARTED"
	OutcomeAutoApproved = "AUTO_APPROVED"
	OutcomeBypassed     = "BYPASSED"
	OutcomeManual       = "MANUAL"
	OutcomeNone         = "NONE"
)

// TxRunner scopes a function to one database transaction.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// InstanceStore is the instance persistence surface the engine needs.
type InstanceStore interface {
	Insert(ctx context.Context, tx pgx.Tx, inst *repository.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*repository.WorkflowInstance, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*repository.WorkflowInstance, error)
	GetActiveByDocument(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (*repository.WorkflowInstance, error)
	Advance(ctx context.Context, tx pgx.Tx, id string, stepOrder int, assigneeID int64) error
	Finalize(ctx context.Context, tx pgx.Tx, id, status string) error
	ListPendingForUser(ctx context.Context, companyID string, userID int64) ([]*repository.PendingApproval, error)
}

// TaskStore is the task persistence surface.
type TaskStore interface {
	Insert(ctx context.Context, tx pgx.Tx, task *repository.WorkflowTask) error
	Close(ctx context.Context, tx pgx.Tx, instanceID string, stepOrder int, action string) error
	ListByInstance(ctx context.Context, instanceID string) ([]*repository.WorkflowTask, error)
}

// LogStore is the audit trail surface.
type LogStore interface {
	Append(ctx context.Context, tx pgx.Tx, entry *repository.WorkflowLogEntry) error
	ListByInstance(ctx context.Context, instanceID string) ([]*repository.WorkflowLogEntry, error)
	FindSubmitter(ctx context.Context, instanceID string) (int64, error)
}

// NotificationStore writes in-app inbox rows.
type NotificationStore interface {
	Insert(ctx context.Context, n *repository.Notification) error
}

// EventPublisher publishes best-effort notification events.
type EventPublisher interface {
	PublishApprovalEvent(eventType, companyID string, actorUserID int64, recipients []int64, instanceID string, payload map[string]any)
}

// EffectDispatcher applies terminal-outcome side effects to the document.
type EffectDispatcher interface {
	Apply(ctx context.Context, tx pgx.Tx, res Resolution, outcome string) error
}

// WorkflowSelector picks the applicable definition for a document.
type WorkflowSelector interface {
	Select(ctx context.Context, companyID string, t doctype.Type, route *string, amount *int64, overrideID *string) (*Selection, error)
}

// ApprovalService orchestrates the document approval state machine: Start
// creates instances, Act processes approver decisions, and the read side
// serves approval inboxes and instance detail.
type ApprovalService struct {
	db            TxRunner
	catalog       CatalogReader
	selector      WorkflowSelector
	instances     InstanceStore
	tasks         TaskStore
	logs          LogStore
	notifications NotificationStore
	publisher     EventPublisher
	effects       EffectDispatcher
	docs          client.DocumentStore
	log           zerolog.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	db TxRunner,
	catalog CatalogReader,
	selector WorkflowSelector,
	instances InstanceStore,
	tasks TaskStore,
	logs LogStore,
	notifications NotificationStore,
	publisher EventPublisher,
	effects EffectDispatcher,
	docs client.DocumentStore,
	log zerolog.Logger,
) *ApprovalService {
	return &ApprovalService{
		db:            db,
		catalog:       catalog,
		selector:      selector,
		instances:     instances,
		tasks:         tasks,
		logs:          logs,
		notifications: notifications,
		publisher:     publisher,
		effects:       effects,
		docs:          docs,
		log:           log,
	}
}

// ── Start ─────────────────────────────────────────────────────────────────────

// StartRequest is a document module's request to put a submitted document
// under approval.
type StartRequest struct {
	CompanyID     string
	DocumentID    string
	DocumentType  doctype.Type
	DocumentRoute *string
	Amount        *int64 // cents
	WorkflowID    *string // explicit override
	TargetUserID  *int64  // preferred first approver
	SubmittedBy   int64
}

// StartResult reports what Start did with the document.
type StartResult struct {
	Outcome    string `json:"outcome"`
	InstanceID string `json:"instance_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Start selects the applicable workflow and creates the approval instance,
// or applies the catalog's fallback behavior when no active definition
// matches. Instance, first task and SUBMIT log commit atomically.
func (s *ApprovalService) Start(ctx context.Context, req *StartRequest) (*StartResult, error) {
	if req.CompanyID == "" {
		return nil, apperr.InvalidInput("company_id", "company id is required")
	}
	if req.DocumentID == "" {
		return nil, apperr.InvalidInput("document_id", "document id is required")
	}
	if !req.DocumentType.Valid() {
		return nil, apperr.InvalidInput("document_type", "unsupported document type "+string(req.DocumentType))
	}

	sel, err := s.selector.Select(ctx, req.CompanyID, req.DocumentType, req.DocumentRoute, req.Amount, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if sel.Workflow == nil {
		return s.startFallback(ctx, req, sel)
	}

	step := sel.FirstStep
	if step == nil {
		return nil, apperr.Newf(apperr.CodeBadRequest, "workflow %s has no steps", sel.Workflow.Code)
	}
	assignee, err := resolveAssignee(step, req.TargetUserID)
	if err != nil {
		return nil, err
	}

	inst := &repository.WorkflowInstance{
		CompanyID:        req.CompanyID,
		WorkflowID:       sel.Workflow.ID,
		DocumentID:       req.DocumentID,
		DocumentType:     req.DocumentType,
		Amount:           req.Amount,
		CurrentStepOrder: step.StepOrder,
		Status:           repository.StatusPending,
		AssignedToUserID: &assignee,
	}

	err = s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		existing, err := s.instances.GetActiveByDocument(ctx, tx, req.CompanyID, req.DocumentID, req.DocumentType)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict(fmt.Sprintf("document already has a pending approval instance %s", existing.ID))
		}

		if err := s.instances.Insert(ctx, tx, inst); err != nil {
			return err
		}
		task := &repository.WorkflowTask{
			InstanceID:       inst.ID,
			StepOrder:        step.StepOrder,
			AssignedToUserID: assignee,
			Action:           repository.TaskPending,
		}
		if err := s.tasks.Insert(ctx, tx, task); err != nil {
			return err
		}
		return s.logs.Append(ctx, tx, &repository.WorkflowLogEntry{
			InstanceID:  inst.ID,
			StepOrder:   step.StepOrder,
			Action:      repository.LogSubmit,
			ActorUserID: req.SubmittedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("workflow_id", sel.Workflow.ID).
		Str("document_id", req.DocumentID).
		Str("document_type", string(req.DocumentType)).
		Int64("assigned_to", assignee).
		Msg("approval instance started")

	s.notifyUser(ctx, inst, assignee, "approval_required", req.SubmittedBy,
		fmt.Sprintf("%s awaiting your approval", req.DocumentType.Label()),
		fmt.Sprintf("A %s was submitted for your approval at step %d.", req.DocumentType.Label(), step.StepOrder))

	return &StartResult{
		Outcome:    OutcomeStarted,
		InstanceID: inst.ID,
		Status:     inst.Status,
		Reason:     sel.Reason,
	}, nil
}

// startFallback handles selector outcomes with no workflow: AUTO_APPROVE
// finalizes the document immediately with no instance; BYPASS, MANUAL and
// NONE leave the document submitted-but-ungoverned.
func (s *ApprovalService) startFallback(ctx context.Context, req *StartRequest, sel *Selection) (*StartResult, error) {
	s.log.Info().
		Str("document_id", req.DocumentID).
		Str("document_type", string(req.DocumentType)).
		Str("behavior", sel.Behavior).
		Str("reason", sel.Reason).
		Msg("no active workflow for document")

	switch sel.Behavior {
	case repository.BehaviorAutoApprove:
		res := Resolution{CompanyID: req.CompanyID, DocumentID: req.DocumentID, DocumentType: req.DocumentType}
		err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
			return s.effects.Apply(ctx, tx, res, repository.StatusApproved)
		})
		if err != nil {
			return nil, err
		}
		s.publisher.PublishApprovalEvent("approval_auto_approved", req.CompanyID, req.SubmittedBy,
			[]int64{req.SubmittedBy}, "", map[string]any{
				"document_id":   req.DocumentID,
				"document_type": string(req.DocumentType),
			})
		return &StartResult{Outcome: OutcomeAutoApproved, Reason: sel.Reason}, nil
	case repository.BehaviorBypass:
		return &StartResult{Outcome: OutcomeBypassed, Reason: sel.Reason}, nil
	case repository.BehaviorManual:
		return &StartResult{Outcome: OutcomeManual, Reason: sel.Reason}, nil
	default:
		return &StartResult{Outcome: OutcomeNone, Reason: sel.Reason}, nil
	}
}

// ── Act ───────────────────────────────────────────────────────────────────────

// ActRequest is one approver decision against a pending instance.
type ActRequest struct {
	InstanceID   string
	ActorUserID  int64
	Action       string
	Comments     *string
	TargetUserID *int64 // preferred next-step assignee, honored if allowed
}

// ActResult reports the instance state after the action.
type ActResult struct {
	InstanceID       string `json:"instance_id"`
	Status           string `json:"status"`
	CurrentStepOrder int    `json:"current_step_order,omitempty"`
	AssignedToUserID *int64 `json:"assigned_to_user_id,omitempty"`
	Complete         bool   `json:"complete"`
}

// Act validates and applies one approver decision. The instance row is
// locked for the duration of the transaction and every precondition is
// re-checked on the locked row, so concurrent actions against the same
// instance serialize: one succeeds, the rest fail their precondition.
func (s *ApprovalService) Act(ctx context.Context, req *ActRequest) (*ActResult, error) {
	switch req.Action {
	case ActionApprove, ActionReject, ActionReturn:
	case "":
		return nil, apperr.InvalidInput("action", "action is required")
	default:
		return nil, apperr.InvalidInput("action", "unsupported action "+req.Action)
	}

	var result *ActResult
	var inst *repository.WorkflowInstance
	var nextAssignee *int64

	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		inst, err = s.instances.GetByIDForUpdate(ctx, tx, req.InstanceID)
		if err != nil {
			return err
		}
		if inst.Terminal() {
			return apperr.Conflict(fmt.Sprintf("instance is already %s", inst.Status))
		}
		if inst.AssignedToUserID == nil || *inst.AssignedToUserID != req.ActorUserID {
			return apperr.Forbidden("action not permitted: instance is not assigned to you")
		}

		def, err := s.catalog.GetDefinition(ctx, inst.WorkflowID, inst.CompanyID)
		if err != nil {
			return err
		}
		current := stepAt(def, inst.CurrentStepOrder)
		if current == nil {
			return apperr.Newf(apperr.CodeBadRequest, "workflow %s has no step %d", def.Code, inst.CurrentStepOrder)
		}
		next := stepAfter(def, inst.CurrentStepOrder)

		switch req.Action {
		case ActionApprove:
			result, nextAssignee, err = s.applyApprove(ctx, tx, inst, current, next, req)
		case ActionReject:
			result, err = s.applyTerminal(ctx, tx, inst, req, repository.StatusRejected, repository.TaskRejected, repository.LogReject)
		case ActionReturn:
			result, err = s.applyTerminal(ctx, tx, inst, req, repository.StatusReturned, repository.TaskReturned, repository.LogReturn)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("action", req.Action).
		Int64("actor", req.ActorUserID).
		Str("status", result.Status).
		Msg("approval action applied")

	s.notifyAfterAct(ctx, inst, req, result, nextAssignee)
	return result, nil
}

// applyApprove advances the instance or finalizes it as APPROVED. The
// approval limit only bites at finality: a low-limit approver may still pass
// the document up to a higher step.
func (s *ApprovalService) applyApprove(
	ctx context.Context,
	tx pgx.Tx,
	inst *repository.WorkflowInstance,
	current, next *repository.WorkflowStep,
	req *ActRequest,
) (*ActResult, *int64, error) {
	if next == nil && exceedsLimit(current, inst.Amount) {
		return nil, nil, apperr.Forbidden(fmt.Sprintf(
			"amount exceeds the approval limit of the final step %d", current.StepOrder))
	}

	if err := s.tasks.Close(ctx, tx, inst.ID, inst.CurrentStepOrder, repository.TaskApproved); err != nil {
		return nil, nil, err
	}
	if err := s.logs.Append(ctx, tx, &repository.WorkflowLogEntry{
		InstanceID:  inst.ID,
		StepOrder:   inst.CurrentStepOrder,
		Action:      repository.LogApprove,
		ActorUserID: req.ActorUserID,
		Comments:    req.Comments,
	}); err != nil {
		return nil, nil, err
	}

	if next != nil {
		assignee, err := resolveAssignee(next, req.TargetUserID)
		if err != nil {
			return nil, nil, apperr.Newf(apperr.CodeBadRequest, "next step %d is misconfigured: no approvers", next.StepOrder)
		}
		if err := s.tasks.Insert(ctx, tx, &repository.WorkflowTask{
			InstanceID:       inst.ID,
			StepOrder:        next.StepOrder,
			AssignedToUserID: assignee,
			Action:           repository.TaskPending,
		}); err != nil {
			return nil, nil, err
		}
		if err := s.instances.Advance(ctx, tx, inst.ID, next.StepOrder, assignee); err != nil {
			return nil, nil, err
		}
		return &ActResult{
			InstanceID:       inst.ID,
			Status:           repository.StatusPending,
			CurrentStepOrder: next.StepOrder,
			AssignedToUserID: &assignee,
		}, &assignee, nil
	}

	if err := s.instances.Finalize(ctx, tx, inst.ID, repository.StatusApproved); err != nil {
		return nil, nil, err
	}
	if err := s.effects.Apply(ctx, tx, resolutionOf(inst), repository.StatusApproved); err != nil {
		return nil, nil, err
	}
	return &ActResult{InstanceID: inst.ID, Status: repository.StatusApproved, Complete: true}, nil, nil
}

// applyTerminal finalizes the instance as REJECTED or RETURNED and runs the
// matching document side effect.
func (s *ApprovalService) applyTerminal(
	ctx context.Context,
	tx pgx.Tx,
	inst *repository.WorkflowInstance,
	req *ActRequest,
	status, taskAction, logAction string,
) (*ActResult, error) {
	if err := s.tasks.Close(ctx, tx, inst.ID, inst.CurrentStepOrder, taskAction); err != nil {
		return nil, err
	}
	if err := s.logs.Append(ctx, tx, &repository.WorkflowLogEntry{
		InstanceID:  inst.ID,
		StepOrder:   inst.CurrentStepOrder,
		Action:      logAction,
		ActorUserID: req.ActorUserID,
		Comments:    req.Comments,
	}); err != nil {
		return nil, err
	}
	if err := s.instances.Finalize(ctx, tx, inst.ID, status); err != nil {
		return nil, err
	}
	if err := s.effects.Apply(ctx, tx, resolutionOf(inst), status); err != nil {
		return nil, err
	}
	return &ActResult{InstanceID: inst.ID, Status: status, Complete: true}, nil
}

// ── Read side ─────────────────────────────────────────────────────────────────

// PendingForUser returns a user's approval inbox with document references
// resolved. A reference that cannot be resolved degrades to empty rather
// than failing the whole inbox.
func (s *ApprovalService) PendingForUser(ctx context.Context, companyID string, userID int64) ([]*repository.PendingApproval, error) {
	items, err := s.instances.ListPendingForUser(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		ref, err := s.docs.GetDocumentRef(ctx, companyID, item.Instance.DocumentID, item.Instance.DocumentType)
		if err != nil {
			s.log.Warn().Err(err).
				Str("instance_id", item.Instance.ID).
				Msg("failed to resolve document reference")
			continue
		}
		item.DocumentRef = ref
	}
	return items, nil
}

// InstanceDetail is an instance with its full history and the next step's
// candidate approvers for UI pre-selection.
type InstanceDetail struct {
	Instance           *repository.WorkflowInstance  `json:"instance"`
	DocumentRef        string                        `json:"document_ref"`
	Tasks              []*repository.WorkflowTask    `json:"tasks"`
	Logs               []*repository.WorkflowLogEntry `json:"logs"`
	NextStepCandidates []int64                       `json:"next_step_candidates"`
}

// GetInstanceDetail loads one instance with history and next-step candidates.
func (s *ApprovalService) GetInstanceDetail(ctx context.Context, instanceID string) (*InstanceDetail, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	detail := &InstanceDetail{Instance: inst, Tasks: tasks, Logs: logs}

	if ref, err := s.docs.GetDocumentRef(ctx, inst.CompanyID, inst.DocumentID, inst.DocumentType); err == nil {
		detail.DocumentRef = ref
	}

	if !inst.Terminal() {
		def, err := s.catalog.GetDefinition(ctx, inst.WorkflowID, inst.CompanyID)
		if err != nil {
			return nil, err
		}
		if next := stepAfter(def, inst.CurrentStepOrder); next != nil {
			detail.NextStepCandidates = approverIDs(next)
		}
	}
	return detail, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// resolveAssignee picks the step's assignee: the requested target when it is
// a member of the approver set, otherwise the lowest user id in the set,
// otherwise the step's legacy single approver.
func resolveAssignee(step *repository.WorkflowStep, target *int64) (int64, error) {
	if len(step.Approvers) > 0 {
		if target != nil {
			for _, a := range step.Approvers {
				if a.UserID == *target {
					return *target, nil
				}
			}
		}
		lowest := step.Approvers[0].UserID
		for _, a := range step.Approvers[1:] {
			if a.UserID < lowest {
				lowest = a.UserID
			}
		}
		return lowest, nil
	}
	if step.ApproverUserID != nil {
		return *step.ApproverUserID, nil
	}
	return 0, apperr.Newf(apperr.CodeBadRequest, "workflow step %d has no approvers", step.StepOrder)
}

// exceedsLimit reports whether the amount strictly exceeds the step's limit.
func exceedsLimit(step *repository.WorkflowStep, amount *int64) bool {
	return step.ApprovalLimit != nil && amount != nil && *amount > *step.ApprovalLimit
}

func approverIDs(step *repository.WorkflowStep) []int64 {
	ids := make([]int64, 0, len(step.Approvers))
	for _, a := range step.Approvers {
		ids = append(ids, a.UserID)
	}
	if len(ids) == 0 && step.ApproverUserID != nil {
		ids = append(ids, *step.ApproverUserID)
	}
	return ids
}

func resolutionOf(inst *repository.WorkflowInstance) Resolution {
	return Resolution{
		CompanyID:    inst.CompanyID,
		DocumentID:   inst.DocumentID,
		DocumentType: inst.DocumentType,
	}
}

// notifyAfterAct emits post-commit notifications: the next assignee on an
// advance, the original submitter on a terminal resolution.
func (s *ApprovalService) notifyAfterAct(ctx context.Context, inst *repository.WorkflowInstance, req *ActRequest, result *ActResult, nextAssignee *int64) {
	label := inst.DocumentType.Label()

	if !result.Complete {
		if nextAssignee != nil {
			s.notifyUser(ctx, inst, *nextAssignee, "approval_required", req.ActorUserID,
				fmt.Sprintf("%s awaiting your approval", label),
				fmt.Sprintf("A %s was approved at step %d and now awaits your decision.", label, inst.CurrentStepOrder))
		}
		return
	}

	submitter, err := s.logs.FindSubmitter(ctx, inst.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("instance_id", inst.ID).Msg("failed to resolve submitter for notification")
		return
	}

	eventType := map[string]string{
		repository.StatusApproved: "approval_approved",
		repository.StatusRejected: "approval_rejected",
		repository.StatusReturned: "approval_returned",
	}[result.Status]

	s.notifyUser(ctx, inst, submitter, eventType, req.ActorUserID,
		fmt.Sprintf("%s %s", label, result.Status),
		fmt.Sprintf("Your %s was resolved as %s.", label, result.Status))
}

// notifyUser writes the in-app row and publishes the outbound event. Both
// are best-effort; failures are logged and never surfaced.
func (s *ApprovalService) notifyUser(ctx context.Context, inst *repository.WorkflowInstance, userID int64, eventType string, actorUserID int64, title, message string) {
	n := &repository.Notification{
		CompanyID: inst.CompanyID,
		UserID:    userID,
		Title:     title,
		Message:   message,
		Link:      fmt.Sprintf("/approvals/%s", inst.ID),
	}
	if err := s.notifications.Insert(ctx, n); err != nil {
		s.log.Warn().Err(err).
			Str("instance_id", inst.ID).
			Int64("user_id", userID).
			Msg("failed to write in-app notification")
	}

	s.publisher.PublishApprovalEvent(eventType, inst.CompanyID, actorUserID, []int64{userID}, inst.ID, map[string]any{
		"document_id":   inst.DocumentID,
		"document_type": string(inst.DocumentType),
	})
}
