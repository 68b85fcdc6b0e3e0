package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/client"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
	"github.com/halcyon-erp/be-approvals/internal/repository"
)

// Func-field mocks so each test overrides only what it needs.

type mockTxRunner struct{}

func (m *mockTxRunner) InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type mockCatalog struct {
	GetDefinitionFn func(ctx context.Context, id, companyID string) (*repository.WorkflowDefinition, error)
	FindByRouteFn   func(ctx context.Context, companyID, route string) ([]*repository.WorkflowDefinition, error)
	FindByTypeFn    func(ctx context.Context, companyID string, t doctype.Type) ([]*repository.WorkflowDefinition, error)
}

func (m *mockCatalog) GetDefinition(ctx context.Context, id, companyID string) (*repository.WorkflowDefinition, error) {
	return m.GetDefinitionFn(ctx, id, companyID)
}

func (m *mockCatalog) FindByRoute(ctx context.Context, companyID, route string) ([]*repository.WorkflowDefinition, error) {
	if m.FindByRouteFn == nil {
		return nil, nil
	}
	return m.FindByRouteFn(ctx, companyID, route)
}

func (m *mockCatalog) FindByType(ctx context.Context, companyID string, t doctype.Type) ([]*repository.WorkflowDefinition, error) {
	if m.FindByTypeFn == nil {
		return nil, nil
	}
	return m.FindByTypeFn(ctx, companyID, t)
}

type mockSelector struct {
	SelectFn func(ctx context.Context, companyID string, t doctype.Type, route *string, amount *int64, overrideID *string) (*Selection, error)
}

func (m *mockSelector) Select(ctx context.Context, companyID string, t doctype.Type, route *string, amount *int64, overrideID *string) (*Selection, error) {
	return m.SelectFn(ctx, companyID, t, route, amount, overrideID)
}

type mockInstances struct {
	InsertFn              func(ctx context.Context, tx pgx.Tx, inst *repository.WorkflowInstance) error
	GetByIDFn             func(ctx context.Context, id string) (*repository.WorkflowInstance, error)
	GetByIDForUpdateFn    func(ctx context.Context, tx pgx.Tx, id string) (*repository.WorkflowInstance, error)
	GetActiveByDocumentFn func(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (*repository.WorkflowInstance, error)
	AdvanceFn             func(ctx context.Context, tx pgx.Tx, id string, stepOrder int, assigneeID int64) error
	FinalizeFn            func(ctx context.Context, tx pgx.Tx, id, status string) error
	ListPendingForUserFn  func(ctx context.Context, companyID string, userID int64) ([]*repository.PendingApproval, error)
}

func (m *mockInstances) Insert(ctx context.Context, tx pgx.Tx, inst *repository.WorkflowInstance) error {
	if m.InsertFn == nil {
		inst.ID = "inst-1"
		return nil
	}
	return m.InsertFn(ctx, tx, inst)
}

func (m *mockInstances) GetByID(ctx context.Context, id string) (*repository.WorkflowInstance, error) {
	return m.GetByIDFn(ctx, id)
}

func (m *mockInstances) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*repository.WorkflowInstance, error) {
	return m.GetByIDForUpdateFn(ctx, tx, id)
}

func (m *mockInstances) GetActiveByDocument(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (*repository.WorkflowInstance, error) {
	if m.GetActiveByDocumentFn == nil {
		return nil, nil
	}
	return m.GetActiveByDocumentFn(ctx, tx, companyID, documentID, t)
}

func (m *mockInstances) Advance(ctx context.Context, tx pgx.Tx, id string, stepOrder int, assigneeID int64) error {
	if m.AdvanceFn == nil {
		return nil
	}
	return m.AdvanceFn(ctx, tx, id, stepOrder, assigneeID)
}

func (m *mockInstances) Finalize(ctx context.Context, tx pgx.Tx, id, status string) error {
	if m.FinalizeFn == nil {
		return nil
	}
	return m.FinalizeFn(ctx, tx, id, status)
}

func (m *mockInstances) ListPendingForUser(ctx context.Context, companyID string, userID int64) ([]*repository.PendingApproval, error) {
	return m.ListPendingForUserFn(ctx, companyID, userID)
}

type mockTasks struct {
	InsertFn         func(ctx context.Context, tx pgx.Tx, task *repository.WorkflowTask) error
	CloseFn          func(ctx context.Context, tx pgx.Tx, instanceID string, stepOrder int, action string) error
	ListByInstanceFn func(ctx context.Context, instanceID string) ([]*repository.WorkflowTask, error)
}

func (m *mockTasks) Insert(ctx context.Context, tx pgx.Tx, task *repository.WorkflowTask) error {
	if m.InsertFn == nil {
		return nil
	}
	return m.InsertFn(ctx, tx, task)
}

func (m *mockTasks) Close(ctx context.Context, tx pgx.Tx, instanceID string, stepOrder int, action string) error {
	if m.CloseFn == nil {
		return nil
	}
	return m.CloseFn(ctx, tx, instanceID, stepOrder, action)
}

func (m *mockTasks) ListByInstance(ctx context.Context, instanceID string) ([]*repository.WorkflowTask, error) {
	if m.ListByInstanceFn == nil {
		return nil, nil
	}
	return m.ListByInstanceFn(ctx, instanceID)
}

type mockLogs struct {
	AppendFn         func(ctx context.Context, tx pgx.Tx, entry *repository.WorkflowLogEntry) error
	ListByInstanceFn func(ctx context.Context, instanceID string) ([]*repository.WorkflowLogEntry, error)
	FindSubmitterFn  func(ctx context.Context, instanceID string) (int64, error)
}

func (m *mockLogs) Append(ctx context.Context, tx pgx.Tx, entry *repository.WorkflowLogEntry) error {
	if m.AppendFn == nil {
		return nil
	}
	return m.AppendFn(ctx, tx, entry)
}

func (m *mockLogs) ListByInstance(ctx context.Context, instanceID string) ([]*repository.WorkflowLogEntry, error) {
	if m.ListByInstanceFn == nil {
		return nil, nil
	}
	return m.ListByInstanceFn(ctx, instanceID)
}

func (m *mockLogs) FindSubmitter(ctx context.Context, instanceID string) (int64, error) {
	if m.FindSubmitterFn == nil {
		return 1, nil
	}
	return m.FindSubmitterFn(ctx, instanceID)
}

type mockNotifications struct {
	InsertFn func(ctx context.Context, n *repository.Notification) error
	Inserted []*repository.Notification
}

func (m *mockNotifications) Insert(ctx context.Context, n *repository.Notification) error {
	m.Inserted = append(m.Inserted, n)
	if m.InsertFn == nil {
		return nil
	}
	return m.InsertFn(ctx, n)
}

type publishedEvent struct {
	EventType  string
	Recipients []int64
	InstanceID string
}

type mockPublisher struct {
	Events []publishedEvent
}

func (m *mockPublisher) PublishApprovalEvent(eventType, companyID string, actorUserID int64, recipients []int64, instanceID string, payload map[string]any) {
	m.Events = append(m.Events, publishedEvent{EventType: eventType, Recipients: recipients, InstanceID: instanceID})
}

type appliedEffect struct {
	Resolution Resolution
	Outcome    string
}

type mockEffects struct {
	ApplyFn func(ctx context.Context, tx pgx.Tx, res Resolution, outcome string) error
	Applied []appliedEffect
}

func (m *mockEffects) Apply(ctx context.Context, tx pgx.Tx, res Resolution, outcome string) error {
	m.Applied = append(m.Applied, appliedEffect{Resolution: res, Outcome: outcome})
	if m.ApplyFn == nil {
		return nil
	}
	return m.ApplyFn(ctx, tx, res, outcome)
}

type mockDocs struct {
	GetStatusFn      func(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (string, error)
	SetStatusFn      func(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type, status string) error
	GetStockLinesFn  func(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) ([]client.StockLine, error)
	GetDocumentRefFn func(ctx context.Context, companyID, documentID string, t doctype.Type) (string, error)

	Statuses map[string]string // documentID -> status, maintained by default fns
}

func (m *mockDocs) GetStatus(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (string, error) {
	if m.GetStatusFn != nil {
		return m.GetStatusFn(ctx, tx, companyID, documentID, t)
	}
	return m.Statuses[documentID], nil
}

func (m *mockDocs) SetStatus(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type, status string) error {
	if m.SetStatusFn != nil {
		return m.SetStatusFn(ctx, tx, companyID, documentID, t, status)
	}
	if m.Statuses == nil {
		m.Statuses = map[string]string{}
	}
	m.Statuses[documentID] = status
	return nil
}

func (m *mockDocs) GetStockLines(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) ([]client.StockLine, error) {
	if m.GetStockLinesFn == nil {
		return nil, nil
	}
	return m.GetStockLinesFn(ctx, tx, companyID, documentID, t)
}

func (m *mockDocs) GetDocumentRef(ctx context.Context, companyID, documentID string, t doctype.Type) (string, error) {
	if m.GetDocumentRefFn == nil {
		return "DOC-001", nil
	}
	return m.GetDocumentRefFn(ctx, companyID, documentID, t)
}

type stockDelta struct {
	ItemID string
	Delta  float64
}

type mockStock struct {
	ApplyDeltaFn func(ctx context.Context, tx pgx.Tx, companyID, branchID, warehouseID, itemID string, delta float64) error
	Deltas       []stockDelta
}

func (m *mockStock) ApplyDelta(ctx context.Context, tx pgx.Tx, companyID, branchID, warehouseID, itemID string, delta float64) error {
	m.Deltas = append(m.Deltas, stockDelta{ItemID: itemID, Delta: delta})
	if m.ApplyDeltaFn == nil {
		return nil
	}
	return m.ApplyDeltaFn(ctx, tx, companyID, branchID, warehouseID, itemID, delta)
}

// Shared test fixture helpers.

func ptrInt64(v int64) *int64 { return &v }

func ptrString(v string) *string { return &v }

func twoStepWorkflow() *repository.WorkflowDefinition {
	return &repository.WorkflowDefinition{
		ID:           "wf-1",
		CompanyID:    "co-1",
		Code:         "PO_STANDARD",
		Name:         "Standard Purchase Approval",
		DocumentType: doctype.PurchaseOrder,
		IsActive:     true,
		Steps: []*repository.WorkflowStep{
			{
				ID: "step-1", WorkflowID: "wf-1", StepOrder: 1, StepName: "Manager",
				ApprovalLimit: ptrInt64(100_000),
				Approvers:     []repository.StepApprover{{UserID: 10}},
			},
			{
				ID: "step-2", WorkflowID: "wf-1", StepOrder: 2, StepName: "Director",
				Approvers: []repository.StepApprover{{UserID: 20}},
			},
		},
	}
}
