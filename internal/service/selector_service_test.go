package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
	"github.com/halcyon-erp/be-approvals/internal/repository"
)

func newSelector(catalog *mockCatalog) *SelectorService {
	return NewSelectorService(catalog, zerolog.Nop())
}

func bandDefinition(id string, min, max *int64, active bool) *repository.WorkflowDefinition {
	return &repository.WorkflowDefinition{
		ID:           id,
		CompanyID:    "co-1",
		Code:         id,
		DocumentType: doctype.PurchaseOrder,
		MinAmount:    min,
		MaxAmount:    max,
		IsActive:     active,
		Steps: []*repository.WorkflowStep{
			{StepOrder: 1, StepName: "Manager", Approvers: []repository.StepApprover{{UserID: 10}}},
		},
	}
}

func TestSelectPicksActiveBandMatch(t *testing.T) {
	low := bandDefinition("wf-low", nil, ptrInt64(50_000), true)
	high := bandDefinition("wf-high", ptrInt64(50_001), nil, true)

	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{low, high}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, ptrInt64(75_000), nil)
	require.NoError(t, err)
	require.NotNil(t, sel.Workflow)
	assert.Equal(t, "wf-high", sel.Workflow.ID)
	assert.Equal(t, 1, sel.FirstStep.StepOrder)
	assert.False(t, sel.Ambiguous)
}

func TestSelectBandBoundsAreInclusive(t *testing.T) {
	def := bandDefinition("wf-band", ptrInt64(100), ptrInt64(200), true)
	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{def}, nil
		},
	}
	s := newSelector(catalog)

	for _, amount := range []int64{100, 150, 200} {
		sel, err := s.Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, ptrInt64(amount), nil)
		require.NoError(t, err)
		require.NotNil(t, sel.Workflow, "amount %d should match", amount)
	}
	for _, amount := range []int64{99, 201} {
		sel, err := s.Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, ptrInt64(amount), nil)
		require.NoError(t, err)
		assert.Nil(t, sel.Workflow, "amount %d should not match", amount)
	}
}

func TestSelectNilAmountMatchesAnyBand(t *testing.T) {
	def := bandDefinition("wf-band", ptrInt64(100), ptrInt64(200), true)
	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{def}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sel.Workflow)
	assert.Equal(t, "wf-band", sel.Workflow.ID)
}

func TestSelectOverlappingBandsFlaggedAmbiguous(t *testing.T) {
	a := bandDefinition("wf-a", nil, nil, true)
	b := bandDefinition("wf-b", nil, nil, true)
	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{a, b}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, ptrInt64(50), nil)
	require.NoError(t, err)
	require.NotNil(t, sel.Workflow)
	assert.Equal(t, "wf-a", sel.Workflow.ID, "first by catalog order wins")
	assert.True(t, sel.Ambiguous)
}

func TestSelectRouteMatchBeatsTypeMatch(t *testing.T) {
	byRoute := bandDefinition("wf-route", nil, nil, true)
	byType := bandDefinition("wf-type", nil, nil, true)
	catalog := &mockCatalog{
		FindByRouteFn: func(ctx context.Context, companyID, route string) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{byRoute}, nil
		},
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{byType}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, ptrString("/purchases/orders"), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sel.Workflow)
	assert.Equal(t, "wf-route", sel.Workflow.ID)
}

func TestSelectOverrideWins(t *testing.T) {
	override := bandDefinition("wf-override", nil, nil, true)
	catalog := &mockCatalog{
		GetDefinitionFn: func(ctx context.Context, id, companyID string) (*repository.WorkflowDefinition, error) {
			require.Equal(t, "wf-override", id)
			return override, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, ptrString("wf-override"))
	require.NoError(t, err)
	require.NotNil(t, sel.Workflow)
	assert.Equal(t, "wf-override", sel.Workflow.ID)
	assert.Equal(t, "explicit workflow override", sel.Reason)
}

func TestSelectMissingOverrideFallsBack(t *testing.T) {
	fallback := bandDefinition("wf-fallback", nil, nil, true)
	catalog := &mockCatalog{
		GetDefinitionFn: func(ctx context.Context, id, companyID string) (*repository.WorkflowDefinition, error) {
			return nil, apperr.NotFound("workflow", id)
		},
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{fallback}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, ptrString("wf-missing"))
	require.NoError(t, err)
	require.NotNil(t, sel.Workflow)
	assert.Equal(t, "wf-fallback", sel.Workflow.ID)
}

func TestSelectWrongTypeOverrideFallsBack(t *testing.T) {
	override := bandDefinition("wf-override", nil, nil, true)
	override.DocumentType = doctype.Voucher

	catalog := &mockCatalog{
		GetDefinitionFn: func(ctx context.Context, id, companyID string) (*repository.WorkflowDefinition, error) {
			return override, nil
		},
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return nil, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, ptrString("wf-override"))
	require.NoError(t, err)
	assert.Nil(t, sel.Workflow)
	assert.Equal(t, BehaviorNone, sel.Behavior)
}

func TestSelectInactiveDefinitionSurfacesDefaultBehavior(t *testing.T) {
	inactive := bandDefinition("wf-off", nil, nil, false)
	inactive.DefaultBehavior = ptrString(repository.BehaviorAutoApprove)

	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{inactive}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sel.Workflow)
	assert.Equal(t, repository.BehaviorAutoApprove, sel.Behavior)
}

func TestSelectInactiveWithoutBehaviorDefaultsManual(t *testing.T) {
	inactive := bandDefinition("wf-off", nil, nil, false)

	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{inactive}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.BehaviorManual, sel.Behavior)
}

func TestSelectNoDefinitionsReturnsNone(t *testing.T) {
	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return nil, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sel.Workflow)
	assert.Equal(t, BehaviorNone, sel.Behavior)
	assert.NotEmpty(t, sel.Reason)
}

func TestSelectActiveBandMissReturnsNone(t *testing.T) {
	def := bandDefinition("wf-band", ptrInt64(1_000), ptrInt64(2_000), true)
	catalog := &mockCatalog{
		FindByTypeFn: func(ctx context.Context, companyID string, dt doctype.Type) ([]*repository.WorkflowDefinition, error) {
			return []*repository.WorkflowDefinition{def}, nil
		},
	}

	sel, err := newSelector(catalog).Select(context.Background(), "co-1", doctype.PurchaseOrder, nil, ptrInt64(5_000), nil)
	require.NoError(t, err)
	assert.Nil(t, sel.Workflow)
	assert.Equal(t, BehaviorNone, sel.Behavior)
}

func TestFirstStepHandlesGaps(t *testing.T) {
	def := &repository.WorkflowDefinition{
		Steps: []*repository.WorkflowStep{
			{StepOrder: 30}, {StepOrder: 10}, {StepOrder: 20},
		},
	}
	assert.Equal(t, 10, firstStep(def).StepOrder)
	assert.Equal(t, 20, stepAfter(def, 10).StepOrder)
	assert.Equal(t, 30, stepAfter(def, 20).StepOrder)
	assert.Nil(t, stepAfter(def, 30))
	assert.Nil(t, stepAt(def, 15))
}
