package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
	"github.com/halcyon-erp/be-approvals/internal/repository"
)

// CatalogReader is the read surface the selector needs from the catalog.
type CatalogReader interface {
	GetDefinition(ctx context.Context, id, companyID string) (*repository.WorkflowDefinition, error)
	FindByRoute(ctx context.Context, companyID, route string) ([]*repository.WorkflowDefinition, error)
	FindByType(ctx context.Context, companyID string, t doctype.Type) ([]*repository.WorkflowDefinition, error)
}

// BehaviorNone marks the absence of any catalog entry for a document type.
// The caller decides; it is typically treated like MANUAL.
const BehaviorNone = "NONE"

// Selection is the selector's single deterministic outcome: either a matched
// workflow with its first step, or a fallback behavior. Reason always says
// why, so catalog misconfiguration is observable instead of silently
// resolved by query order.
type Selection struct {
	Workflow  *repository.WorkflowDefinition
	FirstStep *repository.WorkflowStep
	Behavior  string // set only when Workflow is nil
	Reason    string
	Ambiguous bool // several active definitions claimed the same document
}

// SelectorService picks the applicable workflow definition for a document.
// Pure read; absence is a valid outcome, never an error.
type SelectorService struct {
	catalog CatalogReader
	log     zerolog.Logger
}

// NewSelectorService creates a new SelectorService.
func NewSelectorService(catalog CatalogReader, log zerolog.Logger) *SelectorService {
	return &SelectorService{catalog: catalog, log: log}
}

// Select resolves the single applicable workflow for (documentType, route,
// amount). Ranking: explicit override, then route match, then type match;
// within candidates the first active definition whose amount band contains
// the amount wins. A nil amount matches any band.
func (s *SelectorService) Select(ctx context.Context, companyID string, t doctype.Type, route *string, amount *int64, overrideID *string) (*Selection, error) {
	if overrideID != nil && *overrideID != "" {
		sel, err := s.selectOverride(ctx, companyID, t, *overrideID)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			return sel, nil
		}
		// Override missing or unusable: fall through to normal ranking.
	}

	var candidates []*repository.WorkflowDefinition
	var err error
	matchedBy := "document_type"

	if route != nil && *route != "" {
		candidates, err = s.catalog.FindByRoute(ctx, companyID, *route)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			matchedBy = "document_route"
		}
	}
	if len(candidates) == 0 {
		candidates, err = s.catalog.FindByType(ctx, companyID, t)
		if err != nil {
			return nil, err
		}
	}

	var active []*repository.WorkflowDefinition
	for _, def := range candidates {
		if def.IsActive && bandContains(def, amount) {
			active = append(active, def)
		}
	}

	if len(active) > 0 {
		winner := active[0]
		sel := &Selection{
			Workflow:  winner,
			FirstStep: firstStep(winner),
			Reason:    fmt.Sprintf("matched by %s, active band, catalog order", matchedBy),
			Ambiguous: len(active) > 1,
		}
		if sel.Ambiguous {
			s.log.Warn().
				Str("company_id", companyID).
				Str("document_type", string(t)).
				Str("selected_workflow", winner.ID).
				Int("matching_definitions", len(active)).
				Msg("overlapping active workflow definitions; selected first by catalog order")
		}
		return sel, nil
	}

	// No active match: surface the default behavior of an inactive definition
	// for this type, when one exists.
	for _, def := range candidates {
		if def.IsActive {
			continue
		}
		behavior := repository.BehaviorManual
		if def.DefaultBehavior != nil && *def.DefaultBehavior != "" {
			behavior = *def.DefaultBehavior
		}
		return &Selection{
			Behavior: behavior,
			Reason:   fmt.Sprintf("no active definition matched; inactive definition %s declares default behavior %s", def.Code, behavior),
		}, nil
	}

	if len(candidates) > 0 {
		return &Selection{
			Behavior: BehaviorNone,
			Reason:   "active definitions exist but none contains the document amount",
		}, nil
	}
	return &Selection{
		Behavior: BehaviorNone,
		Reason:   "no workflow definition exists for the document type",
	}, nil
}

// selectOverride validates an explicitly requested workflow id. Returns nil
// (no error) when the override cannot be honored.
func (s *SelectorService) selectOverride(ctx context.Context, companyID string, t doctype.Type, overrideID string) (*Selection, error) {
	def, err := s.catalog.GetDefinition(ctx, overrideID, companyID)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	if def.DocumentType != t || !def.IsActive {
		s.log.Warn().
			Str("workflow_id", overrideID).
			Str("document_type", string(t)).
			Bool("is_active", def.IsActive).
			Msg("requested workflow override not applicable; falling back to ranking")
		return nil, nil
	}
	return &Selection{
		Workflow:  def,
		FirstStep: firstStep(def),
		Reason:    "explicit workflow override",
	}, nil
}

// bandContains reports whether the definition's inclusive amount band covers
// the amount. Nil bounds are unbounded; a nil amount matches any band.
func bandContains(def *repository.WorkflowDefinition, amount *int64) bool {
	if amount == nil {
		return true
	}
	if def.MinAmount != nil && *amount < *def.MinAmount {
		return false
	}
	if def.MaxAmount != nil && *amount > *def.MaxAmount {
		return false
	}
	return true
}

// firstStep returns the step with the lowest step order, or nil when the
// definition has no steps. Gaps in step orders are tolerated.
func firstStep(def *repository.WorkflowDefinition) *repository.WorkflowStep {
	var first *repository.WorkflowStep
	for _, step := range def.Steps {
		if first == nil || step.StepOrder < first.StepOrder {
			first = step
		}
	}
	return first
}

// stepAt returns the step with the exact order, or nil.
func stepAt(def *repository.WorkflowDefinition, order int) *repository.WorkflowStep {
	for _, step := range def.Steps {
		if step.StepOrder == order {
			return step
		}
	}
	return nil
}

// stepAfter returns the step with the smallest order strictly greater than
// the given order, or nil when none remains.
func stepAfter(def *repository.WorkflowDefinition, order int) *repository.WorkflowStep {
	var next *repository.WorkflowStep
	for _, step := range def.Steps {
		if step.StepOrder > order && (next == nil || step.StepOrder < next.StepOrder) {
			next = step
		}
	}
	return next
}
