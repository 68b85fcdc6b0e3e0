package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/client"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
	"github.com/halcyon-erp/be-approvals/internal/repository"
)

// StockWriter is the ledger surface the dispatcher needs.
type StockWriter interface {
	ApplyDelta(ctx context.Context, tx pgx.Tx, companyID, branchID, warehouseID, itemID string, delta float64) error
}

// Resolution identifies the document a terminal instance resolved.
type Resolution struct {
	CompanyID    string
	DocumentID   string
	DocumentType doctype.Type
}

// outcomeHandlers holds the per-outcome side effects of one document type.
// Registering a new type is additive; there is no dispatch switch to edit.
type outcomeHandlers struct {
	approved func(ctx context.Context, tx pgx.Tx, res Resolution) error
	rejected func(ctx context.Context, tx pgx.Tx, res Resolution) error
	returned func(ctx context.Context, tx pgx.Tx, res Resolution) error
}

// SideEffectService maps a resolved instance outcome onto the originating
// document: status updates for every type, plus stock-balance deltas for
// inventory-affecting types on approval. Runs inside the action transaction.
type SideEffectService struct {
	docs     client.DocumentStore
	stock    StockWriter
	registry map[doctype.Type]outcomeHandlers
	log      zerolog.Logger
}

// NewSideEffectService creates the dispatcher with every governed type
// registered.
func NewSideEffectService(docs client.DocumentStore, stock StockWriter, log zerolog.Logger) *SideEffectService {
	s := &SideEffectService{
		docs:  docs,
		stock: stock,
		log:   log,
	}

	s.registry = map[doctype.Type]outcomeHandlers{}
	for _, t := range []doctype.Type{
		doctype.PurchaseOrder,
		doctype.Voucher,
		doctype.Requisition,
		doctype.SalesOrder,
	} {
		s.register(t, s.statusOnly)
	}
	for _, t := range []doctype.Type{
		doctype.GoodsReceipt,
		doctype.StockAdjustment,
		doctype.SalesReturn,
	} {
		s.register(t, s.statusAndStock)
	}
	return s
}

func (s *SideEffectService) register(t doctype.Type, approved func(ctx context.Context, tx pgx.Tx, res Resolution) error) {
	s.registry[t] = outcomeHandlers{
		approved: approved,
		rejected: func(ctx context.Context, tx pgx.Tx, res Resolution) error {
			return s.docs.SetStatus(ctx, tx, res.CompanyID, res.DocumentID, res.DocumentType, client.DocStatusRejected)
		},
		returned: func(ctx context.Context, tx pgx.Tx, res Resolution) error {
			// Sent back for revision, distinguishable from a hard reject.
			return s.docs.SetStatus(ctx, tx, res.CompanyID, res.DocumentID, res.DocumentType, client.DocStatusReversed)
		},
	}
}

// Apply dispatches the outcome to the document type's registered handler.
func (s *SideEffectService) Apply(ctx context.Context, tx pgx.Tx, res Resolution, outcome string) error {
	handlers, ok := s.registry[res.DocumentType]
	if !ok {
		return apperr.InvalidInput("document_type", "unsupported document type "+string(res.DocumentType))
	}

	switch outcome {
	case repository.StatusApproved:
		return handlers.approved(ctx, tx, res)
	case repository.StatusRejected:
		return handlers.rejected(ctx, tx, res)
	case repository.StatusReturned:
		return handlers.returned(ctx, tx, res)
	}
	return apperr.InvalidInput("outcome", "unsupported outcome "+outcome)
}

// statusOnly approves a document with no inventory impact.
func (s *SideEffectService) statusOnly(ctx context.Context, tx pgx.Tx, res Resolution) error {
	return s.docs.SetStatus(ctx, tx, res.CompanyID, res.DocumentID, res.DocumentType, client.DocStatusApproved)
}

// statusAndStock approves a stock-affecting document and applies its detail
// lines to the stock-balance ledger. The source-status guard makes a repeat
// invocation a no-op so stock can never be double-counted.
func (s *SideEffectService) statusAndStock(ctx context.Context, tx pgx.Tx, res Resolution) error {
	status, err := s.docs.GetStatus(ctx, tx, res.CompanyID, res.DocumentID, res.DocumentType)
	if err != nil {
		return err
	}
	if status == client.DocStatusApproved {
		s.log.Warn().
			Str("document_id", res.DocumentID).
			Str("document_type", string(res.DocumentType)).
			Msg("document already approved; skipping stock application")
		return nil
	}

	if err := s.docs.SetStatus(ctx, tx, res.CompanyID, res.DocumentID, res.DocumentType, client.DocStatusApproved); err != nil {
		return err
	}

	lines, err := s.docs.GetStockLines(ctx, tx, res.CompanyID, res.DocumentID, res.DocumentType)
	if err != nil {
		return err
	}
	for _, line := range lines {
		// Quantities are already signed per line: receipts and sales returns
		// carry positive quantities, adjustments carry the signed delta.
		if err := s.stock.ApplyDelta(ctx, tx, res.CompanyID, line.BranchID, line.WarehouseID, line.ItemID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}
