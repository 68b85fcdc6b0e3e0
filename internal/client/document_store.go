// Package client holds the engine's collaborators: the document-owning
// modules' status/detail surface and the outbound notification event stream.
package client

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/doctype"
)

// Document status tokens shared by every governed module. RETURN maps the
// source document to StatusReversed, not StatusRejected.
const (
	DocStatusDraft     = "DRAFT"
	DocStatusSubmitted = "SUBMITTED"
	DocStatusApproved  = "APPROVED"
	DocStatusRejected  = "REJECTED"
	DocStatusReversed  = "REVERSED"
)

// StockLine is one detail line of a stock-affecting document. Quantity is
// signed for stock adjustments (negative = write-off).
type StockLine struct {
	BranchID    string
	WarehouseID string
	ItemID      string
	Quantity    float64
}

// DocumentStore is the collaborator surface the side-effect dispatcher and
// query services need from document-owning modules. Mutations take the
// action transaction so document status stays atomic with the instance.
type DocumentStore interface {
	// GetStatus reads the document's current status.
	GetStatus(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (string, error)
	// SetStatus updates the document's status.
	SetStatus(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type, status string) error
	// GetStockLines reads the detail lines of a stock-affecting document.
	GetStockLines(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) ([]StockLine, error)
	// GetDocumentRef resolves the human-readable document number.
	GetDocumentRef(ctx context.Context, companyID, documentID string, t doctype.Type) (string, error)
}
