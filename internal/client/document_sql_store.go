package client

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
)

// docTable describes where one module keeps its documents. Table and column
// names are fixed at compile time; only values are parameterized.
type docTable struct {
	table  string
	refCol string      // human-readable document number column
	detail *detailSpec // nil for types without stock detail lines
}

type detailSpec struct {
	table  string
	fkCol  string
	qtyCol string
}

var docTables = map[doctype.Type]docTable{
	doctype.PurchaseOrder: {table: "purchase_orders", refCol: "order_no"},
	doctype.GoodsReceipt: {
		table: "goods_receipts", refCol: "receipt_no",
		detail: &detailSpec{table: "goods_receipt_items", fkCol: "receipt_id", qtyCol: "quantity"},
	},
	doctype.StockAdjustment: {
		table: "stock_adjustments", refCol: "adjustment_no",
		detail: &detailSpec{table: "stock_adjustment_items", fkCol: "adjustment_id", qtyCol: "quantity"},
	},
	doctype.Voucher:     {table: "vouchers", refCol: "voucher_no"},
	doctype.Requisition: {table: "requisitions", refCol: "requisition_no"},
	doctype.SalesOrder:  {table: "sales_orders", refCol: "order_no"},
	doctype.SalesReturn: {
		table: "sales_returns", refCol: "return_no",
		detail: &detailSpec{table: "sales_return_items", fkCol: "return_id", qtyCol: "quantity"},
	},
}

// DocumentSQLStore implements DocumentStore against the shared ERP schema.
// The ERP is a single database, so "calling" a document module is a direct
// table access here; a split deployment would put a service client behind
// the same interface.
type DocumentSQLStore struct {
	db *database.DB
}

// NewDocumentSQLStore creates a DocumentSQLStore.
func NewDocumentSQLStore(db *database.DB) *DocumentSQLStore {
	return &DocumentSQLStore{db: db}
}

func tableFor(t doctype.Type) (docTable, error) {
	dt, ok := docTables[t]
	if !ok {
		return docTable{}, apperr.InvalidInput("document_type", "unsupported document type "+string(t))
	}
	return dt, nil
}

// GetStatus reads the document's status inside the caller's transaction.
func (s *DocumentSQLStore) GetStatus(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) (string, error) {
	dt, err := tableFor(t)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1 AND company_id = $2`, dt.table)
	var status string
	err = tx.QueryRow(ctx, query, documentID, companyID).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", apperr.NotFound(string(t), documentID)
	}
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to read document status")
	}
	return status, nil
}

// SetStatus updates the document's status inside the caller's transaction.
func (s *DocumentSQLStore) SetStatus(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type, status string) error {
	dt, err := tableFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`, dt.table)

	var returnedID string
	err = tx.QueryRow(ctx, query, documentID, companyID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound(string(t), documentID)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to update document status")
	}
	return nil
}

// GetStockLines reads the detail lines of a stock-affecting document.
func (s *DocumentSQLStore) GetStockLines(ctx context.Context, tx pgx.Tx, companyID, documentID string, t doctype.Type) ([]StockLine, error) {
	dt, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	if dt.detail == nil {
		return nil, apperr.Newf(apperr.CodeBadRequest, "document type %s has no stock detail lines", t)
	}

	query := fmt.Sprintf(`
		SELECT branch_id, warehouse_id, item_id, %s
		FROM %s
		WHERE %s = $1 AND company_id = $2
		ORDER BY id ASC
	`, dt.detail.qtyCol, dt.detail.table, dt.detail.fkCol)

	rows, err := tx.Query(ctx, query, documentID, companyID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to read document detail lines")
	}
	defer rows.Close()

	var lines []StockLine
	for rows.Next() {
		var l StockLine
		if err := rows.Scan(&l.BranchID, &l.WarehouseID, &l.ItemID, &l.Quantity); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan document detail line")
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// GetDocumentRef resolves the module's document number for display.
func (s *DocumentSQLStore) GetDocumentRef(ctx context.Context, companyID, documentID string, t doctype.Type) (string, error) {
	dt, err := tableFor(t)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND company_id = $2`, dt.refCol, dt.table)
	var ref string
	err = s.db.QueryRow(ctx, query, documentID, companyID).Scan(&ref)
	if err == pgx.ErrNoRows {
		return "", apperr.NotFound(string(t), documentID)
	}
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to resolve document reference")
	}
	return ref, nil
}
