package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
)

// StockRepository mutates the stock-balance ledger, one row per
// (company, branch, warehouse, item).
type StockRepository struct {
	db *database.DB
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

// ApplyDelta adds delta to a balance row, inserting the row with delta as
// its initial quantity when none exists. Runs inside the action transaction.
func (r *StockRepository) ApplyDelta(ctx context.Context, tx pgx.Tx, companyID, branchID, warehouseID, itemID string, delta float64) error {
	query := `
		INSERT INTO stock_balances
		    (company_id, branch_id, warehouse_id, item_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, branch_id, warehouse_id, item_id)
		DO UPDATE SET quantity   = stock_balances.quantity + EXCLUDED.quantity,
		              updated_at = NOW()
	`

	if _, err := tx.Exec(ctx, query, companyID, branchID, warehouseID, itemID, delta); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to apply stock delta")
	}
	return nil
}

// GetQuantity reads one balance, returning 0 when no row exists.
func (r *StockRepository) GetQuantity(ctx context.Context, companyID, branchID, warehouseID, itemID string) (float64, error) {
	query := `
		SELECT quantity
		FROM stock_balances
		WHERE company_id = $1 AND branch_id = $2 AND warehouse_id = $3 AND item_id = $4
	`

	var qty float64
	err := r.db.QueryRow(ctx, query, companyID, branchID, warehouseID, itemID).Scan(&qty)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "failed to read stock balance")
	}
	return qty, nil
}
