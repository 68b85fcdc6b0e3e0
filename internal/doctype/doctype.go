// Package doctype defines the closed set of document types governed by the
// approval engine. Free-text spellings coming from document modules
// ("Purchase Order", "PO", "PURCHASE_ORDER") are normalized exactly once at
// the system boundary; everything past the boundary works with Type values.
package doctype

import (
	"strings"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
)

// Type is a canonical document type code.
type Type string

const (
	PurchaseOrder   Type = "PURCHASE_ORDER"
	GoodsReceipt    Type = "GOODS_RECEIPT"
	StockAdjustment Type = "STOCK_ADJUSTMENT"
	Voucher         Type = "VOUCHER"
	Requisition     Type = "REQUISITION"
	SalesOrder      Type = "SALES_ORDER"
	SalesReturn     Type = "SALES_RETURN"
)

// All lists every governed type in a stable order.
var All = []Type{
	PurchaseOrder,
	GoodsReceipt,
	StockAdjustment,
	Voucher,
	Requisition,
	SalesOrder,
	SalesReturn,
}

var labels = map[Type]string{
	PurchaseOrder:   "Purchase Order",
	GoodsReceipt:    "Goods Receipt",
	StockAdjustment: "Stock Adjustment",
	Voucher:         "Voucher",
	Requisition:     "Requisition",
	SalesOrder:      "Sales Order",
	SalesReturn:     "Sales Return",
}

// synonyms maps folded spellings to the canonical type. Keys are upper-cased
// with spaces, hyphens and underscores removed.
var synonyms = map[string]Type{}

func init() {
	add := func(t Type, spellings ...string) {
		for _, s := range spellings {
			synonyms[fold(s)] = t
		}
	}
	add(PurchaseOrder, string(PurchaseOrder), "Purchase Order", "PO")
	add(GoodsReceipt, string(GoodsReceipt), "Goods Receipt", "GR", "GRN")
	add(StockAdjustment, string(StockAdjustment), "Stock Adjustment", "ADJ")
	add(Voucher, string(Voucher), "Journal Voucher", "JV")
	add(Requisition, string(Requisition), "Purchase Requisition", "PR")
	add(SalesOrder, string(SalesOrder), "Sales Order", "SO")
	add(SalesReturn, string(SalesReturn), "Sales Return", "SR")
}

func fold(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// Normalize resolves any known spelling of a document type to its canonical
// code. Unknown spellings are a validation error.
func Normalize(s string) (Type, error) {
	if t, ok := synonyms[fold(s)]; ok {
		return t, nil
	}
	return "", apperr.InvalidInput("document_type", "unsupported document type "+strings.TrimSpace(s))
}

// Label returns the human-readable name of the type.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// Valid reports whether t is a member of the closed set.
func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}
