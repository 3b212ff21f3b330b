// Package extraction is the AI collaborator boundary: the core only
// consumes the extracted-field payload it returns and decides validity
// in the classification gate.
package extraction

import (
	"context"

	"github.com/shopspring/decimal"
)

type TaxBreakdown struct {
	TaxType string          `json:"tax_type"`
	Amount  decimal.Decimal `json:"amount"`
}

// ReceiptData contains the fields extracted from a receipt image.
type ReceiptData struct {
	VendorName      string              `json:"vendor_name"`
	PurchaseDate    string              `json:"purchase_date"` // ISO 8601
	County          string              `json:"county"`
	SubtotalAmount  decimal.NullDecimal `json:"subtotal_amount"`
	TaxAmount       decimal.NullDecimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ExpenseCategory string              `json:"expense_category"`
	TaxBreakdowns   []TaxBreakdown      `json:"tax_breakdowns"`
}

// Extractor analyzes a receipt image and returns structured data.
type Extractor interface {
	ExtractReceiptData(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	Close() error
}
