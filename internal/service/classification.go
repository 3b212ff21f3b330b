package service

import (
	"context"
	"errors"
	"time"

	"goodstewards/internal/infrastructure/extraction"
	"goodstewards/internal/model"
	"goodstewards/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CategoryPolicy answers whether an expense category is excluded from
// refund eligibility. The list is external, mutable configuration, so
// the gate only ever sees this interface.
type CategoryPolicy interface {
	IsNonRefundable(category string) bool
}

// StaticCategoryPolicy matches categories against a fixed list by
// exact string comparison.
type StaticCategoryPolicy struct {
	set map[string]struct{}
}

func NewStaticCategoryPolicy(categories []string) *StaticCategoryPolicy {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return &StaticCategoryPolicy{set: set}
}

func (p *StaticCategoryPolicy) IsNonRefundable(category string) bool {
	_, ok := p.set[category]
	return ok
}

const (
	rejectReasonInvalidExtraction = "extraction invalid"
	rejectReasonNonRefundable     = "non-refundable category"
	rejectReasonStorageFailed     = "image storage failed"
)

// extractionUsable applies the first gate rule: the collaborator must
// report a valid result, the vendor must be present, the total
// positive, and no breakdown amount negative.
func extractionUsable(data *extraction.ReceiptData, valid bool) bool {
	if !valid || data == nil {
		return false
	}
	if data.VendorName == "" {
		return false
	}
	if !data.TotalAmount.IsPositive() {
		return false
	}
	for _, b := range data.TaxBreakdowns {
		if b.Amount.IsNegative() {
			return false
		}
	}
	return true
}

// Classify runs the classification gate on a processing receipt and
// moves it to pending or rejected. Calling it again on an already
// classified receipt is a no-op that returns the stored outcome.
func (s *ReceiptService) Classify(ctx context.Context, receiptID string, data *extraction.ReceiptData, valid bool) (*model.Receipt, error) {
	receipt, err := s.receiptRepo.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.Status != model.ReceiptStatusProcessing {
		return receipt, nil
	}

	if !extractionUsable(data, valid) {
		return s.rejectProcessing(ctx, receipt, rejectReasonInvalidExtraction)
	}

	if s.policy.IsNonRefundable(data.ExpenseCategory) {
		return s.rejectProcessing(ctx, receipt, rejectReasonNonRefundable)
	}

	// Field population and breakdown rows commit with the pending
	// transition in one transaction, so a pending receipt can never be
	// missing its breakdowns.
	updates := map[string]interface{}{
		"vendor_name":      data.VendorName,
		"county":           nullableString(data.County),
		"subtotal_amount":  data.SubtotalAmount,
		"tax_amount":       data.TaxAmount,
		"total_amount":     decimal.NullDecimal{Decimal: data.TotalAmount, Valid: true},
		"expense_category": nullableString(data.ExpenseCategory),
	}
	if purchaseDate, ok := parsePurchaseDate(data.PurchaseDate); ok {
		updates["purchase_date"] = purchaseDate
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.receiptRepo.UpdateStatus(ctx, tx, receipt.ID,
			model.ReceiptStatusProcessing, model.ReceiptStatusPending, updates); err != nil {
			return err
		}

		breakdowns := make([]*model.ReceiptTaxBreakdown, 0, len(data.TaxBreakdowns))
		for _, b := range data.TaxBreakdowns {
			breakdowns = append(breakdowns, &model.ReceiptTaxBreakdown{
				ID:        uuid.NewString(),
				ReceiptID: receipt.ID,
				TaxType:   b.TaxType,
				Amount:    b.Amount,
			})
		}
		return s.receiptRepo.CreateBreakdowns(ctx, tx, breakdowns)
	})

	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Lost the race to a concurrent classify; its outcome stands.
			return s.receiptRepo.GetByID(ctx, receiptID)
		}
		return nil, err
	}

	return s.receiptRepo.GetByID(ctx, receiptID)
}

func (s *ReceiptService) rejectProcessing(ctx context.Context, receipt *model.Receipt, reason string) (*model.Receipt, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.receiptRepo.UpdateStatus(ctx, tx, receipt.ID,
			model.ReceiptStatusProcessing, model.ReceiptStatusRejected,
			map[string]interface{}{"rejection_reason": reason}); err != nil {
			return err
		}
		return s.enqueueReceiptEvent(ctx, tx, model.ReceiptEventRejected, receipt.ID, map[string]interface{}{
			"receipt_id": receipt.ID,
			"reason":     reason,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return s.receiptRepo.GetByID(ctx, receipt.ID)
		}
		return nil, err
	}
	return s.receiptRepo.GetByID(ctx, receipt.ID)
}

func parsePurchaseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
