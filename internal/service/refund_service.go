package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"goodstewards/internal/model"
	"goodstewards/internal/repository"
	"goodstewards/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundService computes refund-package summaries used to populate
// jurisdictional refund forms (E-585, and E-536R when purchases span
// more than one county).
type RefundService struct {
	db          *gorm.DB
	receiptRepo *repository.ReceiptRepository
}

func NewRefundService(db *gorm.DB) *RefundService {
	return &RefundService{
		db:          db,
		receiptRepo: repository.NewReceiptRepository(db),
	}
}

// RefundPackageSummary is computed from a snapshot and never persisted.
type RefundPackageSummary struct {
	TotalReceipts      int             `json:"total_receipts"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TotalTaxAmount     decimal.Decimal `json:"total_tax_amount"`
	Counties           []string        `json:"counties"`
	NeedsSecondaryForm bool            `json:"needs_secondary_form"`
}

type RefundPackage struct {
	PrimaryFormURL   string               `json:"e585_form_url"`
	SecondaryFormURL string               `json:"e536r_form_url,omitempty"`
	Summary          RefundPackageSummary `json:"summary"`
}

// GeneratePackage aggregates the organization's approved-or-paid
// receipts with a purchase date in [startDate, endDate]. An empty
// selection is not-found; the computation itself issues no writes.
func (s *RefundService) GeneratePackage(ctx context.Context, actor model.Actor, startDate, endDate time.Time) (*RefundPackage, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date precedes start date: %w", apperr.ErrValidation)
	}

	receipts, err := s.receiptRepo.ListInPurchaseRange(ctx, actor.OrganizationID,
		[]string{model.ReceiptStatusApproved, model.ReceiptStatusPaid}, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, fmt.Errorf("no refundable receipts in period: %w", apperr.ErrNotFound)
	}

	summary := Summarize(receipts)

	pkg := &RefundPackage{
		PrimaryFormURL: fmt.Sprintf("/api/v1/forms/e585/%s/%s",
			startDate.Format("2006-01-02"), endDate.Format("2006-01-02")),
		Summary: summary,
	}
	if summary.NeedsSecondaryForm {
		pkg.SecondaryFormURL = fmt.Sprintf("/api/v1/forms/e536r/%s/%s",
			startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	}

	return pkg, nil
}

// Summarize folds a receipt snapshot into the package totals. Decimal
// addition is exact, so the sums are independent of input order.
func Summarize(receipts []*model.Receipt) RefundPackageSummary {
	totalAmount := decimal.Zero
	totalTax := decimal.Zero
	countySet := make(map[string]struct{})

	for _, r := range receipts {
		if r.TotalAmount.Valid {
			totalAmount = totalAmount.Add(r.TotalAmount.Decimal)
		}
		if r.TaxAmount.Valid {
			totalTax = totalTax.Add(r.TaxAmount.Decimal)
		}
		if r.County != nil && *r.County != "" {
			countySet[*r.County] = struct{}{}
		}
	}

	counties := make([]string, 0, len(countySet))
	for county := range countySet {
		counties = append(counties, county)
	}
	sort.Strings(counties)

	return RefundPackageSummary{
		TotalReceipts:      len(receipts),
		TotalAmount:        totalAmount,
		TotalTaxAmount:     totalTax,
		Counties:           counties,
		NeedsSecondaryForm: len(counties) > 1,
	}
}
