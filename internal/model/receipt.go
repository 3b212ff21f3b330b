package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReceiptStatusProcessing = "processing"
	ReceiptStatusPending    = "pending"
	ReceiptStatusApproved   = "approved"
	ReceiptStatusRejected   = "rejected"
	ReceiptStatusPaid       = "paid"
)

// ValidStatusTransitions is the single source of truth for the receipt
// lifecycle. rejected and paid are terminal.
var ValidStatusTransitions = map[string][]string{
	ReceiptStatusProcessing: {ReceiptStatusPending, ReceiptStatusRejected},
	ReceiptStatusPending:    {ReceiptStatusApproved, ReceiptStatusRejected},
	ReceiptStatusApproved:   {ReceiptStatusPaid},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	PaymentMethodZelle = "zelle"
	PaymentMethodCheck = "check"
	PaymentMethodOther = "other"
)

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodZelle, PaymentMethodCheck, PaymentMethodOther:
		return true
	}
	return false
}

type Receipt struct {
	ID             string `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrganizationID string `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	UserID         string `gorm:"type:varchar(36);index;not null" json:"user_id"`
	ImageURL       string `gorm:"type:varchar(512);not null" json:"image_url"`

	// Extracted fields, null until classification passes.
	VendorName      *string             `gorm:"type:varchar(256)" json:"vendor_name"`
	PurchaseDate    *time.Time          `gorm:"type:date" json:"purchase_date"`
	County          *string             `gorm:"type:varchar(128)" json:"county"`
	SubtotalAmount  decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"subtotal_amount"`
	TaxAmount       decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"tax_amount"`
	TotalAmount     decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"total_amount"`
	ExpenseCategory *string             `gorm:"type:varchar(128)" json:"expense_category"`

	Status     string `gorm:"type:varchar(20);index;not null" json:"status"`
	IsDonation bool   `gorm:"not null;default:false" json:"is_donation"`

	// Payment fields, null until the receipt is approved.
	PaymentMethod    *string `gorm:"type:varchar(20)" json:"payment_method"`
	PaymentReference *string `gorm:"type:varchar(128);index" json:"payment_reference"`
	PaymentProofURL  *string `gorm:"type:varchar(512)" json:"payment_proof_url"`

	RejectionReason *string `gorm:"type:varchar(256)" json:"rejection_reason"`

	SubmittedAt time.Time  `gorm:"index;not null" json:"submitted_at"`
	ApprovedAt  *time.Time `json:"approved_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Receipt) TableName() string {
	return "receipt"
}

const (
	TaxTypeState   = "state"
	TaxTypeCounty  = "county"
	TaxTypeTransit = "transit"
	TaxTypeFood    = "food"
)

// ReceiptTaxBreakdown rows are created atomically with the pending
// transition of their parent receipt and never exist without it.
type ReceiptTaxBreakdown struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReceiptID string          `gorm:"type:varchar(36);index;not null" json:"receipt_id"`
	TaxType   string          `gorm:"type:varchar(20);not null" json:"tax_type"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
}

func (ReceiptTaxBreakdown) TableName() string {
	return "receipt_tax_breakdown"
}
