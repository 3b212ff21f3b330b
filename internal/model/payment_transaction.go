package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentTransaction is an externally reported payment record imported
// during reconciliation. ReceiptID is set at most once over the row's
// lifetime; the unique index enforces that at most one transaction can
// reference a given receipt.
type PaymentTransaction struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	TransactionNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	OrganizationID  string          `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	BatchNo         string          `gorm:"type:varchar(64);index" json:"batch_no"`
	TransactionDate time.Time       `gorm:"type:date;not null" json:"transaction_date"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	ReferenceID     string          `gorm:"type:varchar(128);index" json:"reference_id"`
	ReceiptID       *string         `gorm:"type:varchar(36);uniqueIndex" json:"receipt_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transaction"
}
