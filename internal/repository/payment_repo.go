package repository

import (
	"context"
	"errors"
	"fmt"

	"goodstewards/internal/model"
	"goodstewards/pkg/apperr"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = fmt.Errorf("payment transaction %w", apperr.ErrNotFound)
	// ErrAlreadyMatched means the transaction's receipt link was taken
	// between read and commit. receipt_id is write-once.
	ErrAlreadyMatched = fmt.Errorf("payment transaction already matched: %w", apperr.ErrConflict)
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, transaction *model.PaymentTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(transaction).Error
}

func (r *PaymentRepository) GetScoped(ctx context.Context, organizationID, id string) (*model.PaymentTransaction, error) {
	var transaction model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &transaction, nil
}

// LinkReceipt attaches a receipt to an unmatched transaction. The
// receipt_id IS NULL guard makes the link a one-shot compare-and-set.
func (r *PaymentRepository) LinkReceipt(ctx context.Context, tx *gorm.DB, id, receiptID string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND receipt_id IS NULL", id).
		Update("receipt_id", receiptID)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAlreadyMatched
	}

	return nil
}

func (r *PaymentRepository) ListUnmatched(ctx context.Context, organizationID string) ([]*model.PaymentTransaction, error) {
	var transactions []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND receipt_id IS NULL", organizationID).
		Order("transaction_date ASC, created_at ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *PaymentRepository) GetByReceiptID(ctx context.Context, receiptID string) (*model.PaymentTransaction, error) {
	var transaction model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("receipt_id = ?", receiptID).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}
