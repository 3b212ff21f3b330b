package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goodstewards/internal/model"
	"goodstewards/pkg/apperr"

	"gorm.io/gorm"
)

var (
	ErrReceiptNotFound = fmt.Errorf("receipt %w", apperr.ErrNotFound)
	// ErrStatusConflict means the guarded transition lost its
	// compare-and-set: the row was not in the expected status at commit
	// time. The record is left untouched.
	ErrStatusConflict = fmt.Errorf("receipt status %w", apperr.ErrConflict)
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(ctx context.Context, tx *gorm.DB, receipt *model.Receipt) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(receipt).Error
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*model.Receipt, error) {
	var receipt model.Receipt
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// GetScoped hides receipts outside the caller's organization behind
// not-found so cross-org probing leaks nothing.
func (r *ReceiptRepository) GetScoped(ctx context.Context, organizationID, id string) (*model.Receipt, error) {
	var receipt model.Receipt
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// UpdateStatus performs the guarded lifecycle transition as a single
// conditional UPDATE. extra carries the columns that change together
// with the status (payment fields on approve, extracted fields on
// classify). RowsAffected == 0 means another caller moved the row
// first; nothing was written.
func (r *ReceiptRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrStatusConflict
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Receipt{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *ReceiptRepository) CreateBreakdowns(ctx context.Context, tx *gorm.DB, breakdowns []*model.ReceiptTaxBreakdown) error {
	if len(breakdowns) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(breakdowns).Error
}

func (r *ReceiptRepository) ListBreakdowns(ctx context.Context, receiptID string) ([]*model.ReceiptTaxBreakdown, error) {
	var breakdowns []*model.ReceiptTaxBreakdown
	err := r.db.WithContext(ctx).
		Where("receipt_id = ?", receiptID).
		Find(&breakdowns).Error
	return breakdowns, err
}

type ReceiptFilter struct {
	Status     string
	UserID     string
	IsDonation *bool
}

func (r *ReceiptRepository) List(ctx context.Context, organizationID string, filter ReceiptFilter, limit, offset int) ([]*model.Receipt, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.IsDonation != nil {
		query = query.Where("is_donation = ?", *filter.IsDonation)
	}

	var receipts []*model.Receipt
	err := query.
		Order("submitted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&receipts).Error
	return receipts, err
}

// FindApprovedUnlinked returns approved receipts of the organization
// carrying the given payment reference with no transaction attached
// yet, earliest submission first. The ordering is the deterministic
// tie-break for ambiguous references.
func (r *ReceiptRepository) FindApprovedUnlinked(ctx context.Context, tx *gorm.DB, organizationID, paymentReference string) ([]*model.Receipt, error) {
	if tx == nil {
		tx = r.db
	}
	var receipts []*model.Receipt
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND status = ? AND payment_reference = ?",
			organizationID, model.ReceiptStatusApproved, paymentReference).
		Where("NOT EXISTS (SELECT 1 FROM payment_transaction WHERE payment_transaction.receipt_id = receipt.id)").
		Order("submitted_at ASC, id ASC").
		Find(&receipts).Error
	return receipts, err
}

func (r *ReceiptRepository) ListByStatus(ctx context.Context, organizationID string, statuses []string) ([]*model.Receipt, error) {
	var receipts []*model.Receipt
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status IN ?", organizationID, statuses).
		Order("submitted_at ASC").
		Find(&receipts).Error
	return receipts, err
}

// ListInPurchaseRange is the aggregation snapshot query.
func (r *ReceiptRepository) ListInPurchaseRange(ctx context.Context, organizationID string, statuses []string, startDate, endDate time.Time) ([]*model.Receipt, error) {
	var receipts []*model.Receipt
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status IN ?", organizationID, statuses).
		Where("purchase_date >= ? AND purchase_date <= ?", startDate, endDate).
		Find(&receipts).Error
	return receipts, err
}

// GetStaleProcessing returns receipts stuck in processing since before
// the cutoff, for the timeout sweeper.
func (r *ReceiptRepository) GetStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*model.Receipt, error) {
	var receipts []*model.Receipt
	err := r.db.WithContext(ctx).
		Where("status = ? AND submitted_at < ?", model.ReceiptStatusProcessing, cutoff).
		Limit(limit).
		Find(&receipts).Error
	return receipts, err
}
