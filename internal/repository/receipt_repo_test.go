package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"goodstewards/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Organization{},
		&model.User{},
		&model.Receipt{},
		&model.ReceiptTaxBreakdown{},
		&model.PaymentTransaction{},
		&model.OutboxMessage{},
	))

	return db
}

func createReceipt(t *testing.T, db *gorm.DB, status, reference string, submittedAt time.Time) *model.Receipt {
	t.Helper()
	receipt := &model.Receipt{
		ID:             uuid.NewString(),
		OrganizationID: "org-1",
		UserID:         "user-1",
		Status:         status,
		SubmittedAt:    submittedAt,
	}
	if reference != "" {
		method := model.PaymentMethodZelle
		now := time.Now().UTC()
		receipt.PaymentReference = &reference
		receipt.PaymentMethod = &method
		receipt.ApprovedAt = &now
	}
	require.NoError(t, db.Create(receipt).Error)
	return receipt
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	db := newTestDB(t)
	repo := NewReceiptRepository(db)
	ctx := context.Background()

	receipt := createReceipt(t, db, model.ReceiptStatusPending, "", time.Now().UTC())

	err := repo.UpdateStatus(ctx, nil, receipt.ID,
		model.ReceiptStatusPending, model.ReceiptStatusApproved, nil)
	require.NoError(t, err)

	// The guard already moved; a second identical transition loses.
	err = repo.UpdateStatus(ctx, nil, receipt.ID,
		model.ReceiptStatusPending, model.ReceiptStatusApproved, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	db := newTestDB(t)
	repo := NewReceiptRepository(db)
	ctx := context.Background()

	receipt := createReceipt(t, db, model.ReceiptStatusRejected, "", time.Now().UTC())

	err := repo.UpdateStatus(ctx, nil, receipt.ID,
		model.ReceiptStatusRejected, model.ReceiptStatusApproved, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)

	// Nothing was written.
	var stored model.Receipt
	require.NoError(t, db.First(&stored, "id = ?", receipt.ID).Error)
	assert.Equal(t, model.ReceiptStatusRejected, stored.Status)
}

func TestFindApprovedUnlinkedOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewReceiptRepository(db)
	ctx := context.Background()

	later := createReceipt(t, db, model.ReceiptStatusApproved, "ZELLE1",
		time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC))
	earlier := createReceipt(t, db, model.ReceiptStatusApproved, "ZELLE1",
		time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))

	candidates, err := repo.FindApprovedUnlinked(ctx, nil, "org-1", "ZELLE1")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, earlier.ID, candidates[0].ID)
	assert.Equal(t, later.ID, candidates[1].ID)
}

func TestFindApprovedUnlinkedSkipsLinked(t *testing.T) {
	db := newTestDB(t)
	repo := NewReceiptRepository(db)
	ctx := context.Background()

	receipt := createReceipt(t, db, model.ReceiptStatusApproved, "ZELLE2", time.Now().UTC())

	require.NoError(t, db.Create(&model.PaymentTransaction{
		ID:              uuid.NewString(),
		TransactionNo:   "PT0001",
		OrganizationID:  "org-1",
		BatchNo:         "RB0001",
		TransactionDate: time.Now().UTC(),
		Amount:          decimal.RequireFromString("10.00"),
		ReferenceID:     "ZELLE2",
		ReceiptID:       &receipt.ID,
	}).Error)

	candidates, err := repo.FindApprovedUnlinked(ctx, nil, "org-1", "ZELLE2")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestLinkReceiptIsOneShot(t *testing.T) {
	db := newTestDB(t)
	payments := NewPaymentRepository(db)
	ctx := context.Background()

	first := createReceipt(t, db, model.ReceiptStatusApproved, "ZELLE3", time.Now().UTC())
	second := createReceipt(t, db, model.ReceiptStatusApproved, "ZELLE4", time.Now().UTC())

	transaction := &model.PaymentTransaction{
		ID:              uuid.NewString(),
		TransactionNo:   "PT0002",
		OrganizationID:  "org-1",
		BatchNo:         "RB0002",
		TransactionDate: time.Now().UTC(),
		Amount:          decimal.RequireFromString("25.00"),
		ReferenceID:     "ZELLE3",
	}
	require.NoError(t, payments.Create(ctx, nil, transaction))

	require.NoError(t, payments.LinkReceipt(ctx, nil, transaction.ID, first.ID))

	err := payments.LinkReceipt(ctx, nil, transaction.ID, second.ID)
	assert.ErrorIs(t, err, ErrAlreadyMatched)

	stored, err := payments.GetScoped(ctx, "org-1", transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReceiptID)
	assert.Equal(t, first.ID, *stored.ReceiptID)
}
