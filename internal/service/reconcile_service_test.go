package service

import (
	"testing"
	"time"

	"goodstewards/internal/model"
	"goodstewards/internal/repository"
	"goodstewards/pkg/apperr"
	"goodstewards/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestImportBatchMatchesAndRecordsUnmatched(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	member := seedUser(t, db, org, model.RoleMember)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	zelle := seedReceipt(t, db, org, member, receiptOpts{
		status:           model.ReceiptStatusApproved,
		paymentReference: "ZELLE12345",
		totalAmount:      "132.00",
	})
	check := seedReceipt(t, db, org, member, receiptOpts{
		status:           model.ReceiptStatusApproved,
		paymentReference: "CHECK789",
		totalAmount:      "220.00",
	})

	result, err := svc.ImportBatch(testContext(), actorFor(treasurer), []LedgerRow{
		{TransactionDate: "2023-01-21", Amount: "132.00", ReferenceID: "ZELLE12345"},
		{TransactionDate: "2023-01-26", Amount: "220.00", ReferenceID: "CHECK789"},
		{TransactionDate: "2023-01-28", Amount: "75.50", ReferenceID: "ZELLE67890"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ProcessedCount)
	assert.Equal(t, 2, result.MatchedCount)
	assert.Equal(t, 1, result.UnmatchedCount)
	assert.NotEmpty(t, result.BatchNo)

	assert.Equal(t, model.ReceiptStatusPaid, reloadReceipt(t, db, zelle.ID).Status)
	assert.Equal(t, model.ReceiptStatusPaid, reloadReceipt(t, db, check.ID).Status)

	unmatched, err := svc.ListUnmatched(testContext(), actorFor(treasurer))
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "ZELLE67890", unmatched[0].ReferenceID)
	assert.Nil(t, unmatched[0].ReceiptID)
	assert.Equal(t, result.BatchNo, unmatched[0].BatchNo)

	paid, err := repository.NewPaymentRepository(db).GetByReceiptID(testContext(), zelle.ID)
	require.NoError(t, err)
	assert.Equal(t, "ZELLE12345", paid.ReferenceID)
	assert.True(t, paid.Amount.Equal(decimal.RequireFromString("132.00")))
}

func TestImportBatchSkipsUnparseableRows(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	result, err := svc.ImportBatch(testContext(), actorFor(treasurer), []LedgerRow{
		{TransactionDate: "not-a-date", Amount: "10.00", ReferenceID: "REF1"},
		{TransactionDate: "2023-02-01", Amount: "ten dollars", ReferenceID: "REF2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 0, result.MatchedCount)
	assert.Equal(t, 2, result.UnmatchedCount)

	// Rows that never parsed leave no transaction behind.
	var count int64
	require.NoError(t, db.Model(&model.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestImportBatchPrefersEarliestSubmission(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	member := seedUser(t, db, org, model.RoleMember)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	later := seedReceipt(t, db, org, member, receiptOpts{
		status:           model.ReceiptStatusApproved,
		paymentReference: "ZELLE555",
		submittedAt:      time.Date(2023, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	earlier := seedReceipt(t, db, org, member, receiptOpts{
		status:           model.ReceiptStatusApproved,
		paymentReference: "ZELLE555",
		submittedAt:      time.Date(2023, 3, 9, 12, 0, 0, 0, time.UTC),
	})

	result, err := svc.ImportBatch(testContext(), actorFor(treasurer), []LedgerRow{
		{TransactionDate: "2023-03-11", Amount: "50.00", ReferenceID: "ZELLE555"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchedCount)

	assert.Equal(t, model.ReceiptStatusPaid, reloadReceipt(t, db, earlier.ID).Status)
	assert.Equal(t, model.ReceiptStatusApproved, reloadReceipt(t, db, later.ID).Status)
}

func TestImportBatchGuards(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	member := seedUser(t, db, org, model.RoleMember)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	_, err := svc.ImportBatch(testContext(), actorFor(member), []LedgerRow{
		{TransactionDate: "2023-01-21", Amount: "132.00", ReferenceID: "ZELLE12345"},
	})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.ImportBatch(testContext(), actorFor(treasurer), nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMatchManualLinksAndMarksPaid(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	member := seedUser(t, db, org, model.RoleMember)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	receipt := seedReceipt(t, db, org, member, receiptOpts{
		status:           model.ReceiptStatusApproved,
		paymentReference: "CHECK100",
	})
	transaction := seedUnmatchedTransaction(t, db, org, "MYSTERY1")

	matched, err := svc.MatchManual(testContext(), actorFor(treasurer), transaction.ID, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.ID, matched.TransactionID)
	assert.Equal(t, receipt.ID, matched.ReceiptID)

	assert.Equal(t, model.ReceiptStatusPaid, reloadReceipt(t, db, receipt.ID).Status)

	linked, err := repository.NewPaymentRepository(db).GetScoped(testContext(), org.ID, transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.ReceiptID)
	assert.Equal(t, receipt.ID, *linked.ReceiptID)
}

func TestMatchManualPreconditions(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	otherOrg := seedOrg(t, db)
	member := seedUser(t, db, org, model.RoleMember)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	t.Run("already matched transaction", func(t *testing.T) {
		receipt := seedReceipt(t, db, org, member, receiptOpts{
			status:           model.ReceiptStatusApproved,
			paymentReference: "CHECK200",
		})
		other := seedReceipt(t, db, org, member, receiptOpts{
			status:           model.ReceiptStatusApproved,
			paymentReference: "CHECK201",
		})
		transaction := seedUnmatchedTransaction(t, db, org, "REFA")

		_, err := svc.MatchManual(testContext(), actorFor(treasurer), transaction.ID, receipt.ID)
		require.NoError(t, err)

		_, err = svc.MatchManual(testContext(), actorFor(treasurer), transaction.ID, other.ID)
		assert.ErrorIs(t, err, apperr.ErrConflict)
		assert.Equal(t, model.ReceiptStatusApproved, reloadReceipt(t, db, other.ID).Status)
	})

	t.Run("receipt not approved", func(t *testing.T) {
		receipt := seedReceipt(t, db, org, member, receiptOpts{status: model.ReceiptStatusPending})
		transaction := seedUnmatchedTransaction(t, db, org, "REFB")

		_, err := svc.MatchManual(testContext(), actorFor(treasurer), transaction.ID, receipt.ID)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		unlinked, getErr := repository.NewPaymentRepository(db).GetScoped(testContext(), org.ID, transaction.ID)
		require.NoError(t, getErr)
		assert.Nil(t, unlinked.ReceiptID)
	})

	t.Run("transaction from another organization", func(t *testing.T) {
		receipt := seedReceipt(t, db, org, member, receiptOpts{
			status:           model.ReceiptStatusApproved,
			paymentReference: "CHECK300",
		})
		transaction := seedUnmatchedTransaction(t, db, otherOrg, "REFC")

		_, err := svc.MatchManual(testContext(), actorFor(treasurer), transaction.ID, receipt.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("member cannot match", func(t *testing.T) {
		_, err := svc.MatchManual(testContext(), actorFor(member), "any", "any")
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestListUnpaidReceipts(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db)
	member := seedUser(t, db, org, model.RoleMember)
	treasurer := seedUser(t, db, org, model.RoleTreasurer)
	svc := NewReconcileService(db, nil, testConfig())

	approved := seedReceipt(t, db, org, member, receiptOpts{
		status:           model.ReceiptStatusApproved,
		paymentReference: "CHECK400",
	})
	seedReceipt(t, db, org, member, receiptOpts{status: model.ReceiptStatusPending})

	unpaid, err := svc.ListUnpaidReceipts(testContext(), actorFor(treasurer))
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, approved.ID, unpaid[0].ID)
}

func seedUnmatchedTransaction(t *testing.T, db *gorm.DB, org *model.Organization, referenceID string) *model.PaymentTransaction {
	t.Helper()
	transaction := &model.PaymentTransaction{
		ID:              uuid.NewString(),
		TransactionNo:   idgen.GenerateTransactionNo(),
		OrganizationID:  org.ID,
		BatchNo:         "RBTEST",
		TransactionDate: time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString("42.00"),
		ReferenceID:     referenceID,
	}
	require.NoError(t, db.Create(transaction).Error)
	return transaction
}
