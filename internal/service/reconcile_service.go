package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"goodstewards/internal/config"
	"goodstewards/internal/infrastructure/lock"
	"goodstewards/internal/model"
	"goodstewards/internal/repository"
	"goodstewards/pkg/apperr"
	"goodstewards/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconcileService matches externally reported payment records against
// approved receipts. Every match is a compare-and-set pair: the
// transaction link succeeds only while receipt_id is unset, the paid
// transition only while the receipt is still approved. A lost race
// downgrades the record to unmatched instead of corrupting state.
type ReconcileService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	receiptRepo *repository.ReceiptRepository
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
}

func NewReconcileService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ReconcileService {
	return &ReconcileService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		receiptRepo: repository.NewReceiptRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// LedgerRow is one externally supplied payment record, unparsed.
type LedgerRow struct {
	TransactionDate string `json:"transaction_date"`
	Amount          string `json:"amount"`
	ReferenceID     string `json:"reference_id"`
}

type BatchResult struct {
	BatchNo        string `json:"batch_no"`
	ProcessedCount int    `json:"processed_count"`
	MatchedCount   int    `json:"matched_count"`
	UnmatchedCount int    `json:"unmatched_count"`
}

var errNoCandidate = errors.New("no matchable receipt")

// ImportBatch reconciles the rows in input order, one independent
// transaction per row. Bad rows are counted and skipped, never
// aborting the batch or rolling back earlier matches.
func (s *ReconcileService) ImportBatch(ctx context.Context, actor model.Actor, rows []LedgerRow) (*BatchResult, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ledger is empty: %w", apperr.ErrValidation)
	}

	result := &BatchResult{BatchNo: idgen.GenerateBatchNo()}

	// Coarse guard: one batch at a time per organization. Row-level
	// compare-and-set still protects against a racing manual match.
	if s.redisClient != nil {
		batchLock := lock.NewReconcileLock(s.redisClient, actor.OrganizationID, result.BatchNo)
		if err := batchLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("another reconciliation is running: %w", err)
		}
		defer batchLock.Unlock(ctx)
	}

	for _, row := range rows {
		result.ProcessedCount++

		transactionDate, dateErr := time.Parse("2006-01-02", row.TransactionDate)
		amount, amountErr := decimal.NewFromString(row.Amount)
		if dateErr != nil || amountErr != nil {
			result.UnmatchedCount++
			continue
		}

		if s.matchRow(ctx, actor.OrganizationID, result.BatchNo, transactionDate, amount, row.ReferenceID) {
			result.MatchedCount++
			continue
		}

		if err := s.createUnmatched(ctx, actor.OrganizationID, result.BatchNo, transactionDate, amount, row.ReferenceID); err != nil {
			log.Printf("[Reconcile] failed to record unmatched row: batch=%s, ref=%s, err=%v",
				result.BatchNo, row.ReferenceID, err)
		}
		result.UnmatchedCount++
	}

	log.Printf("[Reconcile] batch done: batch=%s, processed=%d, matched=%d, unmatched=%d",
		result.BatchNo, result.ProcessedCount, result.MatchedCount, result.UnmatchedCount)

	return result, nil
}

// matchRow attempts the atomic link + markPaid for one record and
// reports whether it committed.
func (s *ReconcileService) matchRow(ctx context.Context, organizationID, batchNo string, transactionDate time.Time, amount decimal.Decimal, referenceID string) bool {
	if referenceID == "" {
		return false
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		candidates, err := s.receiptRepo.FindApprovedUnlinked(ctx, tx, organizationID, referenceID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return errNoCandidate
		}
		// Earliest submission wins on an ambiguous reference; the rest
		// stay matchable for later records.
		receipt := candidates[0]

		transaction := &model.PaymentTransaction{
			ID:              uuid.NewString(),
			TransactionNo:   idgen.GenerateTransactionNo(),
			OrganizationID:  organizationID,
			BatchNo:         batchNo,
			TransactionDate: transactionDate,
			Amount:          amount,
			ReferenceID:     referenceID,
			ReceiptID:       &receipt.ID,
		}
		if err := s.paymentRepo.Create(ctx, tx, transaction); err != nil {
			return err
		}

		if err := s.receiptRepo.UpdateStatus(ctx, tx, receipt.ID,
			model.ReceiptStatusApproved, model.ReceiptStatusPaid, nil); err != nil {
			return err
		}

		return s.enqueuePaidEvent(ctx, tx, receipt.ID, transaction)
	})

	if err == nil {
		return true
	}
	if !errors.Is(err, errNoCandidate) && !errors.Is(err, repository.ErrStatusConflict) {
		log.Printf("[Reconcile] match transaction failed: ref=%s, err=%v", referenceID, err)
	}
	return false
}

func (s *ReconcileService) createUnmatched(ctx context.Context, organizationID, batchNo string, transactionDate time.Time, amount decimal.Decimal, referenceID string) error {
	return s.paymentRepo.Create(ctx, nil, &model.PaymentTransaction{
		ID:              uuid.NewString(),
		TransactionNo:   idgen.GenerateTransactionNo(),
		OrganizationID:  organizationID,
		BatchNo:         batchNo,
		TransactionDate: transactionDate,
		Amount:          amount,
		ReferenceID:     referenceID,
	})
}

type MatchResult struct {
	TransactionID string `json:"transaction_id"`
	ReceiptID     string `json:"receipt_id"`
}

// MatchManual links one unmatched transaction to one approved receipt,
// atomically with the paid transition. Any precondition failure leaves
// both rows untouched.
func (s *ReconcileService) MatchManual(ctx context.Context, actor model.Actor, transactionID, receiptID string) (*MatchResult, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}

	transaction, err := s.paymentRepo.GetScoped(ctx, actor.OrganizationID, transactionID)
	if err != nil {
		return nil, err
	}
	if transaction.ReceiptID != nil {
		return nil, repository.ErrAlreadyMatched
	}

	receipt, err := s.receiptRepo.GetScoped(ctx, actor.OrganizationID, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.Status != model.ReceiptStatusApproved {
		return nil, fmt.Errorf("receipt is not approved: %w", apperr.ErrConflict)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.LinkReceipt(ctx, tx, transaction.ID, receipt.ID); err != nil {
			return err
		}
		if err := s.receiptRepo.UpdateStatus(ctx, tx, receipt.ID,
			model.ReceiptStatusApproved, model.ReceiptStatusPaid, nil); err != nil {
			return err
		}
		return s.enqueuePaidEvent(ctx, tx, receipt.ID, transaction)
	})
	if err != nil {
		return nil, err
	}

	return &MatchResult{TransactionID: transaction.ID, ReceiptID: receipt.ID}, nil
}

func (s *ReconcileService) ListUnmatched(ctx context.Context, actor model.Actor) ([]*model.PaymentTransaction, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}
	return s.paymentRepo.ListUnmatched(ctx, actor.OrganizationID)
}

// ListUnpaidReceipts returns approved receipts still waiting for a
// payment record.
func (s *ReconcileService) ListUnpaidReceipts(ctx context.Context, actor model.Actor) ([]*model.Receipt, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}
	return s.receiptRepo.ListByStatus(ctx, actor.OrganizationID, []string{model.ReceiptStatusApproved})
}

func (s *ReconcileService) enqueuePaidEvent(ctx context.Context, tx *gorm.DB, receiptID string, transaction *model.PaymentTransaction) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"event":            model.ReceiptEventPaid,
		"receipt_id":       receiptID,
		"transaction_no":   transaction.TransactionNo,
		"reference_id":     transaction.ReferenceID,
		"amount":           transaction.Amount,
		"transaction_date": transaction.TransactionDate.Format("2006-01-02"),
	})

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: receiptID,
		Topic:      s.cfg.Kafka.Topic.ReceiptEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}
