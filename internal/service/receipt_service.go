package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"goodstewards/internal/config"
	"goodstewards/internal/infrastructure/extraction"
	"goodstewards/internal/infrastructure/storage"
	"goodstewards/internal/model"
	"goodstewards/internal/repository"
	"goodstewards/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptService struct {
	db          *gorm.DB
	cfg         *config.Config
	receiptRepo *repository.ReceiptRepository
	userRepo    *repository.UserRepository
	outboxRepo  *repository.OutboxRepository
	store       storage.ObjectStore
	extractor   extraction.Extractor
	policy      CategoryPolicy
}

func NewReceiptService(db *gorm.DB, cfg *config.Config, store storage.ObjectStore, extractor extraction.Extractor, policy CategoryPolicy) *ReceiptService {
	return &ReceiptService{
		db:          db,
		cfg:         cfg,
		receiptRepo: repository.NewReceiptRepository(db),
		userRepo:    repository.NewUserRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		store:       store,
		extractor:   extractor,
		policy:      policy,
	}
}

type UploadRequest struct {
	ImageData    []byte
	ContentType  string
	IsDonation   bool
	TargetUserID string
}

type UploadResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url"`
}

// Upload creates the receipt in processing, stores the image, runs
// extraction and pushes the result through the classification gate.
// Collaborator failures degrade the receipt to rejected instead of
// failing the call.
func (s *ReceiptService) Upload(ctx context.Context, actor model.Actor, req *UploadRequest) (*UploadResponse, error) {
	if len(req.ImageData) == 0 {
		return nil, fmt.Errorf("image is empty: %w", apperr.ErrValidation)
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		return nil, fmt.Errorf("file must be an image: %w", apperr.ErrValidation)
	}

	ownerID := actor.UserID
	if req.TargetUserID != "" && req.TargetUserID != actor.UserID {
		// Only treasurers may submit on behalf of another member.
		if !actor.IsTreasurer() {
			return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
		}
		member, err := s.userRepo.GetInOrganization(ctx, actor.OrganizationID, req.TargetUserID)
		if err != nil {
			return nil, err
		}
		ownerID = member.ID
	}

	// Persist the minimal row first so the caller has an id before
	// extraction completes.
	receipt := &model.Receipt{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		UserID:         ownerID,
		Status:         model.ReceiptStatusProcessing,
		IsDonation:     req.IsDonation,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := s.receiptRepo.Create(ctx, nil, receipt); err != nil {
		return nil, err
	}

	imageURL, err := s.store.SaveImage(ctx, req.ImageData, req.ContentType)
	if err != nil {
		log.Printf("[Upload] image storage failed: receipt=%s, err=%v", receipt.ID, err)
		rejected, rejectErr := s.rejectProcessing(ctx, receipt, rejectReasonStorageFailed)
		if rejectErr != nil {
			return nil, rejectErr
		}
		return &UploadResponse{ID: rejected.ID, Status: rejected.Status}, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&model.Receipt{}).
		Where("id = ?", receipt.ID).
		Update("image_url", imageURL).Error; err != nil {
		return nil, err
	}

	data, extractErr := s.extractor.ExtractReceiptData(ctx, req.ImageData, req.ContentType)
	if extractErr != nil {
		log.Printf("[Upload] extraction failed: receipt=%s, err=%v", receipt.ID, extractErr)
	}

	classified, err := s.Classify(ctx, receipt.ID, data, extractErr == nil)
	if err != nil {
		return nil, err
	}

	return &UploadResponse{
		ID:       classified.ID,
		Status:   classified.Status,
		ImageURL: imageURL,
	}, nil
}

// Approve moves a pending receipt to approved, recording how it will
// be reimbursed. The payment fields and approved_at commit together
// with the transition; a lost compare-and-set leaves the row exactly
// as the winner wrote it.
func (s *ReceiptService) Approve(ctx context.Context, actor model.Actor, receiptID, paymentMethod, paymentReference, paymentProofURL string) (*model.Receipt, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}
	if !model.IsValidPaymentMethod(paymentMethod) {
		return nil, fmt.Errorf("invalid payment method %q: %w", paymentMethod, apperr.ErrValidation)
	}
	if paymentReference == "" {
		return nil, fmt.Errorf("payment reference is required: %w", apperr.ErrValidation)
	}

	receipt, err := s.receiptRepo.GetScoped(ctx, actor.OrganizationID, receiptID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"payment_method":    paymentMethod,
		"payment_reference": paymentReference,
		"approved_at":       now,
	}
	if paymentProofURL != "" {
		updates["payment_proof_url"] = paymentProofURL
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.receiptRepo.UpdateStatus(ctx, tx, receipt.ID,
			model.ReceiptStatusPending, model.ReceiptStatusApproved, updates); err != nil {
			return err
		}
		return s.enqueueReceiptEvent(ctx, tx, model.ReceiptEventApproved, receipt.ID, map[string]interface{}{
			"receipt_id":        receipt.ID,
			"payment_method":    paymentMethod,
			"payment_reference": paymentReference,
			"approved_at":       now.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.receiptRepo.GetByID(ctx, receipt.ID)
}

// Reject moves a pending receipt to rejected, keeping the reason for
// audit. The reason is recorded verbatim, not re-validated.
func (s *ReceiptService) Reject(ctx context.Context, actor model.Actor, receiptID, reason string) (*model.Receipt, error) {
	if !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}

	receipt, err := s.receiptRepo.GetScoped(ctx, actor.OrganizationID, receiptID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.receiptRepo.UpdateStatus(ctx, tx, receipt.ID,
			model.ReceiptStatusPending, model.ReceiptStatusRejected,
			map[string]interface{}{"rejection_reason": reason}); err != nil {
			return err
		}
		return s.enqueueReceiptEvent(ctx, tx, model.ReceiptEventRejected, receipt.ID, map[string]interface{}{
			"receipt_id": receipt.ID,
			"reason":     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.receiptRepo.GetByID(ctx, receipt.ID)
}

// List applies the caller's visibility: members see their own
// receipts, treasurers the whole organization.
func (s *ReceiptService) List(ctx context.Context, actor model.Actor, filter repository.ReceiptFilter, limit, offset int) ([]*model.Receipt, error) {
	if filter.UserID != "" && filter.UserID != actor.UserID && !actor.IsTreasurer() {
		return nil, fmt.Errorf("treasurer capability required: %w", apperr.ErrForbidden)
	}
	if !actor.IsTreasurer() {
		filter.UserID = actor.UserID
	}
	return s.receiptRepo.List(ctx, actor.OrganizationID, filter, limit, offset)
}

type ReceiptDetail struct {
	Receipt       *model.Receipt               `json:"receipt"`
	TaxBreakdowns []*model.ReceiptTaxBreakdown `json:"tax_breakdowns"`
}

func (s *ReceiptService) GetDetail(ctx context.Context, actor model.Actor, receiptID string) (*ReceiptDetail, error) {
	receipt, err := s.receiptRepo.GetScoped(ctx, actor.OrganizationID, receiptID)
	if err != nil {
		return nil, err
	}
	if !actor.IsTreasurer() && receipt.UserID != actor.UserID {
		return nil, repository.ErrReceiptNotFound
	}

	breakdowns, err := s.receiptRepo.ListBreakdowns(ctx, receipt.ID)
	if err != nil {
		return nil, err
	}

	return &ReceiptDetail{Receipt: receipt, TaxBreakdowns: breakdowns}, nil
}

func (s *ReceiptService) enqueueReceiptEvent(ctx context.Context, tx *gorm.DB, event, receiptID string, payload map[string]interface{}) error {
	payload["event"] = event
	payloadBytes, _ := json.Marshal(payload)

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: receiptID,
		Topic:      s.cfg.Kafka.Topic.ReceiptEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	})
}
