package handler

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"goodstewards/internal/config"
	"goodstewards/internal/infrastructure/extraction"
	"goodstewards/internal/infrastructure/storage"
	"goodstewards/internal/repository"
	"goodstewards/internal/service"
	"goodstewards/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	receiptService   *service.ReceiptService
	reconcileService *service.ReconcileService
	refundService    *service.RefundService
	orgRepo          *repository.OrganizationRepository
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, store storage.ObjectStore, extractor extraction.Extractor) *Handler {
	policy := service.NewStaticCategoryPolicy(cfg.Business.NonrefundableCategories)
	return &Handler{
		receiptService:   service.NewReceiptService(db, cfg, store, extractor, policy),
		reconcileService: service.NewReconcileService(db, rdb, cfg),
		refundService:    service.NewRefundService(db),
		orgRepo:          repository.NewOrganizationRepository(db),
	}
}

// ============================================================
// Receipts
// ============================================================

// UploadReceipt accepts a receipt image and runs it through
// extraction and the classification gate.
// POST /api/v1/receipts/upload (multipart: image, is_donation, member_id)
func (h *Handler) UploadReceipt(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.ParamError(c, "image file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ServerError(c, "failed to open uploaded file")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		response.ServerError(c, "failed to read uploaded file")
		return
	}

	isDonation, _ := strconv.ParseBool(c.DefaultPostForm("is_donation", "false"))

	req := &service.UploadRequest{
		ImageData:    imageData,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		IsDonation:   isDonation,
		TargetUserID: c.PostForm("member_id"),
	}

	result, err := h.receiptService.Upload(c.Request.Context(), currentActor(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// ListReceipts returns the caller's visible receipts.
// GET /api/v1/receipts?status=&user_id=&is_donation=&limit=&offset=
func (h *Handler) ListReceipts(c *gin.Context) {
	filter := repository.ReceiptFilter{
		Status: c.Query("status"),
		UserID: c.Query("user_id"),
	}
	if raw := c.Query("is_donation"); raw != "" {
		isDonation, err := strconv.ParseBool(raw)
		if err != nil {
			response.ParamError(c, "is_donation must be a boolean")
			return
		}
		filter.IsDonation = &isDonation
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	receipts, err := h.receiptService.List(c.Request.Context(), currentActor(c), filter, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"list": receipts, "limit": limit, "offset": offset})
}

// GetReceipt returns one receipt with its tax breakdowns.
// GET /api/v1/receipts/:id
func (h *Handler) GetReceipt(c *gin.Context) {
	detail, err := h.receiptService.GetDetail(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, detail)
}

type ApproveReceiptRequest struct {
	PaymentMethod    string `json:"payment_method" binding:"required"`
	PaymentReference string `json:"payment_reference" binding:"required"`
	PaymentProofURL  string `json:"payment_proof_url"`
}

// ApproveReceipt moves a pending receipt to approved (treasurer only).
// PUT /api/v1/receipts/:id/approve
func (h *Handler) ApproveReceipt(c *gin.Context) {
	var req ApproveReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	receipt, err := h.receiptService.Approve(c.Request.Context(), currentActor(c),
		c.Param("id"), req.PaymentMethod, req.PaymentReference, req.PaymentProofURL)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"id":          receipt.ID,
		"status":      receipt.Status,
		"approved_at": receipt.ApprovedAt,
	})
}

type RejectReceiptRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectReceipt moves a pending receipt to rejected (treasurer only).
// PUT /api/v1/receipts/:id/reject
func (h *Handler) RejectReceipt(c *gin.Context) {
	var req RejectReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	receipt, err := h.receiptService.Reject(c.Request.Context(), currentActor(c), c.Param("id"), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"id": receipt.ID, "status": receipt.Status})
}

// ============================================================
// Payments / reconciliation
// ============================================================

// UploadPaymentCSV imports a bank/payment CSV and reconciles it
// against approved receipts (treasurer only).
// POST /api/v1/payments/upload-csv (multipart: csv_file)
//
// Expected columns: transaction_date, amount, reference_id. Rows are
// processed in file order; bad rows count as unmatched and never
// abort the batch.
func (h *Handler) UploadPaymentCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("csv_file")
	if err != nil {
		response.ParamError(c, "csv_file is required")
		return
	}
	if !strings.HasSuffix(fileHeader.Filename, ".csv") {
		response.ParamError(c, "file must be a CSV")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ServerError(c, "failed to open uploaded file")
		return
	}
	defer file.Close()

	rows, err := parseLedgerCSV(file)
	if err != nil {
		response.ParamError(c, "invalid CSV: "+err.Error())
		return
	}

	result, err := h.reconcileService.ImportBatch(c.Request.Context(), currentActor(c), rows)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

type ReconcileRequest struct {
	Rows []service.LedgerRow `json:"rows" binding:"required"`
}

// Reconcile is the JSON-body variant of the CSV import.
// POST /api/v1/payments/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.reconcileService.ImportBatch(c.Request.Context(), currentActor(c), req.Rows)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

type MatchManualRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	ReceiptID     string `json:"receipt_id" binding:"required"`
}

// MatchManual links an unmatched transaction to an approved receipt
// (treasurer only).
// POST /api/v1/payments/match-manual
func (h *Handler) MatchManual(c *gin.Context) {
	var req MatchManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.reconcileService.MatchManual(c.Request.Context(), currentActor(c),
		req.TransactionID, req.ReceiptID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// ListUnmatchedPayments returns transactions with no linked receipt.
// GET /api/v1/payments/unmatched
func (h *Handler) ListUnmatchedPayments(c *gin.Context) {
	transactions, err := h.reconcileService.ListUnmatched(c.Request.Context(), currentActor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"list": transactions})
}

// ListUnpaidReceipts returns approved receipts awaiting payment.
// GET /api/v1/payments/unpaid-receipts
func (h *Handler) ListUnpaidReceipts(c *gin.Context) {
	receipts, err := h.reconcileService.ListUnpaidReceipts(c.Request.Context(), currentActor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"list": receipts})
}

// ============================================================
// Forms
// ============================================================

type RefundPackageRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// GenerateRefundPackage aggregates the period's refundable receipts
// (treasurer only). PDF rendering is handled elsewhere; the URLs are
// handles into that pipeline.
// POST /api/v1/forms/generate-refund-package
func (h *Handler) GenerateRefundPackage(c *gin.Context) {
	var req RefundPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		response.ParamError(c, "start_date must be YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		response.ParamError(c, "end_date must be YYYY-MM-DD")
		return
	}

	pkg, err := h.refundService.GeneratePackage(c.Request.Context(), currentActor(c), startDate, endDate)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, pkg)
}

// ============================================================
// Organizations
// ============================================================

// GetOrganization returns the caller's organization.
// GET /api/v1/organizations/:id
func (h *Handler) GetOrganization(c *gin.Context) {
	actor := currentActor(c)
	if c.Param("id") != actor.OrganizationID {
		// Scope violations read as not-found.
		response.Error(c, response.CodeNotFound, "organization not found")
		return
	}

	org, err := h.orgRepo.GetByID(c.Request.Context(), actor.OrganizationID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, org)
}

// parseLedgerCSV reads the ledger preserving row order. Header names
// are matched case-insensitively.
func parseLedgerCSV(r io.Reader) ([]service.LedgerRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []service.LedgerRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn line is a bad row, not a broken batch.
			rows = append(rows, service.LedgerRow{})
			continue
		}
		rows = append(rows, service.LedgerRow{
			TransactionDate: field(record, "transaction_date"),
			Amount:          field(record, "amount"),
			ReferenceID:     field(record, "reference_id"),
		})
	}

	return rows, nil
}
