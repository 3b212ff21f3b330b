package job

import (
	"context"
	"log"
	"time"

	"goodstewards/internal/config"
	"goodstewards/internal/model"
	"goodstewards/internal/repository"

	"gorm.io/gorm"
)

// ProcessingTimeoutJob rejects receipts stuck in processing past the
// configured window, so a crashed extraction call can never leave a
// receipt pending forever. It goes through the same guarded transition
// as every other status change.
type ProcessingTimeoutJob struct {
	db          *gorm.DB
	receiptRepo *repository.ReceiptRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewProcessingTimeoutJob(db *gorm.DB, cfg *config.Config) *ProcessingTimeoutJob {
	return &ProcessingTimeoutJob{
		db:          db,
		receiptRepo: repository.NewReceiptRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    time.Minute,
		batchSize:   100,
	}
}

func (j *ProcessingTimeoutJob) Start(ctx context.Context) {
	log.Println("[ProcessingTimeoutJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ProcessingTimeoutJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[ProcessingTimeoutJob] stopped")
			return
		case <-ticker.C:
			j.rejectStaleReceipts(ctx)
		}
	}
}

func (j *ProcessingTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *ProcessingTimeoutJob) rejectStaleReceipts(ctx context.Context) {
	timeout := time.Duration(j.cfg.Business.ProcessingTimeoutMinutes) * time.Minute
	cutoff := time.Now().UTC().Add(-timeout)

	receipts, err := j.receiptRepo.GetStaleProcessing(ctx, cutoff, j.batchSize)
	if err != nil {
		log.Printf("[ProcessingTimeoutJob] query failed: %v", err)
		return
	}

	if len(receipts) == 0 {
		return
	}

	rejectedCount := 0
	for _, receipt := range receipts {
		err := j.receiptRepo.UpdateStatus(ctx, nil, receipt.ID,
			model.ReceiptStatusProcessing, model.ReceiptStatusRejected,
			map[string]interface{}{"rejection_reason": "extraction timed out"})
		if err != nil {
			// Someone classified it in the meantime; fine.
			continue
		}
		rejectedCount++
		log.Printf("[ProcessingTimeoutJob] rejected stale receipt: id=%s, submitted_at=%s",
			receipt.ID, receipt.SubmittedAt.Format(time.RFC3339))
	}

	log.Printf("[ProcessingTimeoutJob] rejected %d stale receipts", rejectedCount)
}
