package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"goodstewards/internal/config"
	"goodstewards/internal/model"
	"goodstewards/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testContext() context.Context {
	return context.Background()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache memory DB so the pool's connections all see
	// the same data.
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

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.ReceiptEvents = "receipt-events"
	cfg.Business.MaxRetryCount = 3
	cfg.Business.NonrefundableCategories = []string{"alcohol", "tobacco"}
	return cfg
}

func seedOrg(t *testing.T, db *gorm.DB) *model.Organization {
	t.Helper()
	org := &model.Organization{ID: uuid.NewString(), Name: "Friends of the Library"}
	require.NoError(t, db.Create(org).Error)
	return org
}

func seedUser(t *testing.T, db *gorm.DB, org *model.Organization, role string) *model.User {
	t.Helper()
	user := &model.User{
		ID:             uuid.NewString(),
		FullName:       "Test User",
		Email:          uuid.NewString() + "@example.org",
		HashedPassword: "x",
		Role:           role,
		OrganizationID: org.ID,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func actorFor(user *model.User) model.Actor {
	return model.Actor{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	}
}

type receiptOpts struct {
	status           string
	paymentReference string
	county           string
	totalAmount      string
	taxAmount        string
	purchaseDate     string
	submittedAt      time.Time
}

func seedReceipt(t *testing.T, db *gorm.DB, org *model.Organization, user *model.User, opts receiptOpts) *model.Receipt {
	t.Helper()

	submittedAt := opts.submittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	receipt := &model.Receipt{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		UserID:         user.ID,
		ImageURL:       "http://localhost/media/" + uuid.NewString() + ".jpg",
		Status:         opts.status,
		SubmittedAt:    submittedAt,
	}
	if opts.paymentReference != "" {
		ref := opts.paymentReference
		method := model.PaymentMethodZelle
		now := time.Now().UTC()
		receipt.PaymentReference = &ref
		receipt.PaymentMethod = &method
		receipt.ApprovedAt = &now
	}
	if opts.county != "" {
		county := opts.county
		receipt.County = &county
	}
	if opts.totalAmount != "" {
		receipt.TotalAmount = decimal.NullDecimal{Decimal: decimal.RequireFromString(opts.totalAmount), Valid: true}
	}
	if opts.taxAmount != "" {
		receipt.TaxAmount = decimal.NullDecimal{Decimal: decimal.RequireFromString(opts.taxAmount), Valid: true}
	}
	if opts.purchaseDate != "" {
		d, err := time.Parse("2006-01-02", opts.purchaseDate)
		require.NoError(t, err)
		receipt.PurchaseDate = &d
	}

	require.NoError(t, db.Create(receipt).Error)
	return receipt
}

func reloadReceipt(t *testing.T, db *gorm.DB, id string) *model.Receipt {
	t.Helper()
	receipt, err := repository.NewReceiptRepository(db).GetByID(testContext(), id)
	require.NoError(t, err)
	return receipt
}
