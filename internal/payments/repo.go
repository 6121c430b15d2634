package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

// Repository exposes persistence helpers for payments and their refunds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.Payment, int64, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, receiptURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	AppendRefund(ctx context.Context, refund *models.PaymentRefund) (bool, error)
	AddRefundedAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Refunds").
		First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repositoryImpl) GetByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Refunds").
		First(&payment, "stripe_payment_intent_id = ?", intentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repositoryImpl) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.Payment, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	normalized := page.Normalize()
	var rows []models.Payment
	if err := query.
		Preload("Refunds").
		Order("created_at DESC, id DESC").
		Limit(normalized.Limit).
		Offset(page.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repositoryImpl) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Preload("Refunds").
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// MarkSucceeded finalizes a payment record. Succeeded is sticky: replayed
// webhooks hit the same terminal row and change nothing.
func (r *repositoryImpl) MarkSucceeded(ctx context.Context, id uuid.UUID, receiptURL string) error {
	updates := map[string]any{
		"status":     enums.PaymentStatusSucceeded,
		"updated_at": time.Now().UTC(),
	}
	if receiptURL != "" {
		updates["receipt_url"] = receiptURL
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkFailed records a failure reason unless the payment already succeeded.
// A late failure event must never regress a completed payment.
func (r *repositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, enums.PaymentStatusSucceeded).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AppendRefund inserts the refund once. The unique index on StripeRefundID
// turns webhook replays into no-ops; the return value reports whether this
// call actually inserted the row.
func (r *repositoryImpl) AppendRefund(ctx context.Context, refund *models.PaymentRefund) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_refund_id"}},
			DoNothing: true,
		}).
		Create(refund)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) AddRefundedAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refunded_amount": gorm.Expr("refunded_amount + ?", amount),
			"updated_at":      time.Now().UTC(),
		}).Error
}
