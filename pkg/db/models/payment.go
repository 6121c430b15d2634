package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/pkg/enums"
)

// Payment tracks a Stripe payment intent raised for a booking.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BookingID             uuid.UUID           `gorm:"column:booking_id;type:uuid;not null;index"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	StripePaymentIntentID string              `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex:idx_payments_stripe_intent"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency              enums.Currency      `gorm:"column:currency;type:text;not null;default:'usd'"`
	Method                enums.PaymentMethod `gorm:"column:method;type:text;not null;default:'card'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	FailureReason         *string             `gorm:"column:failure_reason"`
	ReceiptURL            *string             `gorm:"column:receipt_url"`
	RefundedAmount        decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(10,2);not null;default:0"`
	Refunds               []PaymentRefund     `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentRefund is one refund issued against a payment. StripeRefundID is
// unique so webhook replays cannot append the same refund twice.
type PaymentRefund struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID      uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;index"`
	StripeRefundID string          `gorm:"column:stripe_refund_id;not null;uniqueIndex"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(10,2);not null"`
	Reason         *string         `gorm:"column:reason"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
