package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/pkg/logger"
)

// Notifier delivers customer-facing messages about booking lifecycle events.
// Delivery is fire-and-forget: failures are logged, never propagated, so a
// booking is never invalidated because its notification failed.
type Notifier interface {
	BookingCreated(ctx context.Context, bookingID, userID uuid.UUID)
	BookingStatusChanged(ctx context.Context, bookingID uuid.UUID, from, to string)
	PaymentConfirmed(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal)
	RefundProcessed(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal)
}

type logNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier returns a Notifier that records events on the service log.
// The production mail/push integration satisfies the same interface.
func NewLogNotifier(logg *logger.Logger) Notifier {
	return &logNotifier{logg: logg}
}

func (n *logNotifier) BookingCreated(ctx context.Context, bookingID, userID uuid.UUID) {
	if n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"user_id":    userID.String(),
	})
	n.logg.Info(ctx, "notify.booking_created")
}

func (n *logNotifier) BookingStatusChanged(ctx context.Context, bookingID uuid.UUID, from, to string) {
	if n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"from":       from,
		"to":         to,
	})
	n.logg.Info(ctx, "notify.booking_status_changed")
}

func (n *logNotifier) PaymentConfirmed(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal) {
	if n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"amount":     amount.String(),
	})
	n.logg.Info(ctx, "notify.payment_confirmed")
}

func (n *logNotifier) RefundProcessed(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal) {
	if n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"amount":     amount.String(),
	})
	n.logg.Info(ctx, "notify.refund_processed")
}
