package bookings

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	taxRate        = decimal.NewFromFloat(0.08)
	serviceFee     = decimal.NewFromInt(25)
	half           = decimal.NewFromFloat(0.5)
	hoursPerDay    = decimal.NewFromInt(24)
	fullRefundTier = "full"
	halfRefundTier = "half"
	zeroRefundTier = "none"
)

// PriceBreakdown is the pricing snapshot stored on a booking at creation.
// Later car price changes never affect an existing booking.
type PriceBreakdown struct {
	TotalDays int             `json:"total_days"`
	DailyRate decimal.Decimal `json:"daily_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Taxes     decimal.Decimal `json:"taxes"`
	Fees      decimal.Decimal `json:"fees"`
	Total     decimal.Decimal `json:"total"`
}

// Quote computes the full pricing breakdown for a rental window.
// Days are billed whole: any partial day rounds up.
func Quote(start, end time.Time, dailyRate decimal.Decimal) PriceBreakdown {
	hours := decimal.NewFromFloat(end.Sub(start).Hours())
	days := int(hours.Div(hoursPerDay).Ceil().IntPart())
	if days < 1 {
		days = 1
	}

	subtotal := dailyRate.Mul(decimal.NewFromInt(int64(days))).Round(2)
	taxes := subtotal.Mul(taxRate).Round(2)
	total := subtotal.Add(taxes).Add(serviceFee)

	return PriceBreakdown{
		TotalDays: days,
		DailyRate: dailyRate,
		Subtotal:  subtotal,
		Taxes:     taxes,
		Fees:      serviceFee,
		Total:     total,
	}
}

// RefundFor computes the cancellation refund from the time remaining until
// pickup. Strictly more than 72 hours refunds everything, strictly more than
// 24 hours refunds half, anything closer refunds nothing. Exactly 72h falls
// in the half bucket and exactly 24h in the zero bucket.
func RefundFor(now, start time.Time, total decimal.Decimal) (decimal.Decimal, string) {
	hoursUntilStart := start.Sub(now).Hours()
	switch {
	case hoursUntilStart > 72:
		return total, fullRefundTier
	case hoursUntilStart > 24:
		return total.Mul(half).Round(2), halfRefundTier
	default:
		return decimal.Zero, zeroRefundTier
	}
}

// WithinCancellationWindow reports whether the pickup is 24 hours away or
// closer, in which case customers may no longer cancel.
func WithinCancellationWindow(now, start time.Time) bool {
	return start.Sub(now).Hours() <= 24
}
