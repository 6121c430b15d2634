package enums

import "fmt"

// BookingPaymentStatus summarizes where a booking stands with the processor.
type BookingPaymentStatus string

const (
	BookingPaymentStatusPending   BookingPaymentStatus = "pending"
	BookingPaymentStatusCompleted BookingPaymentStatus = "completed"
	BookingPaymentStatusFailed    BookingPaymentStatus = "failed"
	BookingPaymentStatusRefunded  BookingPaymentStatus = "refunded"
)

var validBookingPaymentStatuses = []BookingPaymentStatus{
	BookingPaymentStatusPending,
	BookingPaymentStatusCompleted,
	BookingPaymentStatusFailed,
	BookingPaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (b BookingPaymentStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingPaymentStatus.
func (b BookingPaymentStatus) IsValid() bool {
	for _, candidate := range validBookingPaymentStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBookingPaymentStatus converts raw input into a BookingPaymentStatus.
func ParseBookingPaymentStatus(value string) (BookingPaymentStatus, error) {
	for _, candidate := range validBookingPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking payment status %q", value)
}
