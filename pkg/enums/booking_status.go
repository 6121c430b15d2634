package enums

import "fmt"

// BookingStatus tracks the lifecycle of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusActive,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

// BookingStatuses returns every known status in declaration order.
func BookingStatuses() []BookingStatus {
	out := make([]BookingStatus, len(validBookingStatuses))
	copy(out, validBookingStatuses)
	return out
}

// BlockingBookingStatuses are the statuses that reserve a car's date range.
// Pending bookings deliberately do not block: an abandoned checkout must not
// lock a car, so overlap is enforced at confirmation time instead.
func BlockingBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusConfirmed, BookingStatusActive}
}

// String implements fmt.Stringer.
func (b BookingStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingStatus.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
