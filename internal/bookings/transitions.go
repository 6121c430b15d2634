package bookings

import (
	"fmt"

	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
)

// allowedTransitions is the closed booking state machine. Completed and
// cancelled are terminal.
var allowedTransitions = map[enums.BookingStatus][]enums.BookingStatus{
	enums.BookingStatusPending:   {enums.BookingStatusConfirmed, enums.BookingStatusCancelled},
	enums.BookingStatusConfirmed: {enums.BookingStatusActive, enums.BookingStatusCancelled},
	enums.BookingStatusActive:    {enums.BookingStatusCompleted},
	enums.BookingStatusCompleted: {},
	enums.BookingStatusCancelled: {},
}

// CanTransition reports whether from→to is a legal booking status change.
func CanTransition(from, to enums.BookingStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// invalidTransition builds the error returned for any edge not in the table,
// naming both endpoints so clients can see what was attempted.
func invalidTransition(from, to enums.BookingStatus) *pkgerrors.Error {
	return pkgerrors.New(
		pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot transition booking from %s to %s", from, to),
	).WithDetails(map[string]string{"from": from.String(), "to": to.String()})
}
