package bookings

import (
	"testing"

	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
)

func TestCanTransitionMatrix(t *testing.T) {
	allowed := map[enums.BookingStatus]map[enums.BookingStatus]bool{
		enums.BookingStatusPending: {
			enums.BookingStatusConfirmed: true,
			enums.BookingStatusCancelled: true,
		},
		enums.BookingStatusConfirmed: {
			enums.BookingStatusActive:    true,
			enums.BookingStatusCancelled: true,
		},
		enums.BookingStatusActive: {
			enums.BookingStatusCompleted: true,
		},
	}

	for _, from := range enums.BookingStatuses() {
		for _, to := range enums.BookingStatuses() {
			want := allowed[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []enums.BookingStatus{enums.BookingStatusCompleted, enums.BookingStatusCancelled} {
		for _, to := range enums.BookingStatuses() {
			if CanTransition(from, to) {
				t.Errorf("%s should be terminal but allows %s", from, to)
			}
		}
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := invalidTransition(enums.BookingStatusActive, enums.BookingStatusCancelled)

	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatal("expected a typed error")
	}
	if typed.Code() != pkgerrors.CodeStateConflict {
		t.Errorf("expected state conflict code, got %s", typed.Code())
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected string map details, got %T", typed.Details())
	}
	if details["from"] != "active" || details["to"] != "cancelled" {
		t.Errorf("unexpected details: %v", details)
	}
}
