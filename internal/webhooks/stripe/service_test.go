package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/payments"
	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

type recordedRefund struct {
	intentID string
	refundID string
	amount   decimal.Decimal
	reason   string
}

type stubPayments struct {
	succeeded []string
	failed    map[string]string
	refunds   []recordedRefund
	err       error
}

func (s *stubPayments) CreateIntent(context.Context, bookings.Actor, uuid.UUID) (*payments.IntentResult, error) {
	return nil, nil
}

func (s *stubPayments) Confirm(context.Context, bookings.Actor, string) (*payments.ConfirmResult, error) {
	return nil, nil
}

func (s *stubPayments) Refund(context.Context, uuid.UUID, *decimal.Decimal, string) (*models.PaymentRefund, error) {
	return nil, nil
}

func (s *stubPayments) History(context.Context, bookings.Actor, pagination.Params) (*payments.HistoryResult, error) {
	return nil, nil
}

func (s *stubPayments) Get(context.Context, bookings.Actor, uuid.UUID) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) HandleIntentSucceeded(_ context.Context, intent *stripe.PaymentIntent) error {
	if s.err != nil {
		return s.err
	}
	s.succeeded = append(s.succeeded, intent.ID)
	return nil
}

func (s *stubPayments) HandleIntentFailed(_ context.Context, intentID, reason string) error {
	if s.err != nil {
		return s.err
	}
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[intentID] = reason
	return nil
}

func (s *stubPayments) RecordProcessorRefund(_ context.Context, intentID, refundID string, amount decimal.Decimal, reason string) error {
	if s.err != nil {
		return s.err
	}
	s.refunds = append(s.refunds, recordedRefund{intentID: intentID, refundID: refundID, amount: amount, reason: reason})
	return nil
}

func newTestService(t *testing.T) (*Service, *stubPayments) {
	t.Helper()
	stub := &stubPayments{}
	svc, err := NewService(ServiceParams{Payments: stub})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, stub
}

func eventFor(t *testing.T, eventType stripe.EventType, payload any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString()[:8],
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventPaymentIntentSucceeded(t *testing.T) {
	svc, stub := newTestService(t)
	event := eventFor(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_123"})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.succeeded) != 1 || stub.succeeded[0] != "pi_123" {
		t.Fatalf("expected pi_123 routed to the coordinator, got %v", stub.succeeded)
	}
}

func TestHandleEventPaymentIntentFailedCarriesReason(t *testing.T) {
	svc, stub := newTestService(t)
	event := eventFor(t, stripe.EventTypePaymentIntentPaymentFailed, &stripe.PaymentIntent{
		ID:               "pi_456",
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if stub.failed["pi_456"] != "Your card was declined." {
		t.Fatalf("expected decline reason, got %q", stub.failed["pi_456"])
	}
}

func TestHandleEventRefundCreated(t *testing.T) {
	svc, stub := newTestService(t)
	event := eventFor(t, stripe.EventTypeRefundCreated, &stripe.Refund{
		ID:            "re_789",
		Amount:        13400,
		Reason:        stripe.RefundReasonRequestedByCustomer,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.refunds) != 1 {
		t.Fatalf("expected one refund, got %d", len(stub.refunds))
	}
	got := stub.refunds[0]
	if got.intentID != "pi_123" || got.refundID != "re_789" {
		t.Errorf("unexpected refund routing: %+v", got)
	}
	if !got.amount.Equal(decimal.RequireFromString("134")) {
		t.Errorf("expected 134.00 from 13400 cents, got %s", got.amount)
	}
}

func TestHandleEventChargeRefundedRecordsEachRefund(t *testing.T) {
	svc, stub := newTestService(t)
	event := eventFor(t, stripe.EventTypeChargeRefunded, &stripe.Charge{
		ID:            "ch_1",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
		Refunds: &stripe.RefundList{
			Data: []*stripe.Refund{
				{ID: "re_1", Amount: 5000},
				{ID: "re_2", Amount: 2500},
			},
		},
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(stub.refunds) != 2 {
		t.Fatalf("expected two refunds, got %d", len(stub.refunds))
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	svc, stub := newTestService(t)
	event := eventFor(t, stripe.EventType("customer.created"), map[string]string{"id": "cus_1"})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown events must be acknowledged: %v", err)
	}
	if len(stub.succeeded)+len(stub.refunds)+len(stub.failed) != 0 {
		t.Fatal("unknown events must not reach the coordinator")
	}
}

type mapStore struct {
	values map[string]string
}

func (m *mapStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *mapStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.values == nil {
		m.values = map[string]string{}
	}
	if _, exists := m.values[key]; exists {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *mapStore) IdempotencyKey(scope, id string) string {
	return "carhive:idempotency:" + scope + ":" + id
}

func (m *mapStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestIdempotencyGuardDeduplicates(t *testing.T) {
	guard, err := NewIdempotencyGuard(&mapStore{}, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}
	ctx := context.Background()

	dup, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if dup {
		t.Fatal("first delivery should not be a duplicate")
	}

	dup, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if !dup {
		t.Fatal("second delivery should be flagged as duplicate")
	}

	// A failed handler unmarks the event so the retry processes it.
	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	dup, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("third mark: %v", err)
	}
	if dup {
		t.Fatal("redelivery after delete should process again")
	}
}
