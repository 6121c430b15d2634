package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/pkg/config"
	"github.com/mateoalvarez/carhive-backend/pkg/db"
	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
)

type stubStripe struct {
	intents       map[string]*stripe.PaymentIntent
	createdIntent *stripe.PaymentIntentParams
	createErr     error
	refundParams  []*stripe.RefundParams
	refundErr     error
}

func (s *stubStripe) CreateIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createdIntent = params
	intent := &stripe.PaymentIntent{
		ID:           "pi_" + uuid.NewString()[:8],
		ClientSecret: "secret_" + uuid.NewString()[:8],
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}
	if s.intents == nil {
		s.intents = map[string]*stripe.PaymentIntent{}
	}
	s.intents[intent.ID] = intent
	return intent, nil
}

func (s *stubStripe) GetIntent(_ context.Context, id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	intent, ok := s.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such intent %s", id)
	}
	return intent, nil
}

func (s *stubStripe) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	s.refundParams = append(s.refundParams, params)
	return &stripe.Refund{ID: "re_" + uuid.NewString()[:8]}, nil
}

func (s *stubStripe) succeed(intentID string) {
	if intent, ok := s.intents[intentID]; ok {
		intent.Status = stripe.PaymentIntentStatusSucceeded
		intent.LatestCharge = &stripe.Charge{ReceiptURL: "https://receipts.example/" + intentID}
	}
}

type testEnv struct {
	conn     *gorm.DB
	stripe   *stubStripe
	payments Service
	bookings bookings.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:payments_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	bookingsRepo := bookings.NewRepository(conn)
	bookingSvc, err := bookings.NewService(bookingsRepo, fleet.NewRepository(conn), nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to build bookings service: %v", err)
	}

	stub := &stubStripe{}
	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(conn),
		Bookings:     bookingSvc,
		BookingsRepo: bookingsRepo,
		Stripe:       stub,
		DB:           db.NewFromConn(conn),
		Config:       config.PaymentsConfig{Currency: "usd", ProcessorTimeout: time.Second},
	})
	if err != nil {
		t.Fatalf("failed to build payments service: %v", err)
	}
	return &testEnv{conn: conn, stripe: stub, payments: svc, bookings: bookingSvc}
}

func (e *testEnv) seedUser(t *testing.T, role enums.Role) *models.User {
	t.Helper()
	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		IsActive:     true,
	}
	if err := e.conn.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedCar(t *testing.T) *models.Car {
	t.Helper()
	car := &models.Car{
		Make:         "Toyota",
		Model:        "Corolla",
		Year:         2022,
		Category:     enums.CarCategorySedan,
		Transmission: enums.TransmissionAutomatic,
		FuelType:     enums.FuelTypeGasoline,
		Seats:        5,
		PricePerDay:  decimal.NewFromInt(45),
		LicensePlate: "PLATE-" + uuid.NewString()[:8],
		VIN:          uuid.NewString()[:17],
		Location:     "San Francisco",
		IsActive:     true,
	}
	if err := e.conn.Create(car).Error; err != nil {
		t.Fatalf("failed to seed car: %v", err)
	}
	return car
}

func (e *testEnv) seedBooking(t *testing.T, userID, carID uuid.UUID, offsetDays int) *models.Booking {
	t.Helper()
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, offsetDays)
	booking := &models.Booking{
		UserID:        userID,
		CarID:         carID,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, 5),
		Status:        enums.BookingStatusPending,
		PaymentStatus: enums.BookingPaymentStatusPending,
		TotalDays:     5,
		DailyRate:     decimal.NewFromInt(45),
		Subtotal:      decimal.NewFromInt(225),
		Taxes:         decimal.NewFromInt(18),
		Fees:          decimal.NewFromInt(25),
		TotalPrice:    decimal.NewFromInt(268),
	}
	if err := e.conn.Create(booking).Error; err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}
	return booking
}

func (e *testEnv) reloadBooking(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	var booking models.Booking
	if err := e.conn.First(&booking, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload booking: %v", err)
	}
	return &booking
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error with code %s, got %v", code, err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%s)", code, typed.Code(), typed.Message())
	}
}

func TestCreateIntentPersistsPaymentAndIntentRef(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	result, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	if result.ClientSecret == "" {
		t.Error("expected a client secret")
	}
	if got := *env.stripe.createdIntent.Amount; got != 26800 {
		t.Errorf("expected 26800 cents sent to the processor, got %d", got)
	}
	if !result.Payment.Amount.Equal(decimal.NewFromInt(268)) {
		t.Errorf("expected payment amount 268, got %s", result.Payment.Amount)
	}

	reloaded := env.reloadBooking(t, booking.ID)
	if reloaded.PaymentIntentID == nil || *reloaded.PaymentIntentID != result.Payment.StripePaymentIntentID {
		t.Error("expected intent reference stored on the booking")
	}
}

func TestCreateIntentGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	stranger := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)

	_, err := env.payments.CreateIntent(ctx, bookings.Actor{UserID: stranger.ID, Role: stranger.Role}, booking.ID)
	assertCode(t, err, pkgerrors.CodeForbidden)

	if err := env.conn.Model(&models.Booking{}).Where("id = ?", booking.ID).
		Update("status", enums.BookingStatusCancelled).Error; err != nil {
		t.Fatalf("failed to cancel booking: %v", err)
	}
	_, err = env.payments.CreateIntent(ctx, bookings.Actor{UserID: user.ID, Role: user.Role}, booking.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCreateIntentProcessorFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	env.stripe.createErr = errors.New("stripe is down")

	_, err := env.payments.CreateIntent(ctx, bookings.Actor{UserID: user.ID, Role: user.Role}, booking.ID)
	assertCode(t, err, pkgerrors.CodeDependency)

	// No partial writes on failure.
	var count int64
	if err := env.conn.Model(&models.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no payment rows, got %d", count)
	}
	if env.reloadBooking(t, booking.ID).PaymentIntentID != nil {
		t.Error("expected no intent reference on the booking")
	}
}

func TestConfirmRequiresSucceededIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	intent, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	// Intent still requires a payment method.
	_, err = env.payments.Confirm(ctx, actor, intent.Payment.StripePaymentIntentID)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestConfirmResolvesIntentAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	stranger := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	intent, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	env.stripe.succeed(intent.Payment.StripePaymentIntentID)

	_, err = env.payments.Confirm(ctx, actor, "pi_unknown")
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = env.payments.Confirm(ctx, bookings.Actor{UserID: stranger.ID, Role: stranger.Role}, intent.Payment.StripePaymentIntentID)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestConfirmFinalizesBookingAndPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	intent, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	env.stripe.succeed(intent.Payment.StripePaymentIntentID)

	result, err := env.payments.Confirm(ctx, actor, intent.Payment.StripePaymentIntentID)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if result.Outcome != bookings.ConfirmStateConfirmed {
		t.Fatalf("expected confirmed outcome, got %s", result.Outcome)
	}
	if result.Booking.Status != enums.BookingStatusConfirmed {
		t.Errorf("expected confirmed booking, got %s", result.Booking.Status)
	}
	if result.Booking.PaymentStatus != enums.BookingPaymentStatusCompleted {
		t.Errorf("expected completed payment status, got %s", result.Booking.PaymentStatus)
	}

	payment, err := env.payments.Get(ctx, actor, intent.Payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if payment.Status != enums.PaymentStatusSucceeded {
		t.Errorf("expected succeeded payment, got %s", payment.Status)
	}
	if payment.ReceiptURL == nil {
		t.Error("expected receipt url recorded")
	}

	// Confirming again is idempotent.
	again, err := env.payments.Confirm(ctx, actor, intent.Payment.StripePaymentIntentID)
	if err != nil {
		t.Fatalf("repeat confirm failed: %v", err)
	}
	if again.Outcome != bookings.ConfirmStateAlreadyConfirmed {
		t.Errorf("expected already confirmed, got %s", again.Outcome)
	}
}

func TestConfirmLoserIsForceCancelledWithFullRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, enums.RoleCustomer)
	bob := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	first := env.seedBooking(t, alice.ID, car.ID, 10)
	second := env.seedBooking(t, bob.ID, car.ID, 12) // overlaps first

	aliceActor := bookings.Actor{UserID: alice.ID, Role: alice.Role}
	bobActor := bookings.Actor{UserID: bob.ID, Role: bob.Role}

	firstIntent, err := env.payments.CreateIntent(ctx, aliceActor, first.ID)
	if err != nil {
		t.Fatalf("first intent failed: %v", err)
	}
	secondIntent, err := env.payments.CreateIntent(ctx, bobActor, second.ID)
	if err != nil {
		t.Fatalf("second intent failed: %v", err)
	}
	env.stripe.succeed(firstIntent.Payment.StripePaymentIntentID)
	env.stripe.succeed(secondIntent.Payment.StripePaymentIntentID)

	if _, err := env.payments.Confirm(ctx, aliceActor, firstIntent.Payment.StripePaymentIntentID); err != nil {
		t.Fatalf("winner confirm failed: %v", err)
	}

	result, err := env.payments.Confirm(ctx, bobActor, secondIntent.Payment.StripePaymentIntentID)
	if err != nil {
		t.Fatalf("loser confirm failed: %v", err)
	}
	if result.Outcome != bookings.ConfirmStateForceCancelled {
		t.Fatalf("expected force cancelled, got %s", result.Outcome)
	}
	if !result.RefundAmount.Equal(decimal.NewFromInt(268)) {
		t.Errorf("expected full refund of 268, got %s", result.RefundAmount)
	}

	if len(env.stripe.refundParams) != 1 {
		t.Fatalf("expected one processor refund, got %d", len(env.stripe.refundParams))
	}
	if got := *env.stripe.refundParams[0].Amount; got != 26800 {
		t.Errorf("expected refund of 26800 cents, got %d", got)
	}

	loser := env.reloadBooking(t, second.ID)
	if loser.Status != enums.BookingStatusCancelled {
		t.Errorf("expected cancelled loser, got %s", loser.Status)
	}
	if loser.PaymentStatus != enums.BookingPaymentStatusRefunded {
		t.Errorf("expected refunded payment status, got %s", loser.PaymentStatus)
	}

	payment, err := env.payments.Get(ctx, bobActor, secondIntent.Payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if !payment.RefundedAmount.Equal(decimal.NewFromInt(268)) {
		t.Errorf("expected refunded amount 268, got %s", payment.RefundedAmount)
	}
	if len(payment.Refunds) != 1 {
		t.Errorf("expected one refund record, got %d", len(payment.Refunds))
	}
}

func TestHandleIntentFailedNeverRegressesSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	intent, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	if err := env.payments.HandleIntentFailed(ctx, intent.Payment.StripePaymentIntentID, "card_declined"); err != nil {
		t.Fatalf("handle failed event: %v", err)
	}
	payment, err := env.payments.Get(ctx, actor, intent.Payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if payment.Status != enums.PaymentStatusFailed {
		t.Errorf("expected failed payment, got %s", payment.Status)
	}
	if payment.FailureReason == nil || *payment.FailureReason != "card_declined" {
		t.Error("expected failure reason recorded")
	}
	if env.reloadBooking(t, booking.ID).PaymentStatus != enums.BookingPaymentStatusFailed {
		t.Error("expected booking payment status failed")
	}
	if env.reloadBooking(t, booking.ID).Status != enums.BookingStatusPending {
		t.Error("failed payment must leave the booking pending for retry")
	}

	// Succeed, then replay the stale failure.
	env.stripe.succeed(intent.Payment.StripePaymentIntentID)
	if _, err := env.payments.Confirm(ctx, actor, intent.Payment.StripePaymentIntentID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := env.payments.HandleIntentFailed(ctx, intent.Payment.StripePaymentIntentID, "late event"); err != nil {
		t.Fatalf("stale failure event: %v", err)
	}
	payment, _ = env.payments.Get(ctx, actor, intent.Payment.ID)
	if payment.Status != enums.PaymentStatusSucceeded {
		t.Errorf("stale failure must not regress success, got %s", payment.Status)
	}
	if env.reloadBooking(t, booking.ID).PaymentStatus != enums.BookingPaymentStatusCompleted {
		t.Error("stale failure must not regress the booking payment status")
	}
}

func TestRecordProcessorRefundIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	intent, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	env.stripe.succeed(intent.Payment.StripePaymentIntentID)
	if _, err := env.payments.Confirm(ctx, actor, intent.Payment.StripePaymentIntentID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	amount := decimal.NewFromInt(134)
	for i := 0; i < 3; i++ {
		if err := env.payments.RecordProcessorRefund(ctx, intent.Payment.StripePaymentIntentID, "re_webhook_1", amount, "requested_by_customer"); err != nil {
			t.Fatalf("record refund attempt %d failed: %v", i, err)
		}
	}

	payment, err := env.payments.Get(ctx, actor, intent.Payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if len(payment.Refunds) != 1 {
		t.Fatalf("expected one refund record after replays, got %d", len(payment.Refunds))
	}
	if !payment.RefundedAmount.Equal(amount) {
		t.Errorf("expected refunded amount %s, got %s", amount, payment.RefundedAmount)
	}
	if env.reloadBooking(t, booking.ID).PaymentStatus != enums.BookingPaymentStatusRefunded {
		t.Error("expected booking payment status refunded")
	}
}

func TestAdminRefundUsesCancellationAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, enums.RoleCustomer)
	car := env.seedCar(t)
	booking := env.seedBooking(t, user.ID, car.ID, 10)
	actor := bookings.Actor{UserID: user.ID, Role: user.Role}

	intent, err := env.payments.CreateIntent(ctx, actor, booking.ID)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	env.stripe.succeed(intent.Payment.StripePaymentIntentID)
	if _, err := env.payments.Confirm(ctx, actor, intent.Payment.StripePaymentIntentID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := env.bookings.Cancel(ctx, actor, booking.ID, "trip cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	record, err := env.payments.Refund(ctx, booking.ID, nil, "cancellation")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	// Booking starts 10 days out, so cancellation computed a full refund.
	if !record.Amount.Equal(decimal.NewFromInt(268)) {
		t.Errorf("expected refund of 268, got %s", record.Amount)
	}

	// A second refund would exceed the remaining refundable amount.
	_, err = env.payments.Refund(ctx, booking.ID, nil, "again")
	assertCode(t, err, pkgerrors.CodeValidation)

	over := decimal.NewFromInt(500)
	_, err = env.payments.Refund(ctx, booking.ID, &over, "too much")
	assertCode(t, err, pkgerrors.CodeValidation)
}
