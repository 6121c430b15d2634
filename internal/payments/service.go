package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/notifications"
	"github.com/mateoalvarez/carhive-backend/pkg/config"
	"github.com/mateoalvarez/carhive-backend/pkg/db"
	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/metrics"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

const defaultProcessorTimeout = 10 * time.Second

var centsPerDollar = decimal.NewFromInt(100)

// Service coordinates payment intents, confirmation and refunds against the
// payment processor, and keeps booking payment state in sync.
type Service interface {
	CreateIntent(ctx context.Context, actor bookings.Actor, bookingID uuid.UUID) (*IntentResult, error)
	Confirm(ctx context.Context, actor bookings.Actor, intentID string) (*ConfirmResult, error)
	Refund(ctx context.Context, bookingID uuid.UUID, amount *decimal.Decimal, reason string) (*models.PaymentRefund, error)
	History(ctx context.Context, actor bookings.Actor, page pagination.Params) (*HistoryResult, error)
	Get(ctx context.Context, actor bookings.Actor, id uuid.UUID) (*models.Payment, error)

	// Webhook entry points. They are idempotent and never regress terminal state.
	HandleIntentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error
	HandleIntentFailed(ctx context.Context, intentID, reason string) error
	RecordProcessorRefund(ctx context.Context, intentID, refundID string, amount decimal.Decimal, reason string) error
}

// ServiceParams collects payment coordinator dependencies.
type ServiceParams struct {
	Repo         Repository
	Bookings     bookings.Service
	BookingsRepo bookings.Repository
	Stripe       StripePaymentClient
	DB           *db.Client
	Config       config.PaymentsConfig
	Notifier     notifications.Notifier
	Metrics      *metrics.BookingMetrics
	Logger       *logger.Logger
}

type service struct {
	repo         Repository
	bookings     bookings.Service
	bookingsRepo bookings.Repository
	stripe       StripePaymentClient
	db           *db.Client
	cfg          config.PaymentsConfig
	notifier     notifications.Notifier
	metrics      *metrics.BookingMetrics
	logg         *logger.Logger
}

// NewService wires the payment coordinator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
	}
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bookings service required")
	}
	if params.BookingsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bookings repository required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	return &service{
		repo:         params.Repo,
		bookings:     params.Bookings,
		bookingsRepo: params.BookingsRepo,
		stripe:       params.Stripe,
		db:           params.DB,
		cfg:          params.Config,
		notifier:     params.Notifier,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// IntentResult carries what the client needs to complete checkout.
type IntentResult struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

func (s *service) CreateIntent(ctx context.Context, actor bookings.Actor, bookingID uuid.UUID) (*IntentResult, error) {
	booking, err := s.bookings.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending bookings can be paid").
			WithDetails(map[string]string{"status": booking.Status.String()})
	}
	if booking.PaymentStatus == enums.BookingPaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is already paid")
	}

	currency := s.currency()
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(booking.TotalPrice)),
		Currency: stripe.String(currency.String()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", booking.ID.String())
	params.AddMetadata("user_id", booking.UserID.String())

	intent, err := s.callCreateIntent(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processing failed")
	}

	payment := &models.Payment{
		BookingID:             booking.ID,
		UserID:                booking.UserID,
		StripePaymentIntentID: intent.ID,
		Amount:                booking.TotalPrice,
		Currency:              currency,
		Method:                enums.PaymentMethodCard,
		Status:                enums.PaymentStatusPending,
	}

	// The payment row and the booking's intent reference land together or
	// not at all.
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		claimed, err := s.bookingsRepo.WithTx(tx).SetPaymentIntent(ctx, booking.ID, intent.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is no longer payable")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithBookingID(ctx, booking.ID.String()), "payment intent created")
	}
	return &IntentResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmResult reports how confirmation resolved.
type ConfirmResult struct {
	Outcome      bookings.ConfirmState `json:"outcome"`
	Booking      *models.Booking       `json:"booking"`
	RefundAmount decimal.Decimal       `json:"refund_amount,omitempty"`
}

// Confirm verifies with the processor that the intent actually succeeded, then
// runs the confirmation claim. Clients cannot confirm a booking by asserting
// payment; the processor is the source of truth.
func (s *service) Confirm(ctx context.Context, actor bookings.Actor, intentID string) (*ConfirmResult, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	resolved, err := s.bookingsRepo.GetByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking for intent")
	}
	if resolved == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no booking for payment intent")
	}
	// Reload through the booking service so ownership rules apply.
	booking, err := s.bookings.Get(ctx, actor, resolved.ID)
	if err != nil {
		return nil, err
	}

	intent, err := s.callGetIntent(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processing failed")
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment has not succeeded").
			WithDetails(map[string]string{"intent_status": string(intent.Status)})
	}

	return s.settleSucceededIntent(ctx, booking.ID, intent)
}

// HandleIntentSucceeded is the webhook path for payment_intent.succeeded.
func (s *service) HandleIntentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {
	if intent == nil || intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	booking, err := s.bookingsRepo.GetByPaymentIntent(ctx, intent.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking for intent")
	}
	if booking == nil {
		// Not a booking payment; nothing to do.
		return nil
	}
	_, err = s.settleSucceededIntent(ctx, booking.ID, intent)
	return err
}

// settleSucceededIntent finalizes payment state for an intent the processor
// reports as succeeded. The confirmation claim decides whether the booking is
// confirmed or force-cancelled; either way the customer's money is accounted
// for: winners keep a completed payment, losers get a full refund.
func (s *service) settleSucceededIntent(ctx context.Context, bookingID uuid.UUID, intent *stripe.PaymentIntent) (*ConfirmResult, error) {
	payment, err := s.repo.GetByIntent(ctx, intent.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	outcome, err := s.bookings.ClaimConfirmation(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{Outcome: outcome.State, Booking: outcome.Booking}
	switch outcome.State {
	case bookings.ConfirmStateConfirmed:
		if payment != nil {
			if err := s.repo.MarkSucceeded(ctx, payment.ID, receiptURL(intent)); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment succeeded")
			}
		}
		s.metrics.IncPaymentConfirmed()
		if s.notifier != nil {
			s.notifier.PaymentConfirmed(ctx, bookingID, outcome.Booking.TotalPrice)
		}
	case bookings.ConfirmStateAlreadyConfirmed:
		// Replay; everything already settled.
	case bookings.ConfirmStateForceCancelled:
		if payment != nil {
			if err := s.repo.MarkSucceeded(ctx, payment.ID, receiptURL(intent)); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment succeeded")
			}
			if err := s.issueRefund(ctx, payment, outcome.RefundAmount, "conflicting booking"); err != nil {
				return nil, err
			}
		}
		result.RefundAmount = outcome.RefundAmount
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking cannot accept payment").
			WithDetails(map[string]string{"status": outcome.Booking.Status.String()})
	}
	return result, nil
}

// HandleIntentFailed is the webhook path for payment_intent.payment_failed.
// The booking stays pending so the customer can retry with another card.
func (s *service) HandleIntentFailed(ctx context.Context, intentID, reason string) error {
	payment, err := s.repo.GetByIntent(ctx, intentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil
	}
	marked, err := s.repo.MarkFailed(ctx, payment.ID, reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	if !marked {
		// Payment already succeeded; a stale failure event changes nothing.
		return nil
	}
	if err := s.bookingsRepo.SetPaymentStatus(ctx, payment.BookingID, enums.BookingPaymentStatusFailed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking payment status")
	}
	return nil
}

// Refund issues a processor refund for a booking. Administrators use this for
// goodwill refunds; the default amount is whatever cancellation computed.
func (s *service) Refund(ctx context.Context, bookingID uuid.UUID, amount *decimal.Decimal, reason string) (*models.PaymentRefund, error) {
	booking, err := s.bookingsRepo.Get(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	if booking.PaymentIntentID == nil || *booking.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking was never paid")
	}

	payment, err := s.repo.GetByIntent(ctx, *booking.PaymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil || payment.Status != enums.PaymentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no settled payment to refund")
	}

	refundAmount := decimal.Zero
	switch {
	case amount != nil:
		refundAmount = *amount
	case booking.RefundAmount != nil:
		refundAmount = *booking.RefundAmount
	default:
		refundAmount = payment.Amount
	}
	if refundAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	remaining := payment.Amount.Sub(payment.RefundedAmount)
	if refundAmount.GreaterThan(remaining) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds remaining refundable amount").
			WithDetails(map[string]string{"remaining": remaining.String()})
	}

	record, err := s.executeRefund(ctx, payment, refundAmount, reason)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) issueRefund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	_, err := s.executeRefund(ctx, payment, amount, reason)
	return err
}

func (s *service) executeRefund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string) (*models.PaymentRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.StripePaymentIntentID),
		Amount:        stripe.Int64(toCents(amount)),
	}
	params.AddMetadata("booking_id", payment.BookingID.String())

	stripeRefund, err := s.callCreateRefund(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processing failed")
	}

	record, err := s.applyRefund(ctx, payment, stripeRefund.ID, amount, reason)
	if err != nil {
		return nil, err
	}
	tier := "partial"
	if amount.Equal(payment.Amount) {
		tier = "full"
	}
	s.metrics.IncRefundIssued(tier)
	return record, nil
}

// RecordProcessorRefund is the webhook path for refund events. It is a pure
// set-operation: replays collide with the unique refund ID and change nothing.
func (s *service) RecordProcessorRefund(ctx context.Context, intentID, refundID string, amount decimal.Decimal, reason string) error {
	if refundID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	payment, err := s.repo.GetByIntent(ctx, intentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil
	}
	_, err = s.applyRefund(ctx, payment, refundID, amount, reason)
	return err
}

// applyRefund persists the refund record, rolls the refunded total forward and
// flips the booking's payment summary to refunded. Inserting the refund row is
// the idempotency gate for everything downstream.
func (s *service) applyRefund(ctx context.Context, payment *models.Payment, refundID string, amount decimal.Decimal, reason string) (*models.PaymentRefund, error) {
	record := &models.PaymentRefund{
		PaymentID:      payment.ID,
		StripeRefundID: refundID,
		Amount:         amount,
	}
	if reason != "" {
		record.Reason = &reason
	}

	var inserted bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		inserted, err = repo.AppendRefund(ctx, record)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if err := repo.AddRefundedAmount(ctx, payment.ID, amount); err != nil {
			return err
		}
		return s.bookingsRepo.WithTx(tx).SetPaymentStatus(ctx, payment.BookingID, enums.BookingPaymentStatusRefunded)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	if inserted && s.notifier != nil {
		s.notifier.RefundProcessed(ctx, payment.BookingID, amount)
	}
	return record, nil
}

// HistoryResult is one page of a user's payments.
type HistoryResult struct {
	Payments []models.Payment `json:"payments"`
	Meta     pagination.Meta  `json:"meta"`
}

func (s *service) History(ctx context.Context, actor bookings.Actor, page pagination.Params) (*HistoryResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, total, err := s.repo.ListByUser(ctx, actor.UserID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return &HistoryResult{Payments: rows, Meta: pagination.NewMeta(page, total)}, nil
}

func (s *service) Get(ctx context.Context, actor bookings.Actor, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if !actor.IsAdmin() && payment.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

func (s *service) currency() enums.Currency {
	if parsed, err := enums.ParseCurrency(s.cfg.Currency); err == nil {
		return parsed
	}
	return enums.CurrencyUSD
}

func (s *service) processorTimeout() time.Duration {
	if s.cfg.ProcessorTimeout > 0 {
		return s.cfg.ProcessorTimeout
	}
	return defaultProcessorTimeout
}

func (s *service) callCreateIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.processorTimeout())
	defer cancel()
	started := time.Now()
	intent, err := s.stripe.CreateIntent(ctx, params)
	s.metrics.ObserveProcessorLatency(time.Since(started))
	return intent, err
}

func (s *service) callGetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.processorTimeout())
	defer cancel()
	started := time.Now()
	intent, err := s.stripe.GetIntent(ctx, id, &stripe.PaymentIntentParams{})
	s.metrics.ObserveProcessorLatency(time.Since(started))
	return intent, err
}

func (s *service) callCreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, s.processorTimeout())
	defer cancel()
	started := time.Now()
	stripeRefund, err := s.stripe.CreateRefund(ctx, params)
	s.metrics.ObserveProcessorLatency(time.Since(started))
	return stripeRefund, err
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(centsPerDollar).Round(0).IntPart()
}

// FromCents converts a processor amount back into decimal dollars.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(centsPerDollar)
}

func receiptURL(intent *stripe.PaymentIntent) string {
	if intent == nil || intent.LatestCharge == nil {
		return ""
	}
	return intent.LatestCharge.ReceiptURL
}
