package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/mateoalvarez/carhive-backend/internal/payments"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/metrics"
)

const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

type ServiceParams struct {
	Payments payments.Service
	Metrics  *metrics.BookingMetrics
	Logger   *logger.Logger
}

// Service routes verified Stripe events into the payment coordinator.
type Service struct {
	payments payments.Service
	metrics  *metrics.BookingMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments service required")
	}
	return &Service{
		payments: params.Payments,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent dispatches one deduplicated event. Unknown event types are
// acknowledged without action so new Stripe event types never break delivery.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var err error
	outcome := outcomeProcessed
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		err = s.handleIntentSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		err = s.handleIntentFailed(ctx, event)
	case stripe.EventTypeRefundCreated, stripe.EventTypeChargeRefunded:
		err = s.handleRefund(ctx, event)
	default:
		outcome = outcomeIgnored
	}
	if err != nil {
		outcome = outcomeFailed
	}

	s.metrics.IncWebhookEvent(string(event.Type), outcome)
	if s.logg != nil {
		ctx := s.logg.WithFields(ctx, map[string]any{
			"event_id":   event.ID,
			"event_type": string(event.Type),
			"outcome":    outcome,
		})
		if err != nil {
			s.logg.Error(ctx, "webhook.event", err)
		} else {
			s.logg.Info(ctx, "webhook.event")
		}
	}
	return err
}

func (s *Service) handleIntentSucceeded(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	return s.payments.HandleIntentSucceeded(ctx, &intent)
}

func (s *Service) handleIntentFailed(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}
	return s.payments.HandleIntentFailed(ctx, intent.ID, reason)
}

func (s *Service) handleRefund(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeRefundCreated:
		var refund stripe.Refund
		if err := json.Unmarshal(event.Data.Raw, &refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode refund event")
		}
		if refund.PaymentIntent == nil {
			return nil
		}
		return s.payments.RecordProcessorRefund(ctx,
			refund.PaymentIntent.ID, refund.ID, payments.FromCents(refund.Amount), string(refund.Reason))
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge event")
		}
		if charge.PaymentIntent == nil || charge.Refunds == nil {
			return nil
		}
		for _, refund := range charge.Refunds.Data {
			if refund == nil {
				continue
			}
			if err := s.payments.RecordProcessorRefund(ctx,
				charge.PaymentIntent.ID, refund.ID, payments.FromCents(refund.Amount), string(refund.Reason)); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
