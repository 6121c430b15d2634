package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics records counters for the booking and payment pipeline.
type BookingMetrics struct {
	bookingsCreated   prometheus.Counter
	bookingsCancelled *prometheus.CounterVec
	bookingConflicts  prometheus.Counter
	paymentsConfirmed prometheus.Counter
	refundsIssued     *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	processorLatency  prometheus.Histogram
}

// NewBookingMetrics registers the pipeline metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	bookingsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Bookings created in pending state.",
	})
	bookingsCancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Bookings cancelled, labelled by actor.",
	}, []string{"actor"})
	bookingConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_conflicts_total",
		Help: "Booking attempts rejected because the dates overlap.",
	})
	paymentsConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Payments confirmed against the processor.",
	})
	refundsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_issued_total",
		Help: "Refunds issued, labelled by refund tier.",
	}, []string{"tier"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processor webhook events, labelled by type and outcome.",
	}, []string{"type", "outcome"})
	processorLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processor_latency_seconds",
		Help:    "Latency of payment processor calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(
		bookingsCreated,
		bookingsCancelled,
		bookingConflicts,
		paymentsConfirmed,
		refundsIssued,
		webhookEvents,
		processorLatency,
	)
	return &BookingMetrics{
		bookingsCreated:   bookingsCreated,
		bookingsCancelled: bookingsCancelled,
		bookingConflicts:  bookingConflicts,
		paymentsConfirmed: paymentsConfirmed,
		refundsIssued:     refundsIssued,
		webhookEvents:     webhookEvents,
		processorLatency:  processorLatency,
	}
}

// IncBookingCreated counts a newly created booking.
func (m *BookingMetrics) IncBookingCreated() {
	if m == nil || m.bookingsCreated == nil {
		return
	}
	m.bookingsCreated.Inc()
}

// IncBookingCancelled counts a cancellation by the given actor.
func (m *BookingMetrics) IncBookingCancelled(actor string) {
	if m == nil || m.bookingsCancelled == nil {
		return
	}
	m.bookingsCancelled.WithLabelValues(normalizeLabel(actor)).Inc()
}

// IncBookingConflict counts a rejected overlapping booking attempt.
func (m *BookingMetrics) IncBookingConflict() {
	if m == nil || m.bookingConflicts == nil {
		return
	}
	m.bookingConflicts.Inc()
}

// IncPaymentConfirmed counts a confirmed payment.
func (m *BookingMetrics) IncPaymentConfirmed() {
	if m == nil || m.paymentsConfirmed == nil {
		return
	}
	m.paymentsConfirmed.Inc()
}

// IncRefundIssued counts a refund in the given tier (full, half, none).
func (m *BookingMetrics) IncRefundIssued(tier string) {
	if m == nil || m.refundsIssued == nil {
		return
	}
	m.refundsIssued.WithLabelValues(normalizeLabel(tier)).Inc()
}

// IncWebhookEvent counts a webhook delivery by type and outcome.
func (m *BookingMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveProcessorLatency records one payment processor round trip.
func (m *BookingMetrics) ObserveProcessorLatency(d time.Duration) {
	if m == nil || m.processorLatency == nil {
		return
	}
	m.processorLatency.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
