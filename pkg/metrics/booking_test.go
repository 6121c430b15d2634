package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.IncBookingCreated()
	m.IncBookingCreated()
	m.IncBookingCancelled("customer")
	m.IncBookingConflict()
	m.IncPaymentConfirmed()
	m.IncRefundIssued("full")
	m.IncRefundIssued("")
	m.IncWebhookEvent("payment_intent.succeeded", "applied")
	m.ObserveProcessorLatency(150 * time.Millisecond)

	if got := testutil.ToFloat64(m.bookingsCreated); got != 2 {
		t.Fatalf("expected 2 bookings created, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookingsCancelled.WithLabelValues("customer")); got != 1 {
		t.Fatalf("expected 1 customer cancellation, got %v", got)
	}
	if got := testutil.ToFloat64(m.refundsIssued.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected empty tier to normalize to unknown, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("payment_intent.succeeded", "applied")); got != 1 {
		t.Fatalf("expected 1 webhook event, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.IncBookingCreated()
	m.IncBookingCancelled("admin")
	m.IncBookingConflict()
	m.IncPaymentConfirmed()
	m.IncRefundIssued("half")
	m.IncWebhookEvent("charge.refunded", "skipped")
	m.ObserveProcessorLatency(time.Second)

	empty := NewBookingMetrics(nil)
	empty.IncBookingCreated()
}
