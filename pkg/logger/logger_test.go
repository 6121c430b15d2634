package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := New(Options{
		ServiceName: "carhive-test",
		Level:       zerolog.DebugLevel,
		Output:      buf,
	})
	return logg, buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	return entry
}

func TestInfoCarriesServiceName(t *testing.T) {
	logg, buf := newTestLogger(t)

	logg.Info(context.Background(), "booking created")

	entry := decodeLine(t, buf)
	if entry["service"] != "carhive-test" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "booking created" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
}

func TestContextFieldsPropagate(t *testing.T) {
	logg, buf := newTestLogger(t)

	ctx := logg.WithRequestID(context.Background(), "req-123")
	ctx = logg.WithBookingID(ctx, "bkg-456")
	ctx = logg.WithFields(ctx, map[string]any{"car_id": "car-789"})

	logg.Info(ctx, "conflict check passed")

	entry := decodeLine(t, buf)
	if entry["request_id"] != "req-123" {
		t.Fatalf("expected request_id, got %v", entry["request_id"])
	}
	if entry["booking_id"] != "bkg-456" {
		t.Fatalf("expected booking_id, got %v", entry["booking_id"])
	}
	if entry["car_id"] != "car-789" {
		t.Fatalf("expected car_id, got %v", entry["car_id"])
	}
}

func TestContextFieldsDoNotLeakAcrossBranches(t *testing.T) {
	logg, buf := newTestLogger(t)

	base := logg.WithRequestID(context.Background(), "req-a")
	_ = logg.WithUserID(base, "user-b")

	logg.Info(base, "base only")

	entry := decodeLine(t, buf)
	if _, ok := entry["user_id"]; ok {
		t.Fatalf("user_id should not leak into sibling context")
	}
}

func TestErrorIncludesStack(t *testing.T) {
	logg, buf := newTestLogger(t)

	logg.Error(context.Background(), "payment capture failed", context.DeadlineExceeded)

	entry := decodeLine(t, buf)
	if entry["stack"] == nil || entry["stack"] == "" {
		t.Fatalf("expected stack trace on error log")
	}
	if entry["error"] != context.DeadlineExceeded.Error() {
		t.Fatalf("expected error field, got %v", entry["error"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: "WARN", want: zerolog.WarnLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "nonsense", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
