package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:cron_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

func seedCar(t *testing.T, conn *gorm.DB) *models.Car {
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
	if err := conn.Create(car).Error; err != nil {
		t.Fatalf("failed to seed car: %v", err)
	}
	return car
}

func seedBooking(t *testing.T, conn *gorm.DB, carID uuid.UUID, status enums.BookingStatus, start, end time.Time) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		UserID:        uuid.New(),
		CarID:         carID,
		StartDate:     start,
		EndDate:       end,
		Status:        status,
		PaymentStatus: enums.BookingPaymentStatusPending,
		TotalDays:     1,
		DailyRate:     decimal.NewFromInt(45),
		Subtotal:      decimal.NewFromInt(45),
		Taxes:         decimal.NewFromFloat(3.60),
		Fees:          decimal.NewFromInt(25),
		TotalPrice:    decimal.NewFromFloat(73.60),
	}
	if err := conn.Create(booking).Error; err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}
	return booking
}

func bookingStatus(t *testing.T, conn *gorm.DB, id uuid.UUID) enums.BookingStatus {
	t.Helper()
	var row models.Booking
	if err := conn.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload booking: %v", err)
	}
	return row.Status
}

func TestBookingSweepJob(t *testing.T) {
	conn := newTestDB(t)
	svc, err := bookings.NewService(bookings.NewRepository(conn), fleet.NewRepository(conn), nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to build bookings service: %v", err)
	}

	now := time.Now().UTC()
	car := seedCar(t, conn)
	stalePending := seedBooking(t, conn, car.ID, enums.BookingStatusPending, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	endedActive := seedBooking(t, conn, car.ID, enums.BookingStatusActive, now.Add(-72*time.Hour), now.Add(-time.Hour))
	futurePending := seedBooking(t, conn, car.ID, enums.BookingStatusPending, now.Add(48*time.Hour), now.Add(96*time.Hour))
	runningActive := seedBooking(t, conn, car.ID, enums.BookingStatusActive, now.Add(-24*time.Hour), now.Add(24*time.Hour))

	job, err := NewBookingSweepJob(BookingSweepJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Bookings: svc,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to build job: %v", err)
	}
	if job.Name() != "booking-sweep" {
		t.Errorf("unexpected job name %q", job.Name())
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("job run failed: %v", err)
	}

	if got := bookingStatus(t, conn, stalePending.ID); got != enums.BookingStatusCancelled {
		t.Errorf("stale pending booking should be cancelled, got %s", got)
	}
	var cancelled models.Booking
	if err := conn.First(&cancelled, "id = ?", stalePending.ID).Error; err != nil {
		t.Fatalf("failed to reload cancelled booking: %v", err)
	}
	if cancelled.RefundAmount == nil || !cancelled.RefundAmount.IsZero() {
		t.Errorf("expired unpaid booking must carry a zero refund, got %v", cancelled.RefundAmount)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason == "" {
		t.Error("expired booking should record a cancellation reason")
	}

	if got := bookingStatus(t, conn, endedActive.ID); got != enums.BookingStatusCompleted {
		t.Errorf("ended active booking should be completed, got %s", got)
	}
	if got := bookingStatus(t, conn, futurePending.ID); got != enums.BookingStatusPending {
		t.Errorf("future pending booking must be untouched, got %s", got)
	}
	if got := bookingStatus(t, conn, runningActive.ID); got != enums.BookingStatusActive {
		t.Errorf("running active booking must be untouched, got %s", got)
	}
}

func TestBookingSweepJobIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	svc, err := bookings.NewService(bookings.NewRepository(conn), fleet.NewRepository(conn), nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to build bookings service: %v", err)
	}

	now := time.Now().UTC()
	car := seedCar(t, conn)
	stale := seedBooking(t, conn, car.ID, enums.BookingStatusPending, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	first, err := svc.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if first.Expired != 1 {
		t.Errorf("expected 1 expired booking, got %d", first.Expired)
	}

	second, err := svc.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.Expired != 0 || second.Completed != 0 {
		t.Errorf("second sweep must be a no-op, got %+v", second)
	}
	if got := bookingStatus(t, conn, stale.ID); got != enums.BookingStatusCancelled {
		t.Errorf("booking should stay cancelled, got %s", got)
	}
}
