package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:fleet_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Car{}, &models.Booking{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), nil)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc, conn
}

func seedCar(t *testing.T, conn *gorm.DB, mutate func(*models.Car)) *models.Car {
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
		Features:     []string{"gps", "bluetooth"},
		IsActive:     true,
	}
	if mutate != nil {
		mutate(car)
	}
	inactive := !car.IsActive
	if err := conn.Create(car).Error; err != nil {
		t.Fatalf("failed to seed car: %v", err)
	}
	// GORM skips zero-valued fields that carry a schema default on insert, so
	// an inactive seed must be persisted explicitly.
	if inactive {
		car.IsActive = false
		if err := conn.Model(car).UpdateColumn("is_active", false).Error; err != nil {
			t.Fatalf("failed to deactivate seeded car: %v", err)
		}
	}
	return car
}

func date(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		t.Fatalf("bad date %s: %v", value, err)
	}
	return parsed
}

func TestListAvailableCarsFilters(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	seedCar(t, conn, nil)
	seedCar(t, conn, func(c *models.Car) {
		c.Make = "Tesla"
		c.Model = "Model 3"
		c.Category = enums.CarCategoryElectric
		c.FuelType = enums.FuelTypeElectric
		c.PricePerDay = decimal.NewFromInt(120)
		c.Location = "Los Angeles"
		c.Seats = 7
	})
	seedCar(t, conn, func(c *models.Car) {
		c.IsActive = false
	})

	result, err := svc.ListAvailableCars(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 2 {
		t.Fatalf("expected 2 active cars, got %d", len(result.Cars))
	}

	result, err = svc.ListAvailableCars(ctx, ListParams{Category: "electric"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 || result.Cars[0].Make != "Tesla" {
		t.Fatalf("expected only the Tesla, got %d cars", len(result.Cars))
	}

	maxPrice := decimal.NewFromInt(50)
	result, err = svc.ListAvailableCars(ctx, ListParams{MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 || result.Cars[0].Make != "Toyota" {
		t.Fatalf("expected only the Toyota under $50, got %d cars", len(result.Cars))
	}

	result, err = svc.ListAvailableCars(ctx, ListParams{MinSeats: 6})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 || result.Cars[0].Make != "Tesla" {
		t.Fatalf("expected only the 7-seater, got %d cars", len(result.Cars))
	}

	result, err = svc.ListAvailableCars(ctx, ListParams{MaxSeats: 5})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 || result.Cars[0].Make != "Toyota" {
		t.Fatalf("expected only the 5-seater, got %d cars", len(result.Cars))
	}

	result, err = svc.ListAvailableCars(ctx, ListParams{Feature: "gps"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 2 {
		t.Fatalf("expected 2 cars with gps, got %d", len(result.Cars))
	}

	if _, err := svc.ListAvailableCars(ctx, ListParams{Category: "spaceship"}); pkgerrors.As(err) == nil {
		t.Fatal("expected validation error for unknown category")
	}
}

func TestListAvailableCarsExcludesBookedDateRange(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	booked := seedCar(t, conn, nil)
	free := seedCar(t, conn, func(c *models.Car) { c.Make = "Honda"; c.Model = "Civic" })

	booking := &models.Booking{
		UserID:        uuid.New(),
		CarID:         booked.ID,
		StartDate:     date(t, "2026-09-10"),
		EndDate:       date(t, "2026-09-15"),
		Status:        enums.BookingStatusConfirmed,
		PaymentStatus: enums.BookingPaymentStatusCompleted,
		TotalDays:     5,
		DailyRate:     decimal.NewFromInt(45),
		Subtotal:      decimal.NewFromInt(225),
		Taxes:         decimal.NewFromInt(18),
		Fees:          decimal.NewFromInt(25),
		TotalPrice:    decimal.NewFromInt(268),
	}
	if err := conn.Create(booking).Error; err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}

	from := date(t, "2026-09-12")
	to := date(t, "2026-09-14")
	result, err := svc.ListAvailableCars(ctx, ListParams{AvailFrom: &from, AvailTo: &to})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 || result.Cars[0].ID != free.ID {
		t.Fatalf("expected only the free car for overlapping range")
	}

	// Adjacent range: booking ends on the 15th, a rental starting that day fits.
	from = date(t, "2026-09-15")
	to = date(t, "2026-09-18")
	result, err = svc.ListAvailableCars(ctx, ListParams{AvailFrom: &from, AvailTo: &to})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 2 {
		t.Fatalf("expected both cars for adjacent range, got %d", len(result.Cars))
	}
}

func TestListAvailableCarsPendingBookingDoesNotBlock(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	car := seedCar(t, conn, nil)
	booking := &models.Booking{
		UserID:        uuid.New(),
		CarID:         car.ID,
		StartDate:     date(t, "2026-09-10"),
		EndDate:       date(t, "2026-09-15"),
		Status:        enums.BookingStatusPending,
		PaymentStatus: enums.BookingPaymentStatusPending,
		TotalDays:     5,
		DailyRate:     decimal.NewFromInt(45),
		Subtotal:      decimal.NewFromInt(225),
		Taxes:         decimal.NewFromInt(18),
		Fees:          decimal.NewFromInt(25),
		TotalPrice:    decimal.NewFromInt(268),
	}
	if err := conn.Create(booking).Error; err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}

	from := date(t, "2026-09-11")
	to := date(t, "2026-09-12")
	result, err := svc.ListAvailableCars(ctx, ListParams{AvailFrom: &from, AvailTo: &to})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 {
		t.Fatalf("pending booking should not block availability")
	}
}

func TestListAvailableCarsSortAndPaging(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	seedCar(t, conn, func(c *models.Car) { c.PricePerDay = decimal.NewFromInt(90) })
	seedCar(t, conn, func(c *models.Car) { c.PricePerDay = decimal.NewFromInt(30) })
	seedCar(t, conn, func(c *models.Car) { c.PricePerDay = decimal.NewFromInt(60) })

	result, err := svc.ListAvailableCars(ctx, ListParams{
		Sort: "price",
		Page: pagination.Params{Page: 1, Limit: 2},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 2 {
		t.Fatalf("expected 2 cars on page 1, got %d", len(result.Cars))
	}
	if !result.Cars[0].PricePerDay.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected cheapest car first, got %s", result.Cars[0].PricePerDay)
	}
	if result.Meta.Total != 3 || result.Meta.TotalPages != 2 {
		t.Fatalf("unexpected meta %+v", result.Meta)
	}

	result, err = svc.ListAvailableCars(ctx, ListParams{
		Sort: "price",
		Page: pagination.Params{Page: 2, Limit: 2},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 1 || !result.Cars[0].PricePerDay.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected most expensive car on page 2")
	}
}

func TestGetCar(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	car := seedCar(t, conn, nil)

	got, err := svc.GetCar(ctx, car.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != car.ID {
		t.Fatalf("expected car %s, got %s", car.ID, got.ID)
	}

	_, err = svc.GetCar(ctx, uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateAndDeactivateCar(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	car, err := svc.CreateCar(ctx, CreateCarInput{
		Make:         "BMW",
		Model:        "M4",
		Year:         2024,
		Category:     enums.CarCategorySports,
		Transmission: enums.TransmissionManual,
		FuelType:     enums.FuelTypeGasoline,
		Seats:        4,
		PricePerDay:  decimal.NewFromInt(210),
		LicensePlate: "SPD-0001",
		VIN:          "WBS33AZ09RCK00001",
		Location:     "Miami",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.DeactivateCar(ctx, car.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	result, err := svc.ListAvailableCars(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Cars) != 0 {
		t.Fatalf("deactivated car should not be listed")
	}

	err = svc.DeactivateCar(ctx, car.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found on second deactivate, got %v", err)
	}

	if _, err := svc.CreateCar(ctx, CreateCarInput{
		Make:         "BMW",
		Model:        "M4",
		Year:         2024,
		Category:     enums.CarCategorySports,
		Transmission: enums.TransmissionManual,
		FuelType:     enums.FuelTypeGasoline,
		Seats:        1,
		PricePerDay:  decimal.NewFromInt(210),
		LicensePlate: "SPD-0002",
		VIN:          "WBS33AZ09RCK00002",
	}); pkgerrors.As(err) == nil {
		t.Fatal("expected validation error for single seat car")
	}
}
