package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
)

const defaultTopCarsLimit = 5

// Overview is the admin dashboard snapshot.
type Overview struct {
	BookingsByStatus map[string]int64 `json:"bookings_by_status"`
	Revenue          RevenueSummary   `json:"revenue"`
	TopCars          []CarBookings    `json:"top_cars"`
	ActiveCars       int64            `json:"active_cars"`
}

// RevenueSummary aggregates settled payment volume.
type RevenueSummary struct {
	Gross    decimal.Decimal `json:"gross"`
	Refunded decimal.Decimal `json:"refunded"`
	Net      decimal.Decimal `json:"net"`
}

// CarBookings counts confirmed demand per car.
type CarBookings struct {
	CarID    uuid.UUID `json:"car_id"`
	Make     string    `json:"make"`
	Model    string    `json:"model"`
	Bookings int64     `json:"bookings"`
}

// Service provides booking and revenue reports for administrators.
type Service interface {
	Overview(ctx context.Context) (*Overview, error)
}

type service struct {
	db *gorm.DB
}

// NewService builds an analytics service over the transactional store.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database required")
	}
	return &service{db: db}, nil
}

func (s *service) Overview(ctx context.Context) (*Overview, error) {
	counts, err := s.bookingsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bookings")
	}
	revenue, err := s.revenue(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate revenue")
	}
	topCars, err := s.topCars(ctx, defaultTopCarsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rank cars")
	}

	var activeCars int64
	if err := s.db.WithContext(ctx).
		Model(&models.Car{}).
		Where("is_active = ?", true).
		Count(&activeCars).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cars")
	}

	return &Overview{
		BookingsByStatus: counts,
		Revenue:          revenue,
		TopCars:          topCars,
		ActiveCars:       activeCars,
	}, nil
}

func (s *service) bookingsByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(enums.BookingStatuses()))
	for _, status := range enums.BookingStatuses() {
		counts[status.String()] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

func (s *service) revenue(ctx context.Context) (RevenueSummary, error) {
	type row struct {
		Gross    decimal.Decimal
		Refunded decimal.Decimal
	}
	var totals row
	if err := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) AS gross, COALESCE(SUM(refunded_amount), 0) AS refunded").
		Where("status = ?", enums.PaymentStatusSucceeded).
		Scan(&totals).Error; err != nil {
		return RevenueSummary{}, err
	}
	return RevenueSummary{
		Gross:    totals.Gross,
		Refunded: totals.Refunded,
		Net:      totals.Gross.Sub(totals.Refunded),
	}, nil
}

func (s *service) topCars(ctx context.Context, limit int) ([]CarBookings, error) {
	var rows []CarBookings
	err := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("bookings.car_id, cars.make, cars.model, COUNT(*) AS bookings").
		Joins("JOIN cars ON cars.id = bookings.car_id").
		Where("bookings.status IN ?", enums.BlockingBookingStatuses()).
		Group("bookings.car_id, cars.make, cars.model").
		Order("COUNT(*) DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
