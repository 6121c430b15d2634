package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	"github.com/mateoalvarez/carhive-backend/pkg/types"
)

// Booking represents a customer's reservation of a car over a date range.
//
// Status and PaymentStatus advance independently: Status tracks the rental
// lifecycle, PaymentStatus tracks money movement. Only confirmed and active
// bookings block a car's calendar.
type Booking struct {
	ID                 uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	CarID              uuid.UUID                  `gorm:"column:car_id;type:uuid;not null;index:idx_bookings_car_dates"`
	StartDate          time.Time                  `gorm:"column:start_date;not null;index:idx_bookings_car_dates"`
	EndDate            time.Time                  `gorm:"column:end_date;not null"`
	Status             enums.BookingStatus        `gorm:"column:status;type:text;not null;default:'pending';index"`
	PaymentStatus      enums.BookingPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	TotalDays          int                        `gorm:"column:total_days;not null"`
	DailyRate          decimal.Decimal            `gorm:"column:daily_rate;type:numeric(10,2);not null"`
	Subtotal           decimal.Decimal            `gorm:"column:subtotal;type:numeric(10,2);not null"`
	Taxes              decimal.Decimal            `gorm:"column:taxes;type:numeric(10,2);not null"`
	Fees               decimal.Decimal            `gorm:"column:fees;type:numeric(10,2);not null"`
	TotalPrice         decimal.Decimal            `gorm:"column:total_price;type:numeric(10,2);not null"`
	PickupLocation     *types.RentalLocation      `gorm:"column:pickup_location;type:jsonb;serializer:json"`
	DropoffLocation    *types.RentalLocation      `gorm:"column:dropoff_location;type:jsonb;serializer:json"`
	Notes              string                     `gorm:"column:notes"`
	DriverInfo         *types.DriverInfo          `gorm:"column:driver_info;type:jsonb;serializer:json"`
	PaymentIntentID    *string                    `gorm:"column:payment_intent_id;uniqueIndex"`
	CancelledAt        *time.Time                 `gorm:"column:cancelled_at"`
	CancellationReason *string                    `gorm:"column:cancellation_reason"`
	RefundAmount       *decimal.Decimal           `gorm:"column:refund_amount;type:numeric(10,2)"`
	Car                *Car                       `gorm:"foreignKey:CarID"`
	User               *User                      `gorm:"foreignKey:UserID"`
	CreatedAt          time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
