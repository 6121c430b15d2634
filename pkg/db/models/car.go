package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	"github.com/mateoalvarez/carhive-backend/pkg/types"
)

// Car represents a rentable fleet vehicle.
type Car struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Make         string             `gorm:"column:make;not null;index"`
	Model        string             `gorm:"column:model;not null"`
	Year         int                `gorm:"column:year;not null"`
	Category     enums.CarCategory  `gorm:"column:category;type:text;not null;index"`
	Transmission enums.Transmission `gorm:"column:transmission;type:text;not null"`
	FuelType     enums.FuelType     `gorm:"column:fuel_type;type:text;not null"`
	Seats        int                `gorm:"column:seats;not null;default:5"`
	PricePerDay  decimal.Decimal    `gorm:"column:price_per_day;type:numeric(10,2);not null"`
	LicensePlate string             `gorm:"column:license_plate;not null;uniqueIndex"`
	VIN          string             `gorm:"column:vin;type:varchar(17);not null;uniqueIndex"`
	Location     string             `gorm:"column:location;not null;default:''"`
	Features     types.StringList   `gorm:"column:features;type:text;serializer:json"`
	Rating       decimal.Decimal    `gorm:"column:rating;type:numeric(3,2);not null;default:0"`
	RatingCount  int                `gorm:"column:rating_count;not null;default:0"`
	ImageURL     *string            `gorm:"column:image_url"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
