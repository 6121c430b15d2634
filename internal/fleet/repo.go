package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

// Repository exposes persistence helpers for the fleet catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context, params listCarsParams) ([]models.Car, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Car, error)
	Create(ctx context.Context, car *models.Car) error
	Update(ctx context.Context, car *models.Car) error
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a fleet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listCarsParams struct {
	Category     *enums.CarCategory
	Make         string
	Model        string
	Location     string
	Transmission *enums.Transmission
	FuelType     *enums.FuelType
	MinSeats     int
	MaxSeats     int
	MinYear      int
	MaxYear      int
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Feature      string
	Search       string
	AvailFrom    *time.Time
	AvailTo      *time.Time
	Sort         enums.CarSort
	SortDesc     bool
	Page         pagination.Params
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) List(ctx context.Context, params listCarsParams) ([]models.Car, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Car{}).Where("is_active = ?", true)

	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.Make != "" {
		query = query.Where("LOWER(make) = LOWER(?)", params.Make)
	}
	if params.Model != "" {
		query = query.Where("LOWER(model) = LOWER(?)", params.Model)
	}
	if params.Location != "" {
		query = query.Where("LOWER(location) LIKE LOWER(?)", "%"+params.Location+"%")
	}
	if params.Transmission != nil {
		query = query.Where("transmission = ?", *params.Transmission)
	}
	if params.FuelType != nil {
		query = query.Where("fuel_type = ?", *params.FuelType)
	}
	if params.MinSeats > 0 {
		query = query.Where("seats >= ?", params.MinSeats)
	}
	if params.MaxSeats > 0 {
		query = query.Where("seats <= ?", params.MaxSeats)
	}
	if params.MinYear > 0 {
		query = query.Where("year >= ?", params.MinYear)
	}
	if params.MaxYear > 0 {
		query = query.Where("year <= ?", params.MaxYear)
	}
	if params.MinPrice != nil {
		query = query.Where("price_per_day >= ?", *params.MinPrice)
	}
	if params.MaxPrice != nil {
		query = query.Where("price_per_day <= ?", *params.MaxPrice)
	}
	if params.Feature != "" {
		query = query.Where("features LIKE ?", "%\""+params.Feature+"\"%")
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("LOWER(make) LIKE LOWER(?) OR LOWER(model) LIKE LOWER(?) OR LOWER(location) LIKE LOWER(?)", like, like, like)
	}
	if params.AvailFrom != nil && params.AvailTo != nil {
		query = query.Where(
			"NOT EXISTS (SELECT 1 FROM bookings b WHERE b.car_id = cars.id AND b.status IN ? AND b.start_date < ? AND ? < b.end_date)",
			enums.BlockingBookingStatuses(), *params.AvailTo, *params.AvailFrom,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page.Normalize()
	var cars []models.Car
	if err := query.
		Order(orderClause(params.Sort, params.SortDesc)).
		Limit(page.Limit).
		Offset(params.Page.Offset()).
		Find(&cars).Error; err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}

func orderClause(sort enums.CarSort, desc bool) string {
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	switch sort {
	case enums.CarSortPrice:
		return "price_per_day " + direction + ", id ASC"
	case enums.CarSortYear:
		return "year " + direction + ", id ASC"
	case enums.CarSortRating:
		return "rating " + direction + ", id ASC"
	case enums.CarSortName:
		return "make " + direction + ", model " + direction + ", id ASC"
	default:
		return "created_at DESC, id ASC"
	}
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	var car models.Car
	err := r.db.WithContext(ctx).First(&car, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (r *repositoryImpl) Create(ctx context.Context, car *models.Car) error {
	return r.db.WithContext(ctx).Create(car).Error
}

func (r *repositoryImpl) Update(ctx context.Context, car *models.Car) error {
	return r.db.WithContext(ctx).Save(car).Error
}

func (r *repositoryImpl) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Car{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumn("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
