package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

// Service defines fleet catalog operations.
type Service interface {
	ListAvailableCars(ctx context.Context, params ListParams) (*ListResult, error)
	GetCar(ctx context.Context, id uuid.UUID) (*models.Car, error)
	CreateCar(ctx context.Context, input CreateCarInput) (*models.Car, error)
	UpdateCar(ctx context.Context, id uuid.UUID, input UpdateCarInput) (*models.Car, error)
	DeactivateCar(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires fleet catalog dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fleet repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// ListParams carries catalog filters from the transport layer.
type ListParams struct {
	Category     string
	Make         string
	Model        string
	Location     string
	Transmission string
	FuelType     string
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
	Sort         string
	SortDesc     bool
	Page         pagination.Params
}

// ListResult wraps one catalog page plus its metadata.
type ListResult struct {
	Cars []models.Car    `json:"cars"`
	Meta pagination.Meta `json:"meta"`
}

func (s *service) ListAvailableCars(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listCarsParams{
		Make:     params.Make,
		Model:    params.Model,
		Location: params.Location,
		MinSeats: params.MinSeats,
		MaxSeats: params.MaxSeats,
		MinYear:  params.MinYear,
		MaxYear:  params.MaxYear,
		MinPrice: params.MinPrice,
		MaxPrice: params.MaxPrice,
		Feature:  params.Feature,
		Search:   params.Search,
		SortDesc: params.SortDesc,
		Page:     params.Page.Normalize(),
	}

	if params.Category != "" {
		category, err := enums.ParseCarCategory(params.Category)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
		}
		query.Category = &category
	}
	if params.Transmission != "" {
		transmission, err := enums.ParseTransmission(params.Transmission)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transmission")
		}
		query.Transmission = &transmission
	}
	if params.FuelType != "" {
		fuel, err := enums.ParseFuelType(params.FuelType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fuel type")
		}
		query.FuelType = &fuel
	}
	if params.Sort != "" {
		sort, err := enums.ParseCarSort(params.Sort)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
		}
		query.Sort = sort
	}
	if (params.AvailFrom == nil) != (params.AvailTo == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "availability filter requires both start and end dates")
	}
	if params.AvailFrom != nil && params.AvailTo != nil {
		if !params.AvailFrom.Before(*params.AvailTo) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "availability end date must be after start date")
		}
		query.AvailFrom = params.AvailFrom
		query.AvailTo = params.AvailTo
	}

	cars, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cars")
	}

	return &ListResult{
		Cars: cars,
		Meta: pagination.NewMeta(params.Page, total),
	}, nil
}

func (s *service) GetCar(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "car id required")
	}
	car, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load car")
	}
	if car == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "car not found")
	}
	return car, nil
}

// CreateCarInput is the typed payload for admin car creation.
type CreateCarInput struct {
	Make         string
	Model        string
	Year         int
	Category     enums.CarCategory
	Transmission enums.Transmission
	FuelType     enums.FuelType
	Seats        int
	PricePerDay  decimal.Decimal
	LicensePlate string
	VIN          string
	Location     string
	Features     []string
	ImageURL     *string
}

func (s *service) CreateCar(ctx context.Context, input CreateCarInput) (*models.Car, error) {
	if !input.Category.IsValid() || !input.Transmission.IsValid() || !input.FuelType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid car attributes")
	}
	if input.Seats < 2 || input.Seats > 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seats must be between 2 and 8")
	}
	if input.PricePerDay.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price per day cannot be negative")
	}
	if len(input.VIN) != 17 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vin must be 17 characters")
	}
	if input.LicensePlate == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license plate required")
	}

	car := &models.Car{
		Make:         input.Make,
		Model:        input.Model,
		Year:         input.Year,
		Category:     input.Category,
		Transmission: input.Transmission,
		FuelType:     input.FuelType,
		Seats:        input.Seats,
		PricePerDay:  input.PricePerDay,
		LicensePlate: input.LicensePlate,
		VIN:          input.VIN,
		Location:     input.Location,
		Features:     input.Features,
		ImageURL:     input.ImageURL,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, car); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create car")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "car_id", car.ID.String()), "car created")
	}
	return car, nil
}

// UpdateCarInput lists the mutable car fields. Nil pointers leave fields untouched.
type UpdateCarInput struct {
	PricePerDay *decimal.Decimal
	Location    *string
	Features    []string
	ImageURL    *string
	IsActive    *bool
}

func (s *service) UpdateCar(ctx context.Context, id uuid.UUID, input UpdateCarInput) (*models.Car, error) {
	car, err := s.GetCar(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.PricePerDay != nil {
		if input.PricePerDay.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price per day cannot be negative")
		}
		car.PricePerDay = *input.PricePerDay
	}
	if input.Location != nil {
		car.Location = *input.Location
	}
	if input.Features != nil {
		car.Features = input.Features
	}
	if input.ImageURL != nil {
		car.ImageURL = input.ImageURL
	}
	if input.IsActive != nil {
		car.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, car); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update car")
	}
	return car, nil
}

func (s *service) DeactivateCar(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "car id required")
	}
	done, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate car")
	}
	if !done {
		return pkgerrors.New(pkgerrors.CodeNotFound, "car not found")
	}
	return nil
}
