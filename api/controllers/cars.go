package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/api/responses"
	"github.com/mateoalvarez/carhive-backend/api/validators"
	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
)

// ListCars serves the public catalog with filtering, sorting and paging.
func ListCars(svc fleet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fleet service unavailable"))
			return
		}

		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := fleet.ListParams{
			Category:     r.URL.Query().Get("category"),
			Make:         r.URL.Query().Get("make"),
			Model:        r.URL.Query().Get("model"),
			Location:     r.URL.Query().Get("location"),
			Transmission: r.URL.Query().Get("transmission"),
			FuelType:     r.URL.Query().Get("fuel_type"),
			Feature:      r.URL.Query().Get("feature"),
			Search:       r.URL.Query().Get("search"),
			Sort:         r.URL.Query().Get("sort"),
			SortDesc:     strings.EqualFold(r.URL.Query().Get("order"), "desc"),
			Page:         page,
		}

		if params.MinSeats, err = validators.ParseQueryInt(r, "min_seats", 0, 0, 8); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.MaxSeats, err = validators.ParseQueryInt(r, "max_seats", 0, 0, 8); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.MinYear, err = validators.ParseQueryInt(r, "min_year", 0, 0, 3000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.MaxYear, err = validators.ParseQueryInt(r, "max_year", 0, 0, 3000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.MinPrice, err = parseQueryDecimal(r, "min_price"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.MaxPrice, err = parseQueryDecimal(r, "max_price"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.AvailFrom, err = validators.ParseQueryDate(r, "start_date"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.AvailTo, err = validators.ParseQueryDate(r, "end_date"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListAvailableCars(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetCar serves one catalog entry.
func GetCar(svc fleet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fleet service unavailable"))
			return
		}
		id, err := pathID(chi.URLParam(r, "carId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		car, err := svc.GetCar(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, car)
	}
}

type createCarRequest struct {
	Make         string   `json:"make" validate:"required"`
	Model        string   `json:"model" validate:"required"`
	Year         int      `json:"year" validate:"required,min=1990"`
	Category     string   `json:"category" validate:"required"`
	Transmission string   `json:"transmission" validate:"required"`
	FuelType     string   `json:"fuel_type" validate:"required"`
	Seats        int      `json:"seats" validate:"required,min=2,max=8"`
	PricePerDay  string   `json:"price_per_day" validate:"required"`
	LicensePlate string   `json:"license_plate" validate:"required"`
	VIN          string   `json:"vin" validate:"required,len=17"`
	Location     string   `json:"location" validate:"required"`
	Features     []string `json:"features,omitempty"`
	ImageURL     *string  `json:"image_url,omitempty"`
}

func (req createCarRequest) toInput() (fleet.CreateCarInput, error) {
	category, err := enums.ParseCarCategory(strings.TrimSpace(req.Category))
	if err != nil {
		return fleet.CreateCarInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
	}
	transmission, err := enums.ParseTransmission(strings.TrimSpace(req.Transmission))
	if err != nil {
		return fleet.CreateCarInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transmission")
	}
	fuel, err := enums.ParseFuelType(strings.TrimSpace(req.FuelType))
	if err != nil {
		return fleet.CreateCarInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fuel type")
	}
	price, err := decimal.NewFromString(req.PricePerDay)
	if err != nil {
		return fleet.CreateCarInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	return fleet.CreateCarInput{
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		Category:     category,
		Transmission: transmission,
		FuelType:     fuel,
		Seats:        req.Seats,
		PricePerDay:  price,
		LicensePlate: req.LicensePlate,
		VIN:          req.VIN,
		Location:     req.Location,
		Features:     req.Features,
		ImageURL:     req.ImageURL,
	}, nil
}

// AdminCreateCar adds a car to the fleet.
func AdminCreateCar(svc fleet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fleet service unavailable"))
			return
		}

		var payload createCarRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		car, err := svc.CreateCar(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, car)
	}
}

type updateCarRequest struct {
	PricePerDay *string  `json:"price_per_day,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Features    []string `json:"features,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// AdminUpdateCar patches mutable car fields.
func AdminUpdateCar(svc fleet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fleet service unavailable"))
			return
		}
		id, err := pathID(chi.URLParam(r, "carId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCarRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := fleet.UpdateCarInput{
			Location: payload.Location,
			Features: payload.Features,
			ImageURL: payload.ImageURL,
			IsActive: payload.IsActive,
		}
		if payload.PricePerDay != nil {
			price, err := decimal.NewFromString(*payload.PricePerDay)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price"))
				return
			}
			input.PricePerDay = &price
		}

		car, err := svc.UpdateCar(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, car)
	}
}

// AdminDeactivateCar removes a car from the bookable catalog.
func AdminDeactivateCar(svc fleet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fleet service unavailable"))
			return
		}
		id, err := pathID(chi.URLParam(r, "carId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeactivateCar(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

func parseQueryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key)
	}
	return &value, nil
}
