package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mateoalvarez/carhive-backend/api/responses"
	"github.com/mateoalvarez/carhive-backend/api/validators"
	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/types"
)

type createBookingRequest struct {
	CarID           string                `json:"car_id" validate:"required,uuid4"`
	StartDate       string                `json:"start_date" validate:"required"`
	EndDate         string                `json:"end_date" validate:"required"`
	PickupLocation  *types.RentalLocation `json:"pickup_location,omitempty"`
	DropoffLocation *types.RentalLocation `json:"dropoff_location,omitempty"`
	Notes           string                `json:"notes,omitempty" validate:"max=1000"`
	DriverInfo      *types.DriverInfo     `json:"driver_info,omitempty"`
}

func (req createBookingRequest) toInput() (bookings.CreateInput, error) {
	carID, err := uuid.Parse(req.CarID)
	if err != nil {
		return bookings.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid car id")
	}
	start, err := validators.ParseDate("start_date", req.StartDate)
	if err != nil {
		return bookings.CreateInput{}, err
	}
	end, err := validators.ParseDate("end_date", req.EndDate)
	if err != nil {
		return bookings.CreateInput{}, err
	}
	return bookings.CreateInput{
		CarID:           carID,
		StartDate:       start,
		EndDate:         end,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		Notes:           strings.TrimSpace(req.Notes),
		DriverInfo:      req.DriverInfo,
	}, nil
}

// CreateBooking opens a pending reservation for the authenticated customer.
func CreateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

func bookingListParams(r *http.Request) (bookings.ListParams, error) {
	page, err := pageParams(r)
	if err != nil {
		return bookings.ListParams{}, err
	}
	params := bookings.ListParams{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Page:   page,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("car_id")); raw != "" {
		carID, err := uuid.Parse(raw)
		if err != nil {
			return bookings.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid car_id filter")
		}
		params.CarID = carID
	}
	// created_to is inclusive of its whole day.
	if params.CreatedFrom, err = validators.ParseQueryDate(r, "created_from"); err != nil {
		return bookings.ListParams{}, err
	}
	if params.CreatedTo, err = validators.ParseQueryDate(r, "created_to"); err != nil {
		return bookings.ListParams{}, err
	}
	return params, nil
}

// ListMyBookings pages through the caller's own bookings.
func ListMyBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := bookingListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminListBookings pages through every booking in the system.
func AdminListBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		params, err := bookingListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListAll(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetBooking fetches one booking, scoped to its owner or an admin.
func GetBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathID(chi.URLParam(r, "bookingId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

type updateBookingStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// UpdateBookingStatus drives the booking state machine.
func UpdateBookingStatus(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathID(chi.URLParam(r, "bookingId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateBookingStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseBookingStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		booking, err := svc.UpdateStatus(r.Context(), actor, id, target, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

type cancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelBooking cancels a booking and reports the refund owed.
func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathID(chi.URLParam(r, "bookingId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelBookingRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Cancel(r.Context(), actor, id, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
