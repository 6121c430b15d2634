package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/internal/notifications"
	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/metrics"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
	"github.com/mateoalvarez/carhive-backend/pkg/types"
)

const defaultCancellationReason = "No reason provided"

// Actor identifies the authenticated caller for authorization decisions.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// IsAdmin reports whether the actor holds administrative privilege.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Service drives the booking lifecycle: creation, listing, the status state
// machine and cancellation refunds.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateInput) (*models.Booking, error)
	List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error)
	ListAll(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, target enums.BookingStatus, reason string) (*models.Booking, error)
	Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*CancelResult, error)
	ClaimConfirmation(ctx context.Context, id uuid.UUID) (*ConfirmOutcome, error)
	Sweep(ctx context.Context, now time.Time) (*SweepResult, error)
}

type service struct {
	repo     Repository
	cars     fleet.Repository
	notifier notifications.Notifier
	metrics  *metrics.BookingMetrics
	logg     *logger.Logger
}

// NewService wires booking engine dependencies.
func NewService(repo Repository, cars fleet.Repository, notifier notifications.Notifier, m *metrics.BookingMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bookings repository required")
	}
	if cars == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fleet repository required")
	}
	return &service{
		repo:     repo,
		cars:     cars,
		notifier: notifier,
		metrics:  m,
		logg:     logg,
	}, nil
}

// CreateInput is the typed payload for booking creation.
type CreateInput struct {
	CarID           uuid.UUID
	StartDate       time.Time
	EndDate         time.Time
	PickupLocation  *types.RentalLocation
	DropoffLocation *types.RentalLocation
	Notes           string
	DriverInfo      *types.DriverInfo
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*models.Booking, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.CarID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "car id required")
	}
	now := time.Now().UTC()
	if !input.EndDate.After(input.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
	}
	if input.StartDate.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date cannot be in the past")
	}

	car, err := s.cars.Get(ctx, input.CarID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load car")
	}
	if car == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "car not found")
	}
	if !car.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "car is not available for booking")
	}

	// Advisory check only. Pending bookings do not reserve the car, so two
	// customers may both pass here; confirmation is the enforcement point.
	conflict, err := s.repo.HasConflict(ctx, input.CarID, input.StartDate, input.EndDate, uuid.Nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check booking conflicts")
	}
	if conflict {
		s.metrics.IncBookingConflict()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "car is already booked for the requested dates").
			WithDetails(map[string]string{
				"car_id":     input.CarID.String(),
				"start_date": input.StartDate.Format("2006-01-02"),
				"end_date":   input.EndDate.Format("2006-01-02"),
			})
	}

	// License details are snapshotted per booking. The request value wins;
	// otherwise the customer's stored profile fills in.
	driverInfo := input.DriverInfo
	if driverInfo == nil {
		user, err := s.repo.FindUser(ctx, actor.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if user != nil && user.DriverInfo != nil {
			snapshot := *user.DriverInfo
			driverInfo = &snapshot
		}
	}

	quote := Quote(input.StartDate, input.EndDate, car.PricePerDay)
	booking := &models.Booking{
		UserID:          actor.UserID,
		CarID:           car.ID,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Status:          enums.BookingStatusPending,
		PaymentStatus:   enums.BookingPaymentStatusPending,
		TotalDays:       quote.TotalDays,
		DailyRate:       quote.DailyRate,
		Subtotal:        quote.Subtotal,
		Taxes:           quote.Taxes,
		Fees:            quote.Fees,
		TotalPrice:      quote.Total,
		PickupLocation:  input.PickupLocation,
		DropoffLocation: input.DropoffLocation,
		Notes:           input.Notes,
		DriverInfo:      driverInfo,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
	}

	s.metrics.IncBookingCreated()
	if s.notifier != nil {
		s.notifier.BookingCreated(ctx, booking.ID, actor.UserID)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithBookingID(ctx, booking.ID.String()), "booking created")
	}

	return s.reload(ctx, booking.ID)
}

// ListParams filters booking listings. CreatedFrom and CreatedTo bound the
// booking's creation timestamp and are used by the admin listing.
type ListParams struct {
	Status      string
	CarID       uuid.UUID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        pagination.Params
}

// ListResult wraps one page of bookings plus its metadata.
type ListResult struct {
	Bookings []models.Booking `json:"bookings"`
	Meta     pagination.Meta  `json:"meta"`
}

func (s *service) List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return s.list(ctx, actor.UserID, params)
}

func (s *service) ListAll(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, uuid.Nil, params)
}

func (s *service) list(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	query := listBookingsParams{
		UserID:      userID,
		CarID:       params.CarID,
		CreatedFrom: params.CreatedFrom,
		CreatedTo:   params.CreatedTo,
		Page:        params.Page.Normalize(),
	}
	if params.Status != "" {
		status, err := enums.ParseBookingStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}

	rows, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	return &ListResult{
		Bookings: rows,
		Meta:     pagination.NewMeta(params.Page, total),
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, target enums.BookingStatus, reason string) (*models.Booking, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid booking status")
	}

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Customers may only ever request cancellation of their own booking.
	if !actor.IsAdmin() {
		if booking.UserID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
		}
		if target != enums.BookingStatusCancelled {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators may change booking status")
		}
	}

	if target == enums.BookingStatusCancelled {
		result, err := s.cancel(ctx, actor, booking, reason)
		if err != nil {
			return nil, err
		}
		return result.Booking, nil
	}

	if !CanTransition(booking.Status, target) {
		return nil, invalidTransition(booking.Status, target)
	}

	switch target {
	case enums.BookingStatusConfirmed:
		outcome, err := s.claimConfirmation(ctx, booking)
		if err != nil {
			return nil, err
		}
		switch outcome.State {
		case ConfirmStateConfirmed, ConfirmStateAlreadyConfirmed:
			booking = outcome.Booking
		case ConfirmStateForceCancelled:
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "car is already booked for the requested dates")
		default:
			return nil, invalidTransition(outcome.Booking.Status, target)
		}
	default:
		claimed, err := s.repo.ClaimStatus(ctx, booking.ID, booking.Status, target)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}
		if !claimed {
			// A concurrent writer won the transition; report against the
			// status that is now current.
			current, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, invalidTransition(current.Status, target)
		}
		from := booking.Status
		booking, err = s.reload(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.notifier != nil {
			s.notifier.BookingStatusChanged(ctx, booking.ID, from.String(), target.String())
		}
	}

	return booking, nil
}

// CancelResult reports the refund computed for a cancellation.
type CancelResult struct {
	Booking      *models.Booking `json:"booking"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	RefundTier   string          `json:"refund_tier"`
}

func (s *service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*CancelResult, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, booking); err != nil {
		return nil, err
	}
	return s.cancel(ctx, actor, booking, reason)
}

func (s *service) cancel(ctx context.Context, actor Actor, booking *models.Booking, reason string) (*CancelResult, error) {
	if !CanTransition(booking.Status, enums.BookingStatusCancelled) {
		return nil, invalidTransition(booking.Status, enums.BookingStatusCancelled)
	}

	now := time.Now().UTC()
	if !actor.IsAdmin() && WithinCancellationWindow(now, booking.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeCancellationWindow, "bookings cannot be cancelled within 24 hours of pickup").
			WithDetails(map[string]string{"start_date": booking.StartDate.Format(time.RFC3339)})
	}

	refund, tier := RefundFor(now, booking.StartDate, booking.TotalPrice)

	if reason == "" {
		reason = defaultCancellationReason
	}

	claimed, err := s.repo.ClaimCancellation(ctx, cancelParams{
		ID:           booking.ID,
		FromStatuses: []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusConfirmed},
		Reason:       reason,
		RefundAmount: refund,
		Now:          now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel booking")
	}
	if !claimed {
		current, loadErr := s.load(ctx, booking.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, invalidTransition(current.Status, enums.BookingStatusCancelled)
	}

	actorLabel := "customer"
	if actor.IsAdmin() {
		actorLabel = "admin"
	}
	s.metrics.IncBookingCancelled(actorLabel)
	if s.notifier != nil {
		s.notifier.BookingStatusChanged(ctx, booking.ID, booking.Status.String(), enums.BookingStatusCancelled.String())
	}

	cancelled, err := s.reload(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	return &CancelResult{
		Booking:      cancelled,
		RefundAmount: refund,
		RefundTier:   tier,
	}, nil
}

// ConfirmState names the outcome of a confirmation claim.
type ConfirmState string

const (
	// ConfirmStateConfirmed means this call won the claim.
	ConfirmStateConfirmed ConfirmState = "confirmed"
	// ConfirmStateAlreadyConfirmed means a previous call already confirmed the
	// booking; the operation is idempotent.
	ConfirmStateAlreadyConfirmed ConfirmState = "already_confirmed"
	// ConfirmStateForceCancelled means a conflicting booking was confirmed
	// first; this booking was cancelled with a full refund owed.
	ConfirmStateForceCancelled ConfirmState = "force_cancelled"
	// ConfirmStateInvalid means the booking is in a state that cannot be
	// confirmed (cancelled, active, completed).
	ConfirmStateInvalid ConfirmState = "invalid"
)

// ConfirmOutcome reports what happened when payment confirmation tried to
// finalize the booking.
type ConfirmOutcome struct {
	State        ConfirmState
	Booking      *models.Booking
	RefundAmount decimal.Decimal
}

// ClaimConfirmation resolves the optimistic-checkout race: it atomically
// promotes the pending booking to confirmed unless an overlapping booking got
// there first, in which case this booking is force-cancelled with a full
// refund owed to the customer.
func (s *service) ClaimConfirmation(ctx context.Context, id uuid.UUID) (*ConfirmOutcome, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.claimConfirmation(ctx, booking)
}

func (s *service) claimConfirmation(ctx context.Context, booking *models.Booking) (*ConfirmOutcome, error) {
	claimed, err := s.repo.ClaimConfirmation(ctx, booking)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim booking confirmation")
	}

	if claimed {
		confirmed, err := s.reload(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if s.notifier != nil {
			s.notifier.BookingStatusChanged(ctx, booking.ID, enums.BookingStatusPending.String(), enums.BookingStatusConfirmed.String())
		}
		return &ConfirmOutcome{State: ConfirmStateConfirmed, Booking: confirmed}, nil
	}

	current, err := s.load(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	switch {
	case current.Status == enums.BookingStatusConfirmed:
		return &ConfirmOutcome{State: ConfirmStateAlreadyConfirmed, Booking: current}, nil
	case current.Status == enums.BookingStatusPending:
		// The claim failed while still pending: an overlapping booking is
		// confirmed or active. Cancel with a full refund owed.
		refund := current.TotalPrice
		if _, err := s.repo.ClaimCancellation(ctx, cancelParams{
			ID:           current.ID,
			FromStatuses: []enums.BookingStatus{enums.BookingStatusPending},
			Reason:       "Cancelled automatically: the car was booked by another customer for overlapping dates",
			RefundAmount: refund,
			Now:          time.Now().UTC(),
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "force-cancel conflicting booking")
		}
		s.metrics.IncBookingConflict()
		cancelled, err := s.load(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if s.notifier != nil {
			s.notifier.BookingStatusChanged(ctx, cancelled.ID, enums.BookingStatusPending.String(), enums.BookingStatusCancelled.String())
		}
		return &ConfirmOutcome{State: ConfirmStateForceCancelled, Booking: cancelled, RefundAmount: refund}, nil
	default:
		return &ConfirmOutcome{State: ConfirmStateInvalid, Booking: current}, nil
	}
}

// SweepResult counts the bookings settled by one maintenance pass.
type SweepResult struct {
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
}

const expiredReason = "Expired: payment was not completed before the rental start date"

// Sweep settles bookings the lifecycle left behind: pending bookings whose
// start date passed without payment are cancelled without refund, and active
// bookings past their end date are completed. Each transition is claimed
// individually so a concurrent payment or admin update always wins.
func (s *service) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{}

	stale, err := s.repo.FindPendingStartedBefore(ctx, now)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale pending bookings")
	}
	for i := range stale {
		claimed, err := s.repo.ClaimCancellation(ctx, cancelParams{
			ID:           stale[i].ID,
			FromStatuses: []enums.BookingStatus{enums.BookingStatusPending},
			Reason:       expiredReason,
			RefundAmount: decimal.Zero,
			Now:          now,
		})
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire stale booking")
		}
		if !claimed {
			continue
		}
		result.Expired++
		if s.notifier != nil {
			s.notifier.BookingStatusChanged(ctx, stale[i].ID, enums.BookingStatusPending.String(), enums.BookingStatusCancelled.String())
		}
	}

	ended, err := s.repo.FindActiveEndedBefore(ctx, now)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find ended active bookings")
	}
	for i := range ended {
		claimed, err := s.repo.ClaimStatus(ctx, ended[i].ID, enums.BookingStatusActive, enums.BookingStatusCompleted)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete ended booking")
		}
		if !claimed {
			continue
		}
		result.Completed++
		if s.notifier != nil {
			s.notifier.BookingStatusChanged(ctx, ended[i].ID, enums.BookingStatusActive.String(), enums.BookingStatusCompleted.String())
		}
	}

	return result, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return booking, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload booking")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking disappeared during update")
	}
	return booking, nil
}

func authorize(actor Actor, booking *models.Booking) error {
	if actor.IsAdmin() {
		return nil
	}
	if booking.UserID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
	}
	return nil
}
