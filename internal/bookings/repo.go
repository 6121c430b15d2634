package bookings

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

// Repository exposes persistence helpers for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error)
	List(ctx context.Context, params listBookingsParams) ([]models.Booking, int64, error)
	HasConflict(ctx context.Context, carID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error)
	ClaimConfirmation(ctx context.Context, booking *models.Booking) (bool, error)
	ClaimStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus) (bool, error)
	ClaimCancellation(ctx context.Context, params cancelParams) (bool, error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) (bool, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.BookingPaymentStatus) error
	SetRefundAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindPendingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	FindActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a bookings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listBookingsParams struct {
	UserID      uuid.UUID // uuid.Nil lists across all users
	CarID       uuid.UUID
	Status      *enums.BookingStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        pagination.Params
}

type cancelParams struct {
	ID           uuid.UUID
	FromStatuses []enums.BookingStatus
	Reason       string
	RefundAmount decimal.Decimal
	Now          time.Time
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Car").
		Preload("User").
		First(&booking, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repositoryImpl) GetByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Car").
		Preload("User").
		First(&booking, "payment_intent_id = ?", intentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listBookingsParams) ([]models.Booking, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if params.UserID != uuid.Nil {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.CarID != uuid.Nil {
		query = query.Where("car_id = ?", params.CarID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *params.CreatedFrom)
	}
	if params.CreatedTo != nil {
		query = query.Where("created_at < ?", params.CreatedTo.AddDate(0, 0, 1))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page.Normalize()
	var rows []models.Booking
	if err := query.
		Preload("Car").
		Order("created_at DESC, id DESC").
		Limit(page.Limit).
		Offset(params.Page.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// HasConflict reports whether a confirmed or active booking overlaps
// [start, end) for the car. Ranges [s1,e1) and [s2,e2) overlap iff
// s1 < e2 AND s2 < e1. Pending bookings never block.
func (r *repositoryImpl) HasConflict(ctx context.Context, carID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("car_id = ?", carID).
		Where("status IN ?", enums.BlockingBookingStatuses()).
		Where("start_date < ? AND ? < end_date", end, start)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimConfirmation atomically moves a pending booking to confirmed with
// payment completed, but only when no conflicting confirmed/active booking
// exists at this instant. Of two racing confirmations for overlapping
// ranges at most one UPDATE matches.
func (r *repositoryImpl) ClaimConfirmation(ctx context.Context, booking *models.Booking) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, payment_status = ?, updated_at = ?
		 WHERE id = ?
		   AND status = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM bookings b
		     WHERE b.car_id = ?
		       AND b.id <> ?
		       AND b.status IN ?
		       AND b.start_date < ? AND ? < b.end_date
		   )`,
		enums.BookingStatusConfirmed, enums.BookingPaymentStatusCompleted, time.Now().UTC(),
		booking.ID,
		enums.BookingStatusPending,
		booking.CarID,
		booking.ID,
		enums.BlockingBookingStatuses(),
		booking.EndDate, booking.StartDate,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimStatus performs a guarded from→to status update. A zero RowsAffected
// means another writer changed the status first.
func (r *repositoryImpl) ClaimStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimCancellation cancels a booking if its status is still one of
// FromStatuses, recording reason, timestamp and refund in the same write.
func (r *repositoryImpl) ClaimCancellation(ctx context.Context, params cancelParams) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status IN ?", params.ID, params.FromStatuses).
		Updates(map[string]any{
			"status":              enums.BookingStatusCancelled,
			"cancellation_reason": params.Reason,
			"cancelled_at":        params.Now,
			"refund_amount":       params.RefundAmount,
			"updated_at":          params.Now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetPaymentIntent stores the intent reference while the booking is still
// pending and unpaid. Retried payment attempts overwrite the previous intent.
func (r *repositoryImpl) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ? AND payment_status <> ?",
			id, enums.BookingStatusPending, enums.BookingPaymentStatusCompleted).
		Updates(map[string]any{"payment_intent_id": intentID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetPaymentStatus updates the booking's payment summary without regressing a
// terminal state: completed and refunded are never overwritten by pending or
// failed.
func (r *repositoryImpl) SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.BookingPaymentStatus) error {
	query := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id)
	if status == enums.BookingPaymentStatusPending || status == enums.BookingPaymentStatusFailed {
		query = query.Where("payment_status NOT IN ?", []enums.BookingPaymentStatus{
			enums.BookingPaymentStatusCompleted,
			enums.BookingPaymentStatusRefunded,
		})
	}
	return query.Updates(map[string]any{"payment_status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repositoryImpl) SetRefundAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(map[string]any{"refund_amount": amount, "updated_at": time.Now().UTC()}).Error
}

// FindUser loads the booking customer's account record.
func (r *repositoryImpl) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindPendingStartedBefore returns pending bookings whose rental window opened
// before the cutoff without payment completing.
func (r *repositoryImpl) FindPendingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_date <= ?", enums.BookingStatusPending, cutoff).
		Order("start_date ASC").
		Find(&rows).Error
	return rows, err
}

// FindActiveEndedBefore returns active bookings whose rental window closed
// before the cutoff.
func (r *repositoryImpl) FindActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_date <= ?", enums.BookingStatusActive, cutoff).
		Order("end_date ASC").
		Find(&rows).Error
	return rows, err
}
