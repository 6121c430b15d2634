package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
)

// BookingSweepJobParams configure the booking sweep.
type BookingSweepJobParams struct {
	Logger   *logger.Logger
	Bookings bookings.Service
	Now      func() time.Time
}

// NewBookingSweepJob builds the job that expires unpaid pending bookings past
// their start date and completes active bookings past their end date.
func NewBookingSweepJob(params BookingSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &bookingSweepJob{
		logg:     params.Logger,
		bookings: params.Bookings,
		now:      now,
	}, nil
}

type bookingSweepJob struct {
	logg     *logger.Logger
	bookings bookings.Service
	now      func() time.Time
}

func (j *bookingSweepJob) Name() string { return "booking-sweep" }

func (j *bookingSweepJob) Run(ctx context.Context) error {
	result, err := j.bookings.Sweep(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("booking sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":   result.Expired,
		"completed": result.Completed,
	})
	j.logg.Info(logCtx, "booking sweep complete")
	return nil
}
