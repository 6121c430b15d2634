package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/types"
)

// Service exposes the account profile operations.
type Service interface {
	Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateDriverInfo(ctx context.Context, userID uuid.UUID, info types.DriverInfo) (*UserDTO, error)
}

type service struct {
	repo *Repository
}

// NewService builds the profile service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

// UpdateDriverInfo stores the renter's license details. New bookings snapshot
// them when the request doesn't carry its own.
func (s *service) UpdateDriverInfo(ctx context.Context, userID uuid.UUID, info types.DriverInfo) (*UserDTO, error) {
	if info.LicenseNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license number is required")
	}
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDriverInfo(ctx, userID, &info); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update driver info")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
