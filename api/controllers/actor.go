package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mateoalvarez/carhive-backend/api/middleware"
	"github.com/mateoalvarez/carhive-backend/api/validators"
	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/pkg/enums"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/pagination"
)

// actorFromContext rebuilds the authenticated actor the auth middleware seeded.
func actorFromContext(ctx context.Context) (bookings.Actor, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return bookings.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return bookings.Actor{UserID: userID, Role: role}, nil
}

// pageParams reads page/limit from the query string with sane bounds.
func pageParams(r *http.Request) (pagination.Params, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", 10, 1, 100)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}, nil
}

// pathID parses a UUID path parameter.
func pathID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id")
	}
	return id, nil
}
