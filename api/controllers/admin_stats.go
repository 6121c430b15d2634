package controllers

import (
	"net/http"

	"github.com/mateoalvarez/carhive-backend/api/responses"
	"github.com/mateoalvarez/carhive-backend/internal/analytics"
	pkgerrors "github.com/mateoalvarez/carhive-backend/pkg/errors"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
)

// AdminStats serves the operational overview dashboard.
func AdminStats(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
			return
		}
		overview, err := svc.Overview(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}
