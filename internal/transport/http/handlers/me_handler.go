package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/dmarques/pixgen/backend/internal/services/auth"
	profilesvc "github.com/dmarques/pixgen/backend/internal/services/profiles"
	"github.com/dmarques/pixgen/backend/internal/transport/http/dto"
	httperrors "github.com/dmarques/pixgen/backend/internal/transport/http/errors"
)

type MeHandler struct {
	profiles *profilesvc.Service
}

func NewMeHandler(profiles *profilesvc.Service) *MeHandler {
	return &MeHandler{profiles: profiles}
}

func (h *MeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.profiles == nil {
		writeInternal(w, "PROFILE_SERVICE_UNAVAILABLE", "profile service is unavailable")
		return
	}

	snapshot, err := h.profiles.Me(r.Context(), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, profilesvc.ErrProfileNotFound):
			writeNotFound(w, "PROFILE_NOT_FOUND", "profile not found")
		case errors.Is(err, profilesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load profile")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.MeResponse{
		UserID:        snapshot.UserID,
		Email:         snapshot.Email,
		CreditBalance: snapshot.CreditBalance,
		Plan:          snapshot.Plan,
		PlanActive:    snapshot.PlanActive,
		PlanExpiresAt: snapshot.PlanExpiresAt,
	})
}
