package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	authsvc "github.com/dmarques/pixgen/backend/internal/services/auth"
	gensvc "github.com/dmarques/pixgen/backend/internal/services/generation"
	"github.com/dmarques/pixgen/backend/internal/transport/http/dto"
	httperrors "github.com/dmarques/pixgen/backend/internal/transport/http/errors"
)

type GenerationHandler struct {
	generation *gensvc.Service
	log        *zap.Logger
}

func NewGenerationHandler(generation *gensvc.Service, log *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		generation: generation,
		log:        log,
	}
}

func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.generation == nil {
		writeInternal(w, "GENERATION_SERVICE_UNAVAILABLE", "generation service is unavailable")
		return
	}

	var req dto.GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	image, err := h.generation.Generate(r.Context(), identity.UserID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, gensvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid prompt")
		case errors.Is(err, gensvc.ErrInsufficientCredits):
			httperrors.Write(w, http.StatusPaymentRequired, httperrors.APIError{
				Code:    "INSUFFICIENT_CREDITS",
				Message: "not enough credits",
			})
		case errors.Is(err, gensvc.ErrGenerator):
			if h.log != nil {
				h.log.Error("image generator failed", zap.String("user_id", identity.UserID), zap.Error(err))
			}
			httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
				Code:    "GENERATOR_ERROR",
				Message: "image generator is unavailable",
			})
		default:
			if h.log != nil {
				h.log.Error("generation failed", zap.String("user_id", identity.UserID), zap.Error(err))
			}
			writeInternal(w, "INTERNAL_ERROR", "failed to generate image")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.GenerationResponse{
		ID:          image.ID,
		Prompt:      image.Prompt,
		URL:         image.URL,
		CreditsLeft: image.CreditsLeft,
		CreatedAt:   image.CreatedAt,
	})
}

func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.generation == nil {
		writeInternal(w, "GENERATION_SERVICE_UNAVAILABLE", "generation service is unavailable")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	images, err := h.generation.List(r.Context(), identity.UserID, limit)
	if err != nil {
		if errors.Is(err, gensvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid list request")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to list generations")
		return
	}

	items := make([]dto.GenerationResponse, 0, len(images))
	for _, image := range images {
		items = append(items, dto.GenerationResponse{
			ID:        image.ID,
			Prompt:    image.Prompt,
			URL:       image.URL,
			CreatedAt: image.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.GenerationsResponse{Generations: items})
}
