package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	authsvc "github.com/dmarques/pixgen/backend/internal/services/auth"
	checkoutsvc "github.com/dmarques/pixgen/backend/internal/services/checkout"
	paymentsvc "github.com/dmarques/pixgen/backend/internal/services/payments"
	ratesvc "github.com/dmarques/pixgen/backend/internal/services/rate"
	"github.com/dmarques/pixgen/backend/internal/transport/http/dto"
	httperrors "github.com/dmarques/pixgen/backend/internal/transport/http/errors"
)

type BillingHandler struct {
	payments *paymentsvc.Service
	checkout *checkoutsvc.Service
	limiter  *ratesvc.Limiter
	log      *zap.Logger
}

func NewBillingHandler(payments *paymentsvc.Service, checkout *checkoutsvc.Service, limiter *ratesvc.Limiter, log *zap.Logger) *BillingHandler {
	return &BillingHandler{
		payments: payments,
		checkout: checkout,
		limiter:  limiter,
		log:      log,
	}
}

func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.checkout == nil {
		writeInternal(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	var req dto.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.checkout.Create(r.Context(), checkoutsvc.CreateInput{
		UserID:    identity.UserID,
		Email:     identity.Email,
		ProductID: req.ProductID,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkoutsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid checkout payload")
		case errors.Is(err, checkoutsvc.ErrProductNotFound):
			writeNotFound(w, "PRODUCT_NOT_FOUND", "product not found")
		case errors.Is(err, checkoutsvc.ErrGateway):
			if h.log != nil {
				h.log.Error("billing provider rejected checkout", zap.String("user_id", identity.UserID), zap.Error(err))
			}
			httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
				Code:    "PROVIDER_ERROR",
				Message: "payment provider is unavailable",
			})
		default:
			if h.log != nil {
				h.log.Error("checkout failed", zap.String("user_id", identity.UserID), zap.Error(err))
			}
			writeInternal(w, "INTERNAL_ERROR", "failed to create checkout")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.CheckoutResponse{
		PurchaseID:  result.PurchaseID,
		BillingID:   result.BillingID,
		PaymentURL:  result.PaymentURL,
		AmountCents: result.AmountCents,
	})
}

// Confirm is the polling endpoint clients hit while waiting on a PIX payment.
// It is rate limited per user because every call can fan out into several
// provider requests.
func (h *BillingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	if h.limiter != nil {
		retryAfter, allowed, err := h.limiter.AllowConfirm(r.Context(), identity.UserID)
		if err != nil {
			if h.log != nil {
				h.log.Warn("confirm rate limiter failed, allowing request", zap.Error(err))
			}
		} else if !allowed {
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
				Code:          "RATE_LIMITED",
				Message:       "too many confirmation attempts",
				RetryAfterSec: retryAfter,
			})
			return
		}
	}

	billingID := r.URL.Query().Get("billing_id")
	if r.Method == http.MethodPost && r.Body != nil && r.ContentLength != 0 {
		var req dto.ConfirmRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
			return
		}
		if req.BillingID != "" {
			billingID = req.BillingID
		}
	}

	result, err := h.payments.ConfirmBilling(r.Context(), identity.UserID, billingID)
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid confirm payload")
		case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			httperrors.Write(w, http.StatusOK, dto.ConfirmResponse{
				Activated: false,
				Status:    "not_found",
				Message:   "no pending purchase",
			})
		default:
			if h.log != nil {
				h.log.Error("billing confirm failed", zap.String("user_id", identity.UserID), zap.Error(err))
			}
			writeInternal(w, "INTERNAL_ERROR", "failed to confirm billing")
		}
		return
	}

	message := ""
	if result.AlreadyProcessed {
		message = "Already processed"
	}
	httperrors.Write(w, http.StatusOK, dto.ConfirmResponse{
		Activated:    result.Activated,
		Status:       result.Status,
		PurchaseID:   result.PurchaseID,
		CreditsAdded: result.CreditsAdded,
		Message:      message,
	})
}
