package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	paymentsvc "github.com/dmarques/pixgen/backend/internal/services/payments"
	"github.com/dmarques/pixgen/backend/internal/transport/http/dto"
	httperrors "github.com/dmarques/pixgen/backend/internal/transport/http/errors"
)

const maxWebhookBody = 1 << 20

// secretHeaders and signatureHeaders cover every header name the provider has
// used for webhook authentication across its API revisions.
var (
	secretHeaders    = []string{"X-Webhook-Secret", "X-Abacatepay-Secret"}
	signatureHeaders = []string{"X-Abacatepay-Signature", "X-Webhook-Signature", "X-Signature"}
)

type WebhookHandler struct {
	payments *paymentsvc.Service
	secret   string
	log      *zap.Logger
}

func NewWebhookHandler(payments *paymentsvc.Service, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		secret:   strings.TrimSpace(secret),
		log:      log,
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if !h.authenticated(r, body) {
		writeUnauthorized(w, "UNAUTHORIZED", "webhook authentication failed")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid webhook payload")
		return
	}
	event, _ := payload["event"].(string)

	result, err := h.payments.ConfirmWebhook(r.Context(), paymentsvc.WebhookInput{
		Event:   event,
		Payload: payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrIgnoredEvent):
			httperrors.Write(w, http.StatusOK, dto.WebhookResponse{OK: true, Message: "event ignored"})
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid webhook payload")
		case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
		default:
			if h.log != nil {
				h.log.Error("webhook processing failed", zap.String("event", event), zap.Error(err))
			}
			writeInternal(w, "INTERNAL_ERROR", "failed to process webhook")
		}
		return
	}

	message := ""
	if result.AlreadyProcessed {
		message = "Already processed"
	}
	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{
		OK:         true,
		Message:    message,
		PurchaseID: result.PurchaseID,
	})
}

// authenticated accepts any of the delivery styles the provider supports: the
// shared secret in a query parameter or header, or an HMAC-SHA256 signature
// over the raw body. Signatures may carry a sha256= prefix and be either
// base64 or hex encoded.
func (h *WebhookHandler) authenticated(r *http.Request, body []byte) bool {
	if h.secret == "" {
		return false
	}

	if secretsEqual(r.URL.Query().Get("webhookSecret"), h.secret) {
		return true
	}
	for _, header := range secretHeaders {
		if secretsEqual(r.Header.Get(header), h.secret) {
			return true
		}
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, header := range signatureHeaders {
		if signatureMatches(r.Header.Get(header), expected) {
			return true
		}
	}

	return false
}

func secretsEqual(candidate, secret string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1
}

func signatureMatches(candidate string, expected []byte) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	candidate = strings.TrimPrefix(candidate, "sha256=")

	if decoded, err := hex.DecodeString(candidate); err == nil && hmac.Equal(decoded, expected) {
		return true
	}
	if decoded, err := base64.StdEncoding.DecodeString(candidate); err == nil && hmac.Equal(decoded, expected) {
		return true
	}
	return false
}
