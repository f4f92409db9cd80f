package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmarques/pixgen/backend/internal/domain/enums"
	"github.com/dmarques/pixgen/backend/internal/infra/abacatepay"
	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
	authsvc "github.com/dmarques/pixgen/backend/internal/services/auth"
	checkoutsvc "github.com/dmarques/pixgen/backend/internal/services/checkout"
	paymentsvc "github.com/dmarques/pixgen/backend/internal/services/payments"
	ratesvc "github.com/dmarques/pixgen/backend/internal/services/rate"
)

type resolverStub struct {
	status enums.ProviderStatus
}

func (s resolverStub) ResolveStatus(_ context.Context, _ string) enums.ProviderStatus {
	return s.status
}

type windowStoreStub struct {
	count int64
}

func (s *windowStoreStub) IncrementWindow(_ context.Context, _ string, _ time.Duration) (int64, time.Duration, error) {
	s.count++
	return s.count, 10 * time.Second, nil
}

func authedRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(authsvc.WithIdentity(context.Background(), authsvc.Identity{
		UserID: "user-1",
		Email:  "user@example.com",
	}))
}

func newConfirmHandler(status enums.ProviderStatus, limiter *ratesvc.Limiter) (*BillingHandler, *purchaseStoreStub) {
	_, purchases := newWebhookEnv()
	payments := paymentsvc.NewService(paymentsvc.Dependencies{
		Purchases: purchases,
		Profiles:  profileStoreStub{},
		Products:  productStoreStub{},
		Resolver:  resolverStub{status: status},
	})
	return NewBillingHandler(payments, nil, limiter, nil), purchases
}

func TestConfirmRequiresAuth(t *testing.T) {
	h, _ := newConfirmHandler(enums.ProviderStatusPaid, nil)

	req := httptest.NewRequest(http.MethodGet, "/billing/confirm?billing_id=bill-1", nil)
	rr := httptest.NewRecorder()
	h.Confirm(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestConfirmActivatesOnPaid(t *testing.T) {
	h, purchases := newConfirmHandler(enums.ProviderStatusPaid, nil)

	rr := httptest.NewRecorder()
	h.Confirm(rr, authedRequest(http.MethodGet, "/billing/confirm?billing_id=bill-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body %s", rr.Code, rr.Body.String())
	}

	var payload struct {
		Activated    bool   `json:"activated"`
		Status       string `json:"status"`
		CreditsAdded int    `json:"credits_added"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Activated || payload.Status != "completed" || payload.CreditsAdded != 50 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got := purchases.byID["purchase-1"].Status; got != "completed" {
		t.Fatalf("purchase status = %s, want completed", got)
	}
}

func TestConfirmReportsPendingWithoutMutation(t *testing.T) {
	h, purchases := newConfirmHandler(enums.ProviderStatusUnknown, nil)

	rr := httptest.NewRecorder()
	h.Confirm(rr, authedRequest(http.MethodGet, "/billing/confirm?billing_id=bill-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d", rr.Code)
	}

	var payload struct {
		Activated bool   `json:"activated"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Activated || payload.Status != "pending" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got := purchases.byID["purchase-1"].Status; got != "pending" {
		t.Fatalf("purchase status = %s, want pending", got)
	}
}

func TestConfirmUnknownBillingAnswersNotFoundBody(t *testing.T) {
	h, _ := newConfirmHandler(enums.ProviderStatusPaid, nil)

	rr := httptest.NewRecorder()
	h.Confirm(rr, authedRequest(http.MethodGet, "/billing/confirm?billing_id=bill-unknown"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d", rr.Code)
	}

	var payload struct {
		Activated bool   `json:"activated"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Activated || payload.Status != "not_found" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

type catalogStub struct{}

func (catalogStub) FindByID(_ context.Context, id string) (pgrepo.ProductRecord, error) {
	if id != "pack_50" {
		return pgrepo.ProductRecord{}, pgrepo.ErrProductNotFound
	}
	return pgrepo.ProductRecord{ID: "pack_50", Name: "50 credits", CreditsGranted: 50, PriceCents: 1990, Active: true}, nil
}

func (catalogStub) ListActive(_ context.Context) ([]pgrepo.ProductRecord, error) {
	return nil, nil
}

type pendingStoreStub struct {
	created []pgrepo.CreatePurchaseInput
}

func (s *pendingStoreStub) CreatePending(_ context.Context, in pgrepo.CreatePurchaseInput) (pgrepo.PurchaseRecord, error) {
	s.created = append(s.created, in)
	return pgrepo.PurchaseRecord{
		ID:          in.ID,
		UserID:      in.UserID,
		BillingID:   &in.BillingID,
		AmountCents: in.AmountCents,
		Status:      "pending",
	}, nil
}

type gatewayStub struct {
	err error
}

func (s gatewayStub) CreateBilling(_ context.Context, in abacatepay.CreateBillingInput) (abacatepay.Billing, error) {
	if s.err != nil {
		return abacatepay.Billing{}, s.err
	}
	return abacatepay.Billing{ID: "bill-new", URL: "https://pay.example/" + in.ExternalID}, nil
}

func newCheckoutHandler(gateway gatewayStub) (*BillingHandler, *pendingStoreStub) {
	pending := &pendingStoreStub{}
	checkout := checkoutsvc.NewService(checkoutsvc.Dependencies{
		Products:  catalogStub{},
		Purchases: pending,
		Gateway:   gateway,
	})
	return NewBillingHandler(nil, checkout, nil, nil), pending
}

func checkoutRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(authsvc.WithIdentity(context.Background(), authsvc.Identity{
		UserID: "user-1",
		Email:  "user@example.com",
	}))
}

func TestCheckoutCreatesPendingPurchase(t *testing.T) {
	h, pending := newCheckoutHandler(gatewayStub{})

	rr := httptest.NewRecorder()
	h.Checkout(rr, checkoutRequest(`{"product_id":"pack_50"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body %s", rr.Code, rr.Body.String())
	}

	var payload struct {
		PurchaseID string `json:"purchase_id"`
		BillingID  string `json:"billing_id"`
		PaymentURL string `json:"payment_url"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.BillingID != "bill-new" || payload.PurchaseID == "" || payload.PaymentURL == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(pending.created) != 1 || pending.created[0].BillingID != "bill-new" {
		t.Fatalf("unexpected pending rows: %+v", pending.created)
	}
}

func TestCheckoutProviderFailureAnswersBadGateway(t *testing.T) {
	h, pending := newCheckoutHandler(gatewayStub{err: errors.New("provider 500")})

	rr := httptest.NewRecorder()
	h.Checkout(rr, checkoutRequest(`{"product_id":"pack_50"}`))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadGateway)
	}
	if len(pending.created) != 0 {
		t.Fatalf("purchase row created despite provider failure: %+v", pending.created)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	h, _ := newCheckoutHandler(gatewayStub{})

	rr := httptest.NewRecorder()
	h.Checkout(rr, checkoutRequest(`{"product_id":"pack_999"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestConfirmRateLimited(t *testing.T) {
	limiter := ratesvc.NewLimiter(&windowStoreStub{}, 0, 2)
	h, _ := newConfirmHandler(enums.ProviderStatusUnknown, limiter)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.Confirm(rr, authedRequest(http.MethodGet, "/billing/confirm?billing_id=bill-1"))
		if rr.Code != http.StatusOK {
			t.Fatalf("poll #%d status: %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.Confirm(rr, authedRequest(http.MethodGet, "/billing/confirm?billing_id=bill-1"))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusTooManyRequests)
	}

	var payload struct {
		Code          string `json:"code"`
		RetryAfterSec int64  `json:"retry_after_sec"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "RATE_LIMITED" || payload.RetryAfterSec <= 0 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
