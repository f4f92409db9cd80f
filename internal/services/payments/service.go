package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmarques/pixgen/backend/internal/domain/enums"
	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
)

const planValidity = 30 * 24 * time.Hour

var (
	ErrValidation       = errors.New("validation error")
	ErrIgnoredEvent     = errors.New("ignored event")
	ErrPurchaseNotFound = errors.New("purchase not found")
)

type PurchaseStore interface {
	FindByID(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, error)
	FindByBillingID(ctx context.Context, billingID string) (pgrepo.PurchaseRecord, error)
	FindForUserByBillingID(ctx context.Context, userID, billingID string) (pgrepo.PurchaseRecord, error)
	LatestPendingForUser(ctx context.Context, userID string) (pgrepo.PurchaseRecord, error)
	Complete(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, bool, error)
}

type ProfileStore interface {
	ActivatePlan(ctx context.Context, userID, plan string, expiresAt time.Time) error
}

type ProductStore interface {
	FindByID(ctx context.Context, productID string) (pgrepo.ProductRecord, error)
}

// StatusResolver answers with the provider's view of a billing. Unknown is a
// valid answer and means "could not tell", never "failed".
type StatusResolver interface {
	ResolveStatus(ctx context.Context, billingID string) enums.ProviderStatus
}

type Service struct {
	purchases PurchaseStore
	profiles  ProfileStore
	products  ProductStore
	resolver  StatusResolver
	now       func() time.Time
}

type Dependencies struct {
	Purchases PurchaseStore
	Profiles  ProfileStore
	Products  ProductStore
	Resolver  StatusResolver
}

type WebhookInput struct {
	Event   string
	Payload map[string]any
}

type WebhookResult struct {
	PurchaseID       string
	UserID           string
	CreditsAdded     int
	AlreadyProcessed bool
}

// ConfirmResult.Status speaks the client's vocabulary: "completed" once the
// purchase settled, "not_found" from the transport layer, otherwise the
// provider verdict ("pending", "expired", "cancelled").
type ConfirmResult struct {
	Activated        bool
	Status           string
	PurchaseID       string
	CreditsAdded     int
	AlreadyProcessed bool
}

func NewService(deps Dependencies) *Service {
	return &Service{
		purchases: deps.Purchases,
		profiles:  deps.Profiles,
		products:  deps.Products,
		resolver:  deps.Resolver,
		now:       time.Now,
	}
}

// ConfirmWebhook settles a purchase from a provider push. The push is trusted
// to mean "paid" once authenticated, so no provider round trip happens here;
// the conditional flip in the store keeps replays and concurrent deliveries
// exactly-once.
func (s *Service) ConfirmWebhook(ctx context.Context, in WebhookInput) (WebhookResult, error) {
	if s.purchases == nil || s.profiles == nil {
		return WebhookResult{}, fmt.Errorf("payments dependencies are not configured")
	}

	// A body without event and data keys is malformed, not ignorable.
	event := strings.TrimSpace(in.Event)
	data, hasData := in.Payload["data"]
	if event == "" || !hasData || data == nil {
		return WebhookResult{}, ErrValidation
	}

	if !isPaidEvent(event) {
		return WebhookResult{}, ErrIgnoredEvent
	}

	externalID := externalIDFromPayload(in.Payload)
	billingID := billingIDFromPayload(in.Payload)
	if externalID == "" && billingID == "" {
		return WebhookResult{}, ErrValidation
	}

	purchase, err := s.lookupPurchase(ctx, externalID, billingID)
	if err != nil {
		return WebhookResult{}, err
	}

	if purchase.Status == string(enums.PurchaseStatusCompleted) {
		return WebhookResult{
			PurchaseID:       purchase.ID,
			UserID:           purchase.UserID,
			AlreadyProcessed: true,
		}, nil
	}

	return s.settle(ctx, purchase.ID)
}

// ConfirmBilling is the pull path: the client asks whether its purchase went
// through, we ask the provider, and settle only on a definitive paid answer.
// Expired and cancelled are reported but never written back, so a provider
// glitch cannot kill a purchase a later webhook would have settled.
func (s *Service) ConfirmBilling(ctx context.Context, userID, billingID string) (ConfirmResult, error) {
	if s.purchases == nil || s.profiles == nil || s.resolver == nil {
		return ConfirmResult{}, fmt.Errorf("payments dependencies are not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return ConfirmResult{}, ErrValidation
	}

	purchase, err := s.purchaseForConfirm(ctx, userID, strings.TrimSpace(billingID))
	if err != nil {
		return ConfirmResult{}, err
	}

	if purchase.Status == string(enums.PurchaseStatusCompleted) {
		return ConfirmResult{
			Activated:        true,
			Status:           string(enums.PurchaseStatusCompleted),
			PurchaseID:       purchase.ID,
			AlreadyProcessed: true,
		}, nil
	}

	resolveID := strings.TrimSpace(billingID)
	if resolveID == "" && purchase.BillingID != nil {
		resolveID = *purchase.BillingID
	}
	if resolveID == "" {
		return ConfirmResult{Status: string(enums.ProviderStatusPending), PurchaseID: purchase.ID}, nil
	}

	status := s.resolver.ResolveStatus(ctx, resolveID)
	switch {
	case status == enums.ProviderStatusPaid:
		settled, err := s.settle(ctx, purchase.ID)
		if err != nil {
			return ConfirmResult{}, err
		}
		return ConfirmResult{
			Activated:        true,
			Status:           string(enums.PurchaseStatusCompleted),
			PurchaseID:       settled.PurchaseID,
			CreditsAdded:     settled.CreditsAdded,
			AlreadyProcessed: settled.AlreadyProcessed,
		}, nil
	case status.Final():
		// expired or cancelled: reported, never written back
		return ConfirmResult{Status: string(status), PurchaseID: purchase.ID}, nil
	default:
		return ConfirmResult{Status: string(enums.ProviderStatusPending), PurchaseID: purchase.ID}, nil
	}
}

func (s *Service) lookupPurchase(ctx context.Context, externalID, billingID string) (pgrepo.PurchaseRecord, error) {
	if externalID != "" {
		purchase, err := s.purchases.FindByID(ctx, externalID)
		if err == nil {
			return purchase, nil
		}
		if !errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return pgrepo.PurchaseRecord{}, err
		}
	}

	if billingID != "" {
		purchase, err := s.purchases.FindByBillingID(ctx, billingID)
		if err == nil {
			return purchase, nil
		}
		if !errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return pgrepo.PurchaseRecord{}, err
		}
	}

	return pgrepo.PurchaseRecord{}, ErrPurchaseNotFound
}

func (s *Service) purchaseForConfirm(ctx context.Context, userID, billingID string) (pgrepo.PurchaseRecord, error) {
	var (
		purchase pgrepo.PurchaseRecord
		err      error
	)
	if billingID != "" {
		purchase, err = s.purchases.FindForUserByBillingID(ctx, userID, billingID)
	} else {
		purchase, err = s.purchases.LatestPendingForUser(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return pgrepo.PurchaseRecord{}, ErrPurchaseNotFound
		}
		return pgrepo.PurchaseRecord{}, err
	}
	return purchase, nil
}

// settle flips the purchase and credits the balance through the store's
// single-statement update, then activates the plan for unlimited products.
// Plan activation is re-applyable, so retrying after a crash between the two
// writes converges to the same state.
func (s *Service) settle(ctx context.Context, purchaseID string) (WebhookResult, error) {
	record, changed, err := s.purchases.Complete(ctx, purchaseID)
	if err != nil {
		return WebhookResult{}, err
	}

	if !changed {
		if record.Status != string(enums.PurchaseStatusCompleted) {
			return WebhookResult{}, fmt.Errorf("purchase did not transition to completed status")
		}
		return WebhookResult{
			PurchaseID:       record.ID,
			UserID:           record.UserID,
			AlreadyProcessed: true,
		}, nil
	}

	if err := s.applyPlan(ctx, record); err != nil {
		return WebhookResult{}, err
	}

	return WebhookResult{
		PurchaseID:   record.ID,
		UserID:       record.UserID,
		CreditsAdded: record.CreditsGranted,
	}, nil
}

func (s *Service) applyPlan(ctx context.Context, purchase pgrepo.PurchaseRecord) error {
	if s.products == nil {
		return nil
	}

	product, err := s.products.FindByID(ctx, purchase.ProductID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProductNotFound) {
			return nil
		}
		return err
	}
	if !product.Unlimited {
		return nil
	}

	expiresAt := s.now().UTC().Add(planValidity)
	if err := s.profiles.ActivatePlan(ctx, purchase.UserID, product.ID, expiresAt); err != nil {
		return fmt.Errorf("activate plan: %w", err)
	}
	return nil
}
