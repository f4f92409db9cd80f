package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmarques/pixgen/backend/internal/infra/abacatepay"
	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrProductNotFound = errors.New("product not found")
	ErrGateway         = errors.New("billing gateway error")
)

type ProductStore interface {
	FindByID(ctx context.Context, productID string) (pgrepo.ProductRecord, error)
	ListActive(ctx context.Context) ([]pgrepo.ProductRecord, error)
}

type PurchaseStore interface {
	CreatePending(ctx context.Context, in pgrepo.CreatePurchaseInput) (pgrepo.PurchaseRecord, error)
}

type BillingGateway interface {
	CreateBilling(ctx context.Context, in abacatepay.CreateBillingInput) (abacatepay.Billing, error)
}

type Service struct {
	products  ProductStore
	purchases PurchaseStore
	gateway   BillingGateway
	returnURL string
	newID     func() string
}

type Dependencies struct {
	Products  ProductStore
	Purchases PurchaseStore
	Gateway   BillingGateway
	ReturnURL string
}

type CreateInput struct {
	UserID    string
	Email     string
	ProductID string
}

type CreateResult struct {
	PurchaseID  string
	BillingID   string
	PaymentURL  string
	AmountCents int
}

func NewService(deps Dependencies) *Service {
	return &Service{
		products:  deps.Products,
		purchases: deps.Purchases,
		gateway:   deps.Gateway,
		returnURL: strings.TrimSpace(deps.ReturnURL),
		newID:     func() string { return uuid.NewString() },
	}
}

// Create opens a provider billing for the product and records the pending
// purchase. The purchase id is generated before the provider call and travels
// as externalId, so a webhook can land even if our row insert races it.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if s.products == nil || s.purchases == nil || s.gateway == nil {
		return CreateResult{}, fmt.Errorf("checkout dependencies are not configured")
	}

	userID := strings.TrimSpace(in.UserID)
	productID := strings.TrimSpace(in.ProductID)
	if userID == "" || productID == "" {
		return CreateResult{}, ErrValidation
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProductNotFound) {
			return CreateResult{}, ErrProductNotFound
		}
		return CreateResult{}, err
	}
	if !product.Active {
		return CreateResult{}, ErrProductNotFound
	}

	purchaseID := s.newID()

	billing, err := s.gateway.CreateBilling(ctx, abacatepay.CreateBillingInput{
		ExternalID:    purchaseID,
		ProductID:     product.ID,
		ProductName:   product.Name,
		Description:   fmt.Sprintf("%s (%d credits)", product.Name, product.CreditsGranted),
		PriceCents:    product.PriceCents,
		CustomerEmail: strings.TrimSpace(in.Email),
		ReturnURL:     s.returnURL,
		CompletionURL: s.returnURL,
		Metadata: map[string]string{
			"user_id":        userID,
			"product_id":     product.ID,
			"tokens_granted": fmt.Sprintf("%d", product.CreditsGranted),
		},
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	record, err := s.purchases.CreatePending(ctx, pgrepo.CreatePurchaseInput{
		ID:             purchaseID,
		UserID:         userID,
		ProductID:      product.ID,
		BillingID:      billing.ID,
		AmountCents:    product.PriceCents,
		CreditsGranted: product.CreditsGranted,
		QRCodeURL:      billing.URL,
	})
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{
		PurchaseID:  record.ID,
		BillingID:   billing.ID,
		PaymentURL:  billing.URL,
		AmountCents: record.AmountCents,
	}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]pgrepo.ProductRecord, error) {
	if s.products == nil {
		return nil, fmt.Errorf("product store is nil")
	}
	return s.products.ListActive(ctx)
}
