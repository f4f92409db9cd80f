package abacatepay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dmarques/pixgen/backend/internal/domain/enums"
)

// The provider has historically exposed the same billing status under several
// endpoints, and which one answers depends on the payment method used. The
// resolver walks them in order and takes the first recognizable answer.

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http *resty.Client
	log  *zap.Logger
}

type Billing struct {
	ID  string
	URL string
}

type CreateBillingInput struct {
	ExternalID    string
	ProductID     string
	ProductName   string
	Description   string
	PriceCents    int
	CustomerEmail string
	ReturnURL     string
	CompletionURL string
	Metadata      map[string]string
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("abacatepay base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(strings.TrimSpace(cfg.APIKey)).
		SetHeader("Accept", "application/json")

	return &Client{http: http, log: log}, nil
}

type billingPayload struct {
	ID         string `json:"id"`
	BillingID  string `json:"billingId"`
	Status     string `json:"status"`
	URL        string `json:"url"`
	ExternalID string `json:"externalId"`
}

// envelope tolerates both `{data: {...}}` and flat response bodies, which the
// provider has served interchangeably across API revisions.
type envelope struct {
	Data *billingPayload `json:"data"`
	billingPayload
}

func (e envelope) payload() billingPayload {
	if e.Data != nil {
		return *e.Data
	}
	return e.billingPayload
}

type listEnvelope struct {
	Data []billingPayload `json:"data"`
}

// ResolveStatus queries the provider's candidate endpoints in a fixed
// fallback order and normalizes the first status that matches the billing id.
// Any transport or shape failure moves on to the next candidate; when every
// candidate fails the result is Unknown, which callers must treat like a
// still-pending payment rather than an error.
func (c *Client) ResolveStatus(ctx context.Context, billingID string) enums.ProviderStatus {
	if c == nil || c.http == nil {
		return enums.ProviderStatusUnknown
	}
	billingID = strings.TrimSpace(billingID)
	if billingID == "" {
		return enums.ProviderStatusUnknown
	}

	candidates := []struct {
		name    string
		resolve func(context.Context, string) (string, bool, error)
	}{
		{"billing_info", c.statusFromBillingInfo},
		{"billing_list", c.statusFromBillingList},
		{"payment_list", c.statusFromPaymentList},
		{"pix_qrcode_check", c.statusFromPixQRCheck},
	}

	for _, candidate := range candidates {
		raw, found, err := candidate.resolve(ctx, billingID)
		if err != nil {
			if c.log != nil {
				c.log.Warn("provider status candidate failed",
					zap.String("candidate", candidate.name),
					zap.String("billing_id", billingID),
					zap.Error(err),
				)
			}
			continue
		}
		if !found {
			continue
		}

		status := enums.NormalizeProviderStatus(raw)
		if c.log != nil {
			c.log.Debug("provider status resolved",
				zap.String("candidate", candidate.name),
				zap.String("billing_id", billingID),
				zap.String("raw_status", raw),
				zap.String("status", string(status)),
			)
		}
		return status
	}

	return enums.ProviderStatusUnknown
}

func (c *Client) statusFromBillingInfo(ctx context.Context, billingID string) (string, bool, error) {
	var body envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/billing/info/" + billingID)
	if err != nil {
		return "", false, fmt.Errorf("get billing info: %w", err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("get billing info: status %d", resp.StatusCode())
	}

	payload := body.payload()
	if payload.Status == "" {
		return "", false, nil
	}
	return payload.Status, true, nil
}

func (c *Client) statusFromBillingList(ctx context.Context, billingID string) (string, bool, error) {
	var body listEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/billing/list")
	if err != nil {
		return "", false, fmt.Errorf("list billings: %w", err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("list billings: status %d", resp.StatusCode())
	}

	for _, item := range body.Data {
		if item.ID == billingID && item.Status != "" {
			return item.Status, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) statusFromPaymentList(ctx context.Context, billingID string) (string, bool, error) {
	var body listEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/payment/list")
	if err != nil {
		return "", false, fmt.Errorf("list payments: %w", err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("list payments: status %d", resp.StatusCode())
	}

	for _, item := range body.Data {
		if (item.BillingID == billingID || item.ID == billingID) && item.Status != "" {
			return item.Status, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) statusFromPixQRCheck(ctx context.Context, billingID string) (string, bool, error) {
	var body envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetQueryParam("id", billingID).
		Get("/pixQrCode/check")
	if err != nil {
		return "", false, fmt.Errorf("check pix qrcode: %w", err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("check pix qrcode: status %d", resp.StatusCode())
	}

	payload := body.payload()
	if payload.Status == "" {
		return "", false, nil
	}
	return payload.Status, true, nil
}

// CreateBilling opens a ONE_TIME PIX billing carrying our purchase id as the
// provider-side externalId, so webhook payloads can be traced back to the
// purchase row.
func (c *Client) CreateBilling(ctx context.Context, in CreateBillingInput) (Billing, error) {
	if c == nil || c.http == nil {
		return Billing{}, fmt.Errorf("billing provider client is not configured")
	}
	if strings.TrimSpace(in.ExternalID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return Billing{}, fmt.Errorf("invalid create billing payload")
	}

	request := map[string]any{
		"frequency": "ONE_TIME",
		"methods":   []string{"PIX"},
		"products": []map[string]any{
			{
				"externalId":  in.ProductID,
				"name":        in.ProductName,
				"description": in.Description,
				"quantity":    1,
				"price":       in.PriceCents,
			},
		},
		"externalId":    in.ExternalID,
		"returnUrl":     in.ReturnURL,
		"completionUrl": in.CompletionURL,
		"customer":      map[string]string{"email": in.CustomerEmail},
		"metadata":      in.Metadata,
	}

	var body envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&body).
		Post("/billing/create")
	if err != nil {
		return Billing{}, fmt.Errorf("create billing: %w", err)
	}
	if resp.IsError() {
		return Billing{}, fmt.Errorf("create billing: status %d: %s", resp.StatusCode(), resp.String())
	}

	payload := body.payload()
	if payload.ID == "" || payload.URL == "" {
		return Billing{}, fmt.Errorf("unexpected create billing response shape")
	}

	return Billing{ID: payload.ID, URL: payload.URL}, nil
}
