package dto

type CheckoutRequest struct {
	ProductID string `json:"product_id"`
}

type CheckoutResponse struct {
	PurchaseID  string `json:"purchase_id"`
	BillingID   string `json:"billing_id"`
	PaymentURL  string `json:"payment_url"`
	AmountCents int    `json:"amount_cents"`
}

type WebhookResponse struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	PurchaseID string `json:"purchase_id,omitempty"`
}

type ConfirmRequest struct {
	BillingID string `json:"billing_id"`
}

type ConfirmResponse struct {
	Activated    bool   `json:"activated"`
	Status       string `json:"status"`
	PurchaseID   string `json:"purchase_id,omitempty"`
	CreditsAdded int    `json:"credits_added,omitempty"`
	Message      string `json:"message,omitempty"`
}

type ProductResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CreditsGranted int    `json:"credits_granted"`
	PriceCents     int    `json:"price_cents"`
	Unlimited      bool   `json:"unlimited"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}
