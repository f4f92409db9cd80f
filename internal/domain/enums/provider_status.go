package enums

import "strings"

// ProviderStatus is the normalized payment status reported by the billing
// provider. Anything the provider returns that is not in the mapping table
// resolves to ProviderStatusUnknown, which callers treat like a still-pending
// payment.
type ProviderStatus string

const (
	ProviderStatusPaid      ProviderStatus = "paid"
	ProviderStatusPending   ProviderStatus = "pending"
	ProviderStatusExpired   ProviderStatus = "expired"
	ProviderStatusCancelled ProviderStatus = "cancelled"
	ProviderStatusUnknown   ProviderStatus = "unknown"
)

var providerStatusByRaw = map[string]ProviderStatus{
	"paid":       ProviderStatusPaid,
	"approved":   ProviderStatusPaid,
	"confirmed":  ProviderStatusPaid,
	"completed":  ProviderStatusPaid,
	"pending":    ProviderStatusPending,
	"waiting":    ProviderStatusPending,
	"created":    ProviderStatusPending,
	"processing": ProviderStatusPending,
	"expired":    ProviderStatusExpired,
	"cancelled":  ProviderStatusCancelled,
	"canceled":   ProviderStatusCancelled,
	"refused":    ProviderStatusCancelled,
	"refunded":   ProviderStatusCancelled,
}

func NormalizeProviderStatus(raw string) ProviderStatus {
	status, ok := providerStatusByRaw[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return ProviderStatusUnknown
	}
	return status
}

func (s ProviderStatus) Final() bool {
	return s == ProviderStatusPaid || s == ProviderStatusExpired || s == ProviderStatusCancelled
}
