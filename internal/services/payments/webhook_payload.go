package payments

import "strings"

// Paid events arrive under two names depending on the provider's API
// revision. Everything else is acknowledged without processing.
func isPaidEvent(event string) bool {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "billing.paid", "payment.approved":
		return true
	default:
		return false
	}
}

// billingIDFromPayload walks the shapes the provider has shipped for paid
// notifications, newest first. The id may sit on a nested billing object, on
// the data object itself, or on payment / pixQrCode objects for PIX flows.
func billingIDFromPayload(payload map[string]any) string {
	data := childMap(payload, "data")
	if data == nil {
		return ""
	}

	if id := childString(childMap(data, "billing"), "id"); id != "" {
		return id
	}
	if id := childString(data, "id"); id != "" {
		return id
	}
	if id := childString(childMap(data, "payment"), "billingId"); id != "" {
		return id
	}
	return childString(childMap(data, "pixQrCode"), "billingId")
}

// externalIDFromPayload mirrors billingIDFromPayload for the externalId we set
// at checkout, which is our purchase id.
func externalIDFromPayload(payload map[string]any) string {
	data := childMap(payload, "data")
	if data == nil {
		return ""
	}

	if id := childString(childMap(data, "billing"), "externalId"); id != "" {
		return id
	}
	if id := childString(data, "externalId"); id != "" {
		return id
	}
	if id := childString(childMap(data, "payment"), "externalId"); id != "" {
		return id
	}
	return childString(childMap(data, "pixQrCode"), "externalId")
}

func childMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return nil
	}
	child, _ := parent[key].(map[string]any)
	return child
}

func childString(parent map[string]any, key string) string {
	if parent == nil {
		return ""
	}
	value, _ := parent[key].(string)
	return strings.TrimSpace(value)
}
