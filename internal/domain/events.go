package domain

import "strconv"

// DeveloperNotification is the RTDN payload carried base64-encoded inside a
// Pub/Sub push message. Exactly one of the notification fields is set.
// Field names follow Play's published JSON schema.
type DeveloperNotification struct {
	Version                    string                      `json:"version"`
	PackageName                string                      `json:"packageName"`
	EventTimeMillis            string                      `json:"eventTimeMillis"`
	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

// SubscriptionNotification describes a subscription lifecycle event.
type SubscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

// OneTimeProductNotification describes a one-time product event.
type OneTimeProductNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SKU              string `json:"sku"`
}

// TestNotification is the payload sent by the test-notification endpoint.
type TestNotification struct {
	Version string `json:"version"`
}

// NotificationVersion is the schema version stamped on every notification.
const NotificationVersion = "1.0"

// One-time product notification types, matching Play's integer values.
const (
	OneTimeProductPurchased = 1
	OneTimeProductCanceled  = 2
)

// NewSubscriptionNotification builds a complete DeveloperNotification for a
// subscription lifecycle event.
func NewSubscriptionNotification(nt NotificationType, packageName, token, subscriptionID string, eventTimeMillis int64) *DeveloperNotification {
	return &DeveloperNotification{
		Version:         NotificationVersion,
		PackageName:     packageName,
		EventTimeMillis: strconv.FormatInt(eventTimeMillis, 10),
		SubscriptionNotification: &SubscriptionNotification{
			Version:          NotificationVersion,
			NotificationType: int(nt),
			PurchaseToken:    token,
			SubscriptionID:   subscriptionID,
		},
	}
}

// NewOneTimeProductNotification builds a complete DeveloperNotification for
// a one-time product event.
func NewOneTimeProductNotification(notificationType int, packageName, token, sku string, eventTimeMillis int64) *DeveloperNotification {
	return &DeveloperNotification{
		Version:         NotificationVersion,
		PackageName:     packageName,
		EventTimeMillis: strconv.FormatInt(eventTimeMillis, 10),
		OneTimeProductNotification: &OneTimeProductNotification{
			Version:          NotificationVersion,
			NotificationType: notificationType,
			PurchaseToken:    token,
			SKU:              sku,
		},
	}
}

// NewTestNotification builds the payload for the test endpoint.
func NewTestNotification(packageName string, eventTimeMillis int64) *DeveloperNotification {
	return &DeveloperNotification{
		Version:          NotificationVersion,
		PackageName:      packageName,
		EventTimeMillis:  strconv.FormatInt(eventTimeMillis, 10),
		TestNotification: &TestNotification{Version: NotificationVersion},
	}
}
