// Package ports declares the interfaces wiring the emulator's layers
// together. Implementations live in repository, catalog, events and
// timeutil.
package ports

import (
	"context"

	"github.com/playforge/iap-emulator/internal/domain"
)

// Clock supplies the current time in Unix milliseconds. The engine reads
// all timestamps through this so the virtual clock governs every operation.
type Clock interface {
	NowMillis() int64
}

// ProductCatalog resolves product definitions loaded at startup.
type ProductCatalog interface {
	// Get returns the definition for id or a PRODUCT_NOT_FOUND error.
	Get(id string) (*domain.ProductDefinition, error)
	// Find returns the definition and whether it exists.
	Find(id string) (*domain.ProductDefinition, bool)
	// All returns every definition, optionally filtered by type.
	All(productType domain.ProductType) []*domain.ProductDefinition
}

// SubscriptionStore holds subscription records. Implementations copy
// records in and out, so callers may mutate returned values freely.
type SubscriptionStore interface {
	// Add inserts a record, failing on a duplicate token.
	Add(record *domain.SubscriptionRecord) error
	// GetByToken returns the record or a SUBSCRIPTION_NOT_FOUND error.
	GetByToken(token string) (*domain.SubscriptionRecord, error)
	// FindByToken returns the record and whether it exists.
	FindByToken(token string) (*domain.SubscriptionRecord, bool)
	// Update replaces an existing record, failing if the token is unknown.
	Update(record *domain.SubscriptionRecord) error
	// ByUser returns all records belonging to a user.
	ByUser(userID string) []*domain.SubscriptionRecord
	// ByState returns all records in the given state.
	ByState(state domain.SubscriptionState) []*domain.SubscriptionRecord
	// UserSubscription returns the user's record for a product under a
	// package in a holding state (ACTIVE, PAUSED, IN_GRACE_PERIOD or
	// ON_HOLD), if any.
	UserSubscription(userID, subscriptionID, packageName string) (*domain.SubscriptionRecord, bool)
	// RenewalsDue returns ACTIVE auto-renewing records whose expiry is at
	// or before asOf.
	RenewalsDue(asOfMillis int64) []*domain.SubscriptionRecord
	// InGracePeriod returns records whose grace period has ended at asOf.
	InGracePeriod(asOfMillis int64) []*domain.SubscriptionRecord
	// All returns every record.
	All() []*domain.SubscriptionRecord
	// Count returns the number of records.
	Count() int
	// Clear removes every record.
	Clear()
	// Stats summarizes the store.
	Stats() domain.StoreStats
}

// PurchaseStore holds one-time product purchase records.
type PurchaseStore interface {
	Add(record *domain.ProductPurchaseRecord) error
	GetByToken(token string) (*domain.ProductPurchaseRecord, error)
	Update(record *domain.ProductPurchaseRecord) error
	ByUser(userID string) []*domain.ProductPurchaseRecord
	All() []*domain.ProductPurchaseRecord
	Count() int
	Clear()
}

// NotificationPort publishes lifecycle events to the configured sinks.
// Publish failures are reported through the return value and must never
// abort the state change that triggered them.
type NotificationPort interface {
	PublishSubscriptionEvent(ctx context.Context, nt domain.NotificationType, token, subscriptionID, packageName string) bool
	PublishProductEvent(ctx context.Context, notificationType int, token, sku, packageName string) bool
}

// SubscriptionEngine is the slice of the engine the time controller drives
// during clock advancement.
type SubscriptionEngine interface {
	// Renew processes one billing renewal. A zero renewalTimeMillis means
	// "renew from the record's current expiry".
	Renew(ctx context.Context, token string, renewalTimeMillis int64) (*domain.SubscriptionRecord, error)
	// ProcessGracePeriodExpirations moves records whose grace period has
	// lapsed at asOf into account hold, returning the affected records.
	ProcessGracePeriodExpirations(ctx context.Context, asOfMillis int64) []*domain.SubscriptionRecord
}
