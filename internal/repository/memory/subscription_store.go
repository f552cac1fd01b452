// Package memory provides the in-process stores backing the emulator.
// Records are copied on every read and write, so a returned record can be
// mutated and committed back atomically through Update.
package memory

import (
	"sync"

	"github.com/playforge/iap-emulator/internal/domain"
)

// SubscriptionStore is a mutex-guarded map of subscription records keyed by
// purchase token.
type SubscriptionStore struct {
	mu      sync.RWMutex
	records map[string]*domain.SubscriptionRecord
}

// NewSubscriptionStore returns an empty store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{records: make(map[string]*domain.SubscriptionRecord)}
}

func copySubscription(record *domain.SubscriptionRecord) *domain.SubscriptionRecord {
	clone := *record
	if record.CancelReason != nil {
		reason := *record.CancelReason
		clone.CancelReason = &reason
	}
	clone.TrialEndMillis = copyInt64(record.TrialEndMillis)
	clone.UserCancellationTimeMillis = copyInt64(record.UserCancellationTimeMillis)
	clone.GracePeriodEndMillis = copyInt64(record.GracePeriodEndMillis)
	clone.AccountHoldStartMillis = copyInt64(record.AccountHoldStartMillis)
	clone.PauseStartMillis = copyInt64(record.PauseStartMillis)
	clone.PauseEndMillis = copyInt64(record.PauseEndMillis)
	return &clone
}

func copyInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

// Add inserts a record, failing on a duplicate token.
func (s *SubscriptionStore) Add(record *domain.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.PurchaseToken]; exists {
		return domain.NewInvalidArgumentError("purchase token already exists").
			WithDetail("purchase_token", record.PurchaseToken)
	}
	s.records[record.PurchaseToken] = copySubscription(record)
	return nil
}

// GetByToken returns a copy of the record or SUBSCRIPTION_NOT_FOUND.
func (s *SubscriptionStore) GetByToken(token string) (*domain.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.records[token]
	if !exists {
		return nil, domain.NewSubscriptionNotFoundError(token)
	}
	return copySubscription(record), nil
}

// FindByToken returns a copy of the record and whether it exists.
func (s *SubscriptionStore) FindByToken(token string) (*domain.SubscriptionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.records[token]
	if !exists {
		return nil, false
	}
	return copySubscription(record), true
}

// Update replaces an existing record, failing if the token is unknown.
func (s *SubscriptionStore) Update(record *domain.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.PurchaseToken]; !exists {
		return domain.NewSubscriptionNotFoundError(record.PurchaseToken)
	}
	s.records[record.PurchaseToken] = copySubscription(record)
	return nil
}

// ByUser returns copies of all records belonging to a user.
func (s *SubscriptionStore) ByUser(userID string) []*domain.SubscriptionRecord {
	return s.filter(func(r *domain.SubscriptionRecord) bool {
		return r.UserID == userID
	})
}

// ByState returns copies of all records in the given state.
func (s *SubscriptionStore) ByState(state domain.SubscriptionState) []*domain.SubscriptionRecord {
	return s.filter(func(r *domain.SubscriptionRecord) bool {
		return r.State == state
	})
}

// UserSubscription returns the user's record for a product under a package
// in a holding state (ACTIVE, PAUSED, IN_GRACE_PERIOD or ON_HOLD), if any.
// CANCELED and EXPIRED records do not block a new purchase, and the same
// product under a different package is a separate purchase.
func (s *SubscriptionStore) UserSubscription(userID, subscriptionID, packageName string) (*domain.SubscriptionRecord, bool) {
	matches := s.filter(func(r *domain.SubscriptionRecord) bool {
		if r.UserID != userID || r.SubscriptionID != subscriptionID || r.PackageName != packageName {
			return false
		}
		switch r.State {
		case domain.StateActive, domain.StatePaused, domain.StateInGracePeriod, domain.StateOnHold:
			return true
		}
		return false
	})
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// RenewalsDue returns ACTIVE auto-renewing records whose expiry is at or
// before asOf. CANCELED records never appear here: they keep their state
// past expiry and entitlement checks compare against expiry directly.
func (s *SubscriptionStore) RenewalsDue(asOfMillis int64) []*domain.SubscriptionRecord {
	return s.filter(func(r *domain.SubscriptionRecord) bool {
		return r.State == domain.StateActive &&
			r.AutoRenewing &&
			r.ExpiryTimeMillis <= asOfMillis
	})
}

// InGracePeriod returns records whose grace period has ended at asOf.
func (s *SubscriptionStore) InGracePeriod(asOfMillis int64) []*domain.SubscriptionRecord {
	return s.filter(func(r *domain.SubscriptionRecord) bool {
		return r.State == domain.StateInGracePeriod &&
			r.GracePeriodEndMillis != nil &&
			*r.GracePeriodEndMillis <= asOfMillis
	})
}

// All returns copies of every record.
func (s *SubscriptionStore) All() []*domain.SubscriptionRecord {
	return s.filter(func(*domain.SubscriptionRecord) bool { return true })
}

// Count returns the number of records.
func (s *SubscriptionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every record.
func (s *SubscriptionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*domain.SubscriptionRecord)
}

// Stats summarizes the store for the control API.
func (s *SubscriptionStore) Stats() domain.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.StoreStats{
		Total:     len(s.records),
		ByState:   make(map[string]int),
		ByProduct: make(map[string]int),
	}
	for _, record := range s.records {
		stats.ByState[record.State.String()]++
		stats.ByProduct[record.SubscriptionID]++
		if record.AutoRenewing {
			stats.AutoRenewing++
		}
		if record.IsTrial {
			stats.Trials++
		}
	}
	return stats
}

func (s *SubscriptionStore) filter(keep func(*domain.SubscriptionRecord) bool) []*domain.SubscriptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*domain.SubscriptionRecord
	for _, record := range s.records {
		if keep(record) {
			result = append(result, copySubscription(record))
		}
	}
	return result
}
