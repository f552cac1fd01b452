package memory

import (
	"sync"

	"github.com/playforge/iap-emulator/internal/domain"
)

// PurchaseStore is a mutex-guarded map of one-time product purchases keyed
// by purchase token.
type PurchaseStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ProductPurchaseRecord
}

// NewPurchaseStore returns an empty store.
func NewPurchaseStore() *PurchaseStore {
	return &PurchaseStore{records: make(map[string]*domain.ProductPurchaseRecord)}
}

func copyPurchase(record *domain.ProductPurchaseRecord) *domain.ProductPurchaseRecord {
	clone := *record
	return &clone
}

// Add inserts a record, failing on a duplicate token.
func (s *PurchaseStore) Add(record *domain.ProductPurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.PurchaseToken]; exists {
		return domain.NewInvalidArgumentError("purchase token already exists").
			WithDetail("purchase_token", record.PurchaseToken)
	}
	s.records[record.PurchaseToken] = copyPurchase(record)
	return nil
}

// GetByToken returns a copy of the record or PURCHASE_NOT_FOUND.
func (s *PurchaseStore) GetByToken(token string) (*domain.ProductPurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.records[token]
	if !exists {
		return nil, domain.NewPurchaseNotFoundError(token)
	}
	return copyPurchase(record), nil
}

// Update replaces an existing record, failing if the token is unknown.
func (s *PurchaseStore) Update(record *domain.ProductPurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.PurchaseToken]; !exists {
		return domain.NewPurchaseNotFoundError(record.PurchaseToken)
	}
	s.records[record.PurchaseToken] = copyPurchase(record)
	return nil
}

// ByUser returns copies of all purchases belonging to a user.
func (s *PurchaseStore) ByUser(userID string) []*domain.ProductPurchaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*domain.ProductPurchaseRecord
	for _, record := range s.records {
		if record.UserID == userID {
			result = append(result, copyPurchase(record))
		}
	}
	return result
}

// All returns copies of every record.
func (s *PurchaseStore) All() []*domain.ProductPurchaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.ProductPurchaseRecord, 0, len(s.records))
	for _, record := range s.records {
		result = append(result, copyPurchase(record))
	}
	return result
}

// Count returns the number of records.
func (s *PurchaseStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every record.
func (s *PurchaseStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*domain.ProductPurchaseRecord)
}
