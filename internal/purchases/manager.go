// Package purchases manages one-time product purchases. Unlike
// subscriptions these have no time-driven transitions: state only changes
// through explicit acknowledge, consume and cancel calls.
package purchases

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/domain/ports"
	"github.com/playforge/iap-emulator/pkg/tokens"
)

// Manager drives one-time product purchase state against the store.
type Manager struct {
	store          ports.PurchaseStore
	catalog        ports.ProductCatalog
	notifier       ports.NotificationPort
	clock          ports.Clock
	issuer         *tokens.Issuer
	defaultPackage string
	logger         *zap.Logger
	tokenLocks     sync.Map
}

// lockToken serializes mutating operations on one purchase token so that
// interleaved load-mutate-commit cycles cannot overwrite each other.
func (m *Manager) lockToken(token string) func() {
	v, _ := m.tokenLocks.LoadOrStore(token, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// NewManager wires a manager from its collaborators.
func NewManager(
	store ports.PurchaseStore,
	catalog ports.ProductCatalog,
	notifier ports.NotificationPort,
	clock ports.Clock,
	issuer *tokens.Issuer,
	defaultPackage string,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:          store,
		catalog:        catalog,
		notifier:       notifier,
		clock:          clock,
		issuer:         issuer,
		defaultPackage: defaultPackage,
		logger:         logger,
	}
}

// CreateRequest carries the inputs for a new one-time purchase.
type CreateRequest struct {
	UserID      string
	ProductID   string
	PackageName string
	Quantity    int
}

// Create purchases a one-time product for a user.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*domain.ProductPurchaseRecord, error) {
	if req.UserID == "" {
		return nil, domain.NewInvalidArgumentError("user id is required")
	}

	product, err := m.catalog.Get(req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.IsSubscription() {
		return nil, domain.NewInvalidArgumentError("product is a subscription, not a one-time product").
			WithDetail("product_id", req.ProductID)
	}

	now := m.clock.NowMillis()
	packageName := req.PackageName
	if packageName == "" {
		packageName = m.defaultPackage
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	record := &domain.ProductPurchaseRecord{
		PurchaseToken:      m.issuer.PurchaseToken(now),
		OrderID:            tokens.OrderID(),
		UserID:             req.UserID,
		ProductID:          req.ProductID,
		PackageName:        packageName,
		PurchaseState:      domain.PurchasePurchased,
		PurchaseTimeMillis: now,
		UpdatedAtMillis:    now,
		PriceAmountMicros:  product.PriceAmountMicros,
		PriceCurrencyCode:  product.PriceCurrencyCode,
		Quantity:           quantity,
	}

	if err := m.store.Add(record); err != nil {
		return nil, err
	}

	m.logger.Info("product purchased",
		zap.String("purchase_token", record.PurchaseToken),
		zap.String("product_id", record.ProductID),
		zap.String("user_id", record.UserID))

	m.publish(ctx, domain.OneTimeProductPurchased, record)
	return record, nil
}

// Get returns the record for a purchase token.
func (m *Manager) Get(token string) (*domain.ProductPurchaseRecord, error) {
	return m.store.GetByToken(token)
}

// ByUser returns all of a user's purchases.
func (m *Manager) ByUser(userID string) []*domain.ProductPurchaseRecord {
	return m.store.ByUser(userID)
}

// Acknowledge marks the purchase acknowledged. Repeat calls succeed and
// leave the record unchanged.
func (m *Manager) Acknowledge(ctx context.Context, token string) (*domain.ProductPurchaseRecord, error) {
	defer m.lockToken(token)()

	record, err := m.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.Acknowledged {
		return record, nil
	}

	record.Acknowledged = true
	record.UpdatedAtMillis = m.clock.NowMillis()

	if err := m.store.Update(record); err != nil {
		return nil, err
	}

	m.logger.Info("purchase acknowledged",
		zap.String("purchase_token", record.PurchaseToken))
	return record, nil
}

// Consume marks a consumable purchase consumed. Consuming twice fails.
func (m *Manager) Consume(ctx context.Context, token string) (*domain.ProductPurchaseRecord, error) {
	defer m.lockToken(token)()

	record, err := m.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.PurchaseState != domain.PurchasePurchased {
		return nil, domain.NewInvalidArgumentError("only completed purchases can be consumed").
			WithDetail("purchase_state", record.PurchaseState.String())
	}
	if record.ConsumptionState == domain.ConsumptionConsumed {
		return nil, domain.NewInvalidArgumentError("purchase already consumed").
			WithDetail("purchase_token", token)
	}

	record.ConsumptionState = domain.ConsumptionConsumed
	record.UpdatedAtMillis = m.clock.NowMillis()

	if err := m.store.Update(record); err != nil {
		return nil, err
	}

	m.logger.Info("purchase consumed",
		zap.String("purchase_token", record.PurchaseToken))
	return record, nil
}

// Cancel refunds and cancels a purchase.
func (m *Manager) Cancel(ctx context.Context, token string) (*domain.ProductPurchaseRecord, error) {
	defer m.lockToken(token)()

	record, err := m.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.PurchaseState == domain.PurchaseCanceled {
		return nil, domain.NewInvalidArgumentError("purchase already canceled").
			WithDetail("purchase_token", token)
	}

	record.PurchaseState = domain.PurchaseCanceled
	record.UpdatedAtMillis = m.clock.NowMillis()

	if err := m.store.Update(record); err != nil {
		return nil, err
	}

	m.logger.Info("purchase canceled",
		zap.String("purchase_token", record.PurchaseToken))

	m.publish(ctx, domain.OneTimeProductCanceled, record)
	return record, nil
}

func (m *Manager) publish(ctx context.Context, notificationType int, record *domain.ProductPurchaseRecord) {
	if m.notifier == nil {
		return
	}
	if !m.notifier.PublishProductEvent(ctx, notificationType, record.PurchaseToken, record.ProductID, record.PackageName) {
		m.logger.Warn("notification publish failed",
			zap.Int("notification_type", notificationType),
			zap.String("purchase_token", record.PurchaseToken))
	}
}
