package purchases

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/catalog"
	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/repository/memory"
	"github.com/playforge/iap-emulator/pkg/tokens"
)

type fakeClock struct{ millis int64 }

func (c *fakeClock) NowMillis() int64 { return c.millis }

func newManager(t *testing.T) *Manager {
	t.Helper()

	cat, err := catalog.New([]domain.ProductDefinition{
		{
			ProductID:         "coins_100",
			Type:              domain.ProductTypeInApp,
			Title:             "100 Coins",
			PriceAmountMicros: 990_000,
			PriceCurrencyCode: "USD",
		},
		{
			ProductID:         "premium_monthly",
			Type:              domain.ProductTypeSubscription,
			Title:             "Premium Monthly",
			PriceAmountMicros: 9_990_000,
			PriceCurrencyCode: "USD",
			BillingPeriod:     "P1M",
		},
	})
	require.NoError(t, err)

	return NewManager(memory.NewPurchaseStore(), cat, nil, &fakeClock{millis: 1_000_000},
		tokens.NewIssuer("test"), "com.example.app", zap.NewNop())
}

func TestCreate(t *testing.T) {
	m := newManager(t)

	record, err := m.Create(context.Background(), CreateRequest{
		UserID:    "user-1",
		ProductID: "coins_100",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PurchasePurchased, record.PurchaseState)
	assert.Equal(t, domain.ConsumptionYetToBeConsumed, record.ConsumptionState)
	assert.False(t, record.Acknowledged)
	assert.Equal(t, 1, record.Quantity)
	assert.Equal(t, "com.example.app", record.PackageName)
	assert.Equal(t, int64(990_000), record.PriceAmountMicros)
}

func TestCreate_SubscriptionProductRejected(t *testing.T) {
	m := newManager(t)

	_, err := m.Create(context.Background(), CreateRequest{
		UserID:    "user-1",
		ProductID: "premium_monthly",
	})

	assert.True(t, domain.IsInvalidArgument(err))
}

func TestCreate_UnknownProduct(t *testing.T) {
	m := newManager(t)

	_, err := m.Create(context.Background(), CreateRequest{
		UserID:    "user-1",
		ProductID: "missing",
	})

	assert.True(t, domain.IsNotFound(err))
}

func TestAcknowledge_Idempotent(t *testing.T) {
	m := newManager(t)
	record, err := m.Create(context.Background(), CreateRequest{UserID: "user-1", ProductID: "coins_100"})
	require.NoError(t, err)

	first, err := m.Acknowledge(context.Background(), record.PurchaseToken)
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)

	second, err := m.Acknowledge(context.Background(), record.PurchaseToken)
	require.NoError(t, err)
	assert.True(t, second.Acknowledged)
}

func TestConsume_OnceOnly(t *testing.T) {
	m := newManager(t)
	record, err := m.Create(context.Background(), CreateRequest{UserID: "user-1", ProductID: "coins_100"})
	require.NoError(t, err)

	consumed, err := m.Consume(context.Background(), record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumptionConsumed, consumed.ConsumptionState)

	_, err = m.Consume(context.Background(), record.PurchaseToken)
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestConsume_ConcurrentCallsConsumeOnce(t *testing.T) {
	m := newManager(t)
	record, err := m.Create(context.Background(), CreateRequest{UserID: "user-1", ProductID: "coins_100"})
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Consume(context.Background(), record.PurchaseToken); err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	final, err := m.Get(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumptionConsumed, final.ConsumptionState)
}

func TestCancel(t *testing.T) {
	m := newManager(t)
	record, err := m.Create(context.Background(), CreateRequest{UserID: "user-1", ProductID: "coins_100"})
	require.NoError(t, err)

	canceled, err := m.Cancel(context.Background(), record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseCanceled, canceled.PurchaseState)

	_, err = m.Cancel(context.Background(), record.PurchaseToken)
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = m.Consume(context.Background(), record.PurchaseToken)
	assert.True(t, domain.IsInvalidArgument(err))
}
