package timectrl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/catalog"
	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/engine"
	"github.com/playforge/iap-emulator/internal/repository/memory"
	"github.com/playforge/iap-emulator/pkg/billingperiod"
	"github.com/playforge/iap-emulator/pkg/timeutil"
	"github.com/playforge/iap-emulator/pkg/tokens"
)

type testFixture struct {
	controller *Controller
	engine     *engine.Engine
	store      *memory.SubscriptionStore
	clock      *timeutil.VirtualClock
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	cat, err := catalog.New([]domain.ProductDefinition{
		{
			ProductID:         "premium_monthly",
			Type:              domain.ProductTypeSubscription,
			Title:             "Premium Monthly",
			PriceAmountMicros: 9_990_000,
			PriceCurrencyCode: "USD",
			BillingPeriod:     "P1M",
			TrialPeriod:       "P7D",
			GracePeriod:       "P7D",
		},
	})
	require.NoError(t, err)

	store := memory.NewSubscriptionStore()
	clock := timeutil.NewVirtualClock()
	eng := engine.NewEngine(store, cat, nil, clock, tokens.NewIssuer("test"), "com.example.app", zap.NewNop())
	controller := NewController(clock, eng, store, zap.NewNop())

	return &testFixture{controller: controller, engine: eng, store: store, clock: clock}
}

func (f *testFixture) create(t *testing.T, withTrial bool) *domain.SubscriptionRecord {
	t.Helper()
	record, err := f.engine.Create(context.Background(), engine.CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
		WithTrial:      withTrial,
	})
	require.NoError(t, err)
	return record
}

func TestAdvance_NegativeRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.Advance(context.Background(), -1, 0, 0)
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = f.controller.Advance(context.Background(), 0, -1, 0)
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = f.controller.Advance(context.Background(), 0, 0, -1)
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestAdvance_ZeroIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.create(t, false)
	before := f.controller.NowMillis()

	result, err := f.controller.Advance(context.Background(), 0, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, before, result.NewTimeMillis)
	assert.Zero(t, result.AdvancedMillis)
	assert.Empty(t, result.RenewedTokens)
	assert.Empty(t, result.OnHoldTokens)
}

func TestAdvance_ComputesDelta(t *testing.T) {
	f := newFixture(t)

	result, err := f.controller.Advance(context.Background(), 1, 2, 30)

	require.NoError(t, err)
	wantDelta := billingperiod.MillisPerDay + 2*billingperiod.MillisPerHour + 30*billingperiod.MillisPerMinute
	assert.Equal(t, wantDelta, result.AdvancedMillis)
	assert.Equal(t, result.OldTimeMillis+wantDelta, result.NewTimeMillis)
}

func TestAdvance_SinglePeriodRenews(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, false)

	result, err := f.controller.Advance(context.Background(), 35, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{record.PurchaseToken}, result.RenewedTokens)

	got, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RenewalCount)
	assert.Equal(t, record.ExpiryTimeMillis+billingperiod.MillisPerMonth, got.ExpiryTimeMillis)
}

func TestAdvance_MultiPeriodCatchUp(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, false)

	result, err := f.controller.Advance(context.Background(), 95, 0, 0)

	require.NoError(t, err)
	assert.Len(t, result.RenewedTokens, 3)
	for _, token := range result.RenewedTokens {
		assert.Equal(t, record.PurchaseToken, token)
	}

	got, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RenewalCount)
	assert.Equal(t, record.StartTimeMillis+4*billingperiod.MillisPerMonth, got.ExpiryTimeMillis)
}

func TestAdvance_SeparateCallsOnePeriodEach(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, false)

	for i := 0; i < 3; i++ {
		_, err := f.controller.Advance(context.Background(), 30, 0, 0)
		require.NoError(t, err)
	}

	got, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RenewalCount)
}

func TestAdvance_TrialConvertsToPaid(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, true)

	result, err := f.controller.Advance(context.Background(), 8, 0, 0)

	require.NoError(t, err)
	assert.Len(t, result.RenewedTokens, 1)

	got, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.False(t, got.IsTrial)
	assert.Equal(t, domain.PaymentReceived, got.PaymentState)
	assert.Equal(t, 1, got.RenewalCount)
}

func TestAdvance_CanceledNeverAutoExpires(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, false)
	_, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)
	require.NoError(t, err)

	result, err := f.controller.Advance(context.Background(), 40, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, result.RenewedTokens)

	got, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCanceled, got.State)
	assert.Zero(t, got.RenewalCount)
}

func TestAdvance_PausedAndHeldNeverRenew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paused := f.create(t, false)
	_, err := f.engine.Pause(ctx, paused.PurchaseToken, 60*billingperiod.MillisPerDay)
	require.NoError(t, err)

	held, err := f.engine.Create(ctx, engine.CreateRequest{
		UserID:         "user-2",
		SubscriptionID: "premium_monthly",
	})
	require.NoError(t, err)
	_, err = f.engine.SimulatePaymentFailure(ctx, held.PurchaseToken, 0)
	require.NoError(t, err)
	_, err = f.engine.TransitionToAccountHold(ctx, held.PurchaseToken, 0)
	require.NoError(t, err)

	result, err := f.controller.Advance(ctx, 120, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, result.RenewedTokens)
}

func TestAdvance_GracePeriodBoundaryExact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.create(t, false)
	_, err := f.engine.SimulatePaymentFailure(ctx, record.PurchaseToken, 0)
	require.NoError(t, err)

	result, err := f.controller.Advance(ctx, 6, 23, 59)
	require.NoError(t, err)
	assert.Empty(t, result.OnHoldTokens)

	got, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInGracePeriod, got.State)

	result, err = f.controller.Advance(ctx, 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{record.PurchaseToken}, result.OnHoldTokens)

	got, err = f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOnHold, got.State)
}

func TestSetTime_ForwardProcessesRenewals(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, false)
	target := f.controller.NowMillis() + 35*billingperiod.MillisPerDay

	result, err := f.controller.SetTime(context.Background(), target)

	require.NoError(t, err)
	assert.Equal(t, target, result.NewTimeMillis)
	assert.Equal(t, []string{record.PurchaseToken}, result.RenewedTokens)
}

func TestSetTime_BackwardRejected(t *testing.T) {
	f := newFixture(t)
	now := f.controller.NowMillis()

	_, err := f.controller.SetTime(context.Background(), now-1)

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeTimeBackwards, domain.CodeOf(err))
	assert.Equal(t, now, f.controller.NowMillis())
}

func TestResetTime_ReturnsToWallClock(t *testing.T) {
	f := newFixture(t)
	_, err := f.controller.Advance(context.Background(), 100, 0, 0)
	require.NoError(t, err)
	virtual := f.controller.NowMillis()

	result := f.controller.ResetTime()

	assert.Equal(t, virtual, result.OldTimeMillis)
	assert.Less(t, result.NewTimeMillis, virtual)
	assert.LessOrEqual(t, result.NewTimeMillis, timeutil.NowMillis())
}

func TestMonotonicAcrossAdvanceAndSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	previous := f.controller.NowMillis()
	for i := 0; i < 5; i++ {
		result, err := f.controller.Advance(ctx, 1, 0, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.NewTimeMillis, previous)
		previous = result.NewTimeMillis
	}

	result, err := f.controller.SetTime(ctx, previous+1000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.NewTimeMillis, previous)
}
