package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/catalog"
	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/repository/memory"
	"github.com/playforge/iap-emulator/pkg/billingperiod"
	"github.com/playforge/iap-emulator/pkg/tokens"
)

type fakeClock struct {
	mu     sync.Mutex
	millis int64
}

func (c *fakeClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.millis
}

func (c *fakeClock) advance(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.millis += delta
}

type publishedEvent struct {
	Type  domain.NotificationType
	Token string
}

type fakeNotifier struct {
	mu     sync.Mutex
	fail   bool
	events []publishedEvent
}

func (n *fakeNotifier) PublishSubscriptionEvent(_ context.Context, nt domain.NotificationType, token, _, _ string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return false
	}
	n.events = append(n.events, publishedEvent{Type: nt, Token: token})
	return true
}

func (n *fakeNotifier) PublishProductEvent(_ context.Context, _ int, _, _, _ string) bool {
	return !n.fail
}

func (n *fakeNotifier) lastEvent() (publishedEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return publishedEvent{}, false
	}
	return n.events[len(n.events)-1], true
}

type testFixture struct {
	engine   *Engine
	store    *memory.SubscriptionStore
	clock    *fakeClock
	notifier *fakeNotifier
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
		{
			ProductID:         "basic_weekly",
			Type:              domain.ProductTypeSubscription,
			Title:             "Basic Weekly",
			PriceAmountMicros: 1_990_000,
			PriceCurrencyCode: "USD",
			BillingPeriod:     "P1W",
		},
		{
			ProductID:         "coins_100",
			Type:              domain.ProductTypeInApp,
			Title:             "100 Coins",
			PriceAmountMicros: 990_000,
			PriceCurrencyCode: "USD",
		},
	})
	require.NoError(t, err)

	store := memory.NewSubscriptionStore()
	clock := &fakeClock{millis: 1_000_000}
	notifier := &fakeNotifier{}
	eng := NewEngine(store, cat, notifier, clock, tokens.NewIssuer("test"), "com.example.app", zap.NewNop())

	return &testFixture{engine: eng, store: store, clock: clock, notifier: notifier}
}

func (f *testFixture) createActive(t *testing.T) *domain.SubscriptionRecord {
	t.Helper()
	record, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
	})
	require.NoError(t, err)
	return record
}

func TestCreate_WithoutTrial(t *testing.T) {
	f := newFixture(t)

	record := f.createActive(t)

	assert.Equal(t, domain.StateActive, record.State)
	assert.Equal(t, domain.PaymentReceived, record.PaymentState)
	assert.True(t, record.AutoRenewing)
	assert.False(t, record.IsTrial)
	assert.Equal(t, f.clock.NowMillis()+billingperiod.MillisPerMonth, record.ExpiryTimeMillis)
	assert.Equal(t, "com.example.app", record.PackageName)
	assert.Equal(t, int64(9_990_000), record.PriceAmountMicros)

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationPurchased, event.Type)
}

func TestCreate_WithTrial(t *testing.T) {
	f := newFixture(t)

	record, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
		WithTrial:      true,
	})

	require.NoError(t, err)
	assert.True(t, record.IsTrial)
	assert.Equal(t, domain.PaymentFreeTrial, record.PaymentState)
	assert.Equal(t, f.clock.NowMillis()+7*billingperiod.MillisPerDay, record.ExpiryTimeMillis)
	require.NotNil(t, record.TrialEndMillis)
	assert.Equal(t, record.ExpiryTimeMillis, *record.TrialEndMillis)
}

func TestCreate_TrialRequestedWithoutTrialConfigured(t *testing.T) {
	f := newFixture(t)

	record, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "basic_weekly",
		WithTrial:      true,
	})

	require.NoError(t, err)
	assert.False(t, record.IsTrial)
	assert.Equal(t, domain.PaymentReceived, record.PaymentState)
}

func TestCreate_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "missing",
	})

	assert.True(t, domain.IsNotFound(err))
}

func TestCreate_OneTimeProductRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "coins_100",
	})

	assert.True(t, domain.IsInvalidArgument(err))
}

func TestCreate_DuplicateActiveRejected(t *testing.T) {
	f := newFixture(t)
	f.createActive(t)

	_, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
	})

	assert.True(t, domain.IsConflict(err))
}

func TestCreate_SameProductDifferentPackage(t *testing.T) {
	f := newFixture(t)
	first := f.createActive(t)

	second, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
		PackageName:    "com.example.other",
	})

	require.NoError(t, err)
	assert.Equal(t, "com.example.other", second.PackageName)
	assert.NotEqual(t, first.PurchaseToken, second.PurchaseToken)
}

func TestCreate_ExplicitDefaultPackageStillConflicts(t *testing.T) {
	f := newFixture(t)
	f.createActive(t)

	_, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
		PackageName:    "com.example.app",
	})

	assert.True(t, domain.IsConflict(err))
}

func TestCreate_AllowedAfterCancellation(t *testing.T) {
	f := newFixture(t)
	first := f.createActive(t)

	_, err := f.engine.Cancel(context.Background(), first.PurchaseToken, domain.CancelUser, false)
	require.NoError(t, err)

	second, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.PurchaseToken, second.PurchaseToken)
}

func TestRenew_DefaultsToCurrentExpiry(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	oldExpiry := record.ExpiryTimeMillis

	renewed, err := f.engine.Renew(context.Background(), record.PurchaseToken, 0)

	require.NoError(t, err)
	assert.Equal(t, oldExpiry+billingperiod.MillisPerMonth, renewed.ExpiryTimeMillis)
	assert.Equal(t, 1, renewed.RenewalCount)

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationRenewed, event.Type)
}

func TestRenew_TrialConverts(t *testing.T) {
	f := newFixture(t)
	record, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
		WithTrial:      true,
	})
	require.NoError(t, err)

	renewed, err := f.engine.Renew(context.Background(), record.PurchaseToken, 0)

	require.NoError(t, err)
	assert.False(t, renewed.IsTrial)
	assert.Nil(t, renewed.TrialEndMillis)
	assert.Equal(t, domain.PaymentReceived, renewed.PaymentState)
	assert.Equal(t, 1, renewed.RenewalCount)
}

func TestRenew_ReactivatesCanceled(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	_, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)
	require.NoError(t, err)

	renewed, err := f.engine.Renew(context.Background(), record.PurchaseToken, 0)

	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, renewed.State)
	assert.True(t, renewed.AutoRenewing)
	assert.Nil(t, renewed.CancelReason)
	assert.Nil(t, renewed.UserCancellationTimeMillis)
}

func TestRenew_AutoRenewDisabledRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	record.AutoRenewing = false
	require.NoError(t, f.store.Update(record))

	_, err := f.engine.Renew(context.Background(), record.PurchaseToken, 0)

	assert.True(t, domain.IsInvalidState(err))
}

func TestRenew_ExpiredRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	_, err := f.engine.Revoke(context.Background(), record.PurchaseToken, 0)
	require.NoError(t, err)

	_, err = f.engine.Renew(context.Background(), record.PurchaseToken, 0)

	assert.True(t, domain.IsInvalidState(err))
}

func TestRenew_ConcurrentCallsAllCounted(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	const renewals = 20
	var wg sync.WaitGroup
	for i := 0; i < renewals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Renew(context.Background(), record.PurchaseToken, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, renewals, final.RenewalCount)
	assert.Equal(t, record.ExpiryTimeMillis+renewals*billingperiod.MillisPerMonth, final.ExpiryTimeMillis)
}

func TestRenew_ConcurrentWithCancelKeepsBothEffects(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.engine.Renew(context.Background(), record.PurchaseToken, 0)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)
		assert.NoError(t, err)
	}()
	wg.Wait()

	// Whichever order the two land in, neither write may be lost: the
	// renewal count reflects the renew and the record carries a cancel
	// unless the renew reactivated it afterwards.
	final, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, 1, final.RenewalCount)
	assert.Contains(t, []domain.SubscriptionState{domain.StateActive, domain.StateCanceled}, final.State)
}

func TestCancel_NonImmediateKeepsEntitlement(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	oldExpiry := record.ExpiryTimeMillis

	canceled, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StateCanceled, canceled.State)
	assert.False(t, canceled.AutoRenewing)
	assert.Equal(t, oldExpiry, canceled.ExpiryTimeMillis)
	require.NotNil(t, canceled.CancelReason)
	assert.Equal(t, domain.CancelUser, *canceled.CancelReason)
	assert.True(t, canceled.Entitled())

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationCanceled, event.Type)
}

func TestCancel_ImmediateExpires(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	canceled, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelDeveloper, true)

	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, canceled.State)
	assert.Equal(t, f.clock.NowMillis(), canceled.ExpiryTimeMillis)
	assert.False(t, canceled.Entitled())

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationExpired, event.Type)
}

func TestCancel_AlreadyCanceledRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	_, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)

	assert.True(t, domain.IsInvalidState(err))
}

func TestPause_ExtendsExpiryByExactDuration(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	oldExpiry := record.ExpiryTimeMillis
	duration := 10 * billingperiod.MillisPerDay

	paused, err := f.engine.Pause(context.Background(), record.PurchaseToken, duration)

	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, paused.State)
	assert.Equal(t, oldExpiry+duration, paused.ExpiryTimeMillis)
	require.NotNil(t, paused.PauseStartMillis)
	require.NotNil(t, paused.PauseEndMillis)
	assert.Equal(t, *paused.PauseStartMillis+duration, *paused.PauseEndMillis)
}

func TestPause_NonPositiveDurationRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	_, err := f.engine.Pause(context.Background(), record.PurchaseToken, 0)
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = f.engine.Pause(context.Background(), record.PurchaseToken, -1)
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestPause_NonActiveRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	_, err := f.engine.Cancel(context.Background(), record.PurchaseToken, domain.CancelUser, false)
	require.NoError(t, err)

	_, err = f.engine.Pause(context.Background(), record.PurchaseToken, 1000)

	assert.True(t, domain.IsInvalidState(err))
}

func TestResume_KeepsExtendedExpiry(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	duration := 5 * billingperiod.MillisPerDay
	paused, err := f.engine.Pause(context.Background(), record.PurchaseToken, duration)
	require.NoError(t, err)

	resumed, err := f.engine.Resume(context.Background(), record.PurchaseToken)

	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, resumed.State)
	assert.Equal(t, paused.ExpiryTimeMillis, resumed.ExpiryTimeMillis)
	assert.Nil(t, resumed.PauseStartMillis)
	assert.Nil(t, resumed.PauseEndMillis)

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationRestarted, event.Type)
}

func TestResume_NotPausedRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	_, err := f.engine.Resume(context.Background(), record.PurchaseToken)

	assert.True(t, domain.IsInvalidState(err))
}

func TestPaymentFailureRoundTrip(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	oldExpiry := record.ExpiryTimeMillis

	failed, err := f.engine.SimulatePaymentFailure(context.Background(), record.PurchaseToken, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInGracePeriod, failed.State)
	assert.Equal(t, domain.PaymentFailed, failed.PaymentState)
	require.NotNil(t, failed.GracePeriodEndMillis)
	assert.Equal(t, f.clock.NowMillis()+7*billingperiod.MillisPerDay, *failed.GracePeriodEndMillis)

	recovered, err := f.engine.RecoverFromPaymentFailure(context.Background(), record.PurchaseToken, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, recovered.State)
	assert.Equal(t, domain.PaymentReceived, recovered.PaymentState)
	assert.Nil(t, recovered.GracePeriodEndMillis)
	assert.Equal(t, oldExpiry, recovered.ExpiryTimeMillis)

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationRecovered, event.Type)
}

func TestSimulatePaymentFailure_NoGracePeriodConfigured(t *testing.T) {
	f := newFixture(t)
	record, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "basic_weekly",
	})
	require.NoError(t, err)

	_, err = f.engine.SimulatePaymentFailure(context.Background(), record.PurchaseToken, 0)

	assert.Equal(t, domain.ErrCodeGraceNotConfigured, domain.CodeOf(err))
}

func TestTransitionToAccountHold(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	_, err := f.engine.SimulatePaymentFailure(context.Background(), record.PurchaseToken, 0)
	require.NoError(t, err)

	held, err := f.engine.TransitionToAccountHold(context.Background(), record.PurchaseToken, 0)

	require.NoError(t, err)
	assert.Equal(t, domain.StateOnHold, held.State)
	assert.Nil(t, held.GracePeriodEndMillis)
	require.NotNil(t, held.AccountHoldStartMillis)

	recovered, err := f.engine.RecoverFromPaymentFailure(context.Background(), record.PurchaseToken, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, recovered.State)
	assert.Nil(t, recovered.AccountHoldStartMillis)
}

func TestTransitionToAccountHold_NotInGraceRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	_, err := f.engine.TransitionToAccountHold(context.Background(), record.PurchaseToken, 0)

	assert.True(t, domain.IsInvalidState(err))
}

func TestProcessGracePeriodExpirations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record := f.createActive(t)
	_, err := f.engine.SimulatePaymentFailure(ctx, record.PurchaseToken, 0)
	require.NoError(t, err)
	graceEnd := f.clock.NowMillis() + 7*billingperiod.MillisPerDay

	assert.Empty(t, f.engine.ProcessGracePeriodExpirations(ctx, graceEnd-1))

	transitioned := f.engine.ProcessGracePeriodExpirations(ctx, graceEnd)
	require.Len(t, transitioned, 1)
	assert.Equal(t, domain.StateOnHold, transitioned[0].State)
	require.NotNil(t, transitioned[0].AccountHoldStartMillis)
	assert.Equal(t, graceEnd, *transitioned[0].AccountHoldStartMillis)
}

func TestDefer_ValidAndInvalid(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	newExpiry := record.ExpiryTimeMillis + 30*billingperiod.MillisPerDay

	deferred, err := f.engine.Defer(context.Background(), record.PurchaseToken, newExpiry)
	require.NoError(t, err)
	assert.Equal(t, newExpiry, deferred.ExpiryTimeMillis)
	assert.Equal(t, domain.StateActive, deferred.State)

	_, err = f.engine.Defer(context.Background(), record.PurchaseToken, newExpiry)
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = f.engine.Defer(context.Background(), record.PurchaseToken, newExpiry-1)
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	revoked, err := f.engine.Revoke(context.Background(), record.PurchaseToken, 0)

	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, revoked.State)
	assert.Equal(t, f.clock.NowMillis(), revoked.ExpiryTimeMillis)
	require.NotNil(t, revoked.CancelReason)
	assert.Equal(t, domain.CancelSystem, *revoked.CancelReason)
	assert.False(t, revoked.AutoRenewing)

	event, ok := f.notifier.lastEvent()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationRevoked, event.Type)
}

func TestRevoke_AlreadyExpiredRejected(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)
	_, err := f.engine.Revoke(context.Background(), record.PurchaseToken, 0)
	require.NoError(t, err)

	_, err = f.engine.Revoke(context.Background(), record.PurchaseToken, 0)

	assert.True(t, domain.IsInvalidState(err))
}

func TestAcknowledge_Idempotent(t *testing.T) {
	f := newFixture(t)
	record := f.createActive(t)

	first, err := f.engine.Acknowledge(context.Background(), record.PurchaseToken)
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)
	firstUpdated := first.UpdatedAtMillis

	second, err := f.engine.Acknowledge(context.Background(), record.PurchaseToken)
	require.NoError(t, err)
	assert.True(t, second.Acknowledged)
	assert.Equal(t, firstUpdated, second.UpdatedAtMillis)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true

	record, err := f.engine.Create(context.Background(), CreateRequest{
		UserID:         "user-1",
		SubscriptionID: "premium_monthly",
	})

	require.NoError(t, err)
	stored, err := f.store.GetByToken(record.PurchaseToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, stored.State)
}
