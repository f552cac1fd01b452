// Package engine implements the subscription lifecycle state machine. Every
// mutating operation loads a copy of the record, validates the transition,
// commits through the store, and only then publishes the lifecycle event.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/domain/ports"
	"github.com/playforge/iap-emulator/pkg/billingperiod"
	"github.com/playforge/iap-emulator/pkg/observability"
	"github.com/playforge/iap-emulator/pkg/tokens"
)

// Engine drives subscription state transitions against the store and
// catalog, emitting lifecycle notifications through the injected port.
type Engine struct {
	store          ports.SubscriptionStore
	catalog        ports.ProductCatalog
	notifier       ports.NotificationPort
	clock          ports.Clock
	issuer         *tokens.Issuer
	defaultPackage string
	logger         *zap.Logger
	tokenLocks     sync.Map
}

// lockToken serializes mutating operations on one purchase token. The
// store's lock covers individual reads and writes only, so without this
// two handlers could interleave load-mutate-commit cycles on the same
// record and the later commit would overwrite the earlier transition.
func (e *Engine) lockToken(token string) func() {
	v, _ := e.tokenLocks.LoadOrStore(token, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// NewEngine wires an engine from its collaborators.
func NewEngine(
	store ports.SubscriptionStore,
	catalog ports.ProductCatalog,
	notifier ports.NotificationPort,
	clock ports.Clock,
	issuer *tokens.Issuer,
	defaultPackage string,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:          store,
		catalog:        catalog,
		notifier:       notifier,
		clock:          clock,
		issuer:         issuer,
		defaultPackage: defaultPackage,
		logger:         logger,
	}
}

// CreateRequest carries the inputs for a new subscription purchase.
type CreateRequest struct {
	UserID          string
	SubscriptionID  string
	PackageName     string
	StartTimeMillis int64
	WithTrial       bool
	CountryCode     string
}

// Create purchases a subscription for a user. A user may hold at most one
// subscription per product in a holding state; CANCELED and EXPIRED records
// do not block a new purchase.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*domain.SubscriptionRecord, error) {
	if req.UserID == "" {
		return nil, domain.NewInvalidArgumentError("user id is required")
	}

	product, err := e.catalog.Get(req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !product.IsSubscription() {
		return nil, domain.NewInvalidArgumentError("product is not a subscription").
			WithDetail("product_id", req.SubscriptionID)
	}

	packageName := req.PackageName
	if packageName == "" {
		packageName = e.defaultPackage
	}
	if _, exists := e.store.UserSubscription(req.UserID, req.SubscriptionID, packageName); exists {
		return nil, domain.NewDuplicateSubscriptionError(req.UserID, req.SubscriptionID).
			WithDetail("package_name", packageName)
	}

	now := e.clock.NowMillis()
	start := req.StartTimeMillis
	if start == 0 {
		start = now
	}

	record := &domain.SubscriptionRecord{
		PurchaseToken:      e.issuer.SubscriptionToken(now),
		OrderID:            tokens.OrderID(),
		UserID:             req.UserID,
		SubscriptionID:     req.SubscriptionID,
		PackageName:        packageName,
		BasePlanID:         product.BasePlanID,
		OfferID:            product.OfferID,
		State:              domain.StateActive,
		PaymentState:       domain.PaymentReceived,
		AutoRenewing:       true,
		StartTimeMillis:    start,
		PurchaseTimeMillis: now,
		PriceAmountMicros:  product.PriceAmountMicros,
		PriceCurrencyCode:  product.PriceCurrencyCode,
		CountryCode:        req.CountryCode,
		CreatedAtMillis:    now,
		UpdatedAtMillis:    now,
	}

	if req.WithTrial && product.HasTrial() {
		trialMillis, err := billingperiod.Parse(product.TrialPeriod)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeInternal, "invalid trial period in catalog", err)
		}
		record.IsTrial = true
		record.PaymentState = domain.PaymentFreeTrial
		record.ExpiryTimeMillis = start + trialMillis
		trialEnd := record.ExpiryTimeMillis
		record.TrialEndMillis = &trialEnd
	} else {
		periodMillis, err := billingperiod.Parse(product.BillingPeriod)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeInternal, "invalid billing period in catalog", err)
		}
		record.ExpiryTimeMillis = start + periodMillis
	}

	if err := e.store.Add(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription created",
		zap.String("purchase_token", record.PurchaseToken),
		zap.String("subscription_id", record.SubscriptionID),
		zap.String("user_id", record.UserID),
		zap.Bool("trial", record.IsTrial),
		zap.Int64("expiry_time_millis", record.ExpiryTimeMillis))

	e.publish(ctx, domain.NotificationPurchased, record)
	return record, nil
}

// Get returns the record for a purchase token.
func (e *Engine) Get(token string) (*domain.SubscriptionRecord, error) {
	return e.store.GetByToken(token)
}

// ByUser returns all of a user's subscription records.
func (e *Engine) ByUser(userID string) []*domain.SubscriptionRecord {
	return e.store.ByUser(userID)
}

// Renew processes one billing renewal. renewalTimeMillis of zero means
// "renew from the record's current expiry", which is what lets a large
// clock jump compound correctly across several missed periods. Renewing a
// CANCELED record reactivates it.
func (e *Engine) Renew(ctx context.Context, token string, renewalTimeMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}

	switch record.State {
	case domain.StateActive:
		if !record.AutoRenewing {
			return nil, domain.NewInvalidStateError("renew", record.State).
				WithDetail("reason", "auto-renew disabled")
		}
	case domain.StateCanceled:
	default:
		return nil, domain.NewInvalidStateError("renew", record.State)
	}

	product, err := e.catalog.Get(record.SubscriptionID)
	if err != nil {
		return nil, err
	}
	periodMillis, err := billingperiod.Parse(product.BillingPeriod)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "invalid billing period in catalog", err)
	}

	renewalTime := renewalTimeMillis
	if renewalTime == 0 {
		renewalTime = record.ExpiryTimeMillis
	}

	if record.IsTrial {
		record.IsTrial = false
		record.TrialEndMillis = nil
	}
	record.PaymentState = domain.PaymentReceived
	record.ExpiryTimeMillis = renewalTime + periodMillis
	record.RenewalCount++

	wasCanceled := record.State == domain.StateCanceled
	if wasCanceled {
		record.State = domain.StateActive
		record.AutoRenewing = true
		record.ClearCancellation()
	}
	record.UpdatedAtMillis = e.clock.NowMillis()

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription renewed",
		zap.String("purchase_token", record.PurchaseToken),
		zap.String("subscription_id", record.SubscriptionID),
		zap.Int("renewal_count", record.RenewalCount),
		zap.Int64("expiry_time_millis", record.ExpiryTimeMillis),
		zap.Bool("reactivated", wasCanceled))

	e.publish(ctx, domain.NotificationRenewed, record)
	return record, nil
}

// Cancel turns off auto-renew. With immediate=false the record keeps
// entitlement until expiry in state CANCELED; with immediate=true it
// expires now.
func (e *Engine) Cancel(ctx context.Context, token string, reason domain.CancelReason, immediate bool) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}

	switch record.State {
	case domain.StateActive, domain.StatePaused, domain.StateInGracePeriod, domain.StateOnHold:
	default:
		return nil, domain.NewInvalidStateError("cancel", record.State)
	}

	now := e.clock.NowMillis()
	record.CancelReason = &reason
	record.UserCancellationTimeMillis = &now
	record.AutoRenewing = false
	record.UpdatedAtMillis = now

	event := domain.NotificationCanceled
	if immediate {
		record.State = domain.StateExpired
		record.ExpiryTimeMillis = now
		record.ClearRecovery()
		record.ClearPause()
		event = domain.NotificationExpired
	} else {
		record.State = domain.StateCanceled
	}

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription canceled",
		zap.String("purchase_token", record.PurchaseToken),
		zap.String("cancel_reason", reason.String()),
		zap.Bool("immediate", immediate))

	e.publish(ctx, event, record)
	return record, nil
}

// Pause suspends an active subscription for a positive duration, extending
// expiry by exactly that duration so paid-for time is preserved.
func (e *Engine) Pause(ctx context.Context, token string, durationMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	if durationMillis <= 0 {
		return nil, domain.NewInvalidArgumentError("pause duration must be positive").
			WithDetail("duration_millis", durationMillis)
	}

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.State != domain.StateActive {
		return nil, domain.NewInvalidStateError("pause", record.State)
	}

	now := e.clock.NowMillis()
	pauseEnd := now + durationMillis
	record.PauseStartMillis = &now
	record.PauseEndMillis = &pauseEnd
	record.ExpiryTimeMillis += durationMillis
	record.State = domain.StatePaused
	record.UpdatedAtMillis = now

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription paused",
		zap.String("purchase_token", record.PurchaseToken),
		zap.Int64("duration_millis", durationMillis),
		zap.Int64("expiry_time_millis", record.ExpiryTimeMillis))

	e.publish(ctx, domain.NotificationPaused, record)
	return record, nil
}

// Resume reactivates a paused subscription. The expiry extension granted at
// pause time is kept.
func (e *Engine) Resume(ctx context.Context, token string) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.State != domain.StatePaused {
		return nil, domain.NewInvalidStateError("resume", record.State)
	}

	record.ClearPause()
	record.State = domain.StateActive
	record.UpdatedAtMillis = e.clock.NowMillis()

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription resumed",
		zap.String("purchase_token", record.PurchaseToken))

	e.publish(ctx, domain.NotificationRestarted, record)
	return record, nil
}

// SimulatePaymentFailure moves an active subscription into its grace
// period. failureTimeMillis of zero means now.
func (e *Engine) SimulatePaymentFailure(ctx context.Context, token string, failureTimeMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.State != domain.StateActive {
		return nil, domain.NewInvalidStateError("fail payment for", record.State)
	}

	product, err := e.catalog.Get(record.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !product.HasGracePeriod() {
		return nil, domain.NewGraceNotConfiguredError(record.SubscriptionID)
	}
	graceMillis, err := billingperiod.Parse(product.GracePeriod)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "invalid grace period in catalog", err)
	}

	failureTime := failureTimeMillis
	if failureTime == 0 {
		failureTime = e.clock.NowMillis()
	}
	graceEnd := failureTime + graceMillis
	record.GracePeriodEndMillis = &graceEnd
	record.PaymentState = domain.PaymentFailed
	record.State = domain.StateInGracePeriod
	record.UpdatedAtMillis = e.clock.NowMillis()

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("payment failure simulated",
		zap.String("purchase_token", record.PurchaseToken),
		zap.Int64("grace_period_end_millis", graceEnd))

	e.publish(ctx, domain.NotificationInGracePeriod, record)
	return record, nil
}

// TransitionToAccountHold moves a grace-period subscription into account
// hold. holdTimeMillis of zero means now.
func (e *Engine) TransitionToAccountHold(ctx context.Context, token string, holdTimeMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.State != domain.StateInGracePeriod {
		return nil, domain.NewInvalidStateError("hold", record.State)
	}

	holdTime := holdTimeMillis
	if holdTime == 0 {
		holdTime = e.clock.NowMillis()
	}
	record.AccountHoldStartMillis = &holdTime
	record.GracePeriodEndMillis = nil
	record.State = domain.StateOnHold
	record.UpdatedAtMillis = e.clock.NowMillis()

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription on hold",
		zap.String("purchase_token", record.PurchaseToken),
		zap.Int64("hold_start_millis", holdTime))

	e.publish(ctx, domain.NotificationOnHold, record)
	return record, nil
}

// RecoverFromPaymentFailure restores a grace-period or on-hold subscription
// to ACTIVE after payment succeeds. Expiry is not extended by recovery.
func (e *Engine) RecoverFromPaymentFailure(ctx context.Context, token string, recoveryTimeMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}

	switch record.State {
	case domain.StateInGracePeriod, domain.StateOnHold:
	default:
		return nil, domain.NewInvalidStateError("recover", record.State)
	}

	recoveryTime := recoveryTimeMillis
	if recoveryTime == 0 {
		recoveryTime = e.clock.NowMillis()
	}
	record.PaymentState = domain.PaymentReceived
	record.ClearRecovery()
	record.State = domain.StateActive
	record.UpdatedAtMillis = recoveryTime

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription recovered",
		zap.String("purchase_token", record.PurchaseToken))

	e.publish(ctx, domain.NotificationRecovered, record)
	return record, nil
}

// ProcessGracePeriodExpirations moves every record whose grace period has
// lapsed at asOf into account hold. A failure on one record is logged and
// skipped; the batch continues.
func (e *Engine) ProcessGracePeriodExpirations(ctx context.Context, asOfMillis int64) []*domain.SubscriptionRecord {
	var transitioned []*domain.SubscriptionRecord
	for _, record := range e.store.InGracePeriod(asOfMillis) {
		holdTime := int64(0)
		if record.GracePeriodEndMillis != nil {
			holdTime = *record.GracePeriodEndMillis
		}
		updated, err := e.TransitionToAccountHold(ctx, record.PurchaseToken, holdTime)
		if err != nil {
			e.logger.Warn("grace period expiration skipped",
				zap.String("purchase_token", record.PurchaseToken),
				zap.Error(err))
			continue
		}
		transitioned = append(transitioned, updated)
	}
	return transitioned
}

// Defer pushes expiry to a later timestamp with no other state change.
func (e *Engine) Defer(ctx context.Context, token string, newExpiryMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if newExpiryMillis <= record.ExpiryTimeMillis {
		return nil, domain.NewInvalidArgumentError("deferred expiry must be after current expiry").
			WithDetail("current_expiry_millis", record.ExpiryTimeMillis).
			WithDetail("requested_expiry_millis", newExpiryMillis)
	}

	record.ExpiryTimeMillis = newExpiryMillis
	record.UpdatedAtMillis = e.clock.NowMillis()

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription deferred",
		zap.String("purchase_token", record.PurchaseToken),
		zap.Int64("expiry_time_millis", newExpiryMillis))

	e.publish(ctx, domain.NotificationDeferred, record)
	return record, nil
}

// Revoke expires a subscription immediately with a system cancellation.
// revokeTimeMillis of zero means now.
func (e *Engine) Revoke(ctx context.Context, token string, revokeTimeMillis int64) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.State == domain.StateExpired {
		return nil, domain.NewInvalidStateError("revoke", record.State)
	}

	revokeTime := revokeTimeMillis
	if revokeTime == 0 {
		revokeTime = e.clock.NowMillis()
	}
	reason := domain.CancelSystem
	record.CancelReason = &reason
	record.UserCancellationTimeMillis = &revokeTime
	record.AutoRenewing = false
	record.State = domain.StateExpired
	record.ExpiryTimeMillis = revokeTime
	record.ClearRecovery()
	record.ClearPause()
	record.UpdatedAtMillis = revokeTime

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription revoked",
		zap.String("purchase_token", record.PurchaseToken))

	e.publish(ctx, domain.NotificationRevoked, record)
	return record, nil
}

// Acknowledge marks the purchase acknowledged. Repeat calls succeed and
// leave the record unchanged.
func (e *Engine) Acknowledge(ctx context.Context, token string) (*domain.SubscriptionRecord, error) {
	defer e.lockToken(token)()

	record, err := e.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if record.Acknowledged {
		return record, nil
	}

	record.Acknowledged = true
	record.UpdatedAtMillis = e.clock.NowMillis()

	if err := e.store.Update(record); err != nil {
		return nil, err
	}

	e.logger.Info("subscription acknowledged",
		zap.String("purchase_token", record.PurchaseToken))
	return record, nil
}

// publish is best-effort: a failed publish is logged and never surfaces to
// the caller whose state change already committed.
func (e *Engine) publish(ctx context.Context, nt domain.NotificationType, record *domain.SubscriptionRecord) {
	observability.RecordTransition(nt.String())
	if e.notifier == nil {
		return
	}
	ok := e.notifier.PublishSubscriptionEvent(ctx, nt, record.PurchaseToken, record.SubscriptionID, record.PackageName)
	observability.RecordNotification(ok)
	if !ok {
		e.logger.Warn("notification publish failed",
			zap.String("notification_type", nt.String()),
			zap.String("purchase_token", record.PurchaseToken))
	}
}
