// Package timectrl owns the virtual clock and drives batch lifecycle
// processing whenever time moves forward.
package timectrl

import (
	"context"

	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/domain/ports"
	"github.com/playforge/iap-emulator/pkg/billingperiod"
	"github.com/playforge/iap-emulator/pkg/observability"
	"github.com/playforge/iap-emulator/pkg/timeutil"
)

// Controller advances the virtual clock and runs renewal-due and
// grace-expiration processing at the new time. Clock mutation is atomic;
// the processing passes run after the clock lock is released.
type Controller struct {
	clock  *timeutil.VirtualClock
	engine ports.SubscriptionEngine
	store  ports.SubscriptionStore
	logger *zap.Logger
}

// NewController wires a controller from its collaborators.
func NewController(clock *timeutil.VirtualClock, engine ports.SubscriptionEngine, store ports.SubscriptionStore, logger *zap.Logger) *Controller {
	return &Controller{clock: clock, engine: engine, store: store, logger: logger}
}

// AdvanceResult summarizes one clock movement and the batch processing it
// triggered.
type AdvanceResult struct {
	OldTimeMillis  int64    `json:"old_time_millis"`
	NewTimeMillis  int64    `json:"new_time_millis"`
	AdvancedMillis int64    `json:"advanced_millis"`
	RenewedTokens  []string `json:"renewed_tokens"`
	OnHoldTokens   []string `json:"on_hold_tokens"`
}

// NowMillis returns the current virtual time.
func (c *Controller) NowMillis() int64 {
	return c.clock.NowMillis()
}

// Advance moves the clock forward by the given days, hours and minutes.
// All three must be non-negative. A zero total is a no-op returning empty
// processed lists.
func (c *Controller) Advance(ctx context.Context, days, hours, minutes int64) (*AdvanceResult, error) {
	if days < 0 || hours < 0 || minutes < 0 {
		return nil, domain.NewInvalidArgumentError("advance durations must be non-negative").
			WithDetail("days", days).
			WithDetail("hours", hours).
			WithDetail("minutes", minutes)
	}

	delta := days*billingperiod.MillisPerDay + hours*billingperiod.MillisPerHour + minutes*billingperiod.MillisPerMinute
	if delta == 0 {
		now := c.clock.NowMillis()
		return &AdvanceResult{OldTimeMillis: now, NewTimeMillis: now}, nil
	}

	old, now := c.clock.Advance(delta)
	result := &AdvanceResult{
		OldTimeMillis:  old,
		NewTimeMillis:  now,
		AdvancedMillis: delta,
	}
	c.process(ctx, result)

	c.logger.Info("virtual time advanced",
		zap.Int64("old_time_millis", old),
		zap.Int64("new_time_millis", now),
		zap.Int64("delta_millis", delta),
		zap.Int("renewed", len(result.RenewedTokens)),
		zap.Int("transitioned_to_hold", len(result.OnHoldTokens)))
	return result, nil
}

// SetTime moves the clock to an absolute timestamp at or after the current
// virtual time, then runs the same processing passes as Advance.
func (c *Controller) SetTime(ctx context.Context, timestampMillis int64) (*AdvanceResult, error) {
	old, err := c.clock.Set(timestampMillis)
	if err != nil {
		return nil, domain.NewTimeBackwardsError(old, timestampMillis)
	}

	result := &AdvanceResult{
		OldTimeMillis:  old,
		NewTimeMillis:  timestampMillis,
		AdvancedMillis: timestampMillis - old,
	}
	c.process(ctx, result)

	c.logger.Info("virtual time set",
		zap.Int64("old_time_millis", old),
		zap.Int64("new_time_millis", timestampMillis))
	return result, nil
}

// ResetTime snaps the clock back to the wall clock. No lifecycle processing
// runs: the clock only moved backward.
func (c *Controller) ResetTime() *AdvanceResult {
	old, now := c.clock.Reset()
	observability.SetVirtualClock(now)
	c.logger.Info("virtual time reset",
		zap.Int64("old_time_millis", old),
		zap.Int64("new_time_millis", now))
	return &AdvanceResult{
		OldTimeMillis:  old,
		NewTimeMillis:  now,
		AdvancedMillis: now - old,
	}
}

func (c *Controller) process(ctx context.Context, result *AdvanceResult) {
	result.RenewedTokens = c.processRenewals(ctx, result.NewTimeMillis)
	for _, record := range c.engine.ProcessGracePeriodExpirations(ctx, result.NewTimeMillis) {
		result.OnHoldTokens = append(result.OnHoldTokens, record.PurchaseToken)
	}
	observability.RecordRenewalBatch(len(result.RenewedTokens))
	observability.SetVirtualClock(result.NewTimeMillis)
	stats := c.store.Stats()
	for st := domain.StateActive; st <= domain.StateExpired; st++ {
		observability.SetSubscriptionsByState(st.String(), stats.ByState[st.String()])
	}
}

// processRenewals renews every due subscription, re-querying after each
// pass so a jump spanning several billing periods catches up fully. Each
// renewal is based on the record's prior expiry, so a token due three
// periods back renews three times onto the original cadence. A token that
// fails once is excluded from later passes to guarantee termination.
func (c *Controller) processRenewals(ctx context.Context, targetMillis int64) []string {
	var renewed []string
	failed := make(map[string]struct{})

	for {
		due := c.store.RenewalsDue(targetMillis)
		progressed := false
		for _, record := range due {
			if _, skip := failed[record.PurchaseToken]; skip {
				continue
			}
			if _, err := c.engine.Renew(ctx, record.PurchaseToken, record.ExpiryTimeMillis); err != nil {
				c.logger.Warn("renewal skipped",
					zap.String("purchase_token", record.PurchaseToken),
					zap.Error(err))
				failed[record.PurchaseToken] = struct{}{}
				continue
			}
			renewed = append(renewed, record.PurchaseToken)
			progressed = true
		}
		if !progressed {
			return renewed
		}
	}
}
