// Package domain holds the emulator's core types: subscription and purchase
// records, the product catalog model, notification events and error codes.
package domain

// SubscriptionRecord is the full server-side state of one subscription
// purchase. All timestamps are Unix milliseconds on the virtual clock.
type SubscriptionRecord struct {
	PurchaseToken  string `json:"purchase_token"`
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	SubscriptionID string `json:"subscription_id"`
	PackageName    string `json:"package_name"`
	BasePlanID     string `json:"base_plan_id,omitempty"`
	OfferID        string `json:"offer_id,omitempty"`

	State        SubscriptionState `json:"state"`
	PaymentState PaymentState      `json:"payment_state"`
	Acknowledged bool              `json:"acknowledged"`
	AutoRenewing bool              `json:"auto_renewing"`
	IsTrial      bool              `json:"is_trial"`

	StartTimeMillis    int64  `json:"start_time_millis"`
	ExpiryTimeMillis   int64  `json:"expiry_time_millis"`
	PurchaseTimeMillis int64  `json:"purchase_time_millis"`
	TrialEndMillis     *int64 `json:"trial_end_millis,omitempty"`

	CancelReason               *CancelReason `json:"cancel_reason,omitempty"`
	UserCancellationTimeMillis *int64        `json:"user_cancellation_time_millis,omitempty"`
	GracePeriodEndMillis       *int64        `json:"grace_period_end_millis,omitempty"`
	AccountHoldStartMillis     *int64        `json:"account_hold_start_millis,omitempty"`
	PauseStartMillis           *int64        `json:"pause_start_millis,omitempty"`
	PauseEndMillis             *int64        `json:"pause_end_millis,omitempty"`

	PriceAmountMicros int64  `json:"price_amount_micros"`
	PriceCurrencyCode string `json:"price_currency_code"`

	CountryCode  string `json:"country_code"`
	RenewalCount int    `json:"renewal_count"`

	CreatedAtMillis int64 `json:"created_at_millis"`
	UpdatedAtMillis int64 `json:"updated_at_millis"`
}

// Entitled reports whether this record currently grants content access.
func (r *SubscriptionRecord) Entitled() bool {
	return r.State.Entitled()
}

// ClearCancellation drops cancellation bookkeeping when a canceled
// subscription re-enters the auto-renewing flow.
func (r *SubscriptionRecord) ClearCancellation() {
	r.CancelReason = nil
	r.UserCancellationTimeMillis = nil
}

// ClearRecovery drops grace-period and hold bookkeeping after payment
// recovers or the record expires.
func (r *SubscriptionRecord) ClearRecovery() {
	r.GracePeriodEndMillis = nil
	r.AccountHoldStartMillis = nil
}

// ClearPause drops the pause window when a paused subscription resumes.
func (r *SubscriptionRecord) ClearPause() {
	r.PauseStartMillis = nil
	r.PauseEndMillis = nil
}

// ProductPurchaseRecord is the server-side state of one one-time product
// purchase.
type ProductPurchaseRecord struct {
	PurchaseToken string `json:"purchase_token"`
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	ProductID     string `json:"product_id"`
	PackageName   string `json:"package_name"`

	PurchaseState    PurchaseState    `json:"purchase_state"`
	ConsumptionState ConsumptionState `json:"consumption_state"`
	Acknowledged     bool             `json:"acknowledged"`

	PurchaseTimeMillis int64 `json:"purchase_time_millis"`
	UpdatedAtMillis    int64 `json:"updated_at_millis"`

	PriceAmountMicros int64  `json:"price_amount_micros"`
	PriceCurrencyCode string `json:"price_currency_code"`
	Quantity          int    `json:"quantity"`
}

// StoreStats summarizes the subscription store for the control API.
type StoreStats struct {
	Total        int            `json:"total"`
	ByState      map[string]int `json:"by_state"`
	ByProduct    map[string]int `json:"by_product"`
	AutoRenewing int            `json:"auto_renewing"`
	Trials       int            `json:"trials"`
}
