package domain

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState int

const (
	StateActive SubscriptionState = iota
	StateCanceled
	StateInGracePeriod
	StateOnHold
	StatePaused
	StateExpired
)

func (s SubscriptionState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCanceled:
		return "CANCELED"
	case StateInGracePeriod:
		return "IN_GRACE_PERIOD"
	case StateOnHold:
		return "ON_HOLD"
	case StatePaused:
		return "PAUSED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Entitled reports whether the user currently has access to the content.
// Canceled subscriptions stay entitled until expiry; grace period keeps
// entitlement while payment is retried.
func (s SubscriptionState) Entitled() bool {
	switch s {
	case StateActive, StateCanceled, StateInGracePeriod:
		return true
	default:
		return false
	}
}

// PaymentState mirrors androidpublisher's paymentState field.
type PaymentState int

const (
	PaymentPending PaymentState = iota
	PaymentReceived
	PaymentFreeTrial
	PaymentFailed
)

func (p PaymentState) String() string {
	switch p {
	case PaymentPending:
		return "PAYMENT_PENDING"
	case PaymentReceived:
		return "PAYMENT_RECEIVED"
	case PaymentFreeTrial:
		return "FREE_TRIAL"
	case PaymentFailed:
		return "PAYMENT_FAILED"
	default:
		return "UNKNOWN"
	}
}

// CancelReason mirrors androidpublisher's cancelReason field.
type CancelReason int

const (
	CancelUser CancelReason = iota
	CancelSystem
	CancelReplaced
	CancelDeveloper
)

func (c CancelReason) String() string {
	switch c {
	case CancelUser:
		return "USER_CANCELED"
	case CancelSystem:
		return "SYSTEM_CANCELED"
	case CancelReplaced:
		return "REPLACED"
	case CancelDeveloper:
		return "DEVELOPER_CANCELED"
	default:
		return "UNKNOWN"
	}
}

// NotificationType enumerates real-time developer notification event types,
// matching Play's published integer values.
type NotificationType int

const (
	NotificationRecovered            NotificationType = 1
	NotificationRenewed              NotificationType = 2
	NotificationCanceled             NotificationType = 3
	NotificationPurchased            NotificationType = 4
	NotificationOnHold               NotificationType = 5
	NotificationInGracePeriod        NotificationType = 6
	NotificationRestarted            NotificationType = 7
	NotificationPriceChangeConfirm   NotificationType = 8
	NotificationDeferred             NotificationType = 9
	NotificationPaused               NotificationType = 10
	NotificationPauseScheduleChanged NotificationType = 11
	NotificationRevoked              NotificationType = 12
	NotificationExpired              NotificationType = 13
)

func (n NotificationType) String() string {
	switch n {
	case NotificationRecovered:
		return "SUBSCRIPTION_RECOVERED"
	case NotificationRenewed:
		return "SUBSCRIPTION_RENEWED"
	case NotificationCanceled:
		return "SUBSCRIPTION_CANCELED"
	case NotificationPurchased:
		return "SUBSCRIPTION_PURCHASED"
	case NotificationOnHold:
		return "SUBSCRIPTION_ON_HOLD"
	case NotificationInGracePeriod:
		return "SUBSCRIPTION_IN_GRACE_PERIOD"
	case NotificationRestarted:
		return "SUBSCRIPTION_RESTARTED"
	case NotificationPriceChangeConfirm:
		return "SUBSCRIPTION_PRICE_CHANGE_CONFIRMED"
	case NotificationDeferred:
		return "SUBSCRIPTION_DEFERRED"
	case NotificationPaused:
		return "SUBSCRIPTION_PAUSED"
	case NotificationPauseScheduleChanged:
		return "SUBSCRIPTION_PAUSE_SCHEDULE_CHANGED"
	case NotificationRevoked:
		return "SUBSCRIPTION_REVOKED"
	case NotificationExpired:
		return "SUBSCRIPTION_EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// PurchaseState mirrors androidpublisher's purchaseState for one-time
// products.
type PurchaseState int

const (
	PurchasePurchased PurchaseState = iota
	PurchaseCanceled
	PurchasePending
)

func (p PurchaseState) String() string {
	switch p {
	case PurchasePurchased:
		return "PURCHASED"
	case PurchaseCanceled:
		return "CANCELED"
	case PurchasePending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// ConsumptionState mirrors androidpublisher's consumptionState.
type ConsumptionState int

const (
	ConsumptionYetToBeConsumed ConsumptionState = iota
	ConsumptionConsumed
)

// AcknowledgementState mirrors androidpublisher's acknowledgementState.
type AcknowledgementState int

const (
	AckYetToBeAcknowledged AcknowledgementState = iota
	AckAcknowledged
)

// ProductType distinguishes one-time products from subscriptions in the
// catalog.
type ProductType string

const (
	ProductTypeInApp        ProductType = "inapp"
	ProductTypeSubscription ProductType = "subs"
)
