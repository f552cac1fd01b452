// Package googleplay exposes the androidpublisher v3 purchase endpoints the
// Play Developer API clients call, backed by the emulator's stores.
package googleplay

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/playforge/iap-emulator/internal/domain"
)

// SubscriptionPurchase mirrors the androidpublisher SubscriptionPurchase
// resource. Millisecond timestamps are strings, matching the wire format.
type SubscriptionPurchase struct {
	Kind                        string `json:"kind"`
	StartTimeMillis             string `json:"startTimeMillis"`
	ExpiryTimeMillis            string `json:"expiryTimeMillis"`
	AutoRenewing                bool   `json:"autoRenewing"`
	PriceCurrencyCode           string `json:"priceCurrencyCode"`
	PriceAmountMicros           string `json:"priceAmountMicros"`
	CountryCode                 string `json:"countryCode,omitempty"`
	OrderID                     string `json:"orderId"`
	PaymentState                *int   `json:"paymentState,omitempty"`
	CancelReason                *int   `json:"cancelReason,omitempty"`
	UserCancellationTimeMillis  string `json:"userCancellationTimeMillis,omitempty"`
	AcknowledgementState        int    `json:"acknowledgementState"`
	AutoResumeTimeMillis        string `json:"autoResumeTimeMillis,omitempty"`
	ObfuscatedExternalAccountID string `json:"obfuscatedExternalAccountId,omitempty"`
}

// ProductPurchase mirrors the androidpublisher ProductPurchase resource.
type ProductPurchase struct {
	Kind                 string `json:"kind"`
	PurchaseTimeMillis   string `json:"purchaseTimeMillis"`
	PurchaseState        int    `json:"purchaseState"`
	ConsumptionState     int    `json:"consumptionState"`
	OrderID              string `json:"orderId"`
	AcknowledgementState int    `json:"acknowledgementState"`
	Quantity             int    `json:"quantity"`
	RegionCode           string `json:"regionCode,omitempty"`
}

func millisString(millis int64) string {
	return strconv.FormatInt(millis, 10)
}

func subscriptionResource(record *domain.SubscriptionRecord) *SubscriptionPurchase {
	resource := &SubscriptionPurchase{
		Kind:                        "androidpublisher#subscriptionPurchase",
		StartTimeMillis:             millisString(record.StartTimeMillis),
		ExpiryTimeMillis:            millisString(record.ExpiryTimeMillis),
		AutoRenewing:                record.AutoRenewing,
		PriceCurrencyCode:           record.PriceCurrencyCode,
		PriceAmountMicros:           millisString(record.PriceAmountMicros),
		CountryCode:                 record.CountryCode,
		OrderID:                     record.OrderID,
		ObfuscatedExternalAccountID: record.UserID,
	}
	payment := int(record.PaymentState)
	resource.PaymentState = &payment
	if record.CancelReason != nil {
		reason := int(*record.CancelReason)
		resource.CancelReason = &reason
	}
	if record.UserCancellationTimeMillis != nil {
		resource.UserCancellationTimeMillis = millisString(*record.UserCancellationTimeMillis)
	}
	if record.Acknowledged {
		resource.AcknowledgementState = int(domain.AckAcknowledged)
	}
	if record.PauseEndMillis != nil {
		resource.AutoResumeTimeMillis = millisString(*record.PauseEndMillis)
	}
	return resource
}

func productResource(record *domain.ProductPurchaseRecord) *ProductPurchase {
	resource := &ProductPurchase{
		Kind:               "androidpublisher#productPurchase",
		PurchaseTimeMillis: millisString(record.PurchaseTimeMillis),
		PurchaseState:      int(record.PurchaseState),
		ConsumptionState:   int(record.ConsumptionState),
		OrderID:            record.OrderID,
		Quantity:           record.Quantity,
	}
	if record.Acknowledged {
		resource.AcknowledgementState = int(domain.AckAcknowledged)
	}
	return resource
}

// googleError is the error body the Play API returns.
type googleError struct {
	Error googleErrorBody `json:"error"`
}

type googleErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func writeError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	status := "INTERNAL"

	switch {
	case domain.IsNotFound(err):
		code = fiber.StatusNotFound
		status = "NOT_FOUND"
	case domain.IsInvalidArgument(err):
		code = fiber.StatusBadRequest
		status = "INVALID_ARGUMENT"
	case domain.IsInvalidState(err), domain.CodeOf(err) == domain.ErrCodeGraceNotConfigured:
		code = fiber.StatusBadRequest
		status = "FAILED_PRECONDITION"
	case domain.IsConflict(err):
		code = fiber.StatusBadRequest
		status = "CONFLICT"
	}

	return c.Status(code).JSON(googleError{Error: googleErrorBody{
		Code:    code,
		Message: err.Error(),
		Status:  status,
	}})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(googleError{Error: googleErrorBody{
		Code:    fiber.StatusNotFound,
		Message: message,
		Status:  "NOT_FOUND",
	}})
}
