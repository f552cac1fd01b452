package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies emulator failures for transport mapping.
type ErrorCode string

const (
	ErrCodeProductNotFound       ErrorCode = "PRODUCT_NOT_FOUND"
	ErrCodeSubscriptionNotFound  ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	ErrCodePurchaseNotFound      ErrorCode = "PURCHASE_NOT_FOUND"
	ErrCodeInvalidState          ErrorCode = "INVALID_STATE"
	ErrCodeInvalidArgument       ErrorCode = "INVALID_ARGUMENT"
	ErrCodeDuplicateSubscription ErrorCode = "DUPLICATE_SUBSCRIPTION"
	ErrCodeGraceNotConfigured    ErrorCode = "GRACE_PERIOD_NOT_CONFIGURED"
	ErrCodeTimeBackwards         ErrorCode = "TIME_BACKWARDS"
	ErrCodeInternal              ErrorCode = "INTERNAL"
)

// Error is the structured error carried across the emulator's layers. It
// wraps an optional cause and carries detail fields for logging and the
// error response body.
type Error struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail field and returns the error for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError builds a structured error with the given code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds a structured error wrapping a cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// NewProductNotFoundError reports an unknown product or subscription ID.
func NewProductNotFoundError(productID string) *Error {
	return NewError(ErrCodeProductNotFound,
		fmt.Sprintf("product %q not found", productID)).
		WithDetail("product_id", productID)
}

// NewSubscriptionNotFoundError reports an unknown purchase token.
func NewSubscriptionNotFoundError(token string) *Error {
	return NewError(ErrCodeSubscriptionNotFound,
		fmt.Sprintf("subscription %q not found", token)).
		WithDetail("purchase_token", token)
}

// NewPurchaseNotFoundError reports an unknown one-time purchase token.
func NewPurchaseNotFoundError(token string) *Error {
	return NewError(ErrCodePurchaseNotFound,
		fmt.Sprintf("purchase %q not found", token)).
		WithDetail("purchase_token", token)
}

// NewInvalidStateError reports an operation applied in a state that does not
// permit it.
func NewInvalidStateError(operation string, state SubscriptionState) *Error {
	return NewError(ErrCodeInvalidState,
		fmt.Sprintf("cannot %s subscription in state %s", operation, state)).
		WithDetail("operation", operation).
		WithDetail("state", state.String())
}

// NewInvalidArgumentError reports a malformed or out-of-range argument.
func NewInvalidArgumentError(message string) *Error {
	return NewError(ErrCodeInvalidArgument, message)
}

// NewDuplicateSubscriptionError reports a user already holding a
// non-expired subscription to the same product.
func NewDuplicateSubscriptionError(userID, subscriptionID string) *Error {
	return NewError(ErrCodeDuplicateSubscription,
		fmt.Sprintf("user %q already has an active subscription to %q", userID, subscriptionID)).
		WithDetail("user_id", userID).
		WithDetail("subscription_id", subscriptionID)
}

// NewGraceNotConfiguredError reports a grace-period transition on a product
// without one configured.
func NewGraceNotConfiguredError(subscriptionID string) *Error {
	return NewError(ErrCodeGraceNotConfigured,
		fmt.Sprintf("product %q has no grace period configured", subscriptionID)).
		WithDetail("subscription_id", subscriptionID)
}

// NewTimeBackwardsError reports an attempt to move the virtual clock
// backward.
func NewTimeBackwardsError(currentMillis, targetMillis int64) *Error {
	return NewError(ErrCodeTimeBackwards,
		fmt.Sprintf("cannot set time to %d before current %d", targetMillis, currentMillis)).
		WithDetail("current_millis", currentMillis).
		WithDetail("target_millis", targetMillis)
}

// AsError extracts a structured *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or ErrCodeInternal for errors from
// outside the domain.
func CodeOf(err error) ErrorCode {
	if domainErr, ok := AsError(err); ok {
		return domainErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err is any of the not-found codes.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeProductNotFound, ErrCodeSubscriptionNotFound, ErrCodePurchaseNotFound:
		return true
	}
	return false
}

// IsInvalidState reports whether err is a state-precondition failure.
func IsInvalidState(err error) bool {
	return CodeOf(err) == ErrCodeInvalidState
}

// IsInvalidArgument reports whether err is an argument failure.
func IsInvalidArgument(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeInvalidArgument || code == ErrCodeTimeBackwards
}

// IsConflict reports whether err is a duplicate-subscription conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeDuplicateSubscription
}
