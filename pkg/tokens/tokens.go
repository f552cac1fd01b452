// Package tokens issues purchase tokens and order IDs in the shapes the Play
// Billing client libraries expect.
package tokens

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// Issuer mints tokens carrying a configurable environment prefix, so tokens
// from different emulator instances stay distinguishable.
type Issuer struct {
	prefix string
}

// NewIssuer returns an Issuer with the given prefix, defaulting to "emu".
func NewIssuer(prefix string) *Issuer {
	if prefix == "" {
		prefix = "emu"
	}
	return &Issuer{prefix: prefix}
}

// SubscriptionToken mints a token of the form
// {prefix}_sub_{16 hex chars}_{issue time millis}.
func (i *Issuer) SubscriptionToken(nowMillis int64) string {
	return i.token("sub", nowMillis)
}

// PurchaseToken mints a one-time-product token of the form
// {prefix}_inapp_{16 hex chars}_{issue time millis}.
func (i *Issuer) PurchaseToken(nowMillis int64) string {
	return i.token("inapp", nowMillis)
}

func (i *Issuer) token(kind string, nowMillis int64) string {
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("%s_%s_%s_%d", i.prefix, kind, entropy, nowMillis)
}

// OrderID mints an order identifier in Play's GPA format:
// GPA.dddd-dddd-dddd-dddd.
func OrderID() string {
	part := func() int { return 1000 + rand.Intn(9000) }
	return fmt.Sprintf("GPA.%04d-%04d-%04d-%04d", part(), part(), part(), part())
}

// IsSubscriptionToken reports whether the token carries the subscription
// segment, regardless of prefix.
func IsSubscriptionToken(token string) bool {
	parts := strings.Split(token, "_")
	return len(parts) == 4 && parts[1] == "sub"
}

// IsPurchaseToken reports whether the token carries the one-time-product
// segment, regardless of prefix.
func IsPurchaseToken(token string) bool {
	parts := strings.Split(token, "_")
	return len(parts) == 4 && parts[1] == "inapp"
}
