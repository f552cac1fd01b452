package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductDefinition describes one catalog entry, loaded from the products
// file at startup. Subscription-only fields are zero for one-time products.
type ProductDefinition struct {
	ProductID         string      `yaml:"product_id" json:"product_id" validate:"required"`
	Type              ProductType `yaml:"type" json:"type" validate:"required,oneof=inapp subs"`
	Title             string      `yaml:"title" json:"title" validate:"required"`
	Description       string      `yaml:"description" json:"description"`
	PriceAmountMicros int64       `yaml:"price_amount_micros" json:"price_amount_micros" validate:"gte=0"`
	PriceCurrencyCode string      `yaml:"price_currency_code" json:"price_currency_code" validate:"required,len=3"`

	BillingPeriod     string `yaml:"billing_period,omitempty" json:"billing_period,omitempty"`
	TrialPeriod       string `yaml:"trial_period,omitempty" json:"trial_period,omitempty"`
	GracePeriod       string `yaml:"grace_period,omitempty" json:"grace_period,omitempty"`
	AccountHoldPeriod string `yaml:"account_hold_period,omitempty" json:"account_hold_period,omitempty"`
	BasePlanID        string `yaml:"base_plan_id,omitempty" json:"base_plan_id,omitempty"`
	OfferID           string `yaml:"offer_id,omitempty" json:"offer_id,omitempty"`
}

// IsSubscription reports whether the definition describes a subscription.
func (p *ProductDefinition) IsSubscription() bool {
	return p.Type == ProductTypeSubscription
}

// HasTrial reports whether a free trial is configured.
func (p *ProductDefinition) HasTrial() bool {
	return p.TrialPeriod != ""
}

// HasGracePeriod reports whether payment failures enter a grace period
// before account hold.
func (p *ProductDefinition) HasGracePeriod() bool {
	return p.GracePeriod != ""
}

// Price returns the price as a decimal in currency units.
func (p *ProductDefinition) Price() decimal.Decimal {
	return decimal.New(p.PriceAmountMicros, -6)
}

// DisplayPrice renders the price with its currency code, e.g. "9.99 USD".
func (p *ProductDefinition) DisplayPrice() string {
	return fmt.Sprintf("%s %s", p.Price().StringFixed(2), p.PriceCurrencyCode)
}
