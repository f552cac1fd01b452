// Package catalog holds the immutable product catalog loaded at startup.
package catalog

import (
	"fmt"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/pkg/billingperiod"
)

// Catalog indexes product definitions by ID. It is built once at startup
// and read-only afterwards, so lookups need no locking.
type Catalog struct {
	products map[string]*domain.ProductDefinition
	ordered  []*domain.ProductDefinition
}

// New validates the definitions and builds a catalog. Duplicate IDs and
// unparseable subscription periods are rejected.
func New(definitions []domain.ProductDefinition) (*Catalog, error) {
	c := &Catalog{products: make(map[string]*domain.ProductDefinition, len(definitions))}
	for i := range definitions {
		def := definitions[i]
		if _, exists := c.products[def.ProductID]; exists {
			return nil, domain.NewInvalidArgumentError(
				fmt.Sprintf("duplicate product id %q", def.ProductID))
		}
		if err := validatePeriods(&def); err != nil {
			return nil, err
		}
		c.products[def.ProductID] = &def
		c.ordered = append(c.ordered, &def)
	}
	return c, nil
}

func validatePeriods(def *domain.ProductDefinition) error {
	if def.IsSubscription() {
		if def.BillingPeriod == "" {
			return domain.NewInvalidArgumentError(
				fmt.Sprintf("subscription %q has no billing period", def.ProductID))
		}
		if _, err := billingperiod.Parse(def.BillingPeriod); err != nil {
			return domain.WrapError(domain.ErrCodeInvalidArgument,
				fmt.Sprintf("subscription %q has invalid billing period", def.ProductID), err)
		}
	}
	for name, period := range map[string]string{
		"trial_period":        def.TrialPeriod,
		"grace_period":        def.GracePeriod,
		"account_hold_period": def.AccountHoldPeriod,
	} {
		if period == "" {
			continue
		}
		if _, err := billingperiod.Parse(period); err != nil {
			return domain.WrapError(domain.ErrCodeInvalidArgument,
				fmt.Sprintf("product %q has invalid %s", def.ProductID, name), err)
		}
	}
	return nil
}

// Get returns the definition for id or a PRODUCT_NOT_FOUND error.
func (c *Catalog) Get(id string) (*domain.ProductDefinition, error) {
	def, exists := c.products[id]
	if !exists {
		return nil, domain.NewProductNotFoundError(id)
	}
	return def, nil
}

// Find returns the definition and whether it exists.
func (c *Catalog) Find(id string) (*domain.ProductDefinition, bool) {
	def, exists := c.products[id]
	return def, exists
}

// All returns definitions in load order, filtered by type when productType
// is non-empty.
func (c *Catalog) All(productType domain.ProductType) []*domain.ProductDefinition {
	if productType == "" {
		result := make([]*domain.ProductDefinition, len(c.ordered))
		copy(result, c.ordered)
		return result
	}
	var result []*domain.ProductDefinition
	for _, def := range c.ordered {
		if def.Type == productType {
			result = append(result, def)
		}
	}
	return result
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.ordered)
}
