package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/pkg/billingperiod"
)

// ProductsFile is the on-disk catalog: app identity, emulator behavior and
// the product definitions.
type ProductsFile struct {
	DefaultPackageName string                     `yaml:"default_package_name" validate:"required"`
	Emulator           EmulatorSettings           `yaml:"emulator"`
	Products           []domain.ProductDefinition `yaml:"products" validate:"dive"`
	Subscriptions      []domain.ProductDefinition `yaml:"subscriptions" validate:"dive"`
}

// EmulatorSettings tunes token issuance and notification behavior.
type EmulatorSettings struct {
	TokenPrefix string `yaml:"token_prefix"`
	RTDNEnabled *bool  `yaml:"rtdn_enabled"`
}

// LoadProducts reads and validates the products file. One-time entries in
// `products` default to type inapp and entries in `subscriptions` to type
// subs, so the file does not need to repeat the type on every item.
func LoadProducts(path string) (*ProductsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading products file: %w", err)
	}

	var file ProductsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing products file: %w", err)
	}

	for i := range file.Products {
		if file.Products[i].Type == "" {
			file.Products[i].Type = domain.ProductTypeInApp
		}
	}
	for i := range file.Subscriptions {
		if file.Subscriptions[i].Type == "" {
			file.Subscriptions[i].Type = domain.ProductTypeSubscription
		}
	}

	validate := validator.New()
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("validating products file: %w", err)
	}

	for _, def := range file.Subscriptions {
		if !billingperiod.Validate(def.BillingPeriod) {
			return nil, fmt.Errorf("subscription %q: invalid billing period %q", def.ProductID, def.BillingPeriod)
		}
	}

	return &file, nil
}

// Definitions returns all product definitions, one-time products first.
func (f *ProductsFile) Definitions() []domain.ProductDefinition {
	definitions := make([]domain.ProductDefinition, 0, len(f.Products)+len(f.Subscriptions))
	definitions = append(definitions, f.Products...)
	definitions = append(definitions, f.Subscriptions...)
	return definitions
}
