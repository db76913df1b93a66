// Package payments talks to the card-payment provider. Each brand may use its
// own provider account.
package payments

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by a Registry when a brand has no provider key.
var ErrNotConfigured = errors.New("payment provider is not configured for this brand")

// Intent is a provider-side charge.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	// Amount is in minor units (cents).
	Amount   int64
	Currency string
	Metadata map[string]string
}

// CreateIntentParams describes a charge to create.
type CreateIntentParams struct {
	Amount         int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Provider creates and retrieves charges.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
}

// Registry resolves the provider account of a brand.
type Registry interface {
	ForBrand(brandCode string) (Provider, error)
}

// ProviderError is a failure reported by the provider.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the provider says the charge does not exist.
func (e *ProviderError) IsNotFound() bool {
	return e.StatusCode == 404 || e.Code == "resource_missing"
}
