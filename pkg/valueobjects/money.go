// Package valueobjects holds small immutable domain values.
package valueobjects

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vinetrail/vinetrail-backend/errors"
)

// Currency represents an ISO 4217 currency code
type Currency string

// Supported currencies
const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	EUR Currency = "EUR"
)

var validCurrencies = map[Currency]bool{
	USD: true,
	CAD: true,
	EUR: true,
}

var hundred = decimal.NewFromInt(100)

// Money represents a monetary value with a specific currency
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money instance with validation
func NewMoney(amount decimal.Decimal, currency string) (*Money, error) {
	curr := Currency(strings.ToUpper(currency))
	if !validCurrencies[curr] {
		return nil, errors.ValidationFailed(
			"invalid currency",
			fmt.Sprintf("currency %s is not supported", currency),
		)
	}

	if amount.IsNegative() {
		return nil, errors.ValidationFailed("invalid amount", "amount cannot be negative")
	}

	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return nil, errors.ValidationFailed("invalid amount", "amount cannot have more than 2 decimal places")
	}

	return &Money{amount: amount, currency: curr}, nil
}

// FromMinorUnits builds Money from an integer count of cents.
func FromMinorUnits(cents int64, currency string) (*Money, error) {
	return NewMoney(decimal.New(cents, -2), currency)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// MinorUnits returns the amount in cents, the unit card processors charge in.
func (m Money) MinorUnits() int64 {
	return m.amount.Mul(hundred).Round(0).IntPart()
}

// ProviderCurrency is the lowercase code payment APIs expect.
func (m Money) ProviderCurrency() string {
	return strings.ToLower(string(m.currency))
}

// IsPositive reports whether the amount is greater than zero
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Equals checks if two monetary values are equal
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String renders the amount with two decimals, e.g. "1250.00 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}
