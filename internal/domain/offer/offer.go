// Package offer holds the Gozy promotional offer catalog, the discount
// evaluator and the best-offer selector used at checkout.
package offer

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethod is one of the payment methods accepted at checkout.
type PaymentMethod string

const (
	MethodWallet   PaymentMethod = "wallet"
	MethodUPI      PaymentMethod = "upi"
	MethodCard     PaymentMethod = "card"
	MethodPayLater PaymentMethod = "paylater"
)

// ErrUnknownPaymentMethod is returned by ParsePaymentMethod for values outside
// the supported set.
var ErrUnknownPaymentMethod = errors.New("unknown payment method")

// Methods returns all supported payment methods in display order.
func Methods() []PaymentMethod {
	return []PaymentMethod{MethodWallet, MethodUPI, MethodCard, MethodPayLater}
}

// Valid reports whether m belongs to the supported set.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodWallet, MethodUPI, MethodCard, MethodPayLater:
		return true
	default:
		return false
	}
}

// Title returns the human-readable name used in customer messages.
func (m PaymentMethod) Title() string {
	switch m {
	case MethodWallet:
		return "Gozy Wallet"
	case MethodUPI:
		return "UPI"
	case MethodCard:
		return "Card"
	case MethodPayLater:
		return "Pay Later"
	default:
		return string(m)
	}
}

// ParsePaymentMethod parses a payment method name, ignoring case and
// surrounding whitespace.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.Wrapf(ErrUnknownPaymentMethod, "%q", s)
	}
	return m, nil
}

// Kind enumerates the payout rules an offer can use.
type Kind string

const (
	// KindFlat discounts a fixed rupee amount, bounded by the order amount.
	KindFlat Kind = "flat"
	// KindPercentage discounts a percentage of the order amount, bounded by
	// the offer cap when one is set.
	KindPercentage Kind = "percentage"
)

// Offer is a statically defined promotional rule.
type Offer struct {
	Code  string
	Label string
	Kind  Kind
	// Value is the rupee amount for flat offers and the percent for
	// percentage offers.
	Value decimal.Decimal
	// EligibleMethods lists accepted payment methods. Empty means any.
	EligibleMethods []PaymentMethod
	// MinAmount is the minimum order amount. Zero means no minimum.
	MinAmount decimal.Decimal
	// CapAmount bounds percentage discounts. Zero means uncapped.
	CapAmount decimal.Decimal
	// Stackable offers may be combined with the wallet-cashback offer.
	Stackable bool
	// OneTime offers are valid only until the first order has been placed.
	OneTime bool
}

// Accepts reports whether the offer can be used with the payment method.
func (o Offer) Accepts(m PaymentMethod) bool {
	if !m.Valid() {
		return false
	}
	if len(o.EligibleMethods) == 0 {
		return true
	}
	for _, em := range o.EligibleMethods {
		if em == m {
			return true
		}
	}
	return false
}

// Exclusive reports whether m is the only method the offer accepts.
func (o Offer) Exclusive(m PaymentMethod) bool {
	return len(o.EligibleMethods) == 1 && o.EligibleMethods[0] == m
}

// normalizeCode trims and upper-cases a user supplied coupon code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
