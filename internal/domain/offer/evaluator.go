package offer

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCode is returned when the code is not in the catalog.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrMethodNotEligible is returned when the offer requires another payment method.
	ErrMethodNotEligible = errors.New("payment method not eligible")
	// ErrBelowMinimumAmount is returned when the order is below the offer minimum.
	ErrBelowMinimumAmount = errors.New("order below minimum amount")
	// ErrAlreadyUsed is returned for one-time offers that were already redeemed.
	ErrAlreadyUsed = errors.New("offer already used")
	// ErrNoApplicableOffer is returned when no offer yields a positive discount.
	ErrNoApplicableOffer = errors.New("no applicable offer")
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Rejection explains why a code does not apply. It wraps one of the sentinel
// errors above and carries the message shown to the customer.
type Rejection struct {
	Code    string
	Reason  error
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

func reject(code string, reason error, format string, args ...any) *Rejection {
	return &Rejection{
		Code:    code,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// Result is the outcome of evaluating a single code.
type Result struct {
	Code      string
	Amount    decimal.Decimal
	Rejection *Rejection
}

// Valid reports whether the code applies.
func (r Result) Valid() bool {
	return r.Rejection == nil
}

// Positive reports whether the code applies with a non-zero discount.
func (r Result) Positive() bool {
	return r.Valid() && r.Amount.IsPositive()
}

// UsageReader exposes the persisted one-time offer flag.
type UsageReader interface {
	FirstOrderUsed() bool
}

// Usage is a fixed UsageReader value.
type Usage struct {
	FirstOrder bool
}

// FirstOrderUsed implements UsageReader.
func (u Usage) FirstOrderUsed() bool {
	return u.FirstOrder
}

// Evaluator scores codes against an order amount and payment method.
type Evaluator struct {
	catalog *Catalog
	usage   UsageReader
}

// NewEvaluator returns an Evaluator over the catalog. A nil usage reader is
// treated as "first order not used yet".
func NewEvaluator(catalog *Catalog, usage UsageReader) *Evaluator {
	if usage == nil {
		usage = Usage{}
	}
	return &Evaluator{catalog: catalog, usage: usage}
}

// Catalog returns the catalog the evaluator reads from.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Evaluate computes the discount of code for the given order. It never fails:
// codes that do not apply are reported through Result.Rejection.
func (e *Evaluator) Evaluate(code string, amount decimal.Decimal, method PaymentMethod) Result {
	o, ok := e.catalog.Lookup(code)
	if !ok {
		return Result{
			Code:      normalizeCode(code),
			Amount:    zero,
			Rejection: reject(normalizeCode(code), ErrInvalidCode, "Invalid coupon code"),
		}
	}
	return e.evaluateOffer(o, amount, method)
}

func (e *Evaluator) evaluateOffer(o Offer, amount decimal.Decimal, method PaymentMethod) Result {
	res := Result{Code: o.Code, Amount: zero}

	if !method.Valid() {
		res.Rejection = reject(o.Code, ErrMethodNotEligible, "Unsupported payment method %q", string(method))
		return res
	}
	if !o.Accepts(method) {
		res.Rejection = reject(o.Code, ErrMethodNotEligible,
			"%s is valid only with %s", o.Code, methodList(o.EligibleMethods))
		return res
	}
	if o.OneTime && e.usage.FirstOrderUsed() {
		res.Rejection = reject(o.Code, ErrAlreadyUsed, "%s has already been used", o.Code)
		return res
	}

	amount = floorAtZero(amount)
	if o.MinAmount.IsPositive() && amount.LessThan(o.MinAmount) {
		res.Rejection = reject(o.Code, ErrBelowMinimumAmount,
			"Minimum order of ₹%s required for %s", o.MinAmount.String(), o.Code)
		return res
	}

	switch o.Kind {
	case KindPercentage:
		res.Amount = percentageDiscount(o, amount)
	default:
		res.Amount = decimal.Min(o.Value, amount).Floor()
	}
	return res
}

// percentageDiscount returns min(floor(amount*rate), cap). Flooring keeps the
// discount at or below the advertised percentage.
func percentageDiscount(o Offer, amount decimal.Decimal) decimal.Decimal {
	d := amount.Mul(o.Value).Div(hundred).Floor()
	if o.CapAmount.IsPositive() && d.GreaterThan(o.CapAmount) {
		d = o.CapAmount.Floor()
	}
	return decimal.Min(d, amount.Floor())
}

func methodList(methods []PaymentMethod) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Title()
	}
	return strings.Join(names, " or ")
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
