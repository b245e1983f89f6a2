// Package checkout implements the checkout session: the applied offers, the
// resulting discount and how both react to order changes.
package checkout

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gozy-app/gozy/internal/domain/offer"
)

// DefaultNoticeTTL is how long a transient notice stays visible.
const DefaultNoticeTTL = 2 * time.Second

// ErrNegativeAmount is returned when an order amount below zero is supplied.
var ErrNegativeAmount = errors.New("order amount must not be negative")

// Mode describes how the current discount was chosen.
type Mode int

const (
	// ModeEmpty means no offer is applied.
	ModeEmpty Mode = iota
	// ModeManual means the customer entered the primary code.
	ModeManual
	// ModeAuto means the best-offer selector chose the codes.
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	default:
		return "empty"
	}
}

// AppliedCode is an offer code in effect and its own discount.
type AppliedCode struct {
	Code   string
	Amount decimal.Decimal
}

// Notice is a transient, auto-dismissing customer message. Reason is nil for
// informational notices and wraps an offer sentinel error for rejections.
type Notice struct {
	Message   string
	Reason    error
	ExpiresAt time.Time
}

// State is a read-only view of a session.
type State struct {
	Amount  decimal.Decimal
	Method  offer.PaymentMethod
	Applied []AppliedCode
	Total   decimal.Decimal
	Mode    Mode
}

// Codes returns the applied codes in order.
func (s State) Codes() []string {
	codes := make([]string, len(s.Applied))
	for i, a := range s.Applied {
		codes[i] = a.Code
	}
	return codes
}

// Payable returns the amount left to pay after the discount.
func (s State) Payable() decimal.Decimal {
	p := s.Amount.Sub(s.Total)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// Settlement is the finalized checkout handed to the settlement collaborator.
type Settlement struct {
	PaymentMethod  offer.PaymentMethod
	OrderAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	AppliedCodes   []string
}

// Options configures a new Session.
type Options struct {
	Amount decimal.Decimal
	Method offer.PaymentMethod
	// Personalization allows the selector to apply offers automatically.
	Personalization bool
	// LastAppliedCodes seeds the session when the codes are still valid.
	LastAppliedCodes []string
	NoticeTTL        time.Duration
	Now              func() time.Time
}

// Session is the state of one checkout flow. It is owned by a single caller
// and is not safe for concurrent use.
type Session struct {
	selector *offer.Selector

	amount          decimal.Decimal
	method          offer.PaymentMethod
	applied         []AppliedCode
	total           decimal.Decimal
	mode            Mode
	personalization bool

	notice    Notice
	hasNotice bool
	noticeTTL time.Duration
	now       func() time.Time
}

// NewSession creates a session for the order. The seed codes are adopted as an
// automatic selection only when all of them still validate together.
func NewSession(selector *offer.Selector, opts Options) (*Session, error) {
	if err := validateInput(opts.Amount, opts.Method); err != nil {
		return nil, err
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		selector:        selector,
		amount:          opts.Amount,
		method:          opts.Method,
		total:           decimal.Zero,
		personalization: opts.Personalization,
		noticeTTL:       opts.NoticeTTL,
		now:             opts.Now,
	}
	s.seed(opts.LastAppliedCodes)
	return s, nil
}

func validateInput(amount decimal.Decimal, method offer.PaymentMethod) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !method.Valid() {
		return errors.Wrapf(offer.ErrUnknownPaymentMethod, "%q", string(method))
	}
	return nil
}

func (s *Session) seed(codes []string) {
	if len(codes) == 0 || len(codes) > 2 {
		return
	}
	sel, results := s.selector.Validate(codes, s.amount, s.method)
	for _, r := range results {
		if !r.Valid() {
			return
		}
	}
	s.adopt(sel, ModeAuto)
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() State {
	applied := make([]AppliedCode, len(s.applied))
	copy(applied, s.applied)
	return State{
		Amount:  s.amount,
		Method:  s.method,
		Applied: applied,
		Total:   s.total,
		Mode:    s.mode,
	}
}

// Mode returns how the current discount was chosen.
func (s *Session) Mode() Mode {
	return s.mode
}

// Personalization reports whether automatic selection is allowed.
func (s *Session) Personalization() bool {
	return s.personalization
}

// ApplyManual applies a customer-entered code. When paying by wallet, the
// wallet-cashback offer is stacked on top if that increases the discount.
// A rejected code leaves the current selection untouched; the rejection is
// returned and surfaced as a notice.
func (s *Session) ApplyManual(code string) error {
	sel, res := s.selector.Stack(code, s.amount, s.method)
	if !res.Valid() {
		s.notify(res.Rejection.Message, res.Rejection)
		return res.Rejection
	}

	s.adopt(sel, ModeManual)
	s.notify(fmt.Sprintf("%s applied. You save ₹%s", res.Code, s.total.String()), nil)
	return nil
}

// ReevaluateOnChange updates the order amount and payment method and
// re-validates every applied code. Invalid input is reported as an error and
// leaves the session untouched.
func (s *Session) ReevaluateOnChange(amount decimal.Decimal, method offer.PaymentMethod) error {
	if err := validateInput(amount, method); err != nil {
		return err
	}
	s.amount = amount
	s.method = method

	switch s.mode {
	case ModeManual:
		s.revalidateManual()
	case ModeAuto:
		s.revalidateAuto()
	}
	return nil
}

// revalidateManual keeps the customer's code while it stays valid and
// re-probes the wallet stack around it.
func (s *Session) revalidateManual() {
	prev := s.applied
	sel, res := s.selector.Stack(prev[0].Code, s.amount, s.method)
	if !res.Valid() {
		s.reset()
		s.notify(res.Rejection.Message, res.Rejection)
		return
	}

	s.adopt(sel, ModeManual)
	if len(prev) == 2 && !sel.Stacked() {
		w := s.selector.Evaluator().Evaluate(prev[1].Code, s.amount, s.method)
		if w.Rejection != nil {
			s.notify(w.Rejection.Message, w.Rejection)
		}
	}
}

func (s *Session) revalidateAuto() {
	if !s.personalization {
		codes := s.Snapshot().Codes()
		sel, results := s.selector.Validate(codes, s.amount, s.method)
		if !results[0].Valid() {
			s.reset()
			s.notify(results[0].Rejection.Message, results[0].Rejection)
			return
		}
		s.adopt(sel, ModeAuto)
		if len(results) > 1 && !results[1].Valid() {
			s.notify(results[1].Rejection.Message, results[1].Rejection)
		}
		return
	}

	sel := s.selector.SelectBest(s.amount, s.method)
	if sel.Empty() {
		s.reset()
		s.notify("No offer applies to this order", offer.ErrNoApplicableOffer)
		return
	}
	s.adopt(sel, ModeAuto)
}

// AutoSelectIfIdle applies the best available offers when nothing was applied
// manually and personalization is enabled. It reports whether the selection
// changed.
func (s *Session) AutoSelectIfIdle() bool {
	if s.mode == ModeManual || !s.personalization {
		return false
	}

	sel := s.selector.SelectBest(s.amount, s.method)
	if sel.Empty() {
		if s.mode == ModeAuto {
			s.reset()
			return true
		}
		return false
	}
	if s.mode == ModeAuto && sameCodes(s.applied, sel.Codes) && s.total.Equal(sel.Discount) {
		return false
	}

	s.adopt(sel, ModeAuto)
	return true
}

// Clear removes every applied code.
func (s *Session) Clear() {
	s.reset()
}

// Notice returns the current notice while it has not expired.
func (s *Session) Notice() (Notice, bool) {
	if !s.hasNotice || !s.now().Before(s.notice.ExpiresAt) {
		return Notice{}, false
	}
	return s.notice, true
}

// Checkout finalizes the session into a settlement payload.
func (s *Session) Checkout() Settlement {
	st := s.Snapshot()
	return Settlement{
		PaymentMethod:  st.Method,
		OrderAmount:    st.Amount,
		DiscountAmount: st.Total,
		FinalAmount:    st.Payable(),
		AppliedCodes:   st.Codes(),
	}
}

func (s *Session) adopt(sel offer.Selection, mode Mode) {
	if sel.Empty() {
		s.reset()
		return
	}
	eval := s.selector.Evaluator()
	applied := make([]AppliedCode, len(sel.Codes))
	for i, code := range sel.Codes {
		applied[i] = AppliedCode{
			Code:   code,
			Amount: eval.Evaluate(code, s.amount, s.method).Amount,
		}
	}
	s.applied = applied
	s.total = sel.Discount
	s.mode = mode
}

func (s *Session) reset() {
	s.applied = nil
	s.total = decimal.Zero
	s.mode = ModeEmpty
}

// notify replaces the current notice.
func (s *Session) notify(msg string, reason error) {
	s.notice = Notice{
		Message:   msg,
		Reason:    reason,
		ExpiresAt: s.now().Add(s.noticeTTL),
	}
	s.hasNotice = true
}

func sameCodes(applied []AppliedCode, codes []string) bool {
	if len(applied) != len(codes) {
		return false
	}
	for i, a := range applied {
		if a.Code != codes[i] {
			return false
		}
	}
	return true
}
