package offer

import (
	"github.com/shopspring/decimal"
)

// SelectorConfig holds the stacking rules of the best-offer selector.
type SelectorConfig struct {
	// StackCapPercent bounds the total discount as a percentage of the
	// order amount.
	StackCapPercent int64
	// WalletCashbackCode is the offer that may be stacked with one other
	// stackable offer when paying by wallet.
	WalletCashbackCode string
	// PreferStackOnTie selects the two-code combination when it yields the
	// same discount as the best single code.
	PreferStackOnTie bool
}

// DefaultSelectorConfig returns the production stacking rules: a 40% cap,
// WALLET100 as the wallet-cashback code and ties resolved to a single code.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		StackCapPercent:    40,
		WalletCashbackCode: WalletCashbackCode,
	}
}

// Selection is a set of codes chosen together and their combined discount.
// A zero Selection means no offer applies.
type Selection struct {
	Codes    []string
	Discount decimal.Decimal
}

// Empty reports whether the selection carries no codes.
func (s Selection) Empty() bool {
	return len(s.Codes) == 0
}

// Stacked reports whether the selection combines two codes.
func (s Selection) Stacked() bool {
	return len(s.Codes) == 2
}

// Selector finds the best single offer or wallet-cashback combination.
type Selector struct {
	eval *Evaluator
	cfg  SelectorConfig
}

// NewSelector returns a Selector over the evaluator.
func NewSelector(eval *Evaluator, cfg SelectorConfig) *Selector {
	cfg.WalletCashbackCode = normalizeCode(cfg.WalletCashbackCode)
	return &Selector{eval: eval, cfg: cfg}
}

// Evaluator returns the underlying evaluator.
func (s *Selector) Evaluator() *Evaluator {
	return s.eval
}

// Config returns the stacking rules in effect.
func (s *Selector) Config() SelectorConfig {
	return s.cfg
}

// WalletCashbackCode returns the normalized wallet-cashback code.
func (s *Selector) WalletCashbackCode() string {
	return s.cfg.WalletCashbackCode
}

// StackCap returns floor(amount * StackCapPercent / 100).
func (s *Selector) StackCap(amount decimal.Decimal) decimal.Decimal {
	return floorAtZero(amount).
		Mul(decimal.NewFromInt(s.cfg.StackCapPercent)).
		Div(hundred).
		Floor()
}

// Cap bounds a raw discount by the stacking cap of amount.
func (s *Selector) Cap(raw, amount decimal.Decimal) decimal.Decimal {
	return decimal.Min(raw, s.StackCap(amount))
}

// SelectBest returns the best applicable selection for the order. It returns
// an empty Selection when no offer yields a positive discount.
func (s *Selector) SelectBest(amount decimal.Decimal, method PaymentMethod) Selection {
	var single Selection
	for _, o := range s.eval.catalog.offers {
		res := s.eval.evaluateOffer(o, amount, method)
		if !res.Positive() {
			continue
		}
		d := s.Cap(res.Amount, amount)
		if d.GreaterThan(single.Discount) {
			single = Selection{Codes: []string{o.Code}, Discount: d}
		}
	}

	stack := s.bestStack(amount, method)
	if stack.Empty() {
		return single
	}
	if stack.Discount.GreaterThan(single.Discount) ||
		(s.cfg.PreferStackOnTie && stack.Discount.Equal(single.Discount)) {
		return stack
	}
	return single
}

// bestStack pairs the wallet-cashback code with every compatible offer and
// returns the best pair.
func (s *Selector) bestStack(amount decimal.Decimal, method PaymentMethod) Selection {
	wallet, ok := s.walletCashback(amount, method)
	if !ok {
		return Selection{}
	}

	var best Selection
	for _, o := range s.eval.catalog.offers {
		if !s.stackableWithWallet(o) {
			continue
		}
		res := s.eval.evaluateOffer(o, amount, method)
		if !res.Positive() {
			continue
		}
		d := s.Cap(wallet.Amount.Add(res.Amount), amount)
		if d.GreaterThan(best.Discount) {
			best = Selection{Codes: []string{o.Code, wallet.Code}, Discount: d}
		}
	}
	return best
}

// Stack returns the best selection built around code: the code alone, or the
// code followed by the wallet-cashback code when that combination is larger.
// The returned Result reports the evaluation of code itself.
func (s *Selector) Stack(code string, amount decimal.Decimal, method PaymentMethod) (Selection, Result) {
	res := s.eval.Evaluate(code, amount, method)
	if !res.Valid() {
		return Selection{}, res
	}

	single := Selection{Codes: []string{res.Code}, Discount: s.Cap(res.Amount, amount)}

	o, _ := s.eval.catalog.Lookup(res.Code)
	if !s.stackableWithWallet(o) {
		return single, res
	}
	wallet, ok := s.walletCashback(amount, method)
	if !ok {
		return single, res
	}

	combined := s.Cap(wallet.Amount.Add(res.Amount), amount)
	if combined.GreaterThan(single.Discount) ||
		(s.cfg.PreferStackOnTie && combined.Equal(single.Discount) && res.Amount.IsPositive()) {
		return Selection{Codes: []string{res.Code, wallet.Code}, Discount: combined}, res
	}
	return single, res
}

// Validate re-checks a previously chosen list of codes and returns the
// selection they currently yield. The per-code results are returned in the
// same order as codes.
func (s *Selector) Validate(codes []string, amount decimal.Decimal, method PaymentMethod) (Selection, []Result) {
	results := make([]Result, len(codes))
	sum := zero
	valid := make([]string, 0, len(codes))
	for i, code := range codes {
		res := s.eval.Evaluate(code, amount, method)
		if i > 0 && res.Valid() && !s.combinable(results[0], res, i, method) {
			res.Rejection = reject(res.Code, ErrInvalidCode, "%s cannot be combined with %s", res.Code, results[0].Code)
			res.Amount = zero
		}
		results[i] = res
		if res.Valid() {
			valid = append(valid, res.Code)
			sum = sum.Add(res.Amount)
		}
	}
	if len(valid) == 0 {
		return Selection{}, results
	}
	return Selection{Codes: valid, Discount: s.Cap(sum, amount)}, results
}

// combinable reports whether res may follow primary as the i-th code of a
// selection. Only the wallet-cashback code may be second, and only after a
// stackable offer.
func (s *Selector) combinable(primary, res Result, i int, method PaymentMethod) bool {
	if i != 1 || !primary.Valid() || method != MethodWallet || res.Code != s.cfg.WalletCashbackCode {
		return false
	}
	o, ok := s.eval.catalog.Lookup(primary.Code)
	return ok && s.stackableWithWallet(o)
}

func (s *Selector) walletCashback(amount decimal.Decimal, method PaymentMethod) (Result, bool) {
	if method != MethodWallet || s.cfg.WalletCashbackCode == "" {
		return Result{}, false
	}
	res := s.eval.Evaluate(s.cfg.WalletCashbackCode, amount, method)
	return res, res.Positive()
}

func (s *Selector) stackableWithWallet(o Offer) bool {
	return o.Stackable &&
		o.Code != s.cfg.WalletCashbackCode &&
		!o.Exclusive(MethodCard)
}
