// Package settlement records a finalized checkout against the user's ledgers.
package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
)

// Sentinel errors for settlement.
var (
	ErrInsufficientBalance   = errors.New("insufficient wallet balance")
	ErrPayLaterLimitExceeded = errors.New("pay later limit exceeded")
	ErrInvalidAmount         = errors.New("invalid settlement amount")
)

var hundred = decimal.NewFromInt(100)

// Config holds the ledger rules.
type Config struct {
	// PayLaterLimit is the total a user may owe through pay later.
	PayLaterLimit decimal.Decimal
	// RewardPointsPer100 is credited for every full ₹100 paid.
	RewardPointsPer100 int64
}

// DefaultConfig returns a ₹10000 pay later limit and one point per ₹100.
func DefaultConfig() Config {
	return Config{
		PayLaterLimit:      decimal.NewFromInt(10000),
		RewardPointsPer100: 1,
	}
}

// Receipt describes a settled order and the ledgers after settlement.
type Receipt struct {
	Order         profile.Order
	WalletBalance decimal.Decimal
	PayLaterUsed  decimal.Decimal
	LoyaltyPoints int64
}

// Service settles checkouts.
type Service struct {
	profiles *profile.Repository
	catalog  *offer.Catalog
	cfg      Config
	now      func() time.Time
	locks    userLocks
}

// NewService creates a settlement Service. The catalog is used to find
// one-time offers among the applied codes.
func NewService(profiles *profile.Repository, catalog *offer.Catalog, cfg Config) *Service {
	return &Service{
		profiles: profiles,
		catalog:  catalog,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Settle charges the final amount to the chosen method, credits loyalty
// points and records the order.
//
// Settlements of the same user are serialised by this Service. Ledger checks
// and the one-time offer check happen before anything is written. If a store
// write fails midway, the writes already made are reverted before the error
// is returned.
func (s *Service) Settle(ctx context.Context, userID string, st checkout.Settlement) (_ *Receipt, rerr error) {
	if !st.PaymentMethod.Valid() {
		return nil, errors.Wrapf(offer.ErrUnknownPaymentMethod, "%q", string(st.PaymentMethod))
	}
	if st.FinalAmount.IsNegative() || st.DiscountAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	p, err := s.profiles.For(userID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(p.UserID())
	defer unlock()

	var r Receipt
	if r.WalletBalance, err = p.WalletBalance(ctx); err != nil {
		return nil, err
	}
	if r.PayLaterUsed, err = p.PayLaterUsed(ctx); err != nil {
		return nil, err
	}
	if r.LoyaltyPoints, err = p.LoyaltyPoints(ctx); err != nil {
		return nil, err
	}
	lastCodes, err := p.LastAppliedCodes(ctx)
	if err != nil {
		return nil, err
	}

	oneTime := s.usesOneTimeOffer(st.AppliedCodes)
	if oneTime {
		used, err := p.FirstOrderUsed(ctx)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, errors.Wrapf(offer.ErrAlreadyUsed, "codes %v", st.AppliedCodes)
		}
	}

	var (
		prevWallet   = r.WalletBalance
		prevPayLater = r.PayLaterUsed
		prevPoints   = r.LoyaltyPoints
	)
	switch st.PaymentMethod {
	case offer.MethodWallet:
		if r.WalletBalance.LessThan(st.FinalAmount) {
			return nil, errors.Wrapf(ErrInsufficientBalance, "balance ₹%s, payable ₹%s", r.WalletBalance, st.FinalAmount)
		}
	case offer.MethodPayLater:
		if r.PayLaterUsed.Add(st.FinalAmount).GreaterThan(s.cfg.PayLaterLimit) {
			return nil, errors.Wrapf(ErrPayLaterLimitExceeded, "limit ₹%s, used ₹%s", s.cfg.PayLaterLimit, r.PayLaterUsed)
		}
	}

	var undo journal
	defer func() {
		if rerr != nil {
			undo.rollback(ctx, p.UserID())
		}
	}()

	switch st.PaymentMethod {
	case offer.MethodWallet:
		r.WalletBalance = r.WalletBalance.Sub(st.FinalAmount)
		if err := p.SetWalletBalance(ctx, r.WalletBalance); err != nil {
			return nil, err
		}
		undo.add("wallet balance", func(ctx context.Context) error {
			return p.SetWalletBalance(ctx, prevWallet)
		})
	case offer.MethodPayLater:
		r.PayLaterUsed = r.PayLaterUsed.Add(st.FinalAmount)
		if err := p.SetPayLaterUsed(ctx, r.PayLaterUsed); err != nil {
			return nil, err
		}
		undo.add("pay later", func(ctx context.Context) error {
			return p.SetPayLaterUsed(ctx, prevPayLater)
		})
	}

	points := st.FinalAmount.Div(hundred).Floor().IntPart() * s.cfg.RewardPointsPer100
	if points > 0 {
		r.LoyaltyPoints += points
		if err := p.SetLoyaltyPoints(ctx, r.LoyaltyPoints); err != nil {
			return nil, err
		}
		undo.add("loyalty points", func(ctx context.Context) error {
			return p.SetLoyaltyPoints(ctx, prevPoints)
		})
	}

	if err := p.SetLastAppliedCodes(ctx, st.AppliedCodes); err != nil {
		return nil, err
	}
	undo.add("last applied codes", func(ctx context.Context) error {
		return p.SetLastAppliedCodes(ctx, lastCodes)
	})

	if oneTime {
		if err := p.SetFirstOrderUsed(ctx, true); err != nil {
			return nil, err
		}
		undo.add("first order", func(ctx context.Context) error {
			return p.SetFirstOrderUsed(ctx, false)
		})
	}

	// The order is written last: once it is stored the settlement counts.
	r.Order = profile.Order{
		ID:            uuid.New().String(),
		PaymentMethod: string(st.PaymentMethod),
		OrderAmount:   st.OrderAmount,
		Discount:      st.DiscountAmount,
		FinalAmount:   st.FinalAmount,
		Codes:         st.AppliedCodes,
		RewardPoints:  points,
		CreatedAt:     s.now().UTC(),
	}
	if err := p.AppendOrder(ctx, r.Order); err != nil {
		return nil, errors.Wrap(err, "append order")
	}

	zctx.From(ctx).Info("Order settled",
		zap.String("user", p.UserID()),
		zap.String("order", r.Order.ID),
		zap.String("method", r.Order.PaymentMethod),
		zap.String("final", st.FinalAmount.String()),
		zap.Strings("codes", st.AppliedCodes),
		zap.Int64("points", points),
	)
	return &r, nil
}

// TopUp credits the user's wallet and returns the new balance.
func (s *Service) TopUp(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	p, err := s.profiles.For(userID)
	if err != nil {
		return decimal.Zero, err
	}
	unlock := s.locks.lock(p.UserID())
	defer unlock()

	balance, err := p.WalletBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	balance = balance.Add(amount)
	if err := p.SetWalletBalance(ctx, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *Service) usesOneTimeOffer(codes []string) bool {
	for _, code := range codes {
		if o, ok := s.catalog.Lookup(code); ok && o.OneTime {
			return true
		}
	}
	return false
}

// journal collects compensating writes for a settlement in progress.
type journal struct {
	steps []journalStep
}

type journalStep struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *journal) add(name string, fn func(ctx context.Context) error) {
	j.steps = append(j.steps, journalStep{name: name, fn: fn})
}

// rollback runs the compensating writes in reverse order. It ignores
// cancellation of ctx so a dropped request still restores the ledgers.
func (j *journal) rollback(ctx context.Context, user string) {
	lg := zctx.From(ctx)
	ctx = context.WithoutCancel(ctx)
	for i := len(j.steps) - 1; i >= 0; i-- {
		step := j.steps[i]
		if err := step.fn(ctx); err != nil {
			lg.Error("Settlement rollback failed",
				zap.String("user", user),
				zap.String("step", step.name),
				zap.Error(err),
			)
		}
	}
}
