// Package profile gives typed access to the per-user values kept in the
// key-value store: preferences, one-time offer flags, wallet and pay-later
// ledgers, loyalty points and order history.
package profile

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/storage"
)

// ErrEmptyUser is returned when a profile is requested without a user ID.
var ErrEmptyUser = errors.New("user id required")

const (
	keyPersonalization  = "personalization"
	keyFirstOrderUsed   = "first_order_used"
	keyLastAppliedCodes = "last_applied_codes"
	keyWalletBalance    = "wallet_balance"
	keyPayLaterUsed     = "paylater_used"
	keyLoyaltyPoints    = "loyalty_points"
	keyOrders           = "orders"
)

// Snapshot holds the values a checkout session reads once when it opens.
type Snapshot struct {
	Personalization  bool
	FirstOrderUsed   bool
	LastAppliedCodes []string
}

// Usage adapts the snapshot to offer.UsageReader.
func (s Snapshot) Usage() offer.Usage {
	return offer.Usage{FirstOrder: s.FirstOrderUsed}
}

// Repository hands out per-user profiles backed by a store.
type Repository struct {
	store storage.Store
}

// NewRepository returns a Repository over the store.
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// For returns the profile of userID.
func (r *Repository) For(userID string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUser
	}
	return &Profile{store: r.store, user: userID}, nil
}

// Load reads the checkout snapshot of userID.
func (r *Repository) Load(ctx context.Context, userID string) (Snapshot, error) {
	p, err := r.For(userID)
	if err != nil {
		return Snapshot{}, err
	}
	return p.Snapshot(ctx)
}

// Profile reads and writes the values of a single user.
type Profile struct {
	store storage.Store
	user  string
}

// UserID returns the owner of the profile.
func (p *Profile) UserID() string {
	return p.user
}

func (p *Profile) key(name string) string {
	return "gozy:" + p.user + ":" + name
}

// Snapshot reads personalization, the first-order flag and the last applied
// codes.
func (p *Profile) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Personalization, err = p.PersonalizationEnabled(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.FirstOrderUsed, err = p.FirstOrderUsed(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.LastAppliedCodes, err = p.LastAppliedCodes(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// PersonalizationEnabled reports whether offers may be applied automatically.
// It defaults to true.
func (p *Profile) PersonalizationEnabled(ctx context.Context) (bool, error) {
	return p.getBool(ctx, keyPersonalization, true)
}

// SetPersonalizationEnabled toggles automatic offer selection.
func (p *Profile) SetPersonalizationEnabled(ctx context.Context, v bool) error {
	return p.setBool(ctx, keyPersonalization, v)
}

// FirstOrderUsed reports whether the one-time first order offer was redeemed.
func (p *Profile) FirstOrderUsed(ctx context.Context) (bool, error) {
	return p.getBool(ctx, keyFirstOrderUsed, false)
}

// SetFirstOrderUsed records whether the first order offer was redeemed.
func (p *Profile) SetFirstOrderUsed(ctx context.Context, v bool) error {
	return p.setBool(ctx, keyFirstOrderUsed, v)
}

// LastAppliedCodes returns the codes applied at the previous payment, or nil.
func (p *Profile) LastAppliedCodes(ctx context.Context) ([]string, error) {
	raw, ok, err := p.get(ctx, keyLastAppliedCodes)
	if err != nil || !ok {
		return nil, err
	}
	codes, err := decodeStrings(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode last applied codes")
	}
	return codes, nil
}

// SetLastAppliedCodes stores codes for seeding the next session. An empty list
// removes the value.
func (p *Profile) SetLastAppliedCodes(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return p.delete(ctx, keyLastAppliedCodes)
	}
	return p.set(ctx, keyLastAppliedCodes, encodeStrings(codes))
}

// WalletBalance returns the wallet balance, zero when never topped up.
func (p *Profile) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	return p.getDecimal(ctx, keyWalletBalance)
}

// SetWalletBalance overwrites the wallet balance.
func (p *Profile) SetWalletBalance(ctx context.Context, v decimal.Decimal) error {
	return p.setDecimal(ctx, keyWalletBalance, v)
}

// PayLaterUsed returns the outstanding pay-later amount.
func (p *Profile) PayLaterUsed(ctx context.Context) (decimal.Decimal, error) {
	return p.getDecimal(ctx, keyPayLaterUsed)
}

// SetPayLaterUsed overwrites the outstanding pay-later amount.
func (p *Profile) SetPayLaterUsed(ctx context.Context, v decimal.Decimal) error {
	return p.setDecimal(ctx, keyPayLaterUsed, v)
}

// LoyaltyPoints returns the accumulated reward points.
func (p *Profile) LoyaltyPoints(ctx context.Context) (int64, error) {
	raw, ok, err := p.get(ctx, keyLoyaltyPoints)
	if err != nil || !ok {
		return 0, err
	}
	v, err := jx.DecodeStr(raw).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "decode loyalty points")
	}
	return v, nil
}

// SetLoyaltyPoints overwrites the reward points total.
func (p *Profile) SetLoyaltyPoints(ctx context.Context, v int64) error {
	var e jx.Encoder
	e.Int64(v)
	return p.set(ctx, keyLoyaltyPoints, string(e.Bytes()))
}

func (p *Profile) get(ctx context.Context, name string) (string, bool, error) {
	v, ok, err := p.store.Get(ctx, p.key(name))
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", name)
	}
	return v, ok, nil
}

func (p *Profile) set(ctx context.Context, name, value string) error {
	if err := p.store.Set(ctx, p.key(name), value); err != nil {
		return errors.Wrapf(err, "set %s", name)
	}
	return nil
}

func (p *Profile) delete(ctx context.Context, name string) error {
	if err := p.store.Delete(ctx, p.key(name)); err != nil {
		return errors.Wrapf(err, "delete %s", name)
	}
	return nil
}

func (p *Profile) getBool(ctx context.Context, name string, def bool) (bool, error) {
	raw, ok, err := p.get(ctx, name)
	if err != nil || !ok {
		return def, err
	}
	v, err := jx.DecodeStr(raw).Bool()
	if err != nil {
		return def, errors.Wrapf(err, "decode %s", name)
	}
	return v, nil
}

func (p *Profile) setBool(ctx context.Context, name string, v bool) error {
	var e jx.Encoder
	e.Bool(v)
	return p.set(ctx, name, string(e.Bytes()))
}

func (p *Profile) getDecimal(ctx context.Context, name string) (decimal.Decimal, error) {
	raw, ok, err := p.get(ctx, name)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	v, err := decodeDecimal(jx.DecodeStr(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "decode %s", name)
	}
	return v, nil
}

func (p *Profile) setDecimal(ctx context.Context, name string, v decimal.Decimal) error {
	var e jx.Encoder
	e.Str(v.String())
	return p.set(ctx, name, string(e.Bytes()))
}
