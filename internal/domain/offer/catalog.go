package offer

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// WalletCashbackCode is the designated wallet-cashback offer of the default
// catalog. It is the only offer that can be stacked with another one.
const WalletCashbackCode = "WALLET100"

// ErrInvalidOffer is returned by NewCatalog for malformed offer definitions.
var ErrInvalidOffer = errors.New("invalid offer definition")

// Catalog is an immutable, code-indexed list of offers.
type Catalog struct {
	offers []Offer
	byCode map[string]int
}

// NewCatalog validates the offers and builds a catalog. Codes are compared
// case-insensitively and must be unique.
func NewCatalog(offers ...Offer) (*Catalog, error) {
	c := &Catalog{
		offers: make([]Offer, 0, len(offers)),
		byCode: make(map[string]int, len(offers)),
	}
	for _, o := range offers {
		o.Code = normalizeCode(o.Code)
		if err := validateOffer(o); err != nil {
			return nil, err
		}
		if _, dup := c.byCode[o.Code]; dup {
			return nil, errors.Wrapf(ErrInvalidOffer, "duplicate code %q", o.Code)
		}
		o.EligibleMethods = append([]PaymentMethod(nil), o.EligibleMethods...)
		c.byCode[o.Code] = len(c.offers)
		c.offers = append(c.offers, o)
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on invalid input. It is meant for
// package-level catalogs built from literals.
func MustCatalog(offers ...Offer) *Catalog {
	c, err := NewCatalog(offers...)
	if err != nil {
		panic(err)
	}
	return c
}

func validateOffer(o Offer) error {
	switch {
	case o.Code == "":
		return errors.Wrap(ErrInvalidOffer, "empty code")
	case o.Kind != KindFlat && o.Kind != KindPercentage:
		return errors.Wrapf(ErrInvalidOffer, "%s: unsupported kind %q", o.Code, o.Kind)
	case o.Value.IsNegative() || o.MinAmount.IsNegative() || o.CapAmount.IsNegative():
		return errors.Wrapf(ErrInvalidOffer, "%s: negative amount", o.Code)
	case o.Kind == KindPercentage && o.Value.GreaterThan(hundred):
		return errors.Wrapf(ErrInvalidOffer, "%s: percentage above 100", o.Code)
	}
	for _, m := range o.EligibleMethods {
		if !m.Valid() {
			return errors.Wrapf(ErrInvalidOffer, "%s: unknown payment method %q", o.Code, m)
		}
	}
	return nil
}

// Lookup finds an offer by code. Surrounding whitespace and case are ignored.
func (c *Catalog) Lookup(code string) (Offer, bool) {
	i, ok := c.byCode[normalizeCode(code)]
	if !ok {
		return Offer{}, false
	}
	return c.offers[i], true
}

// Offers returns the catalog offers in definition order.
func (c *Catalog) Offers() []Offer {
	out := make([]Offer, len(c.offers))
	copy(out, c.offers)
	return out
}

// Len returns the number of offers in the catalog.
func (c *Catalog) Len() int {
	return len(c.offers)
}

// DefaultOffers returns the built-in Gozy offer table.
func DefaultOffers() []Offer {
	return []Offer{
		{
			Code:      "GOZY50",
			Label:     "Flat ₹50 off on any order",
			Kind:      KindFlat,
			Value:     decimal.NewFromInt(50),
			Stackable: true,
		},
		{
			Code:    "FIRST100",
			Label:   "₹100 off your first Gozy order",
			Kind:    KindFlat,
			Value:   decimal.NewFromInt(100),
			OneTime: true,
		},
		{
			Code:            WalletCashbackCode,
			Label:           "₹100 cashback with Gozy Wallet on orders above ₹499",
			Kind:            KindFlat,
			Value:           decimal.NewFromInt(100),
			EligibleMethods: []PaymentMethod{MethodWallet},
			MinAmount:       decimal.NewFromInt(499),
			Stackable:       true,
		},
		{
			Code:      "SAVE20",
			Label:     "20% off up to ₹150",
			Kind:      KindPercentage,
			Value:     decimal.NewFromInt(20),
			CapAmount: decimal.NewFromInt(150),
			Stackable: true,
		},
		{
			Code:            "CARD10",
			Label:           "10% off up to ₹500 with cards on orders above ₹2999",
			Kind:            KindPercentage,
			Value:           decimal.NewFromInt(10),
			EligibleMethods: []PaymentMethod{MethodCard},
			MinAmount:       decimal.NewFromInt(2999),
			CapAmount:       decimal.NewFromInt(500),
		},
		{
			Code:            "UPI75",
			Label:           "Flat ₹75 off with UPI on orders above ₹299",
			Kind:            KindFlat,
			Value:           decimal.NewFromInt(75),
			EligibleMethods: []PaymentMethod{MethodUPI},
			MinAmount:       decimal.NewFromInt(299),
		},
		{
			Code:      "FEST300",
			Label:     "Festive ₹300 off on orders above ₹799",
			Kind:      KindFlat,
			Value:     decimal.NewFromInt(300),
			MinAmount: decimal.NewFromInt(799),
			Stackable: true,
		},
		{
			Code:            "LATER60",
			Label:           "₹60 off with Pay Later on orders above ₹599",
			Kind:            KindFlat,
			Value:           decimal.NewFromInt(60),
			EligibleMethods: []PaymentMethod{MethodPayLater},
			MinAmount:       decimal.NewFromInt(599),
		},
	}
}

// DefaultCatalog returns a catalog built from DefaultOffers.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultOffers()...)
}
