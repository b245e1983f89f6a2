package profile

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Order is an entry of the user's order history.
type Order struct {
	ID            string
	PaymentMethod string
	OrderAmount   decimal.Decimal
	Discount      decimal.Decimal
	FinalAmount   decimal.Decimal
	Codes         []string
	RewardPoints  int64
	CreatedAt     time.Time
}

// Orders returns the order history, oldest first.
func (p *Profile) Orders(ctx context.Context) ([]Order, error) {
	raw, ok, err := p.get(ctx, keyOrders)
	if err != nil || !ok {
		return nil, err
	}

	var orders []Order
	if err := jx.DecodeStr(raw).Arr(func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		if err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

// AppendOrder adds o to the end of the order history.
func (p *Profile) AppendOrder(ctx context.Context, o Order) error {
	orders, err := p.Orders(ctx)
	if err != nil {
		return err
	}
	orders = append(orders, o)

	var e jx.Encoder
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	return p.set(ctx, keyOrders, string(e.Bytes()))
}
