package profile

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

func encodeStrings(values []string) string {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
	return string(e.Bytes())
}

func decodeStrings(raw string) ([]string, error) {
	var out []string
	if err := jx.DecodeStr(raw).Arr(func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeDecimal accepts both JSON strings and numbers.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

func encodeOrder(e *jx.Encoder, o Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("orderAmount")
	e.Str(o.OrderAmount.String())
	e.FieldStart("discount")
	e.Str(o.Discount.String())
	e.FieldStart("finalAmount")
	e.Str(o.FinalAmount.String())
	e.FieldStart("codes")
	e.ArrStart()
	for _, c := range o.Codes {
		e.Str(c)
	}
	e.ArrEnd()
	e.FieldStart("rewardPoints")
	e.Int64(o.RewardPoints)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func decodeOrder(d *jx.Decoder) (Order, error) {
	var o Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "paymentMethod":
			o.PaymentMethod, err = d.Str()
		case "orderAmount":
			o.OrderAmount, err = decodeDecimal(d)
		case "discount":
			o.Discount, err = decodeDecimal(d)
		case "finalAmount":
			o.FinalAmount, err = decodeDecimal(d)
		case "codes":
			err = d.Arr(func(d *jx.Decoder) error {
				c, err := d.Str()
				if err != nil {
					return err
				}
				o.Codes = append(o.Codes, c)
				return nil
			})
		case "rewardPoints":
			o.RewardPoints, err = d.Int64()
		case "createdAt":
			var s string
			if s, err = d.Str(); err == nil {
				o.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return o, err
}
