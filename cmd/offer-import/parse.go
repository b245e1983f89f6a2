package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/gozy-app/gozy/internal/domain/offer"
)

// readOfferFile reads one JSON object per line. Files ending in .gz are
// decompressed. Blank lines and lines starting with '#' are ignored.
func readOfferFile(ctx context.Context, path string) ([]offer.Offer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	offers, err := readOffers(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return offers, nil
}

func readOffers(ctx context.Context, r io.Reader) ([]offer.Offer, error) {
	var (
		offers  []offer.Offer
		scanner = bufio.NewScanner(r)
		line    int
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		o, err := parseOffer(b)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		offers = append(offers, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	return offers, nil
}

// parseOffer decodes a single offer object:
//
//	{"code":"SAVE20","kind":"percentage","value":20,"capAmount":150,"stackable":true}
func parseOffer(b []byte) (offer.Offer, error) {
	var o offer.Offer
	d := jx.DecodeBytes(b)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			o.Code, err = d.Str()
			o.Code = strings.ToUpper(strings.TrimSpace(o.Code))
		case "label":
			o.Label, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			o.Kind = offer.Kind(strings.ToLower(s))
		case "value":
			o.Value, err = decodeDecimal(d)
		case "minAmount":
			o.MinAmount, err = decodeDecimal(d)
		case "capAmount":
			o.CapAmount, err = decodeDecimal(d)
		case "methods", "eligibleMethods":
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				if err != nil {
					return err
				}
				m, err := offer.ParsePaymentMethod(s)
				if err != nil {
					return err
				}
				o.EligibleMethods = append(o.EligibleMethods, m)
				return nil
			})
		case "stackable":
			o.Stackable, err = d.Bool()
		case "oneTime":
			o.OneTime, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return offer.Offer{}, err
	}
	if o.Code == "" {
		return offer.Offer{}, errors.New("code is required")
	}
	return o, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.New("expected number")
	}
}
