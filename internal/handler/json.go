package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
	"github.com/gozy-app/gozy/internal/domain/settlement"
)

const maxBodySize = 64 << 10

var errSessionNotFound = errors.New("checkout session not found")

// requestError is a malformed request reported as 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func badRequest(format string, args ...any) error {
	return &requestError{msg: errors.Errorf(format, args...).Error()}
}

// decodeBody decodes a JSON object body field by field.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodySize), 1024)
	if err := d.Obj(field); err != nil {
		var re *requestError
		if errors.As(err, &re) {
			return re
		}
		if errors.Is(err, offer.ErrUnknownPaymentMethod) {
			return err
		}
		return badRequest("invalid JSON body: %s", err)
	}
	return nil
}

// decodeAmount accepts a JSON number or a numeric string.
func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, badRequest("invalid amount %q", s)
		}
		return v, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, badRequest("invalid amount %s", n)
		}
		return v, nil
	default:
		return decimal.Zero, badRequest("amount must be a number")
	}
}

func decodeMethod(d *jx.Decoder) (offer.PaymentMethod, error) {
	s, err := d.Str()
	if err != nil {
		return "", err
	}
	m, err := offer.ParsePaymentMethod(s)
	if err != nil {
		return "", errors.Wrap(err, "method")
	}
	return m, nil
}

// orderInput is the {amount, method} part shared by several requests.
type orderInput struct {
	amount    decimal.Decimal
	method    offer.PaymentMethod
	hasAmount bool
	hasMethod bool
}

func (in *orderInput) field(d *jx.Decoder, key string) (bool, error) {
	var err error
	switch key {
	case "amount":
		in.amount, err = decodeAmount(d)
		in.hasAmount = true
	case "method", "paymentMethod":
		in.method, err = decodeMethod(d)
		in.hasMethod = true
	default:
		return false, nil
	}
	return true, err
}

func (in *orderInput) validate() error {
	if !in.hasAmount {
		return badRequest("amount is required")
	}
	if !in.hasMethod {
		return badRequest("method is required")
	}
	return nil
}

func encodeAmount(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// fail maps domain errors to API errors. Unknown errors are logged and
// reported as 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		writeError(w, http.StatusBadRequest, re.Error())
	case errors.Is(err, errSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, settlement.ErrInsufficientBalance),
		errors.Is(err, settlement.ErrPayLaterLimitExceeded),
		errors.Is(err, offer.ErrAlreadyUsed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrNegativeAmount),
		errors.Is(err, offer.ErrUnknownPaymentMethod),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, profile.ErrEmptyUser):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// reasonCode names the rejection sentinel wrapped by err.
func reasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, offer.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, offer.ErrMethodNotEligible):
		return "method_not_eligible"
	case errors.Is(err, offer.ErrBelowMinimumAmount):
		return "below_minimum_amount"
	case errors.Is(err, offer.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, offer.ErrNoApplicableOffer):
		return "no_applicable_offer"
	default:
		return "rejected"
	}
}
