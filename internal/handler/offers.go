package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gozy-app/gozy/internal/domain/offer"
)

// ListOffers returns the catalog in display order.
func (h *Handler) ListOffers(w http.ResponseWriter, _ *http.Request) {
	var e jx.Encoder
	e.ArrStart()
	for _, o := range h.catalog.Offers() {
		encodeOffer(&e, o)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func encodeOffer(e *jx.Encoder, o offer.Offer) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(o.Code)
	e.FieldStart("label")
	e.Str(o.Label)
	e.FieldStart("kind")
	e.Str(string(o.Kind))
	e.FieldStart("value")
	encodeAmount(e, o.Value)
	e.FieldStart("eligibleMethods")
	e.ArrStart()
	for _, m := range o.EligibleMethods {
		e.Str(string(m))
	}
	e.ArrEnd()
	e.FieldStart("minAmount")
	encodeAmount(e, o.MinAmount)
	e.FieldStart("capAmount")
	encodeAmount(e, o.CapAmount)
	e.FieldStart("stackable")
	e.Bool(o.Stackable)
	e.FieldStart("oneTime")
	e.Bool(o.OneTime)
	e.ObjEnd()
}

// EvaluateOffer evaluates a single code against an order. A code that does
// not apply is still a 200 response with valid=false.
func (h *Handler) EvaluateOffer(w http.ResponseWriter, r *http.Request) {
	var (
		in        orderInput
		code      string
		firstUsed bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := in.field(d, key); ok {
			return err
		}
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "firstOrderUsed":
			firstUsed, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = in.validate()
	}
	if err == nil && code == "" {
		err = badRequest("code is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	res := offer.NewEvaluator(h.catalog, offer.Usage{FirstOrder: firstUsed}).Evaluate(code, in.amount, in.method)
	outcome := "valid"
	if !res.Valid() {
		outcome = reasonCode(res.Rejection)
	}
	h.evaluations.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("endpoint", "evaluate"),
		attribute.String("outcome", outcome),
	))
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("gozy.offer.code", res.Code),
		attribute.String("gozy.offer.outcome", outcome),
	)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(res.Code)
	e.FieldStart("valid")
	e.Bool(res.Valid())
	e.FieldStart("amount")
	encodeAmount(&e, res.Amount)
	if res.Rejection != nil {
		e.FieldStart("reason")
		e.Str(reasonCode(res.Rejection))
		e.FieldStart("message")
		e.Str(res.Rejection.Message)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// BestOffer returns the best single code or wallet stack for an order.
func (h *Handler) BestOffer(w http.ResponseWriter, r *http.Request) {
	var (
		in        orderInput
		firstUsed bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := in.field(d, key); ok {
			return err
		}
		if key == "firstOrderUsed" {
			var err error
			firstUsed, err = d.Bool()
			return err
		}
		return d.Skip()
	})
	if err == nil {
		err = in.validate()
	}
	if err == nil && in.amount.IsNegative() {
		err = badRequest("amount must not be negative")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	sel := offer.NewSelector(offer.NewEvaluator(h.catalog, offer.Usage{FirstOrder: firstUsed}), h.selector)
	best := sel.SelectBest(in.amount, in.method)
	outcome := "selected"
	if best.Empty() {
		outcome = "none"
	}
	h.evaluations.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("endpoint", "best"),
		attribute.String("outcome", outcome),
	))

	payable := in.amount.Sub(best.Discount)
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("codes")
	encodeStrings(&e, best.Codes)
	e.FieldStart("discount")
	encodeAmount(&e, best.Discount)
	e.FieldStart("payable")
	encodeAmount(&e, payable)
	e.FieldStart("stackCap")
	encodeAmount(&e, sel.StackCap(in.amount))
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
