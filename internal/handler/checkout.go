package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/settlement"
)

// OpenSession starts a checkout session for {userId, amount, method}.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var (
		in     orderInput
		userID string
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := in.field(d, key); ok {
			return err
		}
		if key == "userId" {
			var err error
			userID, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err == nil {
		err = in.validate()
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	s, err := h.checkout.Open(r.Context(), userID, in.amount, in.method)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := h.sessions.add(userID, s)
	e.mu.Lock()
	defer e.mu.Unlock()

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("gozy.session.id", e.id))
	writeSession(w, http.StatusCreated, e)
}

// withSession runs fn on the locked session named by the {id} path value.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(e *entry) error) {
	id := r.PathValue("id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("gozy.session.id", id))

	e, ok := h.sessions.acquire(id)
	if !ok {
		fail(w, r, errors.Wrap(errSessionNotFound, id))
		return
	}
	defer e.mu.Unlock()

	if err := fn(e); err != nil {
		fail(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, e)
}

// GetSession returns the current session view.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(*entry) error { return nil })
}

// ApplyCode applies a customer-entered code. A rejected code is not an API
// error: the unchanged session is returned with the rejection as notice.
func (h *Handler) ApplyCode(w http.ResponseWriter, r *http.Request) {
	var code string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err == nil && code == "" {
		err = badRequest("code is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	h.withSession(w, r, func(e *entry) error {
		outcome := "valid"
		if err := e.session.ApplyManual(code); err != nil {
			outcome = reasonCode(err)
		}
		h.evaluations.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("endpoint", "apply"),
			attribute.String("outcome", outcome),
		))
		return nil
	})
}

// ChangeOrder re-validates the session against a new amount or method.
func (h *Handler) ChangeOrder(w http.ResponseWriter, r *http.Request) {
	var in orderInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := in.field(d, key); ok {
			return err
		}
		return d.Skip()
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	h.withSession(w, r, func(e *entry) error {
		st := e.session.Snapshot()
		if !in.hasAmount {
			in.amount = st.Amount
		}
		if !in.hasMethod {
			in.method = st.Method
		}
		return e.session.ReevaluateOnChange(in.amount, in.method)
	})
}

// AutoSelect applies the best offers unless a code was entered manually.
func (h *Handler) AutoSelect(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(e *entry) error {
		if e.session.AutoSelectIfIdle() {
			h.evaluations.Add(r.Context(), 1, metric.WithAttributes(
				attribute.String("endpoint", "auto"),
				attribute.String("outcome", "selected"),
			))
		}
		return nil
	})
}

// ClearSession removes every applied code.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(e *entry) error {
		e.session.Clear()
		return nil
	})
}

// Pay settles the session and discards it.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("gozy.session.id", id))

	e, ok := h.sessions.acquire(id)
	if !ok {
		fail(w, r, errors.Wrap(errSessionNotFound, id))
		return
	}
	defer e.mu.Unlock()

	st := e.session.Checkout()
	receipt, err := h.settlement.Settle(r.Context(), e.userID, st)
	outcome := "settled"
	if err != nil {
		outcome = "failed"
	}
	h.settlements.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("method", string(st.PaymentMethod)),
		attribute.String("outcome", outcome),
	))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.sessions.close(e)

	zctx.From(r.Context()).Debug("Session paid",
		zap.String("session", id),
		zap.String("order", receipt.Order.ID),
	)
	writeReceipt(w, receipt)
}

func writeSession(w http.ResponseWriter, status int, e *entry) {
	st := e.session.Snapshot()

	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(e.id)
	enc.FieldStart("userId")
	enc.Str(e.userID)
	enc.FieldStart("amount")
	encodeAmount(&enc, st.Amount)
	enc.FieldStart("method")
	enc.Str(string(st.Method))
	enc.FieldStart("mode")
	enc.Str(st.Mode.String())
	enc.FieldStart("personalization")
	enc.Bool(e.session.Personalization())
	enc.FieldStart("appliedCodes")
	enc.ArrStart()
	for _, a := range st.Applied {
		enc.ObjStart()
		enc.FieldStart("code")
		enc.Str(a.Code)
		enc.FieldStart("amount")
		encodeAmount(&enc, a.Amount)
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("discount")
	encodeAmount(&enc, st.Total)
	enc.FieldStart("payable")
	encodeAmount(&enc, st.Payable())
	if n, ok := e.session.Notice(); ok {
		enc.FieldStart("notice")
		encodeNotice(&enc, n)
	}
	enc.ObjEnd()
	writeJSON(w, status, &enc)
}

func encodeNotice(e *jx.Encoder, n checkout.Notice) {
	e.ObjStart()
	e.FieldStart("message")
	e.Str(n.Message)
	if n.Reason != nil {
		e.FieldStart("reason")
		e.Str(reasonCode(n.Reason))
	}
	e.FieldStart("expiresAt")
	e.Str(n.ExpiresAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func writeReceipt(w http.ResponseWriter, r *settlement.Receipt) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(r.Order.ID)
	e.FieldStart("paymentMethod")
	e.Str(r.Order.PaymentMethod)
	e.FieldStart("orderAmount")
	encodeAmount(&e, r.Order.OrderAmount)
	e.FieldStart("discount")
	encodeAmount(&e, r.Order.Discount)
	e.FieldStart("finalAmount")
	encodeAmount(&e, r.Order.FinalAmount)
	e.FieldStart("appliedCodes")
	encodeStrings(&e, r.Order.Codes)
	e.FieldStart("rewardPoints")
	e.Int64(r.Order.RewardPoints)
	e.FieldStart("loyaltyPoints")
	e.Int64(r.LoyaltyPoints)
	e.FieldStart("walletBalance")
	encodeAmount(&e, r.WalletBalance)
	e.FieldStart("payLaterUsed")
	encodeAmount(&e, r.PayLaterUsed)
	e.FieldStart("createdAt")
	e.Str(r.Order.CreatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
