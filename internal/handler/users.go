package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/gozy-app/gozy/internal/domain/profile"
)

// GetProfile returns the stored values of a user.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.profiles.For(r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}

	snap, err := p.Snapshot(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	balance, err := p.WalletBalance(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	payLater, err := p.PayLaterUsed(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	points, err := p.LoyaltyPoints(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	orders, err := p.Orders(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("userId")
	e.Str(p.UserID())
	e.FieldStart("personalization")
	e.Bool(snap.Personalization)
	e.FieldStart("firstOrderUsed")
	e.Bool(snap.FirstOrderUsed)
	e.FieldStart("lastAppliedCodes")
	encodeStrings(&e, snap.LastAppliedCodes)
	e.FieldStart("walletBalance")
	encodeAmount(&e, balance)
	e.FieldStart("payLaterUsed")
	encodeAmount(&e, payLater)
	e.FieldStart("loyaltyPoints")
	e.Int64(points)
	e.FieldStart("orders")
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func encodeOrder(e *jx.Encoder, o profile.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("orderAmount")
	encodeAmount(e, o.OrderAmount)
	e.FieldStart("discount")
	encodeAmount(e, o.Discount)
	e.FieldStart("finalAmount")
	encodeAmount(e, o.FinalAmount)
	e.FieldStart("codes")
	encodeStrings(e, o.Codes)
	e.FieldStart("rewardPoints")
	e.Int64(o.RewardPoints)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

// SetPersonalization stores {enabled}. Sessions opened afterwards use it.
func (h *Handler) SetPersonalization(w http.ResponseWriter, r *http.Request) {
	var (
		enabled bool
		set     bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "enabled" {
			return d.Skip()
		}
		set = true
		var err error
		enabled, err = d.Bool()
		return err
	})
	if err == nil && !set {
		err = badRequest("enabled is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	p, err := h.profiles.For(r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := p.SetPersonalizationEnabled(r.Context(), enabled); err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("personalization")
	e.Bool(enabled)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// TopUpWallet credits {amount} to the user's wallet.
func (h *Handler) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	var in orderInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key == "amount" {
			_, err := in.field(d, key)
			return err
		}
		return d.Skip()
	})
	if err == nil && !in.hasAmount {
		err = badRequest("amount is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	balance, err := h.settlement.TopUp(r.Context(), r.PathValue("id"), in.amount)
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("walletBalance")
	encodeAmount(&e, balance)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
