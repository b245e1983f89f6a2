// Package handler exposes offers, checkout sessions and settlement over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
	"github.com/gozy-app/gozy/internal/domain/settlement"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Selector is used by the stateless offer endpoints.
	Selector offer.SelectorConfig
	// SessionTTL evicts checkout sessions idle for longer.
	SessionTTL time.Duration
}

// Handler serves the JSON API.
type Handler struct {
	catalog    *offer.Catalog
	selector   offer.SelectorConfig
	checkout   *checkout.Service
	settlement *settlement.Service
	profiles   *profile.Repository
	sessions   *registry

	evaluations metric.Int64Counter
	settlements metric.Int64Counter
}

// NewHandler constructs a Handler. Counters are registered on mp.
func NewHandler(
	cfg Config,
	catalog *offer.Catalog,
	checkoutSvc *checkout.Service,
	settlementSvc *settlement.Service,
	profiles *profile.Repository,
	mp metric.MeterProvider,
) (*Handler, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	meter := mp.Meter("github.com/gozy-app/gozy/internal/handler")

	evaluations, err := meter.Int64Counter("gozy.offers.evaluations",
		metric.WithDescription("Offer evaluations by endpoint and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "evaluations counter")
	}
	settlements, err := meter.Int64Counter("gozy.checkout.settlements",
		metric.WithDescription("Checkout settlements by payment method and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "settlements counter")
	}

	return &Handler{
		catalog:     catalog,
		selector:    cfg.Selector,
		checkout:    checkoutSvc,
		settlement:  settlementSvc,
		profiles:    profiles,
		sessions:    newRegistry(cfg.SessionTTL),
		evaluations: evaluations,
		settlements: settlements,
	}, nil
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/offers", h.ListOffers)
	mux.HandleFunc("POST /api/offers/evaluate", h.EvaluateOffer)
	mux.HandleFunc("POST /api/offers/best", h.BestOffer)

	mux.HandleFunc("POST /api/checkout/sessions", h.OpenSession)
	mux.HandleFunc("GET /api/checkout/sessions/{id}", h.GetSession)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/apply", h.ApplyCode)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/change", h.ChangeOrder)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/auto", h.AutoSelect)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/clear", h.ClearSession)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/pay", h.Pay)

	mux.HandleFunc("GET /api/users/{id}/profile", h.GetProfile)
	mux.HandleFunc("PUT /api/users/{id}/personalization", h.SetPersonalization)
	mux.HandleFunc("POST /api/users/{id}/wallet/topup", h.TopUpWallet)
}

// Sessions returns the number of open checkout sessions.
func (h *Handler) Sessions() int {
	return h.sessions.len()
}
