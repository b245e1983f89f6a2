package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
)

// Profiles loads the persisted values a session is seeded from.
type Profiles interface {
	Load(ctx context.Context, userID string) (profile.Snapshot, error)
}

// Config holds the session rules shared by every checkout.
type Config struct {
	Selector  offer.SelectorConfig
	NoticeTTL time.Duration
}

// Service opens checkout sessions.
type Service struct {
	catalog  *offer.Catalog
	profiles Profiles
	cfg      Config
	now      func() time.Time
}

// NewService creates a checkout Service over the catalog.
func NewService(catalog *offer.Catalog, profiles Profiles, cfg Config) *Service {
	return &Service{
		catalog:  catalog,
		profiles: profiles,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Catalog returns the offer catalog sessions evaluate against.
func (s *Service) Catalog() *offer.Catalog {
	return s.catalog
}

// Selector returns a selector bound to the given one-time offer usage.
func (s *Service) Selector(usage offer.UsageReader) *offer.Selector {
	return offer.NewSelector(offer.NewEvaluator(s.catalog, usage), s.cfg.Selector)
}

// Open reads the user's profile once and starts a session for the order. The
// best offers are applied immediately when personalization allows it.
func (s *Service) Open(ctx context.Context, userID string, amount decimal.Decimal, method offer.PaymentMethod) (*Session, error) {
	snap, err := s.profiles.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}

	sess, err := NewSession(s.Selector(snap.Usage()), Options{
		Amount:           amount,
		Method:           method,
		Personalization:  snap.Personalization,
		LastAppliedCodes: snap.LastAppliedCodes,
		NoticeTTL:        s.cfg.NoticeTTL,
		Now:              s.now,
	})
	if err != nil {
		return nil, err
	}
	sess.AutoSelectIfIdle()

	st := sess.Snapshot()
	zctx.From(ctx).Debug("Checkout session opened",
		zap.String("user", userID),
		zap.String("amount", amount.String()),
		zap.String("method", string(method)),
		zap.Strings("codes", st.Codes()),
		zap.Stringer("mode", st.Mode),
	)
	return sess, nil
}
