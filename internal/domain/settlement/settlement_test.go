package settlement

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
	"github.com/gozy-app/gozy/internal/storage"
	"github.com/gozy-app/gozy/internal/storage/memory"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newService(t *testing.T) (*Service, *profile.Repository) {
	t.Helper()
	return newServiceWith(t, memory.New())
}

func newServiceWith(t *testing.T, store storage.Store) (*Service, *profile.Repository) {
	t.Helper()
	repo := profile.NewRepository(store)
	svc := NewService(repo, offer.DefaultCatalog(), Config{
		PayLaterLimit:      d("1000"),
		RewardPointsPer100: 2,
	})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc, repo
}

func TestService_SettleWallet(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	balance, err := svc.TopUp(ctx, "u1", d("1000"))
	require.NoError(t, err)
	require.True(t, d("1000").Equal(balance))

	r, err := svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod:  offer.MethodWallet,
		OrderAmount:    d("1000"),
		DiscountAmount: d("400"),
		FinalAmount:    d("600"),
		AppliedCodes:   []string{"FEST300", "WALLET100"},
	})
	require.NoError(t, err)

	assert.True(t, d("400").Equal(r.WalletBalance))
	assert.Equal(t, int64(12), r.LoyaltyPoints)
	assert.Equal(t, int64(12), r.Order.RewardPoints)
	assert.NotEmpty(t, r.Order.ID)
	assert.Equal(t, "wallet", r.Order.PaymentMethod)

	p, err := repo.For("u1")
	require.NoError(t, err)

	stored, err := p.WalletBalance(ctx)
	require.NoError(t, err)
	assert.True(t, d("400").Equal(stored))

	codes, err := p.LastAppliedCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FEST300", "WALLET100"}, codes)

	orders, err := p.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, r.Order.ID, orders[0].ID)
	assert.True(t, d("600").Equal(orders[0].FinalAmount))

	used, err := p.FirstOrderUsed(ctx)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestService_SettleInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	_, err := svc.TopUp(ctx, "u1", d("100"))
	require.NoError(t, err)

	_, err = svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod: offer.MethodWallet,
		OrderAmount:   d("500"),
		FinalAmount:   d("500"),
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	p, err := repo.For("u1")
	require.NoError(t, err)
	orders, err := p.Orders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders, "failed settlement records nothing")

	balance, err := p.WalletBalance(ctx)
	require.NoError(t, err)
	assert.True(t, d("100").Equal(balance))
}

func TestService_SettlePayLater(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	r, err := svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod: offer.MethodPayLater,
		OrderAmount:   d("700"),
		FinalAmount:   d("700"),
	})
	require.NoError(t, err)
	assert.True(t, d("700").Equal(r.PayLaterUsed))

	_, err = svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod: offer.MethodPayLater,
		OrderAmount:   d("400"),
		FinalAmount:   d("400"),
	})
	require.ErrorIs(t, err, ErrPayLaterLimitExceeded)

	r, err = svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod: offer.MethodPayLater,
		OrderAmount:   d("300"),
		FinalAmount:   d("300"),
	})
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(r.PayLaterUsed), "limit is inclusive")
}

func TestService_SettleMarksOneTimeOffer(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	r, err := svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod:  offer.MethodUPI,
		OrderAmount:    d("250"),
		DiscountAmount: d("100"),
		FinalAmount:    d("150"),
		AppliedCodes:   []string{"FIRST100"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.LoyaltyPoints)

	snap, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.FirstOrderUsed)
	assert.Equal(t, []string{"FIRST100"}, snap.LastAppliedCodes)
}

func TestService_SettleClearsLastCodes(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	_, err := svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod: offer.MethodCard,
		OrderAmount:   d("99"),
		FinalAmount:   d("49"),
		AppliedCodes:  []string{"GOZY50"},
	})
	require.NoError(t, err)

	r, err := svc.Settle(ctx, "u1", checkout.Settlement{
		PaymentMethod: offer.MethodCard,
		OrderAmount:   d("99"),
		FinalAmount:   d("99"),
	})
	require.NoError(t, err)
	assert.Zero(t, r.LoyaltyPoints)

	snap, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, snap.LastAppliedCodes)
}

func TestService_SettleInvalid(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Settle(ctx, "u1", checkout.Settlement{PaymentMethod: "cash"})
	require.ErrorIs(t, err, offer.ErrUnknownPaymentMethod)

	_, err = svc.Settle(ctx, "u1", checkout.Settlement{PaymentMethod: offer.MethodUPI, FinalAmount: d("-1")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Settle(ctx, " ", checkout.Settlement{PaymentMethod: offer.MethodUPI})
	require.ErrorIs(t, err, profile.ErrEmptyUser)

	_, err = svc.TopUp(ctx, "u1", d("0"))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

// slowStore widens the window between reading and writing a ledger.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowStore) Get(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.Store.Get(ctx, key)
}

var errStoreDown = errors.New("store down")

// failingStore rejects writes to keys ending in :failKey while armed.
type failingStore struct {
	*memory.Store
	failKey string
	armed   bool
}

func (s *failingStore) fails(key string) bool {
	return s.armed && strings.HasSuffix(key, ":"+s.failKey)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.fails(key) {
		return errStoreDown
	}
	return s.Store.Set(ctx, key, value)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.fails(key) {
		return errStoreDown
	}
	return s.Store.Delete(ctx, key)
}

func TestService_SettleConcurrentWallet(t *testing.T) {
	ctx := context.Background()
	svc, repo := newServiceWith(t, &slowStore{Store: memory.New(), delay: 5 * time.Millisecond})

	_, err := svc.TopUp(ctx, "u1", d("600"))
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Settle(ctx, "u1", checkout.Settlement{
				PaymentMethod: offer.MethodWallet,
				OrderAmount:   d("500"),
				FinalAmount:   d("500"),
			})
		}()
	}
	close(start)
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	p, err := repo.For("u1")
	require.NoError(t, err)
	balance, err := p.WalletBalance(ctx)
	require.NoError(t, err)
	assert.True(t, d("100").Equal(balance), "balance %s", balance)

	orders, err := p.Orders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Zero(t, svc.locks.size())
}

func TestService_TopUpConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newServiceWith(t, &slowStore{Store: memory.New(), delay: time.Millisecond})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TopUp(ctx, "u1", d("25"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := repo.For("u1")
	require.NoError(t, err)
	balance, err := p.WalletBalance(ctx)
	require.NoError(t, err)
	assert.True(t, d("250").Equal(balance), "balance %s", balance)
}

func TestService_SettleOneTimeOfferOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	st := checkout.Settlement{
		PaymentMethod:  offer.MethodWallet,
		OrderAmount:    d("250"),
		DiscountAmount: d("100"),
		FinalAmount:    d("150"),
		AppliedCodes:   []string{"FIRST100"},
	}
	_, err := svc.TopUp(ctx, "u1", d("500"))
	require.NoError(t, err)

	_, err = svc.Settle(ctx, "u1", st)
	require.NoError(t, err)

	// A second session opened before the first paid still carries FIRST100.
	_, err = svc.Settle(ctx, "u1", st)
	require.ErrorIs(t, err, offer.ErrAlreadyUsed)

	p, err := repo.For("u1")
	require.NoError(t, err)
	balance, err := p.WalletBalance(ctx)
	require.NoError(t, err)
	assert.True(t, d("350").Equal(balance), "balance %s", balance)

	points, err := p.LoyaltyPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), points)

	orders, err := p.Orders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Other users are unaffected.
	_, err = svc.Settle(ctx, "u2", checkout.Settlement{
		PaymentMethod:  offer.MethodUPI,
		OrderAmount:    d("250"),
		DiscountAmount: d("100"),
		FinalAmount:    d("150"),
		AppliedCodes:   []string{"FIRST100"},
	})
	require.NoError(t, err)
}

func TestService_SettleRollsBackOnStoreError(t *testing.T) {
	for _, failKey := range []string{
		"loyalty_points",
		"last_applied_codes",
		"first_order_used",
		"orders",
	} {
		t.Run(failKey, func(t *testing.T) {
			ctx := context.Background()
			store := &failingStore{Store: memory.New(), failKey: failKey}
			svc, repo := newServiceWith(t, store)

			_, err := svc.TopUp(ctx, "u1", d("1000"))
			require.NoError(t, err)
			_, err = svc.Settle(ctx, "u1", checkout.Settlement{
				PaymentMethod: offer.MethodCard,
				OrderAmount:   d("300"),
				FinalAmount:   d("300"),
				AppliedCodes:  []string{"GOZY50"},
			})
			require.NoError(t, err)

			store.armed = true
			_, err = svc.Settle(ctx, "u1", checkout.Settlement{
				PaymentMethod:  offer.MethodWallet,
				OrderAmount:    d("600"),
				DiscountAmount: d("100"),
				FinalAmount:    d("500"),
				AppliedCodes:   []string{"FIRST100"},
			})
			require.ErrorIs(t, err, errStoreDown)
			store.armed = false

			p, err := repo.For("u1")
			require.NoError(t, err)

			balance, err := p.WalletBalance(ctx)
			require.NoError(t, err)
			assert.True(t, d("1000").Equal(balance), "balance %s", balance)

			points, err := p.LoyaltyPoints(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(6), points)

			codes, err := p.LastAppliedCodes(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"GOZY50"}, codes)

			used, err := p.FirstOrderUsed(ctx)
			require.NoError(t, err)
			assert.False(t, used)

			orders, err := p.Orders(ctx)
			require.NoError(t, err)
			assert.Len(t, orders, 1)
		})
	}
}
