package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
	"github.com/gozy-app/gozy/internal/storage/memory"
)

type brokenProfiles struct{}

func (brokenProfiles) Load(context.Context, string) (profile.Snapshot, error) {
	return profile.Snapshot{}, errors.New("store unavailable")
}

func newService(t *testing.T) (*Service, *profile.Repository) {
	t.Helper()
	repo := profile.NewRepository(memory.New())
	svc := NewService(offer.DefaultCatalog(), repo, Config{
		Selector:  offer.DefaultSelectorConfig(),
		NoticeTTL: time.Second,
	})
	return svc, repo
}

func TestService_OpenAutoSelects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	sess, err := svc.Open(ctx, "u1", d("1000"), offer.MethodWallet)
	require.NoError(t, err)

	st := sess.Snapshot()
	assert.Equal(t, ModeAuto, st.Mode)
	assert.Equal(t, []string{"FEST300", "WALLET100"}, st.Codes())
	assertTotal(t, sess, "400")
}

func TestService_OpenPersonalizationDisabled(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	p, err := repo.For("u1")
	require.NoError(t, err)
	require.NoError(t, p.SetPersonalizationEnabled(ctx, false))

	sess, err := svc.Open(ctx, "u1", d("1000"), offer.MethodWallet)
	require.NoError(t, err)

	assert.Equal(t, ModeEmpty, sess.Mode())
	assert.False(t, sess.Personalization())
	assert.Empty(t, sess.Snapshot().Applied)
}

func TestService_OpenFirstOrderUsed(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	p, err := repo.For("u1")
	require.NoError(t, err)
	require.NoError(t, p.SetFirstOrderUsed(ctx, true))
	require.NoError(t, p.SetPersonalizationEnabled(ctx, false))

	sess, err := svc.Open(ctx, "u1", d("200"), offer.MethodCard)
	require.NoError(t, err)

	err = sess.ApplyManual("FIRST100")
	require.ErrorIs(t, err, offer.ErrAlreadyUsed)

	// Other users still see the one-time offer.
	other, err := svc.Open(ctx, "u2", d("200"), offer.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIRST100"}, other.Snapshot().Codes())
	assertTotal(t, other, "80")
}

func TestService_OpenSeedsLastAppliedCodes(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	p, err := repo.For("u1")
	require.NoError(t, err)
	require.NoError(t, p.SetPersonalizationEnabled(ctx, false))
	require.NoError(t, p.SetLastAppliedCodes(ctx, []string{"GOZY50", "WALLET100"}))

	sess, err := svc.Open(ctx, "u1", d("1000"), offer.MethodWallet)
	require.NoError(t, err)

	assert.Equal(t, ModeAuto, sess.Mode())
	assert.Equal(t, []string{"GOZY50", "WALLET100"}, sess.Snapshot().Codes())
	assertTotal(t, sess, "150")
}

func TestService_OpenErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Open(ctx, "", d("100"), offer.MethodUPI)
	require.ErrorIs(t, err, profile.ErrEmptyUser)

	_, err = svc.Open(ctx, "u1", d("-1"), offer.MethodUPI)
	require.ErrorIs(t, err, ErrNegativeAmount)

	broken := NewService(offer.DefaultCatalog(), brokenProfiles{}, Config{Selector: offer.DefaultSelectorConfig()})
	_, err = broken.Open(ctx, "u1", d("100"), offer.MethodUPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load profile")
}
