package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/storage/memory"
)

func TestNewHandler_UsesConfiguredCap(t *testing.T) {
	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	cfg.Offers.StackCapPercent = 30

	h, err := newHandler(cfg, memory.New(), offer.DefaultCatalog(), noop.NewMeterProvider())
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/offers/best", "application/json",
		strings.NewReader(`{"amount":1000,"method":"wallet"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"codes":["FEST300"],"discount":300,"payable":700,"stackCap":300}`, string(body))
}

func TestLoadCatalog_Builtin(t *testing.T) {
	c, err := loadCatalog(t.Context(), CatalogConfig{Source: CatalogBuiltin}, nil)
	require.NoError(t, err)
	assert.Equal(t, len(offer.DefaultOffers()), c.Len())
}
