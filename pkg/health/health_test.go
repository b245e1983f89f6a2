package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type status struct {
	Code   int
	Status string
	Checks map[string]string
}

func call(t *testing.T, handler http.HandlerFunc) status {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	s := status{Code: w.Code, Checks: map[string]string{}}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			s.Status = v
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				s.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return s
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("fine", time.Second, ok)
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))

	// Checks start healthy.
	got := call(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "ok", got.Status)

	runN(h.liveness[1], failureThreshold-1)
	assert.Equal(t, http.StatusOK, call(t, h.LiveEndpoint).Code, "below threshold")

	runN(h.liveness[1], 1)
	got = call(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, got.Code)
	assert.Equal(t, "unhealthy", got.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, got.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, ok)

	got := call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, got.Code)
	assert.Contains(t, got.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	got = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, got.Code)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, call(t, h.ReadyEndpoint).Code)
}

func TestReadyEndpoint_FailingStore(t *testing.T) {
	down := true
	h := New()
	h.AddReadinessCheck("store", time.Second, PingCheck(pingerFunc(func(context.Context) error {
		if down {
			return errors.New("store down")
		}
		return nil
	})))
	h.SetReady(true)

	runN(h.readiness[0], failureThreshold)
	got := call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, got.Code)
	assert.Equal(t, "store down", got.Checks["store"])
	assert.False(t, h.IsReady())

	down = false
	runN(h.readiness[0], 1)
	assert.True(t, h.IsReady(), "one success recovers")
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("fail", time.Second, failing("err"))
	h.AddReadinessCheck("ok", time.Second, ok)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				call(t, h.LiveEndpoint)
				call(t, h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return call(t, h.LiveEndpoint).Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}
