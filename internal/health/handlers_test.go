package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/health"
)

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func ready(t *testing.T, h health.Handler) (int, readyBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	health.Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestReadyReportsEveryCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	h := health.Handler{Checks: []health.Check{
		{Name: "redis", Probe: health.Redis(rdb)},
		{Name: "backend", Probe: health.HTTP(upstream.Client(), upstream.URL)},
		{Name: "db", Optional: true, Probe: health.Postgres(nil)},
	}}
	code, body := ready(t, h)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "ok", body.Checks["redis"])
	require.Equal(t, "ok", body.Checks["backend"])
	require.Equal(t, "db not configured", body.Checks["db"])
}

func TestReadyFailsOnRequiredCheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	h := health.Handler{Checks: []health.Check{
		{Name: "backend", Probe: health.HTTP(upstream.Client(), upstream.URL)},
		{Name: "slow", Timeout: 10 * time.Millisecond, Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		{Name: "redis", Probe: func(context.Context) error { return errors.New("redis down") }},
	}}
	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", body.Status)
	require.Equal(t, "status 502", body.Checks["backend"])
	require.Equal(t, context.DeadlineExceeded.Error(), body.Checks["slow"])
	require.Equal(t, "redis down", body.Checks["redis"])
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(true)
	code, _ := ready(t, h)
	require.Equal(t, http.StatusOK, code)

	health.SetReady(false)
	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", body.Status)
}
