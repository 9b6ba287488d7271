package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	require.Equal(t, "10.0.0.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, BearerToken(req))
	req.Header.Set("Authorization", "bearer abc.def")
	require.Equal(t, "abc.def", BearerToken(req))
	req.Header.Set("Authorization", "Basic xyz")
	require.Empty(t, BearerToken(req))
}

func TestWindow(t *testing.T) {
	start, end := Window(25, 2, 10)
	require.Equal(t, 10, start)
	require.Equal(t, 20, end)

	start, end = Window(25, 3, 10)
	require.Equal(t, 20, start)
	require.Equal(t, 25, end)

	start, end = Window(5, 4, 10)
	require.Equal(t, 5, start)
	require.Equal(t, 5, end)
}

func TestParsePaginationCapsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=2&limit=500", nil)
	page, perPage := ParsePagination(req, 20, 100)
	require.Equal(t, 2, page)
	require.Equal(t, 100, perPage)
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	_, err = ParseID("0")
	require.Error(t, err)
	_, err = ParseID("x")
	require.Error(t, err)
}

type payload struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","quantity":1,"extra":true}`))
	var dest payload
	err := DecodeJSON(req, &dest)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestDecodeJSONValidationDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","quantity":0}`))
	var dest payload
	err := DecodeJSON(req, &dest)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["name"])
	require.Equal(t, "must be at least 1", details["quantity"])

	rec := httptest.NewRecorder()
	require.True(t, WriteAppError(rec, err))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
}

func TestSessionContext(t *testing.T) {
	ctx := WithSession(context.Background(), Session{UserID: "7", ShopID: 3})
	s, ok := SessionFrom(ctx)
	require.True(t, ok)
	require.True(t, s.HasShop())
	uid, ok := UserID(ctx)
	require.True(t, ok)
	require.Equal(t, "7", uid)

	_, ok = UserID(context.Background())
	require.False(t, ok)
}

func TestIdemReplayAndRelease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusCreated
	handler := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/abc/checkout", nil)
		req.Header.Set("Idempotency-Key", "k-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, send().Code)
	replay := send()
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Contains(t, replay.Body.String(), "IDEMPOTENT_REPLAY")

	mr.FlushAll()
	status = http.StatusBadGateway
	require.Equal(t, http.StatusBadGateway, send().Code)
	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send().Code)
}

func TestIdemReleasesKeyOnRejection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var status int
	handler := Idem{R: client, TTL: 24 * time.Hour}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/abc/checkout", nil)
		req.Header.Set("Idempotency-Key", "k-2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for _, rejected := range []int{http.StatusConflict, http.StatusUnprocessableEntity} {
		status = rejected
		require.Equal(t, rejected, send())
		require.Empty(t, mr.Keys(), "status %d", rejected)
	}

	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send())
	require.Len(t, mr.Keys(), 1)
	require.Equal(t, http.StatusConflict, send())
}
