package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		BaseURL: srv.URL + "/api/",
		HTTP: resilience.HTTPClient{
			Client:      srv.Client(),
			Breaker:     resilience.NewBreaker(100, 1, time.Second),
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
			Target:      "inventory-test",
		},
	}
}

func TestListStockBatchesFollowsPagination(t *testing.T) {
	var calls int32
	var serverURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/stock-batches/", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "7", r.URL.Query().Get("product"))
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = io.WriteString(w, `{"results":[{"id":2,"product":7,"condition":"fresh","selling_price":"999.50","gst_rate":"18","available_quantity":1}],"next":null}`)
			return
		}
		next := serverURL + "/api/stock-batches/?page=2&product=7"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": 1, "product": 7, "condition": "fresh", "selling_price": "1180.00", "gst_rate": "18.00", "available_quantity": 4, "product_is_imei_tracked": true}},
			"next":    next,
		})
	})
	serverURL = client.BaseURL[:len(client.BaseURL)-len("/api/")]

	batches, err := client.ListStockBatches(context.Background(), "tok", BatchFilter{Product: 7})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.True(t, batches[0].SellingPrice.Equal(decimal.RequireFromString("1180")))
	require.True(t, batches[0].ProductIsIMEITracked)
	require.Equal(t, 1, batches[1].AvailableQuantity)
}

func TestListSubStocksAcceptsBareArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "3", r.URL.Query().Get("shop"))
		_, _ = io.WriteString(w, `[{"id":1,"stock_batch":10,"shop":3,"quantity":5}]`)
	})

	subs, err := client.ListSubStocks(context.Background(), "", SubStockFilter{Shop: 3})
	require.NoError(t, err)
	require.Equal(t, []SubStock{{ID: 1, StockBatch: 10, Shop: 3, Quantity: 5}}, subs)
}

func TestCreateSaleSendsPayloadAndIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sales/", r.URL.Path)
		require.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "cash", body["payment_method"])
		require.Equal(t, "60", body["discount"])
		items := body["items"].([]any)
		require.Len(t, items, 1)
		require.Equal(t, "356938035643809", items[0].(map[string]any)["imei"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":91,"invoice_number":"INV-91","grand_total":"2460.00"}`)
	})

	shop := int64(2)
	sale, err := client.CreateSale(context.Background(), "tok", "idem-1", SaleRequest{
		Shop:          &shop,
		Items:         []SaleItem{{StockBatch: 10, Quantity: 1, IMEI: "356938035643809"}},
		PaymentMethod: "cash",
		Discount:      decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	require.EqualValues(t, 91, sale.ID)
	require.Equal(t, "INV-91", sale.InvoiceNumber)
}

func TestAPIErrorIsRelayedVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"detail":"You do not have permission to perform this action."}`)
	})

	_, err := client.GetStockBatch(context.Background(), "tok", 5)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "get_stock_batch", apiErr.Operation)

	rr := httptest.NewRecorder()
	require.True(t, WriteError(rr, err))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.JSONEq(t, `{"detail":"You do not have permission to perform this action."}`, rr.Body.String())
}

func TestServerErrorsAreRetriedForReads(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[{"imei":"111","status":"available"}]`)
	})

	records, err := client.ListIMEIs(context.Background(), "tok", 4)
	require.NoError(t, err)
	require.Equal(t, []IMEIRecord{{IMEI: "111", Status: IMEIStatusAvailable}}, records)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := &Client{BaseURL: base, HTTP: resilience.HTTPClient{Client: &http.Client{Timeout: time.Second}}}
	_, err := client.ListProducts(context.Background(), "")
	require.ErrorIs(t, err, ErrUnavailable)

	rr := httptest.NewRecorder()
	require.True(t, WriteError(rr, err))
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestUnconfiguredClient(t *testing.T) {
	var client *Client
	_, err := client.ListProducts(context.Background(), "")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.False(t, WriteError(httptest.NewRecorder(), errors.New("other")))
}
