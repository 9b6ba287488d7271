package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

const (
	maxErrorBody = 64 << 10
	maxPages     = 100
)

// Client talks to the inventory REST API on behalf of an authenticated caller.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Logger  *zerolog.Logger
}

// NewHTTPClient returns an instrumented http.Client for backend calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// ListProducts returns every product visible to the token.
func (c *Client) ListProducts(ctx context.Context, token string) ([]Product, error) {
	var out []Product
	err := c.list(ctx, "list_products", "/products/", token, nil, func(raw json.RawMessage) error {
		var page []Product
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	return out, err
}

// GetProduct fetches one product by id.
func (c *Client) GetProduct(ctx context.Context, token string, id int64) (Product, error) {
	var out Product
	err := c.do(ctx, "get_product", http.MethodGet, fmt.Sprintf("/products/%d/", id), token, nil, nil, "", &out)
	return out, err
}

// ListStockBatches returns the batches matching filter.
func (c *Client) ListStockBatches(ctx context.Context, token string, filter BatchFilter) ([]StockBatch, error) {
	query := url.Values{}
	if filter.Product > 0 {
		query.Set("product", strconv.FormatInt(filter.Product, 10))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		query.Set("search", s)
	}
	var out []StockBatch
	err := c.list(ctx, "list_stock_batches", "/stock-batches/", token, query, func(raw json.RawMessage) error {
		var page []StockBatch
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	return out, err
}

// GetStockBatch fetches one batch by id.
func (c *Client) GetStockBatch(ctx context.Context, token string, id int64) (StockBatch, error) {
	var out StockBatch
	err := c.do(ctx, "get_stock_batch", http.MethodGet, fmt.Sprintf("/stock-batches/%d/", id), token, nil, nil, "", &out)
	return out, err
}

// ListSubStocks returns shop allocations matching filter.
func (c *Client) ListSubStocks(ctx context.Context, token string, filter SubStockFilter) ([]SubStock, error) {
	query := url.Values{}
	if filter.StockBatch > 0 {
		query.Set("stock_batch", strconv.FormatInt(filter.StockBatch, 10))
	}
	if filter.Shop > 0 {
		query.Set("shop", strconv.FormatInt(filter.Shop, 10))
	}
	var out []SubStock
	err := c.list(ctx, "list_sub_stocks", "/sub-stocks/", token, query, func(raw json.RawMessage) error {
		var page []SubStock
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	return out, err
}

// ListIMEIs returns the serial numbers recorded against a batch.
func (c *Client) ListIMEIs(ctx context.Context, token string, batchID int64) ([]IMEIRecord, error) {
	var out []IMEIRecord
	err := c.list(ctx, "list_imeis", fmt.Sprintf("/stock-batches/%d/imeis/", batchID), token, nil, func(raw json.RawMessage) error {
		var page []IMEIRecord
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	return out, err
}

// CreateSale submits a sale. idempotencyKey is forwarded so retries are safe.
func (c *Client) CreateSale(ctx context.Context, token, idempotencyKey string, req SaleRequest) (Sale, error) {
	var out Sale
	err := c.do(ctx, "create_sale", http.MethodPost, "/sales/", token, nil, req, idempotencyKey, &out)
	return out, err
}

// CreateStockBatch creates a batch along with its shop distribution.
func (c *Client) CreateStockBatch(ctx context.Context, token, idempotencyKey string, req StockBatchRequest) (StockBatch, error) {
	var out StockBatch
	err := c.do(ctx, "create_stock_batch", http.MethodPost, "/stock-batches/", token, nil, req, idempotencyKey, &out)
	return out, err
}

// UpdateStockBatch replaces a batch and its distribution.
func (c *Client) UpdateStockBatch(ctx context.Context, token string, id int64, req StockBatchRequest) (StockBatch, error) {
	var out StockBatch
	err := c.do(ctx, "update_stock_batch", http.MethodPut, fmt.Sprintf("/stock-batches/%d/", id), token, nil, req, "", &out)
	return out, err
}

type pageEnvelope struct {
	Results json.RawMessage `json:"results"`
	Next    *string         `json:"next"`
}

// list accepts either a bare JSON array or a paginated {"results","next"}
// envelope and follows next links.
func (c *Client) list(ctx context.Context, op, path, token string, query url.Values, collect func(json.RawMessage) error) error {
	for page := 0; page < maxPages; page++ {
		var raw json.RawMessage
		if err := c.do(ctx, op, http.MethodGet, path, token, query, nil, "", &raw); err != nil {
			return err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			if err := collect(raw); err != nil {
				return fmt.Errorf("backend: decode %s: %w", op, err)
			}
			return nil
		}
		var env pageEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("backend: decode %s: %w", op, err)
		}
		if len(env.Results) > 0 {
			if err := collect(env.Results); err != nil {
				return fmt.Errorf("backend: decode %s: %w", op, err)
			}
		}
		if env.Next == nil || strings.TrimSpace(*env.Next) == "" {
			return nil
		}
		next, err := url.Parse(*env.Next)
		if err != nil {
			return fmt.Errorf("backend: %s next link: %w", op, err)
		}
		query = next.Query()
	}
	return fmt.Errorf("backend: %s exceeded %d pages", op, maxPages)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, query url.Values, body any, idempotencyKey string, out any) (err error) {
	if c == nil || c.BaseURL == "" {
		return ErrNotConfigured
	}
	start := time.Now()
	defer func() {
		obs.ObserveBackendRequest(op, obs.DurationMillis(time.Since(start)), err)
	}()

	target := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return fmt.Errorf("backend: encode %s: %w", op, merr)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("backend: build %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger().Warn().Err(err).Str("operation", op).Msg("backend_unavailable")
		return fmt.Errorf("backend: %s: %w: %w", op, ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Operation:   op,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("backend: decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) logger() *zerolog.Logger {
	if c.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return c.Logger
}
