package distribution

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/audit"
	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// Inventory is the subset of the backend client used for batch writes.
type Inventory interface {
	GetProduct(ctx context.Context, token string, id int64) (backend.Product, error)
	GetStockBatch(ctx context.Context, token string, id int64) (backend.StockBatch, error)
	CreateStockBatch(ctx context.Context, token, idempotencyKey string, req backend.StockBatchRequest) (backend.StockBatch, error)
	UpdateStockBatch(ctx context.Context, token string, id int64, req backend.StockBatchRequest) (backend.StockBatch, error)
}

// Auditor records domain events.
type Auditor interface {
	RecordEvent(ctx context.Context, ev audit.Event) error
}

// BatchRequest is a stock batch submission with its shop distribution.
type BatchRequest struct {
	Product       int64           `json:"product" validate:"required,gt=0"`
	Supplier      *int64          `json:"supplier" validate:"omitempty,gt=0"`
	Condition     string          `json:"condition" validate:"required,oneof=fresh second_hand refurbished open_box exchange damaged"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	GSTRate       decimal.Decimal `json:"gst_rate"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	IMEIList      []string        `json:"imei_list"`
	Distributions []Row           `json:"distributions"`
}

// Check validates the amounts that struct tags cannot express.
func (r BatchRequest) Check() error {
	details := map[string]string{}
	if r.PurchasePrice.IsNegative() {
		details["purchase_price"] = "must be at least 0"
	}
	if r.SellingPrice.IsNegative() {
		details["selling_price"] = "must be at least 0"
	}
	if r.GSTRate.IsNegative() || r.GSTRate.GreaterThan(decimal.NewFromInt(100)) {
		details["gst_rate"] = "must be between 0 and 100"
	}
	if len(details) > 0 {
		return common.ValidationError("validation failed", details)
	}
	return nil
}

func (r BatchRequest) payload(res Result) backend.StockBatchRequest {
	dists := make([]backend.Distribution, 0, len(res.Distributions))
	for _, a := range res.Distributions {
		dists = append(dists, backend.Distribution{Shop: a.ShopID, Quantity: a.Quantity, IMEIList: a.IMEIList})
	}
	return backend.StockBatchRequest{
		Product:       r.Product,
		Supplier:      r.Supplier,
		Condition:     strings.TrimSpace(r.Condition),
		PurchasePrice: r.PurchasePrice,
		SellingPrice:  r.SellingPrice,
		GSTRate:       r.GSTRate,
		Quantity:      r.Quantity,
		IMEIList:      res.MasterIMEIs,
		Distributions: dists,
	}
}

// Service reconciles distributions and forwards valid batches to the backend.
type Service struct {
	Inventory Inventory
	Audit     Auditor
	Stock     StockNotifier
	Logger    *zerolog.Logger
}

// StockNotifier is told when a write changed backend stock levels.
type StockNotifier interface {
	StockChanged(ctx context.Context)
}

func (s *Service) logger(ctx context.Context) zerolog.Logger {
	base := zerolog.Nop()
	if s != nil && s.Logger != nil {
		base = *s.Logger
	}
	return obs.WithRequest(ctx, base)
}

// Validate runs Reconcile and records the outcome.
func (s *Service) Validate(ctx context.Context, in Input) (Result, error) {
	res, err := Reconcile(in)
	violation := Category(err)
	obs.CountDistributionValidation(string(violation))
	if err != nil {
		log := s.logger(ctx)
		log.Info().
			Err(err).
			Str("violation", string(violation)).
			Int("purchased_quantity", in.PurchasedQuantity).
			Int("rows", len(in.Rows)).
			Msg("distribution_rejected")
	}
	return res, err
}

// CreateBatch reconciles req against the product's tracking mode and creates
// the batch.
func (s *Service) CreateBatch(ctx context.Context, sess common.Session, req BatchRequest, idempotencyKey string) (backend.StockBatch, Result, error) {
	if s == nil || s.Inventory == nil {
		return backend.StockBatch{}, Result{}, errors.New("distribution service not configured")
	}
	product, err := s.Inventory.GetProduct(ctx, sess.Token, req.Product)
	if err != nil {
		return backend.StockBatch{}, Result{}, err
	}
	res, err := s.Validate(ctx, Input{
		PurchasedQuantity: req.Quantity,
		IMEITracked:       product.IsIMEITracked,
		MasterIMEIs:       req.IMEIList,
		Rows:              req.Distributions,
	})
	if err != nil {
		return backend.StockBatch{}, Result{}, err
	}
	batch, err := s.Inventory.CreateStockBatch(ctx, sess.Token, idempotencyKey, req.payload(res))
	if err != nil {
		return backend.StockBatch{}, Result{}, err
	}
	s.record(ctx, sess, "stock_batch.created", batch.ID, http.StatusCreated, res)
	return batch, res, nil
}

// UpdateBatch re-reads the batch from the backend and reconciles req against
// that fresh state. A request without a master list keeps the stored one.
func (s *Service) UpdateBatch(ctx context.Context, sess common.Session, id int64, req BatchRequest) (backend.StockBatch, Result, error) {
	if s == nil || s.Inventory == nil {
		return backend.StockBatch{}, Result{}, errors.New("distribution service not configured")
	}
	current, err := s.Inventory.GetStockBatch(ctx, sess.Token, id)
	if err != nil {
		return backend.StockBatch{}, Result{}, err
	}
	tracked := current.ProductIsIMEITracked
	if req.Product != current.Product {
		product, err := s.Inventory.GetProduct(ctx, sess.Token, req.Product)
		if err != nil {
			return backend.StockBatch{}, Result{}, err
		}
		tracked = product.IsIMEITracked
	}
	master := req.IMEIList
	if len(master) == 0 {
		master = current.IMEIList
	}
	res, err := s.Validate(ctx, Input{
		PurchasedQuantity: req.Quantity,
		IMEITracked:       tracked,
		MasterIMEIs:       master,
		Rows:              req.Distributions,
	})
	if err != nil {
		return backend.StockBatch{}, Result{}, err
	}
	batch, err := s.Inventory.UpdateStockBatch(ctx, sess.Token, id, req.payload(res))
	if err != nil {
		return backend.StockBatch{}, Result{}, err
	}
	s.record(ctx, sess, "stock_batch.updated", batch.ID, http.StatusOK, res)
	return batch, res, nil
}

func (s *Service) record(ctx context.Context, sess common.Session, action string, batchID int64, status int, res Result) {
	log := s.logger(ctx)
	log.Info().
		Str("action", action).
		Int64("batch_id", batchID).
		Int("distributions", len(res.Distributions)).
		Bool("imeis_adopted", res.Adopted).
		Msg("distribution_applied")
	if s.Stock != nil {
		s.Stock.StockChanged(ctx)
	}
	if s.Audit == nil {
		return
	}
	shops := make([]int64, 0, len(res.Distributions))
	allocated := 0
	for _, a := range res.Distributions {
		shops = append(shops, a.ShopID)
		allocated += a.Quantity
	}
	err := s.Audit.RecordEvent(ctx, audit.Event{
		Actor:        audit.ActorFromSession(sess),
		Action:       action,
		ResourceType: "stock_batch",
		ResourceID:   strconv.FormatInt(batchID, 10),
		Status:       status,
		Metadata: map[string]any{
			"shops":         shops,
			"allocated":     allocated,
			"imei_count":    len(res.MasterIMEIs),
			"imeis_adopted": res.Adopted,
		},
	})
	if err != nil {
		log.Error().Err(err).Int64("batch_id", batchID).Msg("audit_record_failed")
	}
}
