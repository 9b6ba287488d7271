package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/audit"
	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Inventory is the subset of the backend client the cart relies on.
type Inventory interface {
	GetStockBatch(ctx context.Context, token string, id int64) (backend.StockBatch, error)
	ListSubStocks(ctx context.Context, token string, filter backend.SubStockFilter) ([]backend.SubStock, error)
	ListIMEIs(ctx context.Context, token string, batchID int64) ([]backend.IMEIRecord, error)
	CreateSale(ctx context.Context, token, idempotencyKey string, req backend.SaleRequest) (backend.Sale, error)
}

// Locker serializes mutations of one cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Auditor records domain events.
type Auditor interface {
	RecordEvent(ctx context.Context, ev audit.Event) error
}

// StockNotifier is told when a write changed backend stock levels.
type StockNotifier interface {
	StockChanged(ctx context.Context)
}

// Service encapsulates cart domain operations.
type Service struct {
	Store     Store
	Inventory Inventory
	Locker    Locker
	Audit     Auditor
	Stock     StockNotifier
	Logger    *zerolog.Logger
	LockTTL   time.Duration
	Now       func() time.Time
}

// Quote is a cart together with its recomputed totals.
type Quote struct {
	Cart   *Cart           `json:"cart"`
	Totals pricing.Summary `json:"totals"`
}

// CheckoutInput carries the sale attributes that are not part of the cart.
type CheckoutInput struct {
	Charges        pricing.Charges
	PaymentMethod  string
	Customer       *int64
	IdempotencyKey string
}

// Receipt describes a submitted sale.
type Receipt struct {
	Sale   backend.Sale    `json:"sale"`
	Totals pricing.Summary `json:"totals"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) logger(ctx context.Context) zerolog.Logger {
	base := zerolog.Nop()
	if s != nil && s.Logger != nil {
		base = *s.Logger
	}
	return obs.WithRequest(ctx, base)
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Inventory == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Create starts an empty cart bound to the caller and their shop.
func (s *Service) Create(ctx context.Context, sess common.Session) (c *Cart, err error) {
	defer func() { obs.CountCartMutation("create", err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c = &Cart{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		ShopID:    sess.ShopID,
		Lines:     []Line{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads a cart owned by the caller.
func (s *Service) Get(ctx context.Context, sess common.Session, id string) (*Cart, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.load(ctx, sess, id)
}

// AddItem adds one unit of a batch, reading availability from the backend.
func (s *Service) AddItem(ctx context.Context, sess common.Session, id string, batchID int64, imei string) (*Cart, error) {
	return s.mutate(ctx, sess, id, "add", func(ctx context.Context, c *Cart) error {
		sb, err := s.Inventory.GetStockBatch(ctx, sess.Token, batchID)
		if err != nil {
			return err
		}
		available, err := s.available(ctx, sess.Token, c.ShopID, sb)
		if err != nil {
			return err
		}
		imei = strings.TrimSpace(imei)
		if imei != "" && sb.ProductIsIMEITracked {
			if err := s.checkIMEI(ctx, sess.Token, c.ShopID, batchID, imei); err != nil {
				return err
			}
		}
		_, err = c.AddLine(BatchFromBackend(sb), available, imei)
		return err
	})
}

// SetQuantity changes the quantity of a non-serialized line.
func (s *Service) SetQuantity(ctx context.Context, sess common.Session, id string, batchID int64, quantity int) (*Cart, error) {
	return s.mutate(ctx, sess, id, "set_quantity", func(_ context.Context, c *Cart) error {
		return c.SetQuantity(batchID, quantity)
	})
}

// RemoveItem deletes a line.
func (s *Service) RemoveItem(ctx context.Context, sess common.Session, id string, batchID int64, imei string) (*Cart, error) {
	return s.mutate(ctx, sess, id, "remove", func(_ context.Context, c *Cart) error {
		return c.RemoveLine(batchID, imei)
	})
}

// Quote recomputes totals for the cart with the given charges.
func (s *Service) Quote(ctx context.Context, sess common.Session, id string, charges pricing.Charges) (Quote, error) {
	c, err := s.Get(ctx, sess, id)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Cart: c, Totals: c.Totals(charges).Round(2)}, nil
}

// Checkout re-validates the cart against fresh stock, submits the sale and
// clears the cart. The cart is left untouched when anything fails.
func (s *Service) Checkout(ctx context.Context, sess common.Session, id string, in CheckoutInput) (Receipt, error) {
	var receipt Receipt
	_, err := s.mutate(ctx, sess, id, "checkout", func(ctx context.Context, c *Cart) error {
		if c.Empty() {
			return ErrEmptyCart
		}
		if err := s.revalidate(ctx, sess.Token, c); err != nil {
			return err
		}

		totals := c.Totals(in.Charges)
		key := in.IdempotencyKey
		if key == "" {
			key = "cart-" + c.ID + "-" + strconv.FormatInt(c.UpdatedAt.UnixNano(), 36)
		}
		sale, err := s.Inventory.CreateSale(ctx, sess.Token, key, c.SaleRequest(c.ShopID, in.PaymentMethod, in.Charges, in.Customer))
		obs.CountSaleSubmission(err)
		if err != nil {
			log := s.logger(ctx)
			log.Warn().Err(err).Str("cart_id", c.ID).Int("lines", len(c.Lines)).Msg("cart_checkout_failed")
			return err
		}

		receipt = Receipt{Sale: sale, Totals: totals.Round(2)}
		s.record(ctx, sess, c, sale, totals)
		log := s.logger(ctx)
		log.Info().
			Str("cart_id", c.ID).
			Int64("sale_id", sale.ID).
			Int("lines", len(c.Lines)).
			Str("grand_total", totals.GrandTotal.StringFixed(2)).
			Msg("cart_checkout")
		c.Clear()
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	if s.Stock != nil {
		s.Stock.StockChanged(ctx)
	}
	return receipt, nil
}

func (s *Service) record(ctx context.Context, sess common.Session, c *Cart, sale backend.Sale, totals pricing.Summary) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.RecordEvent(ctx, audit.Event{
		Actor:        audit.ActorFromSession(sess),
		Action:       "sale.submitted",
		ResourceType: "sale",
		ResourceID:   strconv.FormatInt(sale.ID, 10),
		Status:       http.StatusCreated,
		Metadata: map[string]any{
			"cart_id":     c.ID,
			"lines":       len(c.Lines),
			"grand_total": totals.GrandTotal.StringFixed(2),
			"gst":         totals.GST.StringFixed(2),
		},
	})
	if err != nil {
		log := s.logger(ctx)
		log.Error().Err(err).Str("cart_id", c.ID).Msg("audit_record_failed")
	}
}

func (s *Service) mutate(ctx context.Context, sess common.Session, id, op string, fn func(context.Context, *Cart) error) (c *Cart, err error) {
	defer func() { obs.CountCartMutation(op, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	run := func(ctx context.Context) error {
		loaded, err := s.load(ctx, sess, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, loaded); err != nil {
			return err
		}
		loaded.UpdatedAt = s.now().UTC()
		if err := s.Store.Save(ctx, loaded); err != nil {
			return err
		}
		c = loaded
		return nil
	}
	if s.Locker == nil {
		err = run(ctx)
	} else {
		err = s.Locker.WithLock(ctx, "cart:"+id, s.lockTTL(), run)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) load(ctx context.Context, sess common.Session, id string) (*Cart, error) {
	c, err := s.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Carts belong to one user at one shop; a token for another shop sees nothing.
	if c.UserID != sess.UserID || c.ShopID != sess.ShopID {
		return nil, ErrNotFound
	}
	if c.Lines == nil {
		c.Lines = []Line{}
	}
	return c, nil
}

// available returns the sellable quantity of a batch: the shop's sub-stock
// for shop carts, the main-stock available quantity otherwise.
func (s *Service) available(ctx context.Context, token string, shopID int64, sb backend.StockBatch) (int, error) {
	if shopID <= 0 {
		return sb.AvailableQuantity, nil
	}
	subs, err := s.Inventory.ListSubStocks(ctx, token, backend.SubStockFilter{StockBatch: sb.ID, Shop: shopID})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sub := range subs {
		if sub.StockBatch == sb.ID && sub.Shop == shopID {
			total += sub.Quantity
		}
	}
	return total, nil
}

func (s *Service) checkIMEI(ctx context.Context, token string, shopID, batchID int64, imei string) error {
	records, err := s.Inventory.ListIMEIs(ctx, token, batchID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.IMEI) != imei {
			continue
		}
		if rec.Status != backend.IMEIStatusAvailable {
			return fmt.Errorf("%w: %s is %s", ErrIMEIUnavailable, imei, rec.Status)
		}
		if shopID > 0 && rec.Shop != nil && *rec.Shop != shopID {
			return fmt.Errorf("%w: %s is held by another shop", ErrIMEIUnavailable, imei)
		}
		return nil
	}
	return fmt.Errorf("%w: %s is not recorded for batch %d", ErrIMEIUnavailable, imei, batchID)
}

// revalidate checks every batch in the cart against fresh availability and
// refreshes line ceilings.
func (s *Service) revalidate(ctx context.Context, token string, c *Cart) error {
	units := c.UnitsByBatch()
	for _, batchID := range batchOrder(c) {
		sb, err := s.Inventory.GetStockBatch(ctx, token, batchID)
		if err != nil {
			return err
		}
		available, err := s.available(ctx, token, c.ShopID, sb)
		if err != nil {
			return err
		}
		if units[batchID] > available {
			return &CapacityError{BatchID: batchID, Requested: units[batchID], Ceiling: available}
		}
		for i := range c.Lines {
			line := &c.Lines[i]
			if line.BatchID != batchID {
				continue
			}
			if line.IMEI != "" {
				if err := s.checkIMEI(ctx, token, c.ShopID, batchID, line.IMEI); err != nil {
					return err
				}
				continue
			}
			line.AvailableQuantity = available
		}
	}
	return nil
}

func batchOrder(c *Cart) []int64 {
	seen := make(map[int64]struct{}, len(c.Lines))
	order := make([]int64, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.BatchID]; ok {
			continue
		}
		seen[l.BatchID] = struct{}{}
		order = append(order, l.BatchID)
	}
	return order
}
