package pricesplit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/obs"
)

const (
	snapshotKey  = "pricesplit:snapshot"
	buildTimeout = 30 * time.Second
)

// ErrNoToken is returned when neither the caller nor the service has a token
// for the inventory API.
var ErrNoToken = errors.New("pricesplit: no backend token")

// Source is the subset of the backend client the snapshot is built from.
type Source interface {
	ListProducts(ctx context.Context, token string) ([]backend.Product, error)
	ListStockBatches(ctx context.Context, token string, filter backend.BatchFilter) ([]backend.StockBatch, error)
	ListSubStocks(ctx context.Context, token string, filter backend.SubStockFilter) ([]backend.SubStock, error)
}

// Snapshot is the inventory state the grouping runs on.
type Snapshot struct {
	Products  []Product  `json:"products"`
	Batches   []Batch    `json:"batches"`
	SubStocks []SubStock `json:"sub_stocks"`
	BuiltAt   time.Time  `json:"built_at"`
}

// Query selects the rows a caller wants.
type Query struct {
	Scope     Scope
	Condition Condition
	Search    string
}

// Service serves price-split rows from a cached inventory snapshot.
type Service struct {
	Source Source
	Cache  *Cache
	// Token is used to build snapshots outside a request, and in preference
	// to the caller's token so every user shares one snapshot. Without it each
	// caller token gets its own snapshot.
	Token  string
	Logger *zerolog.Logger
	Now    func() time.Time

	group singleflight.Group
}

// NewService wires a service around a Redis-backed cache.
func NewService(src Source, cache *Cache, token string, logger *zerolog.Logger) *Service {
	return &Service{Source: src, Cache: cache, Token: token, Logger: logger}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger(ctx context.Context) zerolog.Logger {
	base := zerolog.Nop()
	if s.Logger != nil {
		base = *s.Logger
	}
	return obs.WithRequest(ctx, base)
}

// Rows returns the split rows matching q, in product order.
func (s *Service) Rows(ctx context.Context, token string, q Query) ([]Row, error) {
	snap, err := s.Snapshot(ctx, token)
	if err != nil {
		return nil, err
	}
	products := snap.Products
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		products = make([]Product, 0, len(snap.Products))
		for _, p := range snap.Products {
			if matchesSearch(p, term) {
				products = append(products, p)
			}
		}
	}
	return Rows(products, snap.Batches, snap.SubStocks, q.Scope, q.Condition), nil
}

// Snapshot returns the cached snapshot, building it when the cache is cold.
// Concurrent cold reads share one build.
func (s *Service) Snapshot(ctx context.Context, token string) (*Snapshot, error) {
	if s == nil || s.Source == nil {
		return nil, backend.ErrNotConfigured
	}
	key := snapshotKey
	if s.Token != "" {
		token = s.Token
	} else if token != "" {
		key = tokenSnapshotKey(token)
	}
	if token == "" {
		return nil, ErrNoToken
	}

	var snap Snapshot
	ok, err := s.Cache.GetJSON(ctx, key, &snap)
	if err != nil {
		l := s.logger(ctx)
		l.Warn().Err(err).Msg("pricesplit_cache_read_failed")
	}
	if ok {
		return &snap, nil
	}

	// The build outlives a cancelled caller so waiting requests still get it.
	ch := s.group.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		return s.rebuild(buildCtx, key, token)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Refresh rebuilds the snapshot with the service token and stores it.
func (s *Service) Refresh(ctx context.Context) (err error) {
	defer func() { obs.CountSnapshotRefresh(err) }()
	if s == nil || s.Source == nil {
		return backend.ErrNotConfigured
	}
	if s.Token == "" {
		return ErrNoToken
	}
	snap, err := s.rebuild(ctx, snapshotKey, s.Token)
	if err != nil {
		return err
	}
	l := s.logger(ctx)
	l.Info().
		Int("products", len(snap.Products)).
		Int("batches", len(snap.Batches)).
		Int("sub_stocks", len(snap.SubStocks)).
		Msg("pricesplit_snapshot_refreshed")
	return nil
}

// tokenSnapshotKey scopes a snapshot to the token that built it.
func tokenSnapshotKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return snapshotKey + ":" + hex.EncodeToString(sum[:8])
}

func (s *Service) rebuild(ctx context.Context, key, token string) (*Snapshot, error) {
	snap, err := s.build(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, key, snap); err != nil {
		l := s.logger(ctx)
		l.Warn().Err(err).Msg("pricesplit_cache_write_failed")
	}
	return snap, nil
}

func (s *Service) build(ctx context.Context, token string) (*Snapshot, error) {
	products, err := s.Source.ListProducts(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("pricesplit: products: %w", err)
	}
	batches, err := s.Source.ListStockBatches(ctx, token, backend.BatchFilter{})
	if err != nil {
		return nil, fmt.Errorf("pricesplit: stock batches: %w", err)
	}
	subStocks, err := s.Source.ListSubStocks(ctx, token, backend.SubStockFilter{})
	if err != nil {
		return nil, fmt.Errorf("pricesplit: sub stocks: %w", err)
	}

	snap := &Snapshot{
		Products:  make([]Product, 0, len(products)),
		Batches:   make([]Batch, 0, len(batches)),
		SubStocks: make([]SubStock, 0, len(subStocks)),
		BuiltAt:   s.now().UTC(),
	}
	for _, p := range products {
		snap.Products = append(snap.Products, Product{ID: p.ID, Name: p.Name, SKU: p.SKU, Category: p.Category, Brand: p.Brand})
	}
	for _, b := range batches {
		snap.Batches = append(snap.Batches, Batch{
			ID:                b.ID,
			ProductID:         b.Product,
			Condition:         Condition(b.Condition),
			SellingPrice:      b.SellingPrice,
			AvailableQuantity: b.AvailableQuantity,
		})
	}
	for _, ss := range subStocks {
		snap.SubStocks = append(snap.SubStocks, SubStock{BatchID: ss.StockBatch, ShopID: ss.Shop, Quantity: ss.Quantity})
	}
	return snap, nil
}

func matchesSearch(p Product, term string) bool {
	for _, field := range []string{p.Name, p.SKU, p.Category, p.Brand} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
