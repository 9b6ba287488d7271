// Package pricesplit groups a product's stock by selling price and condition.
package pricesplit

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Condition is the physical state a batch was purchased in.
type Condition string

const (
	ConditionFresh       Condition = "fresh"
	ConditionSecondHand  Condition = "second_hand"
	ConditionRefurbished Condition = "refurbished"
	ConditionOpenBox     Condition = "open_box"
	ConditionExchange    Condition = "exchange"
	ConditionDamaged     Condition = "damaged"
)

var conditions = map[Condition]struct{}{
	ConditionFresh:       {},
	ConditionSecondHand:  {},
	ConditionRefurbished: {},
	ConditionOpenBox:     {},
	ConditionExchange:    {},
	ConditionDamaged:     {},
}

var (
	// ErrUnknownCondition is returned by ParseCondition.
	ErrUnknownCondition = errors.New("unknown condition")
	// ErrUnknownView is returned by ResolveScope for unsupported views.
	ErrUnknownView = errors.New("unknown view")
	// ErrShopRequired is returned when a shop view has no shop to show.
	ErrShopRequired = errors.New("shop view requires a shop")
	// ErrScopeForbidden is returned by AuthorizeScope when a shop-bound user
	// asks for stock outside their shop.
	ErrScopeForbidden = errors.New("view is outside the user's shop")
)

// ParseCondition validates a condition filter. Blank input means no filter.
func ParseCondition(s string) (Condition, error) {
	c := Condition(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return "", nil
	}
	if _, ok := conditions[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCondition, s)
	}
	return c, nil
}

// View selects where stock is counted.
type View string

const (
	// ViewMain counts main-stock available quantity.
	ViewMain View = "main"
	// ViewShop counts one shop's sub-stock.
	ViewShop View = "shop"
	// ViewAll counts sub-stock across every shop.
	ViewAll View = "all"
)

// Scope is a resolved view. ShopID is set only for ViewShop.
type Scope struct {
	View   View
	ShopID int64
}

// ResolveScope turns request parameters into a Scope. A shop view uses the
// selected shop, falling back to the user's own shop. Without a view, users
// bound to a shop see that shop and everyone else sees main stock.
func ResolveScope(view string, selectedShop, userShop int64) (Scope, error) {
	switch View(strings.ToLower(strings.TrimSpace(view))) {
	case "":
		if userShop > 0 {
			return Scope{View: ViewShop, ShopID: userShop}, nil
		}
		return Scope{View: ViewMain}, nil
	case ViewMain:
		return Scope{View: ViewMain}, nil
	case ViewAll:
		return Scope{View: ViewAll}, nil
	case ViewShop:
		if selectedShop > 0 {
			return Scope{View: ViewShop, ShopID: selectedShop}, nil
		}
		if userShop > 0 {
			return Scope{View: ViewShop, ShopID: userShop}, nil
		}
		return Scope{}, ErrShopRequired
	}
	return Scope{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
}

// AuthorizeScope limits users bound to a shop to that shop's view. Users
// without a shop may read any scope.
func AuthorizeScope(scope Scope, userShop int64) error {
	if userShop <= 0 {
		return nil
	}
	if scope.View != ViewShop || scope.ShopID != userShop {
		return ErrScopeForbidden
	}
	return nil
}

// Batch is the stock batch data the grouping needs.
type Batch struct {
	ID                int64
	ProductID         int64
	Condition         Condition
	SellingPrice      decimal.Decimal
	AvailableQuantity int
}

// SubStock is a batch quantity held by a shop.
type SubStock struct {
	BatchID  int64
	ShopID   int64
	Quantity int
}

// Product carries the base fields repeated on every split row.
type Product struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Category string `json:"category_name"`
	Brand    string `json:"brand_name"`
}

// Group is the stock of one product at one (price, condition) pair.
type Group struct {
	Price     decimal.Decimal `json:"price"`
	Condition Condition       `json:"condition"`
	Stock     int             `json:"stock"`
}

// Row is a synthetic display row for one group.
type Row struct {
	Product
	SplitPrice     decimal.Decimal `json:"split_price"`
	SplitCondition Condition       `json:"split_condition"`
	SplitStock     int             `json:"split_stock"`
}

// Groups returns the (price, condition) groups of productID sorted by price
// and then condition.
func Groups(productID int64, batches []Batch, subStocks []SubStock, scope Scope, condition Condition) []Group {
	groups, _ := groupIndexed(productID, batches, indexSubStocks(subStocks), scope, condition)
	return groups
}

// Total is the quantity the non-split view shows for productID under the same
// scope and filter. It always equals the sum of the Groups' stock.
func Total(productID int64, batches []Batch, subStocks []SubStock, scope Scope, condition Condition) int {
	byBatch := indexSubStocks(subStocks)
	total := 0
	for _, b := range batches {
		if matches(b, productID, condition) {
			total += contribution(b, byBatch, scope)
		}
	}
	return total
}

// Rows emits one row per group for every product in order. Products without
// any matching batch are omitted.
func Rows(products []Product, batches []Batch, subStocks []SubStock, scope Scope, condition Condition) []Row {
	byBatch := indexSubStocks(subStocks)
	byProduct := make(map[int64][]Batch)
	for _, b := range batches {
		byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
	}
	rows := make([]Row, 0, len(products))
	for _, p := range products {
		groups, found := groupIndexed(p.ID, byProduct[p.ID], byBatch, scope, condition)
		if !found {
			continue
		}
		for _, g := range groups {
			rows = append(rows, Row{Product: p, SplitPrice: g.Price, SplitCondition: g.Condition, SplitStock: g.Stock})
		}
	}
	return rows
}

func groupIndexed(productID int64, batches []Batch, byBatch map[int64][]SubStock, scope Scope, condition Condition) ([]Group, bool) {
	index := make(map[string]int)
	var groups []Group
	for _, b := range batches {
		if !matches(b, productID, condition) {
			continue
		}
		key := b.SellingPrice.String() + "_" + string(b.Condition)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Price: b.SellingPrice, Condition: b.Condition})
		}
		groups[i].Stock += contribution(b, byBatch, scope)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].Price.Cmp(groups[j].Price); c != 0 {
			return c < 0
		}
		return groups[i].Condition < groups[j].Condition
	})
	return groups, len(groups) > 0
}

func matches(b Batch, productID int64, condition Condition) bool {
	return b.ProductID == productID && (condition == "" || b.Condition == condition)
}

func contribution(b Batch, byBatch map[int64][]SubStock, scope Scope) int {
	if scope.View == ViewMain {
		return b.AvailableQuantity
	}
	qty := 0
	for _, s := range byBatch[b.ID] {
		if scope.View == ViewShop && s.ShopID != scope.ShopID {
			continue
		}
		qty += s.Quantity
	}
	return qty
}

func indexSubStocks(subStocks []SubStock) map[int64][]SubStock {
	byBatch := make(map[int64][]SubStock, len(subStocks))
	for _, s := range subStocks {
		byBatch[s.BatchID] = append(byBatch[s.BatchID], s)
	}
	return byBatch
}
