package pricesplit

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func price(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func fixture() ([]Product, []Batch, []SubStock) {
	products := []Product{
		{ID: 1, Name: "Galaxy A15", SKU: "SM-A15"},
		{ID: 2, Name: "Charger", SKU: "CH-20W"},
		{ID: 3, Name: "Case", SKU: "CS-01"},
	}
	batches := []Batch{
		{ID: 11, ProductID: 1, Condition: ConditionFresh, SellingPrice: price("1000"), AvailableQuantity: 5},
		{ID: 12, ProductID: 1, Condition: ConditionFresh, SellingPrice: price("1000.00"), AvailableQuantity: 3},
		{ID: 13, ProductID: 1, Condition: ConditionRefurbished, SellingPrice: price("800"), AvailableQuantity: 2},
		{ID: 14, ProductID: 1, Condition: ConditionDamaged, SellingPrice: price("1000"), AvailableQuantity: 1},
		{ID: 21, ProductID: 2, Condition: ConditionFresh, SellingPrice: price("50"), AvailableQuantity: 0},
	}
	subs := []SubStock{
		{BatchID: 11, ShopID: 7, Quantity: 2},
		{BatchID: 11, ShopID: 8, Quantity: 1},
		{BatchID: 13, ShopID: 7, Quantity: 2},
		{BatchID: 14, ShopID: 8, Quantity: 1},
	}
	return products, batches, subs
}

type groupView struct {
	price     string
	condition Condition
	stock     int
}

func flatten(groups []Group) []groupView {
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView{price: g.Price.String(), condition: g.Condition, stock: g.Stock})
	}
	return out
}

func TestGroupsMainView(t *testing.T) {
	_, batches, subs := fixture()
	groups := Groups(1, batches, subs, Scope{View: ViewMain}, "")
	require.Equal(t, []groupView{
		{"800", ConditionRefurbished, 2},
		{"1000", ConditionDamaged, 1},
		{"1000", ConditionFresh, 8},
	}, flatten(groups))
}

func TestGroupsShopViews(t *testing.T) {
	_, batches, subs := fixture()

	shop := Groups(1, batches, subs, Scope{View: ViewShop, ShopID: 7}, "")
	require.Equal(t, []groupView{
		{"800", ConditionRefurbished, 2},
		{"1000", ConditionDamaged, 0},
		{"1000", ConditionFresh, 2},
	}, flatten(shop))

	all := Groups(1, batches, subs, Scope{View: ViewAll}, "")
	require.Equal(t, []groupView{
		{"800", ConditionRefurbished, 2},
		{"1000", ConditionDamaged, 1},
		{"1000", ConditionFresh, 3},
	}, flatten(all))
}

func TestGroupsConditionFilter(t *testing.T) {
	_, batches, subs := fixture()
	groups := Groups(1, batches, subs, Scope{View: ViewMain}, ConditionFresh)
	require.Equal(t, []groupView{{"1000", ConditionFresh, 8}}, flatten(groups))
	require.Empty(t, Groups(1, batches, subs, Scope{View: ViewMain}, ConditionOpenBox))
}

func TestGroupTotalsMatchUngroupedTotal(t *testing.T) {
	products, batches, subs := fixture()
	scopes := []Scope{
		{View: ViewMain},
		{View: ViewAll},
		{View: ViewShop, ShopID: 7},
		{View: ViewShop, ShopID: 8},
		{View: ViewShop, ShopID: 99},
	}
	filters := []Condition{"", ConditionFresh, ConditionRefurbished, ConditionDamaged, ConditionExchange}
	for _, p := range products {
		for _, scope := range scopes {
			for _, cond := range filters {
				sum := 0
				for _, g := range Groups(p.ID, batches, subs, scope, cond) {
					sum += g.Stock
				}
				require.Equal(t, Total(p.ID, batches, subs, scope, cond), sum, "product %d scope %+v condition %q", p.ID, scope, cond)
			}
		}
	}
}

func TestRowsOmitProductsWithoutMatchingBatches(t *testing.T) {
	products, batches, subs := fixture()

	rows := Rows(products, batches, subs, Scope{View: ViewMain}, "")
	require.Len(t, rows, 4)
	require.Equal(t, int64(1), rows[0].ID)
	require.Equal(t, "Galaxy A15", rows[0].Name)
	require.Equal(t, ConditionRefurbished, rows[0].SplitCondition)
	require.Equal(t, int64(2), rows[3].ID)
	require.Equal(t, 0, rows[3].SplitStock, "matching batch with no stock still emits a row")

	rows = Rows(products, batches, subs, Scope{View: ViewMain}, ConditionRefurbished)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].ID)
	require.True(t, rows[0].SplitPrice.Equal(price("800")))
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition(" Open_Box ")
	require.NoError(t, err)
	require.Equal(t, ConditionOpenBox, c)

	c, err = ParseCondition("")
	require.NoError(t, err)
	require.Equal(t, Condition(""), c)

	_, err = ParseCondition("mint")
	require.True(t, errors.Is(err, ErrUnknownCondition))
}

func TestResolveScope(t *testing.T) {
	cases := []struct {
		view     string
		selected int64
		user     int64
		want     Scope
		err      error
	}{
		{"", 0, 0, Scope{View: ViewMain}, nil},
		{"", 0, 4, Scope{View: ViewShop, ShopID: 4}, nil},
		{"main", 0, 4, Scope{View: ViewMain}, nil},
		{"all", 9, 4, Scope{View: ViewAll}, nil},
		{"shop", 9, 4, Scope{View: ViewShop, ShopID: 9}, nil},
		{"shop", 0, 4, Scope{View: ViewShop, ShopID: 4}, nil},
		{"shop", 0, 0, Scope{}, ErrShopRequired},
		{"warehouse", 0, 0, Scope{}, ErrUnknownView},
	}
	for _, tc := range cases {
		got, err := ResolveScope(tc.view, tc.selected, tc.user)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, "view %q", tc.view)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "view %q", tc.view)
	}
}

func TestAuthorizeScope(t *testing.T) {
	require.NoError(t, AuthorizeScope(Scope{View: ViewAll}, 0))
	require.NoError(t, AuthorizeScope(Scope{View: ViewMain}, 0))
	require.NoError(t, AuthorizeScope(Scope{View: ViewShop, ShopID: 3}, 0))
	require.NoError(t, AuthorizeScope(Scope{View: ViewShop, ShopID: 5}, 5))

	require.ErrorIs(t, AuthorizeScope(Scope{View: ViewShop, ShopID: 3}, 5), ErrScopeForbidden)
	require.ErrorIs(t, AuthorizeScope(Scope{View: ViewAll}, 5), ErrScopeForbidden)
	require.ErrorIs(t, AuthorizeScope(Scope{View: ViewMain}, 5), ErrScopeForbidden)
}
