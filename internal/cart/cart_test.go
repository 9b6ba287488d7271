package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

func plainBatch(id int64) Batch {
	return Batch{ID: id, ProductID: 100 + id, ProductName: "Charger", SellingPrice: decimal.RequireFromString("1180"), GSTRate: decimal.RequireFromString("18")}
}

func phoneBatch(id int64) Batch {
	b := plainBatch(id)
	b.ProductName = "Phone"
	b.IMEITracked = true
	return b
}

func TestAddLineRejectsOutOfStock(t *testing.T) {
	var c Cart
	_, err := c.AddLine(plainBatch(1), 0, "")
	require.ErrorIs(t, err, ErrOutOfStock)
	require.True(t, c.Empty())
}

func TestAddLineIncrementsExistingPlainLine(t *testing.T) {
	var c Cart
	_, err := c.AddLine(plainBatch(1), 2, "")
	require.NoError(t, err)
	line, err := c.AddLine(plainBatch(1), 2, "")
	require.NoError(t, err)
	require.Equal(t, 2, line.Quantity)
	require.Len(t, c.Lines, 1)

	_, err = c.AddLine(plainBatch(1), 2, "")
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	require.Equal(t, 2, capErr.Ceiling)
	require.Equal(t, 2, c.Lines[0].Quantity)
}

func TestAddLineIMEIRules(t *testing.T) {
	var c Cart
	_, err := c.AddLine(phoneBatch(2), 3, "")
	require.ErrorIs(t, err, ErrIMEIRequired)

	_, err = c.AddLine(plainBatch(1), 3, "111")
	require.ErrorIs(t, err, ErrIMEINotTracked)

	line, err := c.AddLine(phoneBatch(2), 3, " 111 ")
	require.NoError(t, err)
	require.Equal(t, "111", line.IMEI)
	require.Equal(t, 1, line.Quantity)

	_, err = c.AddLine(phoneBatch(2), 3, "111")
	require.ErrorIs(t, err, ErrDuplicateIMEI)
	require.EqualError(t, err, "duplicate IMEI in cart")

	_, err = c.AddLine(phoneBatch(2), 3, "222")
	require.NoError(t, err)
	require.Len(t, c.Lines, 2)
}

func TestAddLineIMEICapacity(t *testing.T) {
	var c Cart
	_, err := c.AddLine(phoneBatch(2), 1, "111")
	require.NoError(t, err)
	_, err = c.AddLine(phoneBatch(2), 1, "222")
	require.ErrorIs(t, err, ErrExceedsAvailable)
}

func TestSetQuantityCapacityClamp(t *testing.T) {
	var c Cart
	_, err := c.AddLine(plainBatch(1), 5, "")
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity(1, 3))

	err = c.SetQuantity(1, 6)
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	require.Equal(t, 5, capErr.Ceiling)
	require.Equal(t, 3, c.Lines[0].Quantity)

	require.NoError(t, c.SetQuantity(1, 0))
	require.True(t, c.Empty())
}

func TestSetQuantityOnMissingOrSerializedLine(t *testing.T) {
	var c Cart
	require.ErrorIs(t, c.SetQuantity(9, 1), ErrLineNotFound)

	_, err := c.AddLine(phoneBatch(2), 2, "111")
	require.NoError(t, err)
	require.ErrorIs(t, c.SetQuantity(2, 2), ErrQuantityFixed)
}

func TestSetQuantityZeroRemovesSerializedLine(t *testing.T) {
	c := &Cart{}
	_, err := c.AddLine(phoneBatch(2), 2, "111")
	require.NoError(t, err)
	_, err = c.AddLine(phoneBatch(2), 2, "222")
	require.NoError(t, err)

	require.ErrorIs(t, c.SetQuantity(2, 0), ErrIMEIRequired)
	require.Len(t, c.Lines, 2)

	require.NoError(t, c.RemoveLine(2, "222"))
	require.NoError(t, c.SetQuantity(2, 0))
	require.Empty(t, c.Lines)
	require.ErrorIs(t, c.SetQuantity(2, 0), ErrLineNotFound)
}

func TestRemoveLine(t *testing.T) {
	var c Cart
	_, _ = c.AddLine(plainBatch(1), 5, "")
	_, _ = c.AddLine(phoneBatch(2), 2, "111")
	_, _ = c.AddLine(phoneBatch(2), 2, "222")

	require.ErrorIs(t, c.RemoveLine(2, ""), ErrIMEIRequired)
	require.ErrorIs(t, c.RemoveLine(2, "333"), ErrLineNotFound)
	require.NoError(t, c.RemoveLine(2, "111"))
	require.NoError(t, c.RemoveLine(1, ""))
	require.Len(t, c.Lines, 1)
	require.Equal(t, "222", c.Lines[0].IMEI)
}

func TestTotalsRecomputeFromLines(t *testing.T) {
	var c Cart
	_, _ = c.AddLine(plainBatch(1), 5, "")
	require.NoError(t, c.SetQuantity(1, 2))

	totals := c.Totals(pricing.Charges{Discount: decimal.NewFromInt(60)})
	require.True(t, totals.Subtotal.Equal(decimal.NewFromInt(2000)))
	require.True(t, totals.GST.Equal(decimal.NewFromInt(360)))
	require.True(t, totals.GrandTotal.Equal(decimal.NewFromInt(2300)))

	require.NoError(t, c.SetQuantity(1, 1))
	require.True(t, c.Totals(pricing.Charges{}).GrandTotal.Equal(decimal.NewFromInt(1180)))
}

func TestSaleRequest(t *testing.T) {
	var c Cart
	_, _ = c.AddLine(plainBatch(1), 5, "")
	_, _ = c.AddLine(phoneBatch(2), 1, "111")
	customer := int64(8)

	req := c.SaleRequest(3, "upi", pricing.Charges{Transport: decimal.NewFromInt(40)}, &customer)
	require.NotNil(t, req.Shop)
	require.EqualValues(t, 3, *req.Shop)
	require.Len(t, req.Items, 2)
	require.Equal(t, "111", req.Items[1].IMEI)
	require.Equal(t, "upi", req.PaymentMethod)
	require.True(t, req.TransportCharge.Equal(decimal.NewFromInt(40)))

	require.Nil(t, c.SaleRequest(0, "cash", pricing.Charges{}, nil).Shop)

	c.Clear()
	require.True(t, c.Empty())
}
