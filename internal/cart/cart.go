package cart

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Line is one cart entry. Lines are identified by (BatchID, IMEI); a line
// with an IMEI always represents exactly one unit.
type Line struct {
	BatchID           int64           `json:"batch_id"`
	ProductID         int64           `json:"product_id"`
	ProductName       string          `json:"product_name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	GSTRate           decimal.Decimal `json:"gst_rate"`
	Quantity          int             `json:"quantity"`
	IMEI              string          `json:"imei,omitempty"`
	AvailableQuantity int             `json:"available_quantity"`
}

// Cart is an ordered list of lines owned by one user.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ShopID    int64     `json:"shop_id,omitempty"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Batch holds the add-time attributes of a stock batch.
type Batch struct {
	ID           int64
	ProductID    int64
	ProductName  string
	SellingPrice decimal.Decimal
	GSTRate      decimal.Decimal
	IMEITracked  bool
}

// BatchFromBackend converts an inventory batch into its cart form.
func BatchFromBackend(b backend.StockBatch) Batch {
	return Batch{
		ID:           b.ID,
		ProductID:    b.Product,
		ProductName:  b.ProductName,
		SellingPrice: b.SellingPrice,
		GSTRate:      b.GSTRate,
		IMEITracked:  b.ProductIsIMEITracked,
	}
}

// AddLine puts one unit of batch into the cart. availableQty is the stock
// ceiling observed at add-time. Adding a non-serialized batch that is already
// present increments the existing line instead.
func (c *Cart) AddLine(batch Batch, availableQty int, imei string) (Line, error) {
	imei = strings.TrimSpace(imei)
	if availableQty <= 0 {
		return Line{}, ErrOutOfStock
	}
	if batch.IMEITracked && imei == "" {
		return Line{}, ErrIMEIRequired
	}
	if !batch.IMEITracked && imei != "" {
		return Line{}, ErrIMEINotTracked
	}

	if imei == "" {
		if idx := c.indexOf(batch.ID, ""); idx >= 0 {
			previous := c.Lines[idx].AvailableQuantity
			c.Lines[idx].AvailableQuantity = availableQty
			if err := c.SetQuantity(batch.ID, c.Lines[idx].Quantity+1); err != nil {
				c.Lines[idx].AvailableQuantity = previous
				return Line{}, err
			}
			return c.Lines[idx], nil
		}
	} else {
		if c.indexOf(batch.ID, imei) >= 0 {
			return Line{}, ErrDuplicateIMEI
		}
		if units := c.unitsOf(batch.ID); units >= availableQty {
			return Line{}, &CapacityError{BatchID: batch.ID, Requested: units + 1, Ceiling: availableQty}
		}
	}

	line := Line{
		BatchID:           batch.ID,
		ProductID:         batch.ProductID,
		ProductName:       batch.ProductName,
		UnitPrice:         batch.SellingPrice,
		GSTRate:           batch.GSTRate,
		Quantity:          1,
		IMEI:              imei,
		AvailableQuantity: availableQty,
	}
	c.Lines = append(c.Lines, line)
	return line, nil
}

// SetQuantity replaces the quantity of the non-serialized line for batchID.
// Quantities below 1 remove the line; quantities above the ceiling are
// rejected with a *CapacityError and leave the line unchanged. Serialized
// lines only accept a quantity below 1, which removes the batch's single
// IMEI line; with several IMEIs the caller must name one.
func (c *Cart) SetQuantity(batchID int64, quantity int) error {
	idx := c.indexOf(batchID, "")
	if idx < 0 {
		switch units := c.unitsOf(batchID); {
		case units == 0:
			return ErrLineNotFound
		case quantity >= 1:
			return ErrQuantityFixed
		case units > 1:
			return ErrIMEIRequired
		}
		for i, l := range c.Lines {
			if l.BatchID == batchID && l.IMEI != "" {
				c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
				return nil
			}
		}
		return ErrLineNotFound
	}
	line := &c.Lines[idx]
	if quantity > line.AvailableQuantity {
		return &CapacityError{BatchID: batchID, Requested: quantity, Ceiling: line.AvailableQuantity}
	}
	if quantity < 1 {
		return c.RemoveLine(batchID, "")
	}
	line.Quantity = quantity
	return nil
}

// RemoveLine deletes the line identified by batchID and imei. Serialized
// lines must be addressed by their IMEI.
func (c *Cart) RemoveLine(batchID int64, imei string) error {
	imei = strings.TrimSpace(imei)
	idx := c.indexOf(batchID, imei)
	if idx < 0 {
		if imei == "" && c.unitsOf(batchID) > 0 {
			return ErrIMEIRequired
		}
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Lines = nil
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.Lines) == 0 }

// PricingLines projects the cart onto the pricing engine's input.
func (c *Cart) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, pricing.Line{UnitPrice: l.UnitPrice, GSTRate: l.GSTRate, Quantity: l.Quantity})
	}
	return lines
}

// Totals recomputes the cart summary from its current lines.
func (c *Cart) Totals(charges pricing.Charges) pricing.Summary {
	return pricing.Compute(c.PricingLines(), charges)
}

// UnitsByBatch sums the units held per batch across all lines.
func (c *Cart) UnitsByBatch() map[int64]int {
	units := make(map[int64]int, len(c.Lines))
	for _, l := range c.Lines {
		units[l.BatchID] += l.Quantity
	}
	return units
}

// SaleRequest builds the sale submission for the cart. A zero shopID sells
// from main stock.
func (c *Cart) SaleRequest(shopID int64, paymentMethod string, charges pricing.Charges, customer *int64) backend.SaleRequest {
	items := make([]backend.SaleItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, backend.SaleItem{StockBatch: l.BatchID, Quantity: l.Quantity, IMEI: l.IMEI})
	}
	req := backend.SaleRequest{
		Items:           items,
		PaymentMethod:   paymentMethod,
		Discount:        charges.Discount,
		TransportCharge: charges.Transport,
		LoadingCharge:   charges.Loading,
		Customer:        customer,
	}
	if shopID > 0 {
		shop := shopID
		req.Shop = &shop
	}
	return req
}

func (c *Cart) indexOf(batchID int64, imei string) int {
	for i, l := range c.Lines {
		if l.BatchID == batchID && l.IMEI == imei {
			return i
		}
	}
	return -1
}

func (c *Cart) unitsOf(batchID int64) int {
	n := 0
	for _, l := range c.Lines {
		if l.BatchID == batchID && l.IMEI != "" {
			n++
		}
	}
	return n
}
