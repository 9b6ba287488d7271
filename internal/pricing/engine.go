package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line describes a cart line priced tax-inclusive.
type Line struct {
	UnitPrice decimal.Decimal
	GSTRate   decimal.Decimal
	Quantity  int
}

// Charges groups the order-level adjustments applied after tax.
type Charges struct {
	Discount  decimal.Decimal
	Transport decimal.Decimal
	Loading   decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	GST        decimal.Decimal `json:"gst"`
	Discount   decimal.Decimal `json:"discount"`
	Transport  decimal.Decimal `json:"transport_charge"`
	Loading    decimal.Decimal `json:"loading_charge"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// SplitInclusive separates a tax-inclusive amount into its taxable value and GST.
// The two parts always add back up to unitPrice*quantity.
func SplitInclusive(unitPrice decimal.Decimal, quantity int, gstRatePercent decimal.Decimal) (exTax, gst decimal.Decimal) {
	if quantity <= 0 {
		return decimal.Zero, decimal.Zero
	}
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if gstRatePercent.IsZero() {
		return gross, decimal.Zero
	}
	gst = gross.Mul(gstRatePercent).Div(hundred.Add(gstRatePercent))
	return gross.Sub(gst), gst
}

// Gross returns the tax-inclusive amount of the line.
func (l Line) Gross() decimal.Decimal {
	if l.Quantity <= 0 {
		return decimal.Zero
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Split applies SplitInclusive to the line.
func (l Line) Split() (exTax, gst decimal.Decimal) {
	return SplitInclusive(l.UnitPrice, l.Quantity, l.GSTRate)
}

// Subtotal sums the taxable value of every line.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		exTax, _ := l.Split()
		total = total.Add(exTax)
	}
	return total
}

// TotalGST sums the GST of every line.
func TotalGST(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		_, gst := l.Split()
		total = total.Add(gst)
	}
	return total
}

// GrandTotal returns subtotal + GST - discount + transport + loading.
// The result is not floored at zero; a discount larger than the rest yields a negative total.
func GrandTotal(lines []Line, charges Charges) decimal.Decimal {
	return Subtotal(lines).
		Add(TotalGST(lines)).
		Sub(charges.Discount).
		Add(charges.Transport).
		Add(charges.Loading)
}

// Compute calculates cart totals given the provided inputs.
func Compute(lines []Line, charges Charges) Summary {
	subtotal := decimal.Zero
	gst := decimal.Zero
	for _, l := range lines {
		ex, tax := l.Split()
		subtotal = subtotal.Add(ex)
		gst = gst.Add(tax)
	}
	return Summary{
		Subtotal:   subtotal,
		GST:        gst,
		Discount:   charges.Discount,
		Transport:  charges.Transport,
		Loading:    charges.Loading,
		GrandTotal: subtotal.Add(gst).Sub(charges.Discount).Add(charges.Transport).Add(charges.Loading),
	}
}

// Round returns a copy of the summary rounded for display.
func (s Summary) Round(places int32) Summary {
	return Summary{
		Subtotal:   s.Subtotal.Round(places),
		GST:        s.GST.Round(places),
		Discount:   s.Discount.Round(places),
		Transport:  s.Transport.Round(places),
		Loading:    s.Loading.Round(places),
		GrandTotal: s.GrandTotal.Round(places),
	}
}

// ParseAmount parses a decimal string, treating blank or malformed input as zero.
func ParseAmount(value string) decimal.Decimal {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return d
}
