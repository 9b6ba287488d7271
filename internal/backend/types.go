package backend

import "github.com/shopspring/decimal"

// IMEIStatusAvailable marks a serial number that can still be sold.
const IMEIStatusAvailable = "available"

// Product is the catalog entry returned by the inventory API.
type Product struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Category      string `json:"category_name"`
	Brand         string `json:"brand_name"`
	IsIMEITracked bool   `json:"is_imei_tracked"`
}

// StockBatch is a purchased lot of a product.
type StockBatch struct {
	ID                   int64           `json:"id"`
	Product              int64           `json:"product"`
	ProductName          string          `json:"product_name"`
	Condition            string          `json:"condition"`
	SellingPrice         decimal.Decimal `json:"selling_price"`
	GSTRate              decimal.Decimal `json:"gst_rate"`
	Quantity             int             `json:"quantity"`
	AvailableQuantity    int             `json:"available_quantity"`
	ProductIsIMEITracked bool            `json:"product_is_imei_tracked"`
	IMEIList             []string        `json:"imei_list"`
}

// SubStock is the part of a batch allocated to one shop.
type SubStock struct {
	ID         int64 `json:"id"`
	StockBatch int64 `json:"stock_batch"`
	Shop       int64 `json:"shop"`
	Quantity   int   `json:"quantity"`
}

// IMEIRecord tracks a single serialized unit of a batch.
type IMEIRecord struct {
	IMEI   string `json:"imei"`
	Status string `json:"status"`
	Shop   *int64 `json:"shop,omitempty"`
}

// SaleItem is one line of a sale submission.
type SaleItem struct {
	StockBatch int64  `json:"stock_batch"`
	Quantity   int    `json:"quantity"`
	IMEI       string `json:"imei,omitempty"`
}

// SaleRequest is the payload accepted by the sales endpoint.
type SaleRequest struct {
	Shop            *int64          `json:"shop"`
	Items           []SaleItem      `json:"items"`
	PaymentMethod   string          `json:"payment_method"`
	Discount        decimal.Decimal `json:"discount"`
	TransportCharge decimal.Decimal `json:"transport_charge"`
	LoadingCharge   decimal.Decimal `json:"loading_charge"`
	Customer        *int64          `json:"customer,omitempty"`
}

// Sale is the subset of the created sale the gateway reports back.
type Sale struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// Distribution allocates part of a new batch to one shop.
type Distribution struct {
	Shop     int64    `json:"shop"`
	Quantity int      `json:"quantity"`
	IMEIList []string `json:"imei_list"`
}

// StockBatchRequest creates or updates a batch together with its distribution.
type StockBatchRequest struct {
	Product       int64           `json:"product"`
	Supplier      *int64          `json:"supplier,omitempty"`
	Condition     string          `json:"condition"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	GSTRate       decimal.Decimal `json:"gst_rate"`
	Quantity      int             `json:"quantity"`
	IMEIList      []string        `json:"imei_list"`
	Distributions []Distribution  `json:"distributions"`
}

// BatchFilter narrows stock batch listings.
type BatchFilter struct {
	Product int64
	Search  string
}

// SubStockFilter narrows sub-stock listings.
type SubStockFilter struct {
	StockBatch int64
	Shop       int64
}
