// Package distribution validates how a purchased batch is split across shops
// before the split is sent to the inventory backend.
package distribution

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is a distribution row as submitted, before validation.
type Row struct {
	ShopID   string   `json:"shop"`
	Quantity string   `json:"quantity"`
	IMEIList []string `json:"imei_list"`
}

// RowKind tags a raw row by how much of it is filled in.
type RowKind int

const (
	// RowEmpty has neither shop nor quantity and is ignored.
	RowEmpty RowKind = iota
	// RowPartial has exactly one of shop and quantity.
	RowPartial
	// RowComplete has both.
	RowComplete
)

// Classify reports the kind of a raw row.
func Classify(r Row) RowKind {
	hasShop := strings.TrimSpace(r.ShopID) != ""
	hasQty := strings.TrimSpace(r.Quantity) != ""
	switch {
	case hasShop && hasQty:
		return RowComplete
	case hasShop || hasQty:
		return RowPartial
	default:
		return RowEmpty
	}
}

// Allocation is a normalized complete row.
type Allocation struct {
	ShopID   int64    `json:"shop"`
	Quantity int      `json:"quantity"`
	IMEIList []string `json:"imei_list"`
}

// Input is everything needed to reconcile a distribution.
type Input struct {
	PurchasedQuantity int
	IMEITracked       bool
	MasterIMEIs       []string
	Rows              []Row
}

// Result is a validated distribution ready to submit.
type Result struct {
	Distributions []Allocation `json:"distributions"`
	MasterIMEIs   []string     `json:"imei_list"`
	Adopted       bool         `json:"adopted"`
}

// Reconcile validates in. The first failing check is returned and nothing is
// applied partially.
func Reconcile(in Input) (Result, error) {
	allocs, err := normalize(in.Rows)
	if err != nil {
		return Result{}, err
	}

	allocated := 0
	for _, a := range allocs {
		allocated += a.Quantity
	}
	if allocated > in.PurchasedQuantity {
		return Result{}, fmt.Errorf("%w: %d allocated, %d purchased", ErrOverAllocated, allocated, in.PurchasedQuantity)
	}

	shops := make(map[int64]int, len(allocs))
	for i, a := range allocs {
		if first, ok := shops[a.ShopID]; ok {
			return Result{}, fmt.Errorf("%w: shop %d in rows %d and %d", ErrDuplicateShop, a.ShopID, first+1, i+1)
		}
		shops[a.ShopID] = i
	}

	for i, a := range allocs {
		if len(a.IMEIList) > 0 && len(a.IMEIList) != a.Quantity {
			return Result{}, &RowError{
				Row: i + 1,
				Err: ErrIMEICountMismatch,
				msg: fmt.Sprintf("%d imeis for quantity %d", len(a.IMEIList), a.Quantity),
			}
		}
	}

	var distributed []string
	for _, a := range allocs {
		distributed = append(distributed, a.IMEIList...)
	}
	if !in.IMEITracked && len(distributed) > 0 {
		return Result{}, ErrIMEINotTracked
	}

	seen := make(map[string]struct{}, len(distributed))
	for _, imei := range distributed {
		if _, ok := seen[imei]; ok {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateIMEI, imei)
		}
		seen[imei] = struct{}{}
	}

	master := cleanIMEIs(in.MasterIMEIs)
	adopted := false
	if len(master) == 0 && len(distributed) > 0 {
		if len(distributed) != in.PurchasedQuantity {
			return Result{}, ErrMasterIMEIsRequired
		}
		master = append([]string(nil), distributed...)
		adopted = true
	}

	if in.IMEITracked && len(master) > 0 && len(master) != in.PurchasedQuantity {
		return Result{}, fmt.Errorf("%w: %d imeis for %d units", ErrMasterIMEICount, len(master), in.PurchasedQuantity)
	}

	inMaster := make(map[string]struct{}, len(master))
	for _, imei := range master {
		inMaster[imei] = struct{}{}
	}
	var missing []string
	for _, imei := range distributed {
		if _, ok := inMaster[imei]; !ok {
			missing = append(missing, imei)
		}
	}
	if len(missing) > 0 {
		return Result{}, &MissingIMEIsError{Missing: missing}
	}

	if allocs == nil {
		allocs = []Allocation{}
	}
	if master == nil {
		master = []string{}
	}
	return Result{Distributions: allocs, MasterIMEIs: master, Adopted: adopted}, nil
}

// normalize drops empty rows and converts complete ones. Row numbers in
// errors refer to the submitted rows.
func normalize(rows []Row) ([]Allocation, error) {
	for i, r := range rows {
		if Classify(r) == RowPartial {
			return nil, &RowError{Row: i + 1, Err: ErrIncompleteRow}
		}
	}
	var allocs []Allocation
	for i, r := range rows {
		if Classify(r) == RowEmpty {
			continue
		}
		shop, err := strconv.ParseInt(strings.TrimSpace(r.ShopID), 10, 64)
		if err != nil || shop <= 0 {
			return nil, &RowError{Row: i + 1, Err: ErrInvalidRow, msg: fmt.Sprintf("invalid shop %q", r.ShopID)}
		}
		qty, err := strconv.Atoi(strings.TrimSpace(r.Quantity))
		if err != nil || qty <= 0 {
			return nil, &RowError{Row: i + 1, Err: ErrInvalidRow, msg: fmt.Sprintf("invalid quantity %q", r.Quantity)}
		}
		imeis := cleanIMEIs(r.IMEIList)
		if imeis == nil {
			imeis = []string{}
		}
		allocs = append(allocs, Allocation{ShopID: shop, Quantity: qty, IMEIList: imeis})
	}
	return allocs, nil
}

func cleanIMEIs(in []string) []string {
	var out []string
	for _, v := range in {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
