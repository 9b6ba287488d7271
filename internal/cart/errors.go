package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrLineNotFound is returned when no line matches the batch (and IMEI).
	ErrLineNotFound = errors.New("cart line not found")
	// ErrOutOfStock rejects adds for batches with nothing available.
	ErrOutOfStock = errors.New("batch is out of stock")
	// ErrExceedsAvailable is wrapped by CapacityError.
	ErrExceedsAvailable = errors.New("quantity exceeds available stock")
	// ErrIMEIRequired is returned when a serialized batch is added or removed without an IMEI.
	ErrIMEIRequired = errors.New("imei is required for this product")
	// ErrIMEINotTracked is returned when an IMEI is given for a batch that is not serialized.
	ErrIMEINotTracked = errors.New("product is not imei tracked")
	// ErrDuplicateIMEI rejects a second line for the same unit.
	ErrDuplicateIMEI = errors.New("duplicate IMEI in cart")
	// ErrIMEIUnavailable is returned when the unit is unknown or already sold.
	ErrIMEIUnavailable = errors.New("imei is not available")
	// ErrQuantityFixed is returned when changing the quantity of an IMEI line.
	ErrQuantityFixed = errors.New("quantity of an imei line is fixed at 1")
	// ErrEmptyCart blocks checkout of a cart without lines.
	ErrEmptyCart = errors.New("cart is empty")
)

// CapacityError reports a quantity above the stock ceiling of a batch.
type CapacityError struct {
	BatchID   int64
	Requested int
	Ceiling   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("only %d available for batch %d (requested %d)", e.Ceiling, e.BatchID, e.Requested)
}

func (e *CapacityError) Unwrap() error { return ErrExceedsAvailable }
