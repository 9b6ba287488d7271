package distribution

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompleteRow is returned when a row has only one of shop and quantity.
	ErrIncompleteRow = errors.New("complete all distribution rows or remove them")
	// ErrInvalidRow is returned when a row's shop or quantity is not a positive integer.
	ErrInvalidRow = errors.New("distribution row has an invalid shop or quantity")
	// ErrOverAllocated is returned when rows allocate more than was purchased.
	ErrOverAllocated = errors.New("distributed quantity exceeds purchased quantity")
	// ErrDuplicateShop is returned when two rows target the same shop.
	ErrDuplicateShop = errors.New("each shop can appear only once in the distribution")
	// ErrIMEICountMismatch is returned when a row's IMEI count differs from its quantity.
	ErrIMEICountMismatch = errors.New("imei count does not match row quantity")
	// ErrIMEINotTracked is returned when IMEIs are given for a product without serial tracking.
	ErrIMEINotTracked = errors.New("product is not imei tracked")
	// ErrDuplicateIMEI is returned when one IMEI appears in more than one place.
	ErrDuplicateIMEI = errors.New("duplicate imei in distribution")
	// ErrMasterIMEIsRequired is returned when some units stay in main stock without a master list.
	ErrMasterIMEIsRequired = errors.New("master IMEI list is required when some IMEIs stay in main stock")
	// ErrMasterIMEICount is returned when the master list size differs from the purchased quantity.
	ErrMasterIMEICount = errors.New("master imei count does not match purchased quantity")
	// ErrIMEINotInMaster is wrapped by MissingIMEIsError.
	ErrIMEINotInMaster = errors.New("distributed imeis missing from master list")
)

// Violation classifies why a distribution was rejected. ViolationCapacity
// belongs to stock ceilings enforced by the cart; Reconcile never produces it.
type Violation string

const (
	ViolationNone           Violation = ""
	ViolationIncompleteness Violation = "incompleteness"
	ViolationConservation   Violation = "conservation"
	ViolationDuplicate      Violation = "duplicate"
	ViolationConsistency    Violation = "consistency"
	ViolationCapacity       Violation = "capacity"
)

// RowError attaches the 1-based row position to a row-level failure.
type RowError struct {
	Row int
	Err error
	msg string
}

func (e *RowError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.msg)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// MissingIMEIsError lists distributed IMEIs absent from the master list.
type MissingIMEIsError struct {
	Missing []string
}

func (e *MissingIMEIsError) Error() string {
	return fmt.Sprintf("imeis not in master list: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingIMEIsError) Unwrap() error { return ErrIMEINotInMaster }

// Category maps a reconciliation error onto the violation taxonomy.
func Category(err error) Violation {
	switch {
	case err == nil:
		return ViolationNone
	case errors.Is(err, ErrIncompleteRow), errors.Is(err, ErrInvalidRow), errors.Is(err, ErrMasterIMEIsRequired):
		return ViolationIncompleteness
	case errors.Is(err, ErrOverAllocated), errors.Is(err, ErrIMEICountMismatch), errors.Is(err, ErrMasterIMEICount):
		return ViolationConservation
	case errors.Is(err, ErrDuplicateShop), errors.Is(err, ErrDuplicateIMEI):
		return ViolationDuplicate
	case errors.Is(err, ErrIMEINotTracked), errors.Is(err, ErrIMEINotInMaster):
		return ViolationConsistency
	}
	return ViolationNone
}
