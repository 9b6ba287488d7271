package distribution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func row(shop, qty string, imeis ...string) Row {
	return Row{ShopID: shop, Quantity: qty, IMEIList: imeis}
}

func TestClassify(t *testing.T) {
	require.Equal(t, RowEmpty, Classify(row("", " ")))
	require.Equal(t, RowPartial, Classify(row("1", "")))
	require.Equal(t, RowPartial, Classify(row("", "2")))
	require.Equal(t, RowComplete, Classify(row("1", "2")))
}

func TestReconcileDropsEmptyRowsAndNormalizes(t *testing.T) {
	res, err := Reconcile(Input{
		PurchasedQuantity: 5,
		Rows:              []Row{row("", ""), row(" 2 ", "3"), row("", "")},
	})
	require.NoError(t, err)
	require.Equal(t, []Allocation{{ShopID: 2, Quantity: 3, IMEIList: []string{}}}, res.Distributions)
	require.Empty(t, res.MasterIMEIs)
	require.False(t, res.Adopted)
}

func TestReconcileRejectsPartialRow(t *testing.T) {
	_, err := Reconcile(Input{PurchasedQuantity: 5, Rows: []Row{row("1", "2"), row("3", "")}})
	require.ErrorIs(t, err, ErrIncompleteRow)
	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	require.Equal(t, 2, rowErr.Row)
	require.Equal(t, ViolationIncompleteness, Category(err))
}

func TestReconcileRejectsInvalidRow(t *testing.T) {
	for _, r := range []Row{row("x", "1"), row("1", "0"), row("1", "-2"), row("0", "1"), row("1", "1.5")} {
		_, err := Reconcile(Input{PurchasedQuantity: 5, Rows: []Row{r}})
		require.ErrorIs(t, err, ErrInvalidRow, "row %+v", r)
	}
}

func TestReconcileConservation(t *testing.T) {
	_, err := Reconcile(Input{PurchasedQuantity: 10, Rows: []Row{row("1", "6"), row("2", "5")}})
	require.ErrorIs(t, err, ErrOverAllocated)
	require.Contains(t, err.Error(), "11")
	require.Contains(t, err.Error(), "10")
	require.Equal(t, ViolationConservation, Category(err))

	res, err := Reconcile(Input{PurchasedQuantity: 11, Rows: []Row{row("1", "6"), row("2", "5")}})
	require.NoError(t, err)
	require.Len(t, res.Distributions, 2)
}

func TestReconcileDuplicateShop(t *testing.T) {
	_, err := Reconcile(Input{PurchasedQuantity: 10, Rows: []Row{row("1", "2"), row("1", "3")}})
	require.ErrorIs(t, err, ErrDuplicateShop)
	require.Equal(t, ViolationDuplicate, Category(err))
}

func TestReconcileIMEIRowMismatch(t *testing.T) {
	_, err := Reconcile(Input{
		PurchasedQuantity: 10,
		IMEITracked:       true,
		Rows:              []Row{row("1", "2", "a", "b"), row("2", "2", "c", "d", "e")},
	})
	require.ErrorIs(t, err, ErrIMEICountMismatch)
	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	require.Equal(t, 2, rowErr.Row)
}

func TestReconcileIMEIsOnUntrackedProduct(t *testing.T) {
	_, err := Reconcile(Input{PurchasedQuantity: 2, Rows: []Row{row("1", "1", "a")}})
	require.ErrorIs(t, err, ErrIMEINotTracked)
	require.Equal(t, ViolationConsistency, Category(err))
}

func TestReconcileDuplicateIMEIAcrossRows(t *testing.T) {
	_, err := Reconcile(Input{
		PurchasedQuantity: 4,
		IMEITracked:       true,
		MasterIMEIs:       []string{"a", "b", "c", "d"},
		Rows:              []Row{row("1", "2", "a", "b"), row("2", "2", "b", "c")},
	})
	require.ErrorIs(t, err, ErrDuplicateIMEI)
}

func TestReconcileAdoptsMasterList(t *testing.T) {
	res, err := Reconcile(Input{
		PurchasedQuantity: 4,
		IMEITracked:       true,
		Rows:              []Row{row("1", "2", "a", "b"), row("2", "2", "c", "d")},
	})
	require.NoError(t, err)
	require.True(t, res.Adopted)
	require.Equal(t, []string{"a", "b", "c", "d"}, res.MasterIMEIs)
}

func TestReconcileRequiresMasterWhenUnitsStayInMainStock(t *testing.T) {
	_, err := Reconcile(Input{
		PurchasedQuantity: 5,
		IMEITracked:       true,
		Rows:              []Row{row("1", "2", "a", "b")},
	})
	require.ErrorIs(t, err, ErrMasterIMEIsRequired)
	require.EqualError(t, err, "master IMEI list is required when some IMEIs stay in main stock")
}

func TestReconcileMasterCount(t *testing.T) {
	_, err := Reconcile(Input{
		PurchasedQuantity: 3,
		IMEITracked:       true,
		MasterIMEIs:       []string{"a", "b", " ", ""},
		Rows:              []Row{row("1", "1", "a")},
	})
	require.ErrorIs(t, err, ErrMasterIMEICount)
	require.Equal(t, ViolationConservation, Category(err))
}

func TestReconcileMasterSubset(t *testing.T) {
	_, err := Reconcile(Input{
		PurchasedQuantity: 3,
		IMEITracked:       true,
		MasterIMEIs:       []string{"a", "b", "c"},
		Rows:              []Row{row("1", "2", "a", "d")},
	})
	var missing *MissingIMEIsError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{"d"}, missing.Missing)
	require.ErrorIs(t, err, ErrIMEINotInMaster)
	require.Equal(t, ViolationConsistency, Category(err))
}

func TestReconcileFirstFailureWins(t *testing.T) {
	// Over-allocation is checked before duplicate shops and IMEI counts.
	_, err := Reconcile(Input{
		PurchasedQuantity: 2,
		IMEITracked:       true,
		Rows:              []Row{row("1", "2", "a"), row("1", "2")},
	})
	require.ErrorIs(t, err, ErrOverAllocated)
}

func TestReconcileTrimsIMEIs(t *testing.T) {
	res, err := Reconcile(Input{
		PurchasedQuantity: 2,
		IMEITracked:       true,
		MasterIMEIs:       []string{" a ", "b"},
		Rows:              []Row{row("1", "2", "a ", "", " b")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, res.Distributions[0].IMEIList)
	require.Equal(t, []string{"a", "b"}, res.MasterIMEIs)
}

func TestCategoryUnknown(t *testing.T) {
	require.Equal(t, ViolationNone, Category(nil))
	require.Equal(t, ViolationNone, Category(errors.New("boom")))
}
