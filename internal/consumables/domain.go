package consumables

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// Category maps a finished-product category to packaging ranges.
type Category struct {
	ID                int64
	Name              string
	Description       string
	ProductCategoryID int64
	Active            bool
	Ranges            []Range
}

// Range selects a packaging product for quantities in [MinQty, MaxQty].
type Range struct {
	ID                 int64
	CategoryID         int64
	MinQty             int64
	MaxQty             int64
	PackagingProductID int64
	QtyPerUnit         decimal.Decimal
	Notes              string
}

// Allocation is a number of boxes of one packaging product.
type Allocation struct {
	PackagingProductID int64
	RangeID            int64
	Count              int64
	QtyPerUnit         decimal.Decimal
}

// Units returns the packaging units consumed by the allocation.
func (a Allocation) Units() decimal.Decimal {
	return decimal.NewFromInt(a.Count).Mul(a.QtyPerUnit)
}

// ValidateRanges checks bounds and rejects overlapping ranges.
func ValidateRanges(ranges []Range) error {
	const op = "consumables.validate_ranges"
	sorted := append([]Range(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinQty < sorted[j].MinQty })
	for i, r := range sorted {
		switch {
		case r.MinQty < 1:
			return shared.E(shared.KindValidation, op, "", "range %d-%d: min must be at least 1", r.MinQty, r.MaxQty)
		case r.MaxQty < r.MinQty:
			return shared.E(shared.KindValidation, op, "", "range %d-%d: max below min", r.MinQty, r.MaxQty)
		case !r.QtyPerUnit.IsPositive():
			return shared.E(shared.KindValidation, op, "", "range %d-%d: quantity per unit must be positive", r.MinQty, r.MaxQty)
		case r.PackagingProductID <= 0:
			return shared.E(shared.KindValidation, op, "", "range %d-%d: packaging product required", r.MinQty, r.MaxQty)
		}
		if i > 0 {
			prev := sorted[i-1]
			if r.MinQty <= prev.MaxQty {
				return shared.E(shared.KindValidation, op, "", "range %d-%d overlaps %d-%d", r.MinQty, r.MaxQty, prev.MinQty, prev.MaxQty)
			}
		}
	}
	return nil
}
