package consumables

import "sort"

// Allocate picks packaging for quantity pieces. Ranges are walked from the largest
// capacity down, taking whole boxes; a leftover takes one box of the smallest range
// that holds it, or as many of the largest range as needed when none does.
// Ranges without a positive capacity yield no allocation.
func Allocate(ranges []Range, quantity int64) []Allocation {
	if quantity <= 0 || len(ranges) == 0 {
		return nil
	}
	byMaxDesc := append([]Range(nil), ranges...)
	sort.SliceStable(byMaxDesc, func(i, j int) bool { return byMaxDesc[i].MaxQty > byMaxDesc[j].MaxQty })

	var out []Allocation
	remaining := quantity
	for _, r := range byMaxDesc {
		if remaining <= 0 {
			break
		}
		if r.MaxQty <= 0 || remaining < r.MinQty {
			continue
		}
		if boxes := remaining / r.MaxQty; boxes > 0 {
			out = appendMerged(out, r, boxes)
			remaining -= boxes * r.MaxQty
		}
	}
	if remaining > 0 {
		if tail, ok := smallestCovering(byMaxDesc, remaining); ok {
			out = appendMerged(out, tail, 1)
		} else {
			largest := byMaxDesc[0]
			if largest.MaxQty <= 0 {
				return nil
			}
			out = appendMerged(out, largest, ceilDiv(remaining, largest.MaxQty))
		}
	}
	return out
}

// SelectRange returns the single range holding quantity in one box, or the largest
// range with the number of boxes it takes.
func SelectRange(ranges []Range, quantity int64) (Range, int64, bool) {
	if quantity <= 0 || len(ranges) == 0 {
		return Range{}, 0, false
	}
	var largest Range
	for _, r := range ranges {
		if r.MinQty <= quantity && quantity <= r.MaxQty {
			return r, 1, true
		}
		if r.MaxQty > largest.MaxQty {
			largest = r
		}
	}
	if largest.MaxQty <= 0 {
		return Range{}, 0, false
	}
	return largest, ceilDiv(quantity, largest.MaxQty), true
}

func smallestCovering(byMaxDesc []Range, remaining int64) (Range, bool) {
	for i := len(byMaxDesc) - 1; i >= 0; i-- {
		if byMaxDesc[i].MaxQty >= remaining {
			return byMaxDesc[i], true
		}
	}
	return Range{}, false
}

// appendMerged adds boxes of r, folding them into an earlier allocation of the
// same range. Ranges sharing a packaging product stay apart since their
// QtyPerUnit may differ.
func appendMerged(out []Allocation, r Range, boxes int64) []Allocation {
	for i := range out {
		if out[i].RangeID == r.ID {
			out[i].Count += boxes
			return out
		}
	}
	return append(out, Allocation{PackagingProductID: r.PackagingProductID, RangeID: r.ID, Count: boxes, QtyPerUnit: r.QtyPerUnit})
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
