package stock

import (
	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// unitCostPlaces is the precision of the blended unit cost column.
const unitCostPlaces = 6

var (
	// ValueTolerance bounds the rounding slack between stored values and quantity times unit cost.
	ValueTolerance  = decimal.New(5, -2)
	quantityEpsilon = decimal.New(1, -6)
)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Apply computes the valuation of ps after m. ps is not modified.
func Apply(ps ProductStock, m Movement) (ProductStock, MovementResult, error) {
	const op = "stock.apply"
	if !m.Location.Valid() {
		return ps, MovementResult{}, shared.E(shared.KindValidation, op, string(m.Location), "unknown location")
	}
	if m.QuantityDelta.IsZero() {
		return ps, MovementResult{}, shared.E(shared.KindValidation, op, string(m.Location), "quantity delta must not be zero")
	}
	if m.UnitCostOverride != nil && m.UnitCostOverride.IsNegative() {
		return ps, MovementResult{}, shared.E(shared.KindValidation, op, string(m.Location), "unit cost must not be negative")
	}

	next := ps.clone()
	oldTotal := ps.TotalValue()

	if m.QuantityDelta.IsPositive() {
		cost := ps.UnitCost
		if m.UnitCostOverride != nil {
			cost = *m.UnitCostOverride
		}
		added := round2(m.QuantityDelta.Mul(cost))
		next.Quantities[m.Location] = ps.Quantity(m.Location).Add(m.QuantityDelta)
		newTotal := oldTotal.Add(added)
		next.UnitCost = newTotal.DivRound(next.TotalQuantity(), unitCostPlaces)
		respread(&next, m.Location, newTotal)
	} else {
		out := m.QuantityDelta.Neg()
		available := ps.Quantity(m.Location)
		if out.Sub(available).GreaterThan(quantityEpsilon) {
			return ps, MovementResult{}, shared.E(shared.KindInsufficientStock, op, string(m.Location),
				"product %d: requested %s, available %s", ps.ProductID, out.String(), available.String())
		}
		remaining := available.Sub(out)
		if remaining.Abs().LessThanOrEqual(quantityEpsilon) {
			remaining = decimal.Zero
		}
		next.Quantities[m.Location] = remaining
		if remaining.IsZero() {
			next.Values[m.Location] = decimal.Zero
		} else {
			next.Values[m.Location] = round2(remaining.Mul(next.UnitCost))
		}
		if next.TotalQuantity().IsZero() {
			for _, loc := range Locations {
				next.Values[loc] = decimal.Zero
			}
		}
	}

	newTotal := next.TotalValue()
	return next, MovementResult{
		ProductID:        ps.ProductID,
		Location:         m.Location,
		UnitCost:         next.UnitCost,
		ValueDelta:       newTotal.Sub(oldTotal),
		LocationQuantity: next.Quantity(m.Location),
		LocationValue:    next.Value(m.Location),
		TotalQuantity:    next.TotalQuantity(),
		TotalValue:       newTotal,
	}, nil
}

// respread resets every location to quantity times unit cost and gives the rounding
// remainder to anchor, so the total stays exactly newTotal.
func respread(ps *ProductStock, anchor Location, newTotal decimal.Decimal) {
	others := decimal.Zero
	for _, loc := range Locations {
		if loc == anchor {
			continue
		}
		v := decimal.Zero
		if qty := ps.Quantities[loc]; qty.IsPositive() {
			v = round2(qty.Mul(ps.UnitCost))
		}
		ps.Values[loc] = v
		others = others.Add(v)
	}
	anchorValue := newTotal.Sub(others)
	if anchorValue.IsNegative() {
		anchorValue = decimal.Zero
	}
	ps.Values[anchor] = anchorValue
}

// CheckInvariant reports drift when unit cost times quantity strays from the stored value,
// or when an empty product still carries value.
func CheckInvariant(ps ProductStock) (Drift, bool) {
	qty := ps.TotalQuantity()
	value := ps.TotalValue()
	drift := Drift{ProductID: ps.ProductID, TotalQuantity: qty, TotalValue: value, UnitCost: ps.UnitCost}
	for _, loc := range Locations {
		if ps.Quantities[loc].IsNegative() {
			drift.Reason = "negative quantity at " + string(loc)
			return drift, false
		}
		if ps.Quantities[loc].IsZero() && !ps.Values[loc].IsZero() {
			drift.Reason = "value without quantity at " + string(loc)
			return drift, false
		}
	}
	if qty.IsZero() {
		if !value.IsZero() {
			drift.Reason = "value without quantity"
			return drift, false
		}
		return drift, true
	}
	drift.ExpectedValue = round2(qty.Mul(ps.UnitCost))
	if drift.ExpectedValue.Sub(value).Abs().GreaterThan(ValueTolerance) {
		drift.Reason = "unit cost does not match value over quantity"
		return drift, false
	}
	return drift, true
}
