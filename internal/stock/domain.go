package stock

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// Location identifies one of the four stock buckets a product is held in.
type Location string

const (
	// LocationWarehouseA is the main ingredient store (ingredients_magasin).
	LocationWarehouseA Location = "WAREHOUSE_A"
	// LocationWarehouseB is the production-side ingredient store (ingredients_local).
	LocationWarehouseB Location = "WAREHOUSE_B"
	// LocationCounter holds finished goods on sale (comptoir).
	LocationCounter Location = "COUNTER"
	// LocationConsumables holds packaging and other consumables.
	LocationConsumables Location = "CONSUMABLES"
)

// Locations lists every location in storage column order.
var Locations = []Location{LocationWarehouseA, LocationWarehouseB, LocationCounter, LocationConsumables}

var legacyLocations = map[string]Location{
	"ingredients_magasin": LocationWarehouseA,
	"ingredients_local":   LocationWarehouseB,
	"comptoir":            LocationCounter,
	"consommables":        LocationConsumables,
}

// ParseLocation accepts canonical names and the legacy lowercase aliases.
func ParseLocation(s string) (Location, error) {
	candidate := Location(strings.ToUpper(strings.TrimSpace(s)))
	if candidate.Valid() {
		return candidate, nil
	}
	if loc, ok := legacyLocations[strings.ToLower(strings.TrimSpace(s))]; ok {
		return loc, nil
	}
	return "", shared.E(shared.KindValidation, "stock.location", s, "unknown location")
}

// Valid reports whether l is one of the four locations.
func (l Location) Valid() bool {
	for _, known := range Locations {
		if l == known {
			return true
		}
	}
	return false
}

// ProductStock is the valuation row of one product.
type ProductStock struct {
	ProductID  int64
	Quantities map[Location]decimal.Decimal
	Values     map[Location]decimal.Decimal
	UnitCost   decimal.Decimal
	Version    int64
}

// NewProductStock returns an empty row for productID.
func NewProductStock(productID int64) ProductStock {
	ps := ProductStock{
		ProductID:  productID,
		Quantities: make(map[Location]decimal.Decimal, len(Locations)),
		Values:     make(map[Location]decimal.Decimal, len(Locations)),
	}
	for _, loc := range Locations {
		ps.Quantities[loc] = decimal.Zero
		ps.Values[loc] = decimal.Zero
	}
	return ps
}

// Quantity returns the quantity held at loc.
func (ps ProductStock) Quantity(loc Location) decimal.Decimal {
	return ps.Quantities[loc]
}

// Value returns the monetary value held at loc.
func (ps ProductStock) Value(loc Location) decimal.Decimal {
	return ps.Values[loc]
}

// TotalQuantity sums quantities over all locations.
func (ps ProductStock) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, loc := range Locations {
		total = total.Add(ps.Quantities[loc])
	}
	return total
}

// TotalValue sums values over all locations.
func (ps ProductStock) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, loc := range Locations {
		total = total.Add(ps.Values[loc])
	}
	return total
}

func (ps ProductStock) clone() ProductStock {
	out := ps
	out.Quantities = make(map[Location]decimal.Decimal, len(Locations))
	out.Values = make(map[Location]decimal.Decimal, len(Locations))
	for _, loc := range Locations {
		out.Quantities[loc] = ps.Quantities[loc]
		out.Values[loc] = ps.Values[loc]
	}
	return out
}

// Movement is a signed quantity change at one location.
type Movement struct {
	ProductID        int64
	Location         Location
	QuantityDelta    decimal.Decimal
	UnitCostOverride *decimal.Decimal
}

// MovementResult reports the valuation after a movement.
type MovementResult struct {
	ProductID        int64
	Location         Location
	UnitCost         decimal.Decimal
	ValueDelta       decimal.Decimal
	LocationQuantity decimal.Decimal
	LocationValue    decimal.Decimal
	TotalQuantity    decimal.Decimal
	TotalValue       decimal.Decimal
}

// Drift describes a product whose stored unit cost disagrees with value over quantity.
type Drift struct {
	ProductID     int64
	TotalQuantity decimal.Decimal
	TotalValue    decimal.Decimal
	UnitCost      decimal.Decimal
	ExpectedValue decimal.Decimal
	Reason        string
}
