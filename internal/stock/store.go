package stock

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// TxRepository loads and saves valuation rows inside a business transaction.
type TxRepository interface {
	// GetForUpdate locks the row of productID, creating an empty one when absent.
	GetForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	// Save writes ps if its version is still current and bumps the version.
	Save(ctx context.Context, ps ProductStock) error
	// ProductIDs lists every product that has a valuation row.
	ProductIDs(ctx context.Context) ([]int64, error)
	// ClaimReference records ref as applied and reports false when it already was.
	ClaimReference(ctx context.Context, ref string) (bool, error)
}

// Store applies weighted-average stock movements.
type Store struct{}

// NewStore constructs Store.
func NewStore() *Store {
	return &Store{}
}

// ApplyMovement locks the product row, applies m and persists the new valuation.
func (s *Store) ApplyMovement(ctx context.Context, tx TxRepository, m Movement) (MovementResult, error) {
	if m.ProductID <= 0 {
		return MovementResult{}, shared.E(shared.KindValidation, "stock.apply", "", "product id required")
	}
	current, err := tx.GetForUpdate(ctx, m.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	next, result, err := Apply(current, m)
	if err != nil {
		return MovementResult{}, err
	}
	if err := tx.Save(ctx, next); err != nil {
		return MovementResult{}, err
	}
	return result, nil
}

// Transfer moves qty of a product between two locations at the current unit cost.
func (s *Store) Transfer(ctx context.Context, tx TxRepository, productID int64, from, to Location, qty decimal.Decimal) (MovementResult, MovementResult, error) {
	const op = "stock.transfer"
	if from == to {
		return MovementResult{}, MovementResult{}, shared.E(shared.KindValidation, op, string(from), "source and destination must differ")
	}
	if !qty.IsPositive() {
		return MovementResult{}, MovementResult{}, shared.E(shared.KindValidation, op, string(from), "quantity must be positive")
	}
	current, err := tx.GetForUpdate(ctx, productID)
	if err != nil {
		return MovementResult{}, MovementResult{}, err
	}
	cost := current.UnitCost
	afterOut, out, err := Apply(current, Movement{ProductID: productID, Location: from, QuantityDelta: qty.Neg()})
	if err != nil {
		return MovementResult{}, MovementResult{}, err
	}
	afterIn, in, err := Apply(afterOut, Movement{ProductID: productID, Location: to, QuantityDelta: qty, UnitCostOverride: &cost})
	if err != nil {
		return MovementResult{}, MovementResult{}, err
	}
	if err := tx.Save(ctx, afterIn); err != nil {
		return MovementResult{}, MovementResult{}, err
	}
	return out, in, nil
}

// Snapshot locks and returns the valuation of productID.
func (s *Store) Snapshot(ctx context.Context, tx TxRepository, productID int64) (ProductStock, error) {
	return tx.GetForUpdate(ctx, productID)
}
