package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

const selectColumns = `product_id,
  qty_warehouse_a, qty_warehouse_b, qty_counter, qty_consumables,
  value_warehouse_a, value_warehouse_b, value_counter, value_consumables,
  unit_cost, version`

// Repository reads valuation rows outside a business event.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the valuation store to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// Get returns the current row of productID without locking.
func (r *Repository) Get(ctx context.Context, productID int64) (ProductStock, error) {
	ps, err := scanStock(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM product_stocks WHERE product_id=$1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, shared.E(shared.KindNotFound, "stock.get", "", "product %d has no stock row", productID)
	}
	return ps, err
}

// ForEach streams every valuation row ordered by product.
func (r *Repository) ForEach(ctx context.Context, fn func(ProductStock) error) error {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM product_stocks ORDER BY product_id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		ps, err := scanStock(rows)
		if err != nil {
			return err
		}
		if err := fn(ps); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *txRepo) GetForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO product_stocks (product_id) VALUES ($1) ON CONFLICT (product_id) DO NOTHING`, productID); err != nil {
		return ProductStock{}, err
	}
	return scanStock(r.tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM product_stocks WHERE product_id=$1 FOR UPDATE`, productID))
}

func (r *txRepo) Save(ctx context.Context, ps ProductStock) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE product_stocks SET
  qty_warehouse_a=$3, qty_warehouse_b=$4, qty_counter=$5, qty_consumables=$6,
  value_warehouse_a=$7, value_warehouse_b=$8, value_counter=$9, value_consumables=$10,
  unit_cost=$11, version=version+1, updated_at=NOW()
WHERE product_id=$1 AND version=$2`,
		ps.ProductID, ps.Version,
		ps.Quantities[LocationWarehouseA], ps.Quantities[LocationWarehouseB], ps.Quantities[LocationCounter], ps.Quantities[LocationConsumables],
		ps.Values[LocationWarehouseA], ps.Values[LocationWarehouseB], ps.Values[LocationCounter], ps.Values[LocationConsumables],
		ps.UnitCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.E(shared.KindConcurrentUpdate, "stock.save", "", "product %d changed since version %d", ps.ProductID, ps.Version)
	}
	return nil
}

func (r *txRepo) ProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id FROM product_stocks ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *txRepo) ClaimReference(ctx context.Context, ref string) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `INSERT INTO stock_movement_refs (reference) VALUES ($1) ON CONFLICT (reference) DO NOTHING`, ref)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func scanStock(row pgx.Row) (ProductStock, error) {
	var (
		id      int64
		qty     [4]decimal.Decimal
		val     [4]decimal.Decimal
		cost    decimal.Decimal
		version int64
	)
	if err := row.Scan(&id, &qty[0], &qty[1], &qty[2], &qty[3], &val[0], &val[1], &val[2], &val[3], &cost, &version); err != nil {
		return ProductStock{}, err
	}
	ps := NewProductStock(id)
	for i, loc := range Locations {
		ps.Quantities[loc] = qty[i]
		ps.Values[loc] = val[i]
	}
	ps.UnitCost = cost
	ps.Version = version
	return ps, nil
}
