package consumables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feemaison/bakery-erp/internal/shared"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Reader loads categories with their ranges.
type Reader interface {
	GetCategory(ctx context.Context, id int64) (Category, error)
	CategoryForProductCategory(ctx context.Context, productCategoryID int64) (Category, bool, error)
}

// Repository persists consumable configuration.
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

// NewTxReader reads configuration inside a business transaction.
func NewTxReader(tx pgx.Tx) Reader {
	return &txRepo{tx: tx}
}

// GetCategory returns the category and its ranges ordered by min quantity.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	return getCategory(ctx, r.pool, id)
}

// CategoryForProductCategory returns the active category attached to a product category.
func (r *Repository) CategoryForProductCategory(ctx context.Context, productCategoryID int64) (Category, bool, error) {
	return categoryForProductCategory(ctx, r.pool, productCategoryID)
}

// ReplaceRanges validates ranges and swaps the category configuration atomically.
func (r *Repository) ReplaceRanges(ctx context.Context, categoryID int64, ranges []Range) error {
	if err := ValidateRanges(ranges); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := getCategory(ctx, tx, categoryID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM consumable_ranges WHERE category_id=$1`, categoryID); err != nil {
			return err
		}
		for _, rg := range ranges {
			if _, err := tx.Exec(ctx, `INSERT INTO consumable_ranges (category_id, min_qty, max_qty, packaging_product_id, qty_per_unit, notes)
VALUES ($1,$2,$3,$4,$5,$6)`, categoryID, rg.MinQty, rg.MaxQty, rg.PackagingProductID, rg.QtyPerUnit, rg.Notes); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *txRepo) GetCategory(ctx context.Context, id int64) (Category, error) {
	return getCategory(ctx, r.tx, id)
}

func (r *txRepo) CategoryForProductCategory(ctx context.Context, productCategoryID int64) (Category, bool, error) {
	return categoryForProductCategory(ctx, r.tx, productCategoryID)
}

func getCategory(ctx context.Context, q querier, id int64) (Category, error) {
	var c Category
	err := q.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), product_category_id, active FROM consumable_categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.ProductCategoryID, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, shared.E(shared.KindNotFound, "consumables.get_category", "", "category %d", id)
		}
		return Category{}, err
	}
	c.Ranges, err = listRanges(ctx, q, id)
	return c, err
}

func categoryForProductCategory(ctx context.Context, q querier, productCategoryID int64) (Category, bool, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM consumable_categories WHERE product_category_id=$1 AND active ORDER BY id LIMIT 1`, productCategoryID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, false, nil
		}
		return Category{}, false, err
	}
	c, err := getCategory(ctx, q, id)
	return c, err == nil, err
}

func listRanges(ctx context.Context, q querier, categoryID int64) ([]Range, error) {
	rows, err := q.Query(ctx, `SELECT id, category_id, min_qty, max_qty, packaging_product_id, qty_per_unit, COALESCE(notes, '')
FROM consumable_ranges WHERE category_id=$1 ORDER BY min_qty`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ranges []Range
	for rows.Next() {
		var rg Range
		if err := rows.Scan(&rg.ID, &rg.CategoryID, &rg.MinQty, &rg.MaxQty, &rg.PackagingProductID, &rg.QtyPerUnit, &rg.Notes); err != nil {
			return nil, err
		}
		ranges = append(ranges, rg)
	}
	return ranges, rows.Err()
}
