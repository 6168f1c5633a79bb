package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

const recordColumns = `id, employee_id, year, month, gross, net, accrual_entry_id, payment_entry_id, paid_at, created_at`

// TxRepository links payroll records to their journal entries inside a business transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Record, error)
	SetAccrual(ctx context.Context, id int64, gross, net decimal.Decimal, entryID int64) error
	SetPayment(ctx context.Context, id int64, entryID int64, paidAt time.Time) error
}

// Repository reads payroll records outside a business event.
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

// NewTxRepository binds payroll persistence to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// Create inserts a record that has not been accrued yet.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO payroll_records (employee_id, year, month, gross, net)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, rec.EmployeeID, rec.Year, rec.Month, rec.Gross, rec.Net).
		Scan(&rec.ID, &rec.CreatedAt)
	return rec, err
}

// ListUnpaid returns accrued records without a payment entry.
func (r *Repository) ListUnpaid(ctx context.Context, year, month int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM payroll_records
WHERE year=$1 AND month=$2 AND accrual_entry_id IS NOT NULL AND payment_entry_id IS NULL ORDER BY employee_id`, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM payroll_records WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.E(shared.KindNotFound, "payroll.get", "", "payroll record %d", id)
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *txRepo) SetAccrual(ctx context.Context, id int64, gross, net decimal.Decimal, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE payroll_records SET gross=$2, net=$3, accrual_entry_id=$4 WHERE id=$1`, id, gross, net, entryID)
	return err
}

func (r *txRepo) SetPayment(ctx context.Context, id int64, entryID int64, paidAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE payroll_records SET payment_entry_id=$2, paid_at=$3 WHERE id=$1`, id, entryID, paidAt)
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.Year, &rec.Month, &rec.Gross, &rec.Net,
		&rec.AccrualEntryID, &rec.PaymentEntryID, &rec.PaidAt, &rec.CreatedAt)
	return rec, err
}
