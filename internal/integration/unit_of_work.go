package integration

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/consumables"
	"github.com/feemaison/bakery-erp/internal/inventory"
	"github.com/feemaison/bakery-erp/internal/payroll"
	"github.com/feemaison/bakery-erp/internal/platform/db"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// Tx exposes every repository a business event may write through, all bound to
// the same database transaction.
type Tx interface {
	Ledger() accounting.TxRepository
	Stock() stock.TxRepository
	Inventory() inventory.TxRepository
	Consumables() consumables.Reader
	Payroll() payroll.TxRepository
}

// UnitOfWork runs fn in one transaction. Any error rolls every write back.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PgUnitOfWork is the pgx implementation of UnitOfWork.
type PgUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs a PgUnitOfWork.
func NewUnitOfWork(pool *pgxpool.Pool) *PgUnitOfWork {
	return &PgUnitOfWork{pool: pool}
}

// WithTx opens a read-committed transaction and binds the repositories to it.
func (u *PgUnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Ledger() accounting.TxRepository  { return accounting.NewTxRepository(t.tx) }
func (t pgTx) Stock() stock.TxRepository         { return stock.NewTxRepository(t.tx) }
func (t pgTx) Inventory() inventory.TxRepository { return inventory.NewTxRepository(t.tx) }
func (t pgTx) Consumables() consumables.Reader   { return consumables.NewTxReader(t.tx) }
func (t pgTx) Payroll() payroll.TxRepository     { return payroll.NewTxRepository(t.tx) }
