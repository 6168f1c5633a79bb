package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/feemaison/bakery-erp/internal/accounting"
	jobmetrics "github.com/feemaison/bakery-erp/internal/jobs"
	"github.com/feemaison/bakery-erp/internal/platform/lock"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

type fakeLedger struct {
	unbalanced []accounting.JournalEntry
	balances   []accounting.AccountBalance
}

func (f fakeLedger) ListUnbalancedEntries(ctx context.Context, limit int) ([]accounting.JournalEntry, error) {
	return f.unbalanced, nil
}

func (f fakeLedger) AccountBalances(ctx context.Context, codes ...string) ([]accounting.AccountBalance, error) {
	return f.balances, nil
}

type fakeStocks []stock.ProductStock

func (f fakeStocks) ForEach(ctx context.Context, fn func(stock.ProductStock) error) error {
	for _, ps := range f {
		if err := fn(ps); err != nil {
			return err
		}
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func valued(id int64, qty, value, cost string) stock.ProductStock {
	ps := stock.NewProductStock(id)
	ps.Quantities[stock.LocationWarehouseA] = dec(qty)
	ps.Values[stock.LocationWarehouseA] = dec(value)
	ps.UnitCost = dec(cost)
	return ps
}

func newLocker(t *testing.T) (*lock.Locker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return lock.New(rdb), rdb
}

func TestReconcileReportsLedgerAndStockFindings(t *testing.T) {
	locker, _ := newLocker(t)
	ledger := fakeLedger{
		unbalanced: []accounting.JournalEntry{{
			Reference:   "VT-CMD-9",
			JournalCode: "VT",
			Lines:       []accounting.JournalEntryLine{{Debit: dec("10")}, {Credit: dec("9.5")}},
		}},
		balances: []accounting.AccountBalance{
			{Debit: dec("100"), Credit: dec("40")},
			{Debit: dec("0"), Credit: dec("59.5")},
		},
	}
	stocks := fakeStocks{
		valued(1, "10", "25", "2.5"),
		valued(2, "10", "40", "2.5"),
	}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewReconcileJob(ledger, stocks, locker, nil, metrics)

	report, err := job.Run(context.Background(), ReconcilePayload{})
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Len(t, report.UnbalancedEntries, 1)
	require.Equal(t, "0.5", report.TrialBalanceGap.String())
	require.Len(t, report.Drifts, 1)
	require.Equal(t, int64(2), report.Drifts[0].ProductID)
}

func TestReconcileSelectsChecks(t *testing.T) {
	job := NewReconcileJob(nil, fakeStocks{valued(1, "4", "10", "2.5")}, nil, nil, nil)

	report, err := job.Run(context.Background(), ReconcilePayload{Checks: []string{CheckStock}})
	require.NoError(t, err)
	require.True(t, report.Clean())

	_, err = job.Run(context.Background(), ReconcilePayload{Checks: []string{CheckLedger}})
	require.Error(t, err)
}

func TestReconcileSkipsWhenAnotherRunHoldsTheLock(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()
	release, err := locker.Acquire(ctx, shared.ReconcileLockKey(CheckStock), time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	job := NewReconcileJob(fakeLedger{}, fakeStocks{}, locker, nil, nil)
	shortCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	_, err = job.Run(shortCtx, ReconcilePayload{Checks: []string{CheckStock}})
	require.ErrorIs(t, err, shared.ErrConcurrentUpdate)

	body, err := json.Marshal(ReconcilePayload{Checks: []string{CheckStock}})
	require.NoError(t, err)
	shortCtx2, cancel2 := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel2()
	require.NoError(t, job.Handle(shortCtx2, asynq.NewTask(TaskReconcile, body)))
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	job := NewReconcileJob(fakeLedger{}, fakeStocks{}, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
