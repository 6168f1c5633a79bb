package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/feemaison/bakery-erp/internal/accounting"
	jobmetrics "github.com/feemaison/bakery-erp/internal/jobs"
	"github.com/feemaison/bakery-erp/internal/platform/lock"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// LedgerReader exposes the ledger aggregates the integrity check needs.
type LedgerReader interface {
	ListUnbalancedEntries(ctx context.Context, limit int) ([]accounting.JournalEntry, error)
	AccountBalances(ctx context.Context, codes ...string) ([]accounting.AccountBalance, error)
}

// StockScanner streams every valuation row.
type StockScanner interface {
	ForEach(ctx context.Context, fn func(stock.ProductStock) error) error
}

// Locker prevents two workers from running the same check.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Release, error)
}

// ReconcileReport lists every inconsistency found by one run.
type ReconcileReport struct {
	UnbalancedEntries []accounting.JournalEntry
	TrialBalanceGap   decimal.Decimal
	Drifts            []stock.Drift
}

// Clean reports whether the run found nothing.
func (r ReconcileReport) Clean() bool {
	return len(r.UnbalancedEntries) == 0 && r.TrialBalanceGap.IsZero() && len(r.Drifts) == 0
}

// ReconcileJob checks the ledger and the stock valuation for drift.
type ReconcileJob struct {
	Ledger  LedgerReader
	Stock   StockScanner
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(ledger LedgerReader, stocks StockScanner, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Ledger: ledger, Stock: stocks, Locker: locker, Logger: logger, Metrics: metrics, LockTTL: 10 * time.Minute}
}

// Handle executes the task.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	if shared.KindOf(err) == shared.KindConcurrentUpdate {
		j.logger().Info("reconciliation already running elsewhere")
		return nil
	}
	return err
}

// Run executes the selected checks concurrently and logs every finding.
func (j *ReconcileJob) Run(ctx context.Context, payload ReconcilePayload) (report ReconcileReport, err error) {
	tracker := j.Metrics.Track(TaskReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	logger := j.logger().With(slog.Any("checks", payload.Checks))
	logger.Info("starting reconciliation")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if payload.wants(CheckLedger) {
		g.Go(func() error {
			return j.locked(gctx, CheckLedger, func(ctx context.Context) error {
				entries, gap, err := j.checkLedger(ctx, payload.Limit)
				if err != nil {
					return err
				}
				mu.Lock()
				report.UnbalancedEntries, report.TrialBalanceGap = entries, gap
				mu.Unlock()
				return nil
			})
		})
	}
	if payload.wants(CheckStock) {
		g.Go(func() error {
			return j.locked(gctx, CheckStock, func(ctx context.Context) error {
				drifts, err := j.checkStock(ctx)
				if err != nil {
					return err
				}
				mu.Lock()
				report.Drifts = drifts
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("reconciliation failed", slog.Any("error", err))
		return ReconcileReport{}, err
	}

	for _, e := range report.UnbalancedEntries {
		logger.Warn("unbalanced journal entry",
			slog.String("reference", e.Reference),
			slog.String("journal", e.JournalCode),
			slog.String("debit", e.Lines[0].Debit.StringFixed(2)),
			slog.String("credit", e.Lines[1].Credit.StringFixed(2)))
	}
	if !report.TrialBalanceGap.IsZero() {
		logger.Warn("trial balance does not net to zero", slog.String("gap", report.TrialBalanceGap.StringFixed(2)))
	}
	for _, d := range report.Drifts {
		logger.Warn("stock valuation drift",
			slog.Int64("product_id", d.ProductID),
			slog.String("quantity", d.TotalQuantity.String()),
			slog.String("value", d.TotalValue.StringFixed(2)),
			slog.String("expected", d.ExpectedValue.StringFixed(2)),
			slog.String("reason", d.Reason))
	}
	if payload.wants(CheckLedger) {
		ledgerFindings := len(report.UnbalancedEntries)
		if !report.TrialBalanceGap.IsZero() {
			ledgerFindings++
		}
		j.Metrics.SetFindings(CheckLedger, ledgerFindings)
	}
	if payload.wants(CheckStock) {
		j.Metrics.SetFindings(CheckStock, len(report.Drifts))
	}
	logger.Info("completed reconciliation",
		slog.Int("unbalanced_entries", len(report.UnbalancedEntries)),
		slog.Int("stock_drifts", len(report.Drifts)),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

func (j *ReconcileJob) locked(ctx context.Context, check string, fn func(ctx context.Context) error) error {
	if j.Locker == nil {
		return fn(ctx)
	}
	release, err := j.Locker.Acquire(ctx, shared.ReconcileLockKey(check), j.LockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.logger().Warn("reconcile lock release failed", slog.String("check", check), slog.Any("error", err))
		}
	}()
	return fn(ctx)
}

func (j *ReconcileJob) checkLedger(ctx context.Context, limit int) ([]accounting.JournalEntry, decimal.Decimal, error) {
	if j.Ledger == nil {
		return nil, decimal.Zero, errors.New("reconcile: ledger not configured")
	}
	entries, err := j.Ledger.ListUnbalancedEntries(ctx, limit)
	if err != nil {
		return nil, decimal.Zero, err
	}
	balances, err := j.Ledger.AccountBalances(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	gap := decimal.Zero
	for _, b := range balances {
		gap = gap.Add(b.Debit).Sub(b.Credit)
	}
	if gap.Abs().LessThan(decimal.New(1, -2)) {
		gap = decimal.Zero
	}
	return entries, gap, nil
}

func (j *ReconcileJob) checkStock(ctx context.Context) ([]stock.Drift, error) {
	if j.Stock == nil {
		return nil, errors.New("reconcile: stock not configured")
	}
	var drifts []stock.Drift
	err := j.Stock.ForEach(ctx, func(ps stock.ProductStock) error {
		if drift, ok := stock.CheckInvariant(ps); !ok {
			drifts = append(drifts, drift)
		}
		return ctx.Err()
	})
	return drifts, err
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
