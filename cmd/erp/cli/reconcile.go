package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/feemaison/bakery-erp/jobs"
)

// ReconcileRunner executes the integrity checks synchronously.
type ReconcileRunner interface {
	Run(ctx context.Context, payload jobs.ReconcilePayload) (jobs.ReconcileReport, error)
}

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	Checks     []string
	Limit      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON response for reconcile.
type ReconcileSummary struct {
	OK                bool                `json:"ok"`
	UnbalancedEntries []UnbalancedEntry   `json:"unbalanced_entries"`
	TrialBalanceGap   string              `json:"trial_balance_gap"`
	StockDrifts       []StockDriftSummary `json:"stock_drifts"`
}

// UnbalancedEntry reports one entry whose totals differ.
type UnbalancedEntry struct {
	Reference string `json:"reference"`
	Journal   string `json:"journal"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

// StockDriftSummary reports one product whose valuation drifted.
type StockDriftSummary struct {
	ProductID int64  `json:"product_id"`
	Quantity  string `json:"quantity"`
	Value     string `json:"value"`
	Expected  string `json:"expected"`
	Reason    string `json:"reason"`
}

// ReconcileCommand runs the checks and prints the findings. Exit code 10 means findings.
func ReconcileCommand(ctx context.Context, runner ReconcileRunner, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	for _, check := range opts.Checks {
		if check != jobs.CheckLedger && check != jobs.CheckStock {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: unknown check %q (expected %s or %s)\n", check, jobs.CheckLedger, jobs.CheckStock)
			return 1
		}
	}
	report, err := runner.Run(ctx, jobs.ReconcilePayload{Checks: opts.Checks, Limit: opts.Limit})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	summary := buildReconcileSummary(report)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func buildReconcileSummary(report jobs.ReconcileReport) ReconcileSummary {
	summary := ReconcileSummary{
		OK:                report.Clean(),
		UnbalancedEntries: make([]UnbalancedEntry, 0, len(report.UnbalancedEntries)),
		TrialBalanceGap:   report.TrialBalanceGap.StringFixed(2),
		StockDrifts:       make([]StockDriftSummary, 0, len(report.Drifts)),
	}
	for _, e := range report.UnbalancedEntries {
		row := UnbalancedEntry{Reference: e.Reference, Journal: e.JournalCode}
		if len(e.Lines) == 2 {
			row.Debit = e.Lines[0].Debit.StringFixed(2)
			row.Credit = e.Lines[1].Credit.StringFixed(2)
		}
		summary.UnbalancedEntries = append(summary.UnbalancedEntries, row)
	}
	for _, d := range report.Drifts {
		summary.StockDrifts = append(summary.StockDrifts, StockDriftSummary{
			ProductID: d.ProductID,
			Quantity:  d.TotalQuantity.String(),
			Value:     d.TotalValue.StringFixed(2),
			Expected:  d.ExpectedValue.StringFixed(2),
			Reason:    d.Reason,
		})
	}
	return summary
}

func renderReconcileHuman(w io.Writer, summary ReconcileSummary) {
	if summary.OK {
		_, _ = fmt.Fprintln(w, "ledger and stock are consistent")
		return
	}
	for _, e := range summary.UnbalancedEntries {
		_, _ = fmt.Fprintf(w, "UNBALANCED %s (%s) debit=%s credit=%s\n", e.Reference, e.Journal, e.Debit, e.Credit)
	}
	if summary.TrialBalanceGap != "0.00" {
		_, _ = fmt.Fprintf(w, "TRIAL BALANCE gap=%s\n", summary.TrialBalanceGap)
	}
	for _, d := range summary.StockDrifts {
		_, _ = fmt.Fprintf(w, "DRIFT product=%d quantity=%s value=%s expected=%s: %s\n", d.ProductID, d.Quantity, d.Value, d.Expected, d.Reason)
	}
}
