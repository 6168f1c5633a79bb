package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/feemaison/bakery-erp/internal/accounting"
)

// CheckChartOptions defines available flags for the check-chart command.
type CheckChartOptions struct {
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// CheckChartCommand loads the chart and reports whether every required code is active.
func CheckChartCommand(ctx context.Context, reader accounting.ChartReader, opts CheckChartOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	chart, err := accounting.LoadChart(ctx, reader)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check-chart: %v\n", err)
		return 1
	}
	if opts.Verbose {
		for _, a := range chart.Accounts() {
			status := "active"
			if !a.Active {
				status = "inactive"
			}
			_, _ = fmt.Fprintf(opts.Stdout, "%-6s %-40s %s\n", a.Code, a.Name, status)
		}
	}
	_, _ = fmt.Fprintf(opts.Stdout, "chart ok: %d accounts and %d journals required\n",
		len(accounting.RequiredAccounts), len(accounting.RequiredJournals))
	return 0
}
