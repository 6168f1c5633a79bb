package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/feemaison/bakery-erp/cmd/erp/cli"
	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/app"
	"github.com/feemaison/bakery-erp/internal/consumables"
	"github.com/feemaison/bakery-erp/internal/inventory"
	jobmetrics "github.com/feemaison/bakery-erp/internal/jobs"
	"github.com/feemaison/bakery-erp/internal/payroll"
	"github.com/feemaison/bakery-erp/internal/platform/cache"
	"github.com/feemaison/bakery-erp/internal/platform/db"
	"github.com/feemaison/bakery-erp/internal/platform/lock"
	"github.com/feemaison/bakery-erp/internal/stock"
	"github.com/feemaison/bakery-erp/jobs"
)

const usage = `usage: erp <command> [flags]

commands:
  migrate up|down N|version   apply or roll back schema migrations
  check-chart [-v]            verify required accounts and journals are active
  reconcile [-check ledger,stock] [-limit N] [-json]
                              run the integrity checks now
  jobs trigger reconcile|stats|scheduled
                              manage the background queue
  entry show|delete ID        print or remove a draft journal entry
  stock show PRODUCT          print valuation per location
  inventory show SESSION      print a count session and its variances
  payroll unpaid YYYY-MM      list accrued salaries not yet paid
  allocate CATEGORY QTY       preview packaging for a quantity
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping cli")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "migrate":
		return cli.MigrateCommand(dsnMigrator(cfg.PGDSN), cli.MigrateOptions{Args: args[1:], Stdout: stdout, Stderr: stderr})
	case "check-chart":
		fs := flag.NewFlagSet("check-chart", flag.ContinueOnError)
		fs.SetOutput(stderr)
		verbose := fs.Bool("v", false, "list every account")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "check-chart: %v\n", err)
			return 1
		}
		defer pool.Close()
		return cli.CheckChartCommand(ctx, accounting.NewRepository(pool), cli.CheckChartOptions{Verbose: *verbose, Stdout: stdout, Stderr: stderr})
	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
		fs.SetOutput(stderr)
		checks := fs.String("check", "", "comma separated checks (ledger, stock); empty runs all")
		limit := fs.Int("limit", 100, "maximum unbalanced entries reported")
		jsonOut := fs.Bool("json", false, "print the report as JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 1
		}
		defer pool.Close()
		rdb, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 1
		}
		defer func() {
			_ = rdb.Close()
		}()
		job := jobs.NewReconcileJob(accounting.NewRepository(pool), stock.NewRepository(pool), lock.New(rdb), logger, jobmetrics.NewMetrics(nil))
		return cli.ReconcileCommand(ctx, job, cli.ReconcileOptions{
			Checks:     splitList(*checks),
			Limit:      *limit,
			JSONOutput: *jsonOut,
			Stdout:     stdout,
			Stderr:     stderr,
		})
	case "jobs":
		fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
		fs.SetOutput(stderr)
		checks := fs.String("check", "", "checks for a triggered reconcile")
		limit := fs.Int("limit", 10, "page size for scheduled")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		rest := fs.Args()
		if len(rest) == 0 {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		opts := cli.JobsOptions{Action: rest[0], Checks: splitList(*checks), Limit: *limit, Stdout: stdout, Stderr: stderr}
		if len(rest) > 1 {
			opts.Job = rest[1]
		}
		jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("close jobs cli", slog.Any("error", err))
			}
		}()
		return jobsCLI.JobsCommand(ctx, opts)
	case "entry", "stock", "inventory", "payroll", "allocate":
		return inspect(ctx, cfg, args, stdout, stderr)
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
}

// inspect serves the read-only and draft maintenance commands.
func inspect(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	out := cli.Output{Stdout: stdout, Stderr: stderr}
	if len(args) < 3 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		return 1
	}
	defer pool.Close()

	if args[0] == "allocate" {
		category, errC := strconv.ParseInt(args[1], 10, 64)
		qty, errQ := strconv.ParseInt(args[2], 10, 64)
		if errC != nil || errQ != nil {
			_, _ = fmt.Fprintln(stderr, "allocate: CATEGORY and QTY must be integers")
			return 2
		}
		return cli.AllocateCommand(ctx, consumables.NewService(consumables.NewRepository(pool)), category, qty, out)
	}
	if args[0] == "payroll" && args[1] == "unpaid" {
		return cli.PayrollUnpaidCommand(ctx, payroll.NewRepository(pool), args[2], out)
	}
	id, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: invalid id %q\n", args[0], args[2])
		return 2
	}
	switch args[0] + " " + args[1] {
	case "entry show":
		return cli.EntryShowCommand(ctx, accounting.NewRepository(pool), id, out)
	case "entry delete":
		return cli.EntryDeleteCommand(ctx, accounting.NewRepository(pool), id, out)
	case "stock show":
		return cli.StockShowCommand(ctx, stock.NewRepository(pool), id, out)
	case "inventory show":
		return cli.InventoryShowCommand(ctx, inventory.NewRepository(pool), id, out)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0]+" "+args[1], usage)
		return 2
	}
}

// dsnMigrator runs golang-migrate against one database.
type dsnMigrator string

func (m dsnMigrator) Up() error                    { return db.MigrateUp(string(m)) }
func (m dsnMigrator) Down(steps int) error         { return db.MigrateDown(string(m), steps) }
func (m dsnMigrator) Version() (uint, bool, error) { return db.MigrationVersion(string(m)) }

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
