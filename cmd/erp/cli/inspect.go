package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/consumables"
	"github.com/feemaison/bakery-erp/internal/inventory"
	"github.com/feemaison/bakery-erp/internal/payroll"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// Output carries the writers of the read-only commands.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

func (o Output) fail(cmd string, err error) int {
	_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
	return 1
}

// EntryStore reads and removes journal entries.
type EntryStore interface {
	GetEntry(ctx context.Context, id int64) (accounting.JournalEntry, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// EntryShowCommand prints an entry with its lines.
func EntryShowCommand(ctx context.Context, store EntryStore, id int64, out Output) int {
	out = out.withDefaults()
	e, err := store.GetEntry(ctx, id)
	if err != nil {
		return out.fail("entry show", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s  %s  %s  validated=%t\n", e.Reference, e.AccountingDate.Format(time.DateOnly), e.Description, e.Validated)
	for _, l := range e.Lines {
		_, _ = fmt.Fprintf(out.Stdout, "  %2d %-6s %12s %12s  %s\n", l.LineNumber, l.AccountCode, l.Debit.StringFixed(2), l.Credit.StringFixed(2), l.Description)
	}
	_, _ = fmt.Fprintf(out.Stdout, "  total %19s %12s\n", e.TotalDebit().StringFixed(2), e.TotalCredit().StringFixed(2))
	return 0
}

// EntryDeleteCommand removes a draft entry. Validated entries are refused.
func EntryDeleteCommand(ctx context.Context, store EntryStore, id int64, out Output) int {
	out = out.withDefaults()
	if err := store.DeleteEntry(ctx, id); err != nil {
		return out.fail("entry delete", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "deleted entry %d\n", id)
	return 0
}

// StockReader loads one valuation row.
type StockReader interface {
	Get(ctx context.Context, productID int64) (stock.ProductStock, error)
}

// StockShowCommand prints quantities and values per location.
func StockShowCommand(ctx context.Context, reader StockReader, productID int64, out Output) int {
	out = out.withDefaults()
	ps, err := reader.Get(ctx, productID)
	if err != nil {
		return out.fail("stock show", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "product %d unit_cost=%s\n", ps.ProductID, ps.UnitCost.String())
	for _, loc := range stock.Locations {
		_, _ = fmt.Fprintf(out.Stdout, "  %-12s %12s %12s\n", loc, ps.Quantity(loc).String(), ps.Value(loc).StringFixed(2))
	}
	_, _ = fmt.Fprintf(out.Stdout, "  %-12s %12s %12s\n", "TOTAL", ps.TotalQuantity().String(), ps.TotalValue().StringFixed(2))
	return 0
}

// SessionReader loads an inventory session with its items.
type SessionReader interface {
	GetSession(ctx context.Context, id int64) (inventory.Session, []inventory.Item, error)
}

// InventoryShowCommand prints a count session and its variances.
func InventoryShowCommand(ctx context.Context, reader SessionReader, id int64, out Output) int {
	out = out.withDefaults()
	s, items, err := reader.GetSession(ctx, id)
	if err != nil {
		return out.fail("inventory show", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "session %d %s %02d/%d items=%d variances=%d value=%s\n",
		s.ID, s.Status, s.Month, s.Year, s.TotalItems, s.ItemsWithVariance, s.TotalVarianceValue.StringFixed(2))
	for _, it := range items {
		physical := "-"
		if it.Physical != nil {
			physical = it.Physical.String()
		}
		_, _ = fmt.Fprintf(out.Stdout, "  %6d %-12s theo=%s phys=%s var=%s %s applied=%t\n",
			it.ProductID, it.Location, it.Theoretical.String(), physical, it.VarianceValue.StringFixed(2), it.Severity, it.Applied)
	}
	return 0
}

// UnpaidLister lists accrued salaries not yet paid.
type UnpaidLister interface {
	ListUnpaid(ctx context.Context, year, month int) ([]payroll.Record, error)
}

// PayrollUnpaidCommand prints accrued but unpaid salaries for a YYYY-MM period.
func PayrollUnpaidCommand(ctx context.Context, lister UnpaidLister, period string, out Output) int {
	out = out.withDefaults()
	p, err := time.Parse("2006-01", period)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "payroll unpaid: invalid period %q (expected YYYY-MM)\n", period)
		return 2
	}
	records, err := lister.ListUnpaid(ctx, p.Year(), int(p.Month()))
	if err != nil {
		return out.fail("payroll unpaid", err)
	}
	for _, r := range records {
		_, _ = fmt.Fprintf(out.Stdout, "record=%d employee=%d net=%s charges=%s\n", r.ID, r.EmployeeID, r.Net.StringFixed(2), r.SocialCharges().StringFixed(2))
	}
	_, _ = fmt.Fprintf(out.Stdout, "%d unpaid\n", len(records))
	return 0
}

// Allocator previews packaging for a quantity.
type Allocator interface {
	AllocateConsumables(ctx context.Context, categoryID, quantity int64) ([]consumables.Allocation, error)
}

// AllocateCommand prints the boxes drawn for quantity units of a category.
func AllocateCommand(ctx context.Context, allocator Allocator, categoryID, quantity int64, out Output) int {
	out = out.withDefaults()
	allocations, err := allocator.AllocateConsumables(ctx, categoryID, quantity)
	if err != nil {
		return out.fail("allocate", err)
	}
	for _, a := range allocations {
		_, _ = fmt.Fprintf(out.Stdout, "packaging=%d range=%d boxes=%d units=%s\n", a.PackagingProductID, a.RangeID, a.Count, a.Units().String())
	}
	if len(allocations) == 0 {
		_, _ = fmt.Fprintln(out.Stdout, "no packaging needed")
	}
	return 0
}
