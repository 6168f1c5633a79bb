package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/consumables"
	"github.com/feemaison/bakery-erp/internal/payroll"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

type stubEntries map[int64]accounting.JournalEntry

func (s stubEntries) GetEntry(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	e, ok := s[id]
	if !ok {
		return accounting.JournalEntry{}, shared.E(shared.KindNotFound, "test", "", "journal entry %d", id)
	}
	return e, nil
}

func (s stubEntries) DeleteEntry(ctx context.Context, id int64) error {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if e.Validated {
		return shared.E(shared.KindInvalidState, "test", "", "journal entry %d is validated", id)
	}
	delete(s, id)
	return nil
}

func TestEntryCommands(t *testing.T) {
	store := stubEntries{
		1: {ID: 1, Reference: "VT-CMD-1", Validated: true, Lines: []accounting.JournalEntryLine{
			{LineNumber: 1, AccountCode: accounting.AccountCash, Debit: decimal.NewFromInt(12)},
			{LineNumber: 2, AccountCode: accounting.AccountSales, Credit: decimal.NewFromInt(12)},
		}},
		2: {ID: 2, Reference: "OD-X-2"},
	}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, EntryShowCommand(context.Background(), store, 1, Output{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "VT-CMD-1")
	require.Contains(t, stdout.String(), "12.00")

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, EntryDeleteCommand(context.Background(), store, 1, Output{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "validated")
	require.Equal(t, 0, EntryDeleteCommand(context.Background(), store, 2, Output{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))
	require.NotContains(t, store, int64(2))
}

type stubStock map[int64]stock.ProductStock

func (s stubStock) Get(ctx context.Context, productID int64) (stock.ProductStock, error) {
	return s[productID], nil
}

func TestStockShowCommand(t *testing.T) {
	ps := stock.NewProductStock(5)
	ps.Quantities[stock.LocationCounter] = decimal.NewFromInt(4)
	ps.Values[stock.LocationCounter] = decimal.NewFromInt(10)
	ps.UnitCost = decimal.RequireFromString("2.5")
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, StockShowCommand(context.Background(), stubStock{5: ps}, 5, Output{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "product 5 unit_cost=2.5")
	require.Contains(t, stdout.String(), "10.00")
}

type stubUnpaid struct {
	year, month int
}

func (s *stubUnpaid) ListUnpaid(ctx context.Context, year, month int) ([]payroll.Record, error) {
	s.year, s.month = year, month
	return []payroll.Record{{ID: 9, EmployeeID: 3, Gross: decimal.NewFromInt(2000), Net: decimal.NewFromInt(1560)}}, nil
}

func TestPayrollUnpaidCommand(t *testing.T) {
	lister := &stubUnpaid{}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, PayrollUnpaidCommand(context.Background(), lister, "2026-02", Output{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Equal(t, 2026, lister.year)
	require.Equal(t, 2, lister.month)
	require.Contains(t, stdout.String(), "charges=440.00")
	require.Contains(t, stdout.String(), "1 unpaid")

	require.Equal(t, 2, PayrollUnpaidCommand(context.Background(), lister, "02/2026", Output{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))
}

type stubAllocator []consumables.Range

func (s stubAllocator) AllocateConsumables(ctx context.Context, categoryID, quantity int64) ([]consumables.Allocation, error) {
	return consumables.Allocate(s, quantity), nil
}

func TestAllocateCommand(t *testing.T) {
	ranges := stubAllocator{
		{ID: 1, MinQty: 1, MaxQty: 8, PackagingProductID: 501, QtyPerUnit: decimal.NewFromInt(1)},
		{ID: 2, MinQty: 9, MaxQty: 70, PackagingProductID: 504, QtyPerUnit: decimal.NewFromInt(1)},
	}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, AllocateCommand(context.Background(), ranges, 1, 75, Output{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "packaging=504 range=2 boxes=1")
	require.Contains(t, stdout.String(), "packaging=501 range=1 boxes=1")

	stdout.Reset()
	require.Equal(t, 0, AllocateCommand(context.Background(), ranges, 1, 0, Output{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "no packaging needed")
}
