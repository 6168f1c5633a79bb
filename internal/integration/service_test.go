package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/consumables"
	"github.com/feemaison/bakery-erp/internal/inventory"
	"github.com/feemaison/bakery-erp/internal/payroll"
	"github.com/feemaison/bakery-erp/internal/platform/lock"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

type memoryState struct {
	accounts   []accounting.Account
	journals   map[string]accounting.Journal
	seq        map[string]int64
	entries    []accounting.JournalEntry
	stocks     map[int64]stock.ProductStock
	stockRefs  map[string]bool
	sessions   map[int64]inventory.Session
	items      map[int64][]inventory.Item
	categories map[int64]consumables.Category
	payroll    map[int64]payroll.Record
	nextID     int64
}

func copyStock(ps stock.ProductStock) stock.ProductStock {
	out := stock.NewProductStock(ps.ProductID)
	for loc, q := range ps.Quantities {
		out.Quantities[loc] = q
	}
	for loc, v := range ps.Values {
		out.Values[loc] = v
	}
	out.UnitCost = ps.UnitCost
	out.Version = ps.Version
	return out
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.journals = map[string]accounting.Journal{}
	for k, v := range s.journals {
		c.journals[k] = v
	}
	c.seq = map[string]int64{}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.entries = append([]accounting.JournalEntry(nil), s.entries...)
	c.stocks = map[int64]stock.ProductStock{}
	for k, v := range s.stocks {
		c.stocks[k] = copyStock(v)
	}
	c.stockRefs = map[string]bool{}
	for k, v := range s.stockRefs {
		c.stockRefs[k] = v
	}
	c.sessions = map[int64]inventory.Session{}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	c.items = map[int64][]inventory.Item{}
	for k, v := range s.items {
		c.items[k] = append([]inventory.Item(nil), v...)
	}
	c.payroll = map[int64]payroll.Record{}
	for k, v := range s.payroll {
		c.payroll[k] = v
	}
	return &c
}

// memoryDB restores the previous state when fn fails, like a rolled back transaction.
type memoryDB struct {
	state   *memoryState
	commits int
}

func (m *memoryDB) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, memoryTx{st: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	m.commits++
	return nil
}

type memoryTx struct {
	st *memoryState
}

func (t memoryTx) Ledger() accounting.TxRepository  { return ledgerRepo{t.st} }
func (t memoryTx) Stock() stock.TxRepository         { return stockRepo{t.st} }
func (t memoryTx) Inventory() inventory.TxRepository { return inventoryRepo{t.st} }
func (t memoryTx) Consumables() consumables.Reader   { return consumableRepo{t.st} }
func (t memoryTx) Payroll() payroll.TxRepository     { return payrollRepo{t.st} }

type ledgerRepo struct{ st *memoryState }

func (r ledgerRepo) FindEntryByExternalRef(ctx context.Context, ref string) (accounting.JournalEntry, bool, error) {
	for _, e := range r.st.entries {
		if e.ExternalRef == ref {
			return e, true, nil
		}
	}
	return accounting.JournalEntry{}, false, nil
}

func (r ledgerRepo) LockJournal(ctx context.Context, code string) (accounting.Journal, int64, error) {
	j, ok := r.st.journals[code]
	if !ok {
		return accounting.Journal{}, 0, shared.E(shared.KindConfiguration, "test", code, "journal not found")
	}
	r.st.seq[code]++
	return j, r.st.seq[code], nil
}

func (r ledgerRepo) AccountsForShare(ctx context.Context, codes []string) ([]accounting.Account, error) {
	var out []accounting.Account
	for _, a := range r.st.accounts {
		for _, c := range codes {
			if a.Code == c {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (r ledgerRepo) InsertJournalEntry(ctx context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	r.st.nextID++
	entry.ID = r.st.nextID
	r.st.entries = append(r.st.entries, entry)
	return entry, nil
}

func (r ledgerRepo) InsertJournalLines(ctx context.Context, entryID int64, lines []accounting.JournalEntryLine) error {
	for i := range r.st.entries {
		if r.st.entries[i].ID == entryID {
			r.st.entries[i].Lines = append([]accounting.JournalEntryLine(nil), lines...)
		}
	}
	return nil
}

type stockRepo struct{ st *memoryState }

func (r stockRepo) GetForUpdate(ctx context.Context, productID int64) (stock.ProductStock, error) {
	ps, ok := r.st.stocks[productID]
	if !ok {
		ps = stock.NewProductStock(productID)
		r.st.stocks[productID] = ps
	}
	return copyStock(ps), nil
}

func (r stockRepo) Save(ctx context.Context, ps stock.ProductStock) error {
	if r.st.stocks[ps.ProductID].Version != ps.Version {
		return shared.E(shared.KindConcurrentUpdate, "test", "", "stale")
	}
	ps = copyStock(ps)
	ps.Version++
	r.st.stocks[ps.ProductID] = ps
	return nil
}

func (r stockRepo) ProductIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(r.st.stocks))
	for id := range r.st.stocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r stockRepo) ClaimReference(ctx context.Context, ref string) (bool, error) {
	if r.st.stockRefs[ref] {
		return false, nil
	}
	r.st.stockRefs[ref] = true
	return true, nil
}

type inventoryRepo struct{ st *memoryState }

func (r inventoryRepo) InsertSession(ctx context.Context, s inventory.Session) (inventory.Session, error) {
	r.st.nextID++
	s.ID = r.st.nextID
	r.st.sessions[s.ID] = s
	return s, nil
}

func (r inventoryRepo) GetSessionForUpdate(ctx context.Context, id int64) (inventory.Session, error) {
	s, ok := r.st.sessions[id]
	if !ok {
		return inventory.Session{}, shared.E(shared.KindNotFound, "test", "", "session %d", id)
	}
	return s, nil
}

func (r inventoryRepo) UpdateSession(ctx context.Context, s inventory.Session) error {
	r.st.sessions[s.ID] = s
	return nil
}

func (r inventoryRepo) InsertItems(ctx context.Context, sessionID int64, items []inventory.Item) ([]inventory.Item, error) {
	out := make([]inventory.Item, len(items))
	for i, it := range items {
		r.st.nextID++
		it.ID = r.st.nextID
		it.SessionID = sessionID
		out[i] = it
	}
	r.st.items[sessionID] = append(r.st.items[sessionID], out...)
	return out, nil
}

func (r inventoryRepo) ListItems(ctx context.Context, sessionID int64) ([]inventory.Item, error) {
	return append([]inventory.Item(nil), r.st.items[sessionID]...), nil
}

func (r inventoryRepo) UpdateItem(ctx context.Context, it inventory.Item) error {
	for i := range r.st.items[it.SessionID] {
		if r.st.items[it.SessionID][i].ID == it.ID {
			r.st.items[it.SessionID][i] = it
		}
	}
	return nil
}

type consumableRepo struct{ st *memoryState }

func (r consumableRepo) GetCategory(ctx context.Context, id int64) (consumables.Category, error) {
	c, ok := r.st.categories[id]
	if !ok {
		return consumables.Category{}, shared.E(shared.KindNotFound, "test", "", "category %d", id)
	}
	return c, nil
}

func (r consumableRepo) CategoryForProductCategory(ctx context.Context, productCategoryID int64) (consumables.Category, bool, error) {
	for _, c := range r.st.categories {
		if c.ProductCategoryID == productCategoryID && c.Active {
			return c, true, nil
		}
	}
	return consumables.Category{}, false, nil
}

type payrollRepo struct{ st *memoryState }

func (r payrollRepo) GetForUpdate(ctx context.Context, id int64) (payroll.Record, error) {
	rec, ok := r.st.payroll[id]
	if !ok {
		return payroll.Record{}, shared.E(shared.KindNotFound, "test", "", "payroll %d", id)
	}
	return rec, nil
}

func (r payrollRepo) SetAccrual(ctx context.Context, id int64, gross, net decimal.Decimal, entryID int64) error {
	rec := r.st.payroll[id]
	rec.Gross, rec.Net, rec.AccrualEntryID = gross, net, &entryID
	r.st.payroll[id] = rec
	return nil
}

func (r payrollRepo) SetPayment(ctx context.Context, id int64, entryID int64, paidAt time.Time) error {
	rec := r.st.payroll[id]
	rec.PaymentEntryID, rec.PaidAt = &entryID, &paidAt
	r.st.payroll[id] = rec
	return nil
}

type memoryLocker struct {
	held     map[string]bool
	acquired []string
}

func (l *memoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Release, error) {
	if l.held[key] {
		return nil, shared.E(shared.KindConcurrentUpdate, "test", key, "held")
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func(ctx context.Context) error {
		delete(l.held, key)
		return nil
	}, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryMetrics struct {
	events  []string
	entries []string
}

func (m *memoryMetrics) ObserveEvent(event string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(shared.KindOf(err))
	}
	m.events = append(m.events, event+":"+outcome)
}

func (m *memoryMetrics) ObserveEntry(journal string, amount float64) {
	m.entries = append(m.entries, fmt.Sprintf("%s:%.2f", journal, amount))
}

type fixture struct {
	svc     *Service
	db      *memoryDB
	locker  *memoryLocker
	audit   *memoryAudit
	metrics *memoryMetrics
}

var actor = shared.Actor{UserID: 4, Now: func() time.Time { return time.Date(2026, 5, 2, 7, 15, 0, 0, time.UTC) }}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var accounts []accounting.Account
	for i, code := range accounting.RequiredAccounts {
		accounts = append(accounts, accounting.Account{ID: int64(i + 1), Code: code, Name: "acc " + code, Active: true})
	}
	journals := map[string]accounting.Journal{}
	var journalRows []accounting.Journal
	for i, code := range accounting.RequiredJournals {
		j := accounting.Journal{ID: int64(i + 1), Code: code, Name: "journal " + code, Active: true}
		journals[code] = j
		journalRows = append(journalRows, j)
	}
	chart := accounting.NewChart(accounts, journalRows)
	require.NoError(t, chart.Verify(accounting.RequiredAccounts, accounting.RequiredJournals))

	db := &memoryDB{state: &memoryState{
		accounts:   accounts,
		journals:   journals,
		seq:        map[string]int64{},
		stocks:     map[int64]stock.ProductStock{},
		stockRefs:  map[string]bool{},
		sessions:   map[int64]inventory.Session{},
		items:      map[int64][]inventory.Item{},
		categories: map[int64]consumables.Category{},
		payroll:    map[int64]payroll.Record{},
		nextID:     100,
	}}
	f := &fixture{
		db:      db,
		locker:  &memoryLocker{held: map[string]bool{}},
		audit:   &memoryAudit{},
		metrics: &memoryMetrics{},
	}
	f.svc = NewService(db, accounting.NewEngine(chart), stock.NewStore(), Options{
		Locker:  f.locker,
		Audit:   f.audit,
		Metrics: f.metrics,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) seed(productID int64, loc stock.Location, qty, value string) {
	ps := stock.NewProductStock(productID)
	ps.Quantities[loc] = d(qty)
	ps.Values[loc] = d(value)
	ps.UnitCost = d(value).DivRound(d(qty), 6)
	f.db.state.stocks[productID] = ps
}

func (f *fixture) stock(productID int64) stock.ProductStock {
	return f.db.state.stocks[productID]
}

func lineFor(t *testing.T, e accounting.JournalEntry, code string) accounting.JournalEntryLine {
	t.Helper()
	for _, l := range e.Lines {
		if l.AccountCode == code {
			return l
		}
	}
	t.Fatalf("no line for account %s in %s", code, e.Reference)
	return accounting.JournalEntryLine{}
}

func TestPurchaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := PurchaseEvent{
		PurchaseID:    12,
		PaymentMethod: accounting.PaymentBank,
		Lines: []PurchaseLine{
			{ProductID: 1, Location: stock.LocationWarehouseA, Quantity: d("10"), UnitCost: d("2.5")},
			{ProductID: 2, Location: stock.LocationWarehouseB, Quantity: d("4"), UnitCost: d("3.333")},
		},
	}

	res, err := f.svc.RecordPurchase(ctx, actor, ev)
	require.NoError(t, err)
	require.Equal(t, "AC-ACH-12", res.Entry.Reference)
	require.Equal(t, "38.33", lineFor(t, res.Entry, accounting.AccountPurchases).Debit.String())
	require.Equal(t, "38.33", lineFor(t, res.Entry, accounting.AccountBank).Credit.String())
	require.Len(t, res.Movements, 2)
	require.Equal(t, "25", f.stock(1).TotalValue().String())
	require.Equal(t, "13.33", f.stock(2).TotalValue().String())

	before := f.stock(1).Version
	_, err = f.svc.RecordPurchase(ctx, actor, ev)
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.Equal(t, "AC-ACH-12", shared.CodeOf(err))
	require.Equal(t, before, f.stock(1).Version)
	require.Equal(t, "10", f.stock(1).TotalQuantity().String())
	require.Len(t, f.db.state.entries, 1)
	require.Equal(t, []string{"purchase:ok", "purchase:DUPLICATE_POSTING"}, f.metrics.events)
	require.Equal(t, []string{"AC:38.33"}, f.metrics.entries)
	require.Len(t, f.audit.logs, 1)
}

func TestPurchaseRejectsEmptyEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordPurchase(context.Background(), actor, PurchaseEvent{PurchaseID: 1, PaymentMethod: accounting.PaymentCash})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, f.db.commits)
}

func pastryCategory() consumables.Category {
	box := func(id, min, max, product int64) consumables.Range {
		return consumables.Range{ID: id, CategoryID: 1, MinQty: min, MaxQty: max, PackagingProductID: product, QtyPerUnit: decimal.NewFromInt(1)}
	}
	return consumables.Category{ID: 1, Name: "Pastries", Active: true, Ranges: []consumables.Range{
		box(1, 1, 8, 501), box(2, 9, 12, 502), box(3, 13, 20, 503), box(4, 21, 70, 504),
	}}
}

func TestSaleTakesCounterStockAndPackaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(10, stock.LocationCounter, "20", "30")
	f.seed(502, stock.LocationConsumables, "10", "2")
	f.db.state.categories[1] = pastryCategory()

	res, err := f.svc.RecordSale(ctx, actor, SaleEvent{
		OrderID:       77,
		Amount:        d("18"),
		PaymentMethod: accounting.PaymentCash,
		Lines:         []SaleLine{{ProductID: 10, Quantity: d("12"), ConsumableCategoryID: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "VT-CMD-77", res.Entry.Reference)
	require.Equal(t, "18", lineFor(t, res.Entry, accounting.AccountCash).Debit.String())
	require.Equal(t, "18", lineFor(t, res.Entry, accounting.AccountSales).Credit.String())
	require.Len(t, res.Packaging, 1)
	require.Equal(t, int64(502), res.Packaging[0].PackagingProductID)
	require.Equal(t, "8", f.stock(10).Quantity(stock.LocationCounter).String())
	require.Equal(t, "12", f.stock(10).Value(stock.LocationCounter).String())
	require.Equal(t, "9", f.stock(502).Quantity(stock.LocationConsumables).String())
}

func TestSaleWithoutPackagingStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(10, stock.LocationCounter, "20", "30")
	f.db.state.categories[1] = pastryCategory()

	_, err := f.svc.RecordSale(ctx, actor, SaleEvent{
		OrderID:       78,
		Amount:        d("6"),
		PaymentMethod: accounting.PaymentCredit,
		Lines:         []SaleLine{{ProductID: 10, Quantity: d("4"), ConsumableCategoryID: 1}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, string(stock.LocationConsumables), shared.CodeOf(err))
	require.Empty(t, f.db.state.entries)
	require.Equal(t, "20", f.stock(10).Quantity(stock.LocationCounter).String())
	require.Empty(t, f.audit.logs)
}

func TestSalaryPaymentRequiresAccrual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.state.payroll[5] = payroll.Record{ID: 5, EmployeeID: 9, Year: 2026, Month: 4}

	_, err := f.svc.RecordSalaryPayment(ctx, actor, SalaryPaymentEvent{PayrollID: 5, PaymentMethod: accounting.PaymentBank})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	accrual, err := f.svc.RecordPayrollAccrual(ctx, actor, PayrollAccrualEvent{PayrollID: 5, Gross: d("2000"), Net: d("1560")})
	require.NoError(t, err)
	require.Equal(t, "2000", lineFor(t, accrual, accounting.AccountSalaries).Debit.String())
	require.Equal(t, "1560", lineFor(t, accrual, accounting.AccountSalariesPayable).Credit.String())
	require.Equal(t, "440", lineFor(t, accrual, accounting.AccountSocialCharges).Credit.String())
	require.Equal(t, accrual.ID, *f.db.state.payroll[5].AccrualEntryID)

	_, err = f.svc.RecordPayrollAccrual(ctx, actor, PayrollAccrualEvent{PayrollID: 5, Gross: d("2000"), Net: d("1560")})
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)

	payment, err := f.svc.RecordSalaryPayment(ctx, actor, SalaryPaymentEvent{PayrollID: 5, PaymentMethod: accounting.PaymentBank})
	require.NoError(t, err)
	require.Equal(t, "PA-SAL-5-9", payment.Reference)
	require.Equal(t, "1560", lineFor(t, payment, accounting.AccountBank).Credit.String())
	require.Equal(t, payment.ID, *f.db.state.payroll[5].PaymentEntryID)

	_, err = f.svc.RecordSalaryPayment(ctx, actor, SalaryPaymentEvent{PayrollID: 5, PaymentMethod: accounting.PaymentCash})
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
}

func TestStockAdjustmentPostsValueDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(1, stock.LocationWarehouseA, "100", "250")

	res, err := f.svc.RecordStockAdjustment(ctx, actor, AdjustmentEvent{
		AdjustmentID: 3, ProductID: 1, Location: stock.LocationWarehouseA, QuantityDelta: d("-4"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	require.Equal(t, "OD-STK-3", res.Entry.Reference)
	require.Equal(t, "10", lineFor(t, *res.Entry, accounting.AccountOtherExpenses).Debit.String())
	require.Equal(t, "10", lineFor(t, *res.Entry, accounting.AccountStock).Credit.String())
	require.Equal(t, "240", f.stock(1).TotalValue().String())

	cost := d("3")
	res, err = f.svc.RecordStockAdjustment(ctx, actor, AdjustmentEvent{
		AdjustmentID: 4, ProductID: 1, Location: stock.LocationWarehouseB, QuantityDelta: d("4"), UnitCost: &cost,
	})
	require.NoError(t, err)
	require.Equal(t, "12", lineFor(t, *res.Entry, accounting.AccountStock).Debit.String())
	require.Equal(t, "12", lineFor(t, *res.Entry, accounting.AccountOtherIncome).Credit.String())
}

func TestZeroValueAdjustmentIsNotReplayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(7, stock.LocationWarehouseA, "10", "0")

	ev := AdjustmentEvent{AdjustmentID: 9, ProductID: 7, Location: stock.LocationWarehouseA, QuantityDelta: d("-2")}
	res, err := f.svc.RecordStockAdjustment(ctx, actor, ev)
	require.NoError(t, err)
	require.Nil(t, res.Entry)
	require.Equal(t, "8", f.stock(7).Quantity(stock.LocationWarehouseA).String())

	_, err = f.svc.RecordStockAdjustment(ctx, actor, ev)
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.Equal(t, "STK-9", shared.CodeOf(err))
	require.Equal(t, "8", f.stock(7).Quantity(stock.LocationWarehouseA).String())

	waste := WasteEvent{WasteID: 9, ProductID: 7, Location: stock.LocationWarehouseA, Quantity: d("1"), Reason: WasteExpired}
	_, err = f.svc.RecordWaste(ctx, actor, waste)
	require.NoError(t, err)
	_, err = f.svc.RecordWaste(ctx, actor, waste)
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.Equal(t, "7", f.stock(7).Quantity(stock.LocationWarehouseA).String())
}

func TestWasteBooksLoss(t *testing.T) {
	f := newFixture(t)
	f.seed(10, stock.LocationCounter, "20", "30")

	res, err := f.svc.RecordWaste(context.Background(), actor, WasteEvent{WasteID: 3, ProductID: 10, Quantity: d("4"), Reason: WasteExpired})
	require.NoError(t, err)
	require.Equal(t, "OD-STK-WASTE3", res.Entry.Reference)
	require.Equal(t, "6", lineFor(t, *res.Entry, accounting.AccountOtherExpenses).Debit.String())
	require.Equal(t, "16", f.stock(10).Quantity(stock.LocationCounter).String())
	require.Len(t, f.audit.logs, 2)
}

func TestProductionValuesFinishedGoodsAtConsumedCost(t *testing.T) {
	f := newFixture(t)
	f.seed(1, stock.LocationWarehouseB, "10", "20")
	f.seed(2, stock.LocationWarehouseB, "5", "40")

	res, err := f.svc.RecordProduction(context.Background(), actor, ProductionEvent{
		ProductID: 30,
		Quantity:  d("20"),
		Ingredients: []Ingredient{
			{ProductID: 1, Quantity: d("4")},
			{ProductID: 2, Quantity: d("1")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "0.8", res.UnitCost.String())
	require.Equal(t, "16", f.stock(30).Value(stock.LocationCounter).String())
	require.Equal(t, "6", f.stock(1).Quantity(stock.LocationWarehouseB).String())
	require.Empty(t, f.db.state.entries)
}

func TestTransferKeepsTotalValue(t *testing.T) {
	f := newFixture(t)
	f.seed(1, stock.LocationWarehouseA, "10", "25")

	out, in, err := f.svc.TransferStock(context.Background(), actor, TransferEvent{
		ProductID: 1, From: stock.LocationWarehouseA, To: stock.LocationWarehouseB, Quantity: d("4"),
	})
	require.NoError(t, err)
	require.Equal(t, "6", out.LocationQuantity.String())
	require.Equal(t, "4", in.LocationQuantity.String())
	require.Equal(t, "25", f.stock(1).TotalValue().String())

	_, _, err = f.svc.TransferStock(context.Background(), actor, TransferEvent{
		ProductID: 1, From: stock.LocationWarehouseA, To: stock.LocationWarehouseA, Quantity: d("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestInventoryValidationAppliesVariance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(1, stock.LocationWarehouseA, "100", "250")

	session, items, err := f.svc.OpenInventory(ctx, actor, OpenInventoryEvent{Locations: []stock.Location{stock.LocationWarehouseA}})
	require.NoError(t, err)
	require.Len(t, items, 1)

	item, err := f.svc.CountInventoryItem(ctx, actor, CountEvent{SessionID: session.ID, ItemID: items[0].ID, Physical: d("94"), Reason: inventory.ReasonTheftLoss})
	require.NoError(t, err)
	require.Equal(t, inventory.SeverityNormal, item.Severity)

	_, err = f.svc.CompleteInventory(ctx, actor, session.ID)
	require.NoError(t, err)

	key := shared.InventorySessionLockKey(session.ID)
	f.locker.held[key] = true
	_, _, err = f.svc.ValidateInventory(ctx, actor, session.ID, true)
	require.ErrorIs(t, err, shared.ErrConcurrentUpdate)
	delete(f.locker.held, key)

	validated, applied, err := f.svc.ValidateInventory(ctx, actor, session.ID, true)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusValidated, validated.Status)
	require.Len(t, applied, 1)
	require.Equal(t, []string{key}, f.locker.acquired)
	require.Empty(t, f.locker.held)

	require.Equal(t, "94", f.stock(1).Quantity(stock.LocationWarehouseA).String())
	require.Equal(t, "235", f.stock(1).TotalValue().String())
	require.Len(t, f.db.state.entries, 1)
	entry := f.db.state.entries[0]
	require.Equal(t, fmt.Sprintf("STK-INV%d-%d", session.ID, items[0].ID), entry.ExternalRef)
	require.Equal(t, "15", lineFor(t, entry, accounting.AccountOtherExpenses).Debit.String())

	closed, err := f.svc.CloseInventory(ctx, actor, session.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusClosed, closed.Status)
}

func TestAllocateConsumablesPreview(t *testing.T) {
	f := newFixture(t)
	f.db.state.categories[1] = pastryCategory()

	allocs, err := f.svc.AllocateConsumables(context.Background(), 1, 75)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, int64(504), allocs[0].PackagingProductID)
	require.Equal(t, int64(501), allocs[1].PackagingProductID)
}
