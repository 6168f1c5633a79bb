package accounting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// SourceNamespace seeds the deterministic source id of every entry.
var SourceNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("bakery-erp/journal_entries"))

// SourceIDFor derives the idempotency key for an external reference.
func SourceIDFor(externalRef string) uuid.UUID {
	return uuid.NewSHA1(SourceNamespace, []byte(externalRef))
}

// TxRepository is the transactional storage contract the engine posts through.
type TxRepository interface {
	FindEntryByExternalRef(ctx context.Context, externalRef string) (JournalEntry, bool, error)
	LockJournal(ctx context.Context, code string) (Journal, int64, error)
	AccountsForShare(ctx context.Context, codes []string) ([]Account, error)
	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []JournalEntryLine) error
}

// PostingLine is one requested debit or credit.
type PostingLine struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// Posting describes an entry before resolution.
type Posting struct {
	JournalCode string
	ExternalRef string
	Date        time.Time
	Description string
	Lines       []PostingLine
}

// Engine maps business events to balanced journal entries.
type Engine struct {
	chart *Chart
}

// NewEngine builds an engine over a verified chart.
func NewEngine(chart *Chart) *Engine {
	return &Engine{chart: chart}
}

// Chart exposes the registry the engine resolves through.
func (e *Engine) Chart() *Chart {
	return e.chart
}

// CheckBalanced fails with UNBALANCED_ENTRY when debits and credits differ by a cent or more.
func CheckBalanced(entry JournalEntry) error {
	if entry.IsBalanced() {
		return nil
	}
	return shared.E(shared.KindUnbalancedEntry, "accounting.post", entry.ExternalRef,
		"debit %s != credit %s", entry.TotalDebit().StringFixed(2), entry.TotalCredit().StringFixed(2))
}

// Post resolves, checks and persists one entry inside tx.
func (e *Engine) Post(ctx context.Context, tx TxRepository, actor shared.Actor, p Posting) (JournalEntry, error) {
	const op = "accounting.post"
	if e == nil || e.chart == nil {
		return JournalEntry{}, shared.E(shared.KindConfiguration, op, "", "engine has no chart")
	}
	if strings.TrimSpace(p.ExternalRef) == "" {
		return JournalEntry{}, shared.E(shared.KindValidation, op, "", "external reference required")
	}
	if len(p.Lines) < 2 {
		return JournalEntry{}, shared.E(shared.KindValidation, op, p.ExternalRef, "at least two lines required")
	}
	if _, err := e.chart.Journal(p.JournalCode); err != nil {
		return JournalEntry{}, err
	}

	codes := make([]string, 0, len(p.Lines))
	seen := make(map[string]struct{}, len(p.Lines))
	lines := make([]JournalEntryLine, 0, len(p.Lines))
	for i, pl := range p.Lines {
		account, err := e.chart.Account(pl.AccountCode)
		if err != nil {
			return JournalEntry{}, err
		}
		debit, credit := Round2(pl.Debit), Round2(pl.Credit)
		if debit.IsNegative() || credit.IsNegative() {
			return JournalEntry{}, shared.E(shared.KindValidation, op, p.ExternalRef, "line %d has a negative amount", i+1)
		}
		if debit.IsZero() == credit.IsZero() {
			return JournalEntry{}, shared.E(shared.KindValidation, op, p.ExternalRef, "line %d must carry exactly one side", i+1)
		}
		lines = append(lines, JournalEntryLine{
			AccountID:   account.ID,
			AccountCode: account.Code,
			Debit:       debit,
			Credit:      credit,
			Description: pl.Description,
			LineNumber:  i + 1,
		})
		if _, ok := seen[account.Code]; !ok {
			seen[account.Code] = struct{}{}
			codes = append(codes, account.Code)
		}
	}

	date := p.Date
	if date.IsZero() {
		date = actor.Today()
	}
	now := actor.Time()
	entry := JournalEntry{
		Reference:      p.JournalCode + "-" + p.ExternalRef,
		JournalCode:    p.JournalCode,
		EntryDate:      date,
		AccountingDate: date,
		Description:    p.Description,
		ExternalRef:    p.ExternalRef,
		SourceID:       SourceIDFor(p.ExternalRef),
		CreatedBy:      actor.UserID,
		Lines:          lines,
	}
	if err := CheckBalanced(entry); err != nil {
		return JournalEntry{}, err
	}

	existing, found, err := tx.FindEntryByExternalRef(ctx, p.ExternalRef)
	if err != nil {
		return JournalEntry{}, err
	}
	if found {
		return JournalEntry{}, shared.E(shared.KindDuplicatePosting, op, existing.Reference, "external ref %s already posted", p.ExternalRef)
	}

	journal, seq, err := tx.LockJournal(ctx, p.JournalCode)
	if err != nil {
		return JournalEntry{}, err
	}
	if !journal.Active {
		return JournalEntry{}, shared.E(shared.KindConfiguration, op, p.JournalCode, "journal not found or inactive")
	}
	live, err := tx.AccountsForShare(ctx, codes)
	if err != nil {
		return JournalEntry{}, err
	}
	liveByCode := make(map[string]Account, len(live))
	for _, a := range live {
		liveByCode[a.Code] = a
	}
	for _, code := range codes {
		if a, ok := liveByCode[code]; !ok || !a.Active {
			return JournalEntry{}, shared.E(shared.KindConfiguration, op, code, "account not found or inactive")
		}
	}
	for i := range entry.Lines {
		entry.Lines[i].AccountID = liveByCode[entry.Lines[i].AccountCode].ID
	}

	entry.JournalID = journal.ID
	entry.Sequence = seq
	entry.Validated = true
	entry.ValidatedAt = &now
	validatedBy := actor.UserID
	entry.ValidatedBy = &validatedBy

	inserted, err := tx.InsertJournalEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	for i := range entry.Lines {
		entry.Lines[i].EntryID = inserted.ID
	}
	if err := tx.InsertJournalLines(ctx, inserted.ID, entry.Lines); err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines = entry.Lines
	return inserted, nil
}

func positiveAmount(op, ref string, amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := Round2(amount)
	if !rounded.IsPositive() {
		return decimal.Zero, shared.E(shared.KindValidation, op, ref, "amount must be positive, got %s", amount.String())
	}
	return rounded, nil
}

func treasuryAccount(op, ref string, method PaymentMethod, creditAccount string) (string, error) {
	switch method {
	case PaymentCash:
		return AccountCash, nil
	case PaymentBank:
		return AccountBank, nil
	case PaymentCredit:
		if creditAccount != "" {
			return creditAccount, nil
		}
	}
	return "", shared.E(shared.KindValidation, op, ref, "unsupported payment method %q", method)
}

func twoLines(debitCode, creditCode string, amount decimal.Decimal, desc string) []PostingLine {
	return []PostingLine{
		{AccountCode: debitCode, Debit: amount, Description: desc},
		{AccountCode: creditCode, Credit: amount, Description: desc},
	}
}

// PostSale books a sale: treasury or customer against revenue.
func (e *Engine) PostSale(ctx context.Context, tx TxRepository, actor shared.Actor, orderID int64, amount decimal.Decimal, method PaymentMethod, desc string) (JournalEntry, error) {
	const op = "accounting.sale"
	ref := fmt.Sprintf("CMD-%d", orderID)
	amount, err := positiveAmount(op, ref, amount)
	if err != nil {
		return JournalEntry{}, err
	}
	debit, err := treasuryAccount(op, ref, method, AccountCustomers)
	if err != nil {
		return JournalEntry{}, err
	}
	return e.Post(ctx, tx, actor, Posting{
		JournalCode: JournalCodeSales,
		ExternalRef: ref,
		Description: orDefault(desc, fmt.Sprintf("Sale order %d", orderID)),
		Lines:       twoLines(debit, AccountSales, amount, desc),
	})
}

// PostPurchase books a purchase against treasury or supplier. paymentDate overrides the entry date.
func (e *Engine) PostPurchase(ctx context.Context, tx TxRepository, actor shared.Actor, purchaseID int64, amount decimal.Decimal, method PaymentMethod, desc string, paymentDate *time.Time) (JournalEntry, error) {
	const op = "accounting.purchase"
	ref := fmt.Sprintf("ACH-%d", purchaseID)
	amount, err := positiveAmount(op, ref, amount)
	if err != nil {
		return JournalEntry{}, err
	}
	credit, err := treasuryAccount(op, ref, method, AccountSuppliers)
	if err != nil {
		return JournalEntry{}, err
	}
	p := Posting{
		JournalCode: JournalCodePurchases,
		ExternalRef: ref,
		Description: orDefault(desc, fmt.Sprintf("Purchase %d", purchaseID)),
		Lines:       twoLines(AccountPurchases, credit, amount, desc),
	}
	if paymentDate != nil {
		p.Date = paymentDate.UTC().Truncate(24 * time.Hour)
	}
	return e.Post(ctx, tx, actor, p)
}

// PostCashMovement books a miscellaneous cash in (758) or cash out (658).
func (e *Engine) PostCashMovement(ctx context.Context, tx TxRepository, actor shared.Actor, movementID int64, amount decimal.Decimal, direction Direction, desc string) (JournalEntry, error) {
	const op = "accounting.cash"
	ref := fmt.Sprintf("CASH-%d", movementID)
	amount, err := positiveAmount(op, ref, amount)
	if err != nil {
		return JournalEntry{}, err
	}
	var debit, credit string
	switch direction {
	case DirectionIn:
		debit, credit = AccountCash, AccountOtherIncome
	case DirectionOut:
		debit, credit = AccountOtherExpenses, AccountCash
	default:
		return JournalEntry{}, shared.E(shared.KindValidation, op, ref, "direction must be IN or OUT, got %q", direction)
	}
	return e.Post(ctx, tx, actor, Posting{
		JournalCode: JournalCodeCash,
		ExternalRef: ref,
		Description: orDefault(desc, fmt.Sprintf("Cash movement %d", movementID)),
		Lines:       twoLines(debit, credit, amount, desc),
	})
}

// PostBankDeposit books cash carried to the bank.
func (e *Engine) PostBankDeposit(ctx context.Context, tx TxRepository, actor shared.Actor, movementID int64, amount decimal.Decimal, desc string) (JournalEntry, error) {
	const op = "accounting.deposit"
	ref := fmt.Sprintf("DEPOSIT-%d", movementID)
	amount, err := positiveAmount(op, ref, amount)
	if err != nil {
		return JournalEntry{}, err
	}
	return e.Post(ctx, tx, actor, Posting{
		JournalCode: JournalCodeBank,
		ExternalRef: ref,
		Description: orDefault(desc, fmt.Sprintf("Bank deposit %d", movementID)),
		Lines:       twoLines(AccountBank, AccountCash, amount, desc),
	})
}

// PostPayrollAccrual books gross salary expense against net payable and social charges.
func (e *Engine) PostPayrollAccrual(ctx context.Context, tx TxRepository, actor shared.Actor, payrollID int64, gross, net decimal.Decimal, desc string) (JournalEntry, error) {
	const op = "accounting.payroll_accrual"
	ref := fmt.Sprintf("PAIE-%d", payrollID)
	gross, err := positiveAmount(op, ref, gross)
	if err != nil {
		return JournalEntry{}, err
	}
	net, err = positiveAmount(op, ref, net)
	if err != nil {
		return JournalEntry{}, err
	}
	if net.GreaterThan(gross) {
		return JournalEntry{}, shared.E(shared.KindValidation, op, ref, "net %s exceeds gross %s", net.StringFixed(2), gross.StringFixed(2))
	}
	lines := []PostingLine{
		{AccountCode: AccountSalaries, Debit: gross, Description: desc},
		{AccountCode: AccountSalariesPayable, Credit: net, Description: desc},
	}
	if charges := gross.Sub(net); charges.IsPositive() {
		lines = append(lines, PostingLine{AccountCode: AccountSocialCharges, Credit: charges, Description: desc})
	}
	return e.Post(ctx, tx, actor, Posting{
		JournalCode: JournalCodePayroll,
		ExternalRef: ref,
		Description: orDefault(desc, fmt.Sprintf("Payroll %d", payrollID)),
		Lines:       lines,
	})
}

// PostSalaryPayment settles the net salary payable from cash or bank.
func (e *Engine) PostSalaryPayment(ctx context.Context, tx TxRepository, actor shared.Actor, payrollID, employeeID int64, net decimal.Decimal, method PaymentMethod, desc string) (JournalEntry, error) {
	const op = "accounting.salary_payment"
	ref := fmt.Sprintf("SAL-%d-%d", payrollID, employeeID)
	net, err := positiveAmount(op, ref, net)
	if err != nil {
		return JournalEntry{}, err
	}
	credit, err := treasuryAccount(op, ref, method, "")
	if err != nil {
		return JournalEntry{}, err
	}
	return e.Post(ctx, tx, actor, Posting{
		JournalCode: JournalCodePayroll,
		ExternalRef: ref,
		Description: orDefault(desc, fmt.Sprintf("Salary payment %d employee %d", payrollID, employeeID)),
		Lines:       twoLines(AccountSalariesPayable, credit, net, desc),
	})
}

// PostStockAdjustment books a stock value increase (300/758) or decrease (658/300).
func (e *Engine) PostStockAdjustment(ctx context.Context, tx TxRepository, actor shared.Actor, adjustmentID string, amount decimal.Decimal, direction Direction, desc string) (JournalEntry, error) {
	const op = "accounting.stock_adjustment"
	ref := "STK-" + adjustmentID
	amount, err := positiveAmount(op, ref, amount)
	if err != nil {
		return JournalEntry{}, err
	}
	var debit, credit string
	switch direction {
	case DirectionIncrease:
		debit, credit = AccountStock, AccountOtherIncome
	case DirectionDecrease:
		debit, credit = AccountOtherExpenses, AccountStock
	default:
		return JournalEntry{}, shared.E(shared.KindValidation, op, ref, "direction must be INCREASE or DECREASE, got %q", direction)
	}
	return e.Post(ctx, tx, actor, Posting{
		JournalCode: JournalCodeMisc,
		ExternalRef: ref,
		Description: orDefault(desc, "Stock adjustment "+adjustmentID),
		Lines:       twoLines(debit, credit, amount, desc),
	})
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
