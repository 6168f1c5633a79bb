package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountClass follows the seven classes of the national chart of accounts.
type AccountClass int

const (
	ClassCapital     AccountClass = 1
	ClassFixedAssets AccountClass = 2
	ClassStock       AccountClass = 3
	ClassThirdParty  AccountClass = 4
	ClassFinancial   AccountClass = 5
	ClassExpense     AccountClass = 6
	ClassRevenue     AccountClass = 7
)

// Nature tells which side increases an account balance.
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// JournalCategory groups journals by business process.
type JournalCategory string

const (
	JournalSales     JournalCategory = "SALES"
	JournalPurchases JournalCategory = "PURCHASES"
	JournalCash      JournalCategory = "CASH"
	JournalBank      JournalCategory = "BANK"
	JournalMisc      JournalCategory = "MISC"
	JournalPayroll   JournalCategory = "PAYROLL"
)

// Account models a chart of accounts node.
type Account struct {
	ID       int64
	Code     string
	Name     string
	Class    AccountClass
	Nature   Nature
	ParentID *int64
	Active   bool
}

// Journal is a named bucket of entries.
type Journal struct {
	ID       int64
	Code     string
	Name     string
	Category JournalCategory
	Active   bool
}

// JournalEntry captures one balanced posting.
type JournalEntry struct {
	ID             int64
	Reference      string
	JournalID      int64
	JournalCode    string
	Sequence       int64
	EntryDate      time.Time
	AccountingDate time.Time
	Description    string
	ExternalRef    string
	SourceID       uuid.UUID
	Validated      bool
	ValidatedAt    *time.Time
	ValidatedBy    *int64
	CreatedBy      int64
	CreatedAt      time.Time
	Lines          []JournalEntryLine
}

// JournalEntryLine stores a debit or credit amount against one account.
type JournalEntryLine struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	LineNumber  int
}

// TotalDebit sums the debit column.
func (e JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.Debit)
	}
	return total
}

// TotalCredit sums the credit column.
func (e JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.Credit)
	}
	return total
}

// IsBalanced reports whether debits equal credits within one cent.
func (e JournalEntry) IsBalanced() bool {
	return e.TotalDebit().Sub(e.TotalCredit()).Abs().LessThan(balanceTolerance)
}

// Balance applies the nature sign convention to raw debit/credit totals.
func Balance(nature Nature, debit, credit decimal.Decimal) decimal.Decimal {
	if nature == NatureCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// AccountBalance is the derived balance of one account over validated entries.
type AccountBalance struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Amount returns the signed balance according to the account nature.
func (b AccountBalance) Amount() decimal.Decimal {
	return Balance(b.Account.Nature, b.Debit, b.Credit)
}

// PaymentMethod selects the treasury or third-party account.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentBank   PaymentMethod = "bank"
	PaymentCredit PaymentMethod = "credit"
)

// Direction qualifies cash movements and stock adjustments.
type Direction string

const (
	DirectionIn       Direction = "IN"
	DirectionOut      Direction = "OUT"
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

var balanceTolerance = decimal.New(1, -2)

// Round2 rounds a monetary amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
