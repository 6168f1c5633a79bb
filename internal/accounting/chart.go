package accounting

import (
	"context"
	"sort"
	"strings"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// Account codes the posting engine depends on.
const (
	AccountStock           = "300"
	AccountSuppliers       = "401"
	AccountCustomers       = "411"
	AccountSalariesPayable = "421"
	AccountSocialCharges   = "431"
	AccountBank            = "512"
	AccountCash            = "530"
	AccountPurchases       = "601"
	AccountSalaries        = "641"
	AccountOtherExpenses   = "658"
	AccountSales           = "701"
	AccountOtherIncome     = "758"
)

// Journal codes the posting engine depends on.
const (
	JournalCodeSales     = "VT"
	JournalCodePurchases = "AC"
	JournalCodeCash      = "CA"
	JournalCodeBank      = "BQ"
	JournalCodeMisc      = "OD"
	JournalCodePayroll   = "PA"
)

// RequiredAccounts lists every account code that must exist and be active at boot.
var RequiredAccounts = []string{
	AccountStock, AccountSuppliers, AccountCustomers, AccountSalariesPayable,
	AccountSocialCharges, AccountBank, AccountCash, AccountPurchases,
	AccountSalaries, AccountOtherExpenses, AccountSales, AccountOtherIncome,
}

// RequiredJournals lists every journal code that must exist and be active at boot.
var RequiredJournals = []string{
	JournalCodeSales, JournalCodePurchases, JournalCodeCash,
	JournalCodeBank, JournalCodeMisc, JournalCodePayroll,
}

// ChartReader loads the chart of accounts and journals.
type ChartReader interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	ListJournals(ctx context.Context) ([]Journal, error)
}

// Chart is the typed registry of accounts and journals resolved once at startup.
type Chart struct {
	accounts map[string]Account
	journals map[string]Journal
}

// NewChart indexes accounts and journals by code.
func NewChart(accounts []Account, journals []Journal) *Chart {
	c := &Chart{
		accounts: make(map[string]Account, len(accounts)),
		journals: make(map[string]Journal, len(journals)),
	}
	for _, a := range accounts {
		c.accounts[a.Code] = a
	}
	for _, j := range journals {
		c.journals[j.Code] = j
	}
	return c
}

// LoadChart reads the chart and verifies every required code is present and active.
func LoadChart(ctx context.Context, reader ChartReader) (*Chart, error) {
	accounts, err := reader.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	journals, err := reader.ListJournals(ctx)
	if err != nil {
		return nil, err
	}
	chart := NewChart(accounts, journals)
	if err := chart.Verify(RequiredAccounts, RequiredJournals); err != nil {
		return nil, err
	}
	return chart, nil
}

// Verify reports every missing or inactive code in a single CONFIGURATION error.
func (c *Chart) Verify(accountCodes, journalCodes []string) error {
	var missing []string
	for _, code := range accountCodes {
		if a, ok := c.accounts[code]; !ok || !a.Active {
			missing = append(missing, "account "+code)
		}
	}
	for _, code := range journalCodes {
		if j, ok := c.journals[code]; !ok || !j.Active {
			missing = append(missing, "journal "+code)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return shared.E(shared.KindConfiguration, "accounting.chart", missing[0], "missing or inactive: %s", strings.Join(missing, ", "))
}

// Account resolves an active account by code.
func (c *Chart) Account(code string) (Account, error) {
	a, ok := c.accounts[code]
	if !ok || !a.Active {
		return Account{}, shared.E(shared.KindConfiguration, "accounting.resolve", code, "account not found or inactive")
	}
	return a, nil
}

// Journal resolves an active journal by code.
func (c *Chart) Journal(code string) (Journal, error) {
	j, ok := c.journals[code]
	if !ok || !j.Active {
		return Journal{}, shared.E(shared.KindConfiguration, "accounting.resolve", code, "journal not found or inactive")
	}
	return j, nil
}

// Accounts returns accounts sorted by code.
func (c *Chart) Accounts() []Account {
	out := make([]Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
