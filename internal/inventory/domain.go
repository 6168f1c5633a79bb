package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/stock"
)

// Status tracks the inventory session lifecycle.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusComplete  Status = "COMPLETE"
	StatusValidated Status = "VALIDATED"
	StatusClosed    Status = "CLOSED"
)

// Severity classifies a variance percentage.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityNormal   Severity = "NORMAL"
	SeverityCritical Severity = "CRITICAL"
)

// AdjustmentReason explains a counted variance.
type AdjustmentReason string

const (
	ReasonUnsoldDonated        AdjustmentReason = "UNSOLD_DONATED"
	ReasonExpired              AdjustmentReason = "EXPIRED"
	ReasonTheftLoss            AdjustmentReason = "THEFT_LOSS"
	ReasonEntryError           AdjustmentReason = "ENTRY_ERROR"
	ReasonUnrecordedSale       AdjustmentReason = "UNRECORDED_SALE"
	ReasonUndeclaredProduction AdjustmentReason = "UNDECLARED_PRODUCTION"
	ReasonOther                AdjustmentReason = "OTHER"
)

// Valid reports whether r is a known reason. Empty is allowed.
func (r AdjustmentReason) Valid() bool {
	switch r {
	case "", ReasonUnsoldDonated, ReasonExpired, ReasonTheftLoss, ReasonEntryError,
		ReasonUnrecordedSale, ReasonUndeclaredProduction, ReasonOther:
		return true
	}
	return false
}

var (
	okThreshold     = decimal.NewFromInt(5)
	normalThreshold = decimal.NewFromInt(10)
	hundred         = decimal.NewFromInt(100)
)

// VarianceThreshold is the absolute variance below which an item counts as matching.
var VarianceThreshold = decimal.New(1, -2)

// Session is one physical count campaign.
type Session struct {
	ID                 int64
	InventoryDate      time.Time
	Month              int
	Year               int
	Locations          []stock.Location
	Status             Status
	CreatedBy          int64
	CreatedAt          time.Time
	CompletedAt        *time.Time
	ValidatedAt        *time.Time
	ValidatedBy        *int64
	ClosedAt           *time.Time
	Notes              string
	TotalItems         int
	ItemsWithVariance  int
	TotalVarianceValue decimal.Decimal
}

// CanCount reports whether physical counts may still be entered.
func (s Session) CanCount() bool {
	return s.Status == StatusOpen || s.Status == StatusComplete
}

// Item is one product at one location within a session.
type Item struct {
	ID            int64
	SessionID     int64
	ProductID     int64
	Location      stock.Location
	Theoretical   decimal.Decimal
	Physical      *decimal.Decimal
	Variance      decimal.Decimal
	VariancePct   decimal.Decimal
	Severity      Severity
	UnitCost      decimal.Decimal
	VarianceValue decimal.Decimal
	Reason        AdjustmentReason
	Notes         string
	CountedAt     *time.Time
	CountedBy     *int64
	Applied       bool
	AppliedAt     *time.Time
}

// Counted reports whether a physical count was entered.
func (i Item) Counted() bool {
	return i.Physical != nil
}

// HasVariance reports whether the count differs from the snapshot by more than a cent.
func (i Item) HasVariance() bool {
	return i.Counted() && i.Variance.Abs().GreaterThan(VarianceThreshold)
}

// Classify derives variance, percentage and severity from a count.
func Classify(theoretical, physical decimal.Decimal) (variance, pct decimal.Decimal, severity Severity) {
	variance = physical.Sub(theoretical)
	switch {
	case !theoretical.IsZero():
		pct = variance.Div(theoretical).Mul(hundred).Round(4)
	case physical.IsPositive():
		pct = hundred
	default:
		pct = decimal.Zero
	}
	abs := pct.Abs()
	switch {
	case abs.LessThan(okThreshold):
		severity = SeverityOK
	case abs.LessThanOrEqual(normalThreshold):
		severity = SeverityNormal
	default:
		severity = SeverityCritical
	}
	return variance, pct, severity
}

// Summarize recomputes session statistics from its items.
func Summarize(s *Session, items []Item) {
	s.TotalItems = len(items)
	s.ItemsWithVariance = 0
	s.TotalVarianceValue = decimal.Zero
	for _, it := range items {
		if it.HasVariance() {
			s.ItemsWithVariance++
		}
		s.TotalVarianceValue = s.TotalVarianceValue.Add(it.VarianceValue)
	}
}
