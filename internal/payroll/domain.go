package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one employee's payroll line for a month.
type Record struct {
	ID             int64
	EmployeeID     int64
	Year           int
	Month          int
	Gross          decimal.Decimal
	Net            decimal.Decimal
	AccrualEntryID *int64
	PaymentEntryID *int64
	PaidAt         *time.Time
	CreatedAt      time.Time
}

// Accrued reports whether the accrual entry has been posted.
func (r Record) Accrued() bool {
	return r.AccrualEntryID != nil
}

// Paid reports whether the salary payment entry has been posted.
func (r Record) Paid() bool {
	return r.PaymentEntryID != nil
}

// SocialCharges is the share of gross withheld from net.
func (r Record) SocialCharges() decimal.Decimal {
	return r.Gross.Sub(r.Net)
}
