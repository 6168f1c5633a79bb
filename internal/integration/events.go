package integration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/inventory"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// SaleLine is one sold product. ConsumableCategoryID, when set, draws packaging.
type SaleLine struct {
	ProductID            int64           `validate:"gt=0"`
	Quantity             decimal.Decimal `validate:"gt=0"`
	ConsumableCategoryID int64           `validate:"gte=0"`
}

// SaleEvent is a paid or credited customer order.
type SaleEvent struct {
	OrderID       int64                    `validate:"gt=0"`
	Amount        decimal.Decimal          `validate:"gt=0"`
	PaymentMethod accounting.PaymentMethod `validate:"oneof=cash bank credit"`
	Description   string
	Lines         []SaleLine `validate:"dive"`
}

// PurchaseLine is one received product.
type PurchaseLine struct {
	ProductID int64           `validate:"gt=0"`
	Location  stock.Location  `validate:"required"`
	Quantity  decimal.Decimal `validate:"gt=0"`
	UnitCost  decimal.Decimal `validate:"gte=0"`
}

// PurchaseEvent is a supplier delivery.
type PurchaseEvent struct {
	PurchaseID    int64                    `validate:"gt=0"`
	PaymentMethod accounting.PaymentMethod `validate:"oneof=cash bank credit"`
	Description   string
	PaymentDate   *time.Time
	Lines         []PurchaseLine `validate:"required,min=1,dive"`
}

// CashMovementEvent is a miscellaneous till in or out.
type CashMovementEvent struct {
	MovementID  int64                `validate:"gt=0"`
	Amount      decimal.Decimal      `validate:"gt=0"`
	Direction   accounting.Direction `validate:"oneof=IN OUT"`
	Description string
}

// BankDepositEvent carries cash from the till to the bank.
type BankDepositEvent struct {
	MovementID  int64           `validate:"gt=0"`
	Amount      decimal.Decimal `validate:"gt=0"`
	Description string
}

// PayrollAccrualEvent books the monthly salary of one payroll record.
type PayrollAccrualEvent struct {
	PayrollID   int64           `validate:"gt=0"`
	Gross       decimal.Decimal `validate:"gt=0"`
	Net         decimal.Decimal `validate:"gt=0"`
	Description string
}

// SalaryPaymentEvent settles an accrued payroll record.
type SalaryPaymentEvent struct {
	PayrollID     int64                    `validate:"gt=0"`
	PaymentMethod accounting.PaymentMethod `validate:"oneof=cash bank"`
	Description   string
}

// AdjustmentEvent corrects the quantity of one product at one location.
// UnitCost overrides the current cost for an increase.
type AdjustmentEvent struct {
	AdjustmentID  int64            `validate:"gt=0"`
	ProductID     int64            `validate:"gt=0"`
	Location      stock.Location   `validate:"required"`
	QuantityDelta decimal.Decimal  `validate:"ne=0"`
	UnitCost      *decimal.Decimal `validate:"omitnil,gte=0"`
	Description   string
}

// WasteReason qualifies a waste declaration.
type WasteReason string

const (
	WasteExpired WasteReason = "EXPIRED"
	WasteUnsold  WasteReason = "UNSOLD"
	WasteBroken  WasteReason = "BROKEN"
	WasteDonated WasteReason = "DONATED"
)

// WasteEvent declares products thrown away or given away. Location defaults to the counter.
type WasteEvent struct {
	WasteID     int64           `validate:"gt=0"`
	ProductID   int64           `validate:"gt=0"`
	Location    stock.Location
	Quantity    decimal.Decimal `validate:"gt=0"`
	Reason      WasteReason     `validate:"oneof=EXPIRED UNSOLD BROKEN DONATED"`
	Description string
}

// Ingredient is one input consumed by a production batch.
type Ingredient struct {
	ProductID int64           `validate:"gt=0"`
	Quantity  decimal.Decimal `validate:"gt=0"`
}

// ProductionEvent turns ingredients into finished goods. Ingredients are drawn
// from the production warehouse unless Source is set.
type ProductionEvent struct {
	ProductID   int64           `validate:"gt=0"`
	Quantity    decimal.Decimal `validate:"gt=0"`
	Source      stock.Location
	Ingredients []Ingredient    `validate:"required,min=1,dive"`
}

// TransferEvent moves stock between two locations.
type TransferEvent struct {
	ProductID int64           `validate:"gt=0"`
	From      stock.Location  `validate:"required"`
	To        stock.Location  `validate:"required,nefield=From"`
	Quantity  decimal.Decimal `validate:"gt=0"`
}

// OpenInventoryEvent starts a count campaign.
type OpenInventoryEvent = inventory.OpenInput

// CountEvent records one physical count.
type CountEvent = inventory.CountInput
