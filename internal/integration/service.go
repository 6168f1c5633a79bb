package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/consumables"
	"github.com/feemaison/bakery-erp/internal/platform/lock"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// Locker serialises work on a business key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Release, error)
}

// AuditRecorder persists audit trail records.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics observes committed business events.
type Metrics interface {
	ObserveEvent(event string, err error, elapsed time.Duration)
	ObserveEntry(journal string, amount float64)
}

// Options carries the optional collaborators of Service.
type Options struct {
	Locker  Locker
	Audit   AuditRecorder
	Metrics Metrics
	Logger  *slog.Logger
	LockTTL time.Duration
}

const defaultLockTTL = 30 * time.Second

// Service turns business events into ledger entries and stock movements,
// one transaction per event.
type Service struct {
	uow     UnitOfWork
	engine  *accounting.Engine
	store   *stock.Store
	locker  Locker
	audit   AuditRecorder
	metrics Metrics
	logger  *slog.Logger
	lockTTL time.Duration
}

// NewService wires the service.
func NewService(uow UnitOfWork, engine *accounting.Engine, store *stock.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Service{
		uow:     uow,
		engine:  engine,
		store:   store,
		locker:  opts.Locker,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  logger,
		lockTTL: ttl,
	}
}

// effects collects what a transaction produced so it can be reported after commit.
type effects struct {
	entries []accounting.JournalEntry
	audits  []shared.AuditLog
}

func (e *effects) posted(actor shared.Actor, entry accounting.JournalEntry, event string) {
	e.entries = append(e.entries, entry)
	e.audits = append(e.audits, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   "post",
		Entity:   "journal_entry",
		EntityID: entry.Reference,
		Meta:     map[string]any{"event": event, "external_ref": entry.ExternalRef, "source_id": entry.SourceID.String()},
		At:       actor.Time(),
	})
}

func (e *effects) record(actor shared.Actor, action, entity, id string, meta map[string]any) {
	e.audits = append(e.audits, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       actor.Time(),
	})
}

func (s *Service) run(ctx context.Context, event string, fn func(ctx context.Context, tx Tx, fx *effects) error) error {
	start := time.Now()
	var fx effects
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		fx = effects{}
		return fn(ctx, tx, &fx)
	})
	if s.metrics != nil {
		s.metrics.ObserveEvent(event, err, time.Since(start))
	}
	if err != nil {
		level := slog.LevelWarn
		if shared.KindOf(err) == "" {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "business event rejected",
			slog.String("event", event),
			slog.String("kind", string(shared.KindOf(err))),
			slog.String("code", shared.CodeOf(err)),
			slog.Any("error", err))
		return err
	}
	for _, entry := range fx.entries {
		if s.metrics != nil {
			amount, _ := entryTotal(entry).Float64()
			s.metrics.ObserveEntry(entry.JournalCode, amount)
		}
		s.logger.Info("journal entry posted",
			slog.String("event", event),
			slog.String("reference", entry.Reference),
			slog.Int64("sequence", entry.Sequence))
	}
	if s.audit != nil {
		for _, log := range fx.audits {
			if err := s.audit.Record(ctx, log); err != nil {
				s.logger.Warn("audit record failed", slog.String("entity", log.Entity), slog.String("id", log.EntityID), slog.Any("error", err))
			}
		}
	}
	return nil
}

func entryTotal(entry accounting.JournalEntry) decimal.Decimal {
	total := decimal.Zero
	for _, l := range entry.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// SaleResult describes a recorded sale.
type SaleResult struct {
	Entry     accounting.JournalEntry
	Movements []stock.MovementResult
	Packaging []consumables.Allocation
}

// RecordSale posts the sale, takes sold products off the counter and consumes
// the packaging their consumable categories call for.
func (s *Service) RecordSale(ctx context.Context, actor shared.Actor, ev SaleEvent) (SaleResult, error) {
	if err := shared.ValidateStruct("integration.sale", ev); err != nil {
		return SaleResult{}, err
	}
	var res SaleResult
	err := s.run(ctx, "sale", func(ctx context.Context, tx Tx, fx *effects) error {
		res = SaleResult{}
		entry, err := s.engine.PostSale(ctx, tx.Ledger(), actor, ev.OrderID, ev.Amount, ev.PaymentMethod, ev.Description)
		if err != nil {
			return err
		}
		res.Entry = entry
		fx.posted(actor, entry, "sale")
		for _, line := range ev.Lines {
			mv, err := s.store.ApplyMovement(ctx, tx.Stock(), stock.Movement{
				ProductID:     line.ProductID,
				Location:      stock.LocationCounter,
				QuantityDelta: line.Quantity.Neg(),
			})
			if err != nil {
				return err
			}
			res.Movements = append(res.Movements, mv)
			if line.ConsumableCategoryID == 0 {
				continue
			}
			allocs, err := consumables.AllocateFor(ctx, tx.Consumables(), line.ConsumableCategoryID, line.Quantity.Ceil().IntPart())
			if err != nil {
				return err
			}
			for _, a := range allocs {
				mv, err := s.store.ApplyMovement(ctx, tx.Stock(), stock.Movement{
					ProductID:     a.PackagingProductID,
					Location:      stock.LocationConsumables,
					QuantityDelta: a.Units().Neg(),
				})
				if err != nil {
					return err
				}
				res.Movements = append(res.Movements, mv)
			}
			res.Packaging = append(res.Packaging, allocs...)
		}
		return nil
	})
	return res, err
}

// PurchaseResult describes a recorded purchase.
type PurchaseResult struct {
	Entry     accounting.JournalEntry
	Movements []stock.MovementResult
}

// RecordPurchase receives goods at their invoiced cost and posts the purchase.
// A replayed purchase fails with DUPLICATE_POSTING before any stock moves.
func (s *Service) RecordPurchase(ctx context.Context, actor shared.Actor, ev PurchaseEvent) (PurchaseResult, error) {
	if err := shared.ValidateStruct("integration.purchase", ev); err != nil {
		return PurchaseResult{}, err
	}
	amount := decimal.Zero
	for _, line := range ev.Lines {
		amount = amount.Add(line.Quantity.Mul(line.UnitCost).Round(2))
	}
	var res PurchaseResult
	err := s.run(ctx, "purchase", func(ctx context.Context, tx Tx, fx *effects) error {
		res = PurchaseResult{}
		entry, err := s.engine.PostPurchase(ctx, tx.Ledger(), actor, ev.PurchaseID, amount, ev.PaymentMethod, ev.Description, ev.PaymentDate)
		if err != nil {
			return err
		}
		res.Entry = entry
		fx.posted(actor, entry, "purchase")
		for _, line := range ev.Lines {
			cost := line.UnitCost
			mv, err := s.store.ApplyMovement(ctx, tx.Stock(), stock.Movement{
				ProductID:        line.ProductID,
				Location:         line.Location,
				QuantityDelta:    line.Quantity,
				UnitCostOverride: &cost,
			})
			if err != nil {
				return err
			}
			res.Movements = append(res.Movements, mv)
		}
		return nil
	})
	return res, err
}

// RecordCashMovement posts a miscellaneous till movement.
func (s *Service) RecordCashMovement(ctx context.Context, actor shared.Actor, ev CashMovementEvent) (accounting.JournalEntry, error) {
	if err := shared.ValidateStruct("integration.cash", ev); err != nil {
		return accounting.JournalEntry{}, err
	}
	return s.postOnly(ctx, actor, "cash_movement", func(ctx context.Context, tx Tx) (accounting.JournalEntry, error) {
		return s.engine.PostCashMovement(ctx, tx.Ledger(), actor, ev.MovementID, ev.Amount, ev.Direction, ev.Description)
	})
}

// RecordBankDeposit posts cash carried to the bank.
func (s *Service) RecordBankDeposit(ctx context.Context, actor shared.Actor, ev BankDepositEvent) (accounting.JournalEntry, error) {
	if err := shared.ValidateStruct("integration.deposit", ev); err != nil {
		return accounting.JournalEntry{}, err
	}
	return s.postOnly(ctx, actor, "bank_deposit", func(ctx context.Context, tx Tx) (accounting.JournalEntry, error) {
		return s.engine.PostBankDeposit(ctx, tx.Ledger(), actor, ev.MovementID, ev.Amount, ev.Description)
	})
}

func (s *Service) postOnly(ctx context.Context, actor shared.Actor, event string, post func(ctx context.Context, tx Tx) (accounting.JournalEntry, error)) (accounting.JournalEntry, error) {
	var entry accounting.JournalEntry
	err := s.run(ctx, event, func(ctx context.Context, tx Tx, fx *effects) error {
		e, err := post(ctx, tx)
		if err != nil {
			return err
		}
		entry = e
		fx.posted(actor, e, event)
		return nil
	})
	return entry, err
}

// RecordPayrollAccrual posts the salary expense of a payroll record and links the entry to it.
func (s *Service) RecordPayrollAccrual(ctx context.Context, actor shared.Actor, ev PayrollAccrualEvent) (accounting.JournalEntry, error) {
	const op = "integration.payroll_accrual"
	if err := shared.ValidateStruct(op, ev); err != nil {
		return accounting.JournalEntry{}, err
	}
	var entry accounting.JournalEntry
	err := s.run(ctx, "payroll_accrual", func(ctx context.Context, tx Tx, fx *effects) error {
		rec, err := tx.Payroll().GetForUpdate(ctx, ev.PayrollID)
		if err != nil {
			return err
		}
		if rec.Accrued() {
			return shared.E(shared.KindDuplicatePosting, op, fmt.Sprintf("PAIE-%d", rec.ID), "payroll %d already accrued", rec.ID)
		}
		entry, err = s.engine.PostPayrollAccrual(ctx, tx.Ledger(), actor, rec.ID, ev.Gross, ev.Net, ev.Description)
		if err != nil {
			return err
		}
		if err := tx.Payroll().SetAccrual(ctx, rec.ID, ev.Gross.Round(2), ev.Net.Round(2), entry.ID); err != nil {
			return err
		}
		fx.posted(actor, entry, "payroll_accrual")
		return nil
	})
	return entry, err
}

// RecordSalaryPayment settles the net salary of an accrued payroll record.
func (s *Service) RecordSalaryPayment(ctx context.Context, actor shared.Actor, ev SalaryPaymentEvent) (accounting.JournalEntry, error) {
	const op = "integration.salary_payment"
	if err := shared.ValidateStruct(op, ev); err != nil {
		return accounting.JournalEntry{}, err
	}
	var entry accounting.JournalEntry
	err := s.run(ctx, "salary_payment", func(ctx context.Context, tx Tx, fx *effects) error {
		rec, err := tx.Payroll().GetForUpdate(ctx, ev.PayrollID)
		if err != nil {
			return err
		}
		if !rec.Accrued() {
			return shared.E(shared.KindInvalidState, op, "", "payroll %d has no accrual entry", rec.ID)
		}
		if rec.Paid() {
			return shared.E(shared.KindDuplicatePosting, op, fmt.Sprintf("SAL-%d-%d", rec.ID, rec.EmployeeID), "payroll %d already paid", rec.ID)
		}
		entry, err = s.engine.PostSalaryPayment(ctx, tx.Ledger(), actor, rec.ID, rec.EmployeeID, rec.Net, ev.PaymentMethod, ev.Description)
		if err != nil {
			return err
		}
		if err := tx.Payroll().SetPayment(ctx, rec.ID, entry.ID, actor.Time()); err != nil {
			return err
		}
		fx.posted(actor, entry, "salary_payment")
		return nil
	})
	return entry, err
}

// AdjustmentResult describes a stock correction. Entry is nil when the value did not change.
type AdjustmentResult struct {
	Movement stock.MovementResult
	Entry    *accounting.JournalEntry
}

// RecordStockAdjustment moves stock and books the resulting value change.
func (s *Service) RecordStockAdjustment(ctx context.Context, actor shared.Actor, ev AdjustmentEvent) (AdjustmentResult, error) {
	if err := shared.ValidateStruct("integration.stock_adjustment", ev); err != nil {
		return AdjustmentResult{}, err
	}
	var res AdjustmentResult
	err := s.run(ctx, "stock_adjustment", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		res, err = s.adjust(ctx, tx, fx, actor, stock.Movement{
			ProductID:        ev.ProductID,
			Location:         ev.Location,
			QuantityDelta:    ev.QuantityDelta,
			UnitCostOverride: ev.UnitCost,
		}, strconv.FormatInt(ev.AdjustmentID, 10), ev.Description)
		return err
	})
	return res, err
}

// adjust applies m and posts its value delta under adjustment reference id.
// The reference is claimed first so a replayed adjustment is refused even when
// it carries no value and posts no entry.
func (s *Service) adjust(ctx context.Context, tx Tx, fx *effects, actor shared.Actor, m stock.Movement, id, desc string) (AdjustmentResult, error) {
	ref := "STK-" + id
	claimed, err := tx.Stock().ClaimReference(ctx, ref)
	if err != nil {
		return AdjustmentResult{}, err
	}
	if !claimed {
		return AdjustmentResult{}, shared.E(shared.KindDuplicatePosting, "integration.adjust", ref, "stock movement %s already applied", ref)
	}
	mv, err := s.store.ApplyMovement(ctx, tx.Stock(), m)
	if err != nil {
		return AdjustmentResult{}, err
	}
	res := AdjustmentResult{Movement: mv}
	if mv.ValueDelta.IsZero() {
		return res, nil
	}
	direction := accounting.DirectionIncrease
	if mv.ValueDelta.IsNegative() {
		direction = accounting.DirectionDecrease
	}
	entry, err := s.engine.PostStockAdjustment(ctx, tx.Ledger(), actor, id, mv.ValueDelta.Abs(), direction, desc)
	if err != nil {
		return AdjustmentResult{}, err
	}
	fx.posted(actor, entry, "stock_adjustment")
	res.Entry = &entry
	return res, nil
}

// RecordWaste takes wasted products out of stock and books the loss.
func (s *Service) RecordWaste(ctx context.Context, actor shared.Actor, ev WasteEvent) (AdjustmentResult, error) {
	const op = "integration.waste"
	if err := shared.ValidateStruct(op, ev); err != nil {
		return AdjustmentResult{}, err
	}
	loc := ev.Location
	if loc == "" {
		loc = stock.LocationCounter
	}
	desc := ev.Description
	if desc == "" {
		desc = fmt.Sprintf("Waste %d (%s)", ev.WasteID, ev.Reason)
	}
	var res AdjustmentResult
	err := s.run(ctx, "waste", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		res, err = s.adjust(ctx, tx, fx, actor, stock.Movement{
			ProductID:     ev.ProductID,
			Location:      loc,
			QuantityDelta: ev.Quantity.Neg(),
		}, fmt.Sprintf("WASTE%d", ev.WasteID), desc)
		if err != nil {
			return err
		}
		fx.record(actor, "waste", "product", strconv.FormatInt(ev.ProductID, 10), map[string]any{
			"waste_id": ev.WasteID,
			"reason":   string(ev.Reason),
			"quantity": ev.Quantity.String(),
			"location": string(loc),
		})
		return nil
	})
	return res, err
}

// ProductionResult describes a production batch.
type ProductionResult struct {
	Consumed []stock.MovementResult
	Produced stock.MovementResult
	UnitCost decimal.Decimal
}

// RecordProduction consumes ingredients at their weighted-average cost and
// places the finished goods on the counter at the consumed value. Nothing is posted.
func (s *Service) RecordProduction(ctx context.Context, actor shared.Actor, ev ProductionEvent) (ProductionResult, error) {
	if err := shared.ValidateStruct("integration.production", ev); err != nil {
		return ProductionResult{}, err
	}
	source := ev.Source
	if source == "" {
		source = stock.LocationWarehouseB
	}
	var res ProductionResult
	err := s.run(ctx, "production", func(ctx context.Context, tx Tx, fx *effects) error {
		res = ProductionResult{}
		consumed := decimal.Zero
		for _, ing := range ev.Ingredients {
			mv, err := s.store.ApplyMovement(ctx, tx.Stock(), stock.Movement{
				ProductID:     ing.ProductID,
				Location:      source,
				QuantityDelta: ing.Quantity.Neg(),
			})
			if err != nil {
				return err
			}
			consumed = consumed.Add(mv.ValueDelta.Neg())
			res.Consumed = append(res.Consumed, mv)
		}
		cost := consumed.DivRound(ev.Quantity, 6)
		mv, err := s.store.ApplyMovement(ctx, tx.Stock(), stock.Movement{
			ProductID:        ev.ProductID,
			Location:         stock.LocationCounter,
			QuantityDelta:    ev.Quantity,
			UnitCostOverride: &cost,
		})
		if err != nil {
			return err
		}
		res.Produced = mv
		res.UnitCost = cost
		fx.record(actor, "produce", "product", strconv.FormatInt(ev.ProductID, 10), map[string]any{
			"quantity":       ev.Quantity.String(),
			"consumed_value": consumed.StringFixed(2),
		})
		return nil
	})
	return res, err
}

// TransferStock moves stock between locations at the current unit cost.
func (s *Service) TransferStock(ctx context.Context, actor shared.Actor, ev TransferEvent) (stock.MovementResult, stock.MovementResult, error) {
	if err := shared.ValidateStruct("integration.transfer", ev); err != nil {
		return stock.MovementResult{}, stock.MovementResult{}, err
	}
	var out, in stock.MovementResult
	err := s.run(ctx, "transfer", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		out, in, err = s.store.Transfer(ctx, tx.Stock(), ev.ProductID, ev.From, ev.To, ev.Quantity)
		if err != nil {
			return err
		}
		fx.record(actor, "transfer", "product", strconv.FormatInt(ev.ProductID, 10), map[string]any{
			"from":     string(ev.From),
			"to":       string(ev.To),
			"quantity": ev.Quantity.String(),
		})
		return nil
	})
	return out, in, err
}

// AllocateConsumables previews the packaging a quantity of a category needs.
func (s *Service) AllocateConsumables(ctx context.Context, categoryID, quantity int64) ([]consumables.Allocation, error) {
	var allocs []consumables.Allocation
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		allocs, err = consumables.AllocateFor(ctx, tx.Consumables(), categoryID, quantity)
		return err
	})
	return allocs, err
}
