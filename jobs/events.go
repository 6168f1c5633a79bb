package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/feemaison/bakery-erp/internal/accounting"
	"github.com/feemaison/bakery-erp/internal/integration"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// Business event task types. Producers enqueue one task per source document.
const (
	TaskEventSale           = "event:sale"
	TaskEventPurchase       = "event:purchase"
	TaskEventCashMovement   = "event:cash_movement"
	TaskEventBankDeposit    = "event:bank_deposit"
	TaskEventPayrollAccrual = "event:payroll_accrual"
	TaskEventSalaryPayment  = "event:salary_payment"
	TaskEventAdjustment     = "event:stock_adjustment"
	TaskEventWaste          = "event:waste"
	TaskEventProduction     = "event:production"
	TaskEventTransfer       = "event:transfer"
)

// EventTaskTypes lists every business event the worker consumes.
var EventTaskTypes = []string{
	TaskEventSale, TaskEventPurchase, TaskEventCashMovement, TaskEventBankDeposit,
	TaskEventPayrollAccrual, TaskEventSalaryPayment, TaskEventAdjustment,
	TaskEventWaste, TaskEventProduction, TaskEventTransfer,
}

// EventEnvelope wraps an event with the user who caused it.
type EventEnvelope struct {
	ActorID int64           `json:"actor_id"`
	Event   json.RawMessage `json:"event"`
}

// NewEventTask builds a business event task. The task id derives from the type
// and source id so a producer retry does not enqueue the event twice.
func NewEventTask(taskType string, actorID int64, sourceID int64, event any) (*asynq.Task, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(EventEnvelope{ActorID: actorID, Event: raw})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("%s:%d", taskType, sourceID))), nil
}

// EventRecorder is the slice of integration.Service the event job drives.
type EventRecorder interface {
	RecordSale(ctx context.Context, actor shared.Actor, ev integration.SaleEvent) (integration.SaleResult, error)
	RecordPurchase(ctx context.Context, actor shared.Actor, ev integration.PurchaseEvent) (integration.PurchaseResult, error)
	RecordCashMovement(ctx context.Context, actor shared.Actor, ev integration.CashMovementEvent) (accounting.JournalEntry, error)
	RecordBankDeposit(ctx context.Context, actor shared.Actor, ev integration.BankDepositEvent) (accounting.JournalEntry, error)
	RecordPayrollAccrual(ctx context.Context, actor shared.Actor, ev integration.PayrollAccrualEvent) (accounting.JournalEntry, error)
	RecordSalaryPayment(ctx context.Context, actor shared.Actor, ev integration.SalaryPaymentEvent) (accounting.JournalEntry, error)
	RecordStockAdjustment(ctx context.Context, actor shared.Actor, ev integration.AdjustmentEvent) (integration.AdjustmentResult, error)
	RecordWaste(ctx context.Context, actor shared.Actor, ev integration.WasteEvent) (integration.AdjustmentResult, error)
	RecordProduction(ctx context.Context, actor shared.Actor, ev integration.ProductionEvent) (integration.ProductionResult, error)
	TransferStock(ctx context.Context, actor shared.Actor, ev integration.TransferEvent) (stock.MovementResult, stock.MovementResult, error)
}

// EventJob applies queued business events through the integration service.
type EventJob struct {
	Service EventRecorder
	Logger  *slog.Logger
}

// NewEventJob initialises the event handler.
func NewEventJob(service EventRecorder, logger *slog.Logger) *EventJob {
	return &EventJob{Service: service, Logger: logger}
}

// Handlers returns one registration per event task type.
func (j *EventJob) Handlers() []TaskHandler {
	out := make([]TaskHandler, 0, len(EventTaskTypes))
	for _, t := range EventTaskTypes {
		out = append(out, TaskHandler{Type: t, Handler: j.Handle})
	}
	return out
}

// Handle decodes and records one event. A duplicate means an earlier delivery
// already committed, so it acks. Only concurrent update conflicts are retried.
func (j *EventJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("events: handler not configured")
	}
	logger := j.logger().With(slog.String("task", t.Type()))
	var env EventEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		logger.Error("malformed event envelope", slog.Any("error", err))
		return fmt.Errorf("events: decode envelope: %v: %w", err, asynq.SkipRetry)
	}
	actor := shared.Actor{UserID: env.ActorID}
	if actor.UserID <= 0 {
		actor = shared.SystemActor
	}
	err := j.dispatch(ctx, t.Type(), actor, env.Event)
	switch {
	case err == nil:
		return nil
	case shared.KindOf(err) == shared.KindDuplicatePosting:
		logger.Info("event already recorded", slog.String("reference", shared.CodeOf(err)))
		return nil
	case shared.Retryable(err):
		return err
	default:
		logger.Error("event rejected", slog.String("kind", string(shared.KindOf(err))), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

func (j *EventJob) dispatch(ctx context.Context, taskType string, actor shared.Actor, raw json.RawMessage) error {
	var err error
	switch taskType {
	case TaskEventSale:
		var ev integration.SaleEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordSale(ctx, actor, ev)
		}
	case TaskEventPurchase:
		var ev integration.PurchaseEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordPurchase(ctx, actor, ev)
		}
	case TaskEventCashMovement:
		var ev integration.CashMovementEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordCashMovement(ctx, actor, ev)
		}
	case TaskEventBankDeposit:
		var ev integration.BankDepositEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordBankDeposit(ctx, actor, ev)
		}
	case TaskEventPayrollAccrual:
		var ev integration.PayrollAccrualEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordPayrollAccrual(ctx, actor, ev)
		}
	case TaskEventSalaryPayment:
		var ev integration.SalaryPaymentEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordSalaryPayment(ctx, actor, ev)
		}
	case TaskEventAdjustment:
		var ev integration.AdjustmentEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordStockAdjustment(ctx, actor, ev)
		}
	case TaskEventWaste:
		var ev integration.WasteEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordWaste(ctx, actor, ev)
		}
	case TaskEventProduction:
		var ev integration.ProductionEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, err = j.Service.RecordProduction(ctx, actor, ev)
		}
	case TaskEventTransfer:
		var ev integration.TransferEvent
		if err = decodeEvent(raw, &ev); err == nil {
			_, _, err = j.Service.TransferStock(ctx, actor, ev)
		}
	default:
		err = shared.E(shared.KindValidation, "events.dispatch", taskType, "unsupported event type")
	}
	return err
}

func decodeEvent(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return shared.E(shared.KindValidation, "events.decode", "", "%v", err)
	}
	return nil
}

func (j *EventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
