package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/feemaison/bakery-erp/internal/inventory"
	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// stockReader snapshots valuation rows through the store inside one transaction.
type stockReader struct {
	store *stock.Store
	tx    stock.TxRepository
}

func (r stockReader) Snapshot(ctx context.Context, productID int64) (stock.ProductStock, error) {
	return r.store.Snapshot(ctx, r.tx, productID)
}

func (r stockReader) ProductIDs(ctx context.Context) ([]int64, error) {
	return r.tx.ProductIDs(ctx)
}

func sessionID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// OpenInventory starts a count session and snapshots theoretical stock.
func (s *Service) OpenInventory(ctx context.Context, actor shared.Actor, ev OpenInventoryEvent) (inventory.Session, []inventory.Item, error) {
	var (
		session inventory.Session
		items   []inventory.Item
	)
	err := s.run(ctx, "inventory_open", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		session, items, err = inventory.Open(ctx, tx.Inventory(), stockReader{store: s.store, tx: tx.Stock()}, actor, ev)
		if err != nil {
			return err
		}
		fx.record(actor, "open", "inventory_session", sessionID(session.ID), map[string]any{"items": len(items)})
		return nil
	})
	return session, items, err
}

// CountInventoryItem records one physical count.
func (s *Service) CountInventoryItem(ctx context.Context, actor shared.Actor, ev CountEvent) (inventory.Item, error) {
	var item inventory.Item
	err := s.run(ctx, "inventory_count", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		item, err = inventory.Count(ctx, tx.Inventory(), actor, ev)
		return err
	})
	return item, err
}

// CompleteInventory closes counting once every item has a physical count.
func (s *Service) CompleteInventory(ctx context.Context, actor shared.Actor, id int64) (inventory.Session, error) {
	var session inventory.Session
	err := s.run(ctx, "inventory_complete", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		session, err = inventory.Complete(ctx, tx.Inventory(), actor, id)
		if err != nil {
			return err
		}
		fx.record(actor, "complete", "inventory_session", sessionID(id), nil)
		return nil
	})
	return session, err
}

// ValidateInventory validates a completed session. With apply set, every variance
// brings its location to the counted quantity and books the value change.
// Only one worker may validate a given session at a time.
func (s *Service) ValidateInventory(ctx context.Context, actor shared.Actor, id int64, apply bool) (inventory.Session, []inventory.Item, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.InventorySessionLockKey(id), s.lockTTL)
		if err != nil {
			return inventory.Session{}, nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("inventory lock release failed", slog.Int64("session_id", id), slog.Any("error", err))
			}
		}()
	}
	var (
		session inventory.Session
		applied []inventory.Item
	)
	err := s.run(ctx, "inventory_validate", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		session, applied, err = inventory.Validate(ctx, tx.Inventory(), actor, id, apply, s.varianceApplier(tx, fx, actor))
		if err != nil {
			return err
		}
		fx.record(actor, "validate", "inventory_session", sessionID(id), map[string]any{"applied": len(applied)})
		return nil
	})
	return session, applied, err
}

// varianceApplier moves the location to the counted quantity at the current
// unit cost. An empty product falls back to the snapshot cost.
func (s *Service) varianceApplier(tx Tx, fx *effects, actor shared.Actor) inventory.Applier {
	return func(ctx context.Context, it inventory.Item) error {
		current, err := s.store.Snapshot(ctx, tx.Stock(), it.ProductID)
		if err != nil {
			return err
		}
		delta := it.Physical.Sub(current.Quantity(it.Location))
		if delta.IsZero() {
			return nil
		}
		m := stock.Movement{ProductID: it.ProductID, Location: it.Location, QuantityDelta: delta}
		if delta.IsPositive() && current.UnitCost.IsZero() {
			cost := it.UnitCost
			m.UnitCostOverride = &cost
		}
		desc := fmt.Sprintf("Inventory %d item %d", it.SessionID, it.ID)
		if it.Reason != "" {
			desc += " (" + string(it.Reason) + ")"
		}
		_, err = s.adjust(ctx, tx, fx, actor, m, fmt.Sprintf("INV%d-%d", it.SessionID, it.ID), desc)
		return err
	}
}

// CloseInventory makes a validated session terminal.
func (s *Service) CloseInventory(ctx context.Context, actor shared.Actor, id int64) (inventory.Session, error) {
	var session inventory.Session
	err := s.run(ctx, "inventory_close", func(ctx context.Context, tx Tx, fx *effects) error {
		var err error
		session, err = inventory.Close(ctx, tx.Inventory(), actor, id)
		if err != nil {
			return err
		}
		fx.record(actor, "close", "inventory_session", sessionID(id), nil)
		return nil
	})
	return session, err
}
