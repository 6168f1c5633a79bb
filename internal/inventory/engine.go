package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

// TxRepository persists sessions and items inside a business transaction.
type TxRepository interface {
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSessionForUpdate(ctx context.Context, id int64) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	InsertItems(ctx context.Context, sessionID int64, items []Item) ([]Item, error)
	ListItems(ctx context.Context, sessionID int64) ([]Item, error)
	UpdateItem(ctx context.Context, it Item) error
}

// StockReader returns the locked valuation row of a product.
type StockReader interface {
	Snapshot(ctx context.Context, productID int64) (stock.ProductStock, error)
	ProductIDs(ctx context.Context) ([]int64, error)
}

// DefaultLocations are counted when a session names none. The counter is excluded.
var DefaultLocations = []stock.Location{stock.LocationWarehouseA, stock.LocationWarehouseB, stock.LocationConsumables}

// OpenInput describes a new session.
type OpenInput struct {
	InventoryDate time.Time
	Locations     []stock.Location
	ProductIDs    []int64 // empty means every product with a stock row
	Notes         string
}

// CountInput records a physical count.
type CountInput struct {
	SessionID int64
	ItemID    int64
	Physical  decimal.Decimal
	Reason    AdjustmentReason
	Notes     string
}

// Applier pushes one variance back into stock and the ledger.
type Applier func(ctx context.Context, it Item) error

// Open creates a session and snapshots theoretical stock and unit cost for every product and location.
func Open(ctx context.Context, tx TxRepository, stocks StockReader, actor shared.Actor, in OpenInput) (Session, []Item, error) {
	const op = "inventory.open"
	productIDs := in.ProductIDs
	if len(productIDs) == 0 {
		ids, err := stocks.ProductIDs(ctx)
		if err != nil {
			return Session{}, nil, err
		}
		productIDs = ids
	}
	if len(productIDs) == 0 {
		return Session{}, nil, shared.E(shared.KindValidation, op, "", "no product to count")
	}
	locations := in.Locations
	if len(locations) == 0 {
		locations = DefaultLocations
	}
	for _, loc := range locations {
		if !loc.Valid() {
			return Session{}, nil, shared.E(shared.KindValidation, op, string(loc), "unknown location")
		}
	}
	date := in.InventoryDate
	if date.IsZero() {
		date = actor.Today()
	}
	session, err := tx.InsertSession(ctx, Session{
		InventoryDate: date,
		Month:         int(date.Month()),
		Year:          date.Year(),
		Locations:     locations,
		Status:        StatusOpen,
		CreatedBy:     actor.UserID,
		CreatedAt:     actor.Time(),
		Notes:         in.Notes,
	})
	if err != nil {
		return Session{}, nil, err
	}
	items := make([]Item, 0, len(productIDs)*len(locations))
	for _, productID := range productIDs {
		snap, err := stocks.Snapshot(ctx, productID)
		if err != nil {
			return Session{}, nil, err
		}
		for _, loc := range locations {
			items = append(items, Item{
				SessionID:   session.ID,
				ProductID:   productID,
				Location:    loc,
				Theoretical: snap.Quantity(loc),
				UnitCost:    snap.UnitCost,
			})
		}
	}
	items, err = tx.InsertItems(ctx, session.ID, items)
	if err != nil {
		return Session{}, nil, err
	}
	Summarize(&session, items)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return Session{}, nil, err
	}
	return session, items, nil
}

// Count enters a physical count and recomputes the variance of the item.
func Count(ctx context.Context, tx TxRepository, actor shared.Actor, in CountInput) (Item, error) {
	const op = "inventory.count"
	if in.Physical.IsNegative() {
		return Item{}, shared.E(shared.KindValidation, op, "", "physical count must not be negative")
	}
	if !in.Reason.Valid() {
		return Item{}, shared.E(shared.KindValidation, op, string(in.Reason), "unknown adjustment reason")
	}
	session, err := tx.GetSessionForUpdate(ctx, in.SessionID)
	if err != nil {
		return Item{}, err
	}
	if !session.CanCount() {
		return Item{}, shared.E(shared.KindInvalidState, op, string(session.Status), "session %d no longer accepts counts", session.ID)
	}
	items, err := tx.ListItems(ctx, session.ID)
	if err != nil {
		return Item{}, err
	}
	idx := -1
	for i := range items {
		if items[i].ID == in.ItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Item{}, shared.E(shared.KindNotFound, op, "", "item %d in session %d", in.ItemID, session.ID)
	}
	it := items[idx]
	physical := in.Physical
	now := actor.Time()
	countedBy := actor.UserID
	it.Physical = &physical
	it.Variance, it.VariancePct, it.Severity = Classify(it.Theoretical, physical)
	it.VarianceValue = it.Variance.Mul(it.UnitCost).Round(2)
	it.Reason = in.Reason
	it.Notes = in.Notes
	it.CountedAt = &now
	it.CountedBy = &countedBy
	if err := tx.UpdateItem(ctx, it); err != nil {
		return Item{}, err
	}
	items[idx] = it
	Summarize(&session, items)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Complete moves an OPEN session to COMPLETE once every item is counted.
func Complete(ctx context.Context, tx TxRepository, actor shared.Actor, sessionID int64) (Session, error) {
	const op = "inventory.complete"
	session, err := tx.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.Status != StatusOpen {
		return Session{}, shared.E(shared.KindInvalidState, op, string(session.Status), "session %d is not open", sessionID)
	}
	items, err := tx.ListItems(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	missing := 0
	for _, it := range items {
		if !it.Counted() {
			missing++
		}
	}
	if missing > 0 {
		return Session{}, shared.E(shared.KindIncompleteInventory, op, fmt.Sprintf("%d", missing), "%d of %d items not counted", missing, len(items))
	}
	now := actor.Time()
	session.Status = StatusComplete
	session.CompletedAt = &now
	Summarize(&session, items)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Validate moves a COMPLETE session to VALIDATED. When apply is set every unapplied
// item with a variance goes through applier and is marked applied.
func Validate(ctx context.Context, tx TxRepository, actor shared.Actor, sessionID int64, apply bool, applier Applier) (Session, []Item, error) {
	const op = "inventory.validate"
	session, err := tx.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return Session{}, nil, err
	}
	if session.Status != StatusComplete {
		return Session{}, nil, shared.E(shared.KindInvalidState, op, string(session.Status), "session %d is not complete", sessionID)
	}
	items, err := tx.ListItems(ctx, sessionID)
	if err != nil {
		return Session{}, nil, err
	}
	now := actor.Time()
	var applied []Item
	if apply {
		if applier == nil {
			return Session{}, nil, shared.E(shared.KindConfiguration, op, "", "no applier configured")
		}
		for i := range items {
			it := items[i]
			if it.Applied || !it.HasVariance() {
				continue
			}
			if err := applier(ctx, it); err != nil {
				return Session{}, nil, err
			}
			it.Applied = true
			it.AppliedAt = &now
			if err := tx.UpdateItem(ctx, it); err != nil {
				return Session{}, nil, err
			}
			items[i] = it
			applied = append(applied, it)
		}
	}
	validatedBy := actor.UserID
	session.Status = StatusValidated
	session.ValidatedAt = &now
	session.ValidatedBy = &validatedBy
	Summarize(&session, items)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return Session{}, nil, err
	}
	return session, applied, nil
}

// Close makes a VALIDATED session terminal.
func Close(ctx context.Context, tx TxRepository, actor shared.Actor, sessionID int64) (Session, error) {
	session, err := tx.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.Status != StatusValidated {
		return Session{}, shared.E(shared.KindInvalidState, "inventory.close", string(session.Status), "session %d is not validated", sessionID)
	}
	now := actor.Time()
	session.Status = StatusClosed
	session.ClosedAt = &now
	if err := tx.UpdateSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}
