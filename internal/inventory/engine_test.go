package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

type memoryTx struct {
	sessions map[int64]Session
	items    map[int64][]Item
	nextID   int64
}

func newMemoryTx() *memoryTx {
	return &memoryTx{sessions: map[int64]Session{}, items: map[int64][]Item{}}
}

func (m *memoryTx) InsertSession(ctx context.Context, s Session) (Session, error) {
	m.nextID++
	s.ID = m.nextID
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memoryTx) GetSessionForUpdate(ctx context.Context, id int64) (Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, shared.E(shared.KindNotFound, "test", "", "session %d", id)
	}
	return s, nil
}

func (m *memoryTx) UpdateSession(ctx context.Context, s Session) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryTx) InsertItems(ctx context.Context, sessionID int64, items []Item) ([]Item, error) {
	out := make([]Item, len(items))
	for i, it := range items {
		m.nextID++
		it.ID = m.nextID
		out[i] = it
	}
	m.items[sessionID] = append(m.items[sessionID], out...)
	return out, nil
}

func (m *memoryTx) ListItems(ctx context.Context, sessionID int64) ([]Item, error) {
	return append([]Item(nil), m.items[sessionID]...), nil
}

func (m *memoryTx) UpdateItem(ctx context.Context, it Item) error {
	for i := range m.items[it.SessionID] {
		if m.items[it.SessionID][i].ID == it.ID {
			m.items[it.SessionID][i] = it
		}
	}
	return nil
}

type fixedStocks map[int64]stock.ProductStock

func (f fixedStocks) Snapshot(ctx context.Context, productID int64) (stock.ProductStock, error) {
	if ps, ok := f[productID]; ok {
		return ps, nil
	}
	return stock.NewProductStock(productID), nil
}

func (f fixedStocks) ProductIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	return ids, nil
}

var actor = shared.Actor{UserID: 3, Now: func() time.Time { return time.Date(2026, 1, 31, 18, 0, 0, 0, time.UTC) }}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func flourStock() fixedStocks {
	ps := stock.NewProductStock(1)
	ps.Quantities[stock.LocationWarehouseA] = d("100")
	ps.Values[stock.LocationWarehouseA] = d("250")
	ps.UnitCost = d("2.5")
	return fixedStocks{1: ps}
}

func TestClassifyVariance(t *testing.T) {
	cases := []struct {
		physical string
		pct      string
		severity Severity
	}{
		{"94", "-6", SeverityNormal},
		{"85", "-15", SeverityCritical},
		{"98", "-2", SeverityOK},
		{"110", "10", SeverityNormal},
		{"105", "5", SeverityNormal},
		{"104.99", "4.99", SeverityOK},
	}
	for _, tc := range cases {
		variance, pct, severity := Classify(d("100"), d(tc.physical))
		require.Equal(t, d(tc.physical).Sub(d("100")).String(), variance.String())
		require.True(t, d(tc.pct).Equal(pct), "pct for %s: %s", tc.physical, pct)
		require.Equal(t, tc.severity, severity, tc.physical)
	}
}

func TestClassifyZeroTheoretical(t *testing.T) {
	_, pct, severity := Classify(decimal.Zero, d("3"))
	require.Equal(t, "100", pct.String())
	require.Equal(t, SeverityCritical, severity)

	_, pct, severity = Classify(decimal.Zero, decimal.Zero)
	require.True(t, pct.IsZero())
	require.Equal(t, SeverityOK, severity)
}

func TestOpenSnapshotsStock(t *testing.T) {
	tx := newMemoryTx()
	session, items, err := Open(context.Background(), tx, flourStock(), actor, OpenInput{ProductIDs: []int64{1}})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, session.Status)
	require.Equal(t, 1, session.Month)
	require.Equal(t, 2026, session.Year)
	require.Len(t, items, len(DefaultLocations))
	require.Equal(t, "100", items[0].Theoretical.String())
	require.Equal(t, "2.5", items[0].UnitCost.String())
	require.Equal(t, len(DefaultLocations), tx.sessions[session.ID].TotalItems)
}

func TestOpenWithoutProductsCountsEveryStockRow(t *testing.T) {
	tx := newMemoryTx()
	_, items, err := Open(context.Background(), tx, flourStock(), actor, OpenInput{Locations: []stock.Location{stock.LocationWarehouseA}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(1), items[0].ProductID)

	_, _, err = Open(context.Background(), newMemoryTx(), fixedStocks{}, actor, OpenInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCountComputesVarianceValue(t *testing.T) {
	tx := newMemoryTx()
	ctx := context.Background()
	session, items, err := Open(ctx, tx, flourStock(), actor, OpenInput{ProductIDs: []int64{1}, Locations: []stock.Location{stock.LocationWarehouseA}})
	require.NoError(t, err)

	it, err := Count(ctx, tx, actor, CountInput{SessionID: session.ID, ItemID: items[0].ID, Physical: d("94"), Reason: ReasonTheftLoss})
	require.NoError(t, err)
	require.Equal(t, SeverityNormal, it.Severity)
	require.Equal(t, "-15", it.VarianceValue.String())
	require.True(t, it.HasVariance())

	stored := tx.sessions[session.ID]
	require.Equal(t, 1, stored.ItemsWithVariance)
	require.Equal(t, "-15", stored.TotalVarianceValue.String())

	_, err = Count(ctx, tx, actor, CountInput{SessionID: session.ID, ItemID: items[0].ID, Physical: d("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCompleteWithUncountedItemKeepsStatus(t *testing.T) {
	tx := newMemoryTx()
	ctx := context.Background()
	session, items, err := Open(ctx, tx, flourStock(), actor, OpenInput{ProductIDs: []int64{1}, Locations: []stock.Location{stock.LocationWarehouseA, stock.LocationWarehouseB}})
	require.NoError(t, err)
	_, err = Count(ctx, tx, actor, CountInput{SessionID: session.ID, ItemID: items[0].ID, Physical: d("100")})
	require.NoError(t, err)

	_, err = Complete(ctx, tx, actor, session.ID)
	require.ErrorIs(t, err, shared.ErrIncompleteInventory)
	require.Equal(t, "1", shared.CodeOf(err))
	require.Equal(t, StatusOpen, tx.sessions[session.ID].Status)
}

func TestLifecycleWithApply(t *testing.T) {
	tx := newMemoryTx()
	ctx := context.Background()
	session, items, err := Open(ctx, tx, flourStock(), actor, OpenInput{ProductIDs: []int64{1}, Locations: []stock.Location{stock.LocationWarehouseA, stock.LocationWarehouseB}})
	require.NoError(t, err)
	_, err = Count(ctx, tx, actor, CountInput{SessionID: session.ID, ItemID: items[0].ID, Physical: d("85")})
	require.NoError(t, err)
	_, err = Count(ctx, tx, actor, CountInput{SessionID: session.ID, ItemID: items[1].ID, Physical: decimal.Zero})
	require.NoError(t, err)

	_, _, err = Validate(ctx, tx, actor, session.ID, true, nil)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	completed, err := Complete(ctx, tx, actor, session.ID)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, completed.Status)

	var pushed []Item
	validated, applied, err := Validate(ctx, tx, actor, session.ID, true, func(ctx context.Context, it Item) error {
		pushed = append(pushed, it)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusValidated, validated.Status)
	require.Len(t, pushed, 1)
	require.Len(t, applied, 1)
	require.True(t, tx.items[session.ID][0].Applied)
	require.False(t, tx.items[session.ID][1].Applied)

	_, err = Count(ctx, tx, actor, CountInput{SessionID: session.ID, ItemID: items[0].ID, Physical: d("90")})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	closed, err := Close(ctx, tx, actor, session.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	_, err = Close(ctx, tx, actor, session.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}
