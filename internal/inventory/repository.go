package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/feemaison/bakery-erp/internal/shared"
	"github.com/feemaison/bakery-erp/internal/stock"
)

const sessionColumns = `id, inventory_date, month, year, locations, status, created_by, created_at,
  completed_at, validated_at, validated_by, closed_at, COALESCE(notes, ''),
  total_items, items_with_variance, total_variance_value`

const itemColumns = `id, session_id, product_id, location, theoretical, physical, variance, variance_pct,
  COALESCE(severity, ''), unit_cost, variance_value, COALESCE(reason, ''), COALESCE(notes, ''),
  counted_at, counted_by, applied, applied_at`

// Repository reads sessions outside a business event.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds session persistence to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// GetSession loads a session with its items.
func (r *Repository) GetSession(ctx context.Context, id int64) (Session, []Item, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM inventory_sessions WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, nil, shared.E(shared.KindNotFound, "inventory.get_session", "", "session %d", id)
		}
		return Session{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE session_id=$1 ORDER BY id`, id)
	if err != nil {
		return Session{}, nil, err
	}
	items, err := collectItems(rows)
	return s, items, err
}

func (r *txRepo) InsertSession(ctx context.Context, s Session) (Session, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_sessions (inventory_date, month, year, locations, status, created_by, created_at, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		s.InventoryDate, s.Month, s.Year, locationStrings(s.Locations), s.Status, s.CreatedBy, s.CreatedAt, s.Notes).Scan(&s.ID)
	return s, err
}

func (r *txRepo) GetSessionForUpdate(ctx context.Context, id int64) (Session, error) {
	s, err := scanSession(r.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM inventory_sessions WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, shared.E(shared.KindNotFound, "inventory.lock_session", "", "session %d", id)
		}
		return Session{}, err
	}
	return s, nil
}

func (r *txRepo) UpdateSession(ctx context.Context, s Session) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_sessions SET status=$2, completed_at=$3, validated_at=$4, validated_by=$5,
  closed_at=$6, notes=$7, total_items=$8, items_with_variance=$9, total_variance_value=$10
WHERE id=$1`, s.ID, s.Status, s.CompletedAt, s.ValidatedAt, s.ValidatedBy, s.ClosedAt, s.Notes,
		s.TotalItems, s.ItemsWithVariance, s.TotalVarianceValue)
	return err
}

func (r *txRepo) InsertItems(ctx context.Context, sessionID int64, items []Item) ([]Item, error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO inventory_items (session_id, product_id, location, theoretical, unit_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, sessionID, it.ProductID, string(it.Location), it.Theoretical, it.UnitCost)
	}
	br := r.tx.SendBatch(ctx, batch)
	defer br.Close()
	out := make([]Item, len(items))
	for i, it := range items {
		if err := br.QueryRow().Scan(&it.ID); err != nil {
			return nil, err
		}
		it.SessionID = sessionID
		out[i] = it
	}
	return out, nil
}

func (r *txRepo) ListItems(ctx context.Context, sessionID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE session_id=$1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *txRepo) UpdateItem(ctx context.Context, it Item) error {
	physical := decimal.NullDecimal{}
	if it.Physical != nil {
		physical = decimal.NullDecimal{Decimal: *it.Physical, Valid: true}
	}
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET physical=$2, variance=$3, variance_pct=$4, severity=NULLIF($5, ''),
  variance_value=$6, reason=NULLIF($7, ''), notes=$8, counted_at=$9, counted_by=$10, applied=$11, applied_at=$12
WHERE id=$1`, it.ID, physical, it.Variance, it.VariancePct, string(it.Severity), it.VarianceValue,
		string(it.Reason), it.Notes, it.CountedAt, it.CountedBy, it.Applied, it.AppliedAt)
	return err
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	var locations []string
	err := row.Scan(&s.ID, &s.InventoryDate, &s.Month, &s.Year, &locations, &s.Status, &s.CreatedBy, &s.CreatedAt,
		&s.CompletedAt, &s.ValidatedAt, &s.ValidatedBy, &s.ClosedAt, &s.Notes,
		&s.TotalItems, &s.ItemsWithVariance, &s.TotalVarianceValue)
	if err != nil {
		return Session{}, err
	}
	for _, l := range locations {
		s.Locations = append(s.Locations, stock.Location(l))
	}
	return s, nil
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		var location, severity, reason string
		var physical decimal.NullDecimal
		if err := rows.Scan(&it.ID, &it.SessionID, &it.ProductID, &location, &it.Theoretical, &physical, &it.Variance, &it.VariancePct,
			&severity, &it.UnitCost, &it.VarianceValue, &reason, &it.Notes,
			&it.CountedAt, &it.CountedBy, &it.Applied, &it.AppliedAt); err != nil {
			return nil, err
		}
		it.Location = stock.Location(location)
		it.Severity = Severity(severity)
		it.Reason = AdjustmentReason(reason)
		if physical.Valid {
			p := physical.Decimal
			it.Physical = &p
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func locationStrings(locs []stock.Location) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = string(l)
	}
	return out
}
