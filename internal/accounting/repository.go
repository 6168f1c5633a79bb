package accounting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feemaison/bakery-erp/internal/shared"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the ledger outside a business event.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the posting contract to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// ListAccounts returns the whole chart ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	return listAccounts(ctx, r.pool, `SELECT id, code, name, class, nature, parent_id, active FROM accounts ORDER BY code`)
}

// ListJournals returns every journal ordered by code.
func (r *Repository) ListJournals(ctx context.Context) ([]Journal, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, category, active FROM journals ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var journals []Journal
	for rows.Next() {
		var j Journal
		if err := rows.Scan(&j.ID, &j.Code, &j.Name, &j.Category, &j.Active); err != nil {
			return nil, err
		}
		journals = append(journals, j)
	}
	return journals, rows.Err()
}

// AccountBalances aggregates validated lines per account. An empty codes list returns every account.
func (r *Repository) AccountBalances(ctx context.Context, codes ...string) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.class, a.nature, a.parent_id, a.active,
       COALESCE(SUM(l.debit) FILTER (WHERE e.validated), 0),
       COALESCE(SUM(l.credit) FILTER (WHERE e.validated), 0)
FROM accounts a
LEFT JOIN journal_entry_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE COALESCE(cardinality($1::text[]), 0) = 0 OR a.code = ANY($1)
GROUP BY a.id
ORDER BY a.code`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		a := &b.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Class, &a.Nature, &a.ParentID, &a.Active, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListUnbalancedEntries returns validated entries whose debits and credits differ by a cent or more.
// Each result carries two synthetic lines holding the debit and credit totals.
func (r *Repository) ListUnbalancedEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.reference, e.external_ref, e.journal_id, j.code,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e
JOIN journals j ON j.id = e.journal_id
LEFT JOIN journal_entry_lines l ON l.entry_id = e.id
WHERE e.validated
GROUP BY e.id, j.code
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) >= 0.01
ORDER BY e.id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var debit, credit JournalEntryLine
		if err := rows.Scan(&e.ID, &e.Reference, &e.ExternalRef, &e.JournalID, &e.JournalCode, &debit.Debit, &credit.Credit); err != nil {
			return nil, err
		}
		e.Lines = []JournalEntryLine{debit, credit}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntry loads an entry with its ordered lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return getEntry(ctx, r.pool, id)
}

// DeleteEntry removes an unvalidated entry; lines cascade.
func (r *Repository) DeleteEntry(ctx context.Context, id int64) error {
	const op = "accounting.delete_entry"
	var validated bool
	err := r.pool.QueryRow(ctx, `SELECT validated FROM journal_entries WHERE id=$1`, id).Scan(&validated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.E(shared.KindNotFound, op, "", "journal entry %d", id)
		}
		return err
	}
	if validated {
		return shared.E(shared.KindInvalidState, op, "", "journal entry %d is validated", id)
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND NOT validated`, id)
	return err
}

func (r *txRepository) FindEntryByExternalRef(ctx context.Context, externalRef string) (JournalEntry, bool, error) {
	var e JournalEntry
	err := r.tx.QueryRow(ctx, `SELECT e.id, e.reference, e.journal_id, j.code, e.sequence, e.external_ref, e.source_id
FROM journal_entries e JOIN journals j ON j.id = e.journal_id
WHERE e.external_ref=$1 OR e.source_id=$2`, externalRef, SourceIDFor(externalRef)).
		Scan(&e.ID, &e.Reference, &e.JournalID, &e.JournalCode, &e.Sequence, &e.ExternalRef, &e.SourceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	return e, true, nil
}

func (r *txRepository) LockJournal(ctx context.Context, code string) (Journal, int64, error) {
	var j Journal
	var last int64
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, category, active, last_sequence FROM journals WHERE code=$1 FOR UPDATE`, code).
		Scan(&j.ID, &j.Code, &j.Name, &j.Category, &j.Active, &last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, 0, shared.E(shared.KindConfiguration, "accounting.lock_journal", code, "journal not found or inactive")
		}
		return Journal{}, 0, err
	}
	if !j.Active {
		return j, 0, nil
	}
	next := last + 1
	if _, err := r.tx.Exec(ctx, `UPDATE journals SET last_sequence=$2 WHERE id=$1`, j.ID, next); err != nil {
		return Journal{}, 0, err
	}
	return j, next, nil
}

func (r *txRepository) AccountsForShare(ctx context.Context, codes []string) ([]Account, error) {
	return listAccounts(ctx, r.tx, `SELECT id, code, name, class, nature, parent_id, active FROM accounts WHERE code = ANY($1) ORDER BY code FOR SHARE`, codes)
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
  (reference, journal_id, sequence, entry_date, accounting_date, description, external_ref, source_id,
   validated, validated_at, validated_by, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at`,
		entry.Reference, entry.JournalID, entry.Sequence, entry.EntryDate, entry.AccountingDate, entry.Description,
		entry.ExternalRef, entry.SourceID, entry.Validated, entry.ValidatedAt, entry.ValidatedBy, entry.CreatedBy).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return JournalEntry{}, shared.E(shared.KindDuplicatePosting, "accounting.insert_entry", entry.Reference, "external ref %s already posted (%s)", entry.ExternalRef, pgErr.ConstraintName)
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []JournalEntryLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_entry_lines (entry_id, account_id, debit, credit, description, line_number)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.AccountID, line.Debit, line.Credit, line.Description, line.LineNumber)
	}
	br := r.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func listAccounts(ctx context.Context, q querier, sql string, args ...any) ([]Account, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Class, &a.Nature, &a.ParentID, &a.Active); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func getEntry(ctx context.Context, q querier, id int64) (JournalEntry, error) {
	var e JournalEntry
	err := q.QueryRow(ctx, `SELECT e.id, e.reference, e.journal_id, j.code, e.sequence, e.entry_date, e.accounting_date,
       e.description, e.external_ref, e.source_id, e.validated, e.validated_at, e.validated_by, e.created_by, e.created_at
FROM journal_entries e JOIN journals j ON j.id = e.journal_id WHERE e.id=$1`, id).
		Scan(&e.ID, &e.Reference, &e.JournalID, &e.JournalCode, &e.Sequence, &e.EntryDate, &e.AccountingDate,
			&e.Description, &e.ExternalRef, &e.SourceID, &e.Validated, &e.ValidatedAt, &e.ValidatedBy, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.E(shared.KindNotFound, "accounting.get_entry", "", "journal entry %d", id)
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, a.code, l.debit, l.credit, l.description, l.line_number
FROM journal_entry_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.entry_id=$1 ORDER BY l.line_number`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalEntryLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.AccountCode, &l.Debit, &l.Credit, &l.Description, &l.LineNumber); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}
