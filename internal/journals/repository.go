package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	List(ctx context.Context, orgID int64) ([]JournalEntry, error)
	GetBalance(ctx context.Context, orgID, accountID, periodID int64) (AccountBalance, error)
	ListBalances(ctx context.Context, orgID, periodID int64) ([]AccountBalance, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
// Period and account lookups live here so validation, numbering and balance
// updates share one atomic scope.
type TxRepository interface {
	InsertJournalEntry(ctx context.Context, in PostingInput, status JournalStatus) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	GetJournalWithLines(ctx context.Context, orgID, entryID int64) (JournalEntry, []JournalLine, error)
	UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error
	SetReversalOf(ctx context.Context, entryID, originalID int64) error
	MarkPosted(ctx context.Context, entryID int64, number string, periodID, postedBy int64, postedAt time.Time) (JournalEntry, error)
	LinkSource(ctx context.Context, orgID int64, module string, ref uuid.UUID, entryID int64) error
	NextJournalNumber(ctx context.Context, orgID int64) (int64, error)
	ApplyBalance(ctx context.Context, orgID, accountID, periodID int64, debit, credit decimal.Decimal) error

	GetPeriodForUpdate(ctx context.Context, orgID int64, date time.Time) (fiscal.Period, error)
	GetAccount(ctx context.Context, orgID, accountID int64) (accounts.Account, error)
}

// DriftRow reports an account balance row that disagrees with the sum of its
// posted lines. A healthy ledger never produces one.
type DriftRow struct {
	OrgID         int64
	AccountID     int64
	PeriodID      int64
	BalanceDebit  decimal.Decimal
	BalanceCredit decimal.Decimal
	LineDebit     decimal.Decimal
	LineCredit    decimal.Decimal
}

// IntegrityRepository is the slice of the repository used by the nightly
// ledger integrity job.
type IntegrityRepository interface {
	ListBalanceDrift(ctx context.Context) ([]DriftRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed journals repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// NewIntegrityRepository returns the read-only slice used by the worker.
func NewIntegrityRepository(pool *pgxpool.Pool) IntegrityRepository {
	return &repository{pool: pool}
}

const entryColumns = `id, org_id, number, period_id, date, source_module, source_id, memo, status, posted_by, posted_at, reversal_of_id, created_at, updated_at`

func (r *repository) List(ctx context.Context, orgID int64) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 ORDER BY id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetBalance(ctx context.Context, orgID, accountID, periodID int64) (AccountBalance, error) {
	var b AccountBalance
	err := r.pool.QueryRow(ctx, `SELECT org_id, account_id, period_id, debit_total, credit_total, updated_at
FROM account_balances WHERE org_id=$1 AND account_id=$2 AND period_id=$3`, orgID, accountID, periodID).
		Scan(&b.OrgID, &b.AccountID, &b.PeriodID, &b.DebitTotal, &b.CreditTotal, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lazy rows: no posting has touched the pair yet.
			return AccountBalance{OrgID: orgID, AccountID: accountID, PeriodID: periodID, DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}, nil
		}
		return AccountBalance{}, err
	}
	return b, nil
}

func (r *repository) ListBalances(ctx context.Context, orgID, periodID int64) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT org_id, account_id, period_id, debit_total, credit_total, updated_at
FROM account_balances WHERE org_id=$1 AND period_id=$2 ORDER BY account_id ASC`, orgID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.OrgID, &b.AccountID, &b.PeriodID, &b.DebitTotal, &b.CreditTotal, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListBalanceDrift compares the running totals against the summed posted
// lines per (org, account, period) and returns every row that disagrees.
func (r *repository) ListBalanceDrift(ctx context.Context) ([]DriftRow, error) {
	rows, err := r.pool.Query(ctx, `
SELECT b.org_id, b.account_id, b.period_id,
       b.debit_total, b.credit_total,
       COALESCE(l.debit_sum, 0), COALESCE(l.credit_sum, 0)
FROM account_balances b
LEFT JOIN (
    SELECT e.org_id, jl.account_id, e.period_id,
           SUM(jl.debit) AS debit_sum, SUM(jl.credit) AS credit_sum
    FROM journal_lines jl
    JOIN journal_entries e ON e.id = jl.je_id
    WHERE e.status IN ('POSTED', 'VOID')
    GROUP BY e.org_id, jl.account_id, e.period_id
) l ON l.org_id = b.org_id AND l.account_id = b.account_id AND l.period_id = b.period_id
WHERE b.debit_total <> COALESCE(l.debit_sum, 0)
   OR b.credit_total <> COALESCE(l.credit_sum, 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drift []DriftRow
	for rows.Next() {
		var d DriftRow
		if err := rows.Scan(&d.OrgID, &d.AccountID, &d.PeriodID, &d.BalanceDebit, &d.BalanceCredit, &d.LineDebit, &d.LineCredit); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var number *string
	var periodID *int64
	err := row.Scan(&e.ID, &e.OrgID, &number, &periodID, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.Status, &e.PostedBy, &e.PostedAt, &e.ReversalOfID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if number != nil {
		e.Number = *number
	}
	if periodID != nil {
		e.PeriodID = *periodID
	}
	return e, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput, status JournalStatus) (JournalEntry, error) {
	var sourceID any
	if in.SourceID != uuid.Nil {
		sourceID = in.SourceID
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (org_id, date, source_module, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+entryColumns,
		in.OrgID, in.Date, in.SourceModule, sourceID, in.Memo, in.PostedBy, status)
	return scanEntry(row)
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for idx, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, line_no, account_id, debit, credit)
VALUES ($1,$2,$3,$4,$5)`, entryID, idx+1, line.AccountID, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, orgID, entryID int64) (JournalEntry, []JournalLine, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, ErrJournalNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, je_id, line_no, account_id, debit, credit, created_at, updated_at
FROM journal_lines WHERE je_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

func (r *txRepository) UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) SetReversalOf(ctx context.Context, entryID, originalID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversal_of_id=$2, updated_at=NOW() WHERE id=$1`, entryID, originalID)
	return err
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID int64, number string, periodID, postedBy int64, postedAt time.Time) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE journal_entries
SET number=$2, period_id=$3, status='POSTED', posted_by=$4, posted_at=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+entryColumns, entryID, number, periodID, postedBy, postedAt)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) LinkSource(ctx context.Context, orgID int64, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (org_id, module, ref_id, je_id) VALUES ($1,$2,$3,$4)`, orgID, module, ref, entryID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_source_links") {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

// NextJournalNumber increments the per-org sequence under a row lock so
// concurrent posts never share a number.
func (r *txRepository) NextJournalNumber(ctx context.Context, orgID int64) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (org_id, last_number) VALUES ($1, 1)
ON CONFLICT (org_id) DO UPDATE SET last_number = journal_sequences.last_number + 1
RETURNING last_number`, orgID).Scan(&seq)
	return seq, err
}

func (r *txRepository) ApplyBalance(ctx context.Context, orgID, accountID, periodID int64, debit, credit decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_balances (org_id, account_id, period_id, debit_total, credit_total)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (org_id, account_id, period_id) DO UPDATE
SET debit_total = account_balances.debit_total + EXCLUDED.debit_total,
    credit_total = account_balances.credit_total + EXCLUDED.credit_total,
    updated_at = NOW()`, orgID, accountID, periodID, debit, credit)
	return err
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, orgID int64, date time.Time) (fiscal.Period, error) {
	var p fiscal.Period
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, fiscal_year_id, code, start_date, end_date, status, closed_at, created_at, updated_at
FROM periods WHERE org_id=$1 AND start_date <= $2 AND end_date >= $2 FOR UPDATE`, orgID, date).
		Scan(&p.ID, &p.OrgID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fiscal.Period{}, fiscal.ErrNoPeriod
		}
		return fiscal.Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetAccount(ctx context.Context, orgID, accountID int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, code, name, type, parent_id, is_group, is_active, created_at, updated_at
FROM accounts WHERE org_id=$1 AND id=$2`, orgID, accountID).
		Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsGroup, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}
