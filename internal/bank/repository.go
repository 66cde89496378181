package bank

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for bank reconciliation.
type Repository interface {
	CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error)
	GetBankAccount(ctx context.Context, orgID, id int64) (BankAccount, error)
	ListBankAccounts(ctx context.Context, orgID int64) ([]BankAccount, error)
	InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error)
	ListTransactions(ctx context.Context, orgID, bankAccountID int64, unreconciledOnly bool) ([]BankTransaction, error)
	GetReconciliation(ctx context.Context, orgID, reconID int64) (BankReconciliation, error)
	ListReconciliations(ctx context.Context, orgID, bankAccountID int64) ([]BankReconciliation, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes row-locked operations inside a reconciliation
// transaction.
type TxRepository interface {
	GetBankAccountForUpdate(ctx context.Context, orgID, id int64) (BankAccount, error)
	GetTransactionForUpdate(ctx context.Context, orgID, txnID int64) (BankTransaction, error)
	MarkReconciled(ctx context.Context, txnID int64, reconID *int64) error
	InsertReconciliation(ctx context.Context, recon BankReconciliation) (BankReconciliation, error)
	GetReconciliationForUpdate(ctx context.Context, orgID, reconID int64) (BankReconciliation, error)
	SetReconciliationStatus(ctx context.Context, reconID int64, status ReconStatus, notes string) (BankReconciliation, error)
	ReleaseTransactions(ctx context.Context, reconID int64) error
	DeleteReconciliation(ctx context.Context, reconID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed bank repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, org_id, name, account_number, gl_account_id, is_active, created_at, updated_at`
const txnColumns = `id, org_id, bank_account_id, txn_date, description, debit, credit, is_reconciled, reconciliation_id, created_at, updated_at`
const reconColumns = `id, org_id, bank_account_id, statement_date, opening_balance, closing_balance, book_balance, difference, status, notes, created_at, updated_at`

func scanBankAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.AccountNumber, &a.GLAccountID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return BankAccount{}, err
	}
	return a, nil
}

func scanTransaction(row pgx.Row) (BankTransaction, error) {
	var t BankTransaction
	err := row.Scan(&t.ID, &t.OrgID, &t.BankAccountID, &t.TxnDate, &t.Description, &t.Debit, &t.Credit,
		&t.IsReconciled, &t.ReconciliationID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return BankTransaction{}, err
	}
	return t, nil
}

func scanReconciliation(row pgx.Row) (BankReconciliation, error) {
	var r BankReconciliation
	err := row.Scan(&r.ID, &r.OrgID, &r.BankAccountID, &r.StatementDate, &r.OpeningBalance, &r.ClosingBalance,
		&r.BookBalance, &r.Difference, &r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return BankReconciliation{}, err
	}
	return r, nil
}

func (r *repository) CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO bank_accounts (org_id, name, account_number, gl_account_id, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING `+accountColumns,
		account.OrgID, account.Name, account.AccountNumber, account.GLAccountID, account.IsActive)
	return scanBankAccount(row)
}

func (r *repository) GetBankAccount(ctx context.Context, orgID, id int64) (BankAccount, error) {
	a, err := scanBankAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE org_id=$1 AND id=$2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return a, nil
}

func (r *repository) ListBankAccounts(ctx context.Context, orgID int64) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE org_id=$1 ORDER BY id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO bank_transactions (org_id, bank_account_id, txn_date, description, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+txnColumns,
		txn.OrgID, txn.BankAccountID, txn.TxnDate, txn.Description, txn.Debit, txn.Credit)
	return scanTransaction(row)
}

func (r *repository) ListTransactions(ctx context.Context, orgID, bankAccountID int64, unreconciledOnly bool) ([]BankTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM bank_transactions WHERE org_id=$1 AND bank_account_id=$2`
	if unreconciledOnly {
		query += ` AND is_reconciled=false`
	}
	query += ` ORDER BY txn_date ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, orgID, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *repository) GetReconciliation(ctx context.Context, orgID, reconID int64) (BankReconciliation, error) {
	rec, err := scanReconciliation(r.pool.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE org_id=$1 AND id=$2`, orgID, reconID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ErrReconciliationNotFound
		}
		return BankReconciliation{}, err
	}
	return rec, nil
}

func (r *repository) ListReconciliations(ctx context.Context, orgID, bankAccountID int64) ([]BankReconciliation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations
WHERE org_id=$1 AND bank_account_id=$2 ORDER BY id DESC`, orgID, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recons []BankReconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		recons = append(recons, rec)
	}
	return recons, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetBankAccountForUpdate(ctx context.Context, orgID, id int64) (BankAccount, error) {
	a, err := scanBankAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return a, nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, orgID, txnID int64) (BankTransaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+txnColumns+` FROM bank_transactions WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, txnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrTransactionNotFound
		}
		return BankTransaction{}, err
	}
	return t, nil
}

func (r *txRepository) MarkReconciled(ctx context.Context, txnID int64, reconID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET is_reconciled=true, reconciliation_id=$2, updated_at=NOW() WHERE id=$1`, txnID, reconID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *txRepository) InsertReconciliation(ctx context.Context, recon BankReconciliation) (BankReconciliation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bank_reconciliations
(org_id, bank_account_id, statement_date, opening_balance, closing_balance, book_balance, difference, status, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+reconColumns,
		recon.OrgID, recon.BankAccountID, recon.StatementDate, recon.OpeningBalance, recon.ClosingBalance,
		recon.BookBalance, recon.Difference, recon.Status, recon.Notes)
	return scanReconciliation(row)
}

func (r *txRepository) GetReconciliationForUpdate(ctx context.Context, orgID, reconID int64) (BankReconciliation, error) {
	rec, err := scanReconciliation(r.tx.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, reconID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ErrReconciliationNotFound
		}
		return BankReconciliation{}, err
	}
	return rec, nil
}

func (r *txRepository) SetReconciliationStatus(ctx context.Context, reconID int64, status ReconStatus, notes string) (BankReconciliation, error) {
	row := r.tx.QueryRow(ctx, `UPDATE bank_reconciliations SET status=$2, notes=$3, updated_at=NOW() WHERE id=$1 RETURNING `+reconColumns,
		reconID, status, notes)
	rec, err := scanReconciliation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ErrReconciliationNotFound
		}
		return BankReconciliation{}, err
	}
	return rec, nil
}

func (r *txRepository) ReleaseTransactions(ctx context.Context, reconID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET is_reconciled=false, reconciliation_id=NULL, updated_at=NOW() WHERE reconciliation_id=$1`, reconID)
	return err
}

func (r *txRepository) DeleteReconciliation(ctx context.Context, reconID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM bank_reconciliations WHERE id=$1`, reconID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReconciliationNotFound
	}
	return nil
}
