package bank

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryBankRepo struct {
	mu       sync.Mutex
	accounts map[int64]BankAccount
	txns     map[int64]BankTransaction
	recons   map[int64]BankReconciliation
	nextID   int64
}

func newMemoryBankRepo() *memoryBankRepo {
	return &memoryBankRepo{
		accounts: make(map[int64]BankAccount),
		txns:     make(map[int64]BankTransaction),
		recons:   make(map[int64]BankReconciliation),
	}
}

func (r *memoryBankRepo) CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryBankRepo) GetBankAccount(ctx context.Context, orgID, id int64) (BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryBankTx)(r).GetBankAccountForUpdate(ctx, orgID, id)
}

func (r *memoryBankRepo) ListBankAccounts(ctx context.Context, orgID int64) ([]BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BankAccount
	for _, a := range r.accounts {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryBankRepo) InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	txn.ID = r.nextID
	r.txns[txn.ID] = txn
	return txn, nil
}

func (r *memoryBankRepo) ListTransactions(ctx context.Context, orgID, bankAccountID int64, unreconciledOnly bool) ([]BankTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BankTransaction
	for _, t := range r.txns {
		if t.OrgID != orgID || t.BankAccountID != bankAccountID {
			continue
		}
		if unreconciledOnly && t.IsReconciled {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memoryBankRepo) GetReconciliation(ctx context.Context, orgID, reconID int64) (BankReconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryBankTx)(r).GetReconciliationForUpdate(ctx, orgID, reconID)
}

func (r *memoryBankRepo) ListReconciliations(ctx context.Context, orgID, bankAccountID int64) ([]BankReconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BankReconciliation
	for _, rec := range r.recons {
		if rec.OrgID == orgID && rec.BankAccountID == bankAccountID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryBankRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryBankTx)(r))
}

type memoryBankTx memoryBankRepo

func (r *memoryBankTx) GetBankAccountForUpdate(ctx context.Context, orgID, id int64) (BankAccount, error) {
	a, ok := r.accounts[id]
	if !ok || a.OrgID != orgID {
		return BankAccount{}, ErrBankAccountNotFound
	}
	return a, nil
}

func (r *memoryBankTx) GetTransactionForUpdate(ctx context.Context, orgID, txnID int64) (BankTransaction, error) {
	t, ok := r.txns[txnID]
	if !ok || t.OrgID != orgID {
		return BankTransaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (r *memoryBankTx) MarkReconciled(ctx context.Context, txnID int64, reconID *int64) error {
	t, ok := r.txns[txnID]
	if !ok {
		return ErrTransactionNotFound
	}
	t.IsReconciled = true
	t.ReconciliationID = reconID
	r.txns[txnID] = t
	return nil
}

func (r *memoryBankTx) InsertReconciliation(ctx context.Context, recon BankReconciliation) (BankReconciliation, error) {
	r.nextID++
	recon.ID = r.nextID
	r.recons[recon.ID] = recon
	return recon, nil
}

func (r *memoryBankTx) GetReconciliationForUpdate(ctx context.Context, orgID, reconID int64) (BankReconciliation, error) {
	rec, ok := r.recons[reconID]
	if !ok || rec.OrgID != orgID {
		return BankReconciliation{}, ErrReconciliationNotFound
	}
	return rec, nil
}

func (r *memoryBankTx) SetReconciliationStatus(ctx context.Context, reconID int64, status ReconStatus, notes string) (BankReconciliation, error) {
	rec, ok := r.recons[reconID]
	if !ok {
		return BankReconciliation{}, ErrReconciliationNotFound
	}
	rec.Status = status
	rec.Notes = notes
	r.recons[reconID] = rec
	return rec, nil
}

func (r *memoryBankTx) ReleaseTransactions(ctx context.Context, reconID int64) error {
	for id, t := range r.txns {
		if t.ReconciliationID != nil && *t.ReconciliationID == reconID {
			t.IsReconciled = false
			t.ReconciliationID = nil
			r.txns[id] = t
		}
	}
	return nil
}

func (r *memoryBankTx) DeleteReconciliation(ctx context.Context, reconID int64) error {
	if _, ok := r.recons[reconID]; !ok {
		return ErrReconciliationNotFound
	}
	delete(r.recons, reconID)
	return nil
}

func seedBank(t *testing.T, svc *Service) BankAccount {
	t.Helper()
	account, err := svc.CreateBankAccount(context.Background(), BankAccount{
		OrgID:       1,
		Name:        "Operating",
		GLAccountID: 101,
	})
	require.NoError(t, err)
	return account
}

func importTxn(t *testing.T, svc *Service, accountID int64, debit, credit string) BankTransaction {
	t.Helper()
	txn, err := svc.ImportTransaction(context.Background(), BankTransaction{
		OrgID:         1,
		BankAccountID: accountID,
		TxnDate:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Description:   "statement line",
		Debit:         decimal.RequireFromString(debit),
		Credit:        decimal.RequireFromString(credit),
	})
	require.NoError(t, err)
	return txn
}

func startInput(accountID int64, opening, closing string, txnIDs ...int64) StartInput {
	return StartInput{
		OrgID:          1,
		BankAccountID:  accountID,
		StatementDate:  time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		OpeningBalance: decimal.RequireFromString(opening),
		ClosingBalance: decimal.RequireFromString(closing),
		MatchedTxnIDs:  txnIDs,
		ActorID:        7,
	}
}

func TestReconciliationBalancedStatementCompletes(t *testing.T) {
	svc := NewService(newMemoryBankRepo(), nil)
	ctx := context.Background()
	account := seedBank(t, svc)

	// Net +500: deposits 700, withdrawal 200.
	t1 := importTxn(t, svc, account.ID, "0", "700.00")
	t2 := importTxn(t, svc, account.ID, "200.00", "0")

	recon, err := svc.Start(ctx, startInput(account.ID, "1000.00", "1500.00", t1.ID, t2.ID))
	require.NoError(t, err)
	require.Equal(t, ReconStatusInProgress, recon.Status)
	require.Equal(t, "1500.00", recon.BookBalance.StringFixed(2))
	require.True(t, recon.Difference.IsZero())

	completed, err := svc.Complete(ctx, 1, recon.ID, false, "", 7)
	require.NoError(t, err)
	require.Equal(t, ReconStatusCompleted, completed.Status)

	_, err = svc.Complete(ctx, 1, recon.ID, false, "", 7)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestReconciliationDifferenceBlocksCompletion(t *testing.T) {
	svc := NewService(newMemoryBankRepo(), nil)
	ctx := context.Background()
	account := seedBank(t, svc)

	txn := importTxn(t, svc, account.ID, "0", "400.00")
	recon, err := svc.Start(ctx, startInput(account.ID, "1000.00", "1500.00", txn.ID))
	require.NoError(t, err)
	require.Equal(t, "100.00", recon.Difference.StringFixed(2))

	_, err = svc.Complete(ctx, 1, recon.ID, false, "", 7)
	require.ErrorIs(t, err, ErrUnreconciledDifference)

	// Force completion records the override in the notes.
	forced, err := svc.Complete(ctx, 1, recon.ID, true, "bank fee pending", 7)
	require.NoError(t, err)
	require.Equal(t, ReconStatusCompleted, forced.Status)
	require.Contains(t, forced.Notes, "force-completed")
	require.Contains(t, forced.Notes, "bank fee pending")
}

func TestStartRejectsAlreadyReconciledTransactions(t *testing.T) {
	svc := NewService(newMemoryBankRepo(), nil)
	ctx := context.Background()
	account := seedBank(t, svc)

	txn := importTxn(t, svc, account.ID, "0", "500.00")
	_, err := svc.Start(ctx, startInput(account.ID, "1000.00", "1500.00", txn.ID))
	require.NoError(t, err)

	_, err = svc.Start(ctx, startInput(account.ID, "1500.00", "2000.00", txn.ID))
	require.ErrorIs(t, err, ErrTransactionReconciled)

	_, err = svc.Start(ctx, startInput(account.ID, "1000.00", "1500.00"))
	require.ErrorIs(t, err, ErrNoTransactions)
}

func TestDeleteReleasesTransactions(t *testing.T) {
	svc := NewService(newMemoryBankRepo(), nil)
	ctx := context.Background()
	account := seedBank(t, svc)

	txn := importTxn(t, svc, account.ID, "0", "500.00")
	recon, err := svc.Start(ctx, startInput(account.ID, "1000.00", "1500.00", txn.ID))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, recon.ID, false, 7))

	unmatched, err := svc.ListTransactions(ctx, 1, account.ID, true)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	require.False(t, unmatched[0].IsReconciled)

	_, err = svc.Get(ctx, 1, recon.ID)
	require.ErrorIs(t, err, ErrReconciliationNotFound)
}

func TestDeleteCompletedRequiresForce(t *testing.T) {
	svc := NewService(newMemoryBankRepo(), nil)
	ctx := context.Background()
	account := seedBank(t, svc)

	txn := importTxn(t, svc, account.ID, "0", "500.00")
	recon, err := svc.Start(ctx, startInput(account.ID, "1000.00", "1500.00", txn.ID))
	require.NoError(t, err)
	_, err = svc.Complete(ctx, 1, recon.ID, false, "", 7)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, 1, recon.ID, false, 7), ErrAlreadyCompleted)
	require.NoError(t, svc.Delete(ctx, 1, recon.ID, true, 7))
}

func TestImportTransactionValidation(t *testing.T) {
	svc := NewService(newMemoryBankRepo(), nil)
	account := seedBank(t, svc)

	_, err := svc.ImportTransaction(context.Background(), BankTransaction{
		OrgID:         1,
		BankAccountID: account.ID,
		TxnDate:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Debit:         decimal.RequireFromString("10.00"),
		Credit:        decimal.RequireFromString("10.00"),
	})
	require.Error(t, err)

	_, err = svc.ImportTransaction(context.Background(), BankTransaction{
		OrgID:         1,
		BankAccountID: 999,
		TxnDate:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Credit:        decimal.RequireFromString("10.00"),
	})
	require.ErrorIs(t, err, ErrBankAccountNotFound)
}
