package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrBankAccountNotFound indicates a missing bank account.
	ErrBankAccountNotFound = fmt.Errorf("bank: bank account %w", shared.ErrNotFound)
	// ErrTransactionNotFound indicates a missing statement transaction.
	ErrTransactionNotFound = fmt.Errorf("bank: transaction %w", shared.ErrNotFound)
	// ErrReconciliationNotFound indicates a missing reconciliation.
	ErrReconciliationNotFound = fmt.Errorf("bank: reconciliation %w", shared.ErrNotFound)
	// ErrTransactionReconciled indicates a transaction is already matched elsewhere.
	ErrTransactionReconciled = fmt.Errorf("bank: transaction already reconciled: %w", shared.ErrInvalidState)
	// ErrUnreconciledDifference indicates closing and book balances disagree.
	ErrUnreconciledDifference = fmt.Errorf("bank: statement difference is not zero: %w", shared.ErrInvalidState)
	// ErrAlreadyCompleted indicates the reconciliation is final.
	ErrAlreadyCompleted = fmt.Errorf("bank: reconciliation already completed: %w", shared.ErrInvalidState)
	// ErrNoTransactions indicates a reconciliation started with nothing matched.
	ErrNoTransactions = fmt.Errorf("bank: no transactions matched: %w", shared.ErrValidation)
)

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service matches bank statements against book transactions.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateBankAccount registers a bank account tied to a GL control account.
func (s *Service) CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error) {
	if account.OrgID == 0 || account.Name == "" || account.GLAccountID == 0 {
		return BankAccount{}, fmt.Errorf("bank: org, name and GL account required: %w", shared.ErrValidation)
	}
	account.IsActive = true
	return s.repo.CreateBankAccount(ctx, account)
}

// ListBankAccounts returns the organization's bank accounts.
func (s *Service) ListBankAccounts(ctx context.Context, orgID int64) ([]BankAccount, error) {
	return s.repo.ListBankAccounts(ctx, orgID)
}

// ImportTransaction records one statement line for later matching.
func (s *Service) ImportTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error) {
	if txn.OrgID == 0 || txn.BankAccountID == 0 {
		return BankTransaction{}, fmt.Errorf("bank: org and bank account required: %w", shared.ErrValidation)
	}
	if txn.Debit.IsNegative() || txn.Credit.IsNegative() {
		return BankTransaction{}, fmt.Errorf("bank: negative amount: %w", shared.ErrValidation)
	}
	if txn.Debit.IsPositive() == txn.Credit.IsPositive() {
		return BankTransaction{}, fmt.Errorf("bank: exactly one of debit or credit required: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetBankAccount(ctx, txn.OrgID, txn.BankAccountID); err != nil {
		return BankTransaction{}, err
	}
	return s.repo.InsertTransaction(ctx, txn)
}

// ListTransactions returns statement lines, optionally only unreconciled ones.
func (s *Service) ListTransactions(ctx context.Context, orgID, bankAccountID int64, unreconciledOnly bool) ([]BankTransaction, error) {
	return s.repo.ListTransactions(ctx, orgID, bankAccountID, unreconciledOnly)
}

// StartInput carries the parameters for opening a reconciliation.
type StartInput struct {
	OrgID          int64
	BankAccountID  int64
	StatementDate  time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	MatchedTxnIDs  []int64
	ActorID        int64
}

// Start opens a reconciliation over the matched transactions. The book
// balance and difference are computed here; matched transactions are flagged
// and linked in the same transaction.
func (s *Service) Start(ctx context.Context, in StartInput) (BankReconciliation, error) {
	if len(in.MatchedTxnIDs) == 0 {
		return BankReconciliation{}, ErrNoTransactions
	}
	var recon BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetBankAccountForUpdate(ctx, in.OrgID, in.BankAccountID); err != nil {
			return err
		}
		book := in.OpeningBalance
		for _, txnID := range in.MatchedTxnIDs {
			txn, err := tx.GetTransactionForUpdate(ctx, in.OrgID, txnID)
			if err != nil {
				return err
			}
			if txn.BankAccountID != in.BankAccountID {
				return fmt.Errorf("bank: transaction %d belongs to another account: %w", txnID, shared.ErrValidation)
			}
			if txn.IsReconciled {
				return fmt.Errorf("%w: transaction %d", ErrTransactionReconciled, txnID)
			}
			book = book.Add(txn.Net())
		}
		created, err := tx.InsertReconciliation(ctx, BankReconciliation{
			OrgID:          in.OrgID,
			BankAccountID:  in.BankAccountID,
			StatementDate:  in.StatementDate,
			OpeningBalance: in.OpeningBalance,
			ClosingBalance: in.ClosingBalance,
			BookBalance:    book,
			Difference:     in.ClosingBalance.Sub(book),
			Status:         ReconStatusInProgress,
		})
		if err != nil {
			return err
		}
		for _, txnID := range in.MatchedTxnIDs {
			if err := tx.MarkReconciled(ctx, txnID, &created.ID); err != nil {
				return err
			}
		}
		recon = created
		return nil
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.recordAudit(ctx, in.ActorID, "reconciliation.start", recon)
	return recon, nil
}

// Get returns one reconciliation.
func (s *Service) Get(ctx context.Context, orgID, reconID int64) (BankReconciliation, error) {
	return s.repo.GetReconciliation(ctx, orgID, reconID)
}

// List returns reconciliations for a bank account, newest first.
func (s *Service) List(ctx context.Context, orgID, bankAccountID int64) ([]BankReconciliation, error) {
	return s.repo.ListReconciliations(ctx, orgID, bankAccountID)
}

// Complete finalizes a reconciliation. A non-zero difference blocks
// completion unless force is set, in which case the override is recorded in
// the notes.
func (s *Service) Complete(ctx context.Context, orgID, reconID int64, force bool, notes string, actorID int64) (BankReconciliation, error) {
	var recon BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReconciliationForUpdate(ctx, orgID, reconID)
		if err != nil {
			return err
		}
		if current.Status == ReconStatusCompleted {
			return ErrAlreadyCompleted
		}
		if !current.Difference.IsZero() {
			if !force {
				return fmt.Errorf("%w: difference %s", ErrUnreconciledDifference, current.Difference)
			}
			notes = fmt.Sprintf("force-completed with difference %s; %s", current.Difference, notes)
		}
		updated, err := tx.SetReconciliationStatus(ctx, reconID, ReconStatusCompleted, notes)
		if err != nil {
			return err
		}
		recon = updated
		return nil
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.recordAudit(ctx, actorID, "reconciliation.complete", recon)
	return recon, nil
}

// Delete removes a reconciliation and releases its transactions. Completed
// reconciliations require force.
func (s *Service) Delete(ctx context.Context, orgID, reconID int64, force bool, actorID int64) error {
	var recon BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReconciliationForUpdate(ctx, orgID, reconID)
		if err != nil {
			return err
		}
		if current.Status == ReconStatusCompleted && !force {
			return ErrAlreadyCompleted
		}
		if err := tx.ReleaseTransactions(ctx, reconID); err != nil {
			return err
		}
		recon = current
		return tx.DeleteReconciliation(ctx, reconID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "reconciliation.delete", recon)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, recon BankReconciliation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    recon.OrgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "bank_reconciliation",
		EntityID: fmt.Sprintf("%d", recon.ID),
		Meta: map[string]any{
			"bank_account_id": recon.BankAccountID,
			"difference":      recon.Difference.String(),
		},
		At: s.now(),
	})
}
