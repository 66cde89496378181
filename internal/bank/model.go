package bank

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconStatus enumerates reconciliation lifecycle values.
type ReconStatus string

const (
	ReconStatusInProgress ReconStatus = "IN_PROGRESS"
	ReconStatusCompleted  ReconStatus = "COMPLETED"
)

// BankAccount links a physical bank account to its GL control account.
type BankAccount struct {
	ID            int64
	OrgID         int64
	Name          string
	AccountNumber string
	GLAccountID   int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BankTransaction is one statement line. Debit is money out, credit money in.
type BankTransaction struct {
	ID               int64
	OrgID            int64
	BankAccountID    int64
	TxnDate          time.Time
	Description      string
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	IsReconciled     bool
	ReconciliationID *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Net is the signed effect of the transaction on the bank balance.
func (t BankTransaction) Net() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// BankReconciliation compares a statement window against matched book
// transactions. BookBalance = opening + net of matched transactions;
// Difference = closing − book.
type BankReconciliation struct {
	ID             int64
	OrgID          int64
	BankAccountID  int64
	StatementDate  time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	BookBalance    decimal.Decimal
	Difference     decimal.Decimal
	Status         ReconStatus
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
