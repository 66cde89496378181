package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// JournalEntry captures posting metadata. Once POSTED the entry is immutable;
// the only way out is a reversing entry that flips every line.
type JournalEntry struct {
	ID           int64
	OrgID        int64
	Number       string
	PeriodID     int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Status       JournalStatus
	PostedBy     int64
	PostedAt     *time.Time
	ReversalOfID *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is non-zero per line.
type JournalLine struct {
	ID        int64
	JournalID int64
	LineNo    int
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountBalance keeps running debit/credit totals per account and period.
// Rows are created lazily on the first posting that touches the pair.
type AccountBalance struct {
	OrgID       int64
	AccountID   int64
	PeriodID    int64
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	UpdatedAt   time.Time
}
