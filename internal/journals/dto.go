package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	OrgID        int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

// ValidateShape checks per-line constraints without requiring balance;
// drafts may be saved unbalanced and fixed before posting.
func (in PostingInput) ValidateShape() error {
	if in.OrgID == 0 {
		return fmt.Errorf("journals: organization required: %w", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return ErrEmptyJournal
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("journals: line %d missing account: %w", idx, shared.ErrValidation)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("journals: line %d negative amount: %w", idx, shared.ErrValidation)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("journals: line %d must have exactly one of debit or credit: %w", idx, shared.ErrValidation)
		}
	}
	return nil
}

// Validate runs the full posting validation including exact balance.
func (in PostingInput) Validate() error {
	if err := in.ValidateShape(); err != nil {
		return err
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	OrgID   int64
	EntryID int64
	ActorID int64
	Reason  string
}
