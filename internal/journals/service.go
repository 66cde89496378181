package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrEmptyJournal indicates a journal with zero lines.
	ErrEmptyJournal = fmt.Errorf("journals: journal has no lines: %w", shared.ErrValidation)
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("journals: journal lines must balance: %w", shared.ErrValidation)
	// ErrJournalNotFound indicates a missing entry.
	ErrJournalNotFound = fmt.Errorf("journals: journal entry %w", shared.ErrNotFound)
	// ErrInvalidStatus indicates the action cannot proceed from the current status.
	ErrInvalidStatus = fmt.Errorf("journals: invalid status transition: %w", shared.ErrInvalidState)
	// ErrAlreadyVoid indicates a repeated void.
	ErrAlreadyVoid = fmt.Errorf("journals: journal already void: %w", shared.ErrInvalidState)
	// ErrSourceAlreadyLinked indicates the source document was posted before.
	ErrSourceAlreadyLinked = fmt.Errorf("journals: source already linked: %w", shared.ErrInvalidState)
	// ErrDateOutOfRange indicates the journal date falls outside its period.
	ErrDateOutOfRange = fmt.Errorf("journals: date outside period: %w", shared.ErrValidation)
)

// journalNumberFormat renders the per-org sequence value. Numbers are
// monotonic and gap-tolerant; a voided journal never releases its number.
const journalNumberFormat = "JE-%06d"

// FormatNumber renders a sequence value as a journal number.
func FormatNumber(seq int64) string {
	return fmt.Sprintf(journalNumberFormat, seq)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPort publishes domain events after a successful commit.
type EventPort interface {
	JournalPosted(ctx context.Context, entry JournalEntry)
}

// Service drives the journal posting state machine.
type Service struct {
	repo   Repository
	audit  AuditPort
	events EventPort
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditPort, events EventPort) *Service {
	return &Service{repo: repo, audit: audit, events: events, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns journal entries for the organization, newest first.
func (s *Service) List(ctx context.Context, orgID int64) ([]JournalEntry, error) {
	return s.repo.List(ctx, orgID)
}

// Get returns one journal entry with its lines.
func (s *Service) Get(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, lines, err := tx.GetJournalWithLines(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		entry = found
		entry.Lines = lines
		return nil
	})
	return entry, err
}

// CreateDraft stores an editable draft. Balance is not yet enforced; posting is.
func (s *Service) CreateDraft(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.ValidateShape(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertJournalEntry(ctx, input, JournalStatusDraft)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Post transitions a draft to POSTED: validates balance, accounts and period,
// assigns the journal number and applies account balances, all in one
// transaction so a partial posting is never observable.
func (s *Service) Post(ctx context.Context, orgID, entryID, actorID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetJournalWithLines(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusDraft {
			return ErrInvalidStatus
		}
		input := PostingInput{
			OrgID:        orgID,
			Date:         current.Date,
			SourceModule: current.SourceModule,
			SourceID:     current.SourceID,
			Memo:         current.Memo,
			PostedBy:     actorID,
			Lines:        toLineInputs(lines),
		}
		posted, err := s.postLocked(ctx, tx, current.ID, input)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.post", entry)
	if s.events != nil {
		s.events.JournalPosted(ctx, entry)
	}
	return entry, nil
}

// PostDirect creates and posts a journal in a single transaction. It is the
// entry point used by module integrations (AP, AR, bank); the source link
// makes replays of the same source document idempotency conflicts.
func (s *Service) PostDirect(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertJournalEntry(ctx, input, JournalStatusDraft)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		posted, err := s.postLocked(ctx, tx, inserted.ID, input)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.PostedBy, "journal.post", entry)
	if s.events != nil {
		s.events.JournalPosted(ctx, entry)
	}
	return entry, nil
}

// postLocked performs steps 2..6 of the posting state machine against an
// already-inserted entry, inside the caller's transaction.
func (s *Service) postLocked(ctx context.Context, tx TxRepository, entryID int64, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	period, err := tx.GetPeriodForUpdate(ctx, input.OrgID, input.Date)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := fiscal.AssertOpen(period); err != nil {
		return JournalEntry{}, err
	}
	if !period.Contains(input.Date) {
		return JournalEntry{}, ErrDateOutOfRange
	}
	for _, line := range input.Lines {
		account, err := tx.GetAccount(ctx, input.OrgID, line.AccountID)
		if err != nil {
			return JournalEntry{}, err
		}
		if err := accounts.AssertPostable(account); err != nil {
			return JournalEntry{}, err
		}
	}
	if input.SourceModule != "" {
		if err := tx.LinkSource(ctx, input.OrgID, input.SourceModule, input.SourceID, entryID); err != nil {
			return JournalEntry{}, err
		}
	}
	seq, err := tx.NextJournalNumber(ctx, input.OrgID)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, line := range input.Lines {
		if err := tx.ApplyBalance(ctx, input.OrgID, line.AccountID, period.ID, line.Debit, line.Credit); err != nil {
			return JournalEntry{}, err
		}
	}
	postedAt := s.now()
	entry, err := tx.MarkPosted(ctx, entryID, FormatNumber(seq), period.ID, input.PostedBy, postedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = toJournalLines(entry.ID, input.Lines, postedAt)
	return entry, nil
}

// Void terminates a journal. Drafts are voided directly. Posted journals are
// reversed: a new journal with every line swapped posts through the same
// machine, then the original is marked VOID and linked to its reversal.
func (s *Service) Void(ctx context.Context, input VoidInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, fmt.Errorf("journals: entry id required: %w", shared.ErrValidation)
	}
	var entry JournalEntry
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetJournalWithLines(ctx, input.OrgID, input.EntryID)
		if err != nil {
			return err
		}
		switch current.Status {
		case JournalStatusVoid:
			return ErrAlreadyVoid
		case JournalStatusDraft:
			if err := tx.UpdateJournalStatus(ctx, current.ID, JournalStatusVoid); err != nil {
				return err
			}
			entry = current
			entry.Status = JournalStatusVoid
			return nil
		case JournalStatusPosted:
			// Reversing entry in the same period; a closed period blocks the void.
			posting := PostingInput{
				OrgID:        input.OrgID,
				Date:         current.Date,
				SourceModule: "",
				Memo:         reversalMemo(input.Reason, current.Number),
				PostedBy:     input.ActorID,
				Lines:        reverseLines(lines),
			}
			inserted, err := tx.InsertJournalEntry(ctx, posting, JournalStatusDraft)
			if err != nil {
				return err
			}
			if err := tx.InsertJournalLines(ctx, inserted.ID, posting.Lines); err != nil {
				return err
			}
			posted, err := s.postLocked(ctx, tx, inserted.ID, posting)
			if err != nil {
				return err
			}
			if err := tx.SetReversalOf(ctx, posted.ID, current.ID); err != nil {
				return err
			}
			if err := tx.UpdateJournalStatus(ctx, current.ID, JournalStatusVoid); err != nil {
				return err
			}
			entry = current
			entry.Status = JournalStatusVoid
			reversal = posted
			return nil
		default:
			return ErrInvalidStatus
		}
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "journal.void", entry)
	if reversal.ID != 0 && s.events != nil {
		s.events.JournalPosted(ctx, reversal)
	}
	return entry, nil
}

// Balance returns the running totals for one account and period.
func (s *Service) Balance(ctx context.Context, orgID, accountID, periodID int64) (AccountBalance, error) {
	return s.repo.GetBalance(ctx, orgID, accountID, periodID)
}

// TrialBalance lists every account balance for a period.
func (s *Service) TrialBalance(ctx context.Context, orgID, periodID int64) ([]AccountBalance, error) {
	return s.repo.ListBalances(ctx, orgID, periodID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entry JournalEntry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    entry.OrgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"number": entry.Number,
			"status": string(entry.Status),
		},
		At: s.now(),
	})
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toLineInputs(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for idx, line := range lines {
		out = append(out, JournalLine{
			JournalID: entryID,
			LineNo:    idx + 1,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			CreatedAt: ts,
			UpdatedAt: ts,
		})
	}
	return out
}

func reversalMemo(reason, number string) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Reversal of %s", number)
}
