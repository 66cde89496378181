package journals

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
)

type memoryJournalRepo struct {
	mu       sync.Mutex
	entries  map[int64]JournalEntry
	lines    map[int64][]JournalLine
	balances map[string]AccountBalance
	links    map[string]int64
	seq      map[int64]int64
	accounts map[int64]accounts.Account
	periods  map[int64]fiscal.Period
	nextID   int64
}

func newMemoryJournalRepo() *memoryJournalRepo {
	return &memoryJournalRepo{
		entries:  make(map[int64]JournalEntry),
		lines:    make(map[int64][]JournalLine),
		balances: make(map[string]AccountBalance),
		links:    make(map[string]int64),
		seq:      make(map[int64]int64),
		accounts: make(map[int64]accounts.Account),
		periods:  make(map[int64]fiscal.Period),
	}
}

func balanceKey(orgID, accountID, periodID int64) string {
	return fmt.Sprintf("%d/%d/%d", orgID, accountID, periodID)
}

func (r *memoryJournalRepo) List(ctx context.Context, orgID int64) ([]JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JournalEntry
	for _, e := range r.entries {
		if e.OrgID == orgID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryJournalRepo) GetBalance(ctx context.Context, orgID, accountID, periodID int64) (AccountBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[balanceKey(orgID, accountID, periodID)]
	if !ok {
		return AccountBalance{OrgID: orgID, AccountID: accountID, PeriodID: periodID, DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}, nil
	}
	return b, nil
}

func (r *memoryJournalRepo) ListBalances(ctx context.Context, orgID, periodID int64) ([]AccountBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AccountBalance
	for _, b := range r.balances {
		if b.OrgID == orgID && b.PeriodID == periodID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryJournalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryJournalTx)(r))
}

type memoryJournalTx memoryJournalRepo

func (r *memoryJournalTx) InsertJournalEntry(ctx context.Context, in PostingInput, status JournalStatus) (JournalEntry, error) {
	r.nextID++
	e := JournalEntry{
		ID:           r.nextID,
		OrgID:        in.OrgID,
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		Status:       status,
	}
	r.entries[e.ID] = e
	return e, nil
}

func (r *memoryJournalTx) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for idx, line := range lines {
		r.lines[entryID] = append(r.lines[entryID], JournalLine{
			JournalID: entryID,
			LineNo:    idx + 1,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return nil
}

func (r *memoryJournalTx) GetJournalWithLines(ctx context.Context, orgID, entryID int64) (JournalEntry, []JournalLine, error) {
	e, ok := r.entries[entryID]
	if !ok || e.OrgID != orgID {
		return JournalEntry{}, nil, ErrJournalNotFound
	}
	return e, r.lines[entryID], nil
}

func (r *memoryJournalTx) UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error {
	e, ok := r.entries[entryID]
	if !ok {
		return ErrJournalNotFound
	}
	e.Status = status
	r.entries[entryID] = e
	return nil
}

func (r *memoryJournalTx) SetReversalOf(ctx context.Context, entryID, originalID int64) error {
	e := r.entries[entryID]
	e.ReversalOfID = &originalID
	r.entries[entryID] = e
	return nil
}

func (r *memoryJournalTx) MarkPosted(ctx context.Context, entryID int64, number string, periodID, postedBy int64, postedAt time.Time) (JournalEntry, error) {
	e, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, ErrJournalNotFound
	}
	e.Number = number
	e.PeriodID = periodID
	e.Status = JournalStatusPosted
	e.PostedBy = postedBy
	e.PostedAt = &postedAt
	r.entries[entryID] = e
	return e, nil
}

func (r *memoryJournalTx) LinkSource(ctx context.Context, orgID int64, module string, ref uuid.UUID, entryID int64) error {
	key := fmt.Sprintf("%d/%s/%s", orgID, module, ref)
	if _, exists := r.links[key]; exists {
		return ErrSourceAlreadyLinked
	}
	r.links[key] = entryID
	return nil
}

func (r *memoryJournalTx) NextJournalNumber(ctx context.Context, orgID int64) (int64, error) {
	r.seq[orgID]++
	return r.seq[orgID], nil
}

func (r *memoryJournalTx) ApplyBalance(ctx context.Context, orgID, accountID, periodID int64, debit, credit decimal.Decimal) error {
	key := balanceKey(orgID, accountID, periodID)
	b, ok := r.balances[key]
	if !ok {
		b = AccountBalance{OrgID: orgID, AccountID: accountID, PeriodID: periodID, DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
	}
	b.DebitTotal = b.DebitTotal.Add(debit)
	b.CreditTotal = b.CreditTotal.Add(credit)
	r.balances[key] = b
	return nil
}

func (r *memoryJournalTx) GetPeriodForUpdate(ctx context.Context, orgID int64, date time.Time) (fiscal.Period, error) {
	for _, p := range r.periods {
		if p.OrgID == orgID && p.Contains(date) {
			return p, nil
		}
	}
	return fiscal.Period{}, fiscal.ErrNoPeriod
}

func (r *memoryJournalTx) GetAccount(ctx context.Context, orgID, accountID int64) (accounts.Account, error) {
	a, ok := r.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return a, nil
}

const (
	cashAccountID    = int64(101)
	revenueAccountID = int64(401)
	groupAccountID   = int64(100)
	janPeriodID      = int64(11)
)

func seedLedger(repo *memoryJournalRepo) {
	repo.accounts[groupAccountID] = accounts.Account{ID: groupAccountID, OrgID: 1, Code: "1000", Type: accounts.AccountTypeAsset, IsGroup: true, IsActive: true}
	repo.accounts[cashAccountID] = accounts.Account{ID: cashAccountID, OrgID: 1, Code: "1100", Type: accounts.AccountTypeAsset, IsActive: true}
	repo.accounts[revenueAccountID] = accounts.Account{ID: revenueAccountID, OrgID: 1, Code: "4000", Type: accounts.AccountTypeRevenue, IsActive: true}
	repo.periods[janPeriodID] = fiscal.Period{
		ID: janPeriodID, OrgID: 1, Code: "2026-01",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:    fiscal.PeriodStatusOpen,
	}
}

func simpleInput(amount string) PostingInput {
	amt := decimal.RequireFromString(amount)
	return PostingInput{
		OrgID:    1,
		Date:     time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Memo:     "cash sale",
		PostedBy: 7,
		Lines: []PostingLineInput{
			{AccountID: cashAccountID, Debit: amt},
			{AccountID: revenueAccountID, Credit: amt},
		},
	}
}

func TestPostDirectUpdatesBalances(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)

	entry, err := svc.PostDirect(context.Background(), simpleInput("100.00"))
	require.NoError(t, err)
	require.Equal(t, JournalStatusPosted, entry.Status)
	require.Equal(t, "JE-000001", entry.Number)
	require.Equal(t, janPeriodID, entry.PeriodID)
	require.NotNil(t, entry.PostedAt)

	cash, err := svc.Balance(context.Background(), 1, cashAccountID, janPeriodID)
	require.NoError(t, err)
	require.True(t, cash.DebitTotal.Equal(decimal.RequireFromString("100.00")))
	require.True(t, cash.CreditTotal.IsZero())

	revenue, err := svc.Balance(context.Background(), 1, revenueAccountID, janPeriodID)
	require.NoError(t, err)
	require.True(t, revenue.CreditTotal.Equal(decimal.RequireFromString("100.00")))
}

func TestPostRejectsUnbalancedLines(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)

	input := simpleInput("100.00")
	input.Lines[1].Credit = decimal.RequireFromString("99.99")
	_, err := svc.PostDirect(context.Background(), input)
	require.ErrorIs(t, err, ErrUnbalanced)
}

func TestPostRejectsClosedPeriodAndMissingPeriod(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)

	closed := repo.periods[janPeriodID]
	closed.Status = fiscal.PeriodStatusClosed
	repo.periods[janPeriodID] = closed
	_, err := svc.PostDirect(context.Background(), simpleInput("50.00"))
	require.ErrorIs(t, err, fiscal.ErrPeriodClosed)

	input := simpleInput("50.00")
	input.Date = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.PostDirect(context.Background(), input)
	require.ErrorIs(t, err, fiscal.ErrNoPeriod)
}

func TestPostRejectsNonPostableAccount(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)

	input := simpleInput("50.00")
	input.Lines[0].AccountID = groupAccountID
	_, err := svc.PostDirect(context.Background(), input)
	require.ErrorIs(t, err, accounts.ErrInvalidAccount)

	inactive := repo.accounts[cashAccountID]
	inactive.IsActive = false
	repo.accounts[cashAccountID] = inactive
	_, err = svc.PostDirect(context.Background(), simpleInput("50.00"))
	require.ErrorIs(t, err, accounts.ErrInvalidAccount)
}

func TestDraftThenPostLifecycle(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, simpleInput("250.00"))
	require.NoError(t, err)
	require.Equal(t, JournalStatusDraft, draft.Status)
	require.Empty(t, draft.Number)

	// Drafts do not touch balances.
	cash, err := svc.Balance(ctx, 1, cashAccountID, janPeriodID)
	require.NoError(t, err)
	require.True(t, cash.DebitTotal.IsZero())

	posted, err := svc.Post(ctx, 1, draft.ID, 9)
	require.NoError(t, err)
	require.Equal(t, JournalStatusPosted, posted.Status)
	require.Equal(t, int64(9), posted.PostedBy)

	// A second post attempt is a state error, not a duplicate posting.
	_, err = svc.Post(ctx, 1, draft.ID, 9)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestVoidPostedJournalReversesBalances(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	entry, err := svc.PostDirect(ctx, simpleInput("100.00"))
	require.NoError(t, err)

	voided, err := svc.Void(ctx, VoidInput{OrgID: 1, EntryID: entry.ID, ActorID: 7, Reason: "entered twice"})
	require.NoError(t, err)
	require.Equal(t, JournalStatusVoid, voided.Status)

	// Reversal restored both balances to net zero without deleting history.
	cash, err := svc.Balance(ctx, 1, cashAccountID, janPeriodID)
	require.NoError(t, err)
	require.True(t, cash.DebitTotal.Equal(cash.CreditTotal))

	var reversal *JournalEntry
	for _, e := range repo.entries {
		if e.ReversalOfID != nil && *e.ReversalOfID == entry.ID {
			found := e
			reversal = &found
		}
	}
	require.NotNil(t, reversal)
	require.Equal(t, JournalStatusPosted, reversal.Status)
	require.Equal(t, "JE-000002", reversal.Number)

	_, err = svc.Void(ctx, VoidInput{OrgID: 1, EntryID: entry.ID, ActorID: 7})
	require.ErrorIs(t, err, ErrAlreadyVoid)
}

func TestVoidDraftSkipsReversal(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, simpleInput("10.00"))
	require.NoError(t, err)

	voided, err := svc.Void(ctx, VoidInput{OrgID: 1, EntryID: draft.ID, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, JournalStatusVoid, voided.Status)
	require.Len(t, repo.entries, 1)
}

func TestVoidBlockedByClosedPeriod(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	entry, err := svc.PostDirect(ctx, simpleInput("100.00"))
	require.NoError(t, err)

	closed := repo.periods[janPeriodID]
	closed.Status = fiscal.PeriodStatusClosed
	repo.periods[janPeriodID] = closed

	_, err = svc.Void(ctx, VoidInput{OrgID: 1, EntryID: entry.ID, ActorID: 7})
	require.ErrorIs(t, err, fiscal.ErrPeriodClosed)

	// Original stays POSTED when the reversal cannot post.
	current, err := svc.Get(ctx, 1, entry.ID)
	require.NoError(t, err)
	require.Equal(t, JournalStatusPosted, current.Status)
}

func TestSourceLinkIsIdempotencyGuard(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	input := simpleInput("75.00")
	input.SourceModule = "ap"
	input.SourceID = uuid.New()

	_, err := svc.PostDirect(ctx, input)
	require.NoError(t, err)

	_, err = svc.PostDirect(ctx, input)
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
}

func TestConcurrentPostsGetDistinctNumbers(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	numbers := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := svc.PostDirect(context.Background(), simpleInput("5.00"))
			if err == nil {
				numbers <- entry.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for n := range numbers {
		require.False(t, seen[n], "duplicate journal number %s", n)
		seen[n] = true
	}
	require.Len(t, seen, workers)
}

func TestJournalNotFoundCrossOrg(t *testing.T) {
	repo := newMemoryJournalRepo()
	seedLedger(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	entry, err := svc.PostDirect(ctx, simpleInput("10.00"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, entry.ID)
	require.ErrorIs(t, err, ErrJournalNotFound)
}
