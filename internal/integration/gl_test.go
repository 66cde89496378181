package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/journals"
)

type memoryMappings struct {
	byKey map[string]Mapping
}

func newMemoryMappings() *memoryMappings {
	return &memoryMappings{byKey: make(map[string]Mapping)}
}

func mappingKey(orgID int64, module, key string) string {
	return fmt.Sprintf("%d/%s/%s", orgID, module, key)
}

func (m *memoryMappings) Resolve(ctx context.Context, orgID int64, module, key string) (Mapping, error) {
	mapping, ok := m.byKey[mappingKey(orgID, module, key)]
	if !ok {
		return Mapping{}, ErrMappingNotFound
	}
	return mapping, nil
}

func (m *memoryMappings) List(ctx context.Context, orgID int64) ([]Mapping, error) {
	var out []Mapping
	for _, mapping := range m.byKey {
		if mapping.OrgID == orgID {
			out = append(out, mapping)
		}
	}
	return out, nil
}

func (m *memoryMappings) Upsert(ctx context.Context, mapping Mapping) (Mapping, error) {
	m.byKey[mappingKey(mapping.OrgID, mapping.Module, mapping.Key)] = mapping
	return mapping, nil
}

type fakePoster struct {
	posted []journals.PostingInput
	linked map[string]bool
}

func (f *fakePoster) PostDirect(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error) {
	key := input.SourceModule + "/" + input.SourceID.String()
	if f.linked == nil {
		f.linked = make(map[string]bool)
	}
	if f.linked[key] {
		return journals.JournalEntry{}, journals.ErrSourceAlreadyLinked
	}
	f.linked[key] = true
	f.posted = append(f.posted, input)
	return journals.JournalEntry{ID: int64(len(f.posted)), Status: journals.JournalStatusPosted}, nil
}

func seedAPMappings(t *testing.T, mappings MappingRepository) {
	t.Helper()
	ctx := context.Background()
	for key, account := range map[string]int64{
		KeyExpenseControl: 501,
		KeyPayableControl: 201,
		KeyCash:           101,
	} {
		_, err := mappings.Upsert(ctx, Mapping{OrgID: 1, Module: "ap", Key: key, AccountID: account})
		require.NoError(t, err)
	}
}

func sampleBill() ap.Bill {
	return ap.Bill{
		OrgID:    1,
		RefID:    uuid.New(),
		Number:   "BILL-001",
		BillDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Total:    decimal.RequireFromString("500.00"),
	}
}

func TestBillPostedBooksExpenseAgainstPayable(t *testing.T) {
	mappings := newMemoryMappings()
	seedAPMappings(t, mappings)
	poster := &fakePoster{}
	gl := NewGL(nil, poster, mappings)

	bill := sampleBill()
	require.NoError(t, gl.BillPosted(context.Background(), bill))
	require.Len(t, poster.posted, 1)

	input := poster.posted[0]
	require.Equal(t, SourceAPBill, input.SourceModule)
	require.Equal(t, bill.RefID, input.SourceID)
	require.Len(t, input.Lines, 2)
	require.Equal(t, int64(501), input.Lines[0].AccountID)
	require.True(t, input.Lines[0].Debit.Equal(bill.Total))
	require.Equal(t, int64(201), input.Lines[1].AccountID)
	require.True(t, input.Lines[1].Credit.Equal(bill.Total))
}

func TestBillPostedReplayIsAbsorbed(t *testing.T) {
	mappings := newMemoryMappings()
	seedAPMappings(t, mappings)
	poster := &fakePoster{}
	gl := NewGL(nil, poster, mappings)

	bill := sampleBill()
	require.NoError(t, gl.BillPosted(context.Background(), bill))
	require.NoError(t, gl.BillPosted(context.Background(), bill))
	require.Len(t, poster.posted, 1)
}

func TestMissingMappingSurfacesExternalDependency(t *testing.T) {
	poster := &fakePoster{}
	gl := NewGL(nil, poster, newMemoryMappings())

	err := gl.BillPosted(context.Background(), sampleBill())
	require.ErrorIs(t, err, ErrMappingNotFound)
	require.Empty(t, poster.posted)
}

func TestVoidUsesSeparateSourceLink(t *testing.T) {
	mappings := newMemoryMappings()
	seedAPMappings(t, mappings)
	poster := &fakePoster{}
	gl := NewGL(nil, poster, mappings)

	bill := sampleBill()
	require.NoError(t, gl.BillPosted(context.Background(), bill))
	require.NoError(t, gl.BillVoided(context.Background(), bill))
	require.Len(t, poster.posted, 2)
	require.Equal(t, SourceAPBillVoid, poster.posted[1].SourceModule)
	// Void swaps the sides.
	require.True(t, poster.posted[1].Lines[0].Debit.Equal(bill.Total))
	require.Equal(t, int64(201), poster.posted[1].Lines[0].AccountID)
}
