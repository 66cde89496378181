package ar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryARRepo struct {
	mu          sync.Mutex
	invoices    map[int64]Invoice
	receipts    map[int64]Receipt
	allocations map[int64]Allocation
	nextID      int64
}

func newMemoryARRepo() *memoryARRepo {
	return &memoryARRepo{
		invoices:    make(map[int64]Invoice),
		receipts:    make(map[int64]Receipt),
		allocations: make(map[int64]Allocation),
	}
}

func (r *memoryARRepo) GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryARTx)(r).GetInvoiceForUpdate(ctx, orgID, invoiceID)
}

func (r *memoryARRepo) ListInvoices(ctx context.Context, orgID int64, status string) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.OrgID != orgID {
			continue
		}
		if status != "" && status != "ALL" && string(inv.Status) != status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *memoryARRepo) GetReceipt(ctx context.Context, orgID, receiptID int64) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryARTx)(r).GetReceiptForUpdate(ctx, orgID, receiptID)
}

func (r *memoryARRepo) ListReceipts(ctx context.Context, orgID int64) ([]Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Receipt
	for _, rec := range r.receipts {
		if rec.OrgID == orgID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryARRepo) ListOutstanding(ctx context.Context, orgID int64) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.OrgID == orgID && inv.Status == DocStatusPosted && inv.BalanceDue.IsPositive() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryARRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryARTx)(r))
}

type memoryARTx memoryARRepo

func (r *memoryARTx) InsertInvoice(ctx context.Context, invoice Invoice, lines []InvoiceLine) (Invoice, error) {
	r.nextID++
	invoice.ID = r.nextID
	invoice.Lines = lines
	r.invoices[invoice.ID] = invoice
	return invoice, nil
}

func (r *memoryARTx) GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	inv, ok := r.invoices[invoiceID]
	if !ok || inv.OrgID != orgID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (r *memoryARTx) SetInvoiceStatus(ctx context.Context, invoiceID int64, status DocStatus) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	r.invoices[invoiceID] = inv
	return nil
}

func (r *memoryARTx) UpdateInvoiceSettlement(ctx context.Context, invoiceID int64, paid, due decimal.Decimal, state SettleState) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.BalanceDue = due
	inv.SettleState = state
	r.invoices[invoiceID] = inv
	return nil
}

func (r *memoryARTx) InsertReceipt(ctx context.Context, receipt Receipt) (Receipt, error) {
	r.nextID++
	receipt.ID = r.nextID
	r.receipts[receipt.ID] = receipt
	return receipt, nil
}

func (r *memoryARTx) GetReceiptForUpdate(ctx context.Context, orgID, receiptID int64) (Receipt, error) {
	rec, ok := r.receipts[receiptID]
	if !ok || rec.OrgID != orgID {
		return Receipt{}, ErrReceiptNotFound
	}
	return rec, nil
}

func (r *memoryARTx) UpdateReceiptAllocated(ctx context.Context, receiptID int64, allocated decimal.Decimal) error {
	rec, ok := r.receipts[receiptID]
	if !ok {
		return ErrReceiptNotFound
	}
	rec.AllocatedAmount = allocated
	r.receipts[receiptID] = rec
	return nil
}

func (r *memoryARTx) InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error) {
	r.nextID++
	alloc.ID = r.nextID
	r.allocations[alloc.ID] = alloc
	return alloc, nil
}

func (r *memoryARTx) GetAllocationForUpdate(ctx context.Context, orgID, allocationID int64) (Allocation, error) {
	a, ok := r.allocations[allocationID]
	if !ok || a.OrgID != orgID {
		return Allocation{}, ErrAllocationNotFound
	}
	return a, nil
}

func (r *memoryARTx) DeleteAllocation(ctx context.Context, allocationID int64) error {
	if _, ok := r.allocations[allocationID]; !ok {
		return ErrAllocationNotFound
	}
	delete(r.allocations, allocationID)
	return nil
}

func postedInvoice(t *testing.T, svc *Service, number, amount string) Invoice {
	t.Helper()
	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		OrgID:       1,
		Number:      number,
		CustomerID:  55,
		InvoiceDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		DueAt:       time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		Lines: []InvoiceLineInput{
			{Description: "consulting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString(amount)},
		},
	})
	require.NoError(t, err)
	invoice, err = svc.PostInvoice(context.Background(), 1, invoice.ID, 7)
	require.NoError(t, err)
	return invoice
}

func postedReceipt(t *testing.T, svc *Service, number, amount string) Receipt {
	t.Helper()
	receipt, err := svc.CreateReceipt(context.Background(), CreateReceiptInput{
		OrgID:       1,
		Number:      number,
		CustomerID:  55,
		ReceiptDate: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return receipt
}

func TestReceiptAllocationLifecycle(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil, nil)
	ctx := context.Background()

	invoice := postedInvoice(t, svc, "INV-001", "500.00")
	receipt := postedReceipt(t, svc, "RCPT-001", "500.00")

	_, err := svc.Allocate(ctx, 1, receipt.ID, invoice.ID, decimal.RequireFromString("200.00"), 7)
	require.NoError(t, err)
	invoice, err = svc.GetInvoice(ctx, 1, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, SettleStatePartial, invoice.SettleState)
	require.Equal(t, "300.00", invoice.BalanceDue.StringFixed(2))

	_, err = svc.Allocate(ctx, 1, receipt.ID, invoice.ID, decimal.RequireFromString("300.00"), 7)
	require.NoError(t, err)
	invoice, err = svc.GetInvoice(ctx, 1, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, SettleStatePaid, invoice.SettleState)
	require.True(t, invoice.BalanceDue.IsZero())

	_, err = svc.Allocate(ctx, 1, receipt.ID, invoice.ID, decimal.RequireFromString("0.01"), 7)
	require.ErrorIs(t, err, ErrOverAllocation)
}

func TestDeallocateRestoresReceivable(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil, nil)
	ctx := context.Background()

	invoice := postedInvoice(t, svc, "INV-001", "250.00")
	receipt := postedReceipt(t, svc, "RCPT-001", "250.00")

	alloc, err := svc.Allocate(ctx, 1, receipt.ID, invoice.ID, decimal.RequireFromString("250.00"), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Deallocate(ctx, 1, alloc.ID, 7))

	invoice, err = svc.GetInvoice(ctx, 1, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, SettleStateUnpaid, invoice.SettleState)
	require.True(t, invoice.BalanceDue.Equal(invoice.Total))

	receipt, err = svc.GetReceipt(ctx, 1, receipt.ID)
	require.NoError(t, err)
	require.True(t, receipt.AllocatedAmount.IsZero())
}

func TestAllocateRejectsCustomerMismatch(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil, nil)
	ctx := context.Background()

	invoice := postedInvoice(t, svc, "INV-001", "100.00")
	receipt, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		OrgID:       1,
		Number:      "RCPT-001",
		CustomerID:  99,
		ReceiptDate: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, 1, receipt.ID, invoice.ID, decimal.RequireFromString("50.00"), 7)
	require.ErrorIs(t, err, ErrCustomerMismatch)
}

func TestVoidInvoiceRules(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil, nil)
	ctx := context.Background()

	invoice := postedInvoice(t, svc, "INV-001", "100.00")
	receipt := postedReceipt(t, svc, "RCPT-001", "100.00")
	alloc, err := svc.Allocate(ctx, 1, receipt.ID, invoice.ID, decimal.RequireFromString("40.00"), 7)
	require.NoError(t, err)

	_, err = svc.VoidInvoice(ctx, 1, invoice.ID, 7)
	require.ErrorIs(t, err, ErrInvoicePaid)

	require.NoError(t, svc.Deallocate(ctx, 1, alloc.ID, 7))
	voided, err := svc.VoidInvoice(ctx, 1, invoice.ID, 7)
	require.NoError(t, err)
	require.Equal(t, DocStatusVoid, voided.Status)

	_, err = svc.VoidInvoice(ctx, 1, invoice.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyVoid)
}
