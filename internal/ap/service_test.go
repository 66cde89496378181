package ap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryAPRepo struct {
	mu          sync.Mutex
	bills       map[int64]Bill
	payments    map[int64]Payment
	allocations map[int64]Allocation
	nextID      int64
}

func newMemoryAPRepo() *memoryAPRepo {
	return &memoryAPRepo{
		bills:       make(map[int64]Bill),
		payments:    make(map[int64]Payment),
		allocations: make(map[int64]Allocation),
	}
}

func (r *memoryAPRepo) GetBill(ctx context.Context, orgID, billID int64) (Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryAPTx)(r).GetBillForUpdate(ctx, orgID, billID)
}

func (r *memoryAPRepo) ListBills(ctx context.Context, orgID int64, status string) ([]Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Bill
	for _, b := range r.bills {
		if b.OrgID != orgID {
			continue
		}
		if status != "" && status != "ALL" && string(b.Status) != status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *memoryAPRepo) GetPayment(ctx context.Context, orgID, paymentID int64) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryAPTx)(r).GetPaymentForUpdate(ctx, orgID, paymentID)
}

func (r *memoryAPRepo) ListPayments(ctx context.Context, orgID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryAPRepo) ListOutstanding(ctx context.Context, orgID int64) ([]Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Bill
	for _, b := range r.bills {
		if b.OrgID == orgID && b.Status == DocStatusPosted && b.BalanceDue.IsPositive() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryAPRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Bill
	for _, b := range r.bills {
		if b.Status == DocStatusPosted && b.BalanceDue.IsPositive() && b.DueAt.Before(asOf) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryAPRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryAPTx)(r))
}

type memoryAPTx memoryAPRepo

func (r *memoryAPTx) InsertBill(ctx context.Context, bill Bill, lines []BillLine) (Bill, error) {
	r.nextID++
	bill.ID = r.nextID
	bill.Lines = lines
	r.bills[bill.ID] = bill
	return bill, nil
}

func (r *memoryAPTx) GetBillForUpdate(ctx context.Context, orgID, billID int64) (Bill, error) {
	b, ok := r.bills[billID]
	if !ok || b.OrgID != orgID {
		return Bill{}, ErrBillNotFound
	}
	return b, nil
}

func (r *memoryAPTx) SetBillStatus(ctx context.Context, billID int64, status DocStatus) error {
	b, ok := r.bills[billID]
	if !ok {
		return ErrBillNotFound
	}
	b.Status = status
	r.bills[billID] = b
	return nil
}

func (r *memoryAPTx) UpdateBillSettlement(ctx context.Context, billID int64, paid, due decimal.Decimal, state PaymentState) error {
	b, ok := r.bills[billID]
	if !ok {
		return ErrBillNotFound
	}
	b.PaidAmount = paid
	b.BalanceDue = due
	b.PaymentState = state
	r.bills[billID] = b
	return nil
}

func (r *memoryAPTx) InsertPayment(ctx context.Context, payment Payment) (Payment, error) {
	r.nextID++
	payment.ID = r.nextID
	r.payments[payment.ID] = payment
	return payment, nil
}

func (r *memoryAPTx) GetPaymentForUpdate(ctx context.Context, orgID, paymentID int64) (Payment, error) {
	p, ok := r.payments[paymentID]
	if !ok || p.OrgID != orgID {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (r *memoryAPTx) UpdatePaymentAllocated(ctx context.Context, paymentID int64, allocated decimal.Decimal) error {
	p, ok := r.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.AllocatedAmount = allocated
	r.payments[paymentID] = p
	return nil
}

func (r *memoryAPTx) InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error) {
	r.nextID++
	alloc.ID = r.nextID
	r.allocations[alloc.ID] = alloc
	return alloc, nil
}

func (r *memoryAPTx) GetAllocationForUpdate(ctx context.Context, orgID, allocationID int64) (Allocation, error) {
	a, ok := r.allocations[allocationID]
	if !ok || a.OrgID != orgID {
		return Allocation{}, ErrAllocationNotFound
	}
	return a, nil
}

func (r *memoryAPTx) DeleteAllocation(ctx context.Context, allocationID int64) error {
	if _, ok := r.allocations[allocationID]; !ok {
		return ErrAllocationNotFound
	}
	delete(r.allocations, allocationID)
	return nil
}

func billInput(number, amount string) CreateBillInput {
	return CreateBillInput{
		OrgID:    1,
		Number:   number,
		VendorID: 42,
		BillDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		DueAt:    time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		Lines: []BillLineInput{
			{Description: "services", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString(amount)},
		},
	}
}

func postedBill(t *testing.T, svc *Service, number, amount string) Bill {
	t.Helper()
	bill, err := svc.CreateBill(context.Background(), billInput(number, amount))
	require.NoError(t, err)
	bill, err = svc.PostBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	return bill
}

func postedPayment(t *testing.T, svc *Service, number, amount string) Payment {
	t.Helper()
	payment, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		OrgID:       1,
		Number:      number,
		VendorID:    42,
		PaymentDate: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return payment
}

func TestBillTotalsWithTaxAndDiscount(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	input := billInput("BILL-001", "100.00")
	input.Lines = []BillLineInput{
		{
			Description:     "widgets",
			Quantity:        decimal.NewFromInt(3),
			UnitPrice:       decimal.RequireFromString("33.33"),
			TaxPercent:      decimal.RequireFromString("10"),
			DiscountPercent: decimal.RequireFromString("5"),
		},
	}
	bill, err := svc.CreateBill(context.Background(), input)
	require.NoError(t, err)

	// base 99.99, discount 5% = 5.00 (half-up), tax 10% of 94.99 = 9.50
	require.Equal(t, "99.99", bill.Subtotal.StringFixed(2))
	require.Equal(t, "5.00", bill.DiscountAmount.StringFixed(2))
	require.Equal(t, "9.50", bill.TaxAmount.StringFixed(2))
	require.Equal(t, "104.49", bill.Total.StringFixed(2))
	require.True(t, bill.BalanceDue.Equal(bill.Total))
	require.Equal(t, PaymentStateUnpaid, bill.PaymentState)
}

func TestAllocationLifecycle(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	bill := postedBill(t, svc, "BILL-001", "500.00")
	payment := postedPayment(t, svc, "PAY-001", "600.00")

	// 200 of 500: PARTIAL with 300 due.
	_, err := svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("200.00"), 7)
	require.NoError(t, err)
	bill, err = svc.GetBill(ctx, 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentStatePartial, bill.PaymentState)
	require.Equal(t, "300.00", bill.BalanceDue.StringFixed(2))

	// Remaining 300: PAID with zero due.
	_, err = svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("300.00"), 7)
	require.NoError(t, err)
	bill, err = svc.GetBill(ctx, 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentStatePaid, bill.PaymentState)
	require.True(t, bill.BalanceDue.IsZero())

	// Invariant: balance due never goes negative.
	_, err = svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("0.01"), 7)
	require.ErrorIs(t, err, ErrOverAllocation)

	payment, err = svc.GetPayment(ctx, 1, payment.ID)
	require.NoError(t, err)
	require.Equal(t, "500.00", payment.AllocatedAmount.StringFixed(2))
	require.Equal(t, "100.00", payment.Unallocated().StringFixed(2))
}

func TestAllocateRejectsPaymentOverrun(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	bill := postedBill(t, svc, "BILL-001", "500.00")
	payment := postedPayment(t, svc, "PAY-001", "100.00")

	_, err := svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("100.01"), 7)
	require.ErrorIs(t, err, ErrOverAllocation)

	_, err = svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.Zero, 7)
	require.Error(t, err)
}

func TestAllocateRequiresPostedDocuments(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	draft, err := svc.CreateBill(ctx, billInput("BILL-001", "500.00"))
	require.NoError(t, err)
	payment := postedPayment(t, svc, "PAY-001", "500.00")

	_, err = svc.Allocate(ctx, 1, payment.ID, draft.ID, decimal.RequireFromString("100.00"), 7)
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestAllocateRejectsVendorMismatch(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	bill := postedBill(t, svc, "BILL-001", "500.00")
	payment, err := svc.CreatePayment(ctx, CreatePaymentInput{
		OrgID:       1,
		Number:      "PAY-001",
		VendorID:    99,
		PaymentDate: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("100.00"), 7)
	require.ErrorIs(t, err, ErrVendorMismatch)
}

func TestDeallocateRestoresBalances(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	bill := postedBill(t, svc, "BILL-001", "500.00")
	payment := postedPayment(t, svc, "PAY-001", "500.00")

	alloc, err := svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("500.00"), 7)
	require.NoError(t, err)

	require.NoError(t, svc.Deallocate(ctx, 1, alloc.ID, 7))

	bill, err = svc.GetBill(ctx, 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentStateUnpaid, bill.PaymentState)
	require.True(t, bill.PaidAmount.IsZero())
	require.True(t, bill.BalanceDue.Equal(bill.Total))

	payment, err = svc.GetPayment(ctx, 1, payment.ID)
	require.NoError(t, err)
	require.True(t, payment.AllocatedAmount.IsZero())

	require.ErrorIs(t, svc.Deallocate(ctx, 1, alloc.ID, 7), ErrAllocationNotFound)
}

func TestVoidBillBlockedWhenSettled(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	bill := postedBill(t, svc, "BILL-001", "500.00")
	payment := postedPayment(t, svc, "PAY-001", "500.00")
	alloc, err := svc.Allocate(ctx, 1, payment.ID, bill.ID, decimal.RequireFromString("100.00"), 7)
	require.NoError(t, err)

	_, err = svc.VoidBill(ctx, 1, bill.ID, 7)
	require.ErrorIs(t, err, ErrBillPaid)

	// After deallocation the void proceeds, and a repeat void is rejected.
	require.NoError(t, svc.Deallocate(ctx, 1, alloc.ID, 7))
	voided, err := svc.VoidBill(ctx, 1, bill.ID, 7)
	require.NoError(t, err)
	require.Equal(t, DocStatusVoid, voided.Status)

	_, err = svc.VoidBill(ctx, 1, bill.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyVoid)
}

func TestPostBillOnlyFromDraft(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	bill := postedBill(t, svc, "BILL-001", "500.00")
	_, err := svc.PostBill(ctx, 1, bill.ID, 7)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestAgingBucketsByDaysOverdue(t *testing.T) {
	repo := newMemoryAPRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	mkBill := func(number string, dueAt time.Time, amount string) {
		in := billInput(number, amount)
		in.BillDate = dueAt.AddDate(0, 0, -30)
		in.DueAt = dueAt
		bill, err := svc.CreateBill(ctx, in)
		require.NoError(t, err)
		_, err = svc.PostBill(ctx, 1, bill.ID, 7)
		require.NoError(t, err)
	}

	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mkBill("B-CUR", asOf.AddDate(0, 0, 10), "100.00")  // not yet due
	mkBill("B-15", asOf.AddDate(0, 0, -15), "200.00")  // 1-30
	mkBill("B-45", asOf.AddDate(0, 0, -45), "300.00")  // 31-60
	mkBill("B-200", asOf.AddDate(0, 0, -200), "50.00") // 120+

	buckets, err := svc.Aging(ctx, 1, asOf)
	require.NoError(t, err)
	require.Len(t, buckets, 6)

	byLabel := map[string]AgingBucket{}
	for _, b := range buckets {
		byLabel[b.Label] = b
	}
	require.Equal(t, "100.00", byLabel["current"].Amount.StringFixed(2))
	require.Equal(t, "200.00", byLabel["1-30"].Amount.StringFixed(2))
	require.Equal(t, "300.00", byLabel["31-60"].Amount.StringFixed(2))
	require.Equal(t, "50.00", byLabel["120+"].Amount.StringFixed(2))
	require.Equal(t, 1, byLabel["current"].Count)
	require.Zero(t, byLabel["61-90"].Count)
}

func TestOverdueBillsScan(t *testing.T) {
	svc := NewService(newMemoryAPRepo(), nil, nil, nil)
	ctx := context.Background()

	in := billInput("BILL-001", "500.00")
	in.DueAt = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	bill, err := svc.CreateBill(ctx, in)
	require.NoError(t, err)
	_, err = svc.PostBill(ctx, 1, bill.ID, 7)
	require.NoError(t, err)

	overdue, err := svc.OverdueBills(ctx, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	overdue, err = svc.OverdueBills(ctx, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, overdue)
}
