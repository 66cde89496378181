package ap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrBillNotFound indicates a missing bill.
	ErrBillNotFound = fmt.Errorf("ap: bill %w", shared.ErrNotFound)
	// ErrPaymentNotFound indicates a missing payment.
	ErrPaymentNotFound = fmt.Errorf("ap: payment %w", shared.ErrNotFound)
	// ErrAllocationNotFound indicates a missing allocation.
	ErrAllocationNotFound = fmt.Errorf("ap: allocation %w", shared.ErrNotFound)
	// ErrNotPosted indicates an allocation against a non-posted document.
	ErrNotPosted = fmt.Errorf("ap: document not posted: %w", shared.ErrInvalidState)
	// ErrOverAllocation indicates the amount exceeds what either side can bear.
	ErrOverAllocation = fmt.Errorf("ap: amount exceeds remaining balance: %w", shared.ErrValidation)
	// ErrBillPaid indicates a void attempt on a bill with settled amounts.
	ErrBillPaid = fmt.Errorf("ap: bill has allocations: %w", shared.ErrInvalidState)
	// ErrAlreadyVoid indicates a repeated void.
	ErrAlreadyVoid = fmt.Errorf("ap: bill already void: %w", shared.ErrInvalidState)
	// ErrNotDraft indicates a post attempt on a non-draft bill.
	ErrNotDraft = fmt.Errorf("ap: bill is not a draft: %w", shared.ErrInvalidState)
	// ErrVendorMismatch indicates the payment and bill belong to different vendors.
	ErrVendorMismatch = fmt.Errorf("ap: payment and bill vendors differ: %w", shared.ErrValidation)
	// ErrDuplicateNumber indicates the document number is already used.
	ErrDuplicateNumber = fmt.Errorf("ap: duplicate document number: %w", shared.ErrValidation)
)

// GLPort posts accounting consequences of AP documents to the general ledger.
// Implementations must be idempotent per document RefID so a crashed status
// update can be retried safely.
type GLPort interface {
	BillPosted(ctx context.Context, bill Bill) error
	BillVoided(ctx context.Context, bill Bill) error
	PaymentPosted(ctx context.Context, payment Payment) error
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives vendor bills, payments and their allocations.
type Service struct {
	repo  Repository
	gl    GLPort
	audit AuditPort
	cache *cache.ReadThrough
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, gl GLPort, audit AuditPort, listCache *cache.ReadThrough) *Service {
	return &Service{repo: repo, gl: gl, audit: audit, cache: listCache, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateBill stores a draft bill with computed totals.
func (s *Service) CreateBill(ctx context.Context, in CreateBillInput) (Bill, error) {
	if err := in.Validate(); err != nil {
		return Bill{}, err
	}
	totals := computeTotals(in.Lines)
	bill := Bill{
		OrgID:          in.OrgID,
		RefID:          uuid.New(),
		Number:         in.Number,
		VendorID:       in.VendorID,
		BillDate:       in.BillDate,
		DueAt:          in.DueAt,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.Tax,
		DiscountAmount: totals.Discount,
		Total:          totals.Total,
		PaidAmount:     decimal.Zero,
		BalanceDue:     totals.Total,
		Status:         DocStatusDraft,
		PaymentState:   PaymentStateUnpaid,
		Memo:           in.Memo,
	}
	lines := make([]BillLine, 0, len(in.Lines))
	for idx, line := range in.Lines {
		lines = append(lines, BillLine{
			LineNo:          idx + 1,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			TaxPercent:      line.TaxPercent,
			DiscountPercent: line.DiscountPercent,
			Amount:          line.Quantity.Mul(line.UnitPrice),
		})
	}
	var created Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertBill(ctx, bill, lines)
		return err
	})
	if err != nil {
		return Bill{}, err
	}
	s.invalidate(ctx, in.OrgID)
	return created, nil
}

// GetBill fetches a bill with its lines.
func (s *Service) GetBill(ctx context.Context, orgID, billID int64) (Bill, error) {
	return s.repo.GetBill(ctx, orgID, billID)
}

// ListBills returns bills filtered by status through the read-through cache.
func (s *Service) ListBills(ctx context.Context, orgID int64, status string) ([]Bill, error) {
	if status == "" {
		status = "ALL"
	}
	if s.cache == nil {
		return s.repo.ListBills(ctx, orgID, status)
	}
	var out []Bill
	err := s.cache.FetchJSON(ctx, s.cache.Key(orgID, status), &out, func(ctx context.Context) (any, error) {
		return s.repo.ListBills(ctx, orgID, status)
	})
	return out, err
}

// PostBill transitions a draft to POSTED and books it to the ledger. The GL
// posting happens first and is keyed by the bill RefID, so retrying after a
// partial failure never books twice.
func (s *Service) PostBill(ctx context.Context, orgID, billID, actorID int64) (Bill, error) {
	bill, err := s.repo.GetBill(ctx, orgID, billID)
	if err != nil {
		return Bill{}, err
	}
	if bill.Status != DocStatusDraft {
		return Bill{}, ErrNotDraft
	}
	if s.gl != nil {
		if err := s.gl.BillPosted(ctx, bill); err != nil {
			return Bill{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetBillForUpdate(ctx, orgID, billID)
		if err != nil {
			return err
		}
		if locked.Status != DocStatusDraft {
			return ErrNotDraft
		}
		return tx.SetBillStatus(ctx, billID, DocStatusPosted)
	})
	if err != nil {
		return Bill{}, err
	}
	bill.Status = DocStatusPosted
	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, actorID, "bill.post", bill.OrgID, bill.ID, bill.Number)
	return bill, nil
}

// VoidBill cancels a bill. Settled bills must be deallocated first.
func (s *Service) VoidBill(ctx context.Context, orgID, billID, actorID int64) (Bill, error) {
	bill, err := s.repo.GetBill(ctx, orgID, billID)
	if err != nil {
		return Bill{}, err
	}
	switch {
	case bill.Status == DocStatusVoid:
		return Bill{}, ErrAlreadyVoid
	case bill.PaidAmount.IsPositive():
		return Bill{}, ErrBillPaid
	}
	if bill.Status == DocStatusPosted && s.gl != nil {
		if err := s.gl.BillVoided(ctx, bill); err != nil {
			return Bill{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetBillForUpdate(ctx, orgID, billID)
		if err != nil {
			return err
		}
		if locked.Status == DocStatusVoid {
			return ErrAlreadyVoid
		}
		if locked.PaidAmount.IsPositive() {
			return ErrBillPaid
		}
		return tx.SetBillStatus(ctx, billID, DocStatusVoid)
	})
	if err != nil {
		return Bill{}, err
	}
	bill.Status = DocStatusVoid
	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, actorID, "bill.void", bill.OrgID, bill.ID, bill.Number)
	return bill, nil
}

// CreatePayment registers a posted vendor payment and books it to the ledger.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	payment := Payment{
		OrgID:           in.OrgID,
		RefID:           uuid.New(),
		Number:          in.Number,
		VendorID:        in.VendorID,
		PaymentDate:     in.PaymentDate,
		Amount:          in.Amount,
		AllocatedAmount: decimal.Zero,
		Status:          DocStatusPosted,
		Memo:            in.Memo,
	}
	if s.gl != nil {
		if err := s.gl.PaymentPosted(ctx, payment); err != nil {
			return Payment{}, err
		}
	}
	var created Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertPayment(ctx, payment)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.invalidate(ctx, in.OrgID)
	return created, nil
}

// GetPayment fetches a payment.
func (s *Service) GetPayment(ctx context.Context, orgID, paymentID int64) (Payment, error) {
	return s.repo.GetPayment(ctx, orgID, paymentID)
}

// ListPayments returns payments for the organization.
func (s *Service) ListPayments(ctx context.Context, orgID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, orgID)
}

// Allocate applies a slice of a payment against a bill. Both rows are locked
// so the invariants paid+due==total and allocated<=amount hold under
// concurrent allocations.
func (s *Service) Allocate(ctx context.Context, orgID, paymentID, billID int64, amount decimal.Decimal, actorID int64) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("ap: allocation amount must be positive: %w", shared.ErrValidation)
	}
	var alloc Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, orgID, paymentID)
		if err != nil {
			return err
		}
		bill, err := tx.GetBillForUpdate(ctx, orgID, billID)
		if err != nil {
			return err
		}
		if payment.Status != DocStatusPosted || bill.Status != DocStatusPosted {
			return ErrNotPosted
		}
		if payment.VendorID != bill.VendorID {
			return ErrVendorMismatch
		}
		if amount.GreaterThan(bill.BalanceDue) || amount.GreaterThan(payment.Unallocated()) {
			return ErrOverAllocation
		}
		alloc, err = tx.InsertAllocation(ctx, Allocation{
			OrgID:     orgID,
			PaymentID: paymentID,
			BillID:    billID,
			Amount:    amount,
		})
		if err != nil {
			return err
		}
		paid := bill.PaidAmount.Add(amount)
		due := bill.Total.Sub(paid)
		if err := tx.UpdateBillSettlement(ctx, billID, paid, due, paymentStateFor(paid, due)); err != nil {
			return err
		}
		return tx.UpdatePaymentAllocated(ctx, paymentID, payment.AllocatedAmount.Add(amount))
	})
	if err != nil {
		return Allocation{}, err
	}
	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, actorID, "allocation.apply", orgID, alloc.ID, "")
	return alloc, nil
}

// Deallocate reverses one allocation exactly.
func (s *Service) Deallocate(ctx context.Context, orgID, allocationID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetAllocationForUpdate(ctx, orgID, allocationID)
		if err != nil {
			return err
		}
		payment, err := tx.GetPaymentForUpdate(ctx, orgID, alloc.PaymentID)
		if err != nil {
			return err
		}
		bill, err := tx.GetBillForUpdate(ctx, orgID, alloc.BillID)
		if err != nil {
			return err
		}
		paid := bill.PaidAmount.Sub(alloc.Amount)
		due := bill.Total.Sub(paid)
		if paid.IsNegative() {
			return fmt.Errorf("ap: allocation exceeds settled amount: %w", shared.ErrInvalidState)
		}
		if err := tx.UpdateBillSettlement(ctx, alloc.BillID, paid, due, paymentStateFor(paid, due)); err != nil {
			return err
		}
		if err := tx.UpdatePaymentAllocated(ctx, alloc.PaymentID, payment.AllocatedAmount.Sub(alloc.Amount)); err != nil {
			return err
		}
		return tx.DeleteAllocation(ctx, allocationID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, actorID, "allocation.reverse", orgID, allocationID, "")
	return nil
}

// agingBounds are the upper day bounds of each overdue bucket.
var agingBounds = []struct {
	label string
	days  int
}{
	{"1-30", 30},
	{"31-60", 60},
	{"61-90", 90},
	{"91-120", 120},
}

// Aging buckets outstanding balances by days overdue as of the given date.
func (s *Service) Aging(ctx context.Context, orgID int64, asOf time.Time) ([]AgingBucket, error) {
	bills, err := s.repo.ListOutstanding(ctx, orgID)
	if err != nil {
		return nil, err
	}
	buckets := make([]AgingBucket, 0, len(agingBounds)+2)
	buckets = append(buckets, AgingBucket{Label: "current", Amount: decimal.Zero})
	for _, b := range agingBounds {
		buckets = append(buckets, AgingBucket{Label: b.label, Amount: decimal.Zero})
	}
	buckets = append(buckets, AgingBucket{Label: "120+", Amount: decimal.Zero})

	for _, bill := range bills {
		overdue := int(asOf.Sub(bill.DueAt).Hours() / 24)
		idx := 0
		switch {
		case overdue <= 0:
			idx = 0
		case overdue > agingBounds[len(agingBounds)-1].days:
			idx = len(buckets) - 1
		default:
			for i, b := range agingBounds {
				if overdue <= b.days {
					idx = i + 1
					break
				}
			}
		}
		buckets[idx].Count++
		buckets[idx].Amount = buckets[idx].Amount.Add(bill.BalanceDue)
	}
	return buckets, nil
}

// OverdueBills lists posted bills past due with an outstanding balance,
// across all organizations. Used by the nightly scan.
func (s *Service) OverdueBills(ctx context.Context, asOf time.Time) ([]Bill, error) {
	return s.repo.ListOverdue(ctx, asOf)
}

func (s *Service) invalidate(ctx context.Context, orgID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil && !errors.Is(err, context.Canceled) {
		// Stale listings expire with the TTL; mutation must not fail on cache errors.
		_ = err
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orgID, entityID int64, number string) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{}
	if number != "" {
		meta["number"] = number
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "ap_document",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
