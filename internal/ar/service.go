package ar

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
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = fmt.Errorf("ar: invoice %w", shared.ErrNotFound)
	// ErrReceiptNotFound indicates a missing receipt.
	ErrReceiptNotFound = fmt.Errorf("ar: receipt %w", shared.ErrNotFound)
	// ErrAllocationNotFound indicates a missing allocation.
	ErrAllocationNotFound = fmt.Errorf("ar: allocation %w", shared.ErrNotFound)
	// ErrNotPosted indicates an allocation against a non-posted document.
	ErrNotPosted = fmt.Errorf("ar: document not posted: %w", shared.ErrInvalidState)
	// ErrOverAllocation indicates the amount exceeds what either side can bear.
	ErrOverAllocation = fmt.Errorf("ar: amount exceeds remaining balance: %w", shared.ErrValidation)
	// ErrInvoicePaid indicates a void attempt on an invoice with collections.
	ErrInvoicePaid = fmt.Errorf("ar: invoice has allocations: %w", shared.ErrInvalidState)
	// ErrAlreadyVoid indicates a repeated void.
	ErrAlreadyVoid = fmt.Errorf("ar: invoice already void: %w", shared.ErrInvalidState)
	// ErrNotDraft indicates a post attempt on a non-draft invoice.
	ErrNotDraft = fmt.Errorf("ar: invoice is not a draft: %w", shared.ErrInvalidState)
	// ErrCustomerMismatch indicates the receipt and invoice belong to different customers.
	ErrCustomerMismatch = fmt.Errorf("ar: receipt and invoice customers differ: %w", shared.ErrValidation)
	// ErrDuplicateNumber indicates the document number is already used.
	ErrDuplicateNumber = fmt.Errorf("ar: duplicate document number: %w", shared.ErrValidation)
)

// GLPort posts accounting consequences of AR documents to the general ledger.
// Implementations must be idempotent per document RefID.
type GLPort interface {
	InvoicePosted(ctx context.Context, invoice Invoice) error
	InvoiceVoided(ctx context.Context, invoice Invoice) error
	ReceiptPosted(ctx context.Context, receipt Receipt) error
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives customer invoices, receipts and their allocations.
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

// CreateInvoice stores a draft invoice with computed totals.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	if err := in.Validate(); err != nil {
		return Invoice{}, err
	}
	totals := computeTotals(in.Lines)
	invoice := Invoice{
		OrgID:          in.OrgID,
		RefID:          uuid.New(),
		Number:         in.Number,
		CustomerID:     in.CustomerID,
		InvoiceDate:    in.InvoiceDate,
		DueAt:          in.DueAt,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.Tax,
		DiscountAmount: totals.Discount,
		Total:          totals.Total,
		PaidAmount:     decimal.Zero,
		BalanceDue:     totals.Total,
		Status:         DocStatusDraft,
		SettleState:    SettleStateUnpaid,
		Memo:           in.Memo,
	}
	lines := make([]InvoiceLine, 0, len(in.Lines))
	for idx, line := range in.Lines {
		lines = append(lines, InvoiceLine{
			LineNo:          idx + 1,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			TaxPercent:      line.TaxPercent,
			DiscountPercent: line.DiscountPercent,
			Amount:          line.Quantity.Mul(line.UnitPrice),
		})
	}
	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertInvoice(ctx, invoice, lines)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.invalidate(ctx, in.OrgID)
	return created, nil
}

// GetInvoice fetches an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, orgID, invoiceID)
}

// ListInvoices returns invoices filtered by status through the read-through cache.
func (s *Service) ListInvoices(ctx context.Context, orgID int64, status string) ([]Invoice, error) {
	if status == "" {
		status = "ALL"
	}
	if s.cache == nil {
		return s.repo.ListInvoices(ctx, orgID, status)
	}
	var out []Invoice
	err := s.cache.FetchJSON(ctx, s.cache.Key(orgID, status), &out, func(ctx context.Context) (any, error) {
		return s.repo.ListInvoices(ctx, orgID, status)
	})
	return out, err
}

// PostInvoice transitions a draft to POSTED and books it to the ledger. The
// GL posting happens first and is keyed by the invoice RefID, so retries
// never book twice.
func (s *Service) PostInvoice(ctx context.Context, orgID, invoiceID, actorID int64) (Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if invoice.Status != DocStatusDraft {
		return Invoice{}, ErrNotDraft
	}
	if s.gl != nil {
		if err := s.gl.InvoicePosted(ctx, invoice); err != nil {
			return Invoice{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if locked.Status != DocStatusDraft {
			return ErrNotDraft
		}
		return tx.SetInvoiceStatus(ctx, invoiceID, DocStatusPosted)
	})
	if err != nil {
		return Invoice{}, err
	}
	invoice.Status = DocStatusPosted
	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, actorID, "invoice.post", invoice.OrgID, invoice.ID, invoice.Number)
	return invoice, nil
}

// VoidInvoice cancels an invoice. Settled invoices must be deallocated first.
func (s *Service) VoidInvoice(ctx context.Context, orgID, invoiceID, actorID int64) (Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	switch {
	case invoice.Status == DocStatusVoid:
		return Invoice{}, ErrAlreadyVoid
	case invoice.PaidAmount.IsPositive():
		return Invoice{}, ErrInvoicePaid
	}
	if invoice.Status == DocStatusPosted && s.gl != nil {
		if err := s.gl.InvoiceVoided(ctx, invoice); err != nil {
			return Invoice{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if locked.Status == DocStatusVoid {
			return ErrAlreadyVoid
		}
		if locked.PaidAmount.IsPositive() {
			return ErrInvoicePaid
		}
		return tx.SetInvoiceStatus(ctx, invoiceID, DocStatusVoid)
	})
	if err != nil {
		return Invoice{}, err
	}
	invoice.Status = DocStatusVoid
	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, actorID, "invoice.void", invoice.OrgID, invoice.ID, invoice.Number)
	return invoice, nil
}

// CreateReceipt registers a posted customer receipt and books it to the ledger.
func (s *Service) CreateReceipt(ctx context.Context, in CreateReceiptInput) (Receipt, error) {
	if err := in.Validate(); err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{
		OrgID:           in.OrgID,
		RefID:           uuid.New(),
		Number:          in.Number,
		CustomerID:      in.CustomerID,
		ReceiptDate:     in.ReceiptDate,
		Amount:          in.Amount,
		AllocatedAmount: decimal.Zero,
		Status:          DocStatusPosted,
		Memo:            in.Memo,
	}
	if s.gl != nil {
		if err := s.gl.ReceiptPosted(ctx, receipt); err != nil {
			return Receipt{}, err
		}
	}
	var created Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertReceipt(ctx, receipt)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	s.invalidate(ctx, in.OrgID)
	return created, nil
}

// GetReceipt fetches a receipt.
func (s *Service) GetReceipt(ctx context.Context, orgID, receiptID int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, orgID, receiptID)
}

// ListReceipts returns receipts for the organization.
func (s *Service) ListReceipts(ctx context.Context, orgID int64) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, orgID)
}

// Allocate applies a slice of a receipt against an invoice under row locks.
func (s *Service) Allocate(ctx context.Context, orgID, receiptID, invoiceID int64, amount decimal.Decimal, actorID int64) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("ar: allocation amount must be positive: %w", shared.ErrValidation)
	}
	var alloc Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, orgID, receiptID)
		if err != nil {
			return err
		}
		invoice, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if receipt.Status != DocStatusPosted || invoice.Status != DocStatusPosted {
			return ErrNotPosted
		}
		if receipt.CustomerID != invoice.CustomerID {
			return ErrCustomerMismatch
		}
		if amount.GreaterThan(invoice.BalanceDue) || amount.GreaterThan(receipt.Unallocated()) {
			return ErrOverAllocation
		}
		alloc, err = tx.InsertAllocation(ctx, Allocation{
			OrgID:     orgID,
			ReceiptID: receiptID,
			InvoiceID: invoiceID,
			Amount:    amount,
		})
		if err != nil {
			return err
		}
		paid := invoice.PaidAmount.Add(amount)
		due := invoice.Total.Sub(paid)
		if err := tx.UpdateInvoiceSettlement(ctx, invoiceID, paid, due, settleStateFor(paid, due)); err != nil {
			return err
		}
		return tx.UpdateReceiptAllocated(ctx, receiptID, receipt.AllocatedAmount.Add(amount))
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
		receipt, err := tx.GetReceiptForUpdate(ctx, orgID, alloc.ReceiptID)
		if err != nil {
			return err
		}
		invoice, err := tx.GetInvoiceForUpdate(ctx, orgID, alloc.InvoiceID)
		if err != nil {
			return err
		}
		paid := invoice.PaidAmount.Sub(alloc.Amount)
		due := invoice.Total.Sub(paid)
		if paid.IsNegative() {
			return fmt.Errorf("ar: allocation exceeds collected amount: %w", shared.ErrInvalidState)
		}
		if err := tx.UpdateInvoiceSettlement(ctx, alloc.InvoiceID, paid, due, settleStateFor(paid, due)); err != nil {
			return err
		}
		if err := tx.UpdateReceiptAllocated(ctx, alloc.ReceiptID, receipt.AllocatedAmount.Sub(alloc.Amount)); err != nil {
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

var agingBounds = []struct {
	label string
	days  int
}{
	{"1-30", 30},
	{"31-60", 60},
	{"61-90", 90},
	{"91-120", 120},
}

// Aging buckets outstanding receivables by days overdue as of the given date.
func (s *Service) Aging(ctx context.Context, orgID int64, asOf time.Time) ([]AgingBucket, error) {
	invoices, err := s.repo.ListOutstanding(ctx, orgID)
	if err != nil {
		return nil, err
	}
	buckets := make([]AgingBucket, 0, len(agingBounds)+2)
	buckets = append(buckets, AgingBucket{Label: "current", Amount: decimal.Zero})
	for _, b := range agingBounds {
		buckets = append(buckets, AgingBucket{Label: b.label, Amount: decimal.Zero})
	}
	buckets = append(buckets, AgingBucket{Label: "120+", Amount: decimal.Zero})

	for _, invoice := range invoices {
		overdue := int(asOf.Sub(invoice.DueAt).Hours() / 24)
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
		buckets[idx].Amount = buckets[idx].Amount.Add(invoice.BalanceDue)
	}
	return buckets, nil
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
		Entity:   "ar_document",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
