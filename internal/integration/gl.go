package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/journals"
)

// Source modules written into journal source links.
const (
	SourceAPBill     = "ap.bill"
	SourceAPBillVoid = "ap.bill.void"
	SourceAPPayment  = "ap.payment"
	SourceARInvoice  = "ar.invoice"
	SourceARInvVoid  = "ar.invoice.void"
	SourceARReceipt  = "ar.receipt"
)

// JournalPoster is the slice of the journals service the adapters need.
type JournalPoster interface {
	PostDirect(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
}

// GL books subledger documents into the general ledger through account
// mappings. Every posting is keyed by the document RefID, so a replay after
// a crashed status update is absorbed instead of double-booked.
type GL struct {
	journals JournalPoster
	mappings MappingRepository
	logger   *slog.Logger
}

// NewGL builds the GL adapter shared by AP and AR.
func NewGL(logger *slog.Logger, poster JournalPoster, mappings MappingRepository) *GL {
	return &GL{journals: poster, mappings: mappings, logger: logger}
}

// BillPosted books a vendor bill: debit expense control, credit AP control.
func (g *GL) BillPosted(ctx context.Context, bill ap.Bill) error {
	expense, payable, err := g.resolvePair(ctx, bill.OrgID, "ap", KeyExpenseControl, KeyPayableControl)
	if err != nil {
		return err
	}
	return g.post(ctx, journals.PostingInput{
		OrgID:        bill.OrgID,
		Date:         bill.BillDate,
		SourceModule: SourceAPBill,
		SourceID:     bill.RefID,
		Memo:         fmt.Sprintf("Bill %s", bill.Number),
		Lines: []journals.PostingLineInput{
			{AccountID: expense, Debit: bill.Total},
			{AccountID: payable, Credit: bill.Total},
		},
	})
}

// BillVoided reverses the bill booking: debit AP control, credit expense.
func (g *GL) BillVoided(ctx context.Context, bill ap.Bill) error {
	expense, payable, err := g.resolvePair(ctx, bill.OrgID, "ap", KeyExpenseControl, KeyPayableControl)
	if err != nil {
		return err
	}
	return g.post(ctx, journals.PostingInput{
		OrgID:        bill.OrgID,
		Date:         bill.BillDate,
		SourceModule: SourceAPBillVoid,
		SourceID:     bill.RefID,
		Memo:         fmt.Sprintf("Void bill %s", bill.Number),
		Lines: []journals.PostingLineInput{
			{AccountID: payable, Debit: bill.Total},
			{AccountID: expense, Credit: bill.Total},
		},
	})
}

// PaymentPosted books a vendor payment: debit AP control, credit cash.
func (g *GL) PaymentPosted(ctx context.Context, payment ap.Payment) error {
	cash, payable, err := g.resolvePair(ctx, payment.OrgID, "ap", KeyCash, KeyPayableControl)
	if err != nil {
		return err
	}
	return g.post(ctx, journals.PostingInput{
		OrgID:        payment.OrgID,
		Date:         payment.PaymentDate,
		SourceModule: SourceAPPayment,
		SourceID:     payment.RefID,
		Memo:         fmt.Sprintf("Payment %s", payment.Number),
		Lines: []journals.PostingLineInput{
			{AccountID: payable, Debit: payment.Amount},
			{AccountID: cash, Credit: payment.Amount},
		},
	})
}

// InvoicePosted books a customer invoice: debit AR control, credit revenue.
func (g *GL) InvoicePosted(ctx context.Context, invoice ar.Invoice) error {
	receivable, revenue, err := g.resolvePair(ctx, invoice.OrgID, "ar", KeyReceivableControl, KeyRevenueControl)
	if err != nil {
		return err
	}
	return g.post(ctx, journals.PostingInput{
		OrgID:        invoice.OrgID,
		Date:         invoice.InvoiceDate,
		SourceModule: SourceARInvoice,
		SourceID:     invoice.RefID,
		Memo:         fmt.Sprintf("Invoice %s", invoice.Number),
		Lines: []journals.PostingLineInput{
			{AccountID: receivable, Debit: invoice.Total},
			{AccountID: revenue, Credit: invoice.Total},
		},
	})
}

// InvoiceVoided reverses the invoice booking.
func (g *GL) InvoiceVoided(ctx context.Context, invoice ar.Invoice) error {
	receivable, revenue, err := g.resolvePair(ctx, invoice.OrgID, "ar", KeyReceivableControl, KeyRevenueControl)
	if err != nil {
		return err
	}
	return g.post(ctx, journals.PostingInput{
		OrgID:        invoice.OrgID,
		Date:         invoice.InvoiceDate,
		SourceModule: SourceARInvVoid,
		SourceID:     invoice.RefID,
		Memo:         fmt.Sprintf("Void invoice %s", invoice.Number),
		Lines: []journals.PostingLineInput{
			{AccountID: revenue, Debit: invoice.Total},
			{AccountID: receivable, Credit: invoice.Total},
		},
	})
}

// ReceiptPosted books a customer receipt: debit cash, credit AR control.
func (g *GL) ReceiptPosted(ctx context.Context, receipt ar.Receipt) error {
	cash, receivable, err := g.resolvePair(ctx, receipt.OrgID, "ar", KeyCash, KeyReceivableControl)
	if err != nil {
		return err
	}
	return g.post(ctx, journals.PostingInput{
		OrgID:        receipt.OrgID,
		Date:         receipt.ReceiptDate,
		SourceModule: SourceARReceipt,
		SourceID:     receipt.RefID,
		Memo:         fmt.Sprintf("Receipt %s", receipt.Number),
		Lines: []journals.PostingLineInput{
			{AccountID: cash, Debit: receipt.Amount},
			{AccountID: receivable, Credit: receipt.Amount},
		},
	})
}

func (g *GL) resolvePair(ctx context.Context, orgID int64, module, firstKey, secondKey string) (int64, int64, error) {
	first, err := g.mappings.Resolve(ctx, orgID, module, firstKey)
	if err != nil {
		return 0, 0, err
	}
	second, err := g.mappings.Resolve(ctx, orgID, module, secondKey)
	if err != nil {
		return 0, 0, err
	}
	return first.AccountID, second.AccountID, nil
}

func (g *GL) post(ctx context.Context, input journals.PostingInput) error {
	_, err := g.journals.PostDirect(ctx, input)
	if errors.Is(err, journals.ErrSourceAlreadyLinked) {
		// Replay of a document that already reached the ledger.
		if g.logger != nil {
			g.logger.Info("ledger posting replayed",
				slog.String("source_module", input.SourceModule),
				slog.String("source_id", input.SourceID.String()))
		}
		return nil
	}
	return err
}

var _ ap.GLPort = (*GL)(nil)
var _ ar.GLPort = (*GL)(nil)
