package ar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvoiceLineInput describes one line of an invoice being created.
type InvoiceLineInput struct {
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	TaxPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
}

// CreateInvoiceInput groups fields for creating a draft invoice.
type CreateInvoiceInput struct {
	OrgID       int64
	Number      string
	CustomerID  int64
	InvoiceDate time.Time
	DueAt       time.Time
	Memo        string
	Lines       []InvoiceLineInput
}

// Validate checks structural constraints before totals are computed.
func (in CreateInvoiceInput) Validate() error {
	if in.OrgID == 0 {
		return fmt.Errorf("ar: organization required: %w", shared.ErrValidation)
	}
	if in.Number == "" {
		return fmt.Errorf("ar: invoice number required: %w", shared.ErrValidation)
	}
	if in.CustomerID == 0 {
		return fmt.Errorf("ar: customer required: %w", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("ar: invoice has no lines: %w", shared.ErrValidation)
	}
	if in.DueAt.Before(in.InvoiceDate) {
		return fmt.Errorf("ar: due date precedes invoice date: %w", shared.ErrValidation)
	}
	for idx, line := range in.Lines {
		if !line.Quantity.IsPositive() {
			return fmt.Errorf("ar: line %d quantity must be positive: %w", idx, shared.ErrValidation)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("ar: line %d negative unit price: %w", idx, shared.ErrValidation)
		}
		if line.TaxPercent.IsNegative() || line.DiscountPercent.IsNegative() {
			return fmt.Errorf("ar: line %d negative rate: %w", idx, shared.ErrValidation)
		}
	}
	return nil
}

type invoiceTotals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

var percentBase = decimal.NewFromInt(100)

func computeTotals(lines []InvoiceLineInput) invoiceTotals {
	t := invoiceTotals{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Tax:      decimal.Zero,
	}
	for _, line := range lines {
		base := line.Quantity.Mul(line.UnitPrice)
		discount := shared.RoundMoney(base.Mul(line.DiscountPercent).Div(percentBase))
		tax := shared.RoundMoney(base.Sub(discount).Mul(line.TaxPercent).Div(percentBase))
		t.Subtotal = t.Subtotal.Add(base)
		t.Discount = t.Discount.Add(discount)
		t.Tax = t.Tax.Add(tax)
	}
	t.Total = t.Subtotal.Sub(t.Discount).Add(t.Tax)
	return t
}

// CreateReceiptInput groups fields for registering a customer receipt.
type CreateReceiptInput struct {
	OrgID       int64
	Number      string
	CustomerID  int64
	ReceiptDate time.Time
	Amount      decimal.Decimal
	Memo        string
}

// Validate checks receipt constraints.
func (in CreateReceiptInput) Validate() error {
	if in.OrgID == 0 {
		return fmt.Errorf("ar: organization required: %w", shared.ErrValidation)
	}
	if in.Number == "" {
		return fmt.Errorf("ar: receipt number required: %w", shared.ErrValidation)
	}
	if in.CustomerID == 0 {
		return fmt.Errorf("ar: customer required: %w", shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("ar: receipt amount must be positive: %w", shared.ErrValidation)
	}
	return nil
}
