package ap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// BillLineInput describes one line of a bill being created.
type BillLineInput struct {
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	TaxPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
}

// CreateBillInput groups fields for creating a draft bill.
type CreateBillInput struct {
	OrgID    int64
	Number   string
	VendorID int64
	BillDate time.Time
	DueAt    time.Time
	Memo     string
	Lines    []BillLineInput
}

// Validate checks structural constraints before totals are computed.
func (in CreateBillInput) Validate() error {
	if in.OrgID == 0 {
		return fmt.Errorf("ap: organization required: %w", shared.ErrValidation)
	}
	if in.Number == "" {
		return fmt.Errorf("ap: bill number required: %w", shared.ErrValidation)
	}
	if in.VendorID == 0 {
		return fmt.Errorf("ap: vendor required: %w", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("ap: bill has no lines: %w", shared.ErrValidation)
	}
	if in.DueAt.Before(in.BillDate) {
		return fmt.Errorf("ap: due date precedes bill date: %w", shared.ErrValidation)
	}
	for idx, line := range in.Lines {
		if !line.Quantity.IsPositive() {
			return fmt.Errorf("ap: line %d quantity must be positive: %w", idx, shared.ErrValidation)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("ap: line %d negative unit price: %w", idx, shared.ErrValidation)
		}
		if line.TaxPercent.IsNegative() || line.DiscountPercent.IsNegative() {
			return fmt.Errorf("ap: line %d negative rate: %w", idx, shared.ErrValidation)
		}
	}
	return nil
}

// billTotals holds the computed money columns for a bill.
type billTotals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

var percentBase = decimal.NewFromInt(100)

// computeTotals sums line amounts in exact decimal. Percentage-derived values
// round half-up to the minor unit per line, so totals match printed documents.
func computeTotals(lines []BillLineInput) billTotals {
	t := billTotals{
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

// CreatePaymentInput groups fields for registering a vendor payment.
type CreatePaymentInput struct {
	OrgID       int64
	Number      string
	VendorID    int64
	PaymentDate time.Time
	Amount      decimal.Decimal
	Memo        string
}

// Validate checks payment constraints.
func (in CreatePaymentInput) Validate() error {
	if in.OrgID == 0 {
		return fmt.Errorf("ap: organization required: %w", shared.ErrValidation)
	}
	if in.Number == "" {
		return fmt.Errorf("ap: payment number required: %w", shared.ErrValidation)
	}
	if in.VendorID == 0 {
		return fmt.Errorf("ap: vendor required: %w", shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("ap: payment amount must be positive: %w", shared.ErrValidation)
	}
	return nil
}
