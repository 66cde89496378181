package ar

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocStatus enumerates the document lifecycle shared by invoices and receipts.
type DocStatus string

const (
	DocStatusDraft  DocStatus = "DRAFT"
	DocStatusPosted DocStatus = "POSTED"
	DocStatusVoid   DocStatus = "VOID"
)

// SettleState tracks how much of an invoice has been collected.
type SettleState string

const (
	SettleStateUnpaid  SettleState = "UNPAID"
	SettleStatePartial SettleState = "PARTIAL"
	SettleStatePaid    SettleState = "PAID"
)

// Invoice is a customer billing document. RefID is the stable idempotency key
// used when the invoice flows into the general ledger.
type Invoice struct {
	ID             int64
	OrgID          int64
	RefID          uuid.UUID
	Number         string
	CustomerID     int64
	InvoiceDate    time.Time
	DueAt          time.Time
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	BalanceDue     decimal.Decimal
	Status         DocStatus
	SettleState    SettleState
	Memo           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []InvoiceLine
}

// InvoiceLine carries quantity and pricing; Amount is the extended base
// before tax and discount.
type InvoiceLine struct {
	ID              int64
	InvoiceID       int64
	LineNo          int
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	TaxPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
	Amount          decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Receipt is money received from a customer, allocatable across that
// customer's invoices.
type Receipt struct {
	ID              int64
	OrgID           int64
	RefID           uuid.UUID
	Number          string
	CustomerID      int64
	ReceiptDate     time.Time
	Amount          decimal.Decimal
	AllocatedAmount decimal.Decimal
	Status          DocStatus
	Memo            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Unallocated is the remainder still available for allocation.
func (r Receipt) Unallocated() decimal.Decimal {
	return r.Amount.Sub(r.AllocatedAmount)
}

// Allocation ties a slice of a receipt to one invoice.
type Allocation struct {
	ID        int64
	OrgID     int64
	ReceiptID int64
	InvoiceID int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AgingBucket aggregates outstanding balances by days overdue.
type AgingBucket struct {
	Label  string
	Count  int
	Amount decimal.Decimal
}

func settleStateFor(paid, due decimal.Decimal) SettleState {
	switch {
	case paid.IsZero():
		return SettleStateUnpaid
	case due.IsZero():
		return SettleStatePaid
	default:
		return SettleStatePartial
	}
}
