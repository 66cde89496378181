package ap

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocStatus enumerates the document lifecycle shared by bills and payments.
type DocStatus string

const (
	DocStatusDraft  DocStatus = "DRAFT"
	DocStatusPosted DocStatus = "POSTED"
	DocStatusVoid   DocStatus = "VOID"
)

// PaymentState tracks how much of a bill has been settled.
type PaymentState string

const (
	PaymentStateUnpaid  PaymentState = "UNPAID"
	PaymentStatePartial PaymentState = "PARTIAL"
	PaymentStatePaid    PaymentState = "PAID"
)

// Bill is a vendor invoice. RefID is the stable idempotency key used when the
// bill flows into the general ledger.
type Bill struct {
	ID             int64
	OrgID          int64
	RefID          uuid.UUID
	Number         string
	VendorID       int64
	BillDate       time.Time
	DueAt          time.Time
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	BalanceDue     decimal.Decimal
	Status         DocStatus
	PaymentState   PaymentState
	Memo           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []BillLine
}

// BillLine carries quantity and pricing; Amount is the extended base before
// tax and discount.
type BillLine struct {
	ID              int64
	BillID          int64
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

// Payment is money sent to a vendor, allocatable across that vendor's bills.
type Payment struct {
	ID              int64
	OrgID           int64
	RefID           uuid.UUID
	Number          string
	VendorID        int64
	PaymentDate     time.Time
	Amount          decimal.Decimal
	AllocatedAmount decimal.Decimal
	Status          DocStatus
	Memo            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Unallocated is the remainder still available for allocation.
func (p Payment) Unallocated() decimal.Decimal {
	return p.Amount.Sub(p.AllocatedAmount)
}

// Allocation ties a slice of a payment to one bill.
type Allocation struct {
	ID        int64
	OrgID     int64
	PaymentID int64
	BillID    int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AgingBucket aggregates outstanding balances by days overdue.
type AgingBucket struct {
	Label  string
	Count  int
	Amount decimal.Decimal
}

// paymentStateFor derives the settled state from amounts. UNPAID and PAID are
// exact-boundary states; everything between is PARTIAL.
func paymentStateFor(paid, due decimal.Decimal) PaymentState {
	switch {
	case paid.IsZero():
		return PaymentStateUnpaid
	case due.IsZero():
		return PaymentStatePaid
	default:
		return PaymentStatePartial
	}
}
