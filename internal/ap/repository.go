package ap

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for accounts payable.
type Repository interface {
	GetBill(ctx context.Context, orgID, billID int64) (Bill, error)
	ListBills(ctx context.Context, orgID int64, status string) ([]Bill, error)
	GetPayment(ctx context.Context, orgID, paymentID int64) (Payment, error)
	ListPayments(ctx context.Context, orgID int64) ([]Payment, error)
	ListOutstanding(ctx context.Context, orgID int64) ([]Bill, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Bill, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes row-locked operations inside an allocation transaction.
type TxRepository interface {
	InsertBill(ctx context.Context, bill Bill, lines []BillLine) (Bill, error)
	GetBillForUpdate(ctx context.Context, orgID, billID int64) (Bill, error)
	SetBillStatus(ctx context.Context, billID int64, status DocStatus) error
	UpdateBillSettlement(ctx context.Context, billID int64, paid, due decimal.Decimal, state PaymentState) error
	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, orgID, paymentID int64) (Payment, error)
	UpdatePaymentAllocated(ctx context.Context, paymentID int64, allocated decimal.Decimal) error
	InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error)
	GetAllocationForUpdate(ctx context.Context, orgID, allocationID int64) (Allocation, error)
	DeleteAllocation(ctx context.Context, allocationID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed AP repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const billColumns = `id, org_id, ref_id, number, vendor_id, bill_date, due_at, subtotal, tax_amount, discount_amount, total, paid_amount, balance_due, status, payment_state, memo, created_at, updated_at`
const paymentColumns = `id, org_id, ref_id, number, vendor_id, payment_date, amount, allocated_amount, status, memo, created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.OrgID, &b.RefID, &b.Number, &b.VendorID, &b.BillDate, &b.DueAt,
		&b.Subtotal, &b.TaxAmount, &b.DiscountAmount, &b.Total, &b.PaidAmount, &b.BalanceDue,
		&b.Status, &b.PaymentState, &b.Memo, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Bill{}, err
	}
	return b, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrgID, &p.RefID, &p.Number, &p.VendorID, &p.PaymentDate,
		&p.Amount, &p.AllocatedAmount, &p.Status, &p.Memo, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) GetBill(ctx context.Context, orgID, billID int64) (Bill, error) {
	bill, err := scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM ap_bills WHERE org_id=$1 AND id=$2`, orgID, billID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, bill_id, line_no, description, quantity, unit_price, tax_percent, discount_percent, amount, created_at, updated_at
FROM ap_bill_lines WHERE bill_id=$1 ORDER BY line_no ASC`, billID)
	if err != nil {
		return Bill{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line BillLine
		if err := rows.Scan(&line.ID, &line.BillID, &line.LineNo, &line.Description, &line.Quantity,
			&line.UnitPrice, &line.TaxPercent, &line.DiscountPercent, &line.Amount, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return Bill{}, err
		}
		bill.Lines = append(bill.Lines, line)
	}
	return bill, rows.Err()
}

func (r *repository) ListBills(ctx context.Context, orgID int64, status string) ([]Bill, error) {
	query := `SELECT ` + billColumns + ` FROM ap_bills WHERE org_id=$1`
	args := []any{orgID}
	if status != "" && status != "ALL" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (r *repository) GetPayment(ctx context.Context, orgID, paymentID int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM ap_payments WHERE org_id=$1 AND id=$2`, orgID, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) ListPayments(ctx context.Context, orgID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM ap_payments WHERE org_id=$1 ORDER BY id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) ListOutstanding(ctx context.Context, orgID int64) ([]Bill, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+billColumns+` FROM ap_bills
WHERE org_id=$1 AND status='POSTED' AND balance_due > 0 ORDER BY due_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (r *repository) ListOverdue(ctx context.Context, asOf time.Time) ([]Bill, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+billColumns+` FROM ap_bills
WHERE status='POSTED' AND balance_due > 0 AND due_at < $1 ORDER BY org_id, due_at ASC`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertBill(ctx context.Context, bill Bill, lines []BillLine) (Bill, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ap_bills
(org_id, ref_id, number, vendor_id, bill_date, due_at, subtotal, tax_amount, discount_amount, total, paid_amount, balance_due, status, payment_state, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING `+billColumns,
		bill.OrgID, bill.RefID, bill.Number, bill.VendorID, bill.BillDate, bill.DueAt,
		bill.Subtotal, bill.TaxAmount, bill.DiscountAmount, bill.Total, bill.PaidAmount,
		bill.BalanceDue, bill.Status, bill.PaymentState, bill.Memo)
	created, err := scanBill(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_ap_bills_org_number") {
			return Bill{}, ErrDuplicateNumber
		}
		return Bill{}, err
	}
	for _, line := range lines {
		var inserted BillLine
		err := r.tx.QueryRow(ctx, `INSERT INTO ap_bill_lines
(bill_id, line_no, description, quantity, unit_price, tax_percent, discount_percent, amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, bill_id, line_no, description, quantity, unit_price, tax_percent, discount_percent, amount, created_at, updated_at`,
			created.ID, line.LineNo, line.Description, line.Quantity, line.UnitPrice,
			line.TaxPercent, line.DiscountPercent, line.Amount).
			Scan(&inserted.ID, &inserted.BillID, &inserted.LineNo, &inserted.Description, &inserted.Quantity,
				&inserted.UnitPrice, &inserted.TaxPercent, &inserted.DiscountPercent, &inserted.Amount,
				&inserted.CreatedAt, &inserted.UpdatedAt)
		if err != nil {
			return Bill{}, err
		}
		created.Lines = append(created.Lines, inserted)
	}
	return created, nil
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, orgID, billID int64) (Bill, error) {
	b, err := scanBill(r.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM ap_bills WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, billID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	return b, nil
}

func (r *txRepository) SetBillStatus(ctx context.Context, billID int64, status DocStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ap_bills SET status=$2, updated_at=NOW() WHERE id=$1`, billID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *txRepository) UpdateBillSettlement(ctx context.Context, billID int64, paid, due decimal.Decimal, state PaymentState) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ap_bills SET paid_amount=$2, balance_due=$3, payment_state=$4, updated_at=NOW() WHERE id=$1`,
		billID, paid, due, state)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, payment Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ap_payments
(org_id, ref_id, number, vendor_id, payment_date, amount, allocated_amount, status, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+paymentColumns,
		payment.OrgID, payment.RefID, payment.Number, payment.VendorID, payment.PaymentDate,
		payment.Amount, payment.AllocatedAmount, payment.Status, payment.Memo)
	created, err := scanPayment(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_ap_payments_org_number") {
			return Payment{}, ErrDuplicateNumber
		}
		return Payment{}, err
	}
	return created, nil
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, orgID, paymentID int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM ap_payments WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *txRepository) UpdatePaymentAllocated(ctx context.Context, paymentID int64, allocated decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ap_payments SET allocated_amount=$2, updated_at=NOW() WHERE id=$1`, paymentID, allocated)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO ap_allocations (org_id, payment_id, bill_id, amount)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		alloc.OrgID, alloc.PaymentID, alloc.BillID, alloc.Amount).Scan(&alloc.ID, &alloc.CreatedAt)
	if err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, orgID, allocationID int64) (Allocation, error) {
	var a Allocation
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, payment_id, bill_id, amount, created_at
FROM ap_allocations WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, allocationID).
		Scan(&a.ID, &a.OrgID, &a.PaymentID, &a.BillID, &a.Amount, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, allocationID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM ap_allocations WHERE id=$1`, allocationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAllocationNotFound
	}
	return nil
}
