package ar

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for accounts receivable.
type Repository interface {
	GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error)
	ListInvoices(ctx context.Context, orgID int64, status string) ([]Invoice, error)
	GetReceipt(ctx context.Context, orgID, receiptID int64) (Receipt, error)
	ListReceipts(ctx context.Context, orgID int64) ([]Receipt, error)
	ListOutstanding(ctx context.Context, orgID int64) ([]Invoice, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes row-locked operations inside an allocation transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, invoice Invoice, lines []InvoiceLine) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (Invoice, error)
	SetInvoiceStatus(ctx context.Context, invoiceID int64, status DocStatus) error
	UpdateInvoiceSettlement(ctx context.Context, invoiceID int64, paid, due decimal.Decimal, state SettleState) error
	InsertReceipt(ctx context.Context, receipt Receipt) (Receipt, error)
	GetReceiptForUpdate(ctx context.Context, orgID, receiptID int64) (Receipt, error)
	UpdateReceiptAllocated(ctx context.Context, receiptID int64, allocated decimal.Decimal) error
	InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error)
	GetAllocationForUpdate(ctx context.Context, orgID, allocationID int64) (Allocation, error)
	DeleteAllocation(ctx context.Context, allocationID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed AR repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `id, org_id, ref_id, number, customer_id, invoice_date, due_at, subtotal, tax_amount, discount_amount, total, paid_amount, balance_due, status, settle_state, memo, created_at, updated_at`
const receiptColumns = `id, org_id, ref_id, number, customer_id, receipt_date, amount, allocated_amount, status, memo, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.RefID, &inv.Number, &inv.CustomerID, &inv.InvoiceDate, &inv.DueAt,
		&inv.Subtotal, &inv.TaxAmount, &inv.DiscountAmount, &inv.Total, &inv.PaidAmount, &inv.BalanceDue,
		&inv.Status, &inv.SettleState, &inv.Memo, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func scanReceipt(row pgx.Row) (Receipt, error) {
	var r Receipt
	err := row.Scan(&r.ID, &r.OrgID, &r.RefID, &r.Number, &r.CustomerID, &r.ReceiptDate,
		&r.Amount, &r.AllocatedAmount, &r.Status, &r.Memo, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

func (r *repository) GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	invoice, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM ar_invoices WHERE org_id=$1 AND id=$2`, orgID, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, line_no, description, quantity, unit_price, tax_percent, discount_percent, amount, created_at, updated_at
FROM ar_invoice_lines WHERE invoice_id=$1 ORDER BY line_no ASC`, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.LineNo, &line.Description, &line.Quantity,
			&line.UnitPrice, &line.TaxPercent, &line.DiscountPercent, &line.Amount, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return Invoice{}, err
		}
		invoice.Lines = append(invoice.Lines, line)
	}
	return invoice, rows.Err()
}

func (r *repository) ListInvoices(ctx context.Context, orgID int64, status string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM ar_invoices WHERE org_id=$1`
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
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *repository) GetReceipt(ctx context.Context, orgID, receiptID int64) (Receipt, error) {
	receipt, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM ar_receipts WHERE org_id=$1 AND id=$2`, orgID, receiptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, err
	}
	return receipt, nil
}

func (r *repository) ListReceipts(ctx context.Context, orgID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM ar_receipts WHERE org_id=$1 ORDER BY id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

func (r *repository) ListOutstanding(ctx context.Context, orgID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM ar_invoices
WHERE org_id=$1 AND status='POSTED' AND balance_due > 0 ORDER BY due_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertInvoice(ctx context.Context, invoice Invoice, lines []InvoiceLine) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ar_invoices
(org_id, ref_id, number, customer_id, invoice_date, due_at, subtotal, tax_amount, discount_amount, total, paid_amount, balance_due, status, settle_state, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING `+invoiceColumns,
		invoice.OrgID, invoice.RefID, invoice.Number, invoice.CustomerID, invoice.InvoiceDate, invoice.DueAt,
		invoice.Subtotal, invoice.TaxAmount, invoice.DiscountAmount, invoice.Total, invoice.PaidAmount,
		invoice.BalanceDue, invoice.Status, invoice.SettleState, invoice.Memo)
	created, err := scanInvoice(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_ar_invoices_org_number") {
			return Invoice{}, ErrDuplicateNumber
		}
		return Invoice{}, err
	}
	for _, line := range lines {
		var inserted InvoiceLine
		err := r.tx.QueryRow(ctx, `INSERT INTO ar_invoice_lines
(invoice_id, line_no, description, quantity, unit_price, tax_percent, discount_percent, amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, invoice_id, line_no, description, quantity, unit_price, tax_percent, discount_percent, amount, created_at, updated_at`,
			created.ID, line.LineNo, line.Description, line.Quantity, line.UnitPrice,
			line.TaxPercent, line.DiscountPercent, line.Amount).
			Scan(&inserted.ID, &inserted.InvoiceID, &inserted.LineNo, &inserted.Description, &inserted.Quantity,
				&inserted.UnitPrice, &inserted.TaxPercent, &inserted.DiscountPercent, &inserted.Amount,
				&inserted.CreatedAt, &inserted.UpdatedAt)
		if err != nil {
			return Invoice{}, err
		}
		created.Lines = append(created.Lines, inserted)
	}
	return created, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM ar_invoices WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) SetInvoiceStatus(ctx context.Context, invoiceID int64, status DocStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ar_invoices SET status=$2, updated_at=NOW() WHERE id=$1`, invoiceID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) UpdateInvoiceSettlement(ctx context.Context, invoiceID int64, paid, due decimal.Decimal, state SettleState) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ar_invoices SET paid_amount=$2, balance_due=$3, settle_state=$4, updated_at=NOW() WHERE id=$1`,
		invoiceID, paid, due, state)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) InsertReceipt(ctx context.Context, receipt Receipt) (Receipt, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ar_receipts
(org_id, ref_id, number, customer_id, receipt_date, amount, allocated_amount, status, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+receiptColumns,
		receipt.OrgID, receipt.RefID, receipt.Number, receipt.CustomerID, receipt.ReceiptDate,
		receipt.Amount, receipt.AllocatedAmount, receipt.Status, receipt.Memo)
	created, err := scanReceipt(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_ar_receipts_org_number") {
			return Receipt{}, ErrDuplicateNumber
		}
		return Receipt{}, err
	}
	return created, nil
}

func (r *txRepository) GetReceiptForUpdate(ctx context.Context, orgID, receiptID int64) (Receipt, error) {
	rec, err := scanReceipt(r.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM ar_receipts WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, receiptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, err
	}
	return rec, nil
}

func (r *txRepository) UpdateReceiptAllocated(ctx context.Context, receiptID int64, allocated decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ar_receipts SET allocated_amount=$2, updated_at=NOW() WHERE id=$1`, receiptID, allocated)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO ar_allocations (org_id, receipt_id, invoice_id, amount)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		alloc.OrgID, alloc.ReceiptID, alloc.InvoiceID, alloc.Amount).Scan(&alloc.ID, &alloc.CreatedAt)
	if err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, orgID, allocationID int64) (Allocation, error) {
	var a Allocation
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, receipt_id, invoice_id, amount, created_at
FROM ar_allocations WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, allocationID).
		Scan(&a.ID, &a.OrgID, &a.ReceiptID, &a.InvoiceID, &a.Amount, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, allocationID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM ar_allocations WHERE id=$1`, allocationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAllocationNotFound
	}
	return nil
}
