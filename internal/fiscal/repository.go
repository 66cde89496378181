package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed fiscal repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const periodColumns = `id, org_id, fiscal_year_id, code, start_date, end_date, status, closed_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.OrgID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) CreateFiscalYear(ctx context.Context, year FiscalYear, periods []Period) (FiscalYear, []Period, error) {
	var created FiscalYear
	var createdPeriods []Period
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO fiscal_years (org_id, code, start_date, end_date, closed)
VALUES ($1,$2,$3,$4,FALSE)
RETURNING id, org_id, code, start_date, end_date, closed, created_at, updated_at`,
			year.OrgID, year.Code, year.StartDate, year.EndDate)
		if err := row.Scan(&created.ID, &created.OrgID, &created.Code, &created.StartDate, &created.EndDate, &created.Closed, &created.CreatedAt, &created.UpdatedAt); err != nil {
			return err
		}
		for _, p := range periods {
			prow := tx.QueryRow(ctx, `INSERT INTO periods (org_id, fiscal_year_id, code, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING `+periodColumns, p.OrgID, created.ID, p.Code, p.StartDate, p.EndDate, p.Status)
			inserted, err := scanPeriod(prow)
			if err != nil {
				return err
			}
			createdPeriods = append(createdPeriods, inserted)
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, nil, err
	}
	return created, createdPeriods, nil
}

func (r *repository) GetFiscalYear(ctx context.Context, orgID, id int64) (FiscalYear, error) {
	var y FiscalYear
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, code, start_date, end_date, closed, created_at, updated_at
FROM fiscal_years WHERE org_id=$1 AND id=$2`, orgID, id).
		Scan(&y.ID, &y.OrgID, &y.Code, &y.StartDate, &y.EndDate, &y.Closed, &y.CreatedAt, &y.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrPeriodNotFound
		}
		return FiscalYear{}, err
	}
	return y, nil
}

func (r *repository) HasOverlappingYear(ctx context.Context, orgID int64, start, end time.Time) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fiscal_years
WHERE org_id=$1 AND start_date <= $3 AND end_date >= $2`, orgID, start, end).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) PeriodFor(ctx context.Context, orgID int64, date time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE org_id=$1 AND start_date <= $2 AND end_date >= $2`, orgID, date)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNoPeriod
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) GetPeriod(ctx context.Context, orgID, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE org_id=$1 AND id=$2`, orgID, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) ListPeriods(ctx context.Context, orgID, fiscalYearID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE org_id=$1 AND fiscal_year_id=$2 ORDER BY start_date ASC`, orgID, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.OrgID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) SetPeriodStatus(ctx context.Context, orgID, id int64, status PeriodStatus) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE periods SET status=$3,
closed_at = CASE WHEN $3='CLOSED' THEN NOW() ELSE NULL END,
updated_at=NOW() WHERE org_id=$1 AND id=$2`, orgID, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}
