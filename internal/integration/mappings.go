package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Mapping binds a module-level role to a GL account. Subledgers never name
// accounts directly; they post through these bindings.
type Mapping struct {
	ID        int64
	OrgID     int64
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mapping keys used by the subledger adapters.
const (
	KeyExpenseControl    = "expense_control"
	KeyPayableControl    = "payable_control"
	KeyReceivableControl = "receivable_control"
	KeyRevenueControl    = "revenue_control"
	KeyCash              = "cash"
)

// ErrMappingNotFound surfaces as an external-dependency failure: the ledger
// cannot book the document until an administrator configures the binding.
var ErrMappingNotFound = fmt.Errorf("integration: account mapping missing: %w", shared.ErrExternalDependency)

// MappingRepository stores module-to-account bindings.
type MappingRepository interface {
	Resolve(ctx context.Context, orgID int64, module, key string) (Mapping, error)
	List(ctx context.Context, orgID int64) ([]Mapping, error)
	Upsert(ctx context.Context, m Mapping) (Mapping, error)
}

type mappingRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRepository returns the pgx-backed mappings repository.
func NewMappingRepository(pool *pgxpool.Pool) MappingRepository {
	return &mappingRepository{pool: pool}
}

const mappingColumns = `id, org_id, module, key, account_id, created_at, updated_at`

func (r *mappingRepository) Resolve(ctx context.Context, orgID int64, module, key string) (Mapping, error) {
	var m Mapping
	err := r.pool.QueryRow(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE org_id=$1 AND module=$2 AND key=$3`,
		orgID, module, key).Scan(&m.ID, &m.OrgID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Mapping{}, fmt.Errorf("%w: %s.%s", ErrMappingNotFound, module, key)
		}
		return Mapping{}, err
	}
	return m, nil
}

func (r *mappingRepository) List(ctx context.Context, orgID int64) ([]Mapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE org_id=$1 ORDER BY module, key`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *mappingRepository) Upsert(ctx context.Context, m Mapping) (Mapping, error) {
	if m.Module == "" || m.Key == "" || m.AccountID == 0 {
		return Mapping{}, fmt.Errorf("integration: module, key and account required: %w", shared.ErrValidation)
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO account_mappings (org_id, module, key, account_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (org_id, module, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()
RETURNING `+mappingColumns, m.OrgID, m.Module, m.Key, m.AccountID)
	var out Mapping
	if err := row.Scan(&out.ID, &out.OrgID, &out.Module, &out.Key, &out.AccountID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Mapping{}, err
	}
	return out, nil
}
