package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/journals"
	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// GLIntegrityChecker recomputes posted line sums per (account, period) and
// compares them with the running balances. Drift indicates a bug or manual
// data surgery; the job reports it, it does not repair.
type GLIntegrityChecker struct {
	repo    journals.IntegrityRepository
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGLIntegrityChecker builds the integrity handler.
func NewGLIntegrityChecker(logger *slog.Logger, repo journals.IntegrityRepository, metrics *observability.Metrics) *GLIntegrityChecker {
	return &GLIntegrityChecker{repo: repo, metrics: metrics, logger: logger}
}

// Handle processes one integrity task.
func (c *GLIntegrityChecker) Handle(ctx context.Context, _ *asynq.Task) error {
	drift, err := c.repo.ListBalanceDrift(ctx)
	if err != nil {
		c.logger.Error("ledger integrity check", slog.Any("error", err))
		return err
	}
	if c.metrics != nil {
		c.metrics.BalanceDriftDetected.Set(float64(len(drift)))
	}
	for _, row := range drift {
		c.logger.Error("ledger balance drift",
			slog.Int64("org_id", row.OrgID),
			slog.Int64("account_id", row.AccountID),
			slog.Int64("period_id", row.PeriodID),
			slog.String("balance_debit", row.BalanceDebit.String()),
			slog.String("line_debit", row.LineDebit.String()),
			slog.String("balance_credit", row.BalanceCredit.String()),
			slog.String("line_credit", row.LineCredit.String()))
	}
	if len(drift) == 0 {
		c.logger.Info("ledger integrity check clean")
	}
	return nil
}
