package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/notify"
)

// OverdueScanner walks posted bills past their due date and emits one
// overdue event per bill. It runs nightly via the scheduler.
type OverdueScanner struct {
	service *ap.Service
	emitter *notify.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewOverdueScanner builds the scan handler.
func NewOverdueScanner(logger *slog.Logger, service *ap.Service, emitter *notify.Emitter) *OverdueScanner {
	return &OverdueScanner{service: service, emitter: emitter, logger: logger, now: time.Now}
}

// Handle processes one scan task.
func (s *OverdueScanner) Handle(ctx context.Context, _ *asynq.Task) error {
	asOf := s.now()
	bills, err := s.service.OverdueBills(ctx, asOf)
	if err != nil {
		s.logger.Error("overdue scan", slog.Any("error", err))
		return err
	}
	for _, bill := range bills {
		s.emitter.BillOverdue(ctx, bill)
	}
	s.logger.Info("overdue scan finished",
		slog.Time("as_of", asOf),
		slog.Int("overdue_bills", len(bills)))
	return nil
}
