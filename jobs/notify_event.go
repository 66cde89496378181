package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/notify"
)

// NotifyDispatcher consumes notify:event tasks. Delivery channels (mail,
// webhooks) live in the notification service; the worker records the event
// and acknowledges it.
type NotifyDispatcher struct {
	logger *slog.Logger
}

// NewNotifyDispatcher builds the event handler.
func NewNotifyDispatcher(logger *slog.Logger) *NotifyDispatcher {
	return &NotifyDispatcher{logger: logger}
}

// Handle processes one notify:event task.
func (d *NotifyDispatcher) Handle(_ context.Context, t *asynq.Task) error {
	var event notify.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		d.logger.Error("decode notify event", slog.Any("error", err))
		return asynq.SkipRetry
	}
	d.logger.Info("notify event delivered",
		slog.String("kind", event.Kind),
		slog.Int64("org_id", event.OrgID),
		slog.String("subject", event.Subject))
	return nil
}
