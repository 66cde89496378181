package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/journals"
)

// TaskEvent is the asynq task type carrying notification events. Delivery to
// users is the notification service's concern; this package only enqueues.
const TaskEvent = "notify:event"

// Event is the payload of a notify:event task.
type Event struct {
	Kind    string         `json:"kind"`
	OrgID   int64          `json:"org_id"`
	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

// Emitter enqueues notification events. A nil client turns every emit into a
// log line, which keeps worker-less deploys and tests working.
type Emitter struct {
	client  *asynq.Client
	logger  *slog.Logger
	printer *message.Printer
	now     func() time.Time
}

// NewEmitter builds an Emitter.
func NewEmitter(logger *slog.Logger, client *asynq.Client) *Emitter {
	return &Emitter{
		client:  client,
		logger:  logger,
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

// JournalPosted announces a journal reaching POSTED.
func (e *Emitter) JournalPosted(ctx context.Context, entry journals.JournalEntry) {
	e.emit(ctx, Event{
		Kind:    "journal.posted",
		OrgID:   entry.OrgID,
		Subject: e.printer.Sprintf("Journal %s posted", entry.Number),
		Body:    e.printer.Sprintf("Journal %s was posted on %s.", entry.Number, entry.Date.Format("2006-01-02")),
		Meta: map[string]any{
			"journal_id": entry.ID,
			"number":     entry.Number,
		},
		At: e.now(),
	})
}

// BillOverdue announces a bill past its due date with an open balance.
func (e *Emitter) BillOverdue(ctx context.Context, bill ap.Bill) {
	due, _ := bill.BalanceDue.Float64()
	e.emit(ctx, Event{
		Kind:    "bill.overdue",
		OrgID:   bill.OrgID,
		Subject: e.printer.Sprintf("Bill %s is overdue", bill.Number),
		Body:    e.printer.Sprintf("Bill %s was due %s with %.2f outstanding.", bill.Number, bill.DueAt.Format("2006-01-02"), due),
		Meta: map[string]any{
			"bill_id":     bill.ID,
			"number":      bill.Number,
			"balance_due": bill.BalanceDue.String(),
		},
		At: e.now(),
	})
}

func (e *Emitter) emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("marshal notify event", slog.Any("error", err))
		return
	}
	if e.client == nil {
		e.logger.Info("notify event", slog.String("kind", event.Kind), slog.Int64("org_id", event.OrgID))
		return
	}
	task := asynq.NewTask(TaskEvent, payload, asynq.MaxRetry(5), asynq.Queue("notify"))
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		// Posting already committed; a lost notification is not worth failing it.
		e.logger.Error("enqueue notify event", slog.String("kind", event.Kind), slog.Any("error", err))
	}
}
