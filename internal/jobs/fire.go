package jobs

import (
	"context"
	"errors"
	"fmt"

	"remindbot/internal/remind"
	"remindbot/internal/services/scheduler"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Sender is the delivery slice of the transport adapter.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// NewFireProcessor builds the reminders-job processor: load the
// reminder, deliver it, then either advance the recurrence or settle the
// one-shot. A missing or already-completed reminder is recoverable; the
// fire is logged and dropped.
func NewFireProcessor(svc *remind.Service, sender Sender, log logx.Logger) scheduler.Processor {
	return func(ctx context.Context, payload map[string]string) error {
		id := payload[remind.PayloadReminderID]
		if id == "" {
			log.Warn("reminder fire without reminder id in payload")
			return nil
		}

		r, err := svc.Store().Get(ctx, id)
		if errors.Is(err, remind.ErrNotFound) {
			log.Warn("reminder fire for missing reminder", logx.String("reminder", id))
			return nil
		}
		if err != nil {
			return fmt.Errorf("jobs: fire %s: %w", id, err)
		}
		if r.Status == remind.StatusCompleted {
			log.Debug("reminder fire for completed reminder; dropping", logx.String("reminder", id))
			return nil
		}

		deliver(ctx, sender, r, log)

		if r.Recurring() {
			return svc.Advance(ctx, r)
		}
		if !r.Personal() {
			// One-shot with an audience is done once delivered.
			return svc.Complete(ctx, r)
		}
		// Personal one-shots stay active so their owner can snooze or
		// complete them; only the consumed fire handle is cleared.
		r.JobHandle = ""
		return svc.Store().Upsert(ctx, r)
	}
}

func deliver(ctx context.Context, sender Sender, r *remind.Reminder, log logx.Logger) {
	text := fireText(r)
	opt := &transport.SendOptions{DisablePreview: true}

	if r.Personal() {
		if _, err := sender.SendText(ctx, transport.ChatTarget{ChatID: r.CreatedBy}, text, opt); err != nil {
			log.Warn("reminder delivery failed",
				logx.String("reminder", r.ID),
				logx.Int64("chat_id", r.CreatedBy),
				logx.Err(err))
		}
		return
	}

	for _, id := range r.Audience.IDs {
		if id == 0 {
			log.Warn("reminder audience entry unresolved; skipping",
				logx.String("reminder", r.ID))
			continue
		}
		if _, err := sender.SendText(ctx, transport.ChatTarget{ChatID: id}, text, opt); err != nil {
			log.Warn("reminder delivery failed",
				logx.String("reminder", r.ID),
				logx.Int64("chat_id", id),
				logx.Err(err))
		}
	}
}

func fireText(r *remind.Reminder) string {
	return "⏰ Reminder: " + r.Description
}
