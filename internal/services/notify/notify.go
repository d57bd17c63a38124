// Package notify sends operator-facing notifications (job summaries,
// backup results, stats). Sends are rate limited and failures are logged
// and swallowed; a lost summary must never fail the job that produced it.
package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Priority bands used by Notify's prefix selection.
const (
	PriorityInfo = 3
	PriorityWarn = 5
	PriorityHigh = 8
)

// historyCap bounds the ring of past notifications served by Recent.
const historyCap = 300

type Service struct {
	adapter transport.Adapter
	log     logx.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	operator transport.ChatTarget
	history  []transport.Notification
}

func New(adapter transport.Adapter, log logx.Logger) *Service {
	return &Service{
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// SetOperator points operator notifications at a chat. Zero disables them.
func (n *Service) SetOperator(target transport.ChatTarget) {
	n.mu.Lock()
	n.operator = target
	n.mu.Unlock()
}

func (n *Service) Notify(ctx context.Context, noti transport.Notification) error {
	if noti.Options == nil {
		noti.Options = &transport.SendOptions{DisablePreview: true}
	}

	prefix := ""
	switch {
	case noti.Priority >= 8:
		prefix = "🚨 "
	case noti.Priority >= 5:
		prefix = "⚠️ "
	default:
		prefix = "ℹ️ "
	}
	_, err := n.adapter.SendText(ctx, noti.Target, prefix+noti.Text, noti.Options)
	if err != nil {
		n.log.Warn("notification send failed",
			logx.Int64("chat_id", noti.Target.ChatID),
			logx.Err(err))
	} else {
		n.log.Debug("notification sent",
			logx.Int64("chat_id", noti.Target.ChatID),
			logx.Int("priority", noti.Priority))
	}
	n.appendHistory(noti)
	return err
}

// Operator sends a best-effort summary to the operator chat. Unset
// operator targets and send failures are both silently absorbed.
func (n *Service) Operator(ctx context.Context, priority int, text string) {
	n.mu.Lock()
	target := n.operator
	n.mu.Unlock()
	if target.ChatID == 0 {
		return
	}
	if !n.limiter.Allow() {
		n.log.Debug("operator notification rate limited")
		return
	}
	_ = n.Notify(ctx, transport.Notification{Priority: priority, Target: target, Text: text})
}

// Recent returns up to max notifications, oldest first, newest last.
// The stats job folds these into its operator report.
func (n *Service) Recent(max int) []transport.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if max <= 0 || len(n.history) == 0 {
		return nil
	}
	if max > len(n.history) {
		max = len(n.history)
	}
	out := make([]transport.Notification, max)
	copy(out, n.history[len(n.history)-max:])
	return out
}

func (n *Service) appendHistory(x transport.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, x)
	if len(n.history) > historyCap {
		n.history = n.history[len(n.history)-historyCap:]
	}
}
