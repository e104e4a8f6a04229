// Package notifier turns terminal document signals into user-facing
// summary notifications.
//
// It sits between the aggregator and the notification queue: the
// dispatcher calls it exactly once per document, it renders a Telegram
// HTML summary and enqueues it for best-effort delivery to the
// document owner.
package notifier

import (
	"rosterbot/internal/dispatch"
	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

// EnqueueFunc hands a rendered notification to the notification queue.
type EnqueueFunc func(transport.Notification)

type Notifier struct {
	log     logx.Logger
	enqueue EnqueueFunc
}

func New(log logx.Logger, enqueue EnqueueFunc) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log, enqueue: enqueue}
}

// Callbacks returns the terminal-signal hooks to register with the
// dispatcher.
func (n *Notifier) Callbacks() dispatch.Callbacks {
	return dispatch.Callbacks{
		OnDocumentCompleted: n.documentCompleted,
		OnDocumentFailed:    n.documentFailed,
	}
}

func (n *Notifier) documentCompleted(s dispatch.Summary) {
	n.notify(s, renderCompleted(s))
}

func (n *Notifier) documentFailed(s dispatch.Summary) {
	n.notify(s, renderFailed(s))
}

func (n *Notifier) notify(s dispatch.Summary, text string) {
	if s.Owner.UserID == 0 {
		n.log.Warn("document has no owner; summary not delivered",
			logx.String("doc", s.DocumentID))
		return
	}
	n.log.Debug("summary queued",
		logx.String("doc", s.DocumentID),
		logx.Int64("owner", s.Owner.UserID))
	n.enqueue(transport.Notification{
		Target:  transport.ChatTarget{ChatID: s.Owner.UserID},
		Text:    text,
		Options: &transport.SendOptions{ParseMode: "HTML", DisablePreview: true},
	})
}
