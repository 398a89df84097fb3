// Package notify carries two kinds of messages. User notifications are
// transient, per-wallet results of vault actions held in an Inbox. Operator
// alerts are forwarded to chat webhooks by a Notifier, filtered by event.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Operator event types.
const (
	EventMarketCreated   = "market_created"
	EventMarketResolved  = "market_resolved"
	EventBridgeCompleted = "bridge_completed"
	EventError           = "error"
)

// Sender delivers one operator alert to a channel.
type Sender interface {
	Send(ctx context.Context, event, title, message string) error
	Name() string
}

// Notifier fans operator alerts out to every Sender. Only events in the
// configured set are forwarded; an empty set forwards everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Notify forwards an alert for event if the event is allowed. A nil
// Notifier drops everything.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	// One failing sender does not stop delivery to the others.
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, event, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
