// Package notify delivers trade alerts to operator channels. Engine events
// picked up from the signal bus are rendered into short messages and fanned
// out to every configured sender, with an event filter so chatty topics like
// equity ticks stay off unless the operator asks for them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers a rendered alert to a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier fans an alert out to every configured sender. The events set
// holds the operator-facing event names that pass the filter; an empty set
// lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. Blank entries in the
// events list are ignored.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert if the event passes the configured filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 {
		if _, ok := n.events[event]; !ok {
			n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
			return nil
		}
	}
	return n.NotifyAll(ctx, title, message)
}

// NotifyAll delivers the alert to every sender, skipping the event filter.
// A failing sender does not stop delivery to the rest; the failures are
// joined into the returned error.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
