package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mkoval/tradepilot/internal/domain"
)

// Consumer subscribes to engine events on the signal bus and renders them
// into operator notifications. It runs as its own goroutine so a slow
// notification channel never stalls a trading cycle.
type Consumer struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewConsumer creates a Consumer over the given bus and notifier.
func NewConsumer(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_consumer")),
	}
}

// Run consumes events until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.bus.Subscribe(ctx,
		domain.TopicPositionOpened,
		domain.TopicPositionClosed,
		domain.TopicPositionReversed,
		domain.TopicEquityUpdated,
	)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	c.logger.Info("notification consumer started")
	defer c.logger.Info("notification consumer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg domain.BusMessage) {
	var title, body string

	switch msg.Topic {
	case domain.TopicPositionOpened, domain.TopicPositionClosed, domain.TopicPositionReversed:
		var ev domain.PositionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			c.logger.Warn("bad position event payload", slog.String("error", err.Error()))
			return
		}
		title, body = renderPositionEvent(msg.Topic, ev)
	case domain.TopicEquityUpdated:
		// Equity ticks are chatty; forward them only when explicitly allowed.
		var ev domain.EquityEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			c.logger.Warn("bad equity event payload", slog.String("error", err.Error()))
			return
		}
		title = "Equity update"
		body = fmt.Sprintf("Balance %.2f | Equity %.2f | Unrealized %.2f | Open %d",
			ev.Balance, ev.Equity, ev.UnrealizedPnL, ev.OpenPositions)
	default:
		return
	}

	if err := c.notifier.Notify(ctx, eventName(msg.Topic), title, body); err != nil {
		c.logger.Warn("notification failed",
			slog.String("topic", msg.Topic), slog.String("error", err.Error()))
	}
}

func renderPositionEvent(topic string, ev domain.PositionEvent) (string, string) {
	switch topic {
	case domain.TopicPositionOpened:
		return fmt.Sprintf("Opened %s %s", ev.Side, ev.Symbol),
			fmt.Sprintf("Size %.6f at %.6f", ev.Size, ev.EntryPrice)
	case domain.TopicPositionReversed:
		return fmt.Sprintf("Reversed into %s %s", ev.Side, ev.Symbol),
			fmt.Sprintf("Size %.6f at %.6f", ev.Size, ev.EntryPrice)
	case domain.TopicPositionClosed:
		title := fmt.Sprintf("Closed %s %s", ev.Side, ev.Symbol)
		body := fmt.Sprintf("Entry %.6f", ev.EntryPrice)
		if ev.ExitPrice != nil {
			body += fmt.Sprintf(" | Exit %.6f", *ev.ExitPrice)
		}
		if ev.RealizedPnL != nil {
			body += fmt.Sprintf(" | PnL %.2f", *ev.RealizedPnL)
		}
		if ev.PnLPercent != nil {
			body += fmt.Sprintf(" (%.2f%%)", *ev.PnLPercent)
		}
		if ev.CloseReason != nil {
			body += fmt.Sprintf(" | %s", *ev.CloseReason)
		}
		return title, body
	}
	return "", ""
}

// eventName maps a bus topic to the operator-facing event filter name.
func eventName(topic string) string {
	switch topic {
	case domain.TopicPositionOpened:
		return "position_opened"
	case domain.TopicPositionClosed:
		return "position_closed"
	case domain.TopicPositionReversed:
		return "position_reversed"
	case domain.TopicEquityUpdated:
		return "equity_updated"
	}
	return topic
}
