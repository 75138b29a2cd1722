// Package notify tells operators about submissions that need attention.
// Notifications go to every registered sender (Telegram, Discord) and are
// filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/policast/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Only events in
// the allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering the given events to senders.
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

// Notify sends title and message if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyOutcome reports a finished submission. The event name is the
// outcome, so operators usually subscribe to "partial" and "failure".
func (n *Notifier) NotifyOutcome(ctx context.Context, rec domain.PurchaseRecord) error {
	title := fmt.Sprintf("%s %s", rec.Kind, rec.Outcome)
	var b strings.Builder
	fmt.Fprintf(&b, "market %s/%d", rec.Version, rec.MarketID)
	if rec.Kind == domain.ActionBuy || rec.Kind == domain.ActionSell {
		fmt.Fprintf(&b, " option %d", rec.OptionID)
	}
	fmt.Fprintf(&b, "\naccount %s\nintent %s", rec.Account, rec.ID)
	if rec.Path != "" {
		fmt.Fprintf(&b, "\npath %s", rec.Path)
	}
	if rec.ActionTx != "" {
		fmt.Fprintf(&b, "\ntx %s", rec.ActionTx)
	} else if rec.CallsID != "" {
		fmt.Fprintf(&b, "\ncalls %s", rec.CallsID)
	}
	if rec.Message != "" {
		fmt.Fprintf(&b, "\n%s", rec.Message)
	}
	return n.Notify(ctx, string(rec.Outcome), title, b.String())
}

// dispatch sends to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
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
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
