// Package alerting delivers operator-facing notifications for pipeline
// events that need human attention, most importantly jobs that
// exhausted their retry budget. Sinks are fire-and-forget: the pipeline
// never blocks or fails because an alert could not be delivered.
package alerting

import (
	"context"
	"errors"
	"log/slog"
)

// Event kinds emitted by the pipeline.
const (
	// EventDeadLetter signals a job whose task exhausted its retry
	// budget and was parked in the failed state.
	EventDeadLetter = "dead_letter"
)

// Event is one operator-facing notification.
type Event struct {
	// Kind is the machine-readable event class.
	Kind string

	// Message is a human-readable summary.
	Message string

	// Fields carries structured context for the event.
	Fields map[string]string
}

// Sink delivers events to one destination. Implementations must be
// safe for concurrent use.
type Sink interface {
	// Notify delivers the event. Errors indicate the delivery failed;
	// callers decide whether that matters.
	Notify(ctx context.Context, event Event) error
}

// Notifier fans events out to a set of sinks. Sink failures are logged
// and never propagated, so alerting problems cannot fail the pipeline
// work that raised the alert.
type Notifier struct {
	sinks  []Sink
	logger *slog.Logger
}

// Ensure Notifier implements Sink, so notifiers can stand wherever a
// single sink is expected.
var _ Sink = (*Notifier)(nil)

// NewNotifier creates a notifier over the given sinks. Nil sinks are
// skipped.
func NewNotifier(log *slog.Logger, sinks ...Sink) (*Notifier, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}

	return &Notifier{
		sinks:  kept,
		logger: log.With(slog.String("component", "alert_notifier")),
	}, nil
}

// Notify implements Sink. Every registered sink sees the event; the
// return value is always nil.
func (n *Notifier) Notify(ctx context.Context, event Event) error {
	for _, s := range n.sinks {
		if err := s.Notify(ctx, event); err != nil {
			n.logger.Error("alert sink delivery failed",
				slog.String("alert_kind", event.Kind),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
