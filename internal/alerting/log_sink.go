package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sort"
)

// LogSink writes events to the structured log. It is the default sink
// for deployments without an external alerting destination, keeping
// dead letters visible in log-based monitoring.
type LogSink struct {
	logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(log *slog.Logger) (*LogSink, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &LogSink{
		logger: log.With(slog.String("component", "alert_log_sink")),
	}, nil
}

// Notify implements Sink. Events log at error level with their fields
// in a stable order.
func (s *LogSink) Notify(_ context.Context, event Event) error {
	attrs := make([]any, 0, 1+len(event.Fields))
	attrs = append(attrs, slog.String("alert_kind", event.Kind))

	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, event.Fields[k]))
	}

	s.logger.Error(event.Message, attrs...)
	return nil
}
