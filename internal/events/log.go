package events

import "log/slog"

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs the event at info level, failures at warn.
func (s LogSink) Emit(name string, payload Payload) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.String("event", name),
		slog.String("operation_id", payload.OperationID),
	}
	if payload.Kind != "" {
		attrs = append(attrs, slog.String("kind", payload.Kind))
	}
	if payload.Count != nil {
		attrs = append(attrs, slog.Int("count", *payload.Count))
	}
	if payload.Page > 0 {
		attrs = append(attrs, slog.Int("page", payload.Page))
	}
	if payload.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", payload.Attempt))
	}
	if payload.Delay > 0 {
		attrs = append(attrs, slog.Duration("delay", payload.Delay))
	}
	if payload.Reason != "" {
		attrs = append(attrs, slog.String("reason", payload.Reason))
	}
	if name == Failed || name == Blocked || name == ChallengeFailed {
		logger.Warn("crawl event", attrs...)
		return
	}
	logger.Info("crawl event", attrs...)
}
