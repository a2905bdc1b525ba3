package logger

import (
	"io"
	"log/slog"
)

// New builds a JSON slog logger with the timestamp/level/message key names
// used across our log pipeline.
func New(writer io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "timestamp"
			case slog.LevelKey:
				a.Key = "level"
			case slog.MessageKey:
				a.Key = "message"
			}
			return a
		},
	})
	return slog.New(handler)
}

// Init installs the logger as the slog default and returns it.
func Init(writer io.Writer, level slog.Level) *slog.Logger {
	logger := New(writer, level)
	slog.SetDefault(logger)
	return logger
}
