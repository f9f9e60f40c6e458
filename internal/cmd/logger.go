package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/shineum/smtp-send-lite/internal/config"
)

// setupLogger configures the global slog logger. JSON goes to stdout; the
// text format renders through charmbracelet/log on stderr.
func setupLogger(stdout, stderr io.Writer, cfg config.LoggingConfig) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		logger := log.NewWithOptions(stderr, log.Options{
			ReportTimestamp: true,
		})
		logger.SetLevel(log.Level(level))
		handler = logger
	default:
		handler = slog.NewJSONHandler(stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
