package common

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// LoggingOpts configures the process-wide logger.
type LoggingOpts struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool

	// JSON switches from colored console output to JSON lines.
	JSON bool

	// Service is added as a 'service' attribute to every record.
	Service string

	// Version is added as a 'version' attribute to every record.
	Version string
}

// SetupLogger creates the slog logger all components receive explicitly.
// Console output is colored and leveled (INFO/WARN/ERROR); JSON output is
// meant for log shippers.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
