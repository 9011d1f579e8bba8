package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/cftbridge/internal/logging"
)

// NewLogger configures the application logger from the shared flags.
// --debug wins over --log-level; an unparsable level falls back to warn.
func NewLogger(opts Options) *slog.Logger {
	level := slog.LevelWarn
	if opts.LogLevel != "" {
		if parsed, err := logging.ParseLevel(opts.LogLevel); err == nil {
			level = parsed
		}
	}
	if opts.Debug {
		level = slog.LevelDebug
	}
	return logging.New(level, logging.WithJSON(opts.LogJSON))
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
