// Package logging builds the slog loggers used across cftbridge.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type config struct {
	out  io.Writer
	json bool
}

// Option configures New.
type Option func(*config)

// WithOutput writes records to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.out = w
	}
}

// WithJSON switches to one JSON object per record, for log collectors.
func WithJSON(enabled bool) Option {
	return func(c *config) {
		c.json = enabled
	}
}

// New creates a configured application logger.
// It writes to stderr so stdout stays free for status output and MCP stdio.
// The "error" key is renamed to "err".
func New(level slog.Level, opts ...Option) *slog.Logger {
	cfg := config{out: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}
	handlerOpts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if cfg.json {
		return slog.New(slog.NewJSONHandler(cfg.out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(cfg.out, handlerOpts))
}

// ParseLevel accepts debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
