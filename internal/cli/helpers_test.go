package cli

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	assert.False(t, NewLogger(Options{}).Enabled(ctx, slog.LevelInfo), "defaults to warn")
	assert.True(t, NewLogger(Options{LogLevel: "info"}).Enabled(ctx, slog.LevelInfo))
	assert.False(t, NewLogger(Options{LogLevel: "error"}).Enabled(ctx, slog.LevelWarn))
	assert.True(t, NewLogger(Options{LogLevel: "error", Debug: true}).Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger(Options{LogLevel: "nonsense"}).Enabled(ctx, slog.LevelInfo))
}
