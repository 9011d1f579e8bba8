package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// LogHooks returns lifecycle hooks that audit traffic to logger.
// Messages and acknowledgments log at debug; failures and state changes at info or above.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(ctx context.Context, projectID string, from, to domain.State) {
			logger.InfoContext(ctx, "state_change", "project", projectID, "from", from.String(), "to", to.String())
		},
		OnMessage: func(ctx context.Context, e *domain.MessageEvent) {
			logger.DebugContext(ctx, "message_sent",
				"session_id", e.SessionID,
				"command", e.Command,
				"bytes", e.Bytes,
				"count", e.Records,
			)
		},
		OnAck: func(ctx context.Context, e *domain.AckEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "ack_failed", "session_id", e.SessionID, "command", e.Command, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "ack_received", "session_id", e.SessionID, "command", e.Command, "wait", e.Wait)
		},
		OnFlush: func(ctx context.Context, e *domain.FlushEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "flush_failed", "project", e.ProjectID, "full", e.FullResync, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "flush",
				"project", e.ProjectID,
				"full", e.FullResync,
				"count", e.Records,
				"messages", e.Messages,
				"duration", e.Duration,
			)
		},
	}
}
