package observability

import (
	"context"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Compose combines multiple hook sets into one. Callbacks run in argument order and nil
// callbacks are skipped.
func Compose(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks

	var states []func(context.Context, string, domain.State, domain.State)
	var messages []func(context.Context, *domain.MessageEvent)
	var acks []func(context.Context, *domain.AckEvent)
	var flushes []func(context.Context, *domain.FlushEvent)
	var pending []func(context.Context, string, int)

	for _, h := range hooks {
		if h.OnStateChange != nil {
			states = append(states, h.OnStateChange)
		}
		if h.OnMessage != nil {
			messages = append(messages, h.OnMessage)
		}
		if h.OnAck != nil {
			acks = append(acks, h.OnAck)
		}
		if h.OnFlush != nil {
			flushes = append(flushes, h.OnFlush)
		}
		if h.OnPending != nil {
			pending = append(pending, h.OnPending)
		}
	}

	if len(states) > 0 {
		out.OnStateChange = func(ctx context.Context, projectID string, from, to domain.State) {
			for _, fn := range states {
				fn(ctx, projectID, from, to)
			}
		}
	}
	if len(messages) > 0 {
		out.OnMessage = func(ctx context.Context, e *domain.MessageEvent) {
			for _, fn := range messages {
				fn(ctx, e)
			}
		}
	}
	if len(acks) > 0 {
		out.OnAck = func(ctx context.Context, e *domain.AckEvent) {
			for _, fn := range acks {
				fn(ctx, e)
			}
		}
	}
	if len(flushes) > 0 {
		out.OnFlush = func(ctx context.Context, e *domain.FlushEvent) {
			for _, fn := range flushes {
				fn(ctx, e)
			}
		}
	}
	if len(pending) > 0 {
		out.OnPending = func(ctx context.Context, projectID string, n int) {
			for _, fn := range pending {
				fn(ctx, projectID, n)
			}
		}
	}
	return out
}
