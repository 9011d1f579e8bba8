package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Event is one server-sent event pushed to /events subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan<- string]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan<- string]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe() (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of connected clients.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

func (sm *StreamManager) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("SSE: event encode failed", "type", ev.Type, "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- string(b):
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping event", "type", ev.Type)
		}
	}
}

// Hooks returns lifecycle hooks that publish state changes, flushes and queue depth.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, projectID string, from, to domain.State) {
			sm.Broadcast(Event{Type: "state", Data: map[string]string{
				"project": projectID,
				"from":    from.String(),
				"to":      to.String(),
			}})
		},
		OnFlush: func(_ context.Context, e *domain.FlushEvent) {
			data := map[string]any{
				"project":  e.ProjectID,
				"full":     e.FullResync,
				"records":  e.Records,
				"messages": e.Messages,
			}
			if e.Err != nil {
				data["error"] = e.Err.Error()
			}
			sm.Broadcast(Event{Type: "flush", Data: data})
		},
		OnPending: func(_ context.Context, projectID string, n int) {
			sm.Broadcast(Event{Type: "pending", Data: map[string]any{"project": projectID, "pending": n}})
		},
	}
}
